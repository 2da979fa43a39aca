// Package filesystem provides a Traverser that feeds the files under a local
// directory, in path order, one checkpointed batch at a time.
package filesystem

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/custodia-labs/sercha-feed/internal/core/domain"
	"github.com/custodia-labs/sercha-feed/internal/core/ports/driven"
)

// Type is the connector type name.
const Type = "filesystem"

// Configuration keys.
const (
	ConfigPath     = "path"
	ConfigPatterns = "patterns"
	ConfigRate     = "rate"
	ConfigMaxSize  = "max_size"
)

// DefaultMaxSize is the largest file fed with its content. Larger files are
// fed as metadata only.
const DefaultMaxSize int64 = 10 << 20

// Verify interface compliance.
var _ driven.Traverser = (*Connector)(nil)

// Connector walks a directory tree. Hidden files and directories are
// skipped. Checkpoints are the slash-separated path of the last file fed,
// relative to the root.
type Connector struct {
	name     string
	rootPath string
	patterns []string
	maxSize  int64
	limiter  *rate.Limiter

	mu     sync.Mutex
	closed bool
}

// New creates a filesystem connector for rootPath.
func New(name, rootPath string) *Connector {
	return &Connector{
		name:     name,
		rootPath: rootPath,
		maxSize:  DefaultMaxSize,
		limiter:  rate.NewLimiter(rate.Inf, 1),
	}
}

// Builder creates a Connector from connector configuration:
// path (required), patterns (comma-separated globs), rate (files per
// second, 0 for unlimited) and max_size (bytes).
func Builder(c domain.Connector) (driven.Traverser, error) {
	path := strings.TrimSpace(c.Config[ConfigPath])
	if path == "" {
		return nil, fmt.Errorf("%w: filesystem connector %s has no %s", domain.ErrInvalidInput, c.Name, ConfigPath)
	}
	conn := New(c.Name, path)

	if p := c.Config[ConfigPatterns]; p != "" {
		for _, pattern := range strings.Split(p, ",") {
			pattern = strings.TrimSpace(pattern)
			if pattern == "" {
				continue
			}
			if _, err := filepath.Match(pattern, ""); err != nil {
				return nil, fmt.Errorf("%w: bad pattern %q", domain.ErrInvalidInput, pattern)
			}
			conn.patterns = append(conn.patterns, pattern)
		}
	}
	if r := c.Config[ConfigRate]; r != "" {
		perSec, err := strconv.ParseFloat(r, 64)
		if err != nil || perSec < 0 {
			return nil, fmt.Errorf("%w: bad %s %q", domain.ErrInvalidInput, ConfigRate, r)
		}
		if perSec > 0 {
			conn.limiter = rate.NewLimiter(rate.Limit(perSec), 1)
		}
	}
	if s := c.Config[ConfigMaxSize]; s != "" {
		size, err := strconv.ParseInt(s, 10, 64)
		if err != nil || size < 0 {
			return nil, fmt.Errorf("%w: bad %s %q", domain.ErrInvalidInput, ConfigMaxSize, s)
		}
		conn.maxSize = size
	}
	return conn, nil
}

// Type returns the connector type.
func (c *Connector) Type() string {
	return Type
}

// Name returns the connector instance name.
func (c *Connector) Name() string {
	return c.name
}

// Validate checks that the root path is an accessible directory.
func (c *Connector) Validate(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	info, err := os.Stat(c.rootPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("path does not exist: %s", c.rootPath)
		}
		return fmt.Errorf("cannot access path: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", c.rootPath)
	}
	return nil
}

// StartTraversal lists the repository from the beginning.
func (c *Connector) StartTraversal(ctx context.Context, batch domain.BatchSize) (driven.DocumentList, error) {
	return c.ResumeTraversal(ctx, "", batch)
}

// ResumeTraversal lists the files after checkpoint. It returns nil when no
// files remain.
func (c *Connector) ResumeTraversal(ctx context.Context, checkpoint string, batch domain.BatchSize) (driven.DocumentList, error) {
	if c.isClosed() {
		return nil, errors.New("filesystem connector closed")
	}
	if err := c.Validate(ctx); err != nil {
		return nil, err
	}
	files, err := c.listFiles(ctx)
	if err != nil {
		return nil, err
	}

	start := 0
	if checkpoint != "" {
		start = sort.Search(len(files), func(i int) bool { return files[i] > checkpoint })
	}
	remaining := files[start:]
	if len(remaining) == 0 {
		return nil, nil
	}
	if batch.Maximum > 0 && len(remaining) > batch.Maximum {
		remaining = remaining[:batch.Maximum]
	}
	return &documentList{conn: c, files: remaining, checkpoint: checkpoint}, nil
}

// Close releases resources. Safe to call multiple times.
func (c *Connector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *Connector) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// listFiles returns the sorted slash-separated relative paths of all
// visible, matching regular files.
func (c *Connector) listFiles(ctx context.Context) ([]string, error) {
	var files []string
	err := filepath.WalkDir(c.rootPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		rel, relErr := filepath.Rel(c.rootPath, path)
		if relErr != nil {
			return relErr
		}
		if rel == "." {
			return nil
		}
		if isHidden(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || !c.matches(d.Name()) {
			return nil
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", c.rootPath, err)
	}
	sort.Strings(files)
	return files, nil
}

func (c *Connector) matches(name string) bool {
	if len(c.patterns) == 0 {
		return true
	}
	for _, p := range c.patterns {
		if ok, _ := filepath.Match(p, name); ok {
			return true
		}
	}
	return false
}

// readDocument builds the document for a relative path. A file removed
// since listing is fed as a delete.
func (c *Connector) readDocument(rel string) (*domain.Document, error) {
	abs := filepath.Join(c.rootPath, filepath.FromSlash(rel))
	doc := &domain.Document{
		ID:            rel,
		ConnectorName: c.name,
		URI:           abs,
		MIMEType:      detectMIMEType(abs),
		Metadata:      map[string]string{"path": rel},
	}

	info, err := os.Stat(abs)
	if errors.Is(err, fs.ErrNotExist) {
		doc.Action = domain.ActionDelete
		return doc, nil
	}
	if err != nil {
		return nil, err
	}
	doc.Metadata["size"] = strconv.FormatInt(info.Size(), 10)
	doc.Metadata["modified"] = info.ModTime().UTC().Format(time.RFC3339)
	if info.Size() > c.maxSize {
		doc.Metadata["truncated"] = "true"
		return doc, nil
	}

	content, err := os.ReadFile(abs)
	if err != nil {
		return nil, err
	}
	doc.Content = content
	return doc, nil
}

// documentList feeds one batch of files.
type documentList struct {
	conn       *Connector
	files      []string
	next       int
	checkpoint string
}

// Next returns the next document, or nil at the end of the batch.
func (l *documentList) Next(ctx context.Context) (*domain.Document, error) {
	if l.next >= len(l.files) {
		return nil, nil
	}
	if err := l.conn.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	rel := l.files[l.next]
	doc, err := l.conn.readDocument(rel)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rel, err)
	}
	l.next++
	l.checkpoint = rel
	return doc, nil
}

// Checkpoint resumes after the last document returned.
func (l *documentList) Checkpoint() (string, error) {
	return l.checkpoint, nil
}

// fallbackMIMETypes covers common text formats the mime package may not know.
var fallbackMIMETypes = map[string]string{
	".md":       "text/markdown",
	".markdown": "text/markdown",
	".go":       "text/x-go",
	".py":       "text/x-python",
	".rs":       "text/x-rust",
	".ts":       "text/typescript",
	".tsx":      "text/typescript-jsx",
	".jsx":      "text/javascript-jsx",
	".yaml":     "text/yaml",
	".yml":      "text/yaml",
	".toml":     "text/toml",
	".sh":       "text/x-shellscript",
	".bash":     "text/x-shellscript",
	".sql":      "text/x-sql",
}

// detectMIMEType returns the MIME type for a file name without parameters.
func detectMIMEType(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" {
		return "text/plain"
	}
	if t, ok := fallbackMIMETypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		if base, _, ok := strings.Cut(t, ";"); ok {
			return strings.TrimSpace(base)
		}
		return t
	}
	return "application/octet-stream"
}

// isHidden reports whether any path element starts with a dot.
// "." and ".." are not hidden.
func isHidden(path string) bool {
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == "" || part == "." || part == ".." {
			continue
		}
		if strings.HasPrefix(part, ".") {
			return true
		}
	}
	return false
}
