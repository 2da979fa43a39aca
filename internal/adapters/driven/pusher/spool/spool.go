// Package spool implements the feed sink as a spool directory. Each flushed
// batch becomes one JSON-lines feed file in the pending directory; the
// downstream indexer consumes a file by removing it.
//
// Sink health is derived from the spool: too many pending files is a local
// backlog, a pending file older than the stall threshold is a downstream
// backlog, and pending files over the byte limit is low memory.
package spool

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/custodia-labs/sercha-feed/internal/core/domain"
	"github.com/custodia-labs/sercha-feed/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-feed/internal/logger"
)

const (
	// PendingDir holds feed files awaiting the downstream indexer.
	PendingDir = "pending"

	// FeedExt is the feed file extension.
	FeedExt = ".jsonl"

	// scanTTL bounds how often the pending directory is listed.
	scanTTL = time.Second
)

// ErrClosed is returned by a pusher used after Close.
var ErrClosed = errors.New("spool pusher closed")

// Ensure interface compliance.
var (
	_ driven.PusherFactory = (*Factory)(nil)
	_ driven.Pusher        = (*Pusher)(nil)
)

// Record is one line of a feed file.
type Record struct {
	ID        string            `json:"id"`
	Connector string            `json:"connector"`
	URI       string            `json:"uri,omitempty"`
	MIMEType  string            `json:"mime_type,omitempty"`
	Action    string            `json:"action"`
	Content   []byte            `json:"content,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// spoolState is a cached listing of the pending directory.
type spoolState struct {
	scanned time.Time
	pending int
	bytes   int64
	oldest  time.Time
}

// Factory creates pushers writing into one spool directory.
type Factory struct {
	cfg     domain.SinkConfig
	pending string
	now     func() time.Time

	mu    sync.Mutex
	state spoolState
}

// NewFactory creates the spool directory layout under cfg.Dir.
func NewFactory(cfg domain.SinkConfig) (*Factory, error) {
	if cfg.Dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, errors.Wrap(err, "getting home directory")
		}
		cfg.Dir = filepath.Join(home, ".sercha-feed", "spool")
	}
	defaults := domain.DefaultSinkConfig()
	if cfg.MaxPendingFeeds <= 0 {
		cfg.MaxPendingFeeds = defaults.MaxPendingFeeds
	}
	if cfg.DownstreamStallAfter <= 0 {
		cfg.DownstreamStallAfter = defaults.DownstreamStallAfter
	}
	if cfg.MaxBufferBytes <= 0 {
		cfg.MaxBufferBytes = defaults.MaxBufferBytes
	}

	pending := filepath.Join(cfg.Dir, PendingDir)
	if err := os.MkdirAll(pending, 0700); err != nil {
		return nil, errors.Wrap(err, "creating spool directory")
	}
	return &Factory{cfg: cfg, pending: pending, now: time.Now}, nil
}

// SetClock replaces the time source. Used by tests.
func (f *Factory) SetClock(now func() time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = now
	f.state = spoolState{}
}

// Dir returns the pending feed directory.
func (f *Factory) Dir() string {
	return f.pending
}

// NewPusher returns a fresh pusher for the connector.
func (f *Factory) NewPusher(ctx context.Context, connectorName string) (driven.Pusher, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &Pusher{factory: f, connector: connectorName}, nil
}

// IsBacklogged reports whether the downstream indexer has fallen behind.
func (f *Factory) IsBacklogged() bool {
	status := f.spoolStatus()
	return status != domain.PusherOK
}

// PendingFeeds returns the number of unconsumed feed files.
func (f *Factory) PendingFeeds() int {
	return f.scan(true).pending
}

// spoolStatus derives the sink status from the pending directory.
func (f *Factory) spoolStatus() domain.PusherStatus {
	st := f.scan(false)
	f.mu.Lock()
	now := f.now()
	f.mu.Unlock()

	switch {
	case !st.oldest.IsZero() && now.Sub(st.oldest) > f.cfg.DownstreamStallAfter:
		return domain.PusherGSAFeedBacklog
	case st.bytes >= f.cfg.MaxBufferBytes:
		return domain.PusherLowMemory
	case st.pending >= f.cfg.MaxPendingFeeds:
		return domain.PusherLocalFeedBacklog
	default:
		return domain.PusherOK
	}
}

// scan lists the pending directory, reusing a recent listing unless force.
func (f *Factory) scan(force bool) spoolState {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.now()
	if !force && !f.state.scanned.IsZero() && now.Sub(f.state.scanned) < scanTTL {
		return f.state
	}

	entries, err := os.ReadDir(f.pending)
	if err != nil {
		logger.Warn("spool: listing %s: %v", f.pending, err)
		return f.state
	}
	st := spoolState{scanned: now}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), FeedExt) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// Consumed between listing and stat.
			continue
		}
		st.pending++
		st.bytes += info.Size()
		if st.oldest.IsZero() || info.ModTime().Before(st.oldest) {
			st.oldest = info.ModTime()
		}
	}
	f.state = st
	return st
}

// invalidate forces the next status check to list the directory.
func (f *Factory) invalidate() {
	f.mu.Lock()
	f.state.scanned = time.Time{}
	f.mu.Unlock()
}

// Pusher buffers one connector's batch and writes it as a feed file on Flush.
type Pusher struct {
	factory   *Factory
	connector string

	mu      sync.Mutex
	records []Record
	closed  bool
}

// Status reports the sink health for the next document.
func (p *Pusher) Status(_ context.Context) domain.PusherStatus {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()

	if closed {
		return domain.PusherDisabled
	}
	return p.factory.spoolStatus()
}

// Take buffers one document.
func (p *Pusher) Take(ctx context.Context, doc *domain.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if doc == nil {
		return errors.Wrap(domain.ErrInvalidInput, "nil document")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	connector := doc.ConnectorName
	if connector == "" {
		connector = p.connector
	}
	p.records = append(p.records, Record{
		ID:        doc.ID,
		Connector: connector,
		URI:       doc.URI,
		MIMEType:  doc.MIMEType,
		Action:    doc.Action.String(),
		Content:   doc.Content,
		Metadata:  doc.Metadata,
	})
	return nil
}

// Flush writes the buffered batch as one feed file. The file appears in the
// pending directory only once complete. A failed write disables the pusher.
func (p *Pusher) Flush(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}
	if len(p.records) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := p.write(); err != nil {
		p.closed = true
		return errors.Wrapf(err, "writing feed for %s", p.connector)
	}
	logger.Debug("spool: %s flushed %d documents", p.connector, len(p.records))
	p.records = nil
	p.factory.invalidate()
	return nil
}

func (p *Pusher) write() error {
	dir := p.factory.pending
	tmp, err := os.CreateTemp(dir, ".feed-*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	enc := json.NewEncoder(tmp)
	for i := range p.records {
		if err := enc.Encode(&p.records[i]); err != nil {
			tmp.Close()
			return err
		}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	p.factory.mu.Lock()
	stamp := p.factory.now().UTC().Format("20060102T150405.000000000")
	p.factory.mu.Unlock()
	name := stamp + "-" + sanitize(p.connector) + "-" + uuid.NewString()[:8] + FeedExt
	return os.Rename(tmp.Name(), filepath.Join(dir, name))
}

// Cancel discards the buffered batch.
func (p *Pusher) Cancel() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.records = nil
	return nil
}

// Close discards the buffer and disables the pusher.
func (p *Pusher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.records = nil
	p.closed = true
	return nil
}

// IsBacklogged reports the shared spool backlog.
func (p *Pusher) IsBacklogged() bool {
	return p.factory.IsBacklogged()
}

// sanitize keeps connector names safe for file names.
func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}

// ReadFeed decodes a feed file.
func ReadFeed(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var records []Record
	dec := json.NewDecoder(f)
	for dec.More() {
		var r Record
		if err := dec.Decode(&r); err != nil {
			return nil, errors.Wrapf(err, "decoding %s", path)
		}
		records = append(records, r)
	}
	return records, nil
}
