package app

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-feed/internal/adapters/driven/config/file"
	"github.com/custodia-labs/sercha-feed/internal/adapters/driven/pusher/spool"
	"github.com/custodia-labs/sercha-feed/internal/connectors/filesystem"
	"github.com/custodia-labs/sercha-feed/internal/core/domain"
)

func newTestApp(t *testing.T) *App {
	t.Helper()
	root := t.TempDir()
	cfgDir := filepath.Join(root, "config")

	// Keep the spool out of the home directory.
	cfg, err := file.NewConfigStore(cfgDir)
	require.NoError(t, err)
	require.NoError(t, cfg.Set("sink.dir", filepath.Join(root, "spool")))

	a, err := New(Options{ConfigDir: cfgDir, DataDir: filepath.Join(root, "data")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func writeFiles(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("content of "+name), 0600))
	}
	return dir
}

func TestNew_WiresSpoolDir(t *testing.T) {
	a := newTestApp(t)
	assert.Equal(t, spool.PendingDir, filepath.Base(a.Sink.Dir()))
	assert.Equal(t, []string{filesystem.Type}, a.Connectors.SupportedTypes())
}

func TestApp_RunOnceFeedsFilesystem(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(t)
	dir := writeFiles(t, "a.txt", "b.txt", "c.txt")

	require.NoError(t, a.Connectors.Add(ctx, domain.Connector{
		Name:   "docs",
		Type:   filesystem.Type,
		Config: map[string]string{filesystem.ConfigPath: dir},
	}, "docs:60:0:0-0"))

	require.NoError(t, a.Scheduler.RunOnce(ctx))

	feeds, err := filepath.Glob(filepath.Join(a.Sink.Dir(), "*"+spool.FeedExt))
	require.NoError(t, err)
	require.NotEmpty(t, feeds)

	var ids []string
	for _, feed := range feeds {
		records, err := spool.ReadFeed(feed)
		require.NoError(t, err)
		for _, r := range records {
			assert.Equal(t, "docs", r.Connector)
			ids = append(ids, r.ID)
		}
	}
	sort.Strings(ids)
	assert.Equal(t, []string{"a.txt", "b.txt", "c.txt"}, ids)

	history, err := a.Connectors.History(ctx, "docs", 0)
	require.NoError(t, err)
	require.NotEmpty(t, history)
	assert.Equal(t, 3, history[0].DocumentsFed)
}

func TestApp_ApplyConfig(t *testing.T) {
	a := newTestApp(t)

	require.NoError(t, a.Settings.Set("acceptor.max_backoff_retries", "9"))
	require.NoError(t, a.ApplyConfig())

	// An invalid file edit is rejected and the running services keep
	// their previous settings.
	require.NoError(t, a.Config.Set("queue.workers", int64(0)))
	assert.Error(t, a.ApplyConfig())
}

func TestApp_WatchConfigIsIdempotent(t *testing.T) {
	a := newTestApp(t)
	require.NoError(t, a.WatchConfig())
	w := a.watcher
	require.NoError(t, a.WatchConfig())
	assert.Same(t, w, a.watcher)
}
