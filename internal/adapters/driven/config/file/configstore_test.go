package file

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
[queue]
workers = 8
interrupt_timeout = "2m"

[load]
batch_size_multiplier = 1.5
period = "30s"

[acceptor]
feed_backlog_sleep = "750ms"

[log]
json = true
tags = ["a", "b"]
`

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFile), []byte(content), 0600))
}

func TestNewConfigStore_MissingFileIsEmpty(t *testing.T) {
	dir := t.TempDir()
	store, err := NewConfigStore(dir)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, ConfigFile), store.Path())
	_, ok := store.Get("queue.workers")
	assert.False(t, ok)
}

func TestNewConfigStore_CreatesNestedDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	_, err := NewConfigStore(dir)
	require.NoError(t, err)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestConfigStore_DottedKeysAndTypes(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, sampleConfig)
	store, err := NewConfigStore(dir)
	require.NoError(t, err)

	assert.Equal(t, 8, store.GetInt("queue.workers"))
	assert.Equal(t, 2*time.Minute, store.GetDuration("queue.interrupt_timeout"))
	assert.Equal(t, 1.5, store.GetFloat("load.batch_size_multiplier"))
	assert.Equal(t, 8.0, store.GetFloat("queue.workers"))
	assert.Equal(t, 30*time.Second, store.GetDuration("load.period"))
	assert.Equal(t, 750*time.Millisecond, store.GetDuration("acceptor.feed_backlog_sleep"))
	assert.True(t, store.GetBool("log.json"))
	assert.Equal(t, []string{"a", "b"}, store.GetStringSlice("log.tags"))

	assert.Zero(t, store.GetInt("log.json"))
	assert.Empty(t, store.GetString("queue.workers"))
	assert.Zero(t, store.GetDuration("queue.workers"))
}

func TestConfigStore_InvalidTOML(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "[queue\nworkers = ")
	_, err := NewConfigStore(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), ConfigFile)
}

func TestConfigStore_SetPersistsNested(t *testing.T) {
	dir := t.TempDir()
	store, err := NewConfigStore(dir)
	require.NoError(t, err)

	require.NoError(t, store.Set("queue.workers", 6))
	require.NoError(t, store.Set("acceptor.local_backlog_sleep", 250*time.Millisecond))
	require.NoError(t, store.Set("verbose", true))

	raw, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	assert.Contains(t, string(raw), "[queue]")
	assert.Contains(t, string(raw), "[acceptor]")

	info, err := os.Stat(store.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	reopened, err := NewConfigStore(dir)
	require.NoError(t, err)
	assert.Equal(t, 6, reopened.GetInt("queue.workers"))
	assert.Equal(t, 250*time.Millisecond, reopened.GetDuration("acceptor.local_backlog_sleep"))
	assert.True(t, reopened.GetBool("verbose"))
}

func TestConfigStore_SetConflictingKey(t *testing.T) {
	store, err := NewConfigStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Set("queue.workers", 2))
	assert.Error(t, store.Set("queue", 3))
}

func TestConfigStore_LoadPicksUpChanges(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "[queue]\nworkers = 2\n")
	store, err := NewConfigStore(dir)
	require.NoError(t, err)

	writeConfig(t, dir, "[queue]\nworkers = 5\n")
	require.NoError(t, store.Load())
	assert.Equal(t, 5, store.GetInt("queue.workers"))
}

func TestConfigStore_FailedLoadKeepsPrevious(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "[queue]\nworkers = 2\n")
	store, err := NewConfigStore(dir)
	require.NoError(t, err)

	writeConfig(t, dir, "not toml [")
	assert.Error(t, store.Load())
	assert.Equal(t, 2, store.GetInt("queue.workers"))
}

func TestConfigStore_Concurrency(t *testing.T) {
	store, err := NewConfigStore(t.TempDir())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_ = store.Set("queue.workers", i)
		}(i)
		go func() {
			defer wg.Done()
			_ = store.GetInt("queue.workers")
		}()
	}
	wg.Wait()
}

func TestExpandMap(t *testing.T) {
	nested, err := expandMap(map[string]any{
		"a.b.c": 1,
		"a.d":   "x",
		"e":     true,
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"a": map[string]any{
			"b": map[string]any{"c": 1},
			"d": "x",
		},
		"e": true,
	}, nested)
	assert.Equal(t, map[string]any{"a.b.c": 1, "a.d": "x", "e": true}, flattenMap(nested, ""))
}
