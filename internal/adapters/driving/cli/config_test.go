package cli

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-feed/internal/core/domain"
)

func setupConfigTest(t *testing.T) *mockSettingsService {
	t.Helper()
	m := &mockSettingsService{
		keys: []domain.SettingKey{
			{Name: "queue.workers", Kind: domain.SettingInt, Description: "worker goroutines"},
			{Name: "acceptor.feed_backlog_sleep", Kind: domain.SettingDuration, Description: "backoff base", Reloadable: true},
		},
		values: map[string]string{
			"queue.workers":               "4",
			"acceptor.feed_backlog_sleep": "1m0s",
		},
	}
	withServices(t, Services{Settings: m})
	return m
}

func TestConfigCmd_List(t *testing.T) {
	setupConfigTest(t)

	for _, args := range [][]string{{"config"}, {"config", "list"}} {
		out, err := execute(t, args...)

		require.NoError(t, err)
		assert.Contains(t, out, "queue.workers")
		assert.Contains(t, out, "restart")
		assert.Contains(t, out, "acceptor.feed_backlog_sleep")
		assert.Contains(t, out, "live")
		assert.Contains(t, out, "1m0s")
	}
}

func TestConfigCmd_Get(t *testing.T) {
	setupConfigTest(t)

	out, err := execute(t, "config", "get", "queue.workers")
	require.NoError(t, err)
	assert.Equal(t, "4\n", out)

	_, err = execute(t, "config", "get", "nope")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestConfigCmd_Set(t *testing.T) {
	m := setupConfigTest(t)

	out, err := execute(t, "config", "set", "queue.workers", "8")

	require.NoError(t, err)
	assert.Equal(t, "8", m.values["queue.workers"])
	assert.Contains(t, out, "queue.workers set to 8")

	m.setErr = errors.New("workers must be positive")
	_, err = execute(t, "config", "set", "queue.workers", "0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to set setting: workers must be positive")
}

func TestConfigCmd_ServiceNotConfigured(t *testing.T) {
	withServices(t, Services{})

	_, err := execute(t, "config", "list")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "settings service not configured")
}
