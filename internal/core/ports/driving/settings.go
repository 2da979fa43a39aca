package driving

import "github.com/custodia-labs/sercha-feed/internal/core/domain"

// SettingsService reads and updates the feed configuration.
type SettingsService interface {
	// FeedConfig returns the effective configuration, defaults filled in.
	// The result is validated.
	FeedConfig() (domain.FeedConfig, error)

	// Keys lists every known configuration key.
	Keys() []domain.SettingKey

	// Get returns the effective value of a key in its text form.
	Get(key string) (string, error)

	// Set parses value for key and persists it. The resulting
	// configuration must remain valid.
	Set(key, value string) error
}
