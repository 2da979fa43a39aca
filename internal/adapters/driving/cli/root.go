// Package cli provides the serchafeed command line.
package cli

import (
	"net/http"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sercha-feed/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-feed/internal/logger"
)

var (
	version = "dev"

	connectorService driving.ConnectorService
	settingsService  driving.SettingsService
	scheduler        driving.TraversalScheduler
	metricsHandler   http.Handler
	configWatcher    func() error

	verbose bool
	logJSON bool
)

var rootCmd = &cobra.Command{
	Use:   "serchafeed",
	Short: "Feed connector documents to a search appliance",
	Long: `serchafeed traverses configured connectors on their schedules and
feeds the documents it finds to the search appliance, pacing each
connector by its load and backing off when the appliance falls behind.`,
	SilenceUsage: true,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logger.SetVerbose(verbose)
		logger.SetJSON(logJSON)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "write logs as JSON")
}

// Services are the ports the commands drive.
type Services struct {
	Connectors  driving.ConnectorService
	Settings    driving.SettingsService
	Scheduler   driving.TraversalScheduler
	Metrics     http.Handler
	WatchConfig func() error
}

// SetVersion sets the version reported by "serchafeed version".
func SetVersion(v string) {
	version = v
}

// SetServices injects the services the commands use.
func SetServices(s Services) {
	connectorService = s.Connectors
	settingsService = s.Settings
	scheduler = s.Scheduler
	metricsHandler = s.Metrics
	configWatcher = s.WatchConfig
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
