// Command serchafeed schedules connector traversals and feeds the
// documents to a search appliance.
package main

import (
	"os"

	"github.com/custodia-labs/sercha-feed/internal/adapters/driving/cli"
	"github.com/custodia-labs/sercha-feed/internal/app"
	"github.com/custodia-labs/sercha-feed/internal/logger"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	a, err := app.New(app.Options{
		ConfigDir: os.Getenv("SERCHA_FEED_CONFIG_DIR"),
		DataDir:   os.Getenv("SERCHA_FEED_DATA_DIR"),
	})
	if err != nil {
		logger.Error("startup failed: %v", err)
		os.Exit(1)
	}

	cli.SetVersion(version)
	cli.SetServices(cli.Services{
		Connectors:  a.Connectors,
		Settings:    a.Settings,
		Scheduler:   a.Scheduler,
		Metrics:     a.Metrics.Handler(),
		WatchConfig: a.WatchConfig,
	})

	err = cli.Execute()
	if closeErr := a.Close(); closeErr != nil {
		logger.Warn("shutdown: %v", closeErr)
	}
	if err != nil {
		os.Exit(1)
	}
}
