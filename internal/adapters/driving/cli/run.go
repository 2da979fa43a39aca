package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sercha-feed/internal/logger"
)

var (
	runOnce        bool
	runMetricsAddr string
	runWatchConfig bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the traversal scheduler",
	Long: `Runs the scheduler until interrupted. Every tick each scheduled
connector inside its schedule window with load quota left gets one
traversal batch. On interrupt, running batches are given the shutdown
deadline to finish before they are cancelled.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().BoolVar(&runOnce, "once", false, "run a single scheduling pass and exit")
	runCmd.Flags().StringVar(&runMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9464")
	runCmd.Flags().BoolVar(&runWatchConfig, "watch-config", true, "apply config.toml edits without a restart")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, _ []string) error {
	if scheduler == nil {
		return errors.New("scheduler not configured")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if runOnce {
		cmd.Println("Running one scheduling pass...")
		if err := scheduler.RunOnce(ctx); err != nil {
			return fmt.Errorf("run failed: %w", err)
		}
		cmd.Println("Scheduling pass complete.")
		return nil
	}

	if runWatchConfig && configWatcher != nil {
		if err := configWatcher(); err != nil {
			return fmt.Errorf("failed to watch config: %w", err)
		}
	}

	if runMetricsAddr != "" {
		shutdown, err := serveMetrics(runMetricsAddr)
		if err != nil {
			return err
		}
		defer shutdown()
	}

	cmd.Println("Scheduler running. Press Ctrl+C to stop.")
	runErr := scheduler.Start(ctx)
	stopErr := scheduler.Stop()
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return fmt.Errorf("scheduler failed: %w", runErr)
	}
	if stopErr != nil {
		return fmt.Errorf("shutdown failed: %w", stopErr)
	}
	cmd.Println("Scheduler stopped.")
	return nil
}

// serveMetrics starts the metrics endpoint and returns its shutdown func.
func serveMetrics(addr string) (func(), error) {
	if metricsHandler == nil {
		return nil, errors.New("metrics not configured")
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metricsHandler)
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics: server on %s stopped: %v", addr, err)
		}
	}()
	logger.Info("metrics: serving on %s/metrics", addr)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
