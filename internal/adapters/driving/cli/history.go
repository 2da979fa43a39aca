package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history <connector>",
	Short: "Show recent traversal batches",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "maximum number of batches")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	if connectorService == nil {
		return errors.New("connector service not configured")
	}

	ctx := context.Background()
	results, err := connectorService.History(ctx, args[0], historyLimit)
	if err != nil {
		return fmt.Errorf("failed to get history: %w", err)
	}

	if len(results) == 0 {
		cmd.Printf("No batches recorded for %s.\n", args[0])
		return nil
	}

	t := newTable("STARTED", "OUTCOME", "DOCS", "HINT", "DURATION", "ERROR")
	errWidth := terminalWidth() / 3
	for i := range results {
		r := &results[i]
		t.add([]string{
			r.StartedAt.Local().Format(time.DateTime),
			string(r.Outcome),
			strconv.Itoa(r.DocumentsFed),
			strconv.Itoa(r.BatchHint),
			r.EndedAt.Sub(r.StartedAt).Round(time.Millisecond).String(),
			truncate(r.Error, errWidth),
		}, ui.Muted, outcomeStyle(r.Outcome), ui.Normal, ui.Normal, ui.Normal, ui.Error)
	}
	cmd.Print(t.render())
	return nil
}
