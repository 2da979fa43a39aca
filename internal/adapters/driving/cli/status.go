package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/custodia-labs/sercha-feed/internal/core/domain"
)

var statusCmd = &cobra.Command{
	Use:   "status [connector]",
	Short: "Show connector scheduling status",
	Long: `Shows, for each scheduled connector, whether it is running, why it was
last skipped, its sink status and the outcome of its last batch.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	if scheduler == nil {
		return errors.New("scheduler not configured")
	}

	ctx := context.Background()

	var statuses []domain.ConnectorStatus
	if len(args) > 0 {
		st, err := scheduler.Status(ctx, args[0])
		if err != nil {
			return fmt.Errorf("failed to get status: %w", err)
		}
		statuses = []domain.ConnectorStatus{*st}
	} else {
		all, err := scheduler.StatusAll(ctx)
		if err != nil {
			return fmt.Errorf("failed to get status: %w", err)
		}
		statuses = all
	}

	if len(statuses) == 0 {
		cmd.Println("No connectors scheduled.")
		return nil
	}

	t := newTable("CONNECTOR", "STATE", "SINK", "DOCS", "NEXT WINDOW", "LAST BATCH")
	errWidth := terminalWidth() / 3
	for i := range statuses {
		st := &statuses[i]
		state, stateStyle := describeState(st)
		last, lastStyle := describeLast(st, errWidth)
		t.add([]string{
			st.ConnectorName,
			state,
			st.SinkStatus.String(),
			strconv.Itoa(st.Load.DocsThisPeriod),
			describeWindow(st.NextWindowSeconds),
			last,
		}, ui.Normal, stateStyle, sinkStyle(st.SinkStatus), ui.Normal, ui.Muted, lastStyle)
	}
	cmd.Print(t.render())
	return nil
}

// describeState summarises what the scheduler is doing with a connector.
func describeState(st *domain.ConnectorStatus) (string, lipgloss.Style) {
	switch {
	case st.Running:
		return st.WorkState.String(), ui.Success
	case st.LastSkip == domain.SkipDisabled:
		return "paused", ui.Muted
	case st.LastSkip != domain.SkipNone:
		return "skipped: " + string(st.LastSkip), ui.Warning
	default:
		return "idle", ui.Normal
	}
}

func describeLast(st *domain.ConnectorStatus, errWidth int) (string, lipgloss.Style) {
	r := st.LastResult
	if r == nil {
		return "-", ui.Muted
	}
	s := fmt.Sprintf("%s, %d docs, %s ago", r.Outcome, r.DocumentsFed, since(r.EndedAt))
	if r.Error != "" {
		s += ": " + truncate(r.Error, errWidth)
	}
	return s, outcomeStyle(r.Outcome)
}

func describeWindow(seconds int) string {
	switch {
	case seconds < 0:
		return "never"
	case seconds == 0:
		return "open"
	default:
		return (time.Duration(seconds) * time.Second).String()
	}
}

func since(t time.Time) time.Duration {
	if t.IsZero() {
		return 0
	}
	return time.Since(t).Round(time.Second)
}
