package cli

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sercha-feed/internal/core/domain"
)

// defaultLoad is the documents-per-period of a connector added without a
// schedule.
const defaultLoad = 60

var (
	connectorType     string
	connectorSchedule string
	connectorConfig   map[string]string
)

var connectorCmd = &cobra.Command{
	Use:     "connector",
	Aliases: []string{"connectors"},
	Short:   "Manage connectors and their schedules",
}

var connectorAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add a connector",
	Long: `Adds a connector with its schedule. The schedule has the form

  name:load:retryDelayMillis:start-end[:start-end...]

where load is the number of documents per load period and each
interval is a range of hours. Without --schedule the connector runs
around the clock at the default load.`,
	Example: `  serchafeed connector add docs --type filesystem --config path=/srv/docs
  serchafeed connector add docs --type filesystem --config path=/srv/docs --schedule docs:120:60000:22-6`,
	Args: cobra.ExactArgs(1),
	RunE: runConnectorAdd,
}

var connectorListCmd = &cobra.Command{
	Use:   "list",
	Short: "List connectors",
	RunE:  runConnectorList,
}

var connectorShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show a connector's configuration and schedule",
	Args:  cobra.ExactArgs(1),
	RunE:  runConnectorShow,
}

var connectorScheduleCmd = &cobra.Command{
	Use:   "schedule <schedule>",
	Short: "Replace a connector's schedule",
	Long:  `Replaces the schedule of the connector the schedule string names.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runConnectorSchedule,
}

var connectorPauseCmd = &cobra.Command{
	Use:   "pause <name>",
	Short: "Stop scheduling a connector",
	Args:  cobra.ExactArgs(1),
	RunE:  runConnectorPause,
}

var connectorResumeCmd = &cobra.Command{
	Use:   "resume <name>",
	Short: "Resume scheduling a paused connector",
	Args:  cobra.ExactArgs(1),
	RunE:  runConnectorResume,
}

var connectorRemoveCmd = &cobra.Command{
	Use:     "remove <name>",
	Aliases: []string{"rm"},
	Short:   "Remove a connector with its schedule, checkpoint and history",
	Args:    cobra.ExactArgs(1),
	RunE:    runConnectorRemove,
}

var connectorResetCmd = &cobra.Command{
	Use:   "reset <name>",
	Short: "Restart a connector's traversal from the beginning",
	Args:  cobra.ExactArgs(1),
	RunE:  runConnectorReset,
}

var connectorTypesCmd = &cobra.Command{
	Use:   "types",
	Short: "List supported connector types",
	RunE:  runConnectorTypes,
}

func init() {
	connectorAddCmd.Flags().StringVarP(&connectorType, "type", "t", "", "connector type")
	connectorAddCmd.Flags().StringVarP(&connectorSchedule, "schedule", "s", "", "schedule string")
	connectorAddCmd.Flags().StringToStringVarP(&connectorConfig, "config", "c", nil, "connector setting as key=value")
	_ = connectorAddCmd.MarkFlagRequired("type")

	connectorCmd.AddCommand(connectorAddCmd)
	connectorCmd.AddCommand(connectorListCmd)
	connectorCmd.AddCommand(connectorShowCmd)
	connectorCmd.AddCommand(connectorScheduleCmd)
	connectorCmd.AddCommand(connectorPauseCmd)
	connectorCmd.AddCommand(connectorResumeCmd)
	connectorCmd.AddCommand(connectorRemoveCmd)
	connectorCmd.AddCommand(connectorResetCmd)
	connectorCmd.AddCommand(connectorTypesCmd)
	rootCmd.AddCommand(connectorCmd)
}

func requireConnectorService() error {
	if connectorService == nil {
		return errors.New("connector service not configured")
	}
	return nil
}

func runConnectorAdd(cmd *cobra.Command, args []string) error {
	if err := requireConnectorService(); err != nil {
		return err
	}

	name := args[0]
	schedule := connectorSchedule
	if schedule == "" {
		sched, err := domain.NewSchedule(name, defaultLoad, domain.DefaultRetryDelayMillis, "0-0")
		if err != nil {
			return err
		}
		schedule = sched.String()
	}

	c := domain.Connector{Name: name, Type: connectorType, Config: connectorConfig}
	if err := connectorService.Add(context.Background(), c, schedule); err != nil {
		return fmt.Errorf("failed to add connector: %w", err)
	}

	cmd.Printf("Connector %s added with schedule %s\n", name, schedule)
	return nil
}

func runConnectorList(cmd *cobra.Command, _ []string) error {
	if err := requireConnectorService(); err != nil {
		return err
	}

	ctx := context.Background()
	list, err := connectorService.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list connectors: %w", err)
	}

	if len(list) == 0 {
		cmd.Println("No connectors configured.")
		return nil
	}

	t := newTable("NAME", "TYPE", "SCHEDULE")
	for i := range list {
		schedule := "-"
		style := ui.Muted
		if sched, err := connectorService.GetSchedule(ctx, list[i].Name); err == nil {
			schedule = sched.String()
			style = ui.Normal
			if sched.Disabled {
				style = ui.Muted
			}
		}
		t.add([]string{list[i].Name, list[i].Type, schedule}, ui.Normal, ui.Normal, style)
	}
	cmd.Print(t.render())
	return nil
}

func runConnectorShow(cmd *cobra.Command, args []string) error {
	if err := requireConnectorService(); err != nil {
		return err
	}

	ctx := context.Background()
	c, err := connectorService.Get(ctx, args[0])
	if err != nil {
		return fmt.Errorf("failed to get connector: %w", err)
	}

	cmd.Println(ui.Title.Render(c.Name))
	cmd.Printf("  Type:     %s\n", c.Type)
	if !c.CreatedAt.IsZero() {
		cmd.Printf("  Created:  %s\n", c.CreatedAt.Local().Format(time.DateTime))
	}

	if sched, err := connectorService.GetSchedule(ctx, c.Name); err == nil {
		cmd.Printf("  Schedule: %s\n", sched.String())
		state := "active"
		if sched.Disabled {
			state = "paused"
		}
		cmd.Printf("  State:    %s\n", state)
	}

	if len(c.Config) > 0 {
		cmd.Println(ui.Header.Render("  Config"))
		keys := make([]string, 0, len(c.Config))
		for k := range c.Config {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			cmd.Printf("    %s = %s\n", k, c.Config[k])
		}
	}
	return nil
}

func runConnectorSchedule(cmd *cobra.Command, args []string) error {
	if err := requireConnectorService(); err != nil {
		return err
	}

	sched, err := connectorService.SetSchedule(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("failed to set schedule: %w", err)
	}

	cmd.Printf("Schedule for %s set to %s\n", sched.ConnectorName, sched.String())
	return nil
}

func runConnectorPause(cmd *cobra.Command, args []string) error {
	if err := requireConnectorService(); err != nil {
		return err
	}
	if err := connectorService.Pause(context.Background(), args[0]); err != nil {
		return fmt.Errorf("failed to pause connector: %w", err)
	}
	cmd.Printf("Connector %s paused.\n", args[0])
	return nil
}

func runConnectorResume(cmd *cobra.Command, args []string) error {
	if err := requireConnectorService(); err != nil {
		return err
	}
	if err := connectorService.Resume(context.Background(), args[0]); err != nil {
		return fmt.Errorf("failed to resume connector: %w", err)
	}
	cmd.Printf("Connector %s resumed.\n", args[0])
	return nil
}

func runConnectorRemove(cmd *cobra.Command, args []string) error {
	if err := requireConnectorService(); err != nil {
		return err
	}
	if err := connectorService.Remove(context.Background(), args[0]); err != nil {
		return fmt.Errorf("failed to remove connector: %w", err)
	}
	cmd.Printf("Connector %s removed.\n", args[0])
	return nil
}

func runConnectorReset(cmd *cobra.Command, args []string) error {
	if err := requireConnectorService(); err != nil {
		return err
	}
	if err := connectorService.ResetCheckpoint(context.Background(), args[0]); err != nil {
		return fmt.Errorf("failed to reset connector: %w", err)
	}
	cmd.Printf("Connector %s will traverse from the beginning.\n", args[0])
	return nil
}

func runConnectorTypes(cmd *cobra.Command, _ []string) error {
	if err := requireConnectorService(); err != nil {
		return err
	}
	cmd.Println(strings.Join(connectorService.SupportedTypes(), "\n"))
	return nil
}
