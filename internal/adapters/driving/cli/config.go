package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View and change configuration",
	Long: `View and change the settings in config.toml. Settings marked
reloadable take effect in a running scheduler without a restart.`,
	RunE: runConfigList,
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every setting with its effective value",
	RunE:  runConfigList,
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print a setting's effective value",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfigGet,
}

var configSetCmd = &cobra.Command{
	Use:     "set <key> <value>",
	Short:   "Change a setting",
	Example: "  serchafeed config set queue.workers 8\n  serchafeed config set acceptor.feed_backlog_sleep 30s",
	Args:    cobra.ExactArgs(2),
	RunE:    runConfigSet,
}

func init() {
	configCmd.AddCommand(configListCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)
	rootCmd.AddCommand(configCmd)
}

func requireSettingsService() error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}
	return nil
}

func runConfigList(cmd *cobra.Command, _ []string) error {
	if err := requireSettingsService(); err != nil {
		return err
	}

	t := newTable("KEY", "VALUE", "TYPE", "RELOAD", "DESCRIPTION")
	for _, key := range settingsService.Keys() {
		value, err := settingsService.Get(key.Name)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", key.Name, err)
		}
		reload := "restart"
		if key.Reloadable {
			reload = "live"
		}
		t.add([]string{key.Name, value, string(key.Kind), reload, key.Description},
			ui.Normal, ui.Success, ui.Muted, ui.Muted, ui.Muted)
	}
	cmd.Print(t.render())
	return nil
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	if err := requireSettingsService(); err != nil {
		return err
	}
	value, err := settingsService.Get(args[0])
	if err != nil {
		return fmt.Errorf("failed to get setting: %w", err)
	}
	cmd.Println(value)
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	if err := requireSettingsService(); err != nil {
		return err
	}
	if err := settingsService.Set(args[0], args[1]); err != nil {
		return fmt.Errorf("failed to set setting: %w", err)
	}
	cmd.Printf("%s set to %s\n", args[0], args[1])
	return nil
}
