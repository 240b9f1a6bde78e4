package commands

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/urfave/cli/v2"

	"github.com/tildaslashalef/mermaidnest/internal/app"
	"github.com/tildaslashalef/mermaidnest/internal/store"
	"github.com/tildaslashalef/mermaidnest/internal/sync"
	"github.com/tildaslashalef/mermaidnest/internal/utils"
)

// SettingsCommand returns the CLI command for editor settings. Keys are
// stored under the mermaid. namespace; the prefix may be omitted.
func SettingsCommand() *cli.Command {
	return &cli.Command{
		Name:  "settings",
		Usage: "Manage synced editor settings",
		Subcommands: []*cli.Command{
			{
				Name:      "get",
				Usage:     "Print a setting",
				ArgsUsage: "<key>",
				Action:    getSettingAction,
			},
			{
				Name:      "set",
				Usage:     "Store a setting",
				ArgsUsage: "<key> <value>",
				Description: "config and theme hold JSON objects and are validated; " +
					"every other key is a plain string",
				Action: setSettingAction,
			},
			{
				Name:    "list",
				Aliases: []string{"ls"},
				Usage:   "List all settings",
				Action:  listSettingsAction,
			},
			{
				Name:      "unset",
				Usage:     "Remove a setting locally",
				ArgsUsage: "<key>",
				Action:    unsetSettingAction,
			},
		},
	}
}

func settingKey(c *cli.Context) (string, error) {
	args, err := requireArgs(c, 1)
	if err != nil {
		return "", err
	}
	key := store.NamespacedKey(args[0])
	if key == store.KeyLastSyncAt {
		return "", fmt.Errorf("%s is maintained by sync and cannot be edited", key)
	}
	return key, nil
}

func getSettingAction(c *cli.Context) error {
	application, err := app.FromContext(c)
	if err != nil {
		return err
	}
	args, err := requireArgs(c, 1)
	if err != nil {
		return err
	}

	key := store.NamespacedKey(args[0])
	value := application.Store.GetSetting(c.Context, key)
	if value == "" {
		return fmt.Errorf("%s is not set", key)
	}

	fmt.Fprintln(utils.Output, value)
	return nil
}

func setSettingAction(c *cli.Context) error {
	application, err := app.FromContext(c)
	if err != nil {
		return err
	}
	key, err := settingKey(c)
	if err != nil {
		return err
	}
	if c.NArg() < 2 {
		return fmt.Errorf("value is required")
	}

	value := c.Args().Get(1)
	if (key == store.KeyMermaidConfig || key == store.KeyThemeSettings) && !json.Valid([]byte(value)) {
		return fmt.Errorf("%s must be valid JSON", key)
	}

	application.Store.SetSetting(c.Context, key, value)
	application.RequestSync(sync.ReasonLocalChange)

	utils.PrintSuccess(fmt.Sprintf("Set %s", key))
	return nil
}

func listSettingsAction(c *cli.Context) error {
	application, err := app.FromContext(c)
	if err != nil {
		return err
	}

	settings := application.Store.ListSettings(c.Context, store.SettingsPrefix)
	keys := make([]string, 0, len(settings))
	for k := range settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	rows := make([][]string, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, []string{k, utils.Preview(settings[k], 60)})
	}

	utils.PrintTable(
		[]string{"Key", "Value"},
		rows,
		utils.TableOptions{Title: "Settings", EmptyMessage: "No settings stored"},
	)
	return nil
}

func unsetSettingAction(c *cli.Context) error {
	application, err := app.FromContext(c)
	if err != nil {
		return err
	}
	key, err := settingKey(c)
	if err != nil {
		return err
	}

	application.Store.DeleteSetting(c.Context, key)
	utils.PrintSuccess("Removed " + key)
	return nil
}
