// Package sync holds the sync command tree and its one-shot progress TUI.
package sync

import (
	"github.com/urfave/cli/v2"
)

// SyncCommand returns the CLI command for syncing with the server
func SyncCommand() *cli.Command {
	return &cli.Command{
		Name:        "sync",
		Usage:       "Sync local data with the Mermaidnest server",
		Description: "Send diagrams, template collections, favorites and settings to the server and apply its answer",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "plain",
				Usage: "Print the result without the interactive spinner",
			},
		},
		Subcommands: []*cli.Command{
			{
				Name:        "account",
				Usage:       "Manage server account connection",
				Description: "Link or unlink this device with your Mermaidnest account",
				Subcommands: []*cli.Command{
					{
						Name:        "link",
						Usage:       "Link to server account",
						Description: "Store a personal access token and enable sync",
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:     "token",
								Usage:    "Personal access token from the web interface",
								Required: true,
							},
							&cli.StringFlag{
								Name:  "server",
								Usage: "Server URL (defaults to the configured one)",
							},
							&cli.StringFlag{
								Name:  "name",
								Usage: "A name for this device (e.g., 'Work Laptop')",
							},
						},
						Action: linkAccountAction,
					},
					{
						Name:        "unlink",
						Usage:       "Unlink from server account",
						Description: "Forget the token and stop syncing; local data is kept",
						Action:      unlinkAccountAction,
					},
					{
						Name:        "status",
						Usage:       "Check account connection status",
						Description: "Verify that the stored token is accepted by the server",
						Action:      accountStatusAction,
					},
				},
			},
			{
				Name:        "status",
				Usage:       "Show sync status",
				Description: "Display the checkpoint and the most recent sync attempts",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Number of attempts to show",
						Value: 20,
					},
				},
				Action: syncStatusAction,
			},
			{
				Name:        "config",
				Usage:       "Configure sync settings",
				Description: "Show or modify the server URL, device name and enabled flag",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "server",
						Usage: "Server URL for syncing",
					},
					&cli.StringFlag{
						Name:  "device-name",
						Usage: "Device name sent with sync requests",
					},
					&cli.BoolFlag{
						Name:  "enabled",
						Usage: "Enable or disable syncing",
					},
				},
				Action: syncConfigAction,
			},
			{
				Name:        "watch",
				Usage:       "Keep syncing in the background",
				Description: "Run until interrupted: sync on local changes, on a timer and when the server becomes reachable",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "dir",
						Usage: "Directory of .mmd files to import as diagrams",
					},
				},
				Action: watchAction,
			},
		},
		Action: syncAction,
	}
}
