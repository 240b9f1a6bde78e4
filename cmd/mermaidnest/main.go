package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/tildaslashalef/mermaidnest/internal/app"
	"github.com/tildaslashalef/mermaidnest/internal/commands"
	synccmd "github.com/tildaslashalef/mermaidnest/internal/commands/sync"
)

// Version information - populated at build time
var (
	Version    = "dev"
	BuildTime  = "unknown"
	CommitHash = "unknown"
	Author     = "unknown"
	Email      = "unknown"
)

func main() {
	cliApp := &cli.App{
		Name:  "mermaidnest",
		Usage: "Local-first Mermaid diagram library with server sync",
		Description: "Mermaidnest keeps diagrams, template collections, favorites and editor settings\n" +
			"in a local database and reconciles them with your Mermaidnest account.\n\n" +
			"Every command works offline; syncing starts once an account is linked.",
		Version: fmt.Sprintf("%s (%s)", Version, CommitHash),
		Compiled: func() time.Time {
			t, err := time.Parse(time.RFC3339, BuildTime)
			if err != nil {
				return time.Now()
			}
			return t
		}(),
		Authors: []*cli.Author{
			{
				Name:  Author,
				Email: Email,
			},
		},
		Before: func(c *cli.Context) error {
			application, err := app.New()
			if err != nil {
				return fmt.Errorf("failed to initialize application: %w", err)
			}

			c.App.Metadata = map[string]interface{}{
				"app": application,
			}

			return nil
		},
		After: func(c *cli.Context) error {
			// Waits for any sync a command requested
			if app, ok := c.App.Metadata["app"].(*app.App); ok {
				return app.Shutdown()
			}
			return nil
		},
		Commands: []*cli.Command{
			commands.InitCommand(),
			commands.DiagramCommand(),
			commands.TemplateCommand(),
			commands.SettingsCommand(),
			synccmd.SyncCommand(),
			commands.MigrateCommand(),
		},
	}

	if err := cliApp.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
