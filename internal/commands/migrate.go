package commands

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/tildaslashalef/mermaidnest/internal/app"
	"github.com/tildaslashalef/mermaidnest/internal/database"
	"github.com/tildaslashalef/mermaidnest/internal/utils"
)

// MigrateCommand returns the CLI command for database migrations
func MigrateCommand() *cli.Command {
	return &cli.Command{
		Name:   "migrate",
		Usage:  "Manage database migrations",
		Hidden: true,
		Subcommands: []*cli.Command{
			{
				Name:  "up",
				Usage: "Apply all pending migrations",
				Action: func(c *cli.Context) error {
					db, err := migrationDB(c)
					if err != nil {
						return err
					}

					utils.PrintInfo("Applying embedded migrations")
					if err := database.RunMigrations(db); err != nil {
						utils.PrintError(fmt.Sprintf("Failed to apply migrations: %s", err))
						return err
					}

					return printSchemaVersion(db)
				},
			},
			{
				Name:  "down",
				Usage: "Revert the last migration",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "steps",
						Usage: "Number of migrations to revert (default: 1)",
						Value: 1,
					},
				},
				Action: func(c *cli.Context) error {
					db, err := migrationDB(c)
					if err != nil {
						return err
					}

					steps := c.Int("steps")
					if steps < 1 {
						return fmt.Errorf("steps must be at least 1")
					}

					utils.PrintWarning(fmt.Sprintf("Reverting %d embedded migration(s)", steps))
					if err := database.RevertMigrations(db, steps); err != nil {
						utils.PrintError(fmt.Sprintf("Failed to revert migrations: %s", err))
						return err
					}

					utils.PrintSuccess("Migration(s) reverted successfully!")
					return printSchemaVersion(db)
				},
			},
		},
	}
}

func migrationDB(c *cli.Context) (*sql.DB, error) {
	application, err := app.FromContext(c)
	if err != nil {
		return nil, err
	}
	db := application.DB()
	if db == nil {
		return nil, errors.New("database unavailable, see the log file for details")
	}
	return db, nil
}

func printSchemaVersion(db *sql.DB) error {
	version, dirty, err := database.SchemaVersion(db)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	utils.PrintKeyValue("Schema version", fmt.Sprintf("%d", version))
	if dirty {
		utils.PrintWarning("Schema is marked dirty")
	}
	return nil
}
