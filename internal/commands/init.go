package commands

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"

	"github.com/tildaslashalef/mermaidnest/internal/config"
	"github.com/tildaslashalef/mermaidnest/internal/database"
	"github.com/tildaslashalef/mermaidnest/internal/utils"
)

// InitCommand returns the CLI command for initializing Mermaidnest
func InitCommand() *cli.Command {
	return &cli.Command{
		Name:  "init",
		Usage: "Initialize or update the Mermaidnest environment",
		Description: "Sets up the configuration directory and the local database. " +
			"Run it once after installing, or after upgrading to apply new migrations.",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "backup",
				Usage: "Back up and replace an existing .env file",
			},
		},
		Action: func(c *cli.Context) error {
			utils.PrintHeading("Initializing Mermaidnest")

			configDir, err := config.DefaultConfigDir()
			if err != nil {
				utils.PrintError(err.Error())
				return err
			}
			utils.PrintInfo("Configuration directory: " + color.YellowString("%s", configDir))

			if err := config.SetupConfigDirectory(configDir, c.Bool("backup")); err != nil {
				utils.PrintError(fmt.Sprintf("Failed to create config directory: %s", err))
				return fmt.Errorf("failed to create config directory: %w", err)
			}

			configFilePath := filepath.Join(configDir, ".env")
			cfg, err := config.LoadFromEnv(configDir, configFilePath)
			if err != nil {
				utils.PrintError(fmt.Sprintf("Failed to load configuration: %s", err))
				return fmt.Errorf("failed to load configuration: %w", err)
			}

			utils.PrintInfo("Applying database migrations...")
			version, err := initDatabase(c.Context, cfg)
			if err != nil {
				utils.PrintError(err.Error())
				return err
			}

			utils.PrintSuccess("Mermaidnest initialized successfully!")
			utils.PrintInfo(fmt.Sprintf("Schema version: %d", version))
			utils.PrintInfo("Configuration file: " + color.YellowString("%s", configFilePath))
			utils.PrintInfo("Database location: " + color.YellowString("%s", cfg.Database.Path))
			utils.PrintInfo("Log file location: " + color.YellowString("%s", cfg.Logging.Output))
			fmt.Fprintln(utils.Output)
			utils.PrintInfo("Link an account with " + color.CyanString("mermaidnest sync account link --token <token>"))

			return nil
		},
	}
}

func initDatabase(ctx context.Context, cfg *config.Config) (uint, error) {
	db, err := database.Open(ctx, &cfg.Database)
	if err != nil {
		return 0, fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := database.RunMigrations(db); err != nil {
		return 0, err
	}

	version, _, err := database.SchemaVersion(db)
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return version, nil
}
