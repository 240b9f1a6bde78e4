package sync

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fatih/color"
	"github.com/urfave/cli/v2"

	"github.com/tildaslashalef/mermaidnest/internal/app"
	"github.com/tildaslashalef/mermaidnest/internal/loggy"
	"github.com/tildaslashalef/mermaidnest/internal/sync"
	"github.com/tildaslashalef/mermaidnest/internal/utils"
)

var errStorageUnavailable = errors.New("local storage unavailable")

// syncAction runs one full sync, with a spinner unless --plain is set
func syncAction(c *cli.Context) error {
	application, err := app.FromContext(c)
	if err != nil {
		return err
	}

	if !application.Config.IsAuthenticated() {
		utils.PrintError("Sync is not configured. Use 'mermaidnest sync account link --token <token>' to configure")
		return sync.ErrNotConfigured
	}

	loggy.Info("Starting manual sync", "plain", c.Bool("plain"))

	if c.Bool("plain") {
		return plainSync(c.Context, application)
	}

	model := NewModel(c.Context, application.Sync, application.Config.Server.URL)
	final, err := tea.NewProgram(model).Run()
	if err != nil {
		loggy.Error("Error running sync TUI", "error", err)
		return fmt.Errorf("error running sync UI: %w", err)
	}

	if result := final.(Model).Result(); result != nil && result.Error != nil {
		return result.Error
	}
	return nil
}

func plainSync(ctx context.Context, application *app.App) error {
	utils.PrintInfo("Syncing with " + color.CyanString(application.Config.Server.URL))

	start := time.Now()
	resp, err := application.Sync.PerformFullSync(sync.WithReason(ctx, sync.ReasonManual))
	if err != nil {
		utils.PrintError(fmt.Sprintf("Sync failed (%s): %s", sync.ClassifyError(err), err))
		return err
	}

	fmt.Fprint(utils.Output, RenderSummary(DefaultStyles(), &SyncCompleteMsg{
		Response: resp,
		Duration: time.Since(start),
	}))
	return nil
}

// linkAccountAction stores the token, verifies it and enables sync
func linkAccountAction(c *cli.Context) error {
	application, err := app.FromContext(c)
	if err != nil {
		return err
	}
	if application.Account == nil {
		return errStorageUnavailable
	}

	deviceName := c.String("name")
	if deviceName == "" {
		deviceName = application.Config.Server.DeviceName
	}
	if deviceName == "" {
		deviceName = utils.GenerateDeviceName()
	}

	if err := application.Account.Link(c.Context, c.String("server"), c.String("token"), deviceName); err != nil {
		return fmt.Errorf("linking account: %w", err)
	}
	application.Reload()

	valid, err := application.Client.VerifyToken(c.Context)
	if err != nil {
		utils.PrintWarning(fmt.Sprintf("Could not verify token: %s", err))
		utils.PrintInfo("The account is linked; syncing starts once the server is reachable")
		return nil
	}
	if !valid {
		if err := application.Account.Unlink(c.Context); err != nil {
			loggy.Warn("Failed to roll back rejected token", "error", err)
		}
		application.Reload()
		return fmt.Errorf("invalid token")
	}

	utils.PrintSuccess("Linked to " + color.CyanString(application.Config.Server.URL) + " as " + color.YellowString(deviceName))
	application.RequestSync(sync.ReasonAuthReady)
	return nil
}

// unlinkAccountAction forgets the token
func unlinkAccountAction(c *cli.Context) error {
	application, err := app.FromContext(c)
	if err != nil {
		return err
	}
	if application.Account == nil {
		return errStorageUnavailable
	}

	if err := application.Account.Unlink(c.Context); err != nil {
		return fmt.Errorf("unlinking account: %w", err)
	}
	application.Reload()

	utils.PrintSuccess("Unlinked from server. Local data is kept.")
	return nil
}

// accountStatusAction verifies the stored token against the server
func accountStatusAction(c *cli.Context) error {
	application, err := app.FromContext(c)
	if err != nil {
		return err
	}

	if !application.Config.IsAuthenticated() {
		utils.PrintError("Not linked to a Mermaidnest account")
		return nil
	}

	valid, err := application.Client.VerifyToken(c.Context)
	if err != nil {
		utils.PrintWarning(fmt.Sprintf("Server unreachable: %s", err))
		return nil
	}

	if !valid {
		utils.PrintError("Token is invalid or expired")
		return nil
	}

	utils.PrintHeading("Account Linked")
	utils.PrintKeyValue("Server URL", application.Config.Server.URL)
	utils.PrintKeyValue("Device Name", application.Config.Server.DeviceName)
	return nil
}

// syncStatusAction shows the checkpoint and recent attempts
func syncStatusAction(c *cli.Context) error {
	application, err := app.FromContext(c)
	if err != nil {
		return err
	}

	utils.PrintHeading("Sync Status")
	utils.PrintKeyValue("Linked", strconv.FormatBool(application.Config.IsAuthenticated()))
	lastSync, _ := application.Store.LastSyncAt(c.Context)
	utils.PrintKeyValue("Last synced", utils.FormatMillis(lastSync))
	fmt.Fprintln(utils.Output)

	logs, err := application.Sync.GetSyncLogs(c.Context, c.Int("limit"), 0)
	if err != nil {
		return fmt.Errorf("error getting sync status: %w", err)
	}

	formatTime := func(t time.Time) string {
		if t.IsZero() {
			return "-"
		}
		return t.Local().Format("Jan 02 15:04:05")
	}

	rows := make([][]string, 0, len(logs))
	for _, entry := range logs {
		status := color.GreenString("✓ Success")
		if !entry.Success {
			status = color.RedString("✗ " + string(entry.ErrorType))
		}
		rows = append(rows, []string{
			formatTime(entry.StartedAt),
			string(entry.Reason),
			status,
			strconv.Itoa(entry.ItemsSynced),
			entry.Duration().Round(time.Millisecond).String(),
			utils.Preview(entry.ErrorMessage, 48),
		})
	}

	utils.PrintTable(
		[]string{"Started", "Reason", "Status", "Items", "Duration", "Error"},
		rows,
		utils.TableOptions{Title: "Sync Logs", EmptyMessage: "No sync attempts recorded"},
	)
	return nil
}

// syncConfigAction shows or updates the server settings
func syncConfigAction(c *cli.Context) error {
	application, err := app.FromContext(c)
	if err != nil {
		return err
	}

	changed := c.IsSet("server") || c.IsSet("device-name") || c.IsSet("enabled")
	if !changed {
		utils.PrintHeading("Current Sync Configuration")
		utils.PrintKeyValue("Server URL", application.Config.Server.URL)
		utils.PrintKeyValue("Device Name", application.Config.Server.DeviceName)
		utils.PrintKeyValue("Sync enabled", strconv.FormatBool(application.Config.Server.Enabled))
		utils.PrintKeyValue("Token", tokenState(application.Config.Server.Token))
		return nil
	}

	if application.Account == nil {
		return errStorageUnavailable
	}

	if c.IsSet("server") {
		application.Config.Server.URL = c.String("server")
	}
	if c.IsSet("device-name") {
		application.Config.Server.DeviceName = c.String("device-name")
	}
	if c.IsSet("enabled") {
		application.Config.Server.Enabled = c.Bool("enabled")
	}

	if err := application.Account.Save(c.Context); err != nil {
		return fmt.Errorf("saving sync configuration: %w", err)
	}
	application.Reload()

	utils.PrintSuccess("Sync configuration updated")
	utils.PrintKeyValue("Server URL", application.Config.Server.URL)
	utils.PrintKeyValue("Device Name", application.Config.Server.DeviceName)
	utils.PrintKeyValue("Sync enabled", strconv.FormatBool(application.Config.Server.Enabled))
	return nil
}

func tokenState(token string) string {
	if token == "" {
		return color.YellowString("not set")
	}
	return color.GreenString("set")
}

// watchAction runs the sync manager until SIGINT or SIGTERM
func watchAction(c *cli.Context) error {
	application, err := app.FromContext(c)
	if err != nil {
		return err
	}

	if !application.Config.IsAuthenticated() {
		utils.PrintWarning("Not linked to an account; changes stay local until you run 'mermaidnest sync account link'")
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	manager := application.NewManager(c.String("dir"))
	manager.Scheduler().OnSynced(func(resp *sync.FullSyncResponse) {
		utils.PrintSuccess(fmt.Sprintf("Synced %d items at %s", resp.ItemCount(), utils.FormatMillis(resp.SyncedAt)))
	})

	if err := manager.Start(ctx); err != nil {
		return fmt.Errorf("starting sync manager: %w", err)
	}

	utils.PrintInfo("Watching for changes. Press Ctrl+C to stop.")
	<-ctx.Done()

	utils.PrintInfo("Stopping...")
	manager.Stop()
	return nil
}
