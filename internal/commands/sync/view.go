package sync

import (
	"fmt"
	"strings"
	"time"

	"github.com/tildaslashalef/mermaidnest/internal/sync"
	"github.com/tildaslashalef/mermaidnest/internal/utils"
)

// View renders the sync TUI.
func (m Model) View() string {
	if m.canceled {
		return m.styles.Warning.Render("Sync canceled.") + "\n"
	}

	if m.syncing {
		var sb strings.Builder
		sb.WriteString(m.styles.Title.Render(fmt.Sprintf("%s Syncing with %s...", m.spinner.View(), m.server)))
		sb.WriteString("\n\n")
		sb.WriteString(m.help.View(m.keymap))
		sb.WriteString("\n")
		return sb.String()
	}

	if m.result == nil {
		return ""
	}

	if m.result.Error != nil {
		return m.styles.Error.Render(fmt.Sprintf("Sync failed (%s): %s", sync.ClassifyError(m.result.Error), m.result.Error)) + "\n"
	}

	return RenderSummary(m.styles, m.result)
}

// RenderSummary formats what a successful sync brought back
func RenderSummary(styles Styles, result *SyncCompleteMsg) string {
	resp := result.Response

	var sb strings.Builder
	sb.WriteString(styles.Success.Render("Sync complete"))
	sb.WriteString(styles.Subtle.Render(fmt.Sprintf(" in %s", result.Duration.Round(time.Millisecond))))
	sb.WriteString("\n\n")

	row := func(label, value string) {
		sb.WriteString(styles.Paragraph.Render(styles.Label.Render(label) + value))
		sb.WriteString("\n")
	}

	settings := 0
	if resp.Settings.Settings != nil {
		settings = len(resp.Settings.Settings.KeyValueStore)
	}

	row("Diagrams", fmt.Sprintf("%d", len(resp.Diagrams.Diagrams)))
	row("Collections", fmt.Sprintf("%d", len(resp.Templates.Collections)))
	row("Favorites", fmt.Sprintf("%d", len(resp.Templates.Favorites)))
	row("Settings", fmt.Sprintf("%d", settings))
	row("Synced at", utils.FormatMillis(resp.SyncedAt))

	return sb.String()
}
