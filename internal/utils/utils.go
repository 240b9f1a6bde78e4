// Package utils holds terminal output helpers and small string utilities
// shared by the commands.
package utils

import (
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/goombaio/namegenerator"
	"github.com/muesli/reflow/truncate"
)

// GenerateDeviceName creates a random, memorable device name like "wispy-dust"
func GenerateDeviceName() string {
	seed := time.Now().UTC().UnixNano()
	name := namegenerator.NewNameGenerator(seed).Generate()

	// Some names might have underscores; convert to hyphens for consistency
	return strings.ReplaceAll(name, "_", "-")
}

// SanitizeName turns a display name into a file-name friendly slug
func SanitizeName(name string) string {
	slug := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(name), " ", "-"))

	replacer := strings.NewReplacer(
		"_", "-",
		".", "-",
		",", "-",
		";", "-",
		":", "-",
		"/", "-",
		"\\", "-",
	)
	slug = replacer.Replace(slug)

	// Replace multiple consecutive hyphens with a single hyphen
	for strings.Contains(slug, "--") {
		slug = strings.ReplaceAll(slug, "--", "-")
	}

	return strings.Trim(slug, "-")
}

// Preview flattens code to one line and cuts it to width terminal cells
func Preview(code string, width int) string {
	flat := strings.Join(strings.Fields(code), " ")
	if width <= 0 {
		return flat
	}
	return truncate.StringWithTail(flat, uint(width), "…")
}

// FormatMillis renders a Unix millisecond timestamp for tables
func FormatMillis(ms int64) string {
	if ms <= 0 {
		return "never"
	}
	return time.UnixMilli(ms).Local().Format("2006-01-02 15:04:05")
}

// CopyToClipboard copies the given text to the system clipboard
func CopyToClipboard(text string) error {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("pbcopy")
	case "linux":
		cmd = exec.Command("xclip", "-selection", "clipboard")
	case "windows":
		cmd = exec.Command("clip")
	default:
		return fmt.Errorf("unsupported platform for clipboard operations")
	}

	cmd.Stdin = strings.NewReader(text)
	return cmd.Run()
}
