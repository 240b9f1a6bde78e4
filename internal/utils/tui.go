package utils

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// Output is where the Print helpers write. Tests swap it.
var Output io.Writer = os.Stdout

// Theme holds the colors shared by every command's output
var Theme = struct {
	Success     text.Colors
	Info        text.Colors
	Warning     text.Colors
	Error       text.Colors
	Heading     text.Colors
	Subtle      text.Colors
	Key         text.Colors
	Code        text.Colors
	Title       text.Colors
	TableHeader text.Colors
	TableBorder text.Colors
	TableRow    text.Colors
	TableAltRow text.Colors
}{
	Success:     text.Colors{text.FgGreen},
	Info:        text.Colors{text.FgBlue},
	Warning:     text.Colors{text.FgYellow},
	Error:       text.Colors{text.FgRed},
	Heading:     text.Colors{text.FgHiCyan, text.Bold},
	Subtle:      text.Colors{text.FgHiBlack},
	Key:         text.Colors{text.Bold},
	Code:        text.Colors{text.FgHiGreen},
	Title:       text.Colors{text.FgHiCyan, text.Bold},
	TableHeader: text.Colors{text.FgHiBlue, text.Bold},
	TableBorder: text.Colors{text.FgBlue},
	TableRow:    text.Colors{text.FgWhite},
	TableAltRow: text.Colors{text.FgWhite, text.Faint},
}

// PrintHeading prints a formatted heading
func PrintHeading(title string) {
	fmt.Fprintln(Output, Theme.Heading.Sprint(title))
}

// PrintSuccess prints a success message
func PrintSuccess(message string) {
	fmt.Fprintln(Output, Theme.Success.Sprint("✓ ")+message)
}

// PrintInfo prints an info message
func PrintInfo(message string) {
	fmt.Fprintln(Output, Theme.Info.Sprint("ℹ ")+message)
}

// PrintWarning prints a warning message
func PrintWarning(message string) {
	fmt.Fprintln(Output, Theme.Warning.Sprint("⚠ ")+message)
}

// PrintError prints an error message
func PrintError(message string) {
	fmt.Fprintln(Output, Theme.Error.Sprint("✗ ")+message)
}

// PrintKeyValue prints a key-value pair
func PrintKeyValue(key, value string) {
	fmt.Fprintf(Output, "%s: %s\n", Theme.Key.Sprint(key), value)
}

// PrintCode prints diagram source indented under the current line
func PrintCode(code string) {
	fmt.Fprintln(Output, CodeBlock(code))
}

// CodeBlock indents every line of code and colors it
func CodeBlock(code string) string {
	lines := strings.Split(strings.TrimRight(code, "\n"), "\n")
	for i, line := range lines {
		lines[i] = "    " + line
	}
	return Theme.Code.Sprint(strings.Join(lines, "\n"))
}

// PrintList prints items as a bulleted list
func PrintList(items []string) {
	for _, item := range items {
		fmt.Fprintf(Output, "%s %s\n", Theme.Info.Sprint("•"), item)
	}
}

// TableOptions defines options for table creation
type TableOptions struct {
	Title string
	// EmptyMessage is printed instead of an empty table
	EmptyMessage string
}

// DefaultTableOptions returns the default table options
func DefaultTableOptions() TableOptions {
	return TableOptions{
		Title:        "Mermaidnest",
		EmptyMessage: "Nothing to show",
	}
}

// CreateTable creates a new table with the shared styling
func CreateTable(options ...TableOptions) table.Writer {
	opts := DefaultTableOptions()
	if len(options) > 0 {
		opts = options[0]
	}

	t := table.NewWriter()
	t.SetOutputMirror(Output)
	if opts.Title != "" {
		t.SetTitle(opts.Title)
	}

	style := table.StyleLight
	style.Color.Header = Theme.TableHeader
	style.Color.Border = Theme.TableBorder
	style.Color.Row = Theme.TableRow
	style.Color.RowAlternate = Theme.TableAltRow
	style.Title.Colors = Theme.Title
	style.Title.Align = text.AlignCenter
	style.Options.SeparateRows = false
	style.Box.PaddingLeft = " "
	style.Box.PaddingRight = " "
	t.SetStyle(style)

	return t
}

// PrintTable prints rows under headers, or the empty message when there are none
func PrintTable(headers []string, rows [][]string, options ...TableOptions) {
	opts := DefaultTableOptions()
	if len(options) > 0 {
		opts = options[0]
	}

	if len(rows) == 0 {
		if opts.EmptyMessage != "" {
			PrintInfo(opts.EmptyMessage)
		}
		return
	}

	t := CreateTable(opts)

	header := table.Row{}
	for _, h := range headers {
		header = append(header, h)
	}
	t.AppendHeader(header)

	for _, row := range rows {
		r := table.Row{}
		for _, cell := range row {
			r = append(r, cell)
		}
		t.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, len(headers))
	for i := range headers {
		configs = append(configs, table.ColumnConfig{
			Number:      i + 1,
			Align:       text.AlignLeft,
			AlignHeader: text.AlignCenter,
		})
	}
	t.SetColumnConfigs(configs)

	t.Render()
}
