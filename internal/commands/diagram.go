package commands

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"

	"github.com/tildaslashalef/mermaidnest/internal/app"
	"github.com/tildaslashalef/mermaidnest/internal/store"
	"github.com/tildaslashalef/mermaidnest/internal/sync"
	"github.com/tildaslashalef/mermaidnest/internal/ulid"
	"github.com/tildaslashalef/mermaidnest/internal/utils"
)

// DiagramCommand returns the CLI command for managing saved diagrams
func DiagramCommand() *cli.Command {
	return &cli.Command{
		Name:    "diagram",
		Aliases: []string{"d"},
		Usage:   "Manage saved diagrams",
		Subcommands: []*cli.Command{
			{
				Name:      "save",
				Usage:     "Save a diagram from a file or stdin",
				ArgsUsage: "[file]",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "name",
						Aliases: []string{"n"},
						Usage:   "Diagram name (defaults to the file name)",
					},
					&cli.StringFlag{
						Name:  "id",
						Usage: "Update the diagram with this ID instead of creating one",
					},
				},
				Action: saveDiagramAction,
			},
			{
				Name:    "list",
				Aliases: []string{"ls"},
				Usage:   "List saved diagrams",
				Action:  listDiagramsAction,
			},
			{
				Name:      "show",
				Usage:     "Print a diagram's source",
				ArgsUsage: "<id>",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "copy",
						Usage: "Copy the source to the clipboard",
					},
				},
				Action: showDiagramAction,
			},
			{
				Name:      "delete",
				Aliases:   []string{"rm"},
				Usage:     "Delete a diagram locally",
				ArgsUsage: "<id>",
				Action:    deleteDiagramAction,
			},
		},
	}
}

func saveDiagramAction(c *cli.Context) error {
	application, err := app.FromContext(c)
	if err != nil {
		return err
	}

	path := c.Args().First()
	code, err := readSource(path)
	if err != nil {
		return err
	}
	if strings.TrimSpace(code) == "" {
		return fmt.Errorf("diagram source is empty")
	}

	ctx := c.Context
	d := store.Diagram{ID: c.String("id")}
	if d.ID != "" {
		if existing := application.Store.GetDiagram(ctx, d.ID); existing != nil {
			d = *existing
		}
	} else {
		d.ID = ulid.DiagramID()
	}

	switch {
	case c.String("name") != "":
		d.Name = c.String("name")
	case d.Name == "" && path != "":
		d.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	case d.Name == "":
		d.Name = "Untitled"
	}

	d.Code = code
	d.UpdatedAt = store.NowMillis()
	application.Store.PutDiagram(ctx, d)

	utils.PrintSuccess(fmt.Sprintf("Saved %s as %s", color.CyanString(d.Name), color.YellowString(d.ID)))
	application.RequestSync(sync.ReasonLocalChange)
	return nil
}

func readSource(path string) (string, error) {
	if path == "" || path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		return string(data), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	return string(data), nil
}

func listDiagramsAction(c *cli.Context) error {
	application, err := app.FromContext(c)
	if err != nil {
		return err
	}

	diagrams := application.Store.ListDiagrams(c.Context)
	rows := make([][]string, 0, len(diagrams))
	for _, d := range diagrams {
		rows = append(rows, []string{d.ID, d.Name, utils.Preview(d.Code, 40), utils.FormatMillis(d.UpdatedAt)})
	}

	utils.PrintTable(
		[]string{"ID", "Name", "Code", "Updated"},
		rows,
		utils.TableOptions{Title: "Diagrams", EmptyMessage: "No diagrams saved yet"},
	)
	return nil
}

func showDiagramAction(c *cli.Context) error {
	application, err := app.FromContext(c)
	if err != nil {
		return err
	}

	id := c.Args().First()
	if id == "" {
		return fmt.Errorf("diagram ID is required")
	}

	d := application.Store.GetDiagram(c.Context, id)
	if d == nil {
		return fmt.Errorf("diagram %s not found", id)
	}

	utils.PrintHeading(d.Name)
	utils.PrintKeyValue("ID", d.ID)
	utils.PrintKeyValue("Updated", utils.FormatMillis(d.UpdatedAt))
	if len(d.Settings) > 0 {
		utils.PrintKeyValue("Settings", string(d.Settings))
	}
	fmt.Fprintln(utils.Output)
	utils.PrintCode(d.Code)

	if c.Bool("copy") {
		if err := utils.CopyToClipboard(d.Code); err != nil {
			utils.PrintWarning(fmt.Sprintf("Could not copy to clipboard: %s", err))
		} else {
			utils.PrintSuccess("Copied to clipboard")
		}
	}
	return nil
}

func deleteDiagramAction(c *cli.Context) error {
	application, err := app.FromContext(c)
	if err != nil {
		return err
	}

	id := c.Args().First()
	if id == "" {
		return fmt.Errorf("diagram ID is required")
	}
	if application.Store.GetDiagram(c.Context, id) == nil {
		return fmt.Errorf("diagram %s not found", id)
	}

	application.Store.DeleteDiagram(c.Context, id)
	utils.PrintSuccess("Deleted " + id)
	utils.PrintInfo("Deletes are local only; the server copy returns on the next sync")
	return nil
}
