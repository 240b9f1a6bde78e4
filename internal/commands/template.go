package commands

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"

	"github.com/tildaslashalef/mermaidnest/internal/app"
	"github.com/tildaslashalef/mermaidnest/internal/store"
	"github.com/tildaslashalef/mermaidnest/internal/sync"
	"github.com/tildaslashalef/mermaidnest/internal/ulid"
	"github.com/tildaslashalef/mermaidnest/internal/utils"
)

// TemplateCommand returns the CLI command for the template gallery,
// collections and favorites
func TemplateCommand() *cli.Command {
	return &cli.Command{
		Name:    "template",
		Aliases: []string{"t"},
		Usage:   "Browse templates and manage collections and favorites",
		Subcommands: []*cli.Command{
			{
				Name:  "catalog",
				Usage: "List built-in templates",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "category",
						Aliases: []string{"c"},
						Usage:   "Only show templates in this category",
					},
				},
				Action: catalogAction,
			},
			{
				Name:    "collection",
				Aliases: []string{"col"},
				Usage:   "Manage template collections",
				Subcommands: []*cli.Command{
					{
						Name:      "create",
						Usage:     "Create an empty collection",
						ArgsUsage: "<name>",
						Action:    createCollectionAction,
					},
					{
						Name:    "list",
						Aliases: []string{"ls"},
						Usage:   "List collections",
						Action:  listCollectionsAction,
					},
					{
						Name:      "add",
						Usage:     "Add a built-in template to a collection",
						ArgsUsage: "<collection-id> <template-id>",
						Action:    addToCollectionAction,
					},
					{
						Name:      "remove",
						Usage:     "Remove a built-in or custom template from a collection",
						ArgsUsage: "<collection-id> <template-id>",
						Action:    removeFromCollectionAction,
					},
					{
						Name:      "add-custom",
						Usage:     "Add a custom template from a file or stdin",
						ArgsUsage: "<collection-id> [file]",
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:    "name",
								Aliases: []string{"n"},
								Usage:   "Template name (defaults to the file name)",
							},
						},
						Action: addCustomTemplateAction,
					},
					{
						Name:      "delete",
						Aliases:   []string{"rm"},
						Usage:     "Delete a collection and its custom templates locally",
						ArgsUsage: "<collection-id>",
						Action:    deleteCollectionAction,
					},
				},
			},
			{
				Name:    "favorite",
				Aliases: []string{"fav"},
				Usage:   "Manage favorite templates",
				Subcommands: []*cli.Command{
					{
						Name:      "add",
						Usage:     "Mark a built-in template as favorite",
						ArgsUsage: "<template-id>",
						Action:    addFavoriteAction,
					},
					{
						Name:      "remove",
						Aliases:   []string{"rm"},
						Usage:     "Unmark a favorite template",
						ArgsUsage: "<template-id>",
						Action:    removeFavoriteAction,
					},
					{
						Name:    "list",
						Aliases: []string{"ls"},
						Usage:   "List favorite templates",
						Action:  listFavoritesAction,
					},
				},
			},
		},
	}
}

func catalogAction(c *cli.Context) error {
	application, err := app.FromContext(c)
	if err != nil {
		return err
	}

	category := c.String("category")
	var rows [][]string
	for _, t := range application.Catalog.List() {
		if category != "" && !strings.EqualFold(t.Category, category) {
			continue
		}
		star := ""
		if application.Store.IsFavorite(c.Context, t.ID) {
			star = color.YellowString("★")
		}
		rows = append(rows, []string{t.ID, t.Name, t.Category, star})
	}

	utils.PrintTable(
		[]string{"ID", "Name", "Category", "Fav"},
		rows,
		utils.TableOptions{Title: "Templates", EmptyMessage: "No templates in category " + category},
	)
	return nil
}

// requireArgs returns the first n positional arguments or an error naming usage
func requireArgs(c *cli.Context, n int) ([]string, error) {
	if c.NArg() < n {
		return nil, fmt.Errorf("usage: %s %s", c.Command.FullName(), c.Command.ArgsUsage)
	}
	return c.Args().Slice()[:n], nil
}

func loadCollection(c *cli.Context, application *app.App, id string) (*store.TemplateCollection, error) {
	collection := application.Store.GetCollection(c.Context, id)
	if collection == nil {
		return nil, fmt.Errorf("collection %s not found", id)
	}
	return collection, nil
}

// saveCollection stamps and stores the collection, then syncs immediately
func saveCollection(c *cli.Context, application *app.App, collection *store.TemplateCollection) {
	collection.UpdatedAt = store.NowMillis()
	application.Store.PutCollection(c.Context, *collection)
	application.RequestSync(sync.ReasonTemplateEdit)
}

func createCollectionAction(c *cli.Context) error {
	application, err := app.FromContext(c)
	if err != nil {
		return err
	}

	name := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if name == "" {
		return fmt.Errorf("collection name is required")
	}

	now := store.NowMillis()
	collection := &store.TemplateCollection{
		ID:              ulid.CollectionID(),
		Name:            name,
		TemplateIDs:     []string{},
		CustomTemplates: []store.CustomTemplate{},
		CreatedAt:       now,
	}
	saveCollection(c, application, collection)

	utils.PrintSuccess(fmt.Sprintf("Created collection %s (%s)", color.CyanString(name), color.YellowString(collection.ID)))
	return nil
}

func listCollectionsAction(c *cli.Context) error {
	application, err := app.FromContext(c)
	if err != nil {
		return err
	}

	collections := application.Store.ListCollections(c.Context)
	rows := make([][]string, 0, len(collections))
	for _, col := range collections {
		names := make([]string, 0, len(col.TemplateIDs)+len(col.CustomTemplates))
		for _, id := range col.TemplateIDs {
			if t, ok := application.Catalog.Get(id); ok {
				names = append(names, t.Name)
			} else {
				names = append(names, id)
			}
		}
		for _, t := range col.CustomTemplates {
			names = append(names, t.Name+"*")
		}

		rows = append(rows, []string{
			col.ID,
			col.Name,
			strconv.Itoa(len(col.TemplateIDs)),
			strconv.Itoa(len(col.CustomTemplates)),
			utils.Preview(strings.Join(names, ", "), 40),
			utils.FormatMillis(col.UpdatedAt),
		})
	}

	utils.PrintTable(
		[]string{"ID", "Name", "Built-in", "Custom", "Templates", "Updated"},
		rows,
		utils.TableOptions{Title: "Collections", EmptyMessage: "No collections yet"},
	)
	return nil
}

func addToCollectionAction(c *cli.Context) error {
	application, err := app.FromContext(c)
	if err != nil {
		return err
	}
	args, err := requireArgs(c, 2)
	if err != nil {
		return err
	}

	templateID := args[1]
	if !application.Catalog.Exists(templateID) {
		return fmt.Errorf("unknown template %s, see 'mermaidnest template catalog'", templateID)
	}

	collection, err := loadCollection(c, application, args[0])
	if err != nil {
		return err
	}
	if collection.HasTemplate(templateID) {
		utils.PrintInfo(fmt.Sprintf("%s is already in %s", templateID, collection.Name))
		return nil
	}

	collection.TemplateIDs = append(collection.TemplateIDs, templateID)
	saveCollection(c, application, collection)

	utils.PrintSuccess(fmt.Sprintf("Added %s to %s", templateID, color.CyanString(collection.Name)))
	return nil
}

func removeFromCollectionAction(c *cli.Context) error {
	application, err := app.FromContext(c)
	if err != nil {
		return err
	}
	args, err := requireArgs(c, 2)
	if err != nil {
		return err
	}

	collection, err := loadCollection(c, application, args[0])
	if err != nil {
		return err
	}

	id := args[1]
	removed := false

	templateIDs := make([]string, 0, len(collection.TemplateIDs))
	for _, t := range collection.TemplateIDs {
		if t == id {
			removed = true
			continue
		}
		templateIDs = append(templateIDs, t)
	}

	custom := make([]store.CustomTemplate, 0, len(collection.CustomTemplates))
	for _, t := range collection.CustomTemplates {
		if t.ID == id {
			removed = true
			continue
		}
		custom = append(custom, t)
	}

	if !removed {
		return fmt.Errorf("%s is not in collection %s", id, collection.Name)
	}

	collection.TemplateIDs = templateIDs
	collection.CustomTemplates = custom
	saveCollection(c, application, collection)

	utils.PrintSuccess(fmt.Sprintf("Removed %s from %s", id, color.CyanString(collection.Name)))
	return nil
}

func addCustomTemplateAction(c *cli.Context) error {
	application, err := app.FromContext(c)
	if err != nil {
		return err
	}
	args, err := requireArgs(c, 1)
	if err != nil {
		return err
	}

	collection, err := loadCollection(c, application, args[0])
	if err != nil {
		return err
	}

	path := c.Args().Get(1)
	code, err := readSource(path)
	if err != nil {
		return err
	}
	if strings.TrimSpace(code) == "" {
		return fmt.Errorf("template source is empty")
	}

	name := c.String("name")
	if name == "" && path != "" && path != "-" {
		name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if name == "" {
		name = "Custom template"
	}

	now := store.NowMillis()
	custom := store.CustomTemplate{
		ID:        ulid.TemplateID(),
		Name:      name,
		Code:      code,
		CreatedAt: now,
		UpdatedAt: now,
	}
	collection.CustomTemplates = append(collection.CustomTemplates, custom)
	saveCollection(c, application, collection)

	utils.PrintSuccess(fmt.Sprintf("Added custom template %s (%s) to %s", name, color.YellowString(custom.ID), color.CyanString(collection.Name)))
	return nil
}

func deleteCollectionAction(c *cli.Context) error {
	application, err := app.FromContext(c)
	if err != nil {
		return err
	}
	args, err := requireArgs(c, 1)
	if err != nil {
		return err
	}

	collection, err := loadCollection(c, application, args[0])
	if err != nil {
		return err
	}

	application.Store.DeleteCollection(c.Context, collection.ID)
	utils.PrintSuccess("Deleted collection " + collection.Name)
	utils.PrintInfo("Deletes are local only; the server copy returns on the next sync")
	return nil
}

func addFavoriteAction(c *cli.Context) error {
	application, err := app.FromContext(c)
	if err != nil {
		return err
	}
	args, err := requireArgs(c, 1)
	if err != nil {
		return err
	}

	templateID := args[0]
	if !application.Catalog.Exists(templateID) {
		return fmt.Errorf("unknown template %s, see 'mermaidnest template catalog'", templateID)
	}
	if application.Store.IsFavorite(c.Context, templateID) {
		utils.PrintInfo(templateID + " is already a favorite")
		return nil
	}

	application.Store.AddFavorite(c.Context, store.FavoriteTemplate{TemplateID: templateID, Timestamp: store.NowMillis()})
	application.RequestSync(sync.ReasonTemplateEdit)

	utils.PrintSuccess("Added " + templateID + " to favorites")
	return nil
}

func removeFavoriteAction(c *cli.Context) error {
	application, err := app.FromContext(c)
	if err != nil {
		return err
	}
	args, err := requireArgs(c, 1)
	if err != nil {
		return err
	}

	templateID := args[0]
	if !application.Store.IsFavorite(c.Context, templateID) {
		return fmt.Errorf("%s is not a favorite", templateID)
	}

	application.Store.RemoveFavorite(c.Context, templateID)
	application.RequestSync(sync.ReasonTemplateEdit)

	utils.PrintSuccess("Removed " + templateID + " from favorites")
	return nil
}

func listFavoritesAction(c *cli.Context) error {
	application, err := app.FromContext(c)
	if err != nil {
		return err
	}

	favorites := application.Store.ListFavorites(c.Context)
	rows := make([][]string, 0, len(favorites))
	for _, f := range favorites {
		name, category := "(unknown template)", ""
		if t, ok := application.Catalog.Get(f.TemplateID); ok {
			name, category = t.Name, t.Category
		}
		rows = append(rows, []string{f.TemplateID, name, category, utils.FormatMillis(f.Timestamp)})
	}

	utils.PrintTable(
		[]string{"ID", "Name", "Category", "Added"},
		rows,
		utils.TableOptions{Title: "Favorites", EmptyMessage: "No favorite templates"},
	)
	return nil
}
