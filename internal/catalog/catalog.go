// Package catalog holds the built-in template gallery. Built-in templates are
// never persisted; collections and favorites refer to them by ID.
package catalog

import (
	_ "embed"
	"fmt"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed templates.yaml
var templatesYAML []byte

// Template is a built-in diagram template
type Template struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Category string `yaml:"category"`
	Code     string `yaml:"code"`
}

// Catalog is an immutable, ID-indexed set of built-in templates
type Catalog struct {
	templates []Template
	byID      map[string]Template
}

type document struct {
	Templates []Template `yaml:"templates"`
}

var (
	defaultCatalog *Catalog
	defaultErr     error
	defaultOnce    sync.Once
)

// Default returns the embedded catalog
func Default() (*Catalog, error) {
	defaultOnce.Do(func() {
		defaultCatalog, defaultErr = Parse(templatesYAML)
	})
	return defaultCatalog, defaultErr
}

// Parse builds a catalog from YAML. IDs must be unique and non-empty.
func Parse(data []byte) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing template catalog: %w", err)
	}

	c := &Catalog{byID: make(map[string]Template, len(doc.Templates))}
	for _, t := range doc.Templates {
		if t.ID == "" {
			return nil, fmt.Errorf("template %q has no id", t.Name)
		}
		if _, dup := c.byID[t.ID]; dup {
			return nil, fmt.Errorf("duplicate template id %q", t.ID)
		}
		c.byID[t.ID] = t
		c.templates = append(c.templates, t)
	}

	return c, nil
}

// Get returns the template with id
func (c *Catalog) Get(id string) (Template, bool) {
	t, ok := c.byID[id]
	return t, ok
}

// Exists reports whether id names a built-in template
func (c *Catalog) Exists(id string) bool {
	_, ok := c.byID[id]
	return ok
}

// List returns all templates in catalog order
func (c *Catalog) List() []Template {
	out := make([]Template, len(c.templates))
	copy(out, c.templates)
	return out
}

// Categories returns the distinct categories, sorted
func (c *Catalog) Categories() []string {
	seen := map[string]bool{}
	var out []string
	for _, t := range c.templates {
		if !seen[t.Category] {
			seen[t.Category] = true
			out = append(out, t.Category)
		}
	}
	sort.Strings(out)
	return out
}
