// Package store is the local-first persistence layer: diagrams, template
// collections, favorite templates and the mermaid.* settings namespace, kept in
// SQLite and addressed by client-generated IDs.
package store

import (
	"encoding/json"
	"strings"
	"time"
)

// Settings keys. Everything the editor persists lives under SettingsPrefix.
const (
	SettingsPrefix   = "mermaid."
	KeyMermaidConfig = "mermaid.config"
	KeyThemeSettings = "mermaid.theme"
	KeyLastSyncAt    = "mermaid.last_sync_at"
)

// Diagram is a saved Mermaid diagram. Code is the diagram source; Settings is an
// opaque rendering config blob carried through sync untouched.
type Diagram struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Code      string          `json:"code"`
	UpdatedAt int64           `json:"updatedAt"`
	Settings  json.RawMessage `json:"settings,omitempty"`
}

// TemplateCollection groups built-in template references and the custom
// templates it owns.
type TemplateCollection struct {
	ID              string           `json:"id"`
	Name            string           `json:"name"`
	TemplateIDs     []string         `json:"templateIds"`
	CustomTemplates []CustomTemplate `json:"customTemplates"`
	CreatedAt       int64            `json:"createdAt"`
	UpdatedAt       int64            `json:"updatedAt"`
}

// CustomTemplate is a user-authored template owned by exactly one collection
type CustomTemplate struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Code      string `json:"code"`
	CreatedAt int64  `json:"createdAt"`
	UpdatedAt int64  `json:"updatedAt"`
}

// FavoriteTemplate marks a built-in template as favorite
type FavoriteTemplate struct {
	TemplateID string `json:"templateId"`
	Timestamp  int64  `json:"timestamp"`
}

// HasTemplate reports whether the collection references a built-in template
func (c *TemplateCollection) HasTemplate(templateID string) bool {
	for _, id := range c.TemplateIDs {
		if id == templateID {
			return true
		}
	}
	return false
}

// CustomTemplate returns the owned custom template with the given ID
func (c *TemplateCollection) CustomTemplate(id string) (CustomTemplate, bool) {
	for _, t := range c.CustomTemplates {
		if t.ID == id {
			return t, true
		}
	}
	return CustomTemplate{}, false
}

// Kind names the entity type a Change refers to
type Kind string

const (
	KindDiagrams    Kind = "diagrams"
	KindCollections Kind = "collections"
	KindFavorites   Kind = "favorites"
	KindSettings    Kind = "settings"
)

// Op is the mutation a Change reports
type Op string

const (
	OpPut    Op = "put"
	OpDelete Op = "delete"
)

// Source tells observers whether a change came from a local edit or from
// applying server data.
type Source string

const (
	SourceLocal Source = "local"
	SourceSync  Source = "sync"
)

// Change is emitted to observers after a mutation commits
type Change struct {
	Kind   Kind
	ID     string
	Op     Op
	Source Source
}

// NowMillis returns the current time in Unix milliseconds, the unit every
// store timestamp uses.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}

// NamespacedKey adds SettingsPrefix to key when it is missing
func NamespacedKey(key string) string {
	if strings.HasPrefix(key, SettingsPrefix) {
		return key
	}
	return SettingsPrefix + key
}

// IsSyncedKey reports whether a settings key travels in the key/value map of a
// sync payload. The checkpoint and the two blobs have dedicated slots.
func IsSyncedKey(key string) bool {
	if !strings.HasPrefix(key, SettingsPrefix) {
		return false
	}
	switch key {
	case KeyLastSyncAt, KeyMermaidConfig, KeyThemeSettings:
		return false
	}
	return true
}
