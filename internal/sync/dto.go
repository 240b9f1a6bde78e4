package sync

import "encoding/json"

// Wire types of the full sync endpoint. Field names follow the server's JSON.

// DiagramDto is a diagram on the wire
type DiagramDto struct {
	ClientID        string          `json:"clientId"`
	Name            string          `json:"name"`
	Code            string          `json:"code"`
	ClientTimestamp int64           `json:"clientTimestamp"`
	Settings        json.RawMessage `json:"settings,omitempty"`
}

// CustomTemplateDto is a custom template nested in a collection
type CustomTemplateDto struct {
	ClientID        string `json:"clientId"`
	Name            string `json:"name"`
	Code            string `json:"code"`
	ClientTimestamp int64  `json:"clientTimestamp"`
}

// TemplateCollectionDto is a template collection on the wire
type TemplateCollectionDto struct {
	ClientID        string              `json:"clientId"`
	Name            string              `json:"name"`
	TemplateIDs     []string            `json:"templateIds"`
	CustomTemplates []CustomTemplateDto `json:"customTemplates"`
	ClientTimestamp int64               `json:"clientTimestamp"`
}

// FavoriteTemplateDto is a favorite on the wire
type FavoriteTemplateDto struct {
	TemplateID      string `json:"templateId"`
	ClientTimestamp int64  `json:"clientTimestamp"`
}

// SettingsDto bundles the rendering config, the theme and loose preferences
type SettingsDto struct {
	MermaidConfig json.RawMessage   `json:"mermaidConfig,omitempty"`
	ThemeSettings json.RawMessage   `json:"themeSettings,omitempty"`
	KeyValueStore map[string]string `json:"keyValueStore,omitempty"`
}

// DiagramsSection carries diagrams and the checkpoint
type DiagramsSection struct {
	Diagrams   []DiagramDto `json:"diagrams"`
	LastSyncAt *int64       `json:"lastSyncAt,omitempty"`
}

// TemplatesSection carries collections, favorites and the checkpoint
type TemplatesSection struct {
	Collections []TemplateCollectionDto `json:"collections"`
	Favorites   []FavoriteTemplateDto   `json:"favorites"`
	LastSyncAt  *int64                  `json:"lastSyncAt,omitempty"`
}

// SettingsSection carries the settings bundle and the checkpoint
type SettingsSection struct {
	Settings   *SettingsDto `json:"settings"`
	LastSyncAt *int64       `json:"lastSyncAt,omitempty"`
}

// FullSyncRequest is the client's entire local state
type FullSyncRequest struct {
	Diagrams  DiagramsSection  `json:"diagrams"`
	Templates TemplatesSection `json:"templates"`
	Settings  SettingsSection  `json:"settings"`
}

// FullSyncResponse is the server's authoritative state
type FullSyncResponse struct {
	Diagrams  DiagramsSection  `json:"diagrams"`
	Templates TemplatesSection `json:"templates"`
	Settings  SettingsSection  `json:"settings"`
	SyncedAt  int64            `json:"syncedAt"`
}

// ItemCount is the number of entities carried by the response
func (r *FullSyncResponse) ItemCount() int {
	n := len(r.Diagrams.Diagrams) + len(r.Templates.Collections) + len(r.Templates.Favorites)
	if r.Settings.Settings != nil {
		n += len(r.Settings.Settings.KeyValueStore)
	}
	return n
}
