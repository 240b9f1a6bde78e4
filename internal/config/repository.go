package config

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
)

// Settings keys holding the persisted sync account
const (
	SyncPrefix        = "sync."
	KeyServerURL      = "sync.server_url"
	KeyServerToken    = "sync.server_token"
	KeyDeviceName     = "sync.device_name"
	KeySyncEnabled    = "sync.enabled"
	obfuscationMarker = "OBFS:"
)

// SettingsRepository is the key/value storage the sync account is persisted in.
// The local store's settings table implements it.
type SettingsRepository interface {
	GetSetting(ctx context.Context, key string) (string, error)
	GetSettings(ctx context.Context, prefix string) (map[string]string, error)
	SetSetting(ctx context.Context, key, value string) error
	DeleteSetting(ctx context.Context, key string) error
}

// LoadSyncSettings overlays the persisted sync account onto cfg. Empty values
// keep whatever the environment provided.
func LoadSyncSettings(ctx context.Context, cfg *Config, repo SettingsRepository) error {
	settings, err := repo.GetSettings(ctx, SyncPrefix)
	if err != nil {
		return fmt.Errorf("loading sync settings: %w", err)
	}

	if url := settings[KeyServerURL]; url != "" {
		cfg.Server.URL = url
	}

	if token := settings[KeyServerToken]; token != "" {
		plain, err := deobfuscateToken(token)
		if err != nil {
			return fmt.Errorf("reading server token: %w", err)
		}
		cfg.Server.Token = plain
	}

	if deviceName := settings[KeyDeviceName]; deviceName != "" {
		cfg.Server.DeviceName = deviceName
	}

	if enabled := settings[KeySyncEnabled]; enabled != "" {
		cfg.Server.Enabled = enabled == "true"
	}

	return nil
}

// SaveSyncSettings persists the sync account from cfg
func SaveSyncSettings(ctx context.Context, cfg *Config, repo SettingsRepository) error {
	if err := repo.SetSetting(ctx, KeyServerURL, cfg.Server.URL); err != nil {
		return fmt.Errorf("saving server URL: %w", err)
	}

	token := ""
	if cfg.Server.Token != "" {
		token = obfuscateToken(cfg.Server.Token)
	}
	if err := repo.SetSetting(ctx, KeyServerToken, token); err != nil {
		return fmt.Errorf("saving server token: %w", err)
	}

	if err := repo.SetSetting(ctx, KeyDeviceName, cfg.Server.DeviceName); err != nil {
		return fmt.Errorf("saving device name: %w", err)
	}

	if err := repo.SetSetting(ctx, KeySyncEnabled, strconv.FormatBool(cfg.Server.Enabled)); err != nil {
		return fmt.Errorf("saving enabled status: %w", err)
	}

	return nil
}

// Token obfuscation keeps the token out of casual view in the database file.
// It is not encryption.

func obfuscateToken(token string) string {
	return obfuscationMarker + base64.StdEncoding.EncodeToString([]byte(reverse(token)))
}

func deobfuscateToken(stored string) (string, error) {
	if !strings.HasPrefix(stored, obfuscationMarker) {
		return stored, nil
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(stored, obfuscationMarker))
	if err != nil {
		return "", fmt.Errorf("decoding obfuscated token: %w", err)
	}

	return reverse(string(decoded)), nil
}

func reverse(s string) string {
	runes := []rune(s)
	for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
		runes[i], runes[j] = runes[j], runes[i]
	}
	return string(runes)
}
