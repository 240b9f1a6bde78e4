package config

import (
	"context"
	"fmt"

	"github.com/tildaslashalef/mermaidnest/internal/loggy"
)

// AccountService links and unlinks this device to a sync server account,
// keeping the in-memory Config and the persisted settings in step.
type AccountService struct {
	repo   SettingsRepository
	config *Config
	logger *loggy.Logger
}

// NewAccountService creates a new account service
func NewAccountService(repo SettingsRepository, cfg *Config, logger *loggy.Logger) *AccountService {
	return &AccountService{
		repo:   repo,
		config: cfg,
		logger: logger,
	}
}

// Load overlays persisted account settings onto the Config
func (s *AccountService) Load(ctx context.Context) error {
	return LoadSyncSettings(ctx, s.config, s.repo)
}

// Link stores the server URL, token and device name and enables sync
func (s *AccountService) Link(ctx context.Context, serverURL, token, deviceName string) error {
	if token == "" {
		return fmt.Errorf("token cannot be empty")
	}

	if serverURL != "" {
		s.config.Server.URL = serverURL
	}
	if deviceName != "" {
		s.config.Server.DeviceName = deviceName
	}
	s.config.Server.Token = token
	s.config.Server.Enabled = true

	if err := s.config.validateServer(); err != nil {
		return err
	}

	if err := SaveSyncSettings(ctx, s.config, s.repo); err != nil {
		return err
	}

	s.logger.Info("Linked sync account", "server", s.config.Server.URL, "device", s.config.Server.DeviceName)
	return nil
}

// Unlink forgets the token and disables sync; the server URL and device name are kept
func (s *AccountService) Unlink(ctx context.Context) error {
	s.config.Server.Token = ""
	s.config.Server.Enabled = false

	if err := s.repo.DeleteSetting(ctx, KeyServerToken); err != nil {
		return fmt.Errorf("deleting server token: %w", err)
	}

	if err := s.repo.SetSetting(ctx, KeySyncEnabled, "false"); err != nil {
		return fmt.Errorf("saving enabled status: %w", err)
	}

	s.logger.Info("Unlinked sync account")
	return nil
}

// SetDeviceName updates and persists the device name
func (s *AccountService) SetDeviceName(ctx context.Context, name string) error {
	s.config.Server.DeviceName = name
	return s.repo.SetSetting(ctx, KeyDeviceName, name)
}

// Save validates the current server settings and persists them
func (s *AccountService) Save(ctx context.Context) error {
	if err := s.config.validateServer(); err != nil {
		return err
	}
	return SaveSyncSettings(ctx, s.config, s.repo)
}
