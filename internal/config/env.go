package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
)

// DefaultConfigDir returns ~/.mermaidnest
func DefaultConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".mermaidnest"), nil
}

// LoadFromEnv loads configuration from environment variables
// Parameters:
// - configDir: Directory containing config files (or empty for default)
// - configFilePath: Path to .env file (or empty for <configDir>/.env)
func LoadFromEnv(configDir string, configFilePath string) (*Config, error) {
	cfg := New()

	if configDir == "" {
		dir, err := DefaultConfigDir()
		if err != nil {
			return nil, err
		}
		configDir = dir
	}

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}
	cfg.configDir = configDir

	if configFilePath == "" {
		configFilePath = filepath.Join(configDir, ".env")
	}

	// ENV_FILE_PATH wins over the config directory
	if envFilePath := getEnvString("ENV_FILE_PATH", ""); envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			return nil, fmt.Errorf("failed to load env file from %s: %w", envFilePath, err)
		}
	} else if err := godotenv.Load(configFilePath); err != nil {
		_ = godotenv.Load() // Ignore errors if file doesn't exist
	}

	cfg.Database = DatabaseConfig{
		Path:            getEnvString("MERMAIDNEST_DB_PATH", filepath.Join(configDir, "mermaidnest.db")),
		BusyTimeout:     getEnvInt("MERMAIDNEST_DB_BUSY_TIMEOUT", 5000),
		JournalMode:     getEnvString("MERMAIDNEST_DB_JOURNAL_MODE", "WAL"),
		SynchronousMode: getEnvString("MERMAIDNEST_DB_SYNCHRONOUS_MODE", "NORMAL"),
		CacheSize:       getEnvInt("MERMAIDNEST_DB_CACHE_SIZE", -16000), // ~16MB
		ForeignKeys:     getEnvBool("MERMAIDNEST_DB_FOREIGN_KEYS", true),
		ConnMaxLife:     getEnvDuration("MERMAIDNEST_DB_CONN_MAX_LIFE", 5*time.Minute),
		QueryTimeout:    getEnvDuration("MERMAIDNEST_DB_QUERY_TIMEOUT", 10*time.Second),
	}

	cfg.Logging = LoggingConfig{
		Level:      getEnvString("MERMAIDNEST_LOG_LEVEL", "info"),
		Format:     getEnvString("MERMAIDNEST_LOG_FORMAT", "text"),
		Output:     getEnvString("MERMAIDNEST_LOG_OUTPUT", filepath.Join(configDir, "mermaidnest.log")),
		AddSource:  getEnvBool("MERMAIDNEST_LOG_ADD_SOURCE", true),
		TimeFormat: getTimeFormat(getEnvString("MERMAIDNEST_LOG_TIME_FORMAT", "RFC3339")),
	}

	cfg.Server = ServerConfig{
		Enabled:           getEnvBool("MERMAIDNEST_SERVER_ENABLED", true),
		URL:               getEnvString("MERMAIDNEST_SERVER_URL", "http://localhost:3000"),
		Token:             getEnvString("MERMAIDNEST_SERVER_TOKEN", ""),
		Timeout:           getEnvDuration("MERMAIDNEST_SERVER_TIMEOUT", 30*time.Second),
		DeviceName:        getEnvString("MERMAIDNEST_SERVER_DEVICE_NAME", ""),
		RequestsPerMinute: getEnvInt("MERMAIDNEST_SERVER_REQUESTS_PER_MINUTE", 60),
		BurstLimit:        getEnvInt("MERMAIDNEST_SERVER_BURST_LIMIT", 5),
	}

	cfg.Sync = SyncConfig{
		BackgroundDelay:  getEnvDuration("MERMAIDNEST_SYNC_BACKGROUND_DELAY", 3*time.Second),
		Interval:         getEnvDuration("MERMAIDNEST_SYNC_INTERVAL", 5*time.Minute),
		ProbeInterval:    getEnvDuration("MERMAIDNEST_SYNC_PROBE_INTERVAL", 30*time.Second),
		ProbeMaxInterval: getEnvDuration("MERMAIDNEST_SYNC_PROBE_MAX_INTERVAL", 5*time.Minute),
		WatchDir:         getEnvString("MERMAIDNEST_SYNC_WATCH_DIR", ""),
	}

	return cfg, cfg.Validate()
}
