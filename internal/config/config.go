package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the application configuration
type Config struct {
	DataDir      string   `yaml:"data_dir"`
	StoreBackend string   `yaml:"store_backend"`
	SnapshotPath string   `yaml:"snapshot_path"`
	ArchiveDirs  []string `yaml:"archive_dirs"`

	AzureConnectionString string `yaml:"-"`
	ArchiveContainer      string `yaml:"archive_container"`
	MapsContainer         string `yaml:"maps_container"`

	MessageSource   string `yaml:"message_source"`
	BirdAPIKey      string `yaml:"-"`
	BirdWorkspaceID string `yaml:"bird_workspace_id"`
	BirdChannelID   string `yaml:"bird_channel_id"`
	BirdBaseURL     string `yaml:"bird_base_url"`
	MessageLimit    int    `yaml:"message_limit"`

	SnapshotPollInterval time.Duration `yaml:"snapshot_poll_interval"`
	RemotePollInterval   time.Duration `yaml:"remote_poll_interval"`
	MessagePollInterval  time.Duration `yaml:"message_poll_interval"`
	EnableWatcher        bool          `yaml:"enable_watcher"`

	ExcludedNames []string `yaml:"excluded_names"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() *Config {
	return &Config{
		DataDir:              "data",
		StoreBackend:         "file",
		SnapshotPath:         filepath.Join("data", "instay_output.csv"),
		ArchiveContainer:     "instay-archives",
		MapsContainer:        "instay-maps",
		MessageSource:        "bird",
		MessageLimit:         500,
		SnapshotPollInterval: 30 * time.Second,
		RemotePollInterval:   30 * time.Second,
		MessagePollInterval:  3 * time.Second,
		EnableWatcher:        true,
		ExcludedNames:        []string{"LTG:AI-Maintenance", "Mercure Hyde Park"},
		LogLevel:             "info",
		LogFormat:            "console",
	}
}

// LoadConfig loads configuration from an optional .env file, an optional
// YAML file named by CONFIG_FILE, and environment variables, in that
// order of increasing precedence.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := Defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.overlay(path); err != nil {
			return nil, err
		}
	}

	cfg.DataDir = getEnv("DATA_DIR", cfg.DataDir)
	cfg.StoreBackend = strings.ToLower(getEnv("STORE_BACKEND", cfg.StoreBackend))
	cfg.SnapshotPath = getEnv("SNAPSHOT_PATH", cfg.SnapshotPath)
	cfg.ArchiveDirs = getEnvList("ARCHIVE_DIRS", cfg.ArchiveDirs)
	cfg.AzureConnectionString = getEnv("AZURE_STORAGE_CONNECTION_STRING", cfg.AzureConnectionString)
	cfg.ArchiveContainer = getEnv("ARCHIVE_CONTAINER", cfg.ArchiveContainer)
	cfg.MapsContainer = getEnv("MAPS_CONTAINER", cfg.MapsContainer)
	cfg.MessageSource = strings.ToLower(getEnv("MESSAGE_SOURCE", cfg.MessageSource))
	cfg.BirdAPIKey = getEnv("BIRD_API_KEY", cfg.BirdAPIKey)
	cfg.BirdWorkspaceID = getEnv("BIRD_WORKSPACE_ID", cfg.BirdWorkspaceID)
	cfg.BirdChannelID = getEnv("BIRD_CHANNEL_ID", cfg.BirdChannelID)
	cfg.BirdBaseURL = getEnv("BIRD_BASE_URL", cfg.BirdBaseURL)
	cfg.MessageLimit = clampInt(getEnvInt("MESSAGE_LIMIT", cfg.MessageLimit), 1, 1000)
	cfg.SnapshotPollInterval = getEnvDuration("SNAPSHOT_POLL_INTERVAL", cfg.SnapshotPollInterval)
	cfg.RemotePollInterval = getEnvDuration("REMOTE_POLL_INTERVAL", cfg.RemotePollInterval)
	cfg.MessagePollInterval = getEnvDuration("MESSAGE_POLL_INTERVAL", cfg.MessagePollInterval)
	cfg.EnableWatcher = getEnvBool("ENABLE_WATCHER", cfg.EnableWatcher)
	cfg.ExcludedNames = getEnvList("EXCLUDED_NAMES", cfg.ExcludedNames)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnv("LOG_FORMAT", cfg.LogFormat)

	if len(cfg.ArchiveDirs) == 0 {
		cfg.ArchiveDirs = []string{filepath.Dir(cfg.SnapshotPath)}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks enumerated settings.
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case "file", "sqlite":
	default:
		return fmt.Errorf("invalid STORE_BACKEND %q: want file or sqlite", c.StoreBackend)
	}
	switch c.MessageSource {
	case "bird", "whatsapp", "none":
	default:
		return fmt.Errorf("invalid MESSAGE_SOURCE %q: want bird, whatsapp or none", c.MessageSource)
	}
	return nil
}

// AzureEnabled reports whether remote archives are configured.
func (c *Config) AzureEnabled() bool {
	return c.AzureConnectionString != ""
}

// BirdEnabled reports whether the Bird credentials are complete.
func (c *Config) BirdEnabled() bool {
	return c.BirdAPIKey != "" && c.BirdWorkspaceID != "" && c.BirdChannelID != ""
}

func (c *Config) overlay(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return n
}

func getEnvBool(key string, defaultValue bool) bool {
	b, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return b
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil || d <= 0 {
		return defaultValue
	}
	return d
}

// getEnvList splits a comma-separated variable, dropping empty items.
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func clampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
