package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"staten/internal/clients"
)

// FileName is the optional configuration file looked up in the data directory.
const FileName = "config.toml"

// DefaultPollInterval is how often onboarding polls the completion flag.
const DefaultPollInterval = 2 * time.Second

// DefaultHostDownloadURL is opened when the host client is missing.
const DefaultHostDownloadURL = "https://claude.ai/download"

// Duration is a time.Duration that decodes from strings such as "2s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	d.Duration = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Config holds all configuration settings for staten.
type Config struct {
	// DataDir holds the database, logs and config.toml.
	DataDir string `toml:"data_dir"`

	// DatabasePath is the SQLite state store.
	DatabasePath string `toml:"database_path"`

	// LogDir receives staten.log when file logging is enabled.
	LogDir string `toml:"log_dir"`

	// CatalogPath overrides the embedded app registry.
	CatalogPath string `toml:"catalog_path"`

	// DefaultClient is selected when no client has been chosen yet.
	DefaultClient clients.Client `toml:"default_client"`

	PollInterval    Duration `toml:"poll_interval"`
	HostDownloadURL string   `toml:"host_download_url"`

	ClaudeConfigPath string `toml:"claude_config_path"`
	CursorConfigPath string `toml:"cursor_config_path"`
	ClaudeAppPath    string `toml:"claude_app_path"`
	CursorAppPath    string `toml:"cursor_app_path"`
}

func userConfigDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return dir
	}
	return "."
}

func userHomeDir() string {
	if dir, err := os.UserHomeDir(); err == nil {
		return dir
	}
	return "."
}

// defaultConfig returns the platform defaults.
func defaultConfig() *Config {
	dataDir := filepath.Join(userConfigDir(), "staten")
	if dir := os.Getenv("STATEN_DATA_DIR"); dir != "" {
		dataDir = dir
	}

	cfg := &Config{
		DataDir:          dataDir,
		DatabasePath:     filepath.Join(dataDir, "staten.db"),
		LogDir:           filepath.Join(dataDir, "logs"),
		DefaultClient:    clients.Claude,
		PollInterval:     Duration{DefaultPollInterval},
		HostDownloadURL:  DefaultHostDownloadURL,
		ClaudeConfigPath: filepath.Join(userConfigDir(), "Claude", "claude_desktop_config.json"),
		CursorConfigPath: filepath.Join(userHomeDir(), ".cursor", "mcp.json"),
	}

	switch runtime.GOOS {
	case "darwin":
		cfg.ClaudeAppPath = "/Applications/Claude.app"
		cfg.CursorAppPath = "/Applications/Cursor.app"
	case "windows":
		local := os.Getenv("LOCALAPPDATA")
		cfg.ClaudeAppPath = filepath.Join(local, "AnthropicClaude")
		cfg.CursorAppPath = filepath.Join(local, "Programs", "cursor")
	}

	return cfg
}

// Load builds the configuration from defaults, an optional TOML file and
// STATEN_* environment variables, in that order. An empty path means
// <data dir>/config.toml.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path == "" {
		path = filepath.Join(cfg.DataDir, FileName)
	}
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to decode config file: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if cfg.PollInterval.Duration <= 0 {
		cfg.PollInterval = Duration{DefaultPollInterval}
	}

	for _, p := range []*string{&cfg.DataDir, &cfg.DatabasePath, &cfg.LogDir} {
		if *p == "" || filepath.IsAbs(*p) {
			continue
		}
		absPath, err := filepath.Abs(*p)
		if err != nil {
			return nil, fmt.Errorf("failed to get absolute path for %s: %w", *p, err)
		}
		*p = absPath
	}

	return cfg, nil
}

func (c *Config) applyEnv() error {
	overrides := map[string]*string{
		"STATEN_DATABASE_PATH": &c.DatabasePath,
		"STATEN_LOG_DIR":       &c.LogDir,
		"STATEN_CATALOG":       &c.CatalogPath,
		"STATEN_CLAUDE_CONFIG": &c.ClaudeConfigPath,
		"STATEN_CURSOR_CONFIG": &c.CursorConfigPath,
		"STATEN_DOWNLOAD_URL":  &c.HostDownloadURL,
	}
	for key, target := range overrides {
		if value := os.Getenv(key); value != "" {
			*target = value
		}
	}

	if name := os.Getenv("STATEN_CLIENT"); name != "" {
		client, err := clients.Parse(name)
		if err != nil {
			return fmt.Errorf("STATEN_CLIENT: %w", err)
		}
		c.DefaultClient = client
	}

	if interval := os.Getenv("STATEN_POLL_INTERVAL"); interval != "" {
		if err := c.PollInterval.UnmarshalText([]byte(interval)); err != nil {
			return fmt.Errorf("STATEN_POLL_INTERVAL: %w", err)
		}
	}

	return nil
}

// HostConfigPath returns the MCP configuration file of a host client.
func (c *Config) HostConfigPath(client clients.Client) string {
	switch client {
	case clients.Claude:
		return c.ClaudeConfigPath
	case clients.Cursor:
		return c.CursorConfigPath
	}
	return ""
}

// HostAppPath returns where the host client is expected to be installed.
// An empty result means detection is not supported on this platform.
func (c *Config) HostAppPath(client clients.Client) string {
	switch client {
	case clients.Claude:
		return c.ClaudeAppPath
	case clients.Cursor:
		return c.CursorAppPath
	}
	return ""
}

// String returns a string representation of the configuration.
func (c *Config) String() string {
	var parts []string
	parts = append(parts, fmt.Sprintf("DataDir: %s", c.DataDir))
	parts = append(parts, fmt.Sprintf("DatabasePath: %s", c.DatabasePath))
	parts = append(parts, fmt.Sprintf("DefaultClient: %s", c.DefaultClient))
	parts = append(parts, fmt.Sprintf("PollInterval: %s", c.PollInterval))
	return strings.Join(parts, ", ")
}
