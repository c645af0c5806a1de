package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Config holds all application configuration
type Config struct {
	General       GeneralConfig       `toml:"general"`
	Executor      ExecutorConfig      `toml:"executor"`
	Notifications NotificationsConfig `toml:"notifications"`
}

// GeneralConfig holds the per-run settings supplied by the action inputs
type GeneralConfig struct {
	// DefaultBaseBranch, when non-empty, wins over any branch derived
	// from the triggering event.
	DefaultBaseBranch string `toml:"default_base_branch"`
	WorkingDirectory  string `toml:"working_directory"`
	// ProjectPath is the directory containing ClaudeChain project
	// subdirectories (each with its own spec.md).
	ProjectPath  string `toml:"project_path"`
	DatabasePath string `toml:"database_path"`
}

// ExecutorConfig holds settings for the external task executor
type ExecutorConfig struct {
	Model     string `toml:"model"`
	MaxTokens int    `toml:"max_tokens"`
}

// NotificationsConfig holds notification settings
type NotificationsConfig struct {
	SlackWebhook string `toml:"slack_webhook"`
}

// Default returns a Config with sensible defaults
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		General: GeneralConfig{
			WorkingDirectory: ".",
			ProjectPath:      "claudechain",
			DatabasePath:     filepath.Join(home, ".claudechain", "runs.db"),
		},
		Executor: ExecutorConfig{
			Model:     "claude-sonnet-4-20250514",
			MaxTokens: 16000,
		},
	}
}

// Load reads configuration from a TOML file, falling back to defaults.
// Environment variables set by the hosting workflow override file values.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
	} else if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	cfg.applyEnv()

	cfg.General.WorkingDirectory = ExpandPath(cfg.General.WorkingDirectory)
	cfg.General.ProjectPath = ExpandPath(cfg.General.ProjectPath)
	cfg.General.DatabasePath = ExpandPath(cfg.General.DatabasePath)

	return cfg, nil
}

// applyEnv overrides file values with the action's input environment.
// Empty variables leave the file value in place.
func (c *Config) applyEnv() {
	if v := os.Getenv("DEFAULT_BASE_BRANCH"); v != "" {
		c.General.DefaultBaseBranch = v
	}
	if v := os.Getenv("WORKING_DIRECTORY"); v != "" {
		c.General.WorkingDirectory = v
	}
	if v := os.Getenv("PROJECT_PATH"); v != "" {
		c.General.ProjectPath = v
	}
	if v := os.Getenv("SLACK_WEBHOOK_URL"); v != "" {
		c.Notifications.SlackWebhook = v
	}
}

// Save writes the configuration to a TOML file
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := toml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ExpandPath expands ~ to the user's home directory
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// DefaultConfigPath returns the default config file location
func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "claudechain", "config.toml")
}
