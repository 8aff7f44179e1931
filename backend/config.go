package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
)

// Config holds the user-adjustable settings, persisted as JSON under the
// platform config directory.
type Config struct {
	OutputDirectory string `json:"output_directory"`
	SpeedLimitKBps  int    `json:"speed_limit_kbps"`
	IncludeAutoSubs bool   `json:"include_auto_subs"`
	CookiesBrowser  string `json:"cookies_browser"`
	LogLevel        string `json:"log_level"`
}

func DefaultConfig() *Config {
	return &Config{
		OutputDirectory: GetDefaultOutputDirectory(),
		SpeedLimitKBps:  0,
		IncludeAutoSubs: false,
		CookiesBrowser:  "",
		LogLevel:        "info",
	}
}

// GetDefaultOutputDirectory returns the user's Downloads folder, falling
// back to the working directory.
func GetDefaultOutputDirectory() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, "Downloads")
}

// GetConfigPath returns the config file location, creating parent
// directories as needed.
func GetConfigPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolving config directory: %w", err)
	}
	appDir := filepath.Join(configDir, "mdl")
	if err := os.MkdirAll(appDir, 0o755); err != nil {
		return "", fmt.Errorf("creating config directory: %w", err)
	}
	return filepath.Join(appDir, "config.json"), nil
}

// LoadConfig reads the persisted config, returning defaults when no file
// exists yet.
func LoadConfig() (*Config, error) {
	path, err := GetConfigPath()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return DefaultConfig(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.OutputDirectory == "" {
		cfg.OutputDirectory = GetDefaultOutputDirectory()
	}
	return cfg, nil
}

// LoadConfigWithEnv loads the persisted config and applies environment
// overrides.
func LoadConfigWithEnv() (*Config, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}
	if dir := os.Getenv("MDL_OUTPUT_DIR"); dir != "" {
		cfg.OutputDirectory = dir
	}
	if browser := os.Getenv("MDL_COOKIES_BROWSER"); browser != "" {
		cfg.CookiesBrowser = browser
	}
	if limit := os.Getenv("MDL_SPEED_LIMIT_KBPS"); limit != "" {
		if v, err := strconv.Atoi(limit); err == nil && v >= 0 {
			cfg.SpeedLimitKBps = v
		}
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}
	return cfg, nil
}

// SaveConfig persists the config as indented JSON.
func SaveConfig(cfg *Config) error {
	path, err := GetConfigPath()
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}
