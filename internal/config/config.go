package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Config holds the application configuration
type Config struct {
	Provider       string `json:"provider"`
	APIKey         string `json:"api_key,omitempty"`
	BaseURL        string `json:"base_url,omitempty"`
	Model          string `json:"model"`
	StorageRoot    string `json:"storage_root,omitempty"`
	UploadsDir     string `json:"uploads_dir,omitempty"`
	Concurrency    int    `json:"concurrency,omitempty"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"`
}

// configDir returns the platform-specific config directory
func configDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	configDir := filepath.Join(homeDir, ".caseforge")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return "", err
	}

	return configDir, nil
}

// configPath returns the full path to the config file
func configPath() (string, error) {
	dir, err := configDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// Load loads the configuration from disk, then lets environment
// variables override individual fields.
func Load() (*Config, error) {
	path, err := configPath()
	if err != nil {
		return nil, err
	}

	config := &Config{}
	data, err := os.ReadFile(path)
	if err == nil {
		if err := json.Unmarshal(data, config); err != nil {
			return nil, err
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	config.applyEnv()
	config.applyDefaults()
	return config, nil
}

func (c *Config) applyEnv() {
	if v := GetEnv("provider"); v != "" {
		c.Provider = v
	}
	if v := GetEnv("api_key"); v != "" {
		c.APIKey = v
	}
	if v := GetEnv("base_url"); v != "" {
		c.BaseURL = v
	}
	if v := GetEnv("model"); v != "" {
		c.Model = v
	}
	if v := GetEnv("storage_root"); v != "" {
		c.StorageRoot = v
	}
	if v := GetEnv("uploads_dir"); v != "" {
		c.UploadsDir = v
	}
	if v := GetEnv("concurrency"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Concurrency = n
		}
	}
}

func (c *Config) applyDefaults() {
	if c.Provider == "" {
		c.Provider = "claude"
	}
	if c.StorageRoot == "" {
		if home, err := os.UserHomeDir(); err == nil {
			c.StorageRoot = filepath.Join(home, ".caseforge", "data")
		}
	}
	if c.UploadsDir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			c.UploadsDir = filepath.Join(home, ".caseforge", "uploads")
		}
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 7
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = 30
	}
}

// Save saves the configuration to disk
func (c *Config) Save() error {
	path, err := configPath()
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// GetEnvVarName returns the environment variable name for a config key
func GetEnvVarName(key string) string {
	return "CASEFORGE_" + strings.ToUpper(key)
}

// GetEnv retrieves an environment variable with the Caseforge prefix
func GetEnv(key string) string {
	return os.Getenv(GetEnvVarName(key))
}
