// Package config loads the client configuration from the config file, the
// environment and command-line flags.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. BUDDYBUY_SERVER.
const EnvPrefix = "BUDDYBUY"

// Keys.
const (
	KeyServer  = "server"
	KeyDataDir = "data_dir"
	KeyLogFile = "log_file"
	KeyVerbose = "verbose"
)

// DefaultServer is the server used when none is configured.
const DefaultServer = "http://localhost:8080"

// Config is the client configuration.
type Config struct {
	// Server is the base URL of the BuddyBuy server.
	Server string `mapstructure:"server"`
	// DataDir holds the device database. Supports ~ expansion.
	DataDir string `mapstructure:"data_dir"`
	// LogFile, when set, receives all logs. Supports ~ expansion.
	LogFile string `mapstructure:"log_file"`
	Verbose bool   `mapstructure:"verbose"`
}

// DBPath returns the path of the device database.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "buddybuy.db")
}

// New returns a viper instance with defaults, the config file location and
// environment overrides registered. Flags are bound by the caller.
func New() *viper.Viper {
	v := viper.New()
	v.SetDefault(KeyServer, DefaultServer)
	v.SetDefault(KeyDataDir, defaultDataDir())
	v.SetDefault(KeyLogFile, "")
	v.SetDefault(KeyVerbose, false)

	v.SetConfigFile(GetConfigPath())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the config file, if any, and returns the merged configuration.
func Load(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("reading config %s: %w", v.ConfigFileUsed(), err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.Server = strings.TrimRight(strings.TrimSpace(cfg.Server), "/")
	if cfg.Server == "" {
		return nil, errors.New("server URL is empty")
	}
	if !strings.HasPrefix(cfg.Server, "http://") && !strings.HasPrefix(cfg.Server, "https://") {
		return nil, fmt.Errorf("server URL %q must start with http:// or https://", cfg.Server)
	}
	cfg.DataDir = ExpandPath(cfg.DataDir)
	cfg.LogFile = ExpandPath(cfg.LogFile)
	return &cfg, nil
}

// GetConfigPath returns the config file path.
func GetConfigPath() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, _ := os.UserHomeDir()
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "buddybuy", "config.yaml")
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(path string) string {
	if path == "~" {
		home, _ := os.UserHomeDir()
		return home
	}
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// defaultDataDir returns the standard XDG data directory for buddybuy.
func defaultDataDir() string {
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, _ := os.UserHomeDir()
		dataHome = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataHome, "buddybuy")
}
