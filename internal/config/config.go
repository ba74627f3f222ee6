package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	DaemonPort    int           `mapstructure:"daemon_port"`
	DBPath        string        `mapstructure:"db_path"`
	Backend       string        `mapstructure:"backend"`
	BufferSize    int           `mapstructure:"buffer_size"`
	DeleteGuard   time.Duration `mapstructure:"delete_guard"`
	RecordHistory bool          `mapstructure:"record_history"`
}

var Default = Config{
	DaemonPort:    9101,
	DBPath:        "mirrorsync.db",
	Backend:       "inotify",
	BufferSize:    256,
	DeleteGuard:   20 * time.Millisecond,
	RecordHistory: true,
}

// Dir returns the per-user directory holding the config file and, unless
// db_path is absolute, the database.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home dir: %w", err)
	}

	return filepath.Join(home, ".mirrorsync"), nil
}

func Load() (*Config, error) {
	configDir, err := Dir()
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create config dir: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)

	v.SetDefault("daemon_port", Default.DaemonPort)
	v.SetDefault("db_path", Default.DBPath)
	v.SetDefault("backend", Default.Backend)
	v.SetDefault("buffer_size", Default.BufferSize)
	v.SetDefault("delete_guard", Default.DeleteGuard)
	v.SetDefault("record_history", Default.RecordHistory)

	v.SetEnvPrefix("MIRRORSYNC")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := errors.AsType[viper.ConfigFileNotFoundError](err); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if !filepath.IsAbs(cfg.DBPath) {
		cfg.DBPath = filepath.Join(configDir, cfg.DBPath)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Backend {
	case "inotify", "fsnotify":
	default:
		return fmt.Errorf("unsupported backend: %q", c.Backend)
	}

	if c.BufferSize <= 0 {
		return fmt.Errorf("buffer_size must be positive, got %d", c.BufferSize)
	}

	if c.DeleteGuard < 0 {
		return fmt.Errorf("delete_guard must not be negative, got %s", c.DeleteGuard)
	}

	return nil
}
