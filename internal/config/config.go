package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	DefaultConfigDir  = ".nbcheck"
	DefaultConfigFile = "config.json"
	DefaultSuitesDir  = ".nbcheck/suites"
	DefaultDBFile     = ".nbcheck/nbcheck.db"
)

// Load reads the config file (creating it with defaults if absent) and returns
// a populated Config. The configPath flag may override the default location.
func Load(configPath string) (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("cannot determine home directory: %w", err)
	}

	v := viper.New()
	v.SetConfigType("json")
	v.SetEnvPrefix("NBCHECK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(filepath.Join(home, DefaultConfigDir))
	}

	setDefaults(v, home)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			// Config file exists but is malformed.
			if !isNotExist(err) {
				return nil, fmt.Errorf("reading config: %w", err)
			}
		}
		// No config yet — defaults apply until the first Save.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	expandPaths(&cfg, home)
	return &cfg, nil
}

// Save writes the config to disk as JSON.
func Save(cfg *Config, configPath string) error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("cannot determine home directory: %w", err)
	}

	if configPath == "" {
		configPath = filepath.Join(home, DefaultConfigDir, DefaultConfigFile)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("serialising config: %w", err)
	}

	return os.WriteFile(configPath, data, 0o600)
}

// ConfigPath returns the effective config file path.
func ConfigPath(override string) (string, error) {
	if override != "" {
		return override, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, DefaultConfigDir, DefaultConfigFile), nil
}

// EnsureDir creates ~/.nbcheck and ~/.nbcheck/suites if they don't exist.
func EnsureDir() error {
	home, err := os.UserHomeDir()
	if err != nil {
		return err
	}
	dirs := []string{
		filepath.Join(home, DefaultConfigDir),
		filepath.Join(home, DefaultSuitesDir),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o700); err != nil {
			return fmt.Errorf("creating directory %s: %w", d, err)
		}
	}
	return nil
}

// setDefaults populates viper with sensible out-of-the-box values.
func setDefaults(v *viper.Viper, home string) {
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", filepath.Join(home, DefaultDBFile))
	v.SetDefault("database.dsn", "")

	v.SetDefault("check.workers", 4)
	v.SetDefault("check.suite", "clean-outputs")
	v.SetDefault("check.suites_dir", filepath.Join(home, DefaultSuitesDir))
	v.SetDefault("check.watchlist", []string{})

	v.SetDefault("notify.min_severity", "high")

	v.SetDefault("server.port", 8787)
}

// expandPaths resolves ~ in configured paths.
func expandPaths(cfg *Config, home string) {
	cfg.Database.Path = expandHome(cfg.Database.Path, home)
	cfg.Check.SuitesDir = expandHome(cfg.Check.SuitesDir, home)
}

func expandHome(path, home string) string {
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}

func isNotExist(err error) bool {
	return os.IsNotExist(err) || strings.Contains(err.Error(), "no such file")
}
