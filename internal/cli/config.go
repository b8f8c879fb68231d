package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/roach88/qinfer/internal/infer"
)

const (
	maxWalkDepth = 25

	defaultStorePath   = "qinfer.db"
	defaultParallelism = 4
)

// Config represents the qinfer configuration from qinfer.yaml.
type Config struct {
	// Model is the CUE model file or package directory.
	Model string `mapstructure:"model"`

	// MaxDepth bounds query nesting and calculated element linking.
	MaxDepth int `mapstructure:"max_depth"`

	// Parallelism bounds concurrent resolutions of `resolve --all`.
	Parallelism int `mapstructure:"parallelism"`

	// Store is the path of the SQLite resolution log.
	Store string `mapstructure:"store"`
}

// DefaultConfig returns the configuration used when no file, environment
// variable or flag sets a value.
func DefaultConfig() *Config {
	return &Config{
		MaxDepth:    infer.DefaultMaxDepth,
		Parallelism: defaultParallelism,
		Store:       defaultStorePath,
	}
}

// LoadConfig discovers and loads configuration with proper precedence:
// flags > env > config file > defaults. Flags are applied by the commands.
//
// Returns the loaded config, the path to the config file (empty if none found),
// and any error encountered.
func LoadConfig(explicitConfigPath string) (*Config, string, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("QINFER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	configPath, err := findConfigFile(explicitConfigPath)
	if err != nil {
		return nil, "", err
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, configPath, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, configPath, fmt.Errorf("unmarshaling config: %w", err)
	}
	if cfg.MaxDepth < 1 {
		return nil, configPath, fmt.Errorf("max_depth must be positive, got %d", cfg.MaxDepth)
	}

	// A relative model or store path in a config file is relative to the file.
	if configPath != "" {
		base := filepath.Dir(configPath)
		if v.InConfig("model") && cfg.Model != "" && !filepath.IsAbs(cfg.Model) && os.Getenv("QINFER_MODEL") == "" {
			cfg.Model = filepath.Join(base, cfg.Model)
		}
		if v.InConfig("store") && !filepath.IsAbs(cfg.Store) && os.Getenv("QINFER_STORE") == "" {
			cfg.Store = filepath.Join(base, cfg.Store)
		}
	}

	return &cfg, configPath, nil
}

func setDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("model", d.Model)
	v.SetDefault("max_depth", d.MaxDepth)
	v.SetDefault("parallelism", d.Parallelism)
	v.SetDefault("store", d.Store)
}

// findConfigFile finds the config file to use.
// If explicitPath is provided, it validates the file exists.
// Otherwise, it walks up from cwd looking for qinfer.yaml or qinfer.yml,
// stopping at a .git directory or after maxWalkDepth levels.
func findConfigFile(explicitPath string) (string, error) {
	if explicitPath != "" {
		if _, err := os.Stat(explicitPath); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicitPath)
		}
		return explicitPath, nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getting cwd: %w", err)
	}

	dir := cwd
	for i := 0; i < maxWalkDepth; i++ {
		for _, name := range []string{"qinfer.yaml", "qinfer.yml"} {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err == nil {
				return path, nil
			}
		}

		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			break
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", nil
}

// ModelPath returns the model path of a command: the flag when set,
// otherwise the configured model.
func (c *Config) ModelPath(flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	if c.Model != "" {
		return c.Model, nil
	}
	return "", fmt.Errorf("no model: pass --model or set model in qinfer.yaml")
}

// StorePath returns the store path of a command, with the flag taking
// precedence over the configured store.
func (c *Config) StorePath(flag string) string {
	if flag != "" {
		return flag
	}
	return c.Store
}
