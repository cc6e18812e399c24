package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// EnvOverrides are the environment variables that win over the config file.
type EnvOverrides struct {
	ConfigPath    string `env:"TASKTABLE_CONFIG"`
	LogLevel      string `env:"TASKTABLE_LOG_LEVEL"`
	DispatchMode  string `env:"TASKTABLE_DISPATCH_MODE"`
	StorageDriver string `env:"TASKTABLE_STORAGE_DRIVER"`
	StoragePath   string `env:"TASKTABLE_STORAGE_PATH"`
}

// LoadDotenv loads the given dotenv files into the process environment.
// Missing files are skipped; variables already set are not overwritten.
func LoadDotenv(files ...string) error {
	for _, f := range files {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		if _, err := os.Stat(f); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("dotenv %s: %w", f, err)
		}
	}
	return nil
}

// ReadEnv parses overrides from the process environment.
func ReadEnv() (EnvOverrides, error) {
	var ov EnvOverrides
	if err := env.Parse(&ov); err != nil {
		return EnvOverrides{}, fmt.Errorf("env: %w", err)
	}
	return ov, nil
}

// ReadEnvFrom parses overrides from an explicit environment map.
func ReadEnvFrom(environ map[string]string) (EnvOverrides, error) {
	var ov EnvOverrides
	if err := env.ParseWithOptions(&ov, env.Options{Environment: environ}); err != nil {
		return EnvOverrides{}, fmt.Errorf("env: %w", err)
	}
	return ov, nil
}

// Apply copies the non-empty overrides into cfg.
func (ov EnvOverrides) Apply(cfg *Config) {
	if cfg == nil {
		return
	}
	if v := strings.TrimSpace(ov.LogLevel); v != "" {
		cfg.Logging.Level = v
	}
	if v := strings.TrimSpace(ov.DispatchMode); v != "" {
		cfg.Dispatch.Mode = v
	}
	driver := strings.TrimSpace(ov.StorageDriver)
	path := strings.TrimSpace(ov.StoragePath)
	if driver == "" && path == "" {
		return
	}
	if cfg.Storage == nil {
		cfg.Storage = &StorageConfig{}
	}
	if driver != "" {
		cfg.Storage.Driver = driver
	}
	if path != "" {
		cfg.Storage.Path = path
	}
}

func (ov EnvOverrides) IsZero() bool {
	return ov == EnvOverrides{}
}
