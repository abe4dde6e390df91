// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

// Package config loads stager defaults from a config file, a .env file and
// STAGER_* environment variables. Command-line flags override all of them.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/jinzhu/configor"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config - stager configuration
type Config struct {
	DatasetRoot        string   `yaml:"dataset_root" json:"dataset_root" default:"Food101_Training" env:"STAGER_DATASET_ROOT"`
	DatasetURLs        []string `yaml:"dataset_urls,omitempty" json:"dataset_urls,omitempty"`
	ModelsDir          string   `yaml:"models_dir" json:"models_dir" default:"MacroTrackr/Models" env:"STAGER_MODELS_DIR"`
	Timeout            string   `yaml:"timeout" json:"timeout" default:"5m" env:"STAGER_TIMEOUT"` // idle time per attempt
	InsecureSkipVerify bool     `yaml:"insecure_skip_verify" json:"insecure_skip_verify" env:"STAGER_INSECURE_SKIP_VERIFY"`
	UserAgent          string   `yaml:"user_agent" json:"user_agent" default:"stager/1" env:"STAGER_USER_AGENT"`
	BackoffInitial     string   `yaml:"backoff_initial" json:"backoff_initial" default:"400ms" env:"STAGER_BACKOFF_INITIAL"`
	BackoffMax         string   `yaml:"backoff_max" json:"backoff_max" default:"10s" env:"STAGER_BACKOFF_MAX"`
	PreviewLimit       int      `yaml:"preview_limit" json:"preview_limit" default:"10" env:"STAGER_PREVIEW_LIMIT"`
	LockStale          string   `yaml:"lock_stale" json:"lock_stale" default:"6h" env:"STAGER_LOCK_STALE"`
	RedisLock          string   `yaml:"redis_lock,omitempty" json:"redis_lock,omitempty" env:"STAGER_REDIS_LOCK"` // host:port
	LogLevel           string   `yaml:"log_level" json:"log_level" default:"info" env:"STAGER_LOG_LEVEL"`
}

// baseName is the config file name without extension.
const baseName = "stager"

// Dir returns the directory config files live in.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config"
	}
	return filepath.Join(home, ".config")
}

// DefaultPath returns the path config init writes to.
func DefaultPath(useYAML bool) string {
	ext := ".json"
	if useYAML {
		ext = ".yaml"
	}
	return filepath.Join(Dir(), baseName+ext)
}

// Find returns the first existing config file in Dir, or "".
func Find() string {
	for _, ext := range []string{".yaml", ".yml", ".json"} {
		p := filepath.Join(Dir(), baseName+ext)
		if fi, err := os.Stat(p); err == nil && fi.Mode().IsRegular() {
			return p
		}
	}
	return ""
}

// LoadEnv loads a .env file into the process environment without
// overriding variables already set. An empty path means "./.env", and a
// missing default file is not an error.
func LoadEnv(path string) error {
	if path == "" {
		if _, err := os.Stat(".env"); err != nil {
			return nil
		}
		path = ".env"
	}
	return errors.Wrapf(godotenv.Load(path), "load env file %s", path)
}

// Load reads defaults, then path (or the file Find returns), then STAGER_*
// environment variables.
func Load(path string) (*Config, error) {
	if path == "" {
		path = Find()
	}
	var files []string
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, errors.Wrapf(err, "config file %s", path)
		}
		files = append(files, path)
	}

	cfg := &Config{}
	err := configor.New(&configor.Config{
		ENVPrefix:  "STAGER",
		Debug:      false,
		Verbose:    false,
		Silent:     true,
		AutoReload: false,
	}).Load(cfg, files...)
	if err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	return cfg, nil
}

// Marshal encodes c as YAML or indented JSON.
func Marshal(c *Config, useYAML bool) ([]byte, error) {
	if useYAML {
		return yaml.Marshal(c)
	}
	return json.MarshalIndent(c, "", "  ")
}

// Write stores c at path, choosing the format from the extension.
// Existing files are only replaced when force is set.
func Write(path string, c *Config, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return errors.Newf("config file already exists: %s", path)
	}
	ext := strings.ToLower(filepath.Ext(path))
	data, err := Marshal(c, ext == ".yaml" || ext == ".yml")
	if err != nil {
		return errors.Wrap(err, "encode config")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "create config directory")
	}
	return errors.Wrap(os.WriteFile(path, data, 0o644), "write config file")
}
