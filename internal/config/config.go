/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// AppConfig is the user-editable configuration persisted to a YAML file in the user scope.
// Environment variables are treated as read-only overrides at runtime.
//
// config_version: bump when the structure changes in a backward-incompatible way.
// Unknown fields are ignored on unmarshal.

type StoreConfig struct {
	Driver    string `yaml:"driver"` // "sqlite" | "postgres"
	Path      string `yaml:"path"`   // sqlite database file
	DSN       string `yaml:"dsn"`    // postgres connection URL, without password
	TimeoutMs int    `yaml:"timeout_ms"`
	// The postgres password is not stored on disk; it lives in the OS keychain.
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Source bool   `yaml:"source"`
	File   string `yaml:"file"`
}

type AppConfig struct {
	ConfigVersion int           `yaml:"config_version"`
	Store         StoreConfig   `yaml:"store"`
	Logging       LoggingConfig `yaml:"logging"`
}

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Defaults returns the application defaults.
func Defaults() AppConfig {
	return AppConfig{
		ConfigVersion: 1,
		Store:         StoreConfig{Driver: DriverSQLite, Path: "library.db", TimeoutMs: 5000},
		Logging:       LoggingConfig{Level: "warn", Format: "console", Source: false, File: ""},
	}
}

// Env var names used as overrides.
const (
	EnvConfigFile     = "LIBDESK_CONFIG"
	EnvStoreDriver    = "LIBDESK_STORE_DRIVER"
	EnvStorePath      = "LIBDESK_STORE_PATH"
	EnvStoreDSN       = "LIBDESK_STORE_DSN"
	EnvStoreTimeoutMs = "LIBDESK_STORE_TIMEOUT_MS"
	// EnvLogLevel Logging envs
	EnvLogLevel  = "LIBDESK_LOG_LEVEL"
	EnvLogFormat = "LIBDESK_LOG_FORMAT"
	EnvLogSource = "LIBDESK_LOG_SOURCE"
	EnvLogFile   = "LIBDESK_LOG_FILE"
)

// Service/keys for OS keyring.
const (
	keyringService = "LibraryDesk"
	keyringSecret  = "postgres_password"
)

// secretStore abstracts keyring, so we can stub in tests.
var secretStore SecretStore = &osKeyring{}

type SecretStore interface {
	Get(service, key string) (string, error)
	Set(service, key, value string) error
	Delete(service, key string) error
}

// osKeyring implements SecretStore using the OS keyring via github.com/zalando/go-keyring.
type osKeyring struct{}

func (k *osKeyring) Get(service, key string) (string, error) { return keyringGet(service, key) }
func (k *osKeyring) Set(service, key, value string) error     { return keyringSet(service, key, value) }
func (k *osKeyring) Delete(service, key string) error         { return keyringDelete(service, key) }

// ConfigPath returns the per-user config file path. LIBDESK_CONFIG takes precedence.
func ConfigPath() (string, error) {
	if v := strings.TrimSpace(os.Getenv(EnvConfigFile)); v != "" {
		return v, nil
	}
	var base string
	switch runtime.GOOS {
	case "windows":
		base = os.Getenv("AppData")
		if base == "" { // fallback
			base = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
		base = filepath.Join(base, "LibraryDesk")
	case "darwin":
		base = filepath.Join(os.Getenv("HOME"), "Library", "Application Support", "LibraryDesk")
	default: // linux and others
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			base = filepath.Join(xdg, "librarydesk")
		} else {
			base = filepath.Join(os.Getenv("HOME"), ".config", "librarydesk")
		}
	}
	if base == "" {
		return "", errors.New("cannot resolve config directory")
	}
	return filepath.Join(base, "config.yaml"), nil
}

// Load reads user config file (if present), applies defaults, and merges environment overrides.
// It also loads the postgres password from keyring (not kept inside the struct; returned separately).
// A config file that exists but does not parse is reported as an error.
func Load() (AppConfig, string, error) {
	cfg := Defaults()
	path, err := ConfigPath()
	if err != nil {
		return cfg, "", err
	}
	if data, err := os.ReadFile(path); err == nil {
		var fileCfg AppConfig
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			return cfg, "", fmt.Errorf("parse %s: %w", path, err)
		}
		mergeInto(&cfg, &fileCfg)
	}
	applyEnvOverrides(&cfg)
	var secret string
	if cfg.Store.Driver == DriverPostgres {
		secret, _ = secretStore.Get(keyringService, keyringSecret)
	}
	return cfg, secret, nil
}

// Save writes the user config YAML and persists the secret into OS keyring (if non-empty).
func Save(cfg AppConfig, secret string) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return err
	}
	if secret != "" {
		if err := secretStore.Set(keyringService, keyringSecret, secret); err != nil {
			return err
		}
	}
	return nil
}

// ClearSecret removes the postgres password from the OS keyring. A missing entry is not an error.
func ClearSecret() error {
	return secretStore.Delete(keyringService, keyringSecret)
}

func mergeInto(dst *AppConfig, src *AppConfig) {
	if src.ConfigVersion != 0 {
		dst.ConfigVersion = src.ConfigVersion
	}
	if s := strings.ToLower(strings.TrimSpace(src.Store.Driver)); s != "" {
		dst.Store.Driver = s
	}
	if s := strings.TrimSpace(src.Store.Path); s != "" {
		dst.Store.Path = s
	}
	if s := strings.TrimSpace(src.Store.DSN); s != "" {
		dst.Store.DSN = s
	}
	if src.Store.TimeoutMs != 0 {
		dst.Store.TimeoutMs = src.Store.TimeoutMs
	}
	// logging
	if strings.TrimSpace(src.Logging.Level) != "" {
		dst.Logging.Level = strings.ToLower(strings.TrimSpace(src.Logging.Level))
	}
	if strings.TrimSpace(src.Logging.Format) != "" {
		dst.Logging.Format = strings.ToLower(strings.TrimSpace(src.Logging.Format))
	}
	dst.Logging.Source = src.Logging.Source
	if strings.TrimSpace(src.Logging.File) != "" {
		dst.Logging.File = strings.TrimSpace(src.Logging.File)
	}
}

func parseBool(v string) bool {
	lv := strings.ToLower(strings.TrimSpace(v))
	return lv == "1" || lv == "true" || lv == "on" || lv == "yes"
}

func applyEnvOverrides(cfg *AppConfig) {
	if v := strings.TrimSpace(os.Getenv(EnvStoreDriver)); v != "" {
		cfg.Store.Driver = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvStorePath)); v != "" {
		cfg.Store.Path = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvStoreDSN)); v != "" {
		cfg.Store.DSN = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvStoreTimeoutMs)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Store.TimeoutMs = n
		}
	}
	// logging overrides
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFormat)); v != "" {
		cfg.Logging.Format = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogSource)); v != "" {
		cfg.Logging.Source = parseBool(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFile)); v != "" {
		cfg.Logging.File = v
	}
}

// EnvOverrideFor returns the env var name if the field is overridden by environment variables.
func EnvOverrideFor(key string) (string, bool) {
	names := map[string]string{
		"store.driver":     EnvStoreDriver,
		"store.path":       EnvStorePath,
		"store.dsn":        EnvStoreDSN,
		"store.timeout_ms": EnvStoreTimeoutMs,
		"logging.level":    EnvLogLevel,
		"logging.format":   EnvLogFormat,
		"logging.source":   EnvLogSource,
		"logging.file":     EnvLogFile,
	}
	if env, ok := names[key]; ok && os.Getenv(env) != "" {
		return env, true
	}
	return "", false
}

// Timeout returns the per-operation store timeout, falling back to the default for non-positive values.
func (s StoreConfig) Timeout() time.Duration {
	if s.TimeoutMs <= 0 {
		return time.Duration(Defaults().Store.TimeoutMs) * time.Millisecond
	}
	return time.Duration(s.TimeoutMs) * time.Millisecond
}

// ConnString returns the data source for the configured driver.
// For postgres a non-empty secret replaces the password of the DSN.
func (s StoreConfig) ConnString(secret string) (string, error) {
	switch s.Driver {
	case "", DriverSQLite:
		if strings.TrimSpace(s.Path) == "" {
			return "", errors.New("store.path is required for the sqlite driver")
		}
		return s.Path, nil
	case DriverPostgres:
		if strings.TrimSpace(s.DSN) == "" {
			return "", errors.New("store.dsn is required for the postgres driver")
		}
		if secret == "" {
			return s.DSN, nil
		}
		u, err := url.Parse(s.DSN)
		if err != nil {
			return "", fmt.Errorf("parse store.dsn: %w", err)
		}
		user := ""
		if u.User != nil {
			user = u.User.Username()
		}
		u.User = url.UserPassword(user, secret)
		return u.String(), nil
	default:
		return "", fmt.Errorf("unknown store driver %q", s.Driver)
	}
}
