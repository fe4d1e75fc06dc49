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
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

type memSecrets map[string]string

func (m memSecrets) Get(service, key string) (string, error) {
	v, ok := m[service+"/"+key]
	if !ok {
		return "", ErrSecretNotFound
	}
	return v, nil
}
func (m memSecrets) Set(service, key, value string) error { m[service+"/"+key] = value; return nil }
func (m memSecrets) Delete(service, key string) error      { delete(m, service+"/"+key); return nil }

// isolate points the config file at a temp dir and swaps the keyring for an in-memory map.
func isolate(t *testing.T) (string, memSecrets) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	t.Setenv(EnvConfigFile, path)
	for _, env := range []string{EnvStoreDriver, EnvStorePath, EnvStoreDSN, EnvStoreTimeoutMs, EnvLogLevel, EnvLogFormat, EnvLogSource, EnvLogFile} {
		t.Setenv(env, "")
	}
	secrets := memSecrets{}
	old := secretStore
	secretStore = secrets
	t.Cleanup(func() { secretStore = old })
	return path, secrets
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	isolate(t)
	cfg, secret, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Store.Driver != DriverSQLite || cfg.Store.Path != "library.db" {
		t.Fatalf("unexpected store defaults: %#v", cfg.Store)
	}
	if secret != "" {
		t.Fatalf("sqlite config should not read a secret, got %q", secret)
	}
}

func TestEnvOverridesStorePath(t *testing.T) {
	isolate(t)
	t.Setenv(EnvStorePath, "/var/lib/librarydesk/books.db")
	cfg, _, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if got, want := cfg.Store.Path, "/var/lib/librarydesk/books.db"; got != want {
		t.Fatalf("Store.Path = %q, want %q", got, want)
	}
	if env, ok := EnvOverrideFor("store.path"); !ok || env != EnvStorePath {
		t.Fatalf("EnvOverrideFor(store.path) = %q, %v", env, ok)
	}
	if _, ok := EnvOverrideFor("store.dsn"); ok {
		t.Fatalf("store.dsn should not be reported as overridden")
	}
}

func TestSaveThenLoadRoundTripsFileAndSecret(t *testing.T) {
	path, secrets := isolate(t)
	cfg := Defaults()
	cfg.Store.Driver = DriverPostgres
	cfg.Store.DSN = "postgres://librarian@localhost:5432/library?sslmode=disable"
	if err := Save(cfg, "s3cret"); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config file not written: %v", err)
	}
	if secrets[keyringService+"/"+keyringSecret] != "s3cret" {
		t.Fatalf("secret not stored in keyring: %v", secrets)
	}

	got, secret, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if got.Store.Driver != DriverPostgres || got.Store.DSN != cfg.Store.DSN {
		t.Fatalf("store config not round-tripped: %#v", got.Store)
	}
	if secret != "s3cret" {
		t.Fatalf("secret = %q, want s3cret", secret)
	}
}

func TestClearSecretRemovesStoredPassword(t *testing.T) {
	_, secrets := isolate(t)
	if err := Save(Defaults(), "s3cret"); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	if err := ClearSecret(); err != nil {
		t.Fatalf("ClearSecret() error: %v", err)
	}
	if _, ok := secrets[keyringService+"/"+keyringSecret]; ok {
		t.Fatalf("secret still stored: %v", secrets)
	}
	if err := ClearSecret(); err != nil {
		t.Fatalf("clearing twice should succeed: %v", err)
	}
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	path, _ := isolate(t)
	if err := os.WriteFile(path, []byte("store: [unclosed"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, err := Load(); err == nil {
		t.Fatalf("expected parse error for malformed config")
	}
}

func TestMergeIncludesLogging(t *testing.T) {
	dst := Defaults()
	src := Defaults()
	src.Logging.Level = "debug"
	src.Logging.Format = "json"
	src.Logging.Source = true
	src.Logging.File = "C:/tmp/libdesk.log"
	mergeInto(&dst, &src)
	if dst.Logging.Level != "debug" || dst.Logging.Format != "json" || !dst.Logging.Source || dst.Logging.File != "C:/tmp/libdesk.log" {
		t.Fatalf("logging fields not merged correctly: %#v", dst.Logging)
	}
}

func TestEnvOverridesLogging(t *testing.T) {
	isolate(t)
	t.Setenv(EnvLogLevel, "error")
	t.Setenv(EnvLogFormat, "json")
	t.Setenv(EnvLogSource, "1")
	t.Setenv(EnvLogFile, "X:/libdesk.log")
	cfg, _, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Logging.Level != "error" || cfg.Logging.Format != "json" || !cfg.Logging.Source || cfg.Logging.File != "X:/libdesk.log" {
		t.Fatalf("env overrides not applied to logging: %#v", cfg.Logging)
	}
}

func TestStoreTimeoutFallback(t *testing.T) {
	if got := (StoreConfig{TimeoutMs: 250}).Timeout(); got != 250*time.Millisecond {
		t.Fatalf("Timeout() = %v", got)
	}
	if got := (StoreConfig{}).Timeout(); got != 5*time.Second {
		t.Fatalf("Timeout() fallback = %v", got)
	}
}

func TestConnString(t *testing.T) {
	s := StoreConfig{Driver: DriverSQLite, Path: "lib.db"}
	if got, err := s.ConnString("ignored"); err != nil || got != "lib.db" {
		t.Fatalf("sqlite ConnString = %q, %v", got, err)
	}

	pg := StoreConfig{Driver: DriverPostgres, DSN: "postgres://librarian@db:5432/library?sslmode=disable"}
	got, err := pg.ConnString("p@ss")
	if err != nil {
		t.Fatalf("postgres ConnString error: %v", err)
	}
	if !strings.Contains(got, "librarian:p%40ss@db:5432") {
		t.Fatalf("password not injected: %q", got)
	}

	if _, err := (StoreConfig{Driver: "mysql"}).ConnString(""); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
}
