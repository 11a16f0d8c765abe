package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/nattapongd/rehab-hub/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load("/nonexistent/path/config.json")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Webserver.Port != 3000 {
		t.Errorf("default port: got %d want 3000", cfg.Webserver.Port)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("default log level: got %q want info", cfg.LogLevel)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	os.WriteFile(path, []byte(`{"webserver":{"port":8443,"host":"127.0.0.1"}}`), 0644)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Webserver.Port != 8443 {
		t.Errorf("got %d want 8443", cfg.Webserver.Port)
	}
	if cfg.Webserver.Host != "127.0.0.1" {
		t.Errorf("got %q want 127.0.0.1", cfg.Webserver.Host)
	}
}

func TestEnsureJWTSecret(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	cfg := config.Defaults()

	if err := config.EnsureJWTSecret(path, &cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.Auth.JWTSecret == "" {
		t.Fatal("expected secret to be generated")
	}

	// A second load must see the same secret.
	loaded, err := config.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Auth.JWTSecret != cfg.Auth.JWTSecret {
		t.Error("secret not persisted")
	}

	// Ensure is a no-op when a secret already exists.
	before := cfg.Auth.JWTSecret
	if err := config.EnsureJWTSecret(path, &cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.Auth.JWTSecret != before {
		t.Error("secret rewritten on second Ensure")
	}
}
