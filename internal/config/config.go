package config

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
)

type TLSConfig struct {
	Mode     string `json:"mode"`     // "self-signed", "manual", or "" (disabled)
	CertFile string `json:"certFile"` // required for manual
	KeyFile  string `json:"keyFile"`  // required for manual
	CacheDir string `json:"cacheDir"` // for self-signed; defaults to ~/.rehab-hub/certs
}

type AuthConfig struct {
	JWTSecret      string `json:"jwtSecret"`
	AccessTokenTTL int    `json:"accessTokenTTLMinutes"`
	RefreshTTLDays int    `json:"refreshTokenTTLDays"`
}

type WebserverConfig struct {
	Port int       `json:"port"`
	Host string    `json:"host"`
	TLS  TLSConfig `json:"tls"`
}

type Config struct {
	Webserver  WebserverConfig `json:"webserver"`
	Auth       AuthConfig      `json:"auth"`
	UploadsDir string          `json:"uploadsDir"`
	LogDir     string          `json:"logDir"`
	LogLevel   string          `json:"logLevel"`
}

func Defaults() Config {
	home, _ := os.UserHomeDir()
	return Config{
		Webserver: WebserverConfig{
			Port: 3000,
			Host: "0.0.0.0",
		},
		Auth: AuthConfig{
			AccessTokenTTL: 60 * 24,
			RefreshTTLDays: 30,
		},
		UploadsDir: filepath.Join(home, ".rehab-hub", "uploads"),
		LogDir:     filepath.Join(home, ".rehab-hub", "logs"),
		LogLevel:   "info",
	}
}

func DefaultPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".rehab-hub", "config.json")
}

func DBPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".rehab-hub", "state.db")
}

func CertsDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".rehab-hub", "certs")
}

func Load(path string) (Config, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, err
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// EnsureJWTSecret generates and persists a random signing secret on first
// run so issued tokens survive server restarts.
func EnsureJWTSecret(path string, cfg *Config) error {
	if cfg.Auth.JWTSecret != "" {
		return nil
	}
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return err
	}
	cfg.Auth.JWTSecret = hex.EncodeToString(b)
	return Save(path, *cfg)
}
