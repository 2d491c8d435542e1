package main

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/rvpalivoda/authsession/storage"
)

// Config is the sessionctl configuration. Values come from, in increasing
// priority: defaults, the YAML file, AUTHSESSION_* environment variables,
// command line flags.
type Config struct {
	Server    string        `yaml:"server" env:"AUTHSESSION_SERVER"`
	Timeout   time.Duration `yaml:"timeout" env:"AUTHSESSION_TIMEOUT" env-default:"15s"`
	LogLevel  string        `yaml:"log_level" env:"AUTHSESSION_LOG_LEVEL" env-default:"warn"`
	Proactive bool          `yaml:"proactive_renewal" env:"AUTHSESSION_PROACTIVE_RENEWAL"`
	Audit     bool          `yaml:"audit" env:"AUTHSESSION_AUDIT"`
	Store     StoreConfig   `yaml:"store"`
}

// StoreConfig selects where the session is kept between invocations.
type StoreConfig struct {
	Kind string `yaml:"kind" env:"AUTHSESSION_STORE" env-default:"file"`
	// Dir is the File store directory; empty means the user config dir.
	Dir         string        `yaml:"dir" env:"AUTHSESSION_STORE_DIR"`
	BoltPath    string        `yaml:"bolt_path" env:"AUTHSESSION_BOLT_PATH"`
	RedisAddr   string        `yaml:"redis_addr" env:"AUTHSESSION_REDIS_ADDR" env-default:"127.0.0.1:6379"`
	RedisPrefix string        `yaml:"redis_prefix" env:"AUTHSESSION_REDIS_PREFIX" env-default:"authsession:"`
	RedisTTL    time.Duration `yaml:"redis_ttl" env:"AUTHSESSION_REDIS_TTL"`
	// SealKey, when set, encrypts stored values. 32 bytes, hex or base64.
	SealKey string `yaml:"seal_key" env:"AUTHSESSION_SEAL_KEY"`
}

// LoadConfig reads path (when non-empty) and overlays the environment.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file %q: %w", path, err)
		}
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		return &cfg, nil
	}
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read env: %w", err)
	}
	return &cfg, nil
}

func (s StoreConfig) dir() (string, error) {
	if s.Dir != "" {
		return s.Dir, nil
	}
	return storage.DefaultDir("sessionctl")
}

func (s StoreConfig) boltPath() (string, error) {
	if s.BoltPath != "" {
		return s.BoltPath, nil
	}
	dir, err := s.dir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return filepath.Join(dir, "session.db"), nil
}

func (s StoreConfig) sealKey() ([]byte, error) {
	if s.SealKey == "" {
		return nil, nil
	}
	if key, err := hex.DecodeString(s.SealKey); err == nil {
		return key, nil
	}
	key, err := base64.StdEncoding.DecodeString(s.SealKey)
	if err != nil {
		return nil, fmt.Errorf("seal key is neither hex nor base64")
	}
	return key, nil
}
