package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Config represents the global ~/.periskope/config.toml.
type Config struct {
	DefaultProfile string          `toml:"default_profile"`
	Server         ServerConfig    `toml:"server"`
	Client         ClientConfig    `toml:"client"`
	Directory      DirectoryConfig `toml:"directory"`
}

// ServerConfig configures the periskoped daemon.
type ServerConfig struct {
	Addr           string   `toml:"addr"`
	PublicURL      string   `toml:"public_url"`
	DataDir        string   `toml:"data_dir"`
	AllowedOrigins []string `toml:"allowed_origins"`
	JWTSecret      string   `toml:"jwt_secret"`
	TokenTTL       Duration `toml:"token_ttl"`
	SignupInterval Duration `toml:"signup_interval"`
	SignupBurst    int      `toml:"signup_burst"`
}

// ClientConfig configures the periskope CLI.
type ClientConfig struct {
	BaseURL string   `toml:"base_url"`
	Timeout Duration `toml:"timeout"`
}

// DirectoryConfig configures user directory management.
type DirectoryConfig struct {
	Cooldown   Duration `toml:"cooldown"`
	RetryDelay Duration `toml:"retry_delay"`
	MaxRetries int      `toml:"max_retries"`
}

// Duration is a time.Duration that encodes as a string such as "2s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:           "127.0.0.1:8080",
			PublicURL:      "http://127.0.0.1:8080",
			AllowedOrigins: []string{"http://localhost:3000", "http://127.0.0.1:3000"},
			TokenTTL:       Duration{24 * time.Hour},
			SignupInterval: Duration{time.Second},
			SignupBurst:    3,
		},
		Client: ClientConfig{
			BaseURL: "http://127.0.0.1:8080",
			Timeout: Duration{15 * time.Second},
		},
		Directory: DirectoryConfig{
			Cooldown:   Duration{2 * time.Second},
			RetryDelay: Duration{2 * time.Second},
			MaxRetries: 3,
		},
	}
}

// Load reads config from the given path on top of the defaults. Returns an error if the file is missing.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault behaves like Load but returns the defaults when the file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

// LoadDotEnv loads the given .env files into the process environment without
// overriding variables that are already set. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	var existing []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	return godotenv.Load(existing...)
}

// ApplyEnv overrides config values from PERISKOPE_* environment variables.
func (c *Config) ApplyEnv() error {
	setString(&c.Server.Addr, "PERISKOPE_ADDR")
	setString(&c.Server.PublicURL, "PERISKOPE_PUBLIC_URL")
	setString(&c.Server.DataDir, "PERISKOPE_DATA_DIR")
	setString(&c.Server.JWTSecret, "PERISKOPE_JWT_SECRET")
	setString(&c.Client.BaseURL, "PERISKOPE_BASE_URL")
	if v, ok := os.LookupEnv("PERISKOPE_ALLOWED_ORIGINS"); ok {
		c.Server.AllowedOrigins = splitList(v)
	}
	if v, ok := os.LookupEnv("PERISKOPE_TOKEN_TTL"); ok {
		if err := c.Server.TokenTTL.UnmarshalText([]byte(v)); err != nil {
			return err
		}
	}
	if v, ok := os.LookupEnv("PERISKOPE_MAX_RETRIES"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		c.Directory.MaxRetries = n
	}
	return nil
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
