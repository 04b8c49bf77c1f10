package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	cfg := Default()
	cfg.DefaultProfile = "work"
	cfg.Directory.Cooldown = Duration{5 * time.Second}
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.DefaultProfile != "work" {
		t.Errorf("DefaultProfile = %q, want %q", loaded.DefaultProfile, "work")
	}
	if loaded.Directory.Cooldown.Duration != 5*time.Second {
		t.Errorf("Cooldown = %v, want 5s", loaded.Directory.Cooldown)
	}
}

func TestLoadPartialKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := "[server]\naddr = \":9999\"\nsignup_interval = \"250ms\"\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Addr != ":9999" {
		t.Errorf("Addr = %q, want :9999", cfg.Server.Addr)
	}
	if cfg.Server.SignupInterval.Duration != 250*time.Millisecond {
		t.Errorf("SignupInterval = %v, want 250ms", cfg.Server.SignupInterval)
	}
	if cfg.Directory.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want default 3", cfg.Directory.MaxRetries)
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := Load("/nonexistent/config.toml")
	if err == nil {
		t.Error("Load() expected error for missing file")
	}

	cfg, err := LoadOrDefault("/nonexistent/config.toml")
	if err != nil {
		t.Fatalf("LoadOrDefault() error = %v", err)
	}
	if cfg.Directory.Cooldown.Duration != 2*time.Second {
		t.Errorf("Cooldown = %v, want 2s", cfg.Directory.Cooldown)
	}
}

func TestSavePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	if err := Save(path, Default()); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("file permission = %o, want 0600", perm)
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("PERISKOPE_ADDR", ":7000")
	t.Setenv("PERISKOPE_ALLOWED_ORIGINS", "http://a.test, http://b.test")
	t.Setenv("PERISKOPE_TOKEN_TTL", "90m")
	t.Setenv("PERISKOPE_MAX_RETRIES", "5")

	cfg := Default()
	if err := cfg.ApplyEnv(); err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Addr != ":7000" {
		t.Errorf("Addr = %q, want :7000", cfg.Server.Addr)
	}
	if len(cfg.Server.AllowedOrigins) != 2 || cfg.Server.AllowedOrigins[1] != "http://b.test" {
		t.Errorf("AllowedOrigins = %v", cfg.Server.AllowedOrigins)
	}
	if cfg.Server.TokenTTL.Duration != 90*time.Minute {
		t.Errorf("TokenTTL = %v, want 90m", cfg.Server.TokenTTL)
	}
	if cfg.Directory.MaxRetries != 5 {
		t.Errorf("MaxRetries = %d, want 5", cfg.Directory.MaxRetries)
	}
}

func TestApplyEnvBadDuration(t *testing.T) {
	t.Setenv("PERISKOPE_TOKEN_TTL", "soon")
	if err := Default().ApplyEnv(); err == nil {
		t.Error("ApplyEnv() expected error for bad duration")
	}
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("PERISKOPE_TEST_DOTENV=loaded\n"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PERISKOPE_TEST_DOTENV", "")
	os.Unsetenv("PERISKOPE_TEST_DOTENV")

	if err := LoadDotEnv(path, filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatal(err)
	}
	if got := os.Getenv("PERISKOPE_TEST_DOTENV"); got != "loaded" {
		t.Errorf("PERISKOPE_TEST_DOTENV = %q, want loaded", got)
	}
}
