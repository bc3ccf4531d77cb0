package cfg

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/joho/godotenv"
)

func validCfg() *Cfg {
	return &Cfg{
		Port:            "8080",
		Environment:     "development",
		DatabasePath:    ":memory:",
		LRUCacheSize:    1000,
		RateLimit:       RateLimitCfg{RPM: 60, Burst: 10, ConservativeLimit: 5},
		MaxSnippetSize:  64 * 1024,
		CipherMode:      "aes-gcm",
		KeySource:       "env",
		EncryptionKey:   NewSecret("dGVzdC1rZXktdGVzdC1rZXktdGVzdC1rZXktMzI="),
		ReclaimInterval: time.Hour,
	}
}

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{
		"PORT", "ENVIRONMENT", "DATABASE_PATH", "CIPHER_MODE", "KEY_SOURCE",
		"MAX_SNIPPET_SIZE", "RECLAIM_INTERVAL", "LRU_CACHE_SIZE",
	} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
	c, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Port != "8080" {
		t.Errorf("Port = %s, want 8080", c.Port)
	}
	if c.CipherMode != "aes-gcm" {
		t.Errorf("CipherMode = %s, want aes-gcm", c.CipherMode)
	}
	if c.KeySource != "env" {
		t.Errorf("KeySource = %s, want env", c.KeySource)
	}
	if c.MaxSnippetSize != 64*1024 {
		t.Errorf("MaxSnippetSize = %d, want %d", c.MaxSnippetSize, 64*1024)
	}
	if c.ReclaimInterval != time.Hour {
		t.Errorf("ReclaimInterval = %v, want 1h", c.ReclaimInterval)
	}
	if c.LRUCacheSize != 1000 {
		t.Errorf("LRUCacheSize = %d, want 1000", c.LRUCacheSize)
	}
}

func TestLoad_FromEnvFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	content := "PORT=9090\nCIPHER_MODE=xchacha20\nRECLAIM_INTERVAL=30m\n"
	if err := os.WriteFile(envFile, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PORT", "")
	os.Unsetenv("PORT")
	t.Setenv("CIPHER_MODE", "")
	os.Unsetenv("CIPHER_MODE")
	t.Setenv("RECLAIM_INTERVAL", "")
	os.Unsetenv("RECLAIM_INTERVAL")

	if err := godotenv.Load(envFile); err != nil {
		t.Fatalf("godotenv.Load: %v", err)
	}
	defer func() {
		os.Unsetenv("PORT")
		os.Unsetenv("CIPHER_MODE")
		os.Unsetenv("RECLAIM_INTERVAL")
	}()

	c, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Port != "9090" {
		t.Errorf("Port = %s, want 9090", c.Port)
	}
	if c.CipherMode != "xchacha20" {
		t.Errorf("CipherMode = %s, want xchacha20", c.CipherMode)
	}
	if c.ReclaimInterval != 30*time.Minute {
		t.Errorf("ReclaimInterval = %v, want 30m", c.ReclaimInterval)
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	t.Setenv("RECLAIM_INTERVAL", "not-a-duration")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for malformed duration")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Cfg)
		wantErr bool
	}{
		{"valid", func(c *Cfg) {}, false},
		{"empty port", func(c *Cfg) { c.Port = "" }, true},
		{"non-numeric port", func(c *Cfg) { c.Port = "http" }, true},
		{"empty db path", func(c *Cfg) { c.DatabasePath = "" }, true},
		{"db path escapes workdir", func(c *Cfg) { c.DatabasePath = "/etc/passwd" }, true},
		{"bad redis scheme", func(c *Cfg) { c.RedisURL = "http://localhost:6379" }, true},
		{"rediss without tls flag", func(c *Cfg) { c.RedisURL = "rediss://localhost:6379" }, true},
		{"zero cache size", func(c *Cfg) { c.LRUCacheSize = 0 }, true},
		{"zero rpm", func(c *Cfg) { c.RateLimit.RPM = 0 }, true},
		{"zero max size", func(c *Cfg) { c.MaxSnippetSize = 0 }, true},
		{"max size over 10MB", func(c *Cfg) { c.MaxSnippetSize = 11 * 1024 * 1024 }, true},
		{"unknown cipher mode", func(c *Cfg) { c.CipherMode = "rot13" }, true},
		{"unknown key source", func(c *Cfg) { c.KeySource = "carrier-pigeon" }, true},
		{"env source without key", func(c *Cfg) { c.EncryptionKey = NewSecret("") }, true},
		{"file source without path", func(c *Cfg) { c.KeySource = "file"; c.KeyFile = "" }, true},
		{"reclaim interval too short", func(c *Cfg) { c.ReclaimInterval = 30 * time.Second }, true},
		{"reclaim interval too long", func(c *Cfg) { c.ReclaimInterval = 48 * time.Hour }, true},
		{"bad trusted proxy ip", func(c *Cfg) { c.TrustedProxies = []string{"not-an-ip"} }, true},
		{"bad trusted proxy cidr", func(c *Cfg) { c.TrustedProxies = []string{"10.0.0.0/99"} }, true},
		{"valid trusted proxies", func(c *Cfg) { c.TrustedProxies = []string{"10.0.0.1", "192.168.0.0/16"} }, false},
		{"production without metrics auth", func(c *Cfg) { c.Environment = "production" }, true},
		{"production with metrics auth", func(c *Cfg) {
			c.Environment = "production"
			c.MetricsUser = "metrics"
			c.MetricsPass = NewSecret("hunter2")
		}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validCfg()
			tt.mutate(c)
			err := Validate(c)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate: err = %v, wantErr = %v", err, tt.wantErr)
			}
		})
	}
}

func TestSecret_Redacted(t *testing.T) {
	s := NewSecret("topsecret")
	if s.String() == "topsecret" {
		t.Error("String must not reveal the secret")
	}
	if s.Value() != "topsecret" {
		t.Error("Value should return the secret")
	}
	s.Wipe()
	for _, b := range []byte(s.Value()) {
		if b != 0 {
			t.Fatal("Wipe left secret bytes behind")
		}
	}
}
