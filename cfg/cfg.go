package cfg

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

type Secret struct {
	value []byte
}

func NewSecret(s string) Secret {
	return Secret{value: []byte(s)}
}
func (s Secret) Value() string {
	return string(s.value)
}
func (s Secret) Wipe() {
	for i := range s.value {
		s.value[i] = 0
	}
}
func (s Secret) String() string {
	return "***REDACTED***"
}

type Cfg struct {
	Port             string
	Environment      string
	LogLevel         string
	DatabasePath     string
	RedisURL         string
	RedisTLS         bool
	RedisUsername    string
	RedisPassword    Secret
	RedisTimeout     time.Duration
	LRUCacheSize     int
	RateLimit        RateLimitCfg
	MaxSnippetSize   int64
	ContextTimeout   time.Duration
	TrustedProxies   []string
	AllowedOrigins   []string
	MetricsUser      string
	MetricsPass      Secret
	DBMaxOpenConns   int
	DBMaxIdleConns   int
	DBQueryTimeout   time.Duration
	CipherMode       string
	KeySource        string
	EncryptionKey    Secret
	KeyFile          string
	VaultKeyMount    string
	VaultKeyPath     string
	VaultKeyField    string
	AWSKeySecretID   string
	KMSKeyCiphertext string
	ReclaimInterval  time.Duration
}

type RateLimitCfg struct {
	RPM               int
	Burst             int
	ConservativeLimit int
}

func Load() (*Cfg, error) {
	c := &Cfg{}
	c.Port = getEnv("PORT", "8080")
	c.Environment = getEnv("ENVIRONMENT", "development")
	c.LogLevel = getEnv("LOG_LEVEL", "info")
	c.DatabasePath = getEnv("DATABASE_PATH", "snipvault.db")
	c.RedisURL = getEnv("REDIS_URL", "")
	c.RedisTLS = getEnv("REDIS_TLS", "false") == "true"
	c.RedisUsername = getEnv("REDIS_USERNAME", "")
	c.RedisPassword = NewSecret(getEnv("REDIS_PASSWORD", ""))
	var err error
	c.RedisTimeout, err = getDuration("REDIS_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}
	c.LRUCacheSize, err = getInt("LRU_CACHE_SIZE", 1000)
	if err != nil {
		return nil, err
	}
	c.RateLimit.RPM, err = getInt("RATE_LIMIT_RPM", 60)
	if err != nil {
		return nil, err
	}
	c.RateLimit.Burst, err = getInt("RATE_LIMIT_BURST", 10)
	if err != nil {
		return nil, err
	}
	c.RateLimit.ConservativeLimit, err = getInt("RATE_LIMIT_CONSERVATIVE", 5)
	if err != nil {
		return nil, err
	}
	c.MaxSnippetSize, err = getInt64("MAX_SNIPPET_SIZE", 64*1024)
	if err != nil {
		return nil, err
	}
	c.ContextTimeout, err = getDuration("CONTEXT_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}
	c.TrustedProxies = getSlice("TRUSTED_PROXIES", []string{})
	c.AllowedOrigins = getSlice("ALLOWED_ORIGINS", []string{})
	c.MetricsUser = getEnv("METRICS_USER", "")
	c.MetricsPass = NewSecret(getEnv("METRICS_PASS", ""))
	c.DBMaxOpenConns, err = getInt("DB_MAX_OPEN_CONNS", 100)
	if err != nil {
		return nil, err
	}
	c.DBMaxIdleConns, err = getInt("DB_MAX_IDLE_CONNS", 10)
	if err != nil {
		return nil, err
	}
	c.DBQueryTimeout, err = getDuration("DB_QUERY_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}
	c.CipherMode = getEnv("CIPHER_MODE", "aes-gcm")
	c.KeySource = getEnv("KEY_SOURCE", "env")
	c.EncryptionKey = NewSecret(getEnv("ENCRYPTION_KEY", ""))
	c.KeyFile = getEnv("ENCRYPTION_KEY_FILE", "")
	c.VaultKeyMount = getEnv("VAULT_KEY_MOUNT", "secret")
	c.VaultKeyPath = getEnv("VAULT_KEY_PATH", "snipvault/encryption-key")
	c.VaultKeyField = getEnv("VAULT_KEY_FIELD", "key")
	c.AWSKeySecretID = getEnv("AWS_KEY_SECRET_ID", "")
	c.KMSKeyCiphertext = getEnv("KMS_KEY_CIPHERTEXT", "")
	c.ReclaimInterval, err = getDuration("RECLAIM_INTERVAL", 1*time.Hour)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func Validate(c *Cfg) error {
	if c.Port == "" {
		return errors.New("PORT is required")
	}
	if _, err := strconv.Atoi(c.Port); err != nil {
		return errors.New("PORT must be a number")
	}
	if c.DatabasePath == "" {
		return errors.New("DATABASE_PATH is required")
	}
	if c.DatabasePath != ":memory:" {
		workDir, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("failed to get working directory: %w", err)
		}
		absWorkDir, err := filepath.Abs(workDir)
		if err != nil {
			return fmt.Errorf("failed to resolve working directory: %w", err)
		}
		absDBPath, err := filepath.Abs(c.DatabasePath)
		if err != nil {
			return fmt.Errorf("invalid DATABASE_PATH: %w", err)
		}
		if !strings.HasPrefix(absDBPath, absWorkDir+string(filepath.Separator)) && absDBPath != absWorkDir {
			return fmt.Errorf("DATABASE_PATH must be within working directory %s", absWorkDir)
		}
	}
	if c.RedisURL != "" {
		if !strings.HasPrefix(c.RedisURL, "redis://") && !strings.HasPrefix(c.RedisURL, "rediss://") {
			return errors.New("REDIS_URL must start with redis:// or rediss://")
		}
		if strings.HasPrefix(c.RedisURL, "rediss://") && !c.RedisTLS {
			return errors.New("REDIS_URL uses rediss:// but REDIS_TLS=false")
		}
	}
	if c.LRUCacheSize <= 0 {
		return errors.New("LRU_CACHE_SIZE must be positive")
	}
	if c.RateLimit.RPM <= 0 {
		return errors.New("RATE_LIMIT_RPM must be positive")
	}
	if c.MaxSnippetSize <= 0 {
		return errors.New("MAX_SNIPPET_SIZE must be positive")
	}
	if c.MaxSnippetSize > 10*1024*1024 {
		return errors.New("MAX_SNIPPET_SIZE cannot exceed 10MB")
	}
	switch c.CipherMode {
	case "aes-ecb", "aes-gcm", "xchacha20":
	default:
		return fmt.Errorf("unknown CIPHER_MODE: %s", c.CipherMode)
	}
	switch c.KeySource {
	case "env", "file", "vault", "aws-secretsmanager", "aws-kms":
	default:
		return fmt.Errorf("unknown KEY_SOURCE: %s", c.KeySource)
	}
	if c.KeySource == "env" && c.EncryptionKey.Value() == "" {
		return errors.New("ENCRYPTION_KEY is required when KEY_SOURCE=env")
	}
	if c.KeySource == "file" && c.KeyFile == "" {
		return errors.New("ENCRYPTION_KEY_FILE is required when KEY_SOURCE=file")
	}
	if c.ReclaimInterval < 1*time.Minute {
		return errors.New("RECLAIM_INTERVAL must be at least 1 minute")
	}
	if c.ReclaimInterval > 24*time.Hour {
		return errors.New("RECLAIM_INTERVAL should not exceed 24 hours")
	}
	for _, proxy := range c.TrustedProxies {
		if strings.Contains(proxy, "/") {
			if _, _, err := net.ParseCIDR(proxy); err != nil {
				return fmt.Errorf("invalid CIDR in TRUSTED_PROXIES: %s", proxy)
			}
		} else {
			if net.ParseIP(proxy) == nil {
				return fmt.Errorf("invalid IP in TRUSTED_PROXIES: %s", proxy)
			}
		}
	}
	if c.Environment == "production" {
		if c.MetricsUser == "" || c.MetricsPass.Value() == "" {
			return errors.New("METRICS_USER and METRICS_PASS are required in production")
		}
	}
	return nil
}

func (c *Cfg) Wipe() {
	c.RedisPassword.Wipe()
	c.MetricsPass.Wipe()
	c.EncryptionKey.Wipe()
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}
func getInt(key string, fallback int) (int, error) {
	s := getEnv(key, "")
	if s == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid integer for %s: %w", key, err)
	}
	return v, nil
}
func getInt64(key string, fallback int64) (int64, error) {
	s := getEnv(key, "")
	if s == "" {
		return fallback, nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid integer for %s: %w", key, err)
	}
	return v, nil
}
func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	s := getEnv(key, "")
	if s == "" {
		return fallback, nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration for %s: %w", key, err)
	}
	return v, nil
}
func getSlice(key string, fallback []string) []string {
	s := getEnv(key, "")
	if s == "" {
		return fallback
	}
	parts := strings.Split(s, ",")
	var result []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
