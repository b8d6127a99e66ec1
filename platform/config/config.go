// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// JWTConfig provides JWT validation settings for middleware.
type JWTConfig interface {
	GetJWTAccessSecret() string
	GetJWTIssuer() string
}

// AuthServiceConfig provides settings needed by the auth service.
type AuthServiceConfig interface {
	JWTConfig
	GetAccessTokenTTL() time.Duration
	GetRefreshTokenTTL() time.Duration
	GetMagicLinkTTL() time.Duration
	GetMagicLinkMinResponse() time.Duration
	GetAppBaseURL() string
}

// EncryptionConfig provides the secret used to derive the field encryption key.
type EncryptionConfig interface {
	FieldEncryptionSecret() string
}

// EmailConfig provides settings for email sending.
type EmailConfig interface {
	GetEmailEnabled() bool
	GetSMTPHost() string
	GetSMTPPort() int
	GetSMTPUsername() string
	GetSMTPPassword() string
	GetEmailFromName() string
	GetEmailFromAddress() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
}

// RedisConfig provides settings for the Redis connection.
type RedisConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
}

// SchedulerConfig provides settings for the asynq scheduler.
type SchedulerConfig interface {
	RedisConfig
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
	GetPurgeInterval() time.Duration
}

// CredentialStoreConfig selects the backend persisting login credentials.
type CredentialStoreConfig interface {
	GetCredentialStore() string
}

// TracingConfig provides settings for OpenTelemetry export.
type TracingConfig interface {
	GetOTLPEndpoint() string
	GetEnv() string
}

const (
	CredentialStorePostgres = "postgres"
	CredentialStoreRedis    = "redis"
)

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                  string
	HTTPAddr             string
	DatabaseURL          string
	MigrationsEnabled    bool
	JWTAccessSecret      string
	JWTIssuer            string
	AccessTokenTTL       time.Duration
	RefreshTokenTTL      time.Duration
	MagicLinkTTL         time.Duration
	MagicLinkMinResponse time.Duration
	FieldEncryptionKey   string
	CredentialStore      string
	CORSAllowAll         bool
	CORSOrigins          []string
	CORSAllowCreds       bool
	AppBaseURL           string
	EmailEnabled         bool
	SMTPHost             string
	SMTPPort             int
	SMTPUsername         string
	SMTPPassword         string
	EmailFromName        string
	EmailFromAddress     string
	RedisURL             string
	RedisTLSInsecure     bool
	AsynqQueueName       string
	AsynqConcurrency     int
	PurgeInterval        time.Duration
	OTLPEndpoint         string
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

// JWTConfig implementation
func (c *Config) GetJWTAccessSecret() string { return c.JWTAccessSecret }
func (c *Config) GetJWTIssuer() string       { return c.JWTIssuer }

// AuthServiceConfig implementation
func (c *Config) GetAccessTokenTTL() time.Duration       { return c.AccessTokenTTL }
func (c *Config) GetRefreshTokenTTL() time.Duration      { return c.RefreshTokenTTL }
func (c *Config) GetMagicLinkTTL() time.Duration         { return c.MagicLinkTTL }
func (c *Config) GetMagicLinkMinResponse() time.Duration { return c.MagicLinkMinResponse }
func (c *Config) GetAppBaseURL() string                  { return c.AppBaseURL }

// FieldEncryptionSecret returns the dedicated encryption secret, falling back
// to the access token signing secret when none is configured.
func (c *Config) FieldEncryptionSecret() string {
	if strings.TrimSpace(c.FieldEncryptionKey) != "" {
		return c.FieldEncryptionKey
	}
	return c.JWTAccessSecret
}

// EmailConfig implementation
func (c *Config) GetEmailEnabled() bool       { return c.EmailEnabled }
func (c *Config) GetSMTPHost() string         { return c.SMTPHost }
func (c *Config) GetSMTPPort() int            { return c.SMTPPort }
func (c *Config) GetSMTPUsername() string     { return c.SMTPUsername }
func (c *Config) GetSMTPPassword() string     { return c.SMTPPassword }
func (c *Config) GetEmailFromName() string    { return c.EmailFromName }
func (c *Config) GetEmailFromAddress() string { return c.EmailFromAddress }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool  { return c.CORSAllowCreds }

// SchedulerConfig implementation
func (c *Config) GetRedisURL() string             { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool       { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string       { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int        { return c.AsynqConcurrency }
func (c *Config) GetPurgeInterval() time.Duration { return c.PurgeInterval }

// CredentialStoreConfig implementation
func (c *Config) GetCredentialStore() string { return c.CredentialStore }

// TracingConfig implementation
func (c *Config) GetOTLPEndpoint() string { return c.OTLPEndpoint }
func (c *Config) GetEnv() string          { return c.Env }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:4200"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	smtpHost := getEnv("SMTP_HOST", "")
	emailEnabled := strings.EqualFold(getEnv("EMAIL_ENABLED", "true"), "true")

	cfg := &Config{
		Env:                  getEnv("APP_ENV", "development"),
		HTTPAddr:             getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:          getEnv("DATABASE_URL", ""),
		MigrationsEnabled:    strings.EqualFold(getEnv("MIGRATIONS_ENABLED", "true"), "true"),
		JWTAccessSecret:      getEnv("JWT_ACCESS_SECRET", ""),
		JWTIssuer:            getEnv("JWT_ISSUER", "processhub"),
		AccessTokenTTL:       mustDuration(getEnv("JWT_ACCESS_TTL", "15m")),
		RefreshTokenTTL:      mustDuration(getEnv("JWT_REFRESH_TTL", "720h")),
		MagicLinkTTL:         mustDuration(getEnv("MAGIC_LINK_TTL", "15m")),
		MagicLinkMinResponse: mustDuration(getEnv("MAGIC_LINK_MIN_RESPONSE", "300ms")),
		FieldEncryptionKey:   getEnv("FIELD_ENCRYPTION_KEY", ""),
		CredentialStore:      strings.ToLower(getEnv("CREDENTIAL_STORE", CredentialStorePostgres)),
		CORSAllowAll:         corsAllowAll,
		CORSOrigins:          corsOrigins,
		CORSAllowCreds:       strings.EqualFold(getEnv("CORS_ALLOW_CREDENTIALS", "true"), "true"),
		AppBaseURL:           getEnv("APP_BASE_URL", "http://localhost:4200"),
		EmailEnabled:         emailEnabled && smtpHost != "",
		SMTPHost:             smtpHost,
		SMTPPort:             mustInt(getEnv("SMTP_PORT", "587")),
		SMTPUsername:         getEnv("SMTP_USERNAME", ""),
		SMTPPassword:         getEnv("SMTP_PASSWORD", ""),
		EmailFromName:        getEnv("EMAIL_FROM_NAME", "ProcessHub"),
		EmailFromAddress:     getEnv("EMAIL_FROM_ADDRESS", ""),
		RedisURL:             getEnv("REDIS_URL", ""),
		RedisTLSInsecure:     strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:       getEnv("ASYNQ_QUEUE", "default"),
		AsynqConcurrency:     mustInt(getEnv("ASYNQ_CONCURRENCY", "10")),
		PurgeInterval:        mustDuration(getEnv("CREDENTIAL_PURGE_INTERVAL", "1h")),
		OTLPEndpoint:         getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.JWTAccessSecret == "" {
		return fmt.Errorf("JWT_ACCESS_SECRET is required")
	}
	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0 || c.MagicLinkTTL <= 0 {
		return fmt.Errorf("JWT_ACCESS_TTL, JWT_REFRESH_TTL and MAGIC_LINK_TTL must be positive durations")
	}
	if c.AccessTokenTTL >= c.RefreshTokenTTL {
		return fmt.Errorf("JWT_ACCESS_TTL must be shorter than JWT_REFRESH_TTL")
	}
	switch c.CredentialStore {
	case CredentialStorePostgres:
	case CredentialStoreRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when CREDENTIAL_STORE is redis")
		}
	default:
		return fmt.Errorf("CREDENTIAL_STORE must be %q or %q", CredentialStorePostgres, CredentialStoreRedis)
	}
	if c.EmailEnabled && c.EmailFromAddress == "" {
		return fmt.Errorf("EMAIL_FROM_ADDRESS is required when email is enabled")
	}
	if c.CORSAllowAll && c.CORSAllowCreds {
		return fmt.Errorf("CORS_ALLOW_CREDENTIALS cannot be true when CORS_ALLOW_ALL is true")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func mustInt(value string) int {
	result, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0
	}
	return result
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}

func containsWildcard(values []string) bool {
	for _, value := range values {
		if value == "*" {
			return true
		}
	}
	return false
}
