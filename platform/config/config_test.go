package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/processhub")
	t.Setenv("JWT_ACCESS_SECRET", "access-secret")
	t.Setenv("CORS_ALLOW_ALL", "false")
	t.Setenv("CORS_ORIGINS", "http://localhost:4200")
	t.Setenv("SMTP_HOST", "")
	t.Setenv("CREDENTIAL_STORE", "postgres")
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 15*time.Minute, cfg.GetMagicLinkTTL())
	assert.Equal(t, 15*time.Minute, cfg.GetAccessTokenTTL())
	assert.Equal(t, "processhub", cfg.GetJWTIssuer())
	assert.Equal(t, CredentialStorePostgres, cfg.GetCredentialStore())
	assert.False(t, cfg.GetEmailEnabled())
}

func TestLoadRequiresRedisURLForRedisStore(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("CREDENTIAL_STORE", "redis")
	t.Setenv("REDIS_URL", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REDIS_URL")
}

func TestLoadRejectsUnknownCredentialStore(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("CREDENTIAL_STORE", "etcd")

	_, err := Load()
	require.Error(t, err)
}

func TestFieldEncryptionSecretFallsBackToSigningSecret(t *testing.T) {
	cfg := &Config{JWTAccessSecret: "signing"}
	assert.Equal(t, "signing", cfg.FieldEncryptionSecret())

	cfg.FieldEncryptionKey = "dedicated"
	assert.Equal(t, "dedicated", cfg.FieldEncryptionSecret())

	cfg.FieldEncryptionKey = "   "
	assert.Equal(t, "signing", cfg.FieldEncryptionSecret())
}
