package migrations

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readAll(t *testing.T) string {
	t.Helper()
	entries, err := fs.Glob(FS, "*.sql")
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	var b strings.Builder
	for _, name := range entries {
		data, err := fs.ReadFile(FS, name)
		require.NoError(t, err)
		b.Write(data)
	}
	return strings.ToLower(b.String())
}

func TestTenantTablesForceRowLevelSecurity(t *testing.T) {
	sql := readAll(t)

	for _, table := range []string{"organizations", "organization_members"} {
		assert.Contains(t, sql, "alter table "+table+" enable row level security")
		assert.Contains(t, sql, "alter table "+table+" force row level security")
	}
}

func TestPoliciesReadTransactionSettings(t *testing.T) {
	sql := readAll(t)

	assert.Contains(t, sql, "nullif(current_setting('app.current_organization_id', true), '')::uuid")
	assert.Contains(t, sql, "nullif(current_setting('app.current_user_id', true), '')::uuid")
}

func TestOutstandingMagicLinkIsUnique(t *testing.T) {
	sql := readAll(t)

	assert.Contains(t, sql, "on magic_link_tokens (user_id) where consumed_at is null")
}

func TestEveryMigrationHasUpAndDown(t *testing.T) {
	entries, err := fs.Glob(FS, "*.sql")
	require.NoError(t, err)

	for _, name := range entries {
		data, err := fs.ReadFile(FS, name)
		require.NoError(t, err)
		assert.Contains(t, string(data), "-- +goose Up", name)
		assert.Contains(t, string(data), "-- +goose Down", name)
	}
}
