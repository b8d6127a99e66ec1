package tenantctl

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"processhub_backend/platform/fieldcrypto"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCommand(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestKeyDerivePrintsFingerprint(t *testing.T) {
	out, err := run(t, "key", "derive", "--secret", "operator-secret")
	require.NoError(t, err)
	assert.Equal(t, fieldcrypto.Fingerprint("operator-secret"), strings.TrimSpace(out))
}

func TestCommandTree(t *testing.T) {
	root := NewRootCommand(&bytes.Buffer{})

	for _, path := range [][]string{
		{"migrate"},
		{"migrate", "status"},
		{"org", "create"},
		{"user", "add"},
		{"user", "deactivate"},
		{"member", "add"},
		{"key", "derive"},
		{"credentials", "purge"},
	} {
		cmd, _, err := root.Find(path)
		require.NoError(t, err, path)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}
}

func TestRequiredFlagsAreEnforced(t *testing.T) {
	_, err := run(t, "org", "create", "--name", "Acme")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
}

func TestMemberAddRejectsBadOrganizationID(t *testing.T) {
	_, err := run(t, "member", "add", "--org", "not-a-uuid", "--email", "ada@example.test")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid --org")
}
