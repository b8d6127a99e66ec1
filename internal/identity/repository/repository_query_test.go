package repository

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func normalizeQuery(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}

func TestInsertMemberQueryProtectsOwners(t *testing.T) {
	q := normalizeQuery(insertMemberQuery)
	assert.Contains(t, q, "on conflict (organization_id, user_id) do update set role = excluded.role")
	assert.Contains(t, q, "where organization_members.role <> 'owner' or $4::boolean")
}
