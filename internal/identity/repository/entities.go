package repository

import "processhub_backend/platform/tenant"

// MemberEntity is the organization_members table. Its rows belong to one
// organization.
type MemberEntity struct{}

func (MemberEntity) TableName() string          { return "organization_members" }
func (MemberEntity) OrganizationColumn() string { return "organization_id" }

// UserEntity is the users table. Users are shared across organizations.
type UserEntity struct{}

func (UserEntity) TableName() string { return "users" }

var (
	_ tenant.Scoped = MemberEntity{}
	_ tenant.Entity = UserEntity{}
)
