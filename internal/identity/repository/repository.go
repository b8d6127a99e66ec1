package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"processhub_backend/platform/db"
	"processhub_backend/platform/tenant"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("already exists")
	// ErrOwnerProtected is returned when a caller who is not an owner tries
	// to change an existing owner's role.
	ErrOwnerProtected = errors.New("owner membership is protected")
)

// DB is the pool surface the repository needs: plain queries for global
// tables and transactions for tenant scopes. *pgxpool.Pool satisfies it.
type DB interface {
	tenant.DBTX
	tenant.Beginner
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

type Repository struct {
	db DB
}

func New(pool DB) *Repository {
	return &Repository{db: pool}
}

type Organization struct {
	ID        uuid.UUID
	Name      string
	Slug      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type User struct {
	ID                    uuid.UUID
	Email                 string
	DisplayName           string
	PhoneCiphertext       *string
	DefaultOrganizationID *uuid.UUID
	DeactivatedAt         *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// Member is a membership row joined with the member's public profile.
type Member struct {
	OrganizationID uuid.UUID
	UserID         uuid.UUID
	Role           string
	Email          string
	DisplayName    string
	CreatedAt      time.Time
}

// ProfileUpdate carries the columns a user may change on themselves. Nil
// fields are left as they are; ClearPhone removes the stored number.
type ProfileUpdate struct {
	DisplayName     *string
	PhoneCiphertext *string
	ClearPhone      bool
}

const userColumns = `id, email, display_name, phone_ciphertext, default_organization_id, deactivated_at, created_at, updated_at`

const findUserByEmailQuery = `
	SELECT ` + userColumns + `
	FROM users
	WHERE lower(email) = lower($1)
`

const getUserQuery = `
	SELECT ` + userColumns + `
	FROM users
	WHERE id = $1
`

const createUserQuery = `
	INSERT INTO users (id, email, display_name)
	VALUES ($1, lower($2), $3)
	RETURNING ` + userColumns

const updateProfileQuery = `
	UPDATE users
	SET display_name = COALESCE($2, display_name),
		phone_ciphertext = CASE WHEN $4 THEN NULL ELSE COALESCE($3, phone_ciphertext) END,
		updated_at = now()
	WHERE id = $1
	RETURNING ` + userColumns

const deactivateUserQuery = `
	UPDATE users
	SET deactivated_at = COALESCE(deactivated_at, now()), updated_at = now()
	WHERE id = $1
`

const setDefaultOrganizationQuery = `
	UPDATE users
	SET default_organization_id = $2, updated_at = now()
	WHERE id = $1 AND default_organization_id IS NULL
`

const insertOrganizationQuery = `
	INSERT INTO organizations (id, name, slug)
	VALUES ($1, $2, $3)
	RETURNING id, name, slug, created_at, updated_at
`

const getOrganizationQuery = `
	SELECT id, name, slug, created_at, updated_at
	FROM organizations
	WHERE id = $1
`

// An existing owner is only re-roled when $4 is true. Otherwise the
// statement writes no row.
const insertMemberQuery = `
	INSERT INTO organization_members (organization_id, user_id, role)
	VALUES ($1, $2, $3)
	ON CONFLICT (organization_id, user_id) DO UPDATE SET role = EXCLUDED.role
	WHERE organization_members.role <> 'owner' OR $4::boolean
`

// Deactivated users have no live memberships.
const getMembershipQuery = `
	SELECT m.organization_id, m.user_id, m.role, u.email, u.display_name, m.created_at
	FROM organization_members m
	JOIN users u ON u.id = m.user_id
	WHERE m.user_id = $1 AND m.organization_id = $2 AND u.deactivated_at IS NULL
`

// The default organization wins; otherwise the oldest membership.
const getDefaultMembershipQuery = `
	SELECT m.organization_id, m.user_id, m.role, u.email, u.display_name, m.created_at
	FROM organization_members m
	JOIN users u ON u.id = m.user_id
	WHERE m.user_id = $1 AND u.deactivated_at IS NULL
	ORDER BY (m.organization_id = u.default_organization_id) DESC NULLS LAST, m.created_at ASC
	LIMIT 1
`

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.DisplayName,
		&u.PhoneCiphertext,
		&u.DefaultOrganizationID,
		&u.DeactivatedAt,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrNotFound
	}
	return u, err
}

func scanOrganization(row pgx.Row) (Organization, error) {
	var org Organization
	err := row.Scan(&org.ID, &org.Name, &org.Slug, &org.CreatedAt, &org.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Organization{}, ErrNotFound
	}
	return org, err
}

func scanMember(row pgx.Row) (Member, error) {
	var m Member
	err := row.Scan(&m.OrganizationID, &m.UserID, &m.Role, &m.Email, &m.DisplayName, &m.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Member{}, ErrNotFound
	}
	return m, err
}

// Users are global: an email identifies one person across organizations.

func (r *Repository) FindUserByEmail(ctx context.Context, email string) (User, error) {
	return scanUser(r.db.QueryRow(ctx, findUserByEmailQuery, strings.TrimSpace(email)))
}

func (r *Repository) GetUser(ctx context.Context, userID uuid.UUID) (User, error) {
	return scanUser(r.db.QueryRow(ctx, getUserQuery, userID))
}

func (r *Repository) CreateUser(ctx context.Context, email, displayName string) (User, error) {
	user, err := scanUser(r.db.QueryRow(ctx, createUserQuery, uuid.New(), strings.TrimSpace(email), displayName))
	if db.IsUniqueViolation(err) {
		return User{}, ErrDuplicate
	}
	return user, err
}

func (r *Repository) UpdateProfile(ctx context.Context, userID uuid.UUID, update ProfileUpdate) (User, error) {
	return scanUser(r.db.QueryRow(ctx, updateProfileQuery, userID, update.DisplayName, update.PhoneCiphertext, update.ClearPhone))
}

func (r *Repository) DeactivateUser(ctx context.Context, userID uuid.UUID) error {
	tag, err := r.db.Exec(ctx, deactivateUserQuery, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Memberships read before a tenant is bound run in the user's own scope.

func (r *Repository) GetMembership(ctx context.Context, userID, organizationID uuid.UUID) (Member, error) {
	var member Member
	err := tenant.WithUserScope(ctx, r.db, userID, func(scope *tenant.Scope) error {
		var err error
		member, err = scanMember(scope.QueryRow(ctx, getMembershipQuery, userID, organizationID))
		return err
	})
	return member, err
}

func (r *Repository) GetDefaultMembership(ctx context.Context, userID uuid.UUID) (Member, error) {
	var member Member
	err := tenant.WithUserScope(ctx, r.db, userID, func(scope *tenant.Scope) error {
		var err error
		member, err = scanMember(scope.QueryRow(ctx, getDefaultMembershipQuery, userID))
		return err
	})
	return member, err
}

// GetOrganizationForUser returns an organization userID belongs to.
func (r *Repository) GetOrganizationForUser(ctx context.Context, userID, organizationID uuid.UUID) (Organization, error) {
	var org Organization
	err := tenant.WithUserScope(ctx, r.db, userID, func(scope *tenant.Scope) error {
		var err error
		org, err = scanOrganization(scope.QueryRow(ctx, getOrganizationQuery, organizationID))
		return err
	})
	return org, err
}

// Tenant-scoped reads use the organization bound to ctx.

func (r *Repository) GetCurrentOrganization(ctx context.Context) (Organization, error) {
	var org Organization
	err := tenant.WithScope(ctx, r.db, func(scope *tenant.Scope) error {
		var err error
		org, err = scanOrganization(scope.QueryRow(ctx, getOrganizationQuery, scope.OrganizationID()))
		return err
	})
	return org, err
}

// ListMembers filters on the organization column in addition to the row
// level security policy.
func (r *Repository) ListMembers(ctx context.Context) ([]Member, error) {
	var members []Member
	err := tenant.WithScope(ctx, r.db, func(scope *tenant.Scope) error {
		query, err := tenant.ApplyFilter(listMembersQuery(), MemberEntity{}, scope.OrganizationID())
		if err != nil {
			return err
		}
		sqlText, args, err := query.ToSql()
		if err != nil {
			return fmt.Errorf("build list members query: %w", err)
		}

		rows, err := scope.Query(ctx, sqlText, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			member, err := scanMember(rows)
			if err != nil {
				return err
			}
			members = append(members, member)
		}
		return rows.Err()
	})
	return members, err
}

func listMembersQuery() sq.SelectBuilder {
	return psql.
		Select(
			"organization_members.organization_id",
			"organization_members.user_id",
			"organization_members.role",
			"users.email",
			"users.display_name",
			"organization_members.created_at",
		).
		From(MemberEntity{}.TableName()).
		Join("users ON users.id = organization_members.user_id").
		OrderBy("organization_members.created_at ASC", "users.email ASC")
}

// CreateOrganization inserts the organization and its first owner inside a
// scope pinned to the new id, so the row level security check passes.
func (r *Repository) CreateOrganization(ctx context.Context, name, slug string, ownerID uuid.UUID) (Organization, error) {
	orgID := uuid.New()
	scope, err := tenant.Activate(ctx, r.db, orgID)
	if err != nil {
		return Organization{}, err
	}
	defer func() { _ = scope.Rollback(ctx) }()

	org, err := scanOrganization(scope.QueryRow(ctx, insertOrganizationQuery, orgID, name, slug))
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Organization{}, ErrDuplicate
		}
		return Organization{}, err
	}
	if err := addMember(ctx, scope, orgID, ownerID, "owner", true); err != nil {
		return Organization{}, err
	}
	if err := scope.Commit(ctx); err != nil {
		return Organization{}, err
	}
	return org, nil
}

// AddMember adds or re-roles userID in organizationID. A user without a
// default organization gets this one. Changing an existing owner's role
// needs byOwner and fails with ErrOwnerProtected otherwise.
func (r *Repository) AddMember(ctx context.Context, organizationID, userID uuid.UUID, role string, byOwner bool) error {
	scope, err := tenant.Activate(ctx, r.db, organizationID)
	if err != nil {
		return err
	}
	defer func() { _ = scope.Rollback(ctx) }()

	if err := addMember(ctx, scope, organizationID, userID, role, byOwner); err != nil {
		return err
	}
	return scope.Commit(ctx)
}

func addMember(ctx context.Context, q tenant.DBTX, organizationID, userID uuid.UUID, role string, byOwner bool) error {
	tag, err := q.Exec(ctx, insertMemberQuery, organizationID, userID, role, byOwner)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return ErrNotFound
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrOwnerProtected
	}
	_, err = q.Exec(ctx, setDefaultOrganizationQuery, userID, organizationID)
	return err
}
