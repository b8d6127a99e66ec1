package tenant

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Session settings read by the row-level security policies.
const (
	OrganizationSetting = "app.current_organization_id"
	UserSetting         = "app.current_user_id"
)

const setConfigSQL = `SELECT set_config($1, $2, true)`

// DBTX is the query surface shared by pools, transactions and scopes.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Beginner starts transactions. *pgxpool.Pool satisfies it.
type Beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Scope is a transaction whose row-level security settings are pinned to a
// single organization (or user). The settings are transaction-local and end
// with Commit or Rollback.
type Scope struct {
	tx     pgx.Tx
	orgID  uuid.UUID
	userID uuid.UUID
}

var _ DBTX = (*Scope)(nil)

// Activate opens a transaction restricted to orgID. A nil orgID fails with
// ErrMissingTenantContext before touching the database.
func Activate(ctx context.Context, db Beginner, orgID uuid.UUID) (*Scope, error) {
	if orgID == uuid.Nil {
		return nil, ErrMissingTenantContext
	}
	return begin(ctx, db, OrganizationSetting, orgID)
}

// ActivateUser opens a transaction that can read the memberships of userID
// only. Used at login, before an organization is known.
func ActivateUser(ctx context.Context, db Beginner, userID uuid.UUID) (*Scope, error) {
	if userID == uuid.Nil {
		return nil, errors.New("activate user scope: nil user id")
	}
	return begin(ctx, db, UserSetting, userID)
}

func begin(ctx context.Context, db Beginner, setting string, id uuid.UUID) (*Scope, error) {
	tx, err := db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin scoped tx: %w", err)
	}

	// Parameterized: the id never becomes part of the SQL text.
	if _, err := tx.Exec(ctx, setConfigSQL, setting, id.String()); err != nil {
		_ = tx.Rollback(ctx)
		return nil, fmt.Errorf("activate %s: %w", setting, err)
	}

	scope := &Scope{tx: tx}
	if setting == OrganizationSetting {
		scope.orgID = id
	} else {
		scope.userID = id
	}
	return scope, nil
}

// OrganizationID returns the organization this scope is pinned to, or
// uuid.Nil for a user scope.
func (s *Scope) OrganizationID() uuid.UUID { return s.orgID }

func (s *Scope) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return s.tx.Exec(ctx, sql, args...)
}

func (s *Scope) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return s.tx.Query(ctx, sql, args...)
}

func (s *Scope) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return s.tx.QueryRow(ctx, sql, args...)
}

func (s *Scope) Commit(ctx context.Context) error {
	return s.tx.Commit(ctx)
}

// Rollback is safe to call after Commit.
func (s *Scope) Rollback(ctx context.Context) error {
	err := s.tx.Rollback(ctx)
	if errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return err
}

// WithScope activates the organization bound to ctx, runs fn and commits.
// Any error from fn rolls the transaction back.
func WithScope(ctx context.Context, db Beginner, fn func(scope *Scope) error) error {
	orgID, ok := OrganizationID(ctx)
	if !ok {
		return ErrMissingTenantContext
	}
	return run(ctx, fn, func() (*Scope, error) { return Activate(ctx, db, orgID) })
}

// WithUserScope is WithScope for a user-scoped transaction.
func WithUserScope(ctx context.Context, db Beginner, userID uuid.UUID, fn func(scope *Scope) error) error {
	return run(ctx, fn, func() (*Scope, error) { return ActivateUser(ctx, db, userID) })
}

func run(ctx context.Context, fn func(scope *Scope) error, open func() (*Scope, error)) error {
	scope, err := open()
	if err != nil {
		return err
	}
	defer func() { _ = scope.Rollback(ctx) }()

	if err := fn(scope); err != nil {
		return err
	}
	return scope.Commit(ctx)
}
