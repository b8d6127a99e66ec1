package tenant

import (
	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
)

// Entity is anything a query can select from.
type Entity interface {
	TableName() string
}

// Scoped marks an entity type whose rows belong to exactly one organization.
// It is declared per type at compile time; entities without it are global
// reference data.
type Scoped interface {
	Entity
	OrganizationColumn() string
}

// IsScoped reports whether entity carries an organization column.
func IsScoped(entity Entity) bool {
	_, ok := entity.(Scoped)
	return ok
}

// ApplyFilter conjoins query with an equality predicate on the entity's
// organization column. Unscoped entities are returned unchanged. A scoped
// entity with a nil orgID fails with ErrMissingTenantContext.
func ApplyFilter(query sq.SelectBuilder, entity Entity, orgID uuid.UUID) (sq.SelectBuilder, error) {
	scoped, ok := entity.(Scoped)
	if !ok {
		return query, nil
	}
	if orgID == uuid.Nil {
		return query, ErrMissingTenantContext
	}
	return query.Where(sq.Eq{Column(scoped): orgID}), nil
}

// Column returns the table-qualified organization column.
func Column(entity Scoped) string {
	return entity.TableName() + "." + entity.OrganizationColumn()
}
