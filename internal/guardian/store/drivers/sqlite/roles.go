package sqlite

import (
	"context"
	"strings"

	"github.com/guardianhq/guardian/internal/guardian/domain"
)

type rolesRepo struct {
	db dbtx
}

func (r *rolesRepo) GetRoleByID(ctx context.Context, id string) (domain.Role, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, name, permissions, created_at, updated_at FROM roles WHERE id = ?`, id)

	var role domain.Role
	var permissions string
	if err := row.Scan(&role.ID, &role.Name, &permissions, &role.CreatedAt, &role.UpdatedAt); err != nil {
		return domain.Role{}, mapNotFound(err)
	}

	role.Permissions = splitPermissions(permissions)
	return role, nil
}

func (r *rolesRepo) CreateRole(ctx context.Context, role domain.Role) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO roles (id, name, permissions, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		role.ID, role.Name, strings.Join(role.Permissions, " "), role.CreatedAt, role.UpdatedAt,
	)
	return mapConstraint(err)
}
