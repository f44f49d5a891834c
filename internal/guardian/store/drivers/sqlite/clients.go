package sqlite

import (
	"context"

	"github.com/guardianhq/guardian/internal/guardian/domain"
)

type clientsRepo struct {
	db dbtx
}

func (r *clientsRepo) GetClientByID(ctx context.Context, id string) (domain.Client, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, name, secret_hash, created_at, updated_at FROM clients WHERE id = ?`, id)

	var c domain.Client
	var secret = mapStringNull("")
	if err := row.Scan(&c.ID, &c.Name, &secret, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return domain.Client{}, mapNotFound(err)
	}

	c.SecretHash = mapNullString(secret)
	return c, nil
}

func (r *clientsRepo) CreateClient(ctx context.Context, c domain.Client) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO clients (id, name, secret_hash, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.Name, mapStringNull(c.SecretHash), c.CreatedAt, c.UpdatedAt,
	)
	return mapConstraint(err)
}
