package sqlite

import (
	"context"
	"time"

	"github.com/guardianhq/guardian/internal/guardian/domain"
)

type accessTokensRepo struct {
	db dbtx
}

func (r *accessTokensRepo) CreateAccessToken(ctx context.Context, rec domain.AccessTokenRecord) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO access_tokens (token_id, client_id, user_id, token, expires_at, revoked_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.TokenID, rec.ClientID, rec.UserID, rec.Token,
		rec.ExpiresAt, mapOptionalTime(rec.RevokedAt), rec.CreatedAt,
	)
	return mapConstraint(err)
}

func (r *accessTokensRepo) FindActiveAccessToken(
	ctx context.Context,
	clientID, userID string,
) (domain.AccessTokenRecord, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT token_id, client_id, user_id, token, expires_at, revoked_at, created_at
		 FROM access_tokens
		 WHERE client_id = ? AND user_id = ? AND revoked_at IS NULL AND expires_at > ?
		 ORDER BY expires_at DESC
		 LIMIT 1`,
		clientID, userID, time.Now().UTC(),
	)

	var rec domain.AccessTokenRecord
	var revoked = mapOptionalTime(nil)
	err := row.Scan(&rec.TokenID, &rec.ClientID, &rec.UserID, &rec.Token,
		&rec.ExpiresAt, &revoked, &rec.CreatedAt)
	if err != nil {
		return domain.AccessTokenRecord{}, mapNotFound(err)
	}

	rec.RevokedAt = mapNullTimePtr(revoked)
	return rec, nil
}

func (r *accessTokensRepo) RevokeAccessToken(ctx context.Context, tokenID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE access_tokens SET revoked_at = ? WHERE token_id = ? AND revoked_at IS NULL`,
		time.Now().UTC(), tokenID,
	)
	return err
}

func (r *accessTokensRepo) DeleteExpiredAccessTokens(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM access_tokens WHERE expires_at <= ?`, time.Now().UTC())
	return err
}
