package business

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repo struct{ pool *pgxpool.Pool }

func NewRepo(pool *pgxpool.Pool) *Repo { return &Repo{pool: pool} }

func (r *Repo) Get(ctx context.Context, id uuid.UUID) (*Business, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, subscription_expires_at, is_paused, pin_hash, created_at, updated_at
		FROM businesses WHERE id = $1
	`, id)

	var b Business
	if err := row.Scan(&b.ID, &b.Name, &b.SubscriptionExpiresAt, &b.IsPaused, &b.PINHash, &b.CreatedAt, &b.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &b, nil
}

func (r *Repo) SetPINHash(ctx context.Context, id uuid.UUID, hash string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE businesses SET pin_hash = $2, updated_at = NOW() WHERE id = $1`, id, hash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
