package identity

import (
	"context"
	"database/sql"
	"errors"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// PasswordResets owns the recovery token records. Each user holds at
// most one; a new request replaces the previous token in place.
type PasswordResets interface {
	GetByToken(ctx context.Context, token string) (*PasswordReset, error)
	ReplaceTx(ctx context.Context, tx bun.IDB, record *PasswordReset) (*PasswordReset, error)
	ConsumeTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error
}

type passwordResets struct {
	db *bun.DB
}

var _ PasswordResets = (*passwordResets)(nil)

func NewPasswordResetsRepository(db *bun.DB) PasswordResets {
	return &passwordResets{db: db}
}

func (r *passwordResets) GetByToken(ctx context.Context, token string) (*PasswordReset, error) {
	record := &PasswordReset{}
	err := r.db.NewSelect().
		Model(record).
		Where("token = ?", token).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.NewRecordNotFound()
		}
		return nil, err
	}
	return record, nil
}

// ReplaceTx upserts on the user id so the prior token, consumed or not,
// stops resolving once a new request lands.
func (r *passwordResets) ReplaceTx(ctx context.Context, tx bun.IDB, record *PasswordReset) (*PasswordReset, error) {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}

	now := time.Now()
	record.UpdatedAt = &now

	_, err := tx.NewInsert().
		Model(record).
		On("CONFLICT (user_id) DO UPDATE").
		Set("token = EXCLUDED.token").
		Set("expires_at = EXCLUDED.expires_at").
		Set("consumed_at = NULL").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to store password reset token")
	}

	return record, nil
}

// ConsumeTx retires the token exactly once; a zero row count means it
// was already spent by a concurrent reset.
func (r *passwordResets) ConsumeTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	now := time.Now()
	res, err := tx.NewUpdate().
		Model((*PasswordReset)(nil)).
		Set("consumed_at = ?", now).
		Set("updated_at = ?", now).
		Where("id = ?", id).
		Where("consumed_at IS NULL").
		Exec(ctx)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to consume password reset token")
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read consume result")
	}

	if affected == 0 {
		return ErrTokenConsumed
	}

	return nil
}
