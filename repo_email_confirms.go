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

// EmailConfirms owns the email confirmation records. Activation and
// rotation are compare-and-swap updates guarded on activated = FALSE so
// concurrent calls cannot double apply.
type EmailConfirms interface {
	GetByToken(ctx context.Context, token string) (*EmailConfirm, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) (*EmailConfirm, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *EmailConfirm) (*EmailConfirm, error)
	RotateTx(ctx context.Context, tx bun.IDB, id uuid.UUID, token string, expiresAt time.Time) error
	ActivateTx(ctx context.Context, tx bun.IDB, token string) error
}

type emailConfirms struct {
	db *bun.DB
}

var _ EmailConfirms = (*emailConfirms)(nil)

func NewEmailConfirmsRepository(db *bun.DB) EmailConfirms {
	return &emailConfirms{db: db}
}

func (r *emailConfirms) GetByToken(ctx context.Context, token string) (*EmailConfirm, error) {
	record := &EmailConfirm{}
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

func (r *emailConfirms) GetByUserID(ctx context.Context, userID uuid.UUID) (*EmailConfirm, error) {
	record := &EmailConfirm{}
	err := r.db.NewSelect().
		Model(record).
		Where("user_id = ?", userID).
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

func (r *emailConfirms) CreateTx(ctx context.Context, tx bun.IDB, record *EmailConfirm) (*EmailConfirm, error) {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}

	if _, err := tx.NewInsert().Model(record).Exec(ctx); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create email confirm")
	}

	return record, nil
}

// RotateTx swaps in a fresh token and expiry while the record is still
// pending. The old token stops resolving the moment the update lands.
func (r *emailConfirms) RotateTx(ctx context.Context, tx bun.IDB, id uuid.UUID, token string, expiresAt time.Time) error {
	now := time.Now()
	res, err := tx.NewUpdate().
		Model((*EmailConfirm)(nil)).
		Set("token = ?", token).
		Set("expires_at = ?", expiresAt).
		Set("updated_at = ?", now).
		Where("id = ?", id).
		Where("activated = ?", false).
		Exec(ctx)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to rotate email confirm token")
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read rotation result")
	}

	if affected == 0 {
		return ErrAlreadyActivated
	}

	return nil
}

// ActivateTx flips activated to TRUE exactly once. A zero row count
// means another request already won the transition.
func (r *emailConfirms) ActivateTx(ctx context.Context, tx bun.IDB, token string) error {
	now := time.Now()
	res, err := tx.NewUpdate().
		Model((*EmailConfirm)(nil)).
		Set("activated = ?", true).
		Set("updated_at = ?", now).
		Where("token = ?", token).
		Where("activated = ?", false).
		Exec(ctx)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to activate email confirm")
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read activation result")
	}

	if affected == 0 {
		return ErrAlreadyActivated
	}

	return nil
}
