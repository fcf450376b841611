package identity

import (
	"context"
	"database/sql"
	"errors"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// SessionTokens owns persisted bearer sessions. Issuance is additive;
// a user may hold many live sessions across devices. Revocation flips
// the monotonic revoked flag and keeps the rows.
type SessionTokens interface {
	GetByID(ctx context.Context, id uuid.UUID) (*SessionToken, error)
	ListByUserID(ctx context.Context, userID uuid.UUID) ([]*SessionToken, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *SessionToken) (*SessionToken, error)
	RevokeAll(ctx context.Context, userID uuid.UUID) error
	RevokeAllTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) error
}

type sessionTokens struct {
	db *bun.DB
}

var _ SessionTokens = (*sessionTokens)(nil)

func NewSessionTokensRepository(db *bun.DB) SessionTokens {
	return &sessionTokens{db: db}
}

func (r *sessionTokens) GetByID(ctx context.Context, id uuid.UUID) (*SessionToken, error) {
	record := &SessionToken{}
	err := r.db.NewSelect().
		Model(record).
		Where("id = ?", id).
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

func (r *sessionTokens) ListByUserID(ctx context.Context, userID uuid.UUID) ([]*SessionToken, error) {
	var records []*SessionToken
	err := r.db.NewSelect().
		Model(&records).
		Where("user_id = ?", userID).
		Order("issued_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (r *sessionTokens) CreateTx(ctx context.Context, tx bun.IDB, record *SessionToken) (*SessionToken, error) {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}

	if _, err := tx.NewInsert().Model(record).Exec(ctx); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to persist session token")
	}

	return record, nil
}

func (r *sessionTokens) RevokeAll(ctx context.Context, userID uuid.UUID) error {
	return r.RevokeAllTx(ctx, r.db, userID)
}

func (r *sessionTokens) RevokeAllTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) error {
	_, err := tx.NewUpdate().
		Model((*SessionToken)(nil)).
		Set("revoked = ?", true).
		Where("user_id = ?", userID).
		Where("revoked = ?", false).
		Exec(ctx)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to revoke sessions")
	}

	return nil
}
