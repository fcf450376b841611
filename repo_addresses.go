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

// Addresses owns the 1:1 postal record attached to each user.
type Addresses interface {
	GetByUserID(ctx context.Context, userID uuid.UUID) (*Address, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *Address) (*Address, error)
	UpsertTx(ctx context.Context, tx bun.IDB, record *Address) (*Address, error)
}

type addresses struct {
	db *bun.DB
}

var _ Addresses = (*addresses)(nil)

func NewAddressesRepository(db *bun.DB) Addresses {
	return &addresses{db: db}
}

func (r *addresses) GetByUserID(ctx context.Context, userID uuid.UUID) (*Address, error) {
	record := &Address{}
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

func (r *addresses) CreateTx(ctx context.Context, tx bun.IDB, record *Address) (*Address, error) {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}

	if _, err := tx.NewInsert().Model(record).Exec(ctx); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create address")
	}

	return record, nil
}

// UpsertTx replaces the postal fields of the single address row for the
// user, creating it when registration has not attached one yet.
func (r *addresses) UpsertTx(ctx context.Context, tx bun.IDB, record *Address) (*Address, error) {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}

	now := time.Now()
	record.UpdatedAt = &now

	_, err := tx.NewInsert().
		Model(record).
		On("CONFLICT (user_id) DO UPDATE").
		Set("street = EXCLUDED.street").
		Set("city = EXCLUDED.city").
		Set("state_province = EXCLUDED.state_province").
		Set("postal_code = EXCLUDED.postal_code").
		Set("country = EXCLUDED.country").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update address")
	}

	return record, nil
}
