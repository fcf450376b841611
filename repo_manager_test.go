package identity_test

import (
	"context"
	"database/sql"
	"io/fs"
	"strings"
	"testing"
	"time"

	identity "github.com/avelardo/go-identity"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// newSQLiteRepo spins an in-memory database with the embedded schema so
// the repositories run against real SQL instead of mocks.
func newSQLiteRepo(t *testing.T) identity.RepositoryManager {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, "file::memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { db.Close() })

	ddl, err := fs.ReadFile(identity.GetMigrationsFS(), "data/sql/migrations/20240101000000_identity_core.up.sql")
	require.NoError(t, err)

	for _, stmt := range strings.Split(string(ddl), ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		_, err = db.ExecContext(context.Background(), stmt)
		require.NoError(t, err)
	}

	mgr := identity.NewRepositoryManager(db)
	mgr.MustValidate()
	return mgr
}

func seedAccount(t *testing.T, mgr identity.RepositoryManager, email string) *identity.User {
	t.Helper()

	expires := time.Now().Add(time.Hour)
	user := &identity.User{Email: email, PasswordHash: "digest"}

	err := mgr.RunInTx(context.Background(), nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		if user, err = mgr.Users().CreateTx(ctx, tx, user); err != nil {
			return err
		}
		confirm := &identity.EmailConfirm{
			UserID:    user.ID,
			Token:     "confirm-" + email,
			ExpiresAt: &expires,
		}
		if _, err = mgr.EmailConfirms().CreateTx(ctx, tx, confirm); err != nil {
			return err
		}
		_, err = mgr.Addresses().CreateTx(ctx, tx, &identity.Address{UserID: user.ID, City: "Valencia"})
		return err
	})
	require.NoError(t, err)
	return user
}

func TestSQLiteUserAttachments(t *testing.T) {
	mgr := newSQLiteRepo(t)
	user := seedAccount(t, mgr, "ada@example.com")

	assert.Equal(t, identity.RoleMember, user.Role, "role defaults when none is given")

	got, err := mgr.Users().GetByID(context.Background(), user.ID.String(), identity.WithUserAttachments())
	require.NoError(t, err)
	require.NotNil(t, got.Address)
	require.NotNil(t, got.EmailConfirm)
	assert.Equal(t, "Valencia", got.Address.City)
	assert.False(t, got.EmailConfirm.Activated)

	byEmail, err := mgr.Users().GetByIdentifier(context.Background(), "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, byEmail.ID)
}

func TestSQLiteActivateIsSingleShot(t *testing.T) {
	mgr := newSQLiteRepo(t)
	seedAccount(t, mgr, "ada@example.com")

	ctx := context.Background()
	err := mgr.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return mgr.EmailConfirms().ActivateTx(ctx, tx, "confirm-ada@example.com")
	})
	require.NoError(t, err)

	confirm, err := mgr.EmailConfirms().GetByToken(ctx, "confirm-ada@example.com")
	require.NoError(t, err)
	assert.True(t, confirm.Activated)

	// the guarded update refuses a second transition
	err = mgr.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return mgr.EmailConfirms().ActivateTx(ctx, tx, "confirm-ada@example.com")
	})
	assert.ErrorIs(t, err, identity.ErrAlreadyActivated)

	// rotation is also closed once activated
	err = mgr.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return mgr.EmailConfirms().RotateTx(ctx, tx, confirm.ID, "fresh-token", time.Now().Add(time.Hour))
	})
	assert.ErrorIs(t, err, identity.ErrAlreadyActivated)
}

func TestSQLitePasswordResetReplaceAndConsume(t *testing.T) {
	mgr := newSQLiteRepo(t)
	user := seedAccount(t, mgr, "ada@example.com")

	ctx := context.Background()
	expires := time.Now().Add(time.Hour)

	var first *identity.PasswordReset
	err := mgr.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		first, err = mgr.PasswordResets().ReplaceTx(ctx, tx, &identity.PasswordReset{
			UserID:    user.ID,
			Token:     "reset-one",
			ExpiresAt: &expires,
		})
		return err
	})
	require.NoError(t, err)

	// a second request replaces the token in place; the old one dies
	err = mgr.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := mgr.PasswordResets().ReplaceTx(ctx, tx, &identity.PasswordReset{
			UserID:    user.ID,
			Token:     "reset-two",
			ExpiresAt: &expires,
		})
		return err
	})
	require.NoError(t, err)

	_, err = mgr.PasswordResets().GetByToken(ctx, "reset-one")
	assert.True(t, repository.IsRecordNotFound(err))

	current, err := mgr.PasswordResets().GetByToken(ctx, "reset-two")
	require.NoError(t, err)
	assert.Equal(t, first.ID, current.ID, "the user keeps a single reset row")
	assert.False(t, current.Consumed())

	err = mgr.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := mgr.Users().UpdatePasswordTx(ctx, tx, user.ID, "new-digest"); err != nil {
			return err
		}
		return mgr.PasswordResets().ConsumeTx(ctx, tx, current.ID)
	})
	require.NoError(t, err)

	updated, err := mgr.Users().GetByID(ctx, user.ID.String())
	require.NoError(t, err)
	assert.Equal(t, "new-digest", updated.PasswordHash)

	// replay within the TTL window fails on the consumed_at guard
	err = mgr.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return mgr.PasswordResets().ConsumeTx(ctx, tx, current.ID)
	})
	assert.ErrorIs(t, err, identity.ErrTokenConsumed)
}

func TestSQLiteSessionRevocation(t *testing.T) {
	mgr := newSQLiteRepo(t)
	user := seedAccount(t, mgr, "ada@example.com")
	other := seedAccount(t, mgr, "grace@example.com")

	ctx := context.Background()
	issued := time.Now()
	expires := issued.Add(time.Hour)

	mint := func(owner uuid.UUID) *identity.SessionToken {
		var record *identity.SessionToken
		err := mgr.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			var err error
			record, err = mgr.SessionTokens().CreateTx(ctx, tx, &identity.SessionToken{
				UserID:    owner,
				Token:     "jwt-" + uuid.NewString(),
				IssuedAt:  &issued,
				ExpiresAt: &expires,
			})
			return err
		})
		require.NoError(t, err)
		return record
	}

	a := mint(user.ID)
	b := mint(user.ID)
	foreign := mint(other.ID)

	require.NoError(t, mgr.SessionTokens().RevokeAll(ctx, user.ID))

	for _, id := range []uuid.UUID{a.ID, b.ID} {
		row, err := mgr.SessionTokens().GetByID(ctx, id)
		require.NoError(t, err)
		assert.True(t, row.Revoked)
		assert.False(t, row.Usable(time.Now()))
	}

	// revocation is scoped to the one user
	row, err := mgr.SessionTokens().GetByID(ctx, foreign.ID)
	require.NoError(t, err)
	assert.False(t, row.Revoked)

	listed, err := mgr.SessionTokens().ListByUserID(ctx, user.ID)
	require.NoError(t, err)
	assert.Len(t, listed, 2)
}

func TestSQLiteDeleteCascade(t *testing.T) {
	mgr := newSQLiteRepo(t)
	user := seedAccount(t, mgr, "ada@example.com")

	ctx := context.Background()
	err := mgr.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return mgr.Users().DeleteCascadeTx(ctx, tx, user.ID)
	})
	require.NoError(t, err)

	_, err = mgr.Users().GetByID(ctx, user.ID.String())
	assert.True(t, repository.IsRecordNotFound(err))

	_, err = mgr.EmailConfirms().GetByUserID(ctx, user.ID)
	assert.True(t, repository.IsRecordNotFound(err))

	_, err = mgr.PasswordResets().GetByToken(ctx, "reset-never-issued")
	assert.True(t, repository.IsRecordNotFound(err))
}
