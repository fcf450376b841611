package identity

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/uptrace/bun"
)

// RepositoryManager exposes all repositories. The atomic unit is one
// user and its direct attachments; multi-step writes run through
// RunInTx so read-then-write sequences stay inside one transaction.
type RepositoryManager interface {
	Validate() error
	MustValidate()
	RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error
	Users() Users
	Addresses() Addresses
	EmailConfirms() EmailConfirms
	PasswordResets() PasswordResets
	SessionTokens() SessionTokens
}

type mngr struct {
	db             *bun.DB
	users          Users
	addresses      Addresses
	emailConfirms  EmailConfirms
	passwordResets PasswordResets
	sessionTokens  SessionTokens
}

func NewRepositoryManager(db *bun.DB) RepositoryManager {
	return &mngr{
		db:             db,
		users:          NewUsersRepository(db),
		addresses:      NewAddressesRepository(db),
		emailConfirms:  NewEmailConfirmsRepository(db),
		passwordResets: NewPasswordResetsRepository(db),
		sessionTokens:  NewSessionTokensRepository(db),
	}
}

func (m mngr) Validate() error {
	if m.users == nil {
		return errors.New("repository users should be initialized")
	}

	if m.addresses == nil {
		return errors.New("repository addresses should be initialized")
	}

	if m.emailConfirms == nil {
		return errors.New("repository emailConfirms should be initialized")
	}

	if m.passwordResets == nil {
		return errors.New("repository passwordResets should be initialized")
	}

	if m.sessionTokens == nil {
		return errors.New("repository sessionTokens should be initialized")
	}

	return nil
}

func (m mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

func (m mngr) Users() Users {
	return m.users
}

func (m mngr) Addresses() Addresses {
	return m.addresses
}

func (m mngr) EmailConfirms() EmailConfirms {
	return m.emailConfirms
}

func (m mngr) PasswordResets() PasswordResets {
	return m.passwordResets
}

func (m mngr) SessionTokens() SessionTokens {
	return m.sessionTokens
}
