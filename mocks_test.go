package identity_test

import (
	"context"
	"database/sql"
	"time"

	identity "github.com/avelardo/go-identity"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/uptrace/bun"
)

type testLogger struct{}

func (testLogger) Debug(string, ...any) {}
func (testLogger) Info(string, ...any)  {}
func (testLogger) Error(string, ...any) {}

// testConfig implements identity.Config with fixed values.
type testConfig struct {
	signingKey    string
	expiration    int
	issuer        string
	audience      []string
	activationTTL time.Duration
	resetTTL      time.Duration
}

func newTestConfig() testConfig {
	return testConfig{
		signingKey:    "test-signing-key",
		expiration:    24,
		issuer:        "identity-test",
		audience:      []string{"identity-test"},
		activationTTL: 24 * time.Hour,
		resetTTL:      time.Hour,
	}
}

func (c testConfig) GetSigningKey() string                 { return c.signingKey }
func (c testConfig) GetTokenExpiration() int               { return c.expiration }
func (c testConfig) GetIssuer() string                     { return c.issuer }
func (c testConfig) GetAudience() []string                 { return c.audience }
func (c testConfig) GetActivationTokenTTL() time.Duration  { return c.activationTTL }
func (c testConfig) GetResetTokenTTL() time.Duration       { return c.resetTTL }

// MockRepositoryManager implements identity.RepositoryManager. RunInTx
// invokes the callback with a zero tx so handler flows run end to end.
type MockRepositoryManager struct {
	mock.Mock
}

func (m *MockRepositoryManager) Validate() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockRepositoryManager) MustValidate() {
	m.Called()
}

// RunInTx executes the callback with a zero transaction and passes its
// error through, so both success and failure paths exercise the real
// handler flow.
func (m *MockRepositoryManager) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	var tx bun.Tx
	return f(ctx, tx)
}

func (m *MockRepositoryManager) Users() identity.Users {
	args := m.Called()
	return args.Get(0).(identity.Users)
}

func (m *MockRepositoryManager) Addresses() identity.Addresses {
	args := m.Called()
	return args.Get(0).(identity.Addresses)
}

func (m *MockRepositoryManager) EmailConfirms() identity.EmailConfirms {
	args := m.Called()
	return args.Get(0).(identity.EmailConfirms)
}

func (m *MockRepositoryManager) PasswordResets() identity.PasswordResets {
	args := m.Called()
	return args.Get(0).(identity.PasswordResets)
}

func (m *MockRepositoryManager) SessionTokens() identity.SessionTokens {
	args := m.Called()
	return args.Get(0).(identity.SessionTokens)
}

// MockUsers stubs the methods the workflows use; the embedded interface
// covers the rest of the repository surface.
type MockUsers struct {
	mock.Mock
	identity.Users
}

func (m *MockUsers) GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (*identity.User, error) {
	args := m.Called(ctx, id)
	return userReturn(args)
}

func (m *MockUsers) GetByIdentifier(ctx context.Context, identifier string, criteria ...repository.SelectCriteria) (*identity.User, error) {
	args := m.Called(ctx, identifier)
	return userReturn(args)
}

func (m *MockUsers) GetByIdentifierTx(ctx context.Context, tx bun.IDB, identifier string, criteria ...repository.SelectCriteria) (*identity.User, error) {
	args := m.Called(ctx, tx, identifier)
	return userReturn(args)
}

func (m *MockUsers) CreateTx(ctx context.Context, tx bun.IDB, record *identity.User, criteria ...repository.InsertCriteria) (*identity.User, error) {
	args := m.Called(ctx, tx, record)
	// the real repository assigns ids on insert
	if record != nil && record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	return echoUser(args, record)
}

func (m *MockUsers) UpdateTx(ctx context.Context, tx bun.IDB, record *identity.User, criteria ...repository.UpdateCriteria) (*identity.User, error) {
	args := m.Called(ctx, tx, record)
	return echoUser(args, record)
}

func (m *MockUsers) UpdatePasswordTx(ctx context.Context, tx bun.IDB, id uuid.UUID, passwordHash string) error {
	args := m.Called(ctx, tx, id, passwordHash)
	return args.Error(0)
}

func (m *MockUsers) DeleteCascadeTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	args := m.Called(ctx, tx, id)
	return args.Error(0)
}

func userReturn(args mock.Arguments) (*identity.User, error) {
	if u, ok := args.Get(0).(*identity.User); ok {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}

// echoUser hands back the stored record when the expectation does not
// override it, mirroring how the repository returns the written row.
func echoUser(args mock.Arguments, record *identity.User) (*identity.User, error) {
	if u, ok := args.Get(0).(*identity.User); ok && u != nil {
		return u, args.Error(1)
	}
	if args.Error(1) == nil {
		return record, nil
	}
	return nil, args.Error(1)
}

type MockAddresses struct {
	mock.Mock
}

func (m *MockAddresses) GetByUserID(ctx context.Context, userID uuid.UUID) (*identity.Address, error) {
	args := m.Called(ctx, userID)
	if a, ok := args.Get(0).(*identity.Address); ok {
		return a, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAddresses) CreateTx(ctx context.Context, tx bun.IDB, record *identity.Address) (*identity.Address, error) {
	args := m.Called(ctx, tx, record)
	if a, ok := args.Get(0).(*identity.Address); ok && a != nil {
		return a, args.Error(1)
	}
	if args.Error(1) == nil {
		return record, nil
	}
	return nil, args.Error(1)
}

func (m *MockAddresses) UpsertTx(ctx context.Context, tx bun.IDB, record *identity.Address) (*identity.Address, error) {
	args := m.Called(ctx, tx, record)
	if a, ok := args.Get(0).(*identity.Address); ok && a != nil {
		return a, args.Error(1)
	}
	if args.Error(1) == nil {
		return record, nil
	}
	return nil, args.Error(1)
}

type MockEmailConfirms struct {
	mock.Mock
}

func (m *MockEmailConfirms) GetByToken(ctx context.Context, token string) (*identity.EmailConfirm, error) {
	args := m.Called(ctx, token)
	if c, ok := args.Get(0).(*identity.EmailConfirm); ok {
		return c, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockEmailConfirms) GetByUserID(ctx context.Context, userID uuid.UUID) (*identity.EmailConfirm, error) {
	args := m.Called(ctx, userID)
	if c, ok := args.Get(0).(*identity.EmailConfirm); ok {
		return c, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockEmailConfirms) CreateTx(ctx context.Context, tx bun.IDB, record *identity.EmailConfirm) (*identity.EmailConfirm, error) {
	args := m.Called(ctx, tx, record)
	if c, ok := args.Get(0).(*identity.EmailConfirm); ok && c != nil {
		return c, args.Error(1)
	}
	if args.Error(1) == nil {
		return record, nil
	}
	return nil, args.Error(1)
}

func (m *MockEmailConfirms) RotateTx(ctx context.Context, tx bun.IDB, id uuid.UUID, token string, expiresAt time.Time) error {
	args := m.Called(ctx, tx, id, token, expiresAt)
	return args.Error(0)
}

func (m *MockEmailConfirms) ActivateTx(ctx context.Context, tx bun.IDB, token string) error {
	args := m.Called(ctx, tx, token)
	return args.Error(0)
}

type MockPasswordResets struct {
	mock.Mock
}

func (m *MockPasswordResets) GetByToken(ctx context.Context, token string) (*identity.PasswordReset, error) {
	args := m.Called(ctx, token)
	if r, ok := args.Get(0).(*identity.PasswordReset); ok {
		return r, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockPasswordResets) ReplaceTx(ctx context.Context, tx bun.IDB, record *identity.PasswordReset) (*identity.PasswordReset, error) {
	args := m.Called(ctx, tx, record)
	if r, ok := args.Get(0).(*identity.PasswordReset); ok && r != nil {
		return r, args.Error(1)
	}
	if args.Error(1) == nil {
		return record, nil
	}
	return nil, args.Error(1)
}

func (m *MockPasswordResets) ConsumeTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	args := m.Called(ctx, tx, id)
	return args.Error(0)
}

type MockSessionTokens struct {
	mock.Mock
}

func (m *MockSessionTokens) GetByID(ctx context.Context, id uuid.UUID) (*identity.SessionToken, error) {
	args := m.Called(ctx, id)
	if s, ok := args.Get(0).(*identity.SessionToken); ok {
		return s, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockSessionTokens) ListByUserID(ctx context.Context, userID uuid.UUID) ([]*identity.SessionToken, error) {
	args := m.Called(ctx, userID)
	if s, ok := args.Get(0).([]*identity.SessionToken); ok {
		return s, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockSessionTokens) CreateTx(ctx context.Context, tx bun.IDB, record *identity.SessionToken) (*identity.SessionToken, error) {
	args := m.Called(ctx, tx, record)
	if s, ok := args.Get(0).(*identity.SessionToken); ok && s != nil {
		return s, args.Error(1)
	}
	if args.Error(1) == nil {
		return record, nil
	}
	return nil, args.Error(1)
}

func (m *MockSessionTokens) RevokeAll(ctx context.Context, userID uuid.UUID) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func (m *MockSessionTokens) RevokeAllTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) error {
	args := m.Called(ctx, tx, userID)
	return args.Error(0)
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) SendActivation(ctx context.Context, user *identity.User, token string) error {
	args := m.Called(ctx, user, token)
	return args.Error(0)
}

func (m *MockNotifier) SendPasswordReset(ctx context.Context, user *identity.User, token string) error {
	args := m.Called(ctx, user, token)
	return args.Error(0)
}

type MockProfileStore struct {
	mock.Mock
}

func (m *MockProfileStore) Store(ctx context.Context, upload identity.ProfileUpload) (string, error) {
	args := m.Called(ctx, upload)
	return args.String(0), args.Error(1)
}

// MockAuthenticatorFacade implements identity.Authenticator for tests
// that never reach the session layer.
type MockAuthenticatorFacade struct {
	mock.Mock
}

func (m *MockAuthenticatorFacade) Login(ctx context.Context, email, password string) (string, error) {
	args := m.Called(ctx, email, password)
	return args.String(0), args.Error(1)
}

func (m *MockAuthenticatorFacade) Refresh(ctx context.Context, user *identity.User) (string, error) {
	args := m.Called(ctx, user)
	return args.String(0), args.Error(1)
}

func (m *MockAuthenticatorFacade) RevokeAll(ctx context.Context, userID uuid.UUID) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func (m *MockAuthenticatorFacade) SessionFromToken(ctx context.Context, token string) (identity.Session, error) {
	args := m.Called(ctx, token)
	if s, ok := args.Get(0).(identity.Session); ok {
		return s, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAuthenticatorFacade) IdentityFromSession(ctx context.Context, session identity.Session) (identity.Identity, error) {
	args := m.Called(ctx, session)
	if id, ok := args.Get(0).(identity.Identity); ok {
		return id, args.Error(1)
	}
	return nil, args.Error(1)
}

type MockIdentityProvider struct {
	mock.Mock
}

func (m *MockIdentityProvider) VerifyIdentity(ctx context.Context, email, password string) (identity.Identity, error) {
	args := m.Called(ctx, email, password)
	if id, ok := args.Get(0).(identity.Identity); ok {
		return id, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockIdentityProvider) FindIdentityByIdentifier(ctx context.Context, identifier string) (identity.Identity, error) {
	args := m.Called(ctx, identifier)
	if id, ok := args.Get(0).(identity.Identity); ok {
		return id, args.Error(1)
	}
	return nil, args.Error(1)
}
