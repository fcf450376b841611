package identity_test

import (
	"context"
	"errors"
	"testing"

	identity "github.com/avelardo/go-identity"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestRegisterUserHandlerCreatesPendingAccount(t *testing.T) {
	ctx := context.Background()
	repo := &MockRepositoryManager{}
	users := &MockUsers{}
	confirms := &MockEmailConfirms{}
	addresses := &MockAddresses{}
	notifier := &MockNotifier{}

	repo.On("Users").Return(users)
	repo.On("EmailConfirms").Return(confirms)
	repo.On("Addresses").Return(addresses)

	users.On("GetByIdentifierTx", mock.Anything, mock.Anything, "new@example.com").
		Return(nil, repository.NewRecordNotFound()).Once()
	users.On("CreateTx", mock.Anything, mock.Anything, mock.AnythingOfType("*identity.User")).
		Return(nil, nil).Once()
	confirms.On("CreateTx", mock.Anything, mock.Anything, mock.AnythingOfType("*identity.EmailConfirm")).
		Return(nil, nil).Once()
	addresses.On("CreateTx", mock.Anything, mock.Anything, mock.AnythingOfType("*identity.Address")).
		Return(nil, nil).Once()

	var tokenSent string
	notifier.On("SendActivation", mock.Anything, mock.AnythingOfType("*identity.User"), mock.AnythingOfType("string")).
		Run(func(args mock.Arguments) {
			tokenSent = args.String(2)
		}).
		Return(nil).Once()

	handler := identity.NewRegisterUserHandler(repo, notifier, newTestConfig()).
		WithLogger(testLogger{})

	var resp *identity.RegisterUserResponse
	err := handler.Execute(ctx, identity.RegisterUserMessage{
		FirstName: "Ada",
		Email:     "new@example.com",
		Password:  "password12345",
		Roles:     []string{"member", "wizard"},
		OnResponse: func(r *identity.RegisterUserResponse) {
			resp = r
		},
	})
	require.NoError(t, err)
	require.NotNil(t, resp)

	assert.False(t, resp.Activated, "accounts start pending")
	assert.NotEmpty(t, resp.ActivationToken)
	assert.Equal(t, resp.ActivationToken, tokenSent, "delivered token matches the stored one")

	require.NotNil(t, resp.User)
	assert.Equal(t, identity.RoleMember, resp.User.Role)
	assert.NotEqual(t, uuid.Nil, resp.User.ID)
	assert.NotEmpty(t, resp.User.PasswordHash)
	assert.NotEqual(t, "password12345", resp.User.PasswordHash, "cleartext never stored")
	assert.NotNil(t, resp.User.Address, "an empty address row is attached")

	repo.AssertExpectations(t)
	users.AssertExpectations(t)
	confirms.AssertExpectations(t)
	addresses.AssertExpectations(t)
	notifier.AssertExpectations(t)
}

func TestRegisterUserHandlerRejectsDuplicateEmail(t *testing.T) {
	ctx := context.Background()
	repo := &MockRepositoryManager{}
	users := &MockUsers{}
	notifier := &MockNotifier{}

	repo.On("Users").Return(users)

	users.On("GetByIdentifierTx", mock.Anything, mock.Anything, "taken@example.com").
		Return(&identity.User{ID: uuid.New(), Email: "taken@example.com"}, nil).Once()

	handler := identity.NewRegisterUserHandler(repo, notifier, newTestConfig()).
		WithLogger(testLogger{})

	err := handler.Execute(ctx, identity.RegisterUserMessage{
		Email:    "taken@example.com",
		Password: "password12345",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, identity.ErrEmailAlreadyExists)
	assert.True(t, identity.IsConflict(err))

	notifier.AssertNotCalled(t, "SendActivation", mock.Anything, mock.Anything, mock.Anything)
}

func TestRegisterUserHandlerRacedDuplicateConflicts(t *testing.T) {
	ctx := context.Background()
	repo := &MockRepositoryManager{}
	users := &MockUsers{}
	notifier := &MockNotifier{}

	repo.On("Users").Return(users)

	// a concurrent registration lands between the lookup and the insert;
	// the constraint rejects the write
	users.On("GetByIdentifierTx", mock.Anything, mock.Anything, "raced@example.com").
		Return(nil, repository.NewRecordNotFound()).Once()
	users.On("CreateTx", mock.Anything, mock.Anything, mock.AnythingOfType("*identity.User")).
		Return(nil, errors.New("UNIQUE constraint failed: users.email")).Once()

	handler := identity.NewRegisterUserHandler(repo, notifier, newTestConfig()).
		WithLogger(testLogger{})

	err := handler.Execute(ctx, identity.RegisterUserMessage{
		Email:    "raced@example.com",
		Password: "password12345",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, identity.ErrEmailAlreadyExists)
	assert.True(t, identity.IsConflict(err))
}

func TestRegisterUserHandlerStorageFailureIsNotConflict(t *testing.T) {
	ctx := context.Background()
	repo := &MockRepositoryManager{}
	users := &MockUsers{}
	notifier := &MockNotifier{}

	repo.On("Users").Return(users)

	users.On("GetByIdentifierTx", mock.Anything, mock.Anything, "new@example.com").
		Return(nil, repository.NewRecordNotFound()).Once()
	users.On("CreateTx", mock.Anything, mock.Anything, mock.AnythingOfType("*identity.User")).
		Return(nil, errors.New("disk I/O error")).Once()

	handler := identity.NewRegisterUserHandler(repo, notifier, newTestConfig()).
		WithLogger(testLogger{})

	err := handler.Execute(ctx, identity.RegisterUserMessage{
		Email:    "new@example.com",
		Password: "password12345",
	})
	require.Error(t, err)
	assert.False(t, identity.IsConflict(err), "a transient storage error is not a duplicate")
}

func TestRegisterUserHandlerValidatesInput(t *testing.T) {
	repo := &MockRepositoryManager{}
	notifier := &MockNotifier{}
	handler := identity.NewRegisterUserHandler(repo, notifier, newTestConfig()).
		WithLogger(testLogger{})

	tests := []struct {
		name string
		msg  identity.RegisterUserMessage
	}{
		{
			name: "missing email",
			msg:  identity.RegisterUserMessage{Password: "password12345"},
		},
		{
			name: "bad email",
			msg:  identity.RegisterUserMessage{Email: "not-an-email", Password: "password12345"},
		},
		{
			name: "short password",
			msg:  identity.RegisterUserMessage{Email: "a@example.com", Password: "short"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := handler.Execute(context.Background(), tt.msg)
			assert.Error(t, err)
		})
	}
}

func TestRegisterUserHandlerHonorsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	handler := identity.NewRegisterUserHandler(&MockRepositoryManager{}, &MockNotifier{}, newTestConfig())

	err := handler.Execute(ctx, identity.RegisterUserMessage{
		Email:    "a@example.com",
		Password: "password12345",
	})
	assert.Error(t, err)
}
