package identity

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

// Orchestrator wires the workflow handlers, the authenticator, and the
// repositories behind one façade. Operations on the caller's own
// account resolve the acting user from the context; the absence of a
// caller is an auth failure, a caller whose record is gone is not found.
type Orchestrator struct {
	repo          RepositoryManager
	auther        Authenticator
	config        Config
	notifier      Notifier
	storage       ProfileStore
	logger        Logger
	register      *RegisterUserHandler
	activate      *ActivateAccountHandler
	resend        *ResendActivationHandler
	resetInit     *InitializePasswordResetHandler
	resetFinalize *FinalizePasswordResetHandler
	getProfile    *GetProfileHandler
	updateProfile *UpdateProfileHandler
	deleteAccount *DeleteAccountHandler
}

// NewOrchestrator builds the façade with default handlers. The storage
// argument may be nil when picture uploads are not needed.
func NewOrchestrator(repo RepositoryManager, auther Authenticator, config Config, notifier Notifier, storage ProfileStore) *Orchestrator {
	return &Orchestrator{
		repo:          repo,
		auther:        auther,
		config:        config,
		notifier:      notifier,
		storage:       storage,
		logger:        defLogger{},
		register:      NewRegisterUserHandler(repo, notifier, config),
		activate:      NewActivateAccountHandler(repo),
		resend:        NewResendActivationHandler(repo, notifier, config),
		resetInit:     NewInitializePasswordResetHandler(repo, notifier, config),
		resetFinalize: NewFinalizePasswordResetHandler(repo),
		getProfile:    NewGetProfileHandler(repo),
		updateProfile: NewUpdateProfileHandler(repo, storage),
		deleteAccount: NewDeleteAccountHandler(repo),
	}
}

// WithLogger overrides the logger on the façade and every handler.
func (o *Orchestrator) WithLogger(logger Logger) *Orchestrator {
	if logger == nil {
		return o
	}
	o.logger = logger
	o.register.WithLogger(logger)
	o.activate.WithLogger(logger)
	o.resend.WithLogger(logger)
	o.resetInit.WithLogger(logger)
	o.resetFinalize.WithLogger(logger)
	o.getProfile.WithLogger(logger)
	o.updateProfile.WithLogger(logger)
	o.deleteAccount.WithLogger(logger)
	return o
}

// Register creates a pending account and issues its activation token.
func (o *Orchestrator) Register(ctx context.Context, msg RegisterUserMessage) (*RegisterUserResponse, error) {
	var resp *RegisterUserResponse
	msg.OnResponse = func(r *RegisterUserResponse) { resp = r }
	if err := o.register.Execute(ctx, msg); err != nil {
		return nil, err
	}
	return resp, nil
}

// Login authenticates credentials and returns a signed bearer token.
func (o *Orchestrator) Login(ctx context.Context, email, password string) (string, error) {
	return o.auther.Login(ctx, email, password)
}

// Activate flips the account to activated using the emailed token.
func (o *Orchestrator) Activate(ctx context.Context, token string) (*ActivateAccountResponse, error) {
	var resp *ActivateAccountResponse
	if err := o.activate.Execute(ctx, ActivateAccountMessage{
		Token:      token,
		OnResponse: func(r *ActivateAccountResponse) { resp = r },
	}); err != nil {
		return nil, err
	}
	return resp, nil
}

// ResendActivation rotates the pending activation token and redelivers it.
func (o *Orchestrator) ResendActivation(ctx context.Context, token string) (*ResendActivationResponse, error) {
	var resp *ResendActivationResponse
	if err := o.resend.Execute(ctx, ResendActivationMessage{
		Token:      token,
		OnResponse: func(r *ResendActivationResponse) { resp = r },
	}); err != nil {
		return nil, err
	}
	return resp, nil
}

// ForgotPassword starts the recovery flow for the account with the email.
func (o *Orchestrator) ForgotPassword(ctx context.Context, email string) (*InitializePasswordResetResponse, error) {
	var resp *InitializePasswordResetResponse
	if err := o.resetInit.Execute(ctx, InitializePasswordResetMessage{
		Email:      email,
		OnResponse: func(r *InitializePasswordResetResponse) { resp = r },
	}); err != nil {
		return nil, err
	}
	return resp, nil
}

// ResetPassword finalizes recovery, replacing the stored password digest.
func (o *Orchestrator) ResetPassword(ctx context.Context, token, password string) error {
	return o.resetFinalize.Execute(ctx, FinalizePasswordResetMessage{
		Token:    token,
		Password: password,
	})
}

// RefreshSession mints a new bearer token for the calling user.
func (o *Orchestrator) RefreshSession(ctx context.Context) (string, error) {
	user, err := o.resolveCaller(ctx)
	if err != nil {
		return "", err
	}
	return o.auther.Refresh(ctx, user)
}

// Logout revokes every live session of the calling user.
func (o *Orchestrator) Logout(ctx context.Context) error {
	user, err := o.resolveCaller(ctx)
	if err != nil {
		return err
	}
	return o.auther.RevokeAll(ctx, user.ID)
}

// GetProfile returns the calling user's profile view.
func (o *Orchestrator) GetProfile(ctx context.Context) (*ProfileResponse, error) {
	user, err := o.resolveCaller(ctx)
	if err != nil {
		return nil, err
	}

	var resp *ProfileResponse
	if err := o.getProfile.Execute(ctx, GetProfileMessage{
		UserID:     user.ID.String(),
		OnResponse: func(r *ProfileResponse) { resp = r },
	}); err != nil {
		return nil, err
	}
	return resp, nil
}

// UpdateProfile applies a partial update to the calling user's profile.
func (o *Orchestrator) UpdateProfile(ctx context.Context, msg UpdateProfileMessage) (*ProfileResponse, error) {
	user, err := o.resolveCaller(ctx)
	if err != nil {
		return nil, err
	}

	msg.UserID = user.ID.String()

	var resp *ProfileResponse
	msg.OnResponse = func(r *ProfileResponse) { resp = r }
	if err := o.updateProfile.Execute(ctx, msg); err != nil {
		return nil, err
	}
	return resp, nil
}

// DeleteAccount removes the calling user's account and every attachment,
// revoking outstanding sessions in the same stroke.
func (o *Orchestrator) DeleteAccount(ctx context.Context) error {
	user, err := o.resolveCaller(ctx)
	if err != nil {
		return err
	}

	return o.deleteAccount.Execute(ctx, DeleteAccountMessage{
		UserID: user.ID.String(),
	})
}

// resolveCaller loads the acting user's record. No caller in the context
// is an auth failure; a caller whose account no longer exists is not
// found, which matters after a concurrent delete.
func (o *Orchestrator) resolveCaller(ctx context.Context) (*User, error) {
	id, ok := CallerID(ctx)
	if !ok {
		return nil, ErrUnauthorized
	}

	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrUnauthorized
	}

	user, err := o.repo.Users().GetByID(ctx, id, WithUserAttachments())
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrIdentityNotFound
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to resolve caller")
	}

	return user, nil
}
