package identity

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

type InitializePasswordResetMessage struct {
	Email      string `json:"email"`
	OnResponse func(resp *InitializePasswordResetResponse)
}

func (e InitializePasswordResetMessage) Type() string { return "identity.password_reset_init" }

func (e InitializePasswordResetMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Email, validation.Required, is.Email),
	)
}

type InitializePasswordResetResponse struct {
	Email      string
	ResetToken string
	ExpiresAt  time.Time
}

type InitializePasswordResetHandler struct {
	repo     RepositoryManager
	notifier Notifier
	config   Config
	logger   Logger
}

// NewInitializePasswordResetHandler creates a handler with sane defaults.
func NewInitializePasswordResetHandler(repo RepositoryManager, notifier Notifier, config Config) *InitializePasswordResetHandler {
	return &InitializePasswordResetHandler{
		repo:     repo,
		notifier: notifier,
		config:   config,
		logger:   defLogger{},
	}
}

// WithLogger overrides the logger used by the handler.
func (h *InitializePasswordResetHandler) WithLogger(logger Logger) *InitializePasswordResetHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *InitializePasswordResetHandler) Execute(ctx context.Context, event InitializePasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset request",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *InitializePasswordResetHandler) execute(ctx context.Context, event InitializePasswordResetMessage) error {
	if err := event.Validate(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid password reset request")
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	resp := &InitializePasswordResetResponse{}
	var user *User

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		user, err = h.repo.Users().GetByIdentifierTx(ctx, tx, event.Email)
		if err != nil {
			if repository.IsRecordNotFound(err) {
				return ErrIdentityNotFound
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to look up account")
		}

		token, expiresAt, err := IssueOpaqueToken(h.config.GetResetTokenTTL())
		if err != nil {
			return err
		}

		// one live token per user; a repeat request replaces the row
		// and the previous token stops resolving
		reset := &PasswordReset{
			UserID:    user.ID,
			Token:     token,
			ExpiresAt: &expiresAt,
		}
		if _, err := h.repo.PasswordResets().ReplaceTx(ctx, tx, reset); err != nil {
			return err
		}

		resp.Email = user.Email
		resp.ResetToken = token
		resp.ExpiresAt = expiresAt
		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to initialize password reset")
	}

	if err := h.notifier.SendPasswordReset(ctx, user, resp.ResetToken); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to deliver password reset email")
	}

	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}
