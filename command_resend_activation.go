package identity

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

type ResendActivationMessage struct {
	Token      string `json:"token"`
	OnResponse func(resp *ResendActivationResponse)
}

func (e ResendActivationMessage) Type() string { return "identity.activation_resend" }

func (e ResendActivationMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Token, validation.Required),
	)
}

type ResendActivationResponse struct {
	ActivationToken string
	ExpiresAt       time.Time
}

type ResendActivationHandler struct {
	repo     RepositoryManager
	notifier Notifier
	config   Config
	logger   Logger
}

// NewResendActivationHandler creates a handler with sane defaults.
func NewResendActivationHandler(repo RepositoryManager, notifier Notifier, config Config) *ResendActivationHandler {
	return &ResendActivationHandler{
		repo:     repo,
		notifier: notifier,
		config:   config,
		logger:   defLogger{},
	}
}

// WithLogger overrides the logger used by the handler.
func (h *ResendActivationHandler) WithLogger(logger Logger) *ResendActivationHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *ResendActivationHandler) Execute(ctx context.Context, event ResendActivationMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during activation resend",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *ResendActivationHandler) execute(ctx context.Context, event ResendActivationMessage) error {
	if err := event.Validate(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid resend request")
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	resp := &ResendActivationResponse{}
	var user *User

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		confirm, err := h.repo.EmailConfirms().GetByToken(ctx, event.Token)
		if err != nil {
			if repository.IsRecordNotFound(err) {
				return goerrors.New("activation token not found", goerrors.CategoryNotFound).
					WithCode(goerrors.CodeNotFound)
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not retrieve activation request")
		}

		if confirm.Activated {
			return ErrAlreadyActivated
		}

		token, expiresAt, err := IssueOpaqueToken(h.config.GetActivationTokenTTL())
		if err != nil {
			return err
		}

		// rotation replaces the stored token; the one just presented
		// stops resolving from here on
		if err := h.repo.EmailConfirms().RotateTx(ctx, tx, confirm.ID, token, expiresAt); err != nil {
			return err
		}

		user, err = h.repo.Users().GetByID(ctx, confirm.UserID.String())
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load user for notification")
		}

		resp.ActivationToken = token
		resp.ExpiresAt = expiresAt
		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to reissue activation token")
	}

	if err := h.notifier.SendActivation(ctx, user, resp.ActivationToken); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to deliver activation email")
	}

	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}
