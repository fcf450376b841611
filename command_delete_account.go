package identity

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type DeleteAccountMessage struct {
	UserID     string `json:"user_id"`
	OnResponse func(resp *DeleteAccountResponse)
}

func (e DeleteAccountMessage) Type() string { return "identity.account_delete" }

func (e DeleteAccountMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.UserID, validation.Required, is.UUID),
	)
}

type DeleteAccountResponse struct {
	UserID string
}

type DeleteAccountHandler struct {
	repo   RepositoryManager
	logger Logger
}

// NewDeleteAccountHandler creates a handler with sane defaults.
func NewDeleteAccountHandler(repo RepositoryManager) *DeleteAccountHandler {
	return &DeleteAccountHandler{
		repo:   repo,
		logger: defLogger{},
	}
}

// WithLogger overrides the logger used by the handler.
func (h *DeleteAccountHandler) WithLogger(logger Logger) *DeleteAccountHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *DeleteAccountHandler) Execute(ctx context.Context, event DeleteAccountMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during account deletion",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *DeleteAccountHandler) execute(ctx context.Context, event DeleteAccountMessage) error {
	if err := event.Validate(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid delete request")
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	id, err := uuid.Parse(event.UserID)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid user id").
			WithCode(goerrors.CodeBadRequest)
	}

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := h.repo.Users().GetByID(ctx, event.UserID); err != nil {
			if repository.IsRecordNotFound(err) {
				return ErrIdentityNotFound
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load account")
		}

		// attachments and sessions go with the account; a deleted
		// user's bearer tokens must stop resolving immediately
		return h.repo.Users().DeleteCascadeTx(ctx, tx, id)
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to delete account")
	}

	if event.OnResponse != nil {
		event.OnResponse(&DeleteAccountResponse{UserID: event.UserID})
	}

	return nil
}
