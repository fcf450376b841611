package identity

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

type ActivateAccountMessage struct {
	Token      string `json:"token"`
	OnResponse func(resp *ActivateAccountResponse)
}

func (e ActivateAccountMessage) Type() string { return "identity.activate" }

func (e ActivateAccountMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Token, validation.Required),
	)
}

type ActivateAccountResponse struct {
	Activated bool
	UserID    string
}

type ActivateAccountHandler struct {
	repo   RepositoryManager
	logger Logger
}

// NewActivateAccountHandler creates a handler with sane defaults.
func NewActivateAccountHandler(repo RepositoryManager) *ActivateAccountHandler {
	return &ActivateAccountHandler{
		repo:   repo,
		logger: defLogger{},
	}
}

// WithLogger overrides the logger used by the handler.
func (h *ActivateAccountHandler) WithLogger(logger Logger) *ActivateAccountHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *ActivateAccountHandler) Execute(ctx context.Context, event ActivateAccountMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during account activation",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *ActivateAccountHandler) execute(ctx context.Context, event ActivateAccountMessage) error {
	if err := event.Validate(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid activation request")
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	resp := &ActivateAccountResponse{}

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		confirm, err := h.repo.EmailConfirms().GetByToken(ctx, event.Token)
		if err != nil {
			if repository.IsRecordNotFound(err) {
				return goerrors.New("activation token not found", goerrors.CategoryNotFound).
					WithCode(goerrors.CodeNotFound)
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not retrieve activation request")
		}

		// activation happens exactly once
		if confirm.Activated {
			return ErrAlreadyActivated
		}

		if confirm.Expired(time.Now()) {
			return ErrTokenExpired
		}

		// the guarded update re-checks activated inside the transaction,
		// so a concurrent activate on the same token loses cleanly
		if err := h.repo.EmailConfirms().ActivateTx(ctx, tx, event.Token); err != nil {
			return err
		}

		resp.Activated = true
		resp.UserID = confirm.UserID.String()
		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to activate account")
	}

	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}
