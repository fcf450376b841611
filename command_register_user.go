package identity

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/uptrace/bun"
)

type RegisterUserMessage struct {
	FirstName  string   `json:"first_name"`
	LastName   string   `json:"last_name"`
	Email      string   `json:"email"`
	Phone      string   `json:"phone"`
	Password   string   `json:"password"`
	Roles      []string `json:"roles"`
	UseHashid  bool
	OnResponse func(resp *RegisterUserResponse)
}

func (e RegisterUserMessage) Type() string { return "identity.register" }

// Validate enforces the boundary rules before any storage work happens.
func (e RegisterUserMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Email, validation.Required, is.Email),
		validation.Field(&e.Password, validation.Required, validation.Length(8, 120)),
		validation.Field(&e.FirstName, validation.Length(0, 60)),
		validation.Field(&e.LastName, validation.Length(0, 60)),
	)
}

// RegisterUserResponse exposes the activation token so confirmation
// flows can be driven end to end in tests and setup tooling.
type RegisterUserResponse struct {
	User            *User
	ActivationToken string
	Activated       bool
}

type RegisterUserHandler struct {
	repo     RepositoryManager
	notifier Notifier
	config   Config
	logger   Logger
}

// NewRegisterUserHandler creates a handler with sane defaults.
func NewRegisterUserHandler(repo RepositoryManager, notifier Notifier, config Config) *RegisterUserHandler {
	return &RegisterUserHandler{
		repo:     repo,
		notifier: notifier,
		config:   config,
		logger:   defLogger{},
	}
}

// WithLogger overrides the logger used by the handler.
func (h *RegisterUserHandler) WithLogger(logger Logger) *RegisterUserHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *RegisterUserHandler) Execute(ctx context.Context, event RegisterUserMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during user registration",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RegisterUserHandler) execute(ctx context.Context, event RegisterUserMessage) error {
	if err := event.Validate(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid registration request")
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	resp := &RegisterUserResponse{}

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := h.repo.Users().GetByIdentifierTx(ctx, tx, event.Email); err == nil {
			return ErrEmailAlreadyExists
		} else if !repository.IsRecordNotFound(err) {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check email availability")
		}

		hash, err := HashPassword(event.Password)
		if err != nil {
			var richErr *goerrors.Error
			if goerrors.As(err, &richErr) {
				return goerrors.Wrap(richErr, goerrors.CategoryValidation, "invalid password provided")
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
		}

		user := &User{
			Email:        event.Email,
			Phone:        event.Phone,
			FirstName:    event.FirstName,
			LastName:     event.LastName,
			PasswordHash: hash,
			Role:         PrimaryRole(NormalizeRoles(event.Roles)),
		}
		if event.UseHashid {
			if id, err := hashid.NewUUID(event.Email); err == nil {
				user.ID = id
			}
		}

		// the unique email constraint closes the check-then-write race
		if user, err = h.repo.Users().CreateTx(ctx, tx, user); err != nil {
			if isUniqueViolation(err) {
				return ErrEmailAlreadyExists
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not create user")
		}

		token, expiresAt, err := IssueOpaqueToken(h.config.GetActivationTokenTTL())
		if err != nil {
			return err
		}

		confirm := &EmailConfirm{
			UserID:    user.ID,
			Token:     token,
			ExpiresAt: &expiresAt,
		}
		if confirm, err = h.repo.EmailConfirms().CreateTx(ctx, tx, confirm); err != nil {
			return err
		}

		address := &Address{UserID: user.ID}
		if address, err = h.repo.Addresses().CreateTx(ctx, tx, address); err != nil {
			return err
		}

		user.EmailConfirm = confirm
		user.Address = address

		resp.User = user
		resp.ActivationToken = confirm.Token
		resp.Activated = confirm.Activated

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "user registration transaction failed")
	}

	if err := h.notifier.SendActivation(ctx, resp.User, resp.ActivationToken); err != nil {
		// the confirm record stays valid; delivery failure is surfaced,
		// not rolled back
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to deliver activation email")
	}

	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}
