package identity

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
)

type GetProfileMessage struct {
	UserID     string `json:"user_id"`
	OnResponse func(resp *ProfileResponse)
}

func (e GetProfileMessage) Type() string { return "identity.profile_get" }

func (e GetProfileMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.UserID, validation.Required, is.UUID),
	)
}

// ProfileResponse is the outward view of an account. The password hash
// and token records never leave the module.
type ProfileResponse struct {
	ID             string     `json:"id"`
	Email          string     `json:"email"`
	FirstName      string     `json:"first_name,omitempty"`
	LastName       string     `json:"last_name,omitempty"`
	Phone          string     `json:"phone_number,omitempty"`
	DateOfBirth    *time.Time `json:"date_of_birth,omitempty"`
	Gender         string     `json:"gender,omitempty"`
	ProfilePicture string     `json:"profile_picture,omitempty"`
	Role           UserRole   `json:"user_role"`
	Activated      bool       `json:"activated"`
	Address        *Address   `json:"address,omitempty"`
}

func profileFromUser(user *User) *ProfileResponse {
	return &ProfileResponse{
		ID:             user.ID.String(),
		Email:          user.Email,
		FirstName:      user.FirstName,
		LastName:       user.LastName,
		Phone:          user.Phone,
		DateOfBirth:    user.DateOfBirth,
		Gender:         user.Gender,
		ProfilePicture: user.ProfilePicture,
		Role:           user.Role,
		Activated:      user.Activated(),
		Address:        user.Address,
	}
}

type GetProfileHandler struct {
	repo   RepositoryManager
	logger Logger
}

// NewGetProfileHandler creates a handler with sane defaults.
func NewGetProfileHandler(repo RepositoryManager) *GetProfileHandler {
	return &GetProfileHandler{
		repo:   repo,
		logger: defLogger{},
	}
}

// WithLogger overrides the logger used by the handler.
func (h *GetProfileHandler) WithLogger(logger Logger) *GetProfileHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *GetProfileHandler) Execute(ctx context.Context, event GetProfileMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during profile fetch",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *GetProfileHandler) execute(ctx context.Context, event GetProfileMessage) error {
	if err := event.Validate(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid profile request")
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	user, err := h.repo.Users().GetByID(ctx, event.UserID, WithUserAttachments())
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return ErrIdentityNotFound
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load profile")
	}

	if event.OnResponse != nil {
		event.OnResponse(profileFromUser(user))
	}

	return nil
}
