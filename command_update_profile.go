package identity

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/nyaruka/phonenumbers"
	"github.com/uptrace/bun"
)

// AddressInput carries the postal fields of a profile update. The whole
// block is applied at once; there is no per-field address patching.
type AddressInput struct {
	Street        string `json:"street"`
	City          string `json:"city"`
	StateProvince string `json:"state_province"`
	PostalCode    string `json:"postal_code"`
	Country       string `json:"country"`
}

func (a AddressInput) Validate() error {
	return validation.ValidateStruct(&a,
		validation.Field(&a.PostalCode, validation.Length(0, 5)),
	)
}

type UpdateProfileMessage struct {
	UserID      string         `json:"user_id"`
	FirstName   *string        `json:"first_name"`
	LastName    *string        `json:"last_name"`
	Phone       *string        `json:"phone_number"`
	PhoneRegion string         `json:"phone_region"`
	DateOfBirth *time.Time     `json:"date_of_birth"`
	Gender      *string        `json:"gender"`
	Address     *AddressInput  `json:"address"`
	Picture     *ProfileUpload `json:"-"`
	OnResponse  func(resp *ProfileResponse)
}

func (e UpdateProfileMessage) Type() string { return "identity.profile_update" }

func (e UpdateProfileMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.UserID, validation.Required, is.UUID),
		validation.Field(&e.Address),
	)
}

type UpdateProfileHandler struct {
	repo    RepositoryManager
	storage ProfileStore
	logger  Logger
}

// NewUpdateProfileHandler creates a handler with sane defaults. The
// storage argument may be nil when picture uploads are not supported.
func NewUpdateProfileHandler(repo RepositoryManager, storage ProfileStore) *UpdateProfileHandler {
	return &UpdateProfileHandler{
		repo:    repo,
		storage: storage,
		logger:  defLogger{},
	}
}

// WithLogger overrides the logger used by the handler.
func (h *UpdateProfileHandler) WithLogger(logger Logger) *UpdateProfileHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *UpdateProfileHandler) Execute(ctx context.Context, event UpdateProfileMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during profile update",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *UpdateProfileHandler) execute(ctx context.Context, event UpdateProfileMessage) error {
	if err := event.Validate(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid profile update")
	}

	phone := ""
	if event.Phone != nil && *event.Phone != "" {
		normalized, err := normalizePhone(*event.Phone, event.PhoneRegion)
		if err != nil {
			return err
		}
		phone = normalized
	}

	// upload before the transaction; an orphaned blob is cheaper than
	// holding a tx open across a network call
	pictureRef := ""
	if event.Picture != nil {
		if h.storage == nil {
			return goerrors.New("profile picture storage is not configured", goerrors.CategoryValidation).
				WithCode(goerrors.CodeBadRequest)
		}
		ref, err := h.storage.Store(ctx, *event.Picture)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to store profile picture")
		}
		pictureRef = ref
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	var updated *User

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		user, err := h.repo.Users().GetByID(ctx, event.UserID, WithUserAttachments())
		if err != nil {
			if repository.IsRecordNotFound(err) {
				return ErrIdentityNotFound
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load profile")
		}

		if event.FirstName != nil {
			user.FirstName = *event.FirstName
		}
		if event.LastName != nil {
			user.LastName = *event.LastName
		}
		if event.Phone != nil {
			user.Phone = phone
		}
		if event.DateOfBirth != nil {
			user.DateOfBirth = event.DateOfBirth
		}
		if event.Gender != nil {
			user.Gender = *event.Gender
		}
		if pictureRef != "" {
			user.ProfilePicture = pictureRef
		}

		if updated, err = h.repo.Users().UpdateTx(ctx, tx, user, repository.UpdateByID(user.ID.String())); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update profile")
		}

		if event.Address != nil {
			address := &Address{
				UserID:        user.ID,
				Street:        event.Address.Street,
				City:          event.Address.City,
				StateProvince: event.Address.StateProvince,
				PostalCode:    event.Address.PostalCode,
				Country:       event.Address.Country,
			}
			if user.Address != nil {
				address.ID = user.Address.ID
			}
			if address, err = h.repo.Addresses().UpsertTx(ctx, tx, address); err != nil {
				return err
			}
			updated.Address = address
		} else {
			updated.Address = user.Address
		}

		updated.EmailConfirm = user.EmailConfirm

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update profile")
	}

	if event.OnResponse != nil {
		event.OnResponse(profileFromUser(updated))
	}

	return nil
}

// normalizePhone validates the number and stores it in E.164 form. The
// region only matters for national formats without a leading +.
func normalizePhone(value, region string) (string, error) {
	if region == "" {
		region = "US"
	}

	num, err := phonenumbers.Parse(value, region)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryValidation, "invalid phone number").
			WithCode(goerrors.CodeBadRequest)
	}

	if !phonenumbers.IsValidNumber(num) {
		return "", goerrors.New("invalid phone number", goerrors.CategoryValidation).
			WithCode(goerrors.CodeBadRequest)
	}

	return phonenumbers.Format(num, phonenumbers.E164), nil
}
