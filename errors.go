package identity

import (
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	// TextCodeTokenExpired marks a presented activation or reset token
	// that passed its expiry; the HTTP boundary maps it to 410 Gone.
	TextCodeTokenExpired = "TOKEN_EXPIRED"
	// TextCodeTokenUsed marks a reset token that was already consumed.
	TextCodeTokenUsed = "TOKEN_ALREADY_USED"
	// TextCodeAlreadyActivated marks a second activation attempt.
	TextCodeAlreadyActivated = "ACCOUNT_ALREADY_ACTIVATED"
	// TextCodeNotActivated marks a login against a pending account.
	TextCodeNotActivated = "ACCOUNT_NOT_ACTIVATED"
	// TextCodeEmailExists marks a duplicate email at registration.
	TextCodeEmailExists = "EMAIL_ALREADY_EXISTS"
	// TextCodeEmptyPassword marks an empty password input.
	TextCodeEmptyPassword = "EMPTY_PASSWORD"
	// TextCodeSessionRevoked marks a bearer token whose backing session
	// row was revoked.
	TextCodeSessionRevoked = "SESSION_REVOKED"
	// TextCodeSessionExpired marks a bearer token past its expiry. Unlike
	// TOKEN_EXPIRED this is an auth failure, not a stale link.
	TextCodeSessionExpired = "SESSION_EXPIRED"
)

// ErrIdentityNotFound is returned for lookups that resolve no account.
var ErrIdentityNotFound = goerrors.New("identity not found", goerrors.CategoryNotFound).
	WithTextCode("IDENTITY_NOT_FOUND").
	WithCode(goerrors.CodeNotFound)

// ErrMismatchedHashAndPassword is returned when a password does not
// verify against the stored digest.
var ErrMismatchedHashAndPassword = goerrors.New("invalid credentials", goerrors.CategoryAuth).
	WithTextCode("INVALID_CREDENTIALS").
	WithCode(goerrors.CodeUnauthorized)

// ErrNoEmptyString is returned when an empty password is hashed.
var ErrNoEmptyString = goerrors.New("password must not be empty", goerrors.CategoryValidation).
	WithTextCode(TextCodeEmptyPassword).
	WithCode(goerrors.CodeBadRequest)

// ErrAccountNotActivated is returned when an operation requires a
// confirmed email address and the account is still pending.
var ErrAccountNotActivated = goerrors.New("account email is not activated", goerrors.CategoryAuth).
	WithTextCode(TextCodeNotActivated).
	WithCode(goerrors.CodeForbidden)

// ErrAlreadyActivated is returned when activating an account that
// completed activation before; the transition happens exactly once.
var ErrAlreadyActivated = goerrors.New("account is already activated", goerrors.CategoryConflict).
	WithTextCode(TextCodeAlreadyActivated).
	WithCode(goerrors.CodeConflict)

// ErrEmailAlreadyExists is returned when registration hits the unique
// email constraint.
var ErrEmailAlreadyExists = goerrors.New("email already registered", goerrors.CategoryConflict).
	WithTextCode(TextCodeEmailExists).
	WithCode(goerrors.CodeConflict)

// ErrTokenExpired is returned when a presented activation or reset
// token is past its expiry instant.
var ErrTokenExpired = goerrors.New("token has expired", goerrors.CategoryValidation).
	WithTextCode(TextCodeTokenExpired)

// ErrTokenConsumed is returned when a reset token is replayed after a
// successful password change.
var ErrTokenConsumed = goerrors.New("token has already been used", goerrors.CategoryConflict).
	WithTextCode(TextCodeTokenUsed).
	WithCode(goerrors.CodeConflict)

// ErrSessionExpired is returned when a bearer token is past its expiry.
// The caller simply needs to authenticate again.
var ErrSessionExpired = goerrors.New("session has expired", goerrors.CategoryAuth).
	WithTextCode(TextCodeSessionExpired).
	WithCode(goerrors.CodeUnauthorized)

// ErrSessionRevoked is returned when a bearer token verifies but its
// persisted session row was revoked.
var ErrSessionRevoked = goerrors.New("session has been revoked", goerrors.CategoryAuth).
	WithTextCode(TextCodeSessionRevoked).
	WithCode(goerrors.CodeUnauthorized)

// ErrUnauthorized is returned when an operation requires a resolved
// caller identity and none is present.
var ErrUnauthorized = goerrors.New("authentication required", goerrors.CategoryAuth).
	WithTextCode("AUTHENTICATION_REQUIRED").
	WithCode(goerrors.CodeUnauthorized)

// ErrUnableToDecodeSession is returned when token claims cannot be
// decoded into a session.
var ErrUnableToDecodeSession = goerrors.New("unable to decode session", goerrors.CategoryAuth).
	WithTextCode("SESSION_DECODE_FAILED").
	WithCode(goerrors.CodeUnauthorized)

// ErrTokenMalformed is returned for bearer tokens that fail parsing or
// signature verification.
var ErrTokenMalformed = goerrors.New("token is malformed", goerrors.CategoryAuth).
	WithTextCode("TOKEN_MALFORMED").
	WithCode(goerrors.CodeUnauthorized)

// IsGone reports whether the error represents an activation or reset
// token past its expiry. Expired sessions are auth failures, not gone.
func IsGone(err error) bool {
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		return false
	}
	return rich.TextCode == TextCodeTokenExpired
}

// isUniqueViolation matches the constraint error text of the sqlite and
// postgres drivers the repositories run on.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key")
}

// IsConflict reports whether the error carries the conflict category.
func IsConflict(err error) bool {
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		return false
	}
	return rich.Category == goerrors.CategoryConflict
}
