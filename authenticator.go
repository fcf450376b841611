package identity

import (
	"context"
	"reflect"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Auther implements Authenticator on top of an identity provider, a
// token service, and the session tokens store. Every issued JWT has a
// backing session row keyed by the jti claim; bearer validation checks
// the row so revocation takes effect without waiting for expiry.
type Auther struct {
	provider     IdentityProvider
	repo         RepositoryManager
	tokenService TokenService
	logger       Logger
}

// NewAuthenticator returns a new Authenticator
func NewAuthenticator(provider IdentityProvider, opts Config, repo RepositoryManager) *Auther {
	tokenService := NewTokenService(
		[]byte(opts.GetSigningKey()),
		opts.GetTokenExpiration(),
		opts.GetIssuer(),
		opts.GetAudience(),
		defLogger{},
	)

	return &Auther{
		provider:     provider,
		repo:         repo,
		tokenService: tokenService,
		logger:       defLogger{},
	}
}

func (s *Auther) WithLogger(logger Logger) *Auther {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// WithTokenService overrides the token service used by the authenticator.
func (s *Auther) WithTokenService(service TokenService) *Auther {
	if service != nil {
		s.tokenService = service
	}
	return s
}

// TokenService returns the TokenService instance used by this Authenticator
func (s *Auther) TokenService() TokenService {
	return s.tokenService
}

var _ Authenticator = (*Auther)(nil)

func (s *Auther) Login(ctx context.Context, identifier, password string) (string, error) {
	var err error
	var identity Identity

	if identity, err = s.provider.VerifyIdentity(ctx, identifier, password); err != nil {
		s.logger.Error("Login verify identity error: %v", err)
		return "", err
	}

	if identity == nil || reflect.ValueOf(identity).IsZero() {
		s.logger.Error("Login identity is nil or zero value")
		return "", ErrIdentityNotFound
	}

	return s.issueSession(ctx, identity)
}

// Refresh mints a new session for an already authenticated user. The
// previous session stays live; issuance is additive per device.
func (s *Auther) Refresh(ctx context.Context, user *User) (string, error) {
	if user == nil {
		return "", ErrUnauthorized
	}

	return s.issueSession(ctx, identityFromUser(user))
}

// RevokeAll flips the revoked flag on every live session of the user.
// Outstanding bearer tokens stop validating on their next use.
func (s *Auther) RevokeAll(ctx context.Context, userID uuid.UUID) error {
	return s.repo.SessionTokens().RevokeAll(ctx, userID)
}

// SessionFromToken validates the raw bearer token and checks its backing
// session record. A cryptographically valid token whose row was revoked
// or deleted does not authenticate.
func (s *Auther) SessionFromToken(ctx context.Context, raw string) (Session, error) {
	claims, err := s.tokenService.Validate(raw)
	if err != nil {
		s.logger.Error("SessionFromToken validation failed: %v", err)
		return nil, err
	}

	session, err := sessionFromAuthClaims(claims)
	if err != nil {
		s.logger.Error("SessionFromToken failed to create session from claims: %v", err)
		return nil, err
	}

	tokenID, err := uuid.Parse(session.GetTokenID())
	if err != nil {
		return nil, ErrUnableToDecodeSession
	}

	record, err := s.repo.SessionTokens().GetByID(ctx, tokenID)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrSessionRevoked
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check session record")
	}

	if !record.Usable(time.Now()) {
		return nil, ErrSessionRevoked
	}

	return session, nil
}

func (s *Auther) IdentityFromSession(ctx context.Context, session Session) (Identity, error) {
	identity, err := s.provider.FindIdentityByIdentifier(ctx, session.GetUserID())
	if err != nil {
		s.logger.Error("IdentityFromSession find identity by identifier: %v", err)
		return nil, err
	}

	return identity, nil
}

// issueSession signs a JWT and persists the matching session row inside
// one transaction, so a signed token without a record never escapes.
func (s *Auther) issueSession(ctx context.Context, identity Identity) (string, error) {
	token, claims, err := s.tokenService.Generate(identity)
	if err != nil {
		s.logger.Error("issueSession token generation failed: %v", err)
		return "", err
	}

	tokenID, err := uuid.Parse(claims.TokenID())
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "generated token carries invalid id")
	}

	userID, err := uuid.Parse(identity.ID())
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "identity carries invalid id")
	}

	issuedAt := claims.IssuedAt()
	expiresAt := claims.Expires()

	record := &SessionToken{
		ID:        tokenID,
		UserID:    userID,
		Token:     token,
		IssuedAt:  &issuedAt,
		ExpiresAt: &expiresAt,
	}

	err = s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := s.repo.SessionTokens().CreateTx(ctx, tx, record)
		return err
	})
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to persist session")
	}

	return token, nil
}
