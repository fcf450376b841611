package identity

import (
	"time"

	"github.com/google/uuid"
)

var _ Session = &SessionObject{}

// SessionObject is the decoded view of a validated bearer token.
type SessionObject struct {
	TokenID        string     `json:"token_id,omitempty"`
	UserID         string     `json:"user_id,omitempty"`
	Audience       []string   `json:"audience,omitempty"`
	Issuer         string     `json:"issuer,omitempty"`
	IssuedAt       *time.Time `json:"issued_at,omitempty"`
	ExpirationDate *time.Time `json:"expiration_date,omitempty"`
}

func (s *SessionObject) GetTokenID() string {
	return s.TokenID
}

func (s *SessionObject) GetUserID() string {
	return s.UserID
}

func (s *SessionObject) GetUserUUID() (uuid.UUID, error) {
	return uuid.Parse(s.UserID)
}

func (s *SessionObject) GetAudience() []string {
	return s.Audience
}

func (s *SessionObject) GetIssuer() string {
	return s.Issuer
}

func (s *SessionObject) GetIssuedAt() *time.Time {
	return s.IssuedAt
}

func (s *SessionObject) GetExpiration() *time.Time {
	return s.ExpirationDate
}

// sessionFromAuthClaims converts validated claims into a SessionObject.
func sessionFromAuthClaims(claims AuthClaims) (*SessionObject, error) {
	if claims == nil {
		return nil, ErrUnableToDecodeSession
	}

	session := &SessionObject{
		TokenID: claims.TokenID(),
		UserID:  claims.UserID(),
	}

	if jwtClaims, ok := claims.(*JWTClaims); ok {
		session.Issuer = jwtClaims.RegisteredClaims.Issuer
		session.Audience = jwtClaims.RegisteredClaims.Audience
	}

	if issued := claims.IssuedAt(); !issued.IsZero() {
		session.IssuedAt = &issued
	}

	if expires := claims.Expires(); !expires.IsZero() {
		session.ExpirationDate = &expires
	}

	if session.UserID == "" {
		return nil, ErrUnableToDecodeSession
	}

	return session, nil
}
