package identity

import (
	"context"
)

var userCtxKey = &contextKey{"user"}
var sessionCtxKey = &contextKey{"session"}
var claimsCtxKey = &contextKey{"claims"}

type contextKey struct {
	name string
}

// WithContext sets the User in the given context
func WithContext(r context.Context, user *User) context.Context {
	return context.WithValue(r, userCtxKey, user)
}

// FromContext finds the user from the context.
func FromContext(ctx context.Context) (*User, bool) {
	raw, ok := ctx.Value(userCtxKey).(*User)
	return raw, ok
}

// WithSessionContext sets the Session in the given context
func WithSessionContext(r context.Context, session Session) context.Context {
	return context.WithValue(r, sessionCtxKey, session)
}

// SessionFromContext extracts the Session from the standard context
func SessionFromContext(ctx context.Context) (Session, bool) {
	raw, ok := ctx.Value(sessionCtxKey).(Session)
	return raw, ok
}

// WithClaimsContext sets the AuthClaims in the given context
func WithClaimsContext(r context.Context, claims AuthClaims) context.Context {
	return context.WithValue(r, claimsCtxKey, claims)
}

// GetClaims extracts the AuthClaims from the standard context
func GetClaims(ctx context.Context) (AuthClaims, bool) {
	raw, ok := ctx.Value(claimsCtxKey).(AuthClaims)
	return raw, ok
}

// CallerID resolves the acting user's id with a fixed precedence: an
// explicitly set User first, then the Session, then raw claims. Returns
// false when no authenticated caller is present.
func CallerID(ctx context.Context) (string, bool) {
	if user, ok := FromContext(ctx); ok && user != nil {
		return user.ID.String(), true
	}

	if session, ok := SessionFromContext(ctx); ok && session != nil {
		return session.GetUserID(), true
	}

	if claims, ok := GetClaims(ctx); ok && claims != nil {
		return claims.UserID(), true
	}

	return "", false
}
