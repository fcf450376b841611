package identity

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// UserRole is the user's role
type UserRole string

const (
	// RoleGuest is a guest role (ie. view)
	RoleGuest UserRole = "guest"
	// RoleMember is a member (i.e. view, edit)
	RoleMember UserRole = "member"
	// RoleAdmin is an admin role (i.e. view, edit, create)
	RoleAdmin UserRole = "admin"
	// RoleOwner is an owner role (i.e. view, edit, create, delete)
	RoleOwner UserRole = "owner"
)

// User is the canonical account record. Child records (address, email
// confirm, reset token, session tokens) hold the user id; children never
// store back-pointers to the user.
type User struct {
	bun.BaseModel  `bun:"table:users,alias:usr"`
	ID             uuid.UUID       `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Role           UserRole        `bun:"user_role,notnull" json:"user_role,omitempty"`
	FirstName      string          `bun:"first_name" json:"first_name,omitempty"`
	LastName       string          `bun:"last_name" json:"last_name,omitempty"`
	Email          string          `bun:"email,notnull,unique" json:"email,omitempty"`
	Phone          string          `bun:"phone_number" json:"phone_number,omitempty"`
	DateOfBirth    *time.Time      `bun:"date_of_birth,nullzero" json:"date_of_birth,omitempty"`
	Gender         string          `bun:"gender" json:"gender,omitempty"`
	ProfilePicture string          `bun:"profile_picture" json:"profile_picture,omitempty"`
	PasswordHash   string          `bun:"password_hash" json:"-"`
	Address        *Address        `bun:"rel:has-one,join:id=user_id" json:"address,omitempty"`
	EmailConfirm   *EmailConfirm   `bun:"rel:has-one,join:id=user_id" json:"email_confirm,omitempty"`
	PasswordReset  *PasswordReset  `bun:"rel:has-one,join:id=user_id" json:"-"`
	SessionTokens  []*SessionToken `bun:"rel:has-many,join:id=user_id" json:"-"`
	CreatedAt      *time.Time      `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt      *time.Time      `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt      *time.Time      `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// Activated reports whether the user completed email confirmation.
// A user with no loaded confirm record counts as not activated.
func (u *User) Activated() bool {
	return u != nil && u.EmailConfirm != nil && u.EmailConfirm.Activated
}

// Address holds the free form postal fields attached 1:1 to a user.
type Address struct {
	bun.BaseModel `bun:"table:addresses,alias:addr"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	UserID        uuid.UUID  `bun:"user_id,notnull,unique,type:uuid" json:"user_id,omitempty"`
	Street        string     `bun:"street" json:"street,omitempty"`
	City          string     `bun:"city" json:"city,omitempty"`
	StateProvince string     `bun:"state_province" json:"state_province,omitempty"`
	PostalCode    string     `bun:"postal_code" json:"postal_code,omitempty"`
	Country       string     `bun:"country" json:"country,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// EmailConfirm tracks email ownership verification for a user. The
// activated flag is monotonic: once TRUE it never goes back.
type EmailConfirm struct {
	bun.BaseModel `bun:"table:email_confirms,alias:ec"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	UserID        uuid.UUID  `bun:"user_id,notnull,unique,type:uuid" json:"user_id,omitempty"`
	Token         string     `bun:"token,notnull,unique" json:"-"`
	ExpiresAt     *time.Time `bun:"expires_at,notnull" json:"expires_at,omitempty"`
	Activated     bool       `bun:"activated,notnull,default:false" json:"activated"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// Expired reports whether the confirmation token passed its expiry.
func (e *EmailConfirm) Expired(now time.Time) bool {
	return e != nil && e.ExpiresAt != nil && now.After(*e.ExpiresAt)
}

// PasswordReset is the recovery token attached 0/1 to a user. A new
// request replaces the prior record; a successful password change marks
// it consumed so the token cannot be replayed inside the TTL window.
type PasswordReset struct {
	bun.BaseModel `bun:"table:password_resets,alias:pwdr"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	UserID        uuid.UUID  `bun:"user_id,notnull,unique,type:uuid" json:"user_id,omitempty"`
	Token         string     `bun:"token,notnull,unique" json:"-"`
	ExpiresAt     *time.Time `bun:"expires_at,notnull" json:"expires_at,omitempty"`
	ConsumedAt    *time.Time `bun:"consumed_at,nullzero" json:"consumed_at,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// Expired reports whether the reset token passed its expiry.
func (r *PasswordReset) Expired(now time.Time) bool {
	return r != nil && r.ExpiresAt != nil && now.After(*r.ExpiresAt)
}

// Consumed reports whether the reset token was already used.
func (r *PasswordReset) Consumed() bool {
	return r != nil && r.ConsumedAt != nil
}

// SessionToken is a persisted bearer session. The row id doubles as the
// JWT jti claim so revocation checks can resolve the backing record.
// Revocation is monotonic; revoked rows are kept as an audit trail.
type SessionToken struct {
	bun.BaseModel `bun:"table:session_tokens,alias:st"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	UserID        uuid.UUID  `bun:"user_id,notnull,type:uuid" json:"user_id,omitempty"`
	Token         string     `bun:"token,notnull" json:"-"`
	IssuedAt      *time.Time `bun:"issued_at,notnull" json:"issued_at,omitempty"`
	ExpiresAt     *time.Time `bun:"expires_at,notnull" json:"expires_at,omitempty"`
	Revoked       bool       `bun:"revoked,notnull,default:false" json:"revoked"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// Usable reports whether the session row still authenticates requests:
// not revoked and not past its expiry.
func (s *SessionToken) Usable(now time.Time) bool {
	if s == nil || s.Revoked {
		return false
	}
	return s.ExpiresAt == nil || now.Before(*s.ExpiresAt)
}
