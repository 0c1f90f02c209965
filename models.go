package auth

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// UserRole is the user's role
type UserRole string

const (
	// RoleUser is the default role for registered accounts
	RoleUser UserRole = "user"
	// RoleGuide can be assigned to lead activities
	RoleGuide UserRole = "guide"
	// RoleLeadGuide manages guides and their assignments
	RoleLeadGuide UserRole = "lead-guide"
	// RoleAdmin has full access
	RoleAdmin UserRole = "admin"
)

// DefaultPhoto is assigned to accounts created without a profile picture.
const DefaultPhoto = "default.jpg"

// User is the account model. The password is only ever held as a bcrypt
// hash; the reset fields hold the sha256 digest of an outstanding reset
// token plus its absolute expiry, and are always set or cleared together.
type User struct {
	bun.BaseModel     `bun:"table:users,alias:usr"`
	ID                uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Name              string     `bun:"name,notnull" json:"name,omitempty"`
	Email             string     `bun:"email,notnull,unique" json:"email,omitempty"`
	Phone             string     `bun:"phone_number" json:"phone_number,omitempty"`
	Photo             string     `bun:"photo" json:"photo,omitempty"`
	Role              UserRole   `bun:"user_role,notnull" json:"role,omitempty"`
	PasswordHash      string     `bun:"password_hash" json:"-"`
	PasswordChangedAt *time.Time `bun:"password_changed_at,nullzero" json:"-"`
	ResetTokenHash    *string    `bun:"reset_token_hash,nullzero" json:"-"`
	ResetTokenExpires *time.Time `bun:"reset_token_expires,nullzero" json:"-"`
	Active            bool       `bun:"active,notnull,default:true" json:"-"`
	CreatedAt         *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt         *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt         *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"-"`
}

// ChangedPasswordAfter reports whether the account's password changed after
// the given token issuance time. Comparison happens at second granularity
// because JWT iat claims only carry seconds.
func (u *User) ChangedPasswordAfter(issuedAt time.Time) bool {
	if u.PasswordChangedAt == nil {
		return false
	}
	return issuedAt.Truncate(time.Second).Before(u.PasswordChangedAt.Truncate(time.Second))
}

// HasPendingReset reports whether a reset token is outstanding for the account.
func (u *User) HasPendingReset() bool {
	return u.ResetTokenHash != nil && u.ResetTokenExpires != nil
}

// NormalizeEmail lowercases and trims an email address so uniqueness checks
// are case insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
