package auth

import (
	"strings"

	"github.com/goliatone/go-errors"
)

// Text codes surfaced to API clients alongside the error category.
const (
	TextCodeInvalidCreds     = "INVALID_CREDENTIALS"
	TextCodeTokenExpired     = "TOKEN_EXPIRED"
	TextCodeTokenMalformed   = "TOKEN_MALFORMED"
	TextCodeNotLoggedIn      = "NOT_LOGGED_IN"
	TextCodeStaleToken       = "STALE_TOKEN"
	TextCodeEmptyPassword    = "EMPTY_PASSWORD"
	TextCodeForbiddenRole    = "FORBIDDEN_ROLE"
	TextCodeResetInvalid     = "RESET_TOKEN_INVALID"
	TextCodeDeliveryFailed   = "EMAIL_DELIVERY_FAILED"
	TextCodePasswordMismatch = "PASSWORD_MISMATCH"
)

// ErrMismatchedHashAndPassword covers both an unknown email and a wrong
// password so the response never reveals whether the account exists.
var ErrMismatchedHashAndPassword = errors.New("the credentials provided are invalid", errors.CategoryAuth).
	WithTextCode(TextCodeInvalidCreds).
	WithCode(errors.CodeUnauthorized)

// ErrNoEmptyString rejects empty passwords before they reach the hasher
var ErrNoEmptyString = errors.New("password must not be empty", errors.CategoryValidation).
	WithTextCode(TextCodeEmptyPassword)

// ErrTokenExpired is returned for tokens past their validity window
var ErrTokenExpired = errors.New("your token has expired, please log in again", errors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(errors.CodeUnauthorized)

// ErrTokenMalformed is returned for tokens that fail signature or structure checks
var ErrTokenMalformed = errors.New("invalid token, please log in again", errors.CategoryAuth).
	WithTextCode(TextCodeTokenMalformed).
	WithCode(errors.CodeUnauthorized)

// ErrNotLoggedIn is returned when a request carries no token at all
var ErrNotLoggedIn = errors.New("you are not logged in, please log in to get access", errors.CategoryAuth).
	WithTextCode(TextCodeNotLoggedIn).
	WithCode(errors.CodeUnauthorized)

// ErrStaleToken is returned for tokens issued before the subject's last
// password change. The signature is still valid; the policy is not.
var ErrStaleToken = errors.New("password was recently changed, please log in again", errors.CategoryAuth).
	WithTextCode(TextCodeStaleToken).
	WithCode(errors.CodeUnauthorized)

// ErrIdentityNotFound is returned when the token subject no longer resolves
// to an active account.
var ErrIdentityNotFound = errors.New("the account belonging to this token no longer exists", errors.CategoryAuth).
	WithCode(errors.CodeUnauthorized)

// ErrResetTokenInvalid is the uniform failure for reset redemption: unknown
// token, expired token, and already-used token all look identical.
var ErrResetTokenInvalid = errors.New("reset token is invalid or has expired", errors.CategoryAuth).
	WithTextCode(TextCodeResetInvalid).
	WithCode(errors.CodeUnauthorized)

// ErrInsufficientRole is returned when an authenticated account lacks a
// required role.
var ErrInsufficientRole = errors.New("you do not have permission to perform this action", errors.CategoryAuthz).
	WithTextCode(TextCodeForbiddenRole).
	WithCode(errors.CodeForbidden)

// IsTokenExpiredError will check for expired tokens
func IsTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}
	var richErr *errors.Error
	if errors.As(err, &richErr) && richErr.TextCode == TextCodeTokenExpired {
		return true
	}
	return strings.Contains(err.Error(), "token is expired")
}

// IsMalformedError will check for error message
func IsMalformedError(err error) bool {
	if err == nil {
		return false
	}
	var richErr *errors.Error
	if errors.As(err, &richErr) && richErr.TextCode == TextCodeTokenMalformed {
		return true
	}
	return strings.Contains(err.Error(), "token is malformed") ||
		strings.Contains(err.Error(), "missing or malformed JWT")
}
