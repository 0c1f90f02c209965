package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
	"github.com/google/uuid"

	"github.com/trailhead-run/go-trails-auth/middleware/sessionware"
)

// NewSessionGate builds the protected-route middleware: it validates the
// bearer token, resolves the live account, rejects sessions issued before the
// last password change, and makes the account available both through router
// locals and the request context.
func NewSessionGate(cfg Config, tokens TokenService, users UserStore, errorHandler router.ErrorHandler) router.MiddlewareFunc {
	return sessionware.New(sessionware.Config{
		TokenValidator: validatorAdapter{tokens},
		Resolver:       &accountResolver{users: users},
		ContextKey:     cfg.GetContextKey(),
		TokenLookup:    cfg.GetTokenLookup(),
		AuthScheme:     cfg.GetAuthScheme(),
		ErrorHandler:   sessionGateErrorHandler(errorHandler),
		ContextEnricher: func(ctx context.Context, account sessionware.Account) context.Context {
			if ga, ok := account.(gateAccount); ok {
				return WithContext(ctx, ga.user)
			}
			return ctx
		},
	})
}

// NewOptionalSessionGate resolves the account when a valid token is present
// and lets the request through anonymously otherwise.
func NewOptionalSessionGate(cfg Config, tokens TokenService, users UserStore) router.MiddlewareFunc {
	return sessionware.New(sessionware.Config{
		TokenValidator: validatorAdapter{tokens},
		Resolver:       &accountResolver{users: users},
		ContextKey:     cfg.GetContextKey(),
		TokenLookup:    cfg.GetTokenLookup(),
		AuthScheme:     cfg.GetAuthScheme(),
		Optional:       true,
		ContextEnricher: func(ctx context.Context, account sessionware.Account) context.Context {
			if ga, ok := account.(gateAccount); ok {
				return WithContext(ctx, ga.user)
			}
			return ctx
		},
	})
}

// RequireRoles gates a route to the given roles, it must be mounted after the
// session gate.
func RequireRoles(cfg Config, errorHandler router.ErrorHandler, roles ...UserRole) router.MiddlewareFunc {
	names := make([]string, 0, len(roles))
	for _, r := range roles {
		names = append(names, string(r))
	}

	return sessionware.RequireRolesWithConfig(sessionware.RoleConfig{
		ContextKey:   cfg.GetContextKey(),
		Roles:        names,
		ErrorHandler: roleGateErrorHandler(errorHandler),
	})
}

// UserFromRouterContext returns the account the session gate attached, if any.
func UserFromRouterContext(c router.Context, key string) (*User, bool) {
	ga, ok := c.Locals(key).(gateAccount)
	if !ok || ga.user == nil {
		return nil, false
	}
	return ga.user, true
}

type validatorAdapter struct {
	tokens TokenService
}

func (v validatorAdapter) Validate(tokenString string) (sessionware.AuthClaims, error) {
	claims, err := v.tokens.Validate(tokenString)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

type accountResolver struct {
	users UserStore
}

func (r *accountResolver) ResolveActive(ctx context.Context, id string) (sessionware.Account, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrTokenMalformed
	}

	user, err := r.users.GetActiveByID(ctx, uid)
	if err != nil {
		if goerrors.IsNotFound(err) {
			return nil, ErrIdentityNotFound
		}
		return nil, err
	}

	if user == nil {
		return nil, ErrIdentityNotFound
	}

	return gateAccount{user: user}, nil
}

type gateAccount struct {
	user *User
}

func (a gateAccount) ID() string {
	return a.user.ID.String()
}

func (a gateAccount) Role() string {
	return string(a.user.Role)
}

func (a gateAccount) PasswordChangedAt() (time.Time, bool) {
	if a.user.PasswordChangedAt == nil {
		return time.Time{}, false
	}
	return *a.user.PasswordChangedAt, true
}

var _ sessionware.Account = gateAccount{}

func sessionGateErrorHandler(next router.ErrorHandler) router.ErrorHandler {
	return func(c router.Context, err error) error {
		richErr := classifySessionError(err)
		if next != nil {
			return next(c, richErr)
		}
		return c.Status(router.StatusUnauthorized).SendString(richErr.Message)
	}
}

func roleGateErrorHandler(next router.ErrorHandler) router.ErrorHandler {
	return func(c router.Context, err error) error {
		var richErr *goerrors.Error
		switch {
		case goerrors.Is(err, sessionware.ErrNotAuthenticated):
			richErr = ErrNotLoggedIn
		default:
			richErr = ErrInsufficientRole
		}

		if next != nil {
			return next(c, richErr)
		}
		return c.Status(richErr.Code).SendString(richErr.Message)
	}
}

func classifySessionError(err error) *goerrors.Error {
	var richErr *goerrors.Error

	switch {
	case goerrors.Is(err, sessionware.ErrSessionMissingOrMalformed):
		return ErrNotLoggedIn
	case goerrors.Is(err, sessionware.ErrStaleSession):
		return ErrStaleToken
	case goerrors.Is(err, sessionware.ErrAccountGone):
		return ErrIdentityNotFound
	case goerrors.As(err, &richErr):
		return richErr
	case IsTokenExpiredError(err):
		return ErrTokenExpired
	case IsMalformedError(err):
		return ErrTokenMalformed
	default:
		return goerrors.Wrap(err, goerrors.CategoryAuth, "invalid authentication token").
			WithCode(goerrors.CodeUnauthorized)
	}
}
