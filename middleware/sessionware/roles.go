package sessionware

import (
	"errors"

	"github.com/goliatone/go-router"
)

var (
	ErrNotAuthenticated = errors.New("you are not logged in, please log in to get access")
	ErrForbidden        = errors.New("you do not have permission to perform this action")
)

// RoleConfig configures the role gate.
type RoleConfig struct {
	// ContextKey is where the session gate stored the resolved account.
	ContextKey   string
	Roles        []string
	ErrorHandler router.ErrorHandler
}

// RequireRoles gates a route to accounts holding one of the allowed roles.
// It must run after the session gate, an anonymous request is always
// rejected. An empty allow set rejects everyone.
func RequireRoles(roles ...string) router.MiddlewareFunc {
	return RequireRolesWithConfig(RoleConfig{Roles: roles})
}

func RequireRolesWithConfig(cfg RoleConfig) router.MiddlewareFunc {
	if cfg.ContextKey == "" {
		cfg.ContextKey = "user"
	}

	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = func(c router.Context, err error) error {
			if errors.Is(err, ErrNotAuthenticated) {
				return c.Status(router.StatusUnauthorized).SendString(err.Error())
			}
			return c.Status(router.StatusForbidden).SendString(err.Error())
		}
	}

	return func(hf router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			account, ok := ctx.Locals(cfg.ContextKey).(Account)
			if !ok || account == nil {
				return cfg.ErrorHandler(ctx, ErrNotAuthenticated)
			}

			if !roleAllowed(account.Role(), cfg.Roles) {
				return cfg.ErrorHandler(ctx, ErrForbidden)
			}

			return ctx.Next()
		}
	}
}

func roleAllowed(role string, allowed []string) bool {
	for _, r := range allowed {
		if r == role {
			return true
		}
	}
	return false
}
