package sessionware

import (
	"context"
	"errors"
	"time"

	"github.com/goliatone/go-router"
)

var (
	defaultTokenLookup           = "header:" + router.HeaderAuthorization
	ErrSessionMissingOrMalformed = errors.New("missing or malformed session token")
	ErrStaleSession              = errors.New("password was changed after this token was issued")
	ErrAccountGone               = errors.New("the account belonging to this token no longer exists")
)

// TokenValidator interface for validating tokens without import cycles
// This mirrors the TokenService.Validate method from the auth package
type TokenValidator interface {
	Validate(tokenString string) (AuthClaims, error)
}

// AuthClaims interface for structured claims without import cycles
// This mirrors the AuthClaims interface from the auth package
type AuthClaims interface {
	Subject() string
	UserID() string
	Role() string
	IssuedAt() time.Time
	Expires() time.Time
}

// Account is the resolved subject of a validated token.
type Account interface {
	ID() string
	Role() string
	// PasswordChangedAt reports when the account last changed its password,
	// false when it never has.
	PasswordChangedAt() (time.Time, bool)
}

// AccountResolver loads the live account behind a token subject. It must not
// return deactivated or deleted accounts.
type AccountResolver interface {
	ResolveActive(ctx context.Context, id string) (Account, error)
}

type Config struct {
	Filter         func(router.Context) bool
	SuccessHandler router.HandlerFunc
	ErrorHandler   router.ErrorHandler
	TokenValidator TokenValidator
	Resolver       AccountResolver
	ContextKey     string
	TokenLookup    string
	AuthScheme     string

	// Optional lets unauthenticated requests through as anonymous instead of
	// failing. Any token failure downgrades to anonymous as well.
	Optional bool

	// ContextEnricher is an optional function to propagate the resolved
	// account to the standard Go context.
	ContextEnricher func(c context.Context, account Account) context.Context
}

// New builds the session gate. Every request passes through four stages:
// token extraction, signature validation, live account resolution, and a
// password freshness check against the token's issue time.
func New(config ...Config) router.MiddlewareFunc {
	return func(hf router.HandlerFunc) router.HandlerFunc {
		cfg := GetDefaultConfig(config...)
		return func(ctx router.Context) error {
			if cfg.Filter != nil && cfg.Filter(ctx) {
				return ctx.Next()
			}

			raw, err := ExtractRawTokenFromContext(ctx, cfg.getExtractors())
			if err != nil {
				return cfg.fail(ctx, err)
			}

			claims, err := cfg.TokenValidator.Validate(raw)
			if err != nil {
				return cfg.fail(ctx, err)
			}

			account, err := cfg.Resolver.ResolveActive(ctx.Context(), claims.UserID())
			if err != nil {
				return cfg.fail(ctx, err)
			}

			if account == nil {
				return cfg.fail(ctx, ErrAccountGone)
			}

			if isStale(claims, account) {
				return cfg.fail(ctx, ErrStaleSession)
			}

			ctx.Locals(cfg.ContextKey, account)

			if cfg.ContextEnricher != nil {
				stdCtx := ctx.Context()
				ctx.SetContext(cfg.ContextEnricher(stdCtx, account))
			}

			return cfg.SuccessHandler(ctx)
		}
	}
}

// isStale compares at second granularity, matching how issue times survive a
// round trip through the token's numeric date claims.
func isStale(claims AuthClaims, account Account) bool {
	changedAt, ok := account.PasswordChangedAt()
	if !ok {
		return false
	}

	issued := claims.IssuedAt().Truncate(time.Second)
	changed := changedAt.Truncate(time.Second)

	return issued.Before(changed)
}

func (cfg *Config) fail(ctx router.Context, err error) error {
	if cfg.Optional {
		return ctx.Next()
	}
	return cfg.ErrorHandler(ctx, err)
}

func GetDefaultConfig(config ...Config) (cfg Config) {
	if len(config) > 0 {
		cfg = config[0]
	}

	if cfg.SuccessHandler == nil {
		cfg.SuccessHandler = func(ctx router.Context) error {
			return ctx.Next()
		}
	}

	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = func(c router.Context, err error) error {
			if err.Error() == ErrSessionMissingOrMalformed.Error() {
				return c.Status(router.StatusUnauthorized).SendString(ErrSessionMissingOrMalformed.Error())
			}
			return c.Status(router.StatusUnauthorized).SendString("Invalid or expired session")
		}
	}

	if cfg.TokenValidator == nil {
		panic("AUTH: session middleware configuration: TokenValidator is required.")
	}

	if cfg.Resolver == nil {
		panic("AUTH: session middleware configuration: Resolver is required.")
	}

	if cfg.ContextKey == "" {
		cfg.ContextKey = "user"
	}

	if cfg.TokenLookup == "" {
		cfg.TokenLookup = defaultTokenLookup
	}

	if cfg.AuthScheme == "" {
		cfg.AuthScheme = "Bearer"
	}

	return cfg
}

func (cfg *Config) getExtractors() []TokenExtractor {
	return GetExtractors(cfg.TokenLookup, cfg.AuthScheme)
}
