package auth_test

import (
	"context"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	auth "github.com/trailhead-run/go-trails-auth"
)

func captureGateError(captured **goerrors.Error) router.ErrorHandler {
	return func(c router.Context, err error) error {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			*captured = richErr
		}
		return err
	}
}

func gateTestUser(id uuid.UUID, role auth.UserRole) *auth.User {
	return &auth.User{
		ID:           id,
		Name:         "Jonas Schmedtmann",
		Email:        "jonas@example.com",
		PasswordHash: "$2a$12$ignored",
		Role:         role,
		Active:       true,
	}
}

func runSessionGate(mw router.MiddlewareFunc, ctx router.Context) error {
	handler := mw(func(c router.Context) error {
		return c.Next()
	})
	return handler(ctx)
}

func TestSessionGateMiddleware(t *testing.T) {
	cfg := testAuthConfig()
	tokens := newTestTokenService(cfg.SigningKey, 24)

	mintToken := func(t *testing.T, user *auth.User) string {
		t.Helper()
		token, err := tokens.Generate(auth.IdentityFromUser(user))
		require.NoError(t, err)
		return token
	}

	t.Run("valid session attaches the account to the request", func(t *testing.T) {
		userID := uuid.New()
		user := gateTestUser(userID, auth.RoleGuide)
		token := mintToken(t, user)

		users := &MockUserStore{}
		users.On("GetActiveByID", mock.Anything, userID).Return(user, nil)

		var enriched context.Context
		ctx := &MockContext{}
		ctx.On("GetString", router.HeaderAuthorization, "").Return("Bearer " + token)
		ctx.On("Context").Return(context.Background())
		ctx.On("Locals", cfg.GetContextKey(), mock.Anything).Return(nil)
		ctx.On("SetContext", mock.Anything).Run(func(args mock.Arguments) {
			enriched = args.Get(0).(context.Context)
		}).Return()

		var gotErr *goerrors.Error
		gate := auth.NewSessionGate(cfg, tokens, users, captureGateError(&gotErr))
		err := runSessionGate(gate, ctx)

		require.NoError(t, err)
		assert.True(t, ctx.NextCalled)

		require.NotNil(t, enriched)
		fromCtx, ok := auth.FromContext(enriched)
		require.True(t, ok)
		assert.Equal(t, userID, fromCtx.ID)
	})

	t.Run("missing token maps to the not logged in error", func(t *testing.T) {
		users := &MockUserStore{}

		ctx := &MockContext{}
		ctx.On("GetString", router.HeaderAuthorization, "").Return("")
		ctx.On("Cookies", "jwt").Return("")

		var gotErr *goerrors.Error
		gate := auth.NewSessionGate(cfg, tokens, users, captureGateError(&gotErr))
		err := runSessionGate(gate, ctx)

		require.Error(t, err)
		require.NotNil(t, gotErr)
		assert.Equal(t, auth.ErrNotLoggedIn.Message, gotErr.Message)
		assert.Equal(t, goerrors.CodeUnauthorized, gotErr.Code)
	})

	t.Run("expired token maps to the expired session error", func(t *testing.T) {
		userID := uuid.New()
		user := gateTestUser(userID, auth.RoleUser)
		expired := newTestTokenService(cfg.SigningKey, -1)
		token, err := expired.Generate(auth.IdentityFromUser(user))
		require.NoError(t, err)

		users := &MockUserStore{}

		ctx := &MockContext{}
		ctx.On("GetString", router.HeaderAuthorization, "").Return("Bearer " + token)

		var gotErr *goerrors.Error
		gate := auth.NewSessionGate(cfg, tokens, users, captureGateError(&gotErr))
		require.Error(t, runSessionGate(gate, ctx))

		require.NotNil(t, gotErr)
		assert.Equal(t, auth.ErrTokenExpired.Message, gotErr.Message)
	})

	t.Run("token issued before a password change is rejected", func(t *testing.T) {
		userID := uuid.New()
		user := gateTestUser(userID, auth.RoleUser)
		token := mintToken(t, user)

		changed := time.Now().Add(time.Minute)
		user.PasswordChangedAt = &changed

		users := &MockUserStore{}
		users.On("GetActiveByID", mock.Anything, userID).Return(user, nil)

		ctx := &MockContext{}
		ctx.On("GetString", router.HeaderAuthorization, "").Return("Bearer " + token)
		ctx.On("Context").Return(context.Background())

		var gotErr *goerrors.Error
		gate := auth.NewSessionGate(cfg, tokens, users, captureGateError(&gotErr))
		require.Error(t, runSessionGate(gate, ctx))

		require.NotNil(t, gotErr)
		assert.Equal(t, auth.ErrStaleToken.Message, gotErr.Message)
	})

	t.Run("deleted account maps to the identity gone error", func(t *testing.T) {
		userID := uuid.New()
		user := gateTestUser(userID, auth.RoleUser)
		token := mintToken(t, user)

		users := &MockUserStore{}
		users.On("GetActiveByID", mock.Anything, userID).Return(nil, notFoundErr())

		ctx := &MockContext{}
		ctx.On("GetString", router.HeaderAuthorization, "").Return("Bearer " + token)
		ctx.On("Context").Return(context.Background())

		var gotErr *goerrors.Error
		gate := auth.NewSessionGate(cfg, tokens, users, captureGateError(&gotErr))
		require.Error(t, runSessionGate(gate, ctx))

		require.NotNil(t, gotErr)
		assert.Equal(t, auth.ErrIdentityNotFound.Message, gotErr.Message)
	})

	t.Run("optional gate lets anonymous requests through", func(t *testing.T) {
		users := &MockUserStore{}

		ctx := &MockContext{}
		ctx.On("GetString", router.HeaderAuthorization, "").Return("")
		ctx.On("Cookies", "jwt").Return("")

		gate := auth.NewOptionalSessionGate(cfg, tokens, users)
		err := runSessionGate(gate, ctx)

		require.NoError(t, err)
		assert.True(t, ctx.NextCalled)
	})
}

func TestRequireRolesMiddleware(t *testing.T) {
	cfg := testAuthConfig()
	tokens := newTestTokenService(cfg.SigningKey, 24)

	// Attach the account the way the session gate would, then run the role
	// gate behind it.
	authedContext := func(t *testing.T, role auth.UserRole) *MockContext {
		t.Helper()
		userID := uuid.New()
		user := gateTestUser(userID, role)
		token, err := tokens.Generate(auth.IdentityFromUser(user))
		require.NoError(t, err)

		users := &MockUserStore{}
		users.On("GetActiveByID", mock.Anything, userID).Return(user, nil)

		var stored any
		ctx := &MockContext{}
		ctx.On("GetString", router.HeaderAuthorization, "").Return("Bearer " + token)
		ctx.On("Context").Return(context.Background())
		ctx.On("Locals", cfg.GetContextKey(), mock.Anything).Run(func(args mock.Arguments) {
			stored = args.Get(1)
		}).Return(nil)
		ctx.On("SetContext", mock.Anything).Return()

		gate := auth.NewSessionGate(cfg, tokens, users, nil)
		require.NoError(t, runSessionGate(gate, ctx))

		// a fresh context for the role gate, holding what the session gate stored
		roleCtx := &MockContext{}
		roleCtx.On("Locals", cfg.GetContextKey()).Return(stored)
		return roleCtx
	}

	t.Run("allowed role passes", func(t *testing.T) {
		ctx := authedContext(t, auth.RoleAdmin)

		var gotErr *goerrors.Error
		mw := auth.RequireRoles(cfg, captureGateError(&gotErr), auth.RoleAdmin, auth.RoleLeadGuide)
		err := runSessionGate(mw, ctx)

		require.NoError(t, err)
		assert.True(t, ctx.NextCalled)
	})

	t.Run("disallowed role is forbidden", func(t *testing.T) {
		ctx := authedContext(t, auth.RoleUser)

		var gotErr *goerrors.Error
		mw := auth.RequireRoles(cfg, captureGateError(&gotErr), auth.RoleAdmin, auth.RoleLeadGuide)
		require.Error(t, runSessionGate(mw, ctx))

		require.NotNil(t, gotErr)
		assert.Equal(t, auth.ErrInsufficientRole.Message, gotErr.Message)
		assert.Equal(t, goerrors.CodeForbidden, gotErr.Code)
	})

	t.Run("anonymous request is rejected", func(t *testing.T) {
		ctx := &MockContext{}
		ctx.On("Locals", cfg.GetContextKey()).Return(nil)

		var gotErr *goerrors.Error
		mw := auth.RequireRoles(cfg, captureGateError(&gotErr), auth.RoleAdmin)
		require.Error(t, runSessionGate(mw, ctx))

		require.NotNil(t, gotErr)
		assert.Equal(t, auth.ErrNotLoggedIn.Message, gotErr.Message)
	})
}

func TestUserFromRouterContext(t *testing.T) {
	cfg := testAuthConfig()
	tokens := newTestTokenService(cfg.SigningKey, 24)

	t.Run("returns the account stored by the session gate", func(t *testing.T) {
		userID := uuid.New()
		user := gateTestUser(userID, auth.RoleUser)
		token, err := tokens.Generate(auth.IdentityFromUser(user))
		require.NoError(t, err)

		users := &MockUserStore{}
		users.On("GetActiveByID", mock.Anything, userID).Return(user, nil)

		var stored any
		ctx := &MockContext{}
		ctx.On("GetString", router.HeaderAuthorization, "").Return("Bearer " + token)
		ctx.On("Context").Return(context.Background())
		ctx.On("Locals", cfg.GetContextKey(), mock.Anything).Run(func(args mock.Arguments) {
			stored = args.Get(1)
		}).Return(nil)
		ctx.On("SetContext", mock.Anything).Return()

		gate := auth.NewSessionGate(cfg, tokens, users, nil)
		require.NoError(t, runSessionGate(gate, ctx))

		readCtx := &MockContext{}
		readCtx.On("Locals", cfg.GetContextKey()).Return(stored)

		got, ok := auth.UserFromRouterContext(readCtx, cfg.GetContextKey())
		require.True(t, ok)
		assert.Equal(t, userID, got.ID)
	})

	t.Run("reports absence when nothing was attached", func(t *testing.T) {
		ctx := &MockContext{}
		ctx.On("Locals", cfg.GetContextKey()).Return(nil)

		_, ok := auth.UserFromRouterContext(ctx, cfg.GetContextKey())
		assert.False(t, ok)
	})
}
