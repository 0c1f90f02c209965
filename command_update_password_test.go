package auth_test

import (
	"context"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	auth "github.com/trailhead-run/go-trails-auth"
)

func TestUpdatePasswordHandler(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()

	currentPassword := "old password 123"
	hash, err := auth.HashPassword(currentPassword)
	require.NoError(t, err)

	user := &auth.User{
		ID:           userID,
		Email:        "pepe.rone@example.com",
		Role:         auth.RoleUser,
		PasswordHash: hash,
		Active:       true,
	}

	t.Run("changes the password and issues a fresh session", func(t *testing.T) {
		users := &MockUsers{}
		repo := &runTxManager{users: users}

		users.On("GetActiveByIDTx", mock.Anything, mock.Anything, userID).
			Return(user, nil).Once()
		users.On("ChangePasswordTx", mock.Anything, mock.Anything, userID, "new password 456").
			Return(user, nil).Once()

		auther := &MockAuthenticator{}
		auther.On("IssueForUser", mock.Anything, user).
			Return("fresh-session-token", nil).Once()

		sink := &MockActivitySink{}
		sink.On("Record", mock.Anything, mock.MatchedBy(func(evt auth.ActivityEvent) bool {
			return evt.EventType == auth.ActivityEventPasswordChanged &&
				evt.UserID == userID.String()
		})).Return(nil).Once()

		var res *auth.UpdatePasswordResponse

		handler := auth.NewUpdatePasswordHandler(repo, auther).
			WithActivitySink(sink).
			WithLogger(testLogger{})

		err := handler.Execute(ctx, auth.UpdatePasswordMessage{
			UserID:          userID,
			CurrentPassword: currentPassword,
			Password:        "new password 456",
			PasswordConfirm: "new password 456",
			OnResponse: func(resp *auth.UpdatePasswordResponse) {
				res = resp
			},
		})

		require.NoError(t, err)
		require.NotNil(t, res)
		assert.Equal(t, "fresh-session-token", res.Token)

		users.AssertExpectations(t)
		auther.AssertExpectations(t)
		sink.AssertExpectations(t)
	})

	t.Run("wrong current password is rejected", func(t *testing.T) {
		users := &MockUsers{}
		repo := &runTxManager{users: users}

		users.On("GetActiveByIDTx", mock.Anything, mock.Anything, userID).
			Return(user, nil).Once()

		handler := auth.NewUpdatePasswordHandler(repo, &MockAuthenticator{}).
			WithLogger(testLogger{})

		err := handler.Execute(ctx, auth.UpdatePasswordMessage{
			UserID:          userID,
			CurrentPassword: "not my password",
			Password:        "new password 456",
			PasswordConfirm: "new password 456",
		})

		require.Error(t, err)

		var richErr *goerrors.Error
		require.True(t, goerrors.As(err, &richErr))
		assert.Equal(t, goerrors.CategoryAuth, richErr.Category)
		assert.Equal(t, auth.TextCodeInvalidCreds, richErr.TextCode)

		users.AssertNotCalled(t, "ChangePasswordTx", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("confirmation mismatch stops before the store", func(t *testing.T) {
		users := &MockUsers{}
		repo := &runTxManager{users: users}

		handler := auth.NewUpdatePasswordHandler(repo, &MockAuthenticator{}).
			WithLogger(testLogger{})

		err := handler.Execute(ctx, auth.UpdatePasswordMessage{
			UserID:          userID,
			CurrentPassword: currentPassword,
			Password:        "new password 456",
			PasswordConfirm: "something else",
		})

		require.Error(t, err)
		users.AssertNotCalled(t, "GetActiveByIDTx", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("missing account", func(t *testing.T) {
		users := &MockUsers{}
		repo := &runTxManager{users: users}

		users.On("GetActiveByIDTx", mock.Anything, mock.Anything, userID).
			Return(nil, notFoundErr()).Once()

		handler := auth.NewUpdatePasswordHandler(repo, &MockAuthenticator{}).
			WithLogger(testLogger{})

		err := handler.Execute(ctx, auth.UpdatePasswordMessage{
			UserID:          userID,
			CurrentPassword: currentPassword,
			Password:        "new password 456",
			PasswordConfirm: "new password 456",
		})

		assert.ErrorIs(t, err, auth.ErrIdentityNotFound)
	})
}
