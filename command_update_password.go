package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type UpdatePasswordMessage struct {
	UserID          uuid.UUID `json:"-"`
	CurrentPassword string    `json:"current_password" doc:"Password the account holds right now"`
	Password        string    `json:"password" doc:"New password"`
	PasswordConfirm string    `json:"password_confirm" doc:"New password, again"`
	OnResponse      func(resp *UpdatePasswordResponse)
}

func (p UpdatePasswordMessage) Type() string { return "user.password_update" }

type UpdatePasswordResponse struct {
	User    *User
	Token   string
	Success bool
}

// UpdatePasswordHandler changes the password of an authenticated account. It
// re-verifies the current password so a hijacked session cannot silently lock
// the owner out.
type UpdatePasswordHandler struct {
	repo     RepositoryManager
	auther   Authenticator
	activity ActivitySink
	logger   Logger
}

func NewUpdatePasswordHandler(repo RepositoryManager, auther Authenticator) *UpdatePasswordHandler {
	return &UpdatePasswordHandler{
		repo:     repo,
		auther:   auther,
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

func (h *UpdatePasswordHandler) WithActivitySink(sink ActivitySink) *UpdatePasswordHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

func (h *UpdatePasswordHandler) WithLogger(logger Logger) *UpdatePasswordHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *UpdatePasswordHandler) Execute(ctx context.Context, event UpdatePasswordMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password update",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *UpdatePasswordHandler) execute(ctx context.Context, event UpdatePasswordMessage) error {
	user := &User{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if event.Password != event.PasswordConfirm {
		return goerrors.New("passwords do not match", goerrors.CategoryValidation).
			WithTextCode(TextCodePasswordMismatch)
	}

	var err error

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		user, err = h.repo.Users().GetActiveByIDTx(ctx, tx, event.UserID)
		if err != nil {
			if goerrors.IsNotFound(err) {
				return ErrIdentityNotFound
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve user for password update")
		}

		if err := ComparePasswordAndHash(event.CurrentPassword, user.PasswordHash); err != nil {
			return goerrors.New("your current password is wrong", goerrors.CategoryAuth).
				WithTextCode(TextCodeInvalidCreds).
				WithCode(goerrors.CodeUnauthorized)
		}

		user, err = h.repo.Users().ChangePasswordTx(ctx, tx, user.ID, event.Password)
		if err != nil {
			var richErr *goerrors.Error
			if goerrors.As(err, &richErr) && richErr.Category == goerrors.CategoryValidation {
				return richErr
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update user password in database")
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update password")
	}

	token := ""
	if h.auther != nil {
		if token, err = h.auther.IssueForUser(ctx, user); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to issue session token after password update")
		}
	}

	h.recordActivity(ctx, user)

	if event.OnResponse != nil {
		event.OnResponse(&UpdatePasswordResponse{
			User:    user,
			Token:   token,
			Success: true,
		})
	}

	return nil
}

func (h *UpdatePasswordHandler) recordActivity(ctx context.Context, user *User) {
	if user == nil {
		return
	}

	event := ActivityEvent{
		EventType: ActivityEventPasswordChanged,
		Actor: ActorRef{
			ID:   user.ID.String(),
			Type: "user",
		},
		UserID:     user.ID.String(),
		Metadata:   map[string]any{},
		OccurredAt: time.Now(),
	}

	if err := normalizeActivitySink(h.activity).Record(ctx, event); err != nil {
		h.logger.Warn("activity sink error during password update: %v", err)
	}
}
