package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// DefaultResetTokenExpiration bounds how long a reset token stays redeemable.
var DefaultResetTokenExpiration = "10m"

type InitializePasswordResetMessage struct {
	Email string `json:"email" example:"pepe.rone@example.com" doc:"Account email."`
	// ResetBaseURL is the public endpoint the emailed link points at, the
	// plaintext token is appended as the last path segment.
	ResetBaseURL string `json:"-"`
	OnResponse   func(resp *InitializePasswordResetResponse)
}

func (p InitializePasswordResetMessage) Type() string { return "user.password_reset" }

type InitializePasswordResetResponse struct {
	Email   string
	Expires time.Time
	Success bool
}

type InitializePasswordResetHandler struct {
	repo       RepositoryManager
	mailer     Mailer
	activity   ActivitySink
	logger     Logger
	expiration string
}

func NewInitializePasswordResetHandler(repo RepositoryManager, mailer Mailer) *InitializePasswordResetHandler {
	if mailer == nil {
		mailer = NewLogMailer()
	}

	return &InitializePasswordResetHandler{
		repo:       repo,
		mailer:     mailer,
		activity:   noopActivitySink{},
		logger:     defLogger{},
		expiration: DefaultResetTokenExpiration,
	}
}

// WithExpiration sets the token validity window, e.g. "10m".
func (h *InitializePasswordResetHandler) WithExpiration(pattern string) *InitializePasswordResetHandler {
	if pattern != "" {
		h.expiration = pattern
	}
	return h
}

// WithActivitySink sets the sink used to emit password reset events.
func (h *InitializePasswordResetHandler) WithActivitySink(sink ActivitySink) *InitializePasswordResetHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

func (h *InitializePasswordResetHandler) WithLogger(logger Logger) *InitializePasswordResetHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *InitializePasswordResetHandler) Execute(ctx context.Context, event InitializePasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset initialization",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *InitializePasswordResetHandler) execute(ctx context.Context, event InitializePasswordResetMessage) error {
	user := &User{}
	resp := &InitializePasswordResetResponse{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	expires, err := ResetTokenDeadline(h.expiration)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "invalid reset token expiration pattern").
			WithMetadata(map[string]any{"pattern": h.expiration})
	}

	plaintext, tokenHash, err := GenerateResetToken()
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate reset token")
	}

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		user, err = h.repo.Users().GetActiveByEmailTx(ctx, tx, event.Email)
		if err != nil {
			if repository.IsRecordNotFound(err) {
				return goerrors.New("there is no user with that email address", goerrors.CategoryNotFound).
					WithCode(goerrors.CodeNotFound)
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve user for password reset")
		}

		if err := h.repo.Users().SetResetTokenTx(ctx, tx, user.ID, tokenHash, expires); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to store password reset token")
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to initialize password reset")
	}

	resetURL := buildResetURL(event.ResetBaseURL, plaintext)

	// delivery runs outside the transaction: a stored token whose plaintext
	// never reached the account holder is useless, so roll it back on failure
	if err := h.mailer.SendPasswordReset(ctx, user.Email, resetURL); err != nil {
		h.logger.Error("password reset email delivery failed: %v", err)

		if clearErr := h.repo.Users().ClearResetToken(ctx, user.ID); clearErr != nil {
			h.logger.Error("failed to roll back reset token after delivery failure: %v", clearErr)
		}

		return goerrors.Wrap(err, goerrors.CategoryInternal, "there was an error sending the email, try again later").
			WithTextCode(TextCodeDeliveryFailed)
	}

	h.recordActivity(ctx, user)

	resp.Email = user.Email
	resp.Expires = expires
	resp.Success = true

	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}

func (h *InitializePasswordResetHandler) recordActivity(ctx context.Context, user *User) {
	if user == nil {
		return
	}

	event := ActivityEvent{
		EventType: ActivityEventPasswordResetRequest,
		Actor: ActorRef{
			ID:   user.ID.String(),
			Type: "user",
		},
		UserID:     user.ID.String(),
		Metadata:   map[string]any{},
		OccurredAt: time.Now(),
	}

	if err := normalizeActivitySink(h.activity).Record(ctx, event); err != nil {
		h.logger.Warn("activity sink error during password reset request: %v", err)
	}
}

func buildResetURL(base, token string) string {
	if base == "" {
		return fmt.Sprintf("/reset-password/%s", token)
	}
	return fmt.Sprintf("%s/%s", strings.TrimRight(base, "/"), token)
}
