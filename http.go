package auth

import (
	"net/http"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
)

// RouteAuthenticator wires the Authenticator into HTTP handlers: it mints the
// session cookie on login and clears it on logout.
type RouteAuthenticator struct {
	auth           Authenticator
	cfg            Config
	cookieDuration time.Duration
	Logger         Logger
	ErrorHandler   func(c router.Context, err error) error
}

func NewHTTPAuthenticator(auther Authenticator, cfg Config) (*RouteAuthenticator, error) {
	cookieDuration := 24 * time.Hour
	if cfg.GetTokenExpiration() > 0 {
		cookieDuration = time.Duration(cfg.GetTokenExpiration()) * time.Hour
	}

	a := &RouteAuthenticator{
		cfg:            cfg,
		auth:           auther,
		Logger:         defLogger{},
		cookieDuration: cookieDuration,
	}

	a.ErrorHandler = a.APIErrorHandler

	return a, nil
}

func (a RouteAuthenticator) GetCookieDuration() time.Duration {
	return a.cookieDuration
}

// Login verifies the credentials, sets the session cookie, and returns the
// token so the handler can also include it in the response body.
func (a *RouteAuthenticator) Login(ctx router.Context, payload LoginPayload) (string, error) {
	token, err := a.auth.Login(ctx.Context(), payload.GetEmail(), payload.GetPassword())
	if err != nil {
		a.Logger.Error("Login error: %s", err)
		return "", err
	}

	a.SetSessionCookie(ctx, token)
	return token, nil
}

// IssueSession mints a token for an already verified account and sets the
// cookie, used after signup and after a password change or reset.
func (a *RouteAuthenticator) IssueSession(ctx router.Context, user *User) (string, error) {
	token, err := a.auth.IssueForUser(ctx.Context(), user)
	if err != nil {
		a.Logger.Error("IssueSession error: %s", err)
		return "", err
	}

	a.SetSessionCookie(ctx, token)
	return token, nil
}

func (a *RouteAuthenticator) Logout(ctx router.Context) {
	a.cookieDel(ctx, a.cfg.GetContextKey())
}

func (a *RouteAuthenticator) SetSessionCookie(c router.Context, val string) {
	c.Cookie(&router.Cookie{
		Name:     a.cfg.GetContextKey(),
		Value:    val,
		Expires:  time.Now().Add(a.cookieDuration),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	})
}

func (a *RouteAuthenticator) cookieDel(c router.Context, name string) {
	c.Cookie(&router.Cookie{
		Name:     name,
		Value:    "",
		Expires:  time.Now().Add(-time.Hour * (24 * 365)),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	})
}

// APIErrorHandler renders any error as the API's JSON error envelope. Client
// mistakes report status "fail", server faults report status "error", and
// server fault messages are withheld unless debug mode is on.
func (a *RouteAuthenticator) APIErrorHandler(c router.Context, err error) error {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		richErr = errors.Wrap(err, errors.CategoryInternal, "An unexpected server error occurred").
			WithCode(errors.CodeInternal)
	}

	status := statusFromError(richErr)

	a.Logger.Error(
		"request error: %s category=%s text_code=%s status=%d details=%s",
		richErr.Message,
		richErr.Category,
		richErr.TextCode,
		status,
		print.MaybePrettyJSON(richErr.Metadata),
	)

	body := map[string]any{
		"status":  errorEnvelopeStatus(status),
		"message": richErr.Message,
	}

	if status >= http.StatusInternalServerError && !a.cfg.IsDebug() {
		body["message"] = "Something went very wrong!"
	}

	if a.cfg.IsDebug() {
		body["category"] = string(richErr.Category)
		if richErr.TextCode != "" {
			body["code"] = richErr.TextCode
		}
		if len(richErr.Metadata) > 0 {
			body["details"] = richErr.Metadata
		}
	}

	return c.JSON(status, body)
}

func statusFromError(richErr *errors.Error) int {
	if richErr.Code >= http.StatusBadRequest {
		return richErr.Code
	}

	switch richErr.Category {
	case errors.CategoryAuth:
		return http.StatusUnauthorized
	case errors.CategoryAuthz:
		return http.StatusForbidden
	case errors.CategoryNotFound:
		return http.StatusNotFound
	case errors.CategoryConflict:
		return http.StatusConflict
	case errors.CategoryValidation, errors.CategoryBadInput:
		return http.StatusBadRequest
	case errors.CategoryRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func errorEnvelopeStatus(status int) string {
	if status >= http.StatusInternalServerError {
		return "error"
	}
	return "fail"
}
