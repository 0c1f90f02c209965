package auth

import (
	"errors"
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	"github.com/nyaruka/phonenumbers"
)

// LoginPayload is what the route authenticator needs from a login request
type LoginPayload interface {
	GetEmail() string
	GetPassword() string
}

// HTTPAuthenticator is the route-facing slice of the authenticator
type HTTPAuthenticator interface {
	Login(ctx router.Context, payload LoginPayload) (string, error)
	IssueSession(ctx router.Context, user *User) (string, error)
	Logout(ctx router.Context)
}

// RegisterAuthRoutes mounts the account endpoints on the given router.
func RegisterAuthRoutes[T any](app router.Router[T], opts ...AuthControllerOption) {
	controller := NewAuthController(opts...)

	app.Post(controller.Routes.Signup, controller.Signup).
		SetName("auth.signup")

	app.Post(controller.Routes.Login, controller.Login).
		SetName("auth.login")

	app.Get(controller.Routes.Logout, controller.Logout).
		SetName("auth.logout")

	app.Post(controller.Routes.ForgotPassword, controller.ForgotPassword).
		SetName("auth.forgot-password")

	app.Patch(fmt.Sprintf("%s/:token", controller.Routes.ResetPassword), controller.ResetPassword).
		SetName("auth.reset-password")

	app.Patch(controller.Routes.UpdatePassword, controller.UpdatePassword, controller.Protected...).
		SetName("auth.update-password")
}

type AuthControllerRoutes struct {
	Signup         string
	Login          string
	Logout         string
	ForgotPassword string
	ResetPassword  string
	UpdatePassword string
}

type AuthController struct {
	Debug  bool
	Logger Logger
	Repo   RepositoryManager
	Mailer Mailer
	Routes *AuthControllerRoutes
	Auther HTTPAuthenticator
	Auth   Authenticator

	// BaseURL is the public origin used in emailed links, e.g.
	// "https://trails.example.com". Derived from the request when empty.
	BaseURL string

	Protected    []router.MiddlewareFunc
	ErrorHandler func(c router.Context, err error) error
}

type AuthControllerOption func(*AuthController) *AuthController

func NewAuthController(opts ...AuthControllerOption) *AuthController {
	c := &AuthController{
		Logger: defLogger{},
		Routes: &AuthControllerRoutes{
			Signup:         "/signup",
			Login:          "/login",
			Logout:         "/logout",
			ForgotPassword: "/forgot-password",
			ResetPassword:  "/reset-password",
			UpdatePassword: "/update-password",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Repo == nil {
		panic("Missing RepositoryManager in auth controller...")
	}

	if c.Auther == nil {
		panic("Missing HTTPAuthenticator in auth controller...")
	}

	if c.Mailer == nil {
		c.Mailer = NewLogMailer()
	}

	if c.ErrorHandler == nil {
		if ra, ok := c.Auther.(*RouteAuthenticator); ok {
			c.ErrorHandler = ra.APIErrorHandler
		} else {
			c.ErrorHandler = func(ctx router.Context, err error) error {
				return ctx.JSON(router.StatusInternalServerError, map[string]any{
					"status":  "error",
					"message": err.Error(),
				})
			}
		}
	}

	return c
}

func WithControllerRepo(repo RepositoryManager) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Repo = repo
		return c
	}
}

func WithControllerAuther(auther HTTPAuthenticator) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Auther = auther
		return c
	}
}

func WithControllerAuthenticator(auth Authenticator) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Auth = auth
		return c
	}
}

func WithControllerMailer(mailer Mailer) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Mailer = mailer
		return c
	}
}

func WithControllerLogger(logger Logger) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		if logger != nil {
			c.Logger = logger
		}
		return c
	}
}

func WithControllerBaseURL(url string) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.BaseURL = url
		return c
	}
}

// WithControllerProtected sets the middleware chain mounted in front of the
// session-bound routes, normally the session gate from NewSessionGate.
func WithControllerProtected(mw ...router.MiddlewareFunc) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Protected = mw
		return c
	}
}

func WithControllerDebug(debug bool) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Debug = debug
		return c
	}
}

// SignupPayload is the registration request body
type SignupPayload struct {
	Name            string `form:"name" json:"name"`
	Email           string `form:"email" json:"email"`
	Phone           string `form:"phone" json:"phone"`
	Password        string `form:"password" json:"password"`
	PasswordConfirm string `form:"password_confirm" json:"password_confirm"`
}

// Validate will run validation rules
func (r SignupPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&r.Phone, validation.By(ValidatePhoneNumber)),
		validation.Field(&r.Password, validation.Required, validation.Length(8, 100)),
		validation.Field(
			&r.PasswordConfirm,
			validation.Required,
			validation.By(ValidateStringEquals(r.Password)),
		),
	)
}

func (a *AuthController) Signup(ctx router.Context) error {
	payload := new(SignupPayload)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("signup parse payload: %v", err)
		return a.ErrorHandler(ctx, wrapBindError(err))
	}

	if err := payload.Validate(); err != nil {
		a.Logger.Error("signup validate payload: %v", err)
		return a.validationFailed(ctx, err)
	}

	if a.Debug {
		fmt.Println("======= AUTH SIGNUP ======")
		fmt.Println(print.MaybePrettyJSON(payload))
		fmt.Println("==========================")
	}

	var res *RegisterUserResponse

	req := RegisterUserMessage{
		Name:            payload.Name,
		Email:           payload.Email,
		Phone:           payload.Phone,
		Password:        payload.Password,
		PasswordConfirm: payload.PasswordConfirm,
		OnResponse: func(resp *RegisterUserResponse) {
			res = resp
		},
	}

	registerUser := NewRegisterUserHandler(a.Repo).
		WithMailer(a.Mailer).
		WithLogger(a.Logger)

	if err := registerUser.Execute(ctx.Context(), req); err != nil {
		a.Logger.Error("signup execute error: %v", err)
		return a.ErrorHandler(ctx, err)
	}

	token, err := a.Auther.IssueSession(ctx, res.User)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusCreated, map[string]any{
		"status": "success",
		"token":  token,
		"data": map[string]any{
			"user": res.User,
		},
	})
}

// LoginRequest payload
type LoginRequest struct {
	Email    string `form:"email" json:"email"`
	Password string `form:"password" json:"password"`
}

// GetEmail returns the account email
func (r LoginRequest) GetEmail() string {
	return r.Email
}

// GetPassword will return the password
func (r LoginRequest) GetPassword() string {
	return r.Password
}

// Validate will run validation rules
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Email,
			validation.Required,
			is.Email,
		),
		validation.Field(
			&r.Password,
			validation.Required,
		),
	)
}

func (a *AuthController) Login(ctx router.Context) error {
	payload := new(LoginRequest)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("login parse payload: %v", err)
		return a.ErrorHandler(ctx, wrapBindError(err))
	}

	if err := payload.Validate(); err != nil {
		a.Logger.Error("login validate payload: %v", err)
		return a.validationFailed(ctx, err)
	}

	token, err := a.Auther.Login(ctx, payload)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"status": "success",
		"token":  token,
	})
}

func (a *AuthController) Logout(ctx router.Context) error {
	a.Auther.Logout(ctx)
	return ctx.JSON(router.StatusOK, map[string]any{
		"status": "success",
	})
}

// ForgotPasswordPayload holds values for a password reset request
type ForgotPasswordPayload struct {
	Email string `form:"email" json:"email"`
}

// Validate will run validation rules
func (r ForgotPasswordPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Email,
			validation.Required,
			is.Email,
		),
	)
}

func (a *AuthController) ForgotPassword(ctx router.Context) error {
	payload := new(ForgotPasswordPayload)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("forgot password parse payload: %v", err)
		return a.ErrorHandler(ctx, wrapBindError(err))
	}

	if err := payload.Validate(); err != nil {
		a.Logger.Error("forgot password validate payload: %v", err)
		return a.validationFailed(ctx, err)
	}

	req := InitializePasswordResetMessage{
		Email:        payload.Email,
		ResetBaseURL: a.resetBaseURL(ctx),
	}

	initPwdReset := NewInitializePasswordResetHandler(a.Repo, a.Mailer).
		WithLogger(a.Logger)

	if err := initPwdReset.Execute(ctx.Context(), req); err != nil {
		a.Logger.Error("forgot password execute error: %v", err)
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"status":  "success",
		"message": "Token sent to email!",
	})
}

// resetBaseURL points the emailed link at the mounted reset route. A
// configured BaseURL wins; otherwise the link is rebuilt from the host the
// caller reached us on.
func (a *AuthController) resetBaseURL(ctx router.Context) string {
	base := a.BaseURL
	if base == "" {
		scheme := ctx.Header("X-Forwarded-Proto")
		if scheme == "" {
			scheme = "http"
		}
		base = fmt.Sprintf("%s://%s", scheme, ctx.Header("Host"))
	}
	return strings.TrimRight(base, "/") + a.Routes.ResetPassword
}

// ResetPasswordPayload holds the new password for a token redemption
type ResetPasswordPayload struct {
	Password        string `form:"password" json:"password"`
	PasswordConfirm string `form:"password_confirm" json:"password_confirm"`
}

// Validate will run validation rules
func (r ResetPasswordPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Password,
			validation.Required,
			validation.Length(8, 100),
		),
		validation.Field(
			&r.PasswordConfirm,
			validation.Required,
			validation.By(ValidateStringEquals(r.Password)),
		),
	)
}

func (a *AuthController) ResetPassword(ctx router.Context) error {
	token := ctx.Param("token", "")

	payload := new(ResetPasswordPayload)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("reset password parse payload: %v", err)
		return a.ErrorHandler(ctx, wrapBindError(err))
	}

	if err := payload.Validate(); err != nil {
		a.Logger.Error("reset password validate payload: %v", err)
		return a.validationFailed(ctx, err)
	}

	var res *FinalizePasswordResetResponse

	req := FinalizePasswordResetMessage{
		Token:           token,
		Password:        payload.Password,
		PasswordConfirm: payload.PasswordConfirm,
		OnResponse: func(resp *FinalizePasswordResetResponse) {
			res = resp
		},
	}

	finalizePwdReset := NewFinalizePasswordResetHandler(a.Repo, a.Auth).
		WithLogger(a.Logger)

	if err := finalizePwdReset.Execute(ctx.Context(), req); err != nil {
		a.Logger.Error("reset password execute error: %v", err)
		return a.ErrorHandler(ctx, err)
	}

	if ra, ok := a.Auther.(*RouteAuthenticator); ok && res.Token != "" {
		ra.SetSessionCookie(ctx, res.Token)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"status": "success",
		"token":  res.Token,
	})
}

// UpdatePasswordPayload holds values for an in-session password change
type UpdatePasswordPayload struct {
	CurrentPassword string `form:"current_password" json:"current_password"`
	Password        string `form:"password" json:"password"`
	PasswordConfirm string `form:"password_confirm" json:"password_confirm"`
}

// Validate will run validation rules
func (r UpdatePasswordPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.CurrentPassword,
			validation.Required,
		),
		validation.Field(
			&r.Password,
			validation.Required,
			validation.Length(8, 100),
		),
		validation.Field(
			&r.PasswordConfirm,
			validation.Required,
			validation.By(ValidateStringEquals(r.Password)),
		),
	)
}

// UpdatePassword expects the session gate to have attached the account.
func (a *AuthController) UpdatePassword(ctx router.Context) error {
	user, ok := FromContext(ctx.Context())
	if !ok {
		return a.ErrorHandler(ctx, ErrNotLoggedIn)
	}

	payload := new(UpdatePasswordPayload)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("update password parse payload: %v", err)
		return a.ErrorHandler(ctx, wrapBindError(err))
	}

	if err := payload.Validate(); err != nil {
		a.Logger.Error("update password validate payload: %v", err)
		return a.validationFailed(ctx, err)
	}

	var res *UpdatePasswordResponse

	req := UpdatePasswordMessage{
		UserID:          user.ID,
		CurrentPassword: payload.CurrentPassword,
		Password:        payload.Password,
		PasswordConfirm: payload.PasswordConfirm,
		OnResponse: func(resp *UpdatePasswordResponse) {
			res = resp
		},
	}

	updatePwd := NewUpdatePasswordHandler(a.Repo, a.Auth).
		WithLogger(a.Logger)

	if err := updatePwd.Execute(ctx.Context(), req); err != nil {
		a.Logger.Error("update password execute error: %v", err)
		return a.ErrorHandler(ctx, err)
	}

	if ra, ok := a.Auther.(*RouteAuthenticator); ok && res.Token != "" {
		ra.SetSessionCookie(ctx, res.Token)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"status": "success",
		"token":  res.Token,
	})
}

func (a *AuthController) validationFailed(ctx router.Context, err error) error {
	return ctx.JSON(router.StatusBadRequest, map[string]any{
		"status":     "fail",
		"message":    "Invalid input data",
		"validation": FormatValidationErrorToMap(err),
	})
}

// ValidateStringEquals will check that both values match
func ValidateStringEquals(str string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s != str {
			return errors.New("values must match")
		}
		return nil
	}
}

// ValidatePhoneNumber accepts an empty value or a parseable, valid number in
// international format.
func ValidatePhoneNumber(value any) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}

	num, err := phonenumbers.Parse(s, "US")
	if err != nil {
		return errors.New("must be a valid phone number")
	}

	if !phonenumbers.IsValidNumber(num) {
		return errors.New("must be a valid phone number")
	}

	return nil
}

// FormatValidationErrorToMap flattens ozzo validation errors into a
// field/message map for rendering.
func FormatValidationErrorToMap(err error) map[string]string {
	out := map[string]string{}
	if err == nil {
		return out
	}

	var verrs validation.Errors
	if errors.As(err, &verrs) {
		for field, ferr := range verrs {
			if ferr != nil {
				out[field] = ferr.Error()
			}
		}
		return out
	}

	out["error"] = err.Error()
	return out
}

func wrapBindError(err error) error {
	return goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to parse request body").
		WithCode(goerrors.CodeBadRequest)
}
