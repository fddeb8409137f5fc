package passwordless

import (
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/google/uuid"
)

type HTTPControllerRoutes struct {
	ObtainEmail  string
	ObtainMobile string
	Redeem       string
	VerifyEmail  string
	VerifyMobile string
	VerifyRedeem string
}

type HTTPController struct {
	Debug    bool
	Logger   Logger
	Repo     RepositoryManager
	Config   Config
	Sender   TokenSender
	Sessions *SessionIssuer
	Activity ActivitySink
	Routes   *HTTPControllerRoutes
	now      func() time.Time
}

type HTTPControllerOption func(*HTTPController) *HTTPController

func WithControllerLogger(logger Logger) HTTPControllerOption {
	return func(c *HTTPController) *HTTPController {
		if logger != nil {
			c.Logger = logger
		}
		return c
	}
}

func WithControllerRepository(repo RepositoryManager) HTTPControllerOption {
	return func(c *HTTPController) *HTTPController {
		c.Repo = repo
		return c
	}
}

func WithControllerConfig(cfg Config) HTTPControllerOption {
	return func(c *HTTPController) *HTTPController {
		c.Config = cfg
		return c
	}
}

func WithControllerSender(sender TokenSender) HTTPControllerOption {
	return func(c *HTTPController) *HTTPController {
		c.Sender = sender
		return c
	}
}

func WithControllerSessions(issuer *SessionIssuer) HTTPControllerOption {
	return func(c *HTTPController) *HTTPController {
		c.Sessions = issuer
		return c
	}
}

func WithControllerActivitySink(sink ActivitySink) HTTPControllerOption {
	return func(c *HTTPController) *HTTPController {
		c.Activity = sink
		return c
	}
}

func WithControllerDebug(debug bool) HTTPControllerOption {
	return func(c *HTTPController) *HTTPController {
		c.Debug = debug
		return c
	}
}

// WithControllerClock sets the clock used to check token expiry.
func WithControllerClock(now func() time.Time) HTTPControllerOption {
	return func(c *HTTPController) *HTTPController {
		if now != nil {
			c.now = now
		}
		return c
	}
}

func NewHTTPController(opts ...HTTPControllerOption) *HTTPController {
	_, logger := ResolveLogger("passwordless.http", nil, nil)
	c := &HTTPController{
		Logger: logger,
		Config: DefaultConfig(),
		now:    time.Now,
		Routes: &HTTPControllerRoutes{
			ObtainEmail:  "/auth/email/",
			ObtainMobile: "/auth/mobile/",
			Redeem:       "/auth/token/",
			VerifyEmail:  "/auth/verify/email/",
			VerifyMobile: "/auth/verify/mobile/",
			VerifyRedeem: "/auth/verify/",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Repo == nil {
		panic("Missing RepositoryManager in passwordless controller...")
	}

	if c.Sender == nil {
		panic("Missing TokenSender in passwordless controller...")
	}

	if c.Sessions == nil {
		c.Sessions = NewSessionIssuer(c.Config)
	}

	return c
}

// RegisterPasswordlessRoutes mounts the token endpoints on app.
func RegisterPasswordlessRoutes(app fiber.Router, opts ...HTTPControllerOption) *HTTPController {
	controller := NewHTTPController(opts...)

	app.Post(controller.Routes.ObtainEmail, controller.ObtainToken(AliasEmail)).
		Name("passwordless.email.post")
	app.Post(controller.Routes.ObtainMobile, controller.ObtainToken(AliasMobile)).
		Name("passwordless.mobile.post")
	app.Post(controller.Routes.Redeem, controller.RedeemToken).
		Name("passwordless.token.post")

	app.Post(controller.Routes.VerifyEmail, controller.RequireSession, controller.RequestVerification(AliasEmail)).
		Name("passwordless.verify-email.post")
	app.Post(controller.Routes.VerifyMobile, controller.RequireSession, controller.RequestVerification(AliasMobile)).
		Name("passwordless.verify-mobile.post")
	app.Post(controller.Routes.VerifyRedeem, controller.RequireSession, controller.RedeemVerification).
		Name("passwordless.verify.post")

	return controller
}

// AliasPayload carries the alias a token is requested for.
type AliasPayload struct {
	Email  string `json:"email" form:"email"`
	Mobile string `json:"mobile" form:"mobile"`
}

func (r AliasPayload) alias(kind AliasKind) string {
	if kind == AliasMobile {
		return r.Mobile
	}
	return r.Email
}

func (r AliasPayload) validateFor(kind AliasKind) error {
	switch kind {
	case AliasEmail:
		return validation.ValidateStruct(&r,
			validation.Field(&r.Email, validation.Required, is.Email),
		)
	default:
		return validation.ValidateStruct(&r,
			validation.Field(&r.Mobile, validation.Required, validation.Length(8, 17)),
		)
	}
}

// CallbackTokenPayload redeems a key sent to either alias.
type CallbackTokenPayload struct {
	Email  string `json:"email" form:"email"`
	Mobile string `json:"mobile" form:"mobile"`
	Token  string `json:"token" form:"token"`
}

func (r CallbackTokenPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Token, validation.Required, validation.Length(DefaultTokenLength, 16), is.Digit),
		validation.Field(&r.Email, validation.By(RequiredWithout(r.Mobile)), is.Email),
		validation.Field(&r.Mobile, validation.By(RequiredWithout(r.Email))),
	)
}

func (r CallbackTokenPayload) aliasTarget() (AliasKind, string) {
	if r.Email != "" {
		return AliasEmail, r.Email
	}
	return AliasMobile, r.Mobile
}

func (a *HTTPController) ObtainToken(kind AliasKind) fiber.Handler {
	return func(c *fiber.Ctx) error {
		payload := new(AliasPayload)
		if err := c.BodyParser(payload); err != nil {
			return a.badRequest(c, err)
		}

		if err := payload.validateFor(kind); err != nil {
			return a.invalidPayload(c, err)
		}

		handler := NewObtainCallbackTokenHandler(a.Repo, a.Config, a.Sender).WithLogger(a.Logger)
		err := handler.Execute(c.UserContext(), ObtainCallbackTokenMessage{
			AliasType: kind,
			Alias:     payload.alias(kind),
		})
		if err != nil {
			return a.handleError(c, err)
		}

		return c.JSON(fiber.Map{
			"detail": "A login token has been sent to your " + string(kind) + ".",
		})
	}
}

func (a *HTTPController) RedeemToken(c *fiber.Ctx) error {
	payload := new(CallbackTokenPayload)
	if err := c.BodyParser(payload); err != nil {
		return a.badRequest(c, err)
	}

	if err := payload.Validate(); err != nil {
		return a.invalidPayload(c, err)
	}

	if a.Debug {
		a.Logger.Debug("redeem callback token", "payload", print.MaybePrettyJSON(payload))
	}

	kind, alias := payload.aliasTarget()

	var user *User
	err := a.redeemHandler().Execute(c.UserContext(), RedeemCallbackTokenMessage{
		Key:       payload.Token,
		AliasType: kind,
		Alias:     alias,
		TokenType: TokenTypeAuth,
		OnResponse: func(u *User) {
			user = u
		},
	})
	if err != nil {
		return a.handleError(c, err)
	}

	token, err := a.Sessions.Issue(user)
	if err != nil {
		return a.handleError(c, err)
	}

	return c.JSON(fiber.Map{"token": token})
}

func (a *HTTPController) RequestVerification(kind AliasKind) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := sessionUserID(c)

		handler := NewRequestAliasVerificationHandler(a.Repo, a.Config, a.Sender).WithLogger(a.Logger)
		err := handler.Execute(c.UserContext(), RequestAliasVerificationMessage{
			UserID:    userID,
			AliasType: kind,
		})
		if err != nil {
			return a.handleError(c, err)
		}

		return c.JSON(fiber.Map{
			"detail": "A verification token has been sent to your " + string(kind) + ".",
		})
	}
}

func (a *HTTPController) RedeemVerification(c *fiber.Ctx) error {
	userID := sessionUserID(c)

	payload := new(CallbackTokenPayload)
	if err := c.BodyParser(payload); err != nil {
		return a.badRequest(c, err)
	}

	if err := payload.Validate(); err != nil {
		return a.invalidPayload(c, err)
	}

	kind, alias := payload.aliasTarget()

	err := a.redeemHandler().Execute(c.UserContext(), RedeemCallbackTokenMessage{
		Key:       payload.Token,
		AliasType: kind,
		Alias:     alias,
		TokenType: TokenTypeVerify,
		UserID:    userID,
	})
	if err != nil {
		return a.handleError(c, err)
	}

	return c.JSON(fiber.Map{"detail": "Alias verified."})
}

// RequireSession rejects requests without a valid bearer session token.
func (a *HTTPController) RequireSession(c *fiber.Ctx) error {
	header := c.Get(fiber.HeaderAuthorization)
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(raw) == "" {
		return a.handleError(c, goerrors.New("missing bearer token", goerrors.CategoryAuth).
			WithCode(goerrors.CodeUnauthorized))
	}

	claims, err := a.Sessions.Parse(strings.TrimSpace(raw))
	if err != nil {
		return a.handleError(c, err)
	}

	if _, err := claims.UserID(); err != nil {
		return a.handleError(c, goerrors.Wrap(err, goerrors.CategoryAuth, "invalid session subject").
			WithCode(goerrors.CodeUnauthorized))
	}

	c.SetUserContext(WithSessionContext(c.UserContext(), claims))
	return c.Next()
}

func sessionUserID(c *fiber.Ctx) uuid.UUID {
	claims, ok := SessionFromFiber(c)
	if !ok {
		return uuid.Nil
	}
	id, _ := claims.UserID()
	return id
}

func (a *HTTPController) redeemHandler() *RedeemCallbackTokenHandler {
	return NewRedeemCallbackTokenHandler(a.Repo, a.Config).
		WithLogger(a.Logger).
		WithActivitySink(a.Activity).
		WithClock(a.now)
}

func (a *HTTPController) badRequest(c *fiber.Ctx, err error) error {
	a.Logger.Error("passwordless parse payload", "error", err)
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"detail": "Failed to parse request body",
	})
}

func (a *HTTPController) invalidPayload(c *fiber.Ctx, err error) error {
	a.Logger.Info("passwordless validate payload", "error", err)
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"detail": err.Error(),
		"errors": FormatValidationErrorToMap(err),
	})
}

func (a *HTTPController) handleError(c *fiber.Ctx, err error) error {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		richErr = goerrors.Wrap(err, goerrors.CategoryInternal, "An unexpected server error occurred").
			WithCode(goerrors.CodeInternal)
	}

	a.Logger.Info(
		"passwordless request error",
		"error", richErr.Message,
		"category", richErr.Category,
		"text_code", richErr.TextCode,
		"details", print.MaybePrettyJSON(richErr.Metadata),
	)

	status := statusForError(richErr)
	body := fiber.Map{"detail": richErr.Message}
	if richErr.TextCode != "" {
		body["code"] = richErr.TextCode
	}
	if status >= fiber.StatusInternalServerError {
		body["detail"] = "An unexpected server error occurred"
	}

	return c.Status(status).JSON(body)
}

func statusForError(err *goerrors.Error) int {
	if err.Code != 0 {
		return err.Code
	}

	switch err.Category {
	case goerrors.CategoryValidation, goerrors.CategoryBadInput:
		return fiber.StatusBadRequest
	case goerrors.CategoryAuth:
		return fiber.StatusUnauthorized
	case goerrors.CategoryNotFound:
		return fiber.StatusNotFound
	case goerrors.CategoryConflict:
		return fiber.StatusConflict
	case goerrors.CategoryRateLimit:
		return fiber.StatusTooManyRequests
	}
	return fiber.StatusInternalServerError
}
