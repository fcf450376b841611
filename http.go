package identity

import (
	"io"
	"mime/multipart"
	"strings"

	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
)

// HTTPControllerRoutes holds the mount points for the JSON API.
type HTTPControllerRoutes struct {
	Register       string
	Login          string
	Logout         string
	Activate       string
	ActivateResend string
	PasswordForgot string
	PasswordReset  string
	Refresh        string
	Profile        string
}

// HTTPController exposes the identity operations as a JSON API. Session
// checks run against the persisted token rows through the authenticator,
// so revocation applies immediately.
type HTTPController struct {
	Orchestrator *Orchestrator
	Auther       Authenticator
	Logger       Logger
	Routes       *HTTPControllerRoutes
}

func NewHTTPController(orchestrator *Orchestrator, auther Authenticator) *HTTPController {
	return &HTTPController{
		Orchestrator: orchestrator,
		Auther:       auther,
		Logger:       defLogger{},
		Routes: &HTTPControllerRoutes{
			Register:       "/auth/register",
			Login:          "/auth/login",
			Logout:         "/auth/logout",
			Activate:       "/auth/activate",
			ActivateResend: "/auth/activate/resend",
			PasswordForgot: "/auth/password/forgot",
			PasswordReset:  "/auth/password/reset",
			Refresh:        "/auth/refresh",
			Profile:        "/profile",
		},
	}
}

// WithLogger overrides the logger used by the controller.
func (a *HTTPController) WithLogger(logger Logger) *HTTPController {
	if logger != nil {
		a.Logger = logger
	}
	return a
}

// RegisterRoutes mounts the identity endpoints on the fiber app.
func RegisterRoutes(app *fiber.App, controller *HTTPController) {
	app.Post(controller.Routes.Register, controller.RegisterPost)
	app.Post(controller.Routes.Login, controller.LoginPost)
	app.Post(controller.Routes.Activate, controller.ActivatePost)
	app.Post(controller.Routes.ActivateResend, controller.ActivateResendPost)
	app.Post(controller.Routes.PasswordForgot, controller.PasswordForgotPost)
	app.Post(controller.Routes.PasswordReset, controller.PasswordResetPost)

	protected := controller.Protected()
	app.Post(controller.Routes.Refresh, protected, controller.RefreshPost)
	app.Post(controller.Routes.Logout, protected, controller.LogoutPost)
	app.Get(controller.Routes.Profile, protected, controller.ProfileGet)
	app.Patch(controller.Routes.Profile, protected, controller.ProfilePatch)
	app.Delete(controller.Routes.Profile, protected, controller.ProfileDelete)
}

// Protected returns middleware that validates the bearer token and puts
// the decoded session on the request context.
func (a *HTTPController) Protected() fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := bearerToken(c.Get(fiber.HeaderAuthorization))
		if raw == "" {
			return a.renderError(c, ErrUnauthorized)
		}

		session, err := a.Auther.SessionFromToken(c.UserContext(), raw)
		if err != nil {
			return a.renderError(c, err)
		}

		c.SetUserContext(WithSessionContext(c.UserContext(), session))
		return c.Next()
	}
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return header[len(prefix):]
	}
	return ""
}

func (a *HTTPController) RegisterPost(c *fiber.Ctx) error {
	var msg RegisterUserMessage
	if err := c.BodyParser(&msg); err != nil {
		return a.renderError(c, goerrors.Wrap(err, goerrors.CategoryBadInput, "malformed request body"))
	}

	resp, err := a.Orchestrator.Register(c.UserContext(), msg)
	if err != nil {
		return a.renderError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"user":      profileFromUser(resp.User),
		"activated": resp.Activated,
	})
}

func (a *HTTPController) LoginPost(c *fiber.Ctx) error {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&body); err != nil {
		return a.renderError(c, goerrors.Wrap(err, goerrors.CategoryBadInput, "malformed request body"))
	}

	token, err := a.Orchestrator.Login(c.UserContext(), body.Email, body.Password)
	if err != nil {
		return a.renderError(c, err)
	}

	return c.JSON(fiber.Map{"token": token})
}

func (a *HTTPController) ActivatePost(c *fiber.Ctx) error {
	var body struct {
		Token string `json:"token"`
	}
	if err := c.BodyParser(&body); err != nil {
		return a.renderError(c, goerrors.Wrap(err, goerrors.CategoryBadInput, "malformed request body"))
	}

	resp, err := a.Orchestrator.Activate(c.UserContext(), body.Token)
	if err != nil {
		return a.renderError(c, err)
	}

	return c.JSON(fiber.Map{"activated": resp.Activated})
}

func (a *HTTPController) ActivateResendPost(c *fiber.Ctx) error {
	var body struct {
		Token string `json:"token"`
	}
	if err := c.BodyParser(&body); err != nil {
		return a.renderError(c, goerrors.Wrap(err, goerrors.CategoryBadInput, "malformed request body"))
	}

	resp, err := a.Orchestrator.ResendActivation(c.UserContext(), body.Token)
	if err != nil {
		return a.renderError(c, err)
	}

	return c.JSON(fiber.Map{"expires_at": resp.ExpiresAt})
}

func (a *HTTPController) PasswordForgotPost(c *fiber.Ctx) error {
	var body struct {
		Email string `json:"email"`
	}
	if err := c.BodyParser(&body); err != nil {
		return a.renderError(c, goerrors.Wrap(err, goerrors.CategoryBadInput, "malformed request body"))
	}

	resp, err := a.Orchestrator.ForgotPassword(c.UserContext(), body.Email)
	if err != nil {
		return a.renderError(c, err)
	}

	return c.JSON(fiber.Map{
		"email":      resp.Email,
		"expires_at": resp.ExpiresAt,
	})
}

func (a *HTTPController) PasswordResetPost(c *fiber.Ctx) error {
	var body struct {
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&body); err != nil {
		return a.renderError(c, goerrors.Wrap(err, goerrors.CategoryBadInput, "malformed request body"))
	}

	if err := a.Orchestrator.ResetPassword(c.UserContext(), body.Token, body.Password); err != nil {
		return a.renderError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (a *HTTPController) RefreshPost(c *fiber.Ctx) error {
	token, err := a.Orchestrator.RefreshSession(c.UserContext())
	if err != nil {
		return a.renderError(c, err)
	}

	return c.JSON(fiber.Map{"token": token})
}

func (a *HTTPController) LogoutPost(c *fiber.Ctx) error {
	if err := a.Orchestrator.Logout(c.UserContext()); err != nil {
		return a.renderError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (a *HTTPController) ProfileGet(c *fiber.Ctx) error {
	resp, err := a.Orchestrator.GetProfile(c.UserContext())
	if err != nil {
		return a.renderError(c, err)
	}

	return c.JSON(resp)
}

func (a *HTTPController) ProfilePatch(c *fiber.Ctx) error {
	var msg UpdateProfileMessage
	if err := c.BodyParser(&msg); err != nil {
		return a.renderError(c, goerrors.Wrap(err, goerrors.CategoryBadInput, "malformed request body"))
	}

	if file, err := c.FormFile("picture"); err == nil && file != nil {
		upload, err := uploadFromMultipart(file)
		if err != nil {
			return a.renderError(c, err)
		}
		msg.Picture = upload
	}

	resp, err := a.Orchestrator.UpdateProfile(c.UserContext(), msg)
	if err != nil {
		return a.renderError(c, err)
	}

	return c.JSON(resp)
}

func (a *HTTPController) ProfileDelete(c *fiber.Ctx) error {
	if err := a.Orchestrator.DeleteAccount(c.UserContext()); err != nil {
		return a.renderError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (a *HTTPController) renderError(c *fiber.Ctx, err error) error {
	status := statusFromError(err)
	if status >= fiber.StatusInternalServerError {
		a.Logger.Error("request failed: %v", err)
	}

	body := fiber.Map{"error": err.Error()}

	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		body["error"] = rich.Message
		if rich.TextCode != "" {
			body["code"] = rich.TextCode
		}
	}

	return c.Status(status).JSON(body)
}

// statusFromError maps the error taxonomy onto HTTP statuses. Expired
// tokens come back as 410 so clients can distinguish a stale link from a
// wrong one.
func statusFromError(err error) int {
	if IsGone(err) {
		return fiber.StatusGone
	}

	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		return fiber.StatusInternalServerError
	}

	switch rich.Category {
	case goerrors.CategoryNotFound:
		return fiber.StatusNotFound
	case goerrors.CategoryConflict:
		return fiber.StatusConflict
	case goerrors.CategoryAuth:
		if rich.Code == goerrors.CodeForbidden {
			return fiber.StatusForbidden
		}
		return fiber.StatusUnauthorized
	case goerrors.CategoryValidation, goerrors.CategoryBadInput:
		return fiber.StatusUnprocessableEntity
	default:
		return fiber.StatusInternalServerError
	}
}

func uploadFromMultipart(file *multipart.FileHeader) (*ProfileUpload, error) {
	src, err := file.Open()
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "could not read uploaded file")
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "could not read uploaded file")
	}

	return &ProfileUpload{
		Name:        file.Filename,
		ContentType: file.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}
