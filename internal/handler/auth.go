package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/members-area/internal/form"
	"github.com/iliyamo/members-area/internal/model"
	"github.com/iliyamo/members-area/internal/queue"
	"github.com/iliyamo/members-area/internal/utils"
	"github.com/iliyamo/members-area/internal/view"
)

// Messages shown on the auth forms.
const (
	MsgEmailTaken         = "Email is already registered."
	MsgInvalidCredentials = "Invalid email or password."
)

// SignupForm renders the empty signup form.
func (h *Handler) SignupForm(c echo.Context) error {
	return c.Render(http.StatusOK, view.Signup, page(c, "Sign up"))
}

// LoginForm renders the empty login form.
func (h *Handler) LoginForm(c echo.Context) error {
	return c.Render(http.StatusOK, view.Login, page(c, "Log in"))
}

// Signup creates a user with the default role, logs them in and sends them
// to the members area.
func (h *Handler) Signup(c echo.Context) error {
	values, err := c.FormParams()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest).SetInternal(err)
	}
	f, err := h.Forms.ParseSignup(values)

	p := page(c, "Sign up")
	p.Name, p.Email = f.Name, f.Email
	if err != nil {
		if errors.Is(err, form.ErrValidation) {
			p.Error = form.Message(err)
			return c.Render(http.StatusBadRequest, view.Signup, p)
		}
		return err
	}

	hash, err := utils.HashPassword(f.Password, h.Cfg.BcryptCost)
	if err != nil {
		return fmt.Errorf("signup: %w", err)
	}

	ctx, cancel := h.storeCtx(c)
	defer cancel()

	u, err := h.Users.Create(ctx, f.Name, f.Email, hash, model.RoleUser)
	if err != nil {
		if errors.Is(err, model.ErrEmailExists) {
			p.Error = MsgEmailTaken
			return c.Render(http.StatusConflict, view.Signup, p)
		}
		return fmt.Errorf("create user: %w", err)
	}

	if err := h.startSession(c, u); err != nil {
		return err
	}
	h.publish(c, queue.Registered(u))
	return c.Redirect(http.StatusSeeOther, "/members")
}

// Login checks the submitted credentials and starts a session.  An unknown
// email and a wrong password produce the same response.
func (h *Handler) Login(c echo.Context) error {
	values, err := c.FormParams()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest).SetInternal(err)
	}
	f, err := h.Forms.ParseLogin(values)

	p := page(c, "Log in")
	p.Email = f.Email
	if err != nil {
		if errors.Is(err, form.ErrValidation) {
			p.Error = form.Message(err)
			return c.Render(http.StatusBadRequest, view.Login, p)
		}
		return err
	}

	u, err := h.authenticate(c, f)
	if err != nil {
		if errors.Is(err, model.ErrInvalidCredentials) {
			p.Error = MsgInvalidCredentials
			return c.Render(http.StatusUnauthorized, view.Login, p)
		}
		return err
	}

	if err := h.startSession(c, u); err != nil {
		return err
	}
	return c.Redirect(http.StatusSeeOther, "/members")
}

// authenticate returns the user for f or model.ErrInvalidCredentials.
func (h *Handler) authenticate(c echo.Context, f form.LoginForm) (model.User, error) {
	ctx, cancel := h.storeCtx(c)
	defer cancel()

	u, err := h.Users.GetByEmail(ctx, f.Email)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return model.User{}, model.ErrInvalidCredentials
		}
		return model.User{}, fmt.Errorf("find user: %w", err)
	}

	ok, err := utils.VerifyPassword(u.PasswordHash, f.Password)
	if err != nil {
		h.reqLog(c).Error("stored credential is unusable", "user_id", u.ID, "error", err)
		return model.User{}, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		return model.User{}, model.ErrInvalidCredentials
	}
	return u, nil
}

// startSession replaces any session the browser already holds with a new
// one for u.
func (h *Handler) startSession(c echo.Context, u model.User) error {
	ctx := c.Request().Context()
	if old, err := c.Cookie(h.Sessions.CookieName()); err == nil && old.Value != "" {
		if err := h.Sessions.Destroy(ctx, old.Value); err != nil {
			return fmt.Errorf("destroy previous session: %w", err)
		}
	}
	token, err := h.Sessions.Create(ctx, u)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	c.SetCookie(h.Sessions.Cookie(token))
	return nil
}

// Logout destroys the session and clears the cookie.
func (h *Handler) Logout(c echo.Context) error {
	if cookie, err := c.Cookie(h.Sessions.CookieName()); err == nil && cookie.Value != "" {
		if err := h.Sessions.Destroy(c.Request().Context(), cookie.Value); err != nil {
			return fmt.Errorf("logout: %w", err)
		}
	}
	c.SetCookie(h.Sessions.ExpiredCookie())
	return c.Redirect(http.StatusSeeOther, "/login")
}
