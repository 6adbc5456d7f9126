// Package handler contains the HTTP handlers of the members site.  Every
// handler renders a view or redirects; infrastructure failures are returned
// as errors and turned into the error page by HTTPErrorHandler.
package handler

import (
	"context"
	"math/rand"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/members-area/internal/config"
	"github.com/iliyamo/members-area/internal/form"
	"github.com/iliyamo/members-area/internal/logger"
	"github.com/iliyamo/members-area/internal/middleware"
	"github.com/iliyamo/members-area/internal/model"
	"github.com/iliyamo/members-area/internal/queue"
	"github.com/iliyamo/members-area/internal/service"
	"github.com/iliyamo/members-area/internal/view"
)

// storeTimeout bounds every call to the user store.
const storeTimeout = 5 * time.Second

// Sessions is the part of session.Manager the handlers use.
type Sessions interface {
	Create(ctx context.Context, u model.User) (string, error)
	Destroy(ctx context.Context, token string) error
	UpdateIdentity(ctx context.Context, u model.User) error
	CookieName() string
	Cookie(token string) *http.Cookie
	ExpiredCookie() *http.Cookie
}

// Deps are the collaborators of Handler.
type Deps struct {
	Cfg      config.Config
	Users    model.UserStore
	Sessions Sessions
	Forms    *form.Validator
	Events   service.Publisher
	Log      *logger.Logger
}

// Handler bundles dependencies for all page endpoints.
type Handler struct {
	Deps
	pickImage func() string
}

// New returns a Handler.  A nil Events publisher drops events.
func New(d Deps) *Handler {
	if d.Events == nil {
		d.Events = service.NopPublisher{}
	}
	if d.Log == nil {
		d.Log = logger.Nop()
	}
	if d.Forms == nil {
		d.Forms = form.NewValidator()
	}
	return &Handler{
		Deps:      d,
		pickImage: func() string { return view.Images[rand.Intn(len(view.Images))] },
	}
}

// page returns view data pre-filled with the caller's identity.
func page(c echo.Context, title string) view.Page {
	return view.Page{Title: title, User: middleware.IdentityFrom(c).User()}
}

func (h *Handler) storeCtx(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), storeTimeout)
}

// publish sends ev to the audit queue.  A failed publish never fails the
// request that caused it.
func (h *Handler) publish(c echo.Context, ev queue.AccountEvent) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request().Context()), storeTimeout)
	defer cancel()
	if err := h.Events.Publish(ctx, ev); err != nil {
		h.reqLog(c).Warn("publish account event failed", "type", ev.Type, "user_id", ev.UserID, "error", err)
	}
}

func (h *Handler) reqLog(c echo.Context) *logger.Logger {
	return h.Log.With("method", c.Request().Method, "path", c.Path())
}
