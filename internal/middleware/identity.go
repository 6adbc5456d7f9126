package middleware

// identity.go resolves the session cookie on every request and stores the
// caller's model.Identity in the echo context.  Guards and handlers read it
// back with IdentityFrom; nothing else consults the cookie.

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/members-area/internal/model"
	"github.com/iliyamo/members-area/internal/session"
)

const identityKey = "identity"

// SessionResolver is the part of session.Manager the identity loader needs.
type SessionResolver interface {
	Resolve(ctx context.Context, token string) (model.Snapshot, error)
	CookieName() string
	ExpiredCookie() *http.Cookie
}

// LoadIdentity resolves the session cookie.  Requests without a valid
// session continue as anonymous; a failing session store aborts the request
// with a 500.
func LoadIdentity(sessions SessionResolver) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Set(identityKey, model.AnonymousIdentity)

			cookie, err := c.Cookie(sessions.CookieName())
			if err != nil || cookie.Value == "" {
				return next(c)
			}
			snap, err := sessions.Resolve(c.Request().Context(), cookie.Value)
			switch {
			case err == nil:
				c.Set(identityKey, model.IdentityOf(snap))
			case errors.Is(err, session.ErrAbsent):
				// stale cookie from an expired or destroyed session
				c.SetCookie(sessions.ExpiredCookie())
			default:
				return echo.NewHTTPError(http.StatusInternalServerError).SetInternal(err)
			}
			return next(c)
		}
	}
}

// IdentityFrom returns the identity stored by LoadIdentity, or the anonymous
// identity when the loader did not run.
func IdentityFrom(c echo.Context) model.Identity {
	if id, ok := c.Get(identityKey).(model.Identity); ok {
		return id
	}
	return model.AnonymousIdentity
}
