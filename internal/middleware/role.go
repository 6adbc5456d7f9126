package middleware // middleware provides shared request processing for handlers

import (
	"net/http" // http package defines standard HTTP status codes

	"github.com/labstack/echo/v4" // echo provides middleware chaining and context

	"github.com/iliyamo/members-area/internal/model"
)

// LoginPath is where anonymous visitors of a guarded route are sent.
const LoginPath = "/login"

// RequireRole returns the capability gate for routes that need the given
// role.  It relies on LoadIdentity having run first:
//
//   - anonymous callers are redirected to the login page
//   - authenticated callers lacking the role get 403 Forbidden
//   - everyone else reaches the handler
//
// The check is repeated on every request; nothing about the decision is
// remembered in the session.
func RequireRole(required model.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := IdentityFrom(c)
			if !id.Authenticated() {
				return c.Redirect(http.StatusSeeOther, LoginPath)
			}
			if !id.Allows(required) {
				return echo.NewHTTPError(http.StatusForbidden)
			}
			return next(c)
		}
	}
}

// RequireAuth admits any logged-in user.
func RequireAuth() echo.MiddlewareFunc { return RequireRole(model.RoleUser) }

// RequireAdmin admits only administrators.
func RequireAdmin() echo.MiddlewareFunc { return RequireRole(model.RoleAdmin) }
