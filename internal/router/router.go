package router // package router defines how HTTP routes are registered for the site

import (
	"github.com/labstack/echo/v4" // import the Echo web framework to handle routing

	"github.com/iliyamo/members-area/internal/handler"
	"github.com/iliyamo/members-area/internal/middleware"
	"github.com/iliyamo/members-area/internal/view"
)

// RegisterRoutes registers routes that need no session: the health check and
// the static assets.
func RegisterRoutes(e *echo.Echo) {
	// Used by load balancers to verify that the process is up.
	e.GET("/healthz", handler.Health)
	e.StaticFS("/static", view.Static())
}

// RegisterPages registers every page of the site.  The identity loader runs
// for all of them; guards are attached per route so the access rule of each
// path is visible here.  limiter wraps the credential submissions.
func RegisterPages(e *echo.Echo, h *handler.Handler, sessions middleware.SessionResolver, limiter echo.MiddlewareFunc) {
	e.Use(middleware.LoadIdentity(sessions))

	e.GET("/", h.Home)
	e.GET("/signup", h.SignupForm)
	e.POST("/signup", h.Signup, limiter)
	e.GET("/login", h.LoginForm)
	e.POST("/login", h.Login, limiter)
	e.GET("/logout", h.Logout)

	e.GET("/members", h.Members, middleware.RequireAuth())

	// Admin-only pages.  Promote and demote act on the :id user.
	admin := middleware.RequireAdmin()
	e.GET("/admin", h.Admin, admin)
	e.GET("/promote/:id", h.Promote, admin)
	e.GET("/demote/:id", h.Demote, admin)
}
