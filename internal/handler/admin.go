package handler

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/members-area/internal/middleware"
	"github.com/iliyamo/members-area/internal/model"
	"github.com/iliyamo/members-area/internal/queue"
	"github.com/iliyamo/members-area/internal/view"
)

// Admin lists every user.
func (h *Handler) Admin(c echo.Context) error {
	ctx, cancel := h.storeCtx(c)
	defer cancel()

	users, err := h.Users.List(ctx)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}
	p := page(c, "Admin")
	p.Users = users
	return c.Render(http.StatusOK, view.Admin, p)
}

// Promote grants the admin role to the user in the :id path parameter.
func (h *Handler) Promote(c echo.Context) error { return h.setRole(c, model.RoleAdmin) }

// Demote sets the user in the :id path parameter back to the user role.
func (h *Handler) Demote(c echo.Context) error { return h.setRole(c, model.RoleUser) }

// setRole stores the new role and rewrites the target's live sessions so
// their next request is authorized against it.  An unknown id is a server
// error.
func (h *Handler) setRole(c echo.Context, role model.Role) error {
	id := c.Param("id")

	ctx, cancel := h.storeCtx(c)
	defer cancel()

	u, err := h.Users.UpdateRole(ctx, id, role)
	if err != nil {
		return fmt.Errorf("set role of %q: %w", id, err)
	}
	if err := h.Sessions.UpdateIdentity(ctx, u); err != nil {
		return fmt.Errorf("refresh sessions of %q: %w", id, err)
	}

	actor := middleware.IdentityFrom(c).Snapshot.ID
	h.reqLog(c).Info("role changed", "user_id", u.ID, "role", u.Role, "actor_id", actor)
	h.publish(c, queue.RoleChanged(u, actor))

	return c.Redirect(http.StatusSeeOther, "/admin")
}
