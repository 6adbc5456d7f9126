package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/members-area/internal/view"
)

// Home greets the caller by name when logged in.
func (h *Handler) Home(c echo.Context) error {
	return c.Render(http.StatusOK, view.Home, page(c, "Home"))
}

// Members shows the members-only page with a random image.
func (h *Handler) Members(c echo.Context) error {
	p := page(c, "Members")
	p.Image = h.pickImage()
	return c.Render(http.StatusOK, view.Members, p)
}
