package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/members-area/internal/view"
)

var errorMessages = map[int]string{
	http.StatusForbidden:       "You do not have access to this page.",
	http.StatusNotFound:        "The page you are looking for does not exist.",
	http.StatusTooManyRequests: "Too many attempts. Try again later.",
}

const genericErrorMessage = "Something went wrong. Please try again later."

// HTTPErrorHandler renders the error page.  *echo.HTTPError keeps its status;
// any other error is a 500 whose cause is logged but never shown.
func (h *Handler) HTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
	}

	if code >= http.StatusInternalServerError {
		h.reqLog(c).Error("request failed", "status", code, "error", err)
	}

	msg, ok := errorMessages[code]
	if !ok {
		msg = genericErrorMessage
		if code < http.StatusInternalServerError {
			msg = http.StatusText(code) + "."
		}
	}

	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(code)
		return
	}

	p := page(c, http.StatusText(code))
	p.Status = code
	p.Message = msg
	if rerr := c.Render(code, view.Error, p); rerr != nil {
		h.reqLog(c).Error("render error page", "error", rerr)
		_ = c.String(code, msg)
	}
}
