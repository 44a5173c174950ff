package handler // handler defines http handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/bloodlink/blood-donor-backend/internal/middleware"
	"github.com/bloodlink/blood-donor-backend/internal/repository"
	"github.com/bloodlink/blood-donor-backend/internal/service"
)

// dbTimeout bounds the database work of a single request.
const dbTimeout = 5 * time.Second

func dbCtx(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), dbTimeout)
}

// getUserID extracts the authenticated user's id set by JWTAuth.
func getUserID(c echo.Context) (uint64, error) {
	switch t := c.Get(middleware.CtxUserID).(type) {
	case uint64:
		if t != 0 {
			return t, nil
		}
	case string:
		if n, err := strconv.ParseUint(t, 10, 64); err == nil && n != 0 {
			return n, nil
		}
	}
	return 0, errors.New("invalid user_id in context")
}

// requestID parses the :id path parameter.
func requestID(c echo.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	return id, err == nil && id != 0
}

func msg(c echo.Context, status int, message string) error {
	return c.JSON(status, echo.Map{"message": message})
}

// respondError maps service and repository errors to HTTP responses.  The
// detail of unexpected errors is logged, never sent.
func respondError(c echo.Context, err error, op string) error {
	var ve *service.ValidationError
	switch {
	case errors.As(err, &ve):
		return msg(c, http.StatusBadRequest, ve.Msg)
	case errors.Is(err, repository.ErrNotFound):
		return msg(c, http.StatusNotFound, "Request not found.")
	case errors.Is(err, repository.ErrForbidden):
		return msg(c, http.StatusForbidden, "You are not allowed to perform this action.")
	case errors.Is(err, repository.ErrConflict):
		return msg(c, http.StatusBadRequest, conflictMessage(err))
	case errors.Is(err, repository.ErrInvalidToken):
		return msg(c, http.StatusBadRequest, "Invalid or expired token.")
	}
	slog.Error(op+" failed", "error", err, "request_id", c.Response().Header().Get(echo.HeaderXRequestID))
	return msg(c, http.StatusInternalServerError, "Server error")
}

// conflictMessage turns "conflict: request is no longer active" into
// "Request is no longer active."
func conflictMessage(err error) string {
	s := strings.TrimPrefix(err.Error(), repository.ErrConflict.Error())
	s = strings.TrimLeft(s, ": ")
	if s == "" {
		return "The request is not in a state that allows this action."
	}
	return strings.ToUpper(s[:1]) + s[1:] + "."
}

// HTTPErrorHandler renders errors that escape handlers (unknown routes,
// bind failures, panics recovered by echo) as {"message": ...}.  5xx
// detail is hidden from clients.
func HTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	status := http.StatusInternalServerError
	message := "Server error"
	var he *echo.HTTPError
	if errors.As(err, &he) {
		status = he.Code
		if status < http.StatusInternalServerError {
			if s, ok := he.Message.(string); ok {
				message = s
			} else {
				message = http.StatusText(status)
			}
		}
	}
	if status >= http.StatusInternalServerError {
		slog.Error("unhandled error", "error", err, "path", c.Request().URL.Path)
	}
	if c.Request().Method == http.MethodHead {
		err = c.NoContent(status)
	} else {
		err = msg(c, status, message)
	}
	if err != nil {
		slog.Error("write error response", "error", err)
	}
}
