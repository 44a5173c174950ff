package middleware // declare the middleware package; contains reusable HTTP middleware functions

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/bloodlink/blood-donor-backend/internal/utils"
)

// Context keys set by JWTAuth.
const (
	CtxUserID    = "user_id"
	CtxUserName  = "user_name"
	CtxUserEmail = "user_email"
)

// JWTAuth returns an Echo middleware that validates a Bearer access token
// and stores the caller's identity in the context under CtxUserID (uint64),
// CtxUserName and CtxUserEmail.  A missing or malformed Authorization
// header is answered with 401; a token that fails verification or has
// expired with 403.
func JWTAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get(echo.HeaderAuthorization)
			raw, ok := strings.CutPrefix(auth, "Bearer ")
			if !ok || strings.TrimSpace(raw) == "" {
				return c.JSON(http.StatusUnauthorized, echo.Map{"message": "Access denied. No token provided."})
			}

			id, err := utils.ParseAccessToken(secret, strings.TrimSpace(raw))
			if err != nil {
				return c.JSON(http.StatusForbidden, echo.Map{"message": "Invalid or expired token."})
			}

			c.Set(CtxUserID, id.ID)
			c.Set(CtxUserName, id.Name)
			c.Set(CtxUserEmail, id.Email)
			return next(c)
		}
	}
}
