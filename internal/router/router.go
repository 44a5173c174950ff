package router // package router defines how HTTP routes are registered for the API

import (
	"database/sql"

	"github.com/labstack/echo/v4"

	"github.com/bloodlink/blood-donor-backend/internal/handler"
	"github.com/bloodlink/blood-donor-backend/internal/middleware"
)

// RegisterRoutes registers the health check used by load balancers.
func RegisterRoutes(e *echo.Echo, db *sql.DB) {
	e.GET("/healthz", handler.Health(db))
}

// RegisterAuth registers the account endpoints.  Credential endpoints sit
// behind limiter, a stricter token bucket than the rest of the API.  The
// profile requires a bearer token.  Middleware is attached per route: a
// group created with middleware would also claim every unknown /api path.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string, limiter echo.MiddlewareFunc) {
	g := e.Group("/api")
	g.POST("/register", a.Register, limiter)
	g.POST("/login", a.Login, limiter)
	g.POST("/forgot-password", a.ForgotPassword, limiter)
	g.POST("/reset-password", a.ResetPassword, limiter)
	g.GET("/verify-email", a.VerifyEmail)

	g.GET("/profile", a.Profile, middleware.JWTAuth(jwtSecret))
}

// RegisterPublic registers the unauthenticated listings.  cache serves
// repeated reads from Redis.
func RegisterPublic(e *echo.Echo, p *handler.PublicHandler, cache echo.MiddlewareFunc) {
	e.GET("/api/bloodtypes", p.ListBloodTypes, cache)
	e.GET("/api/requests/public", p.PublicRequests, cache)
}
