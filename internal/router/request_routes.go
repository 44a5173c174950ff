package router

import (
	"github.com/labstack/echo/v4"

	"github.com/bloodlink/blood-donor-backend/internal/handler"
	"github.com/bloodlink/blood-donor-backend/internal/middleware"
)

// RegisterRequests registers the blood request lifecycle and donation
// history endpoints.  All of them require a valid bearer token; ownership
// and state checks happen in the service.
func RegisterRequests(e *echo.Echo, h *handler.RequestHandler, d *handler.DonationHandler, jwtSecret string) {
	auth := middleware.JWTAuth(jwtSecret)
	// per-route so unknown /api paths still fall through to 404
	g := e.Group("/api")

	g.POST("/requests", h.Create, auth)
	// static segments take precedence over /requests/:id
	g.GET("/requests/myrequests", h.MyRequests, auth)
	g.GET("/requests/available", h.Available, auth)
	g.GET("/requests/accepted", h.Accepted, auth)
	g.GET("/requests/:id", h.Get, auth)
	g.DELETE("/requests/:id", h.Delete, auth)

	g.POST("/requests/:id/accept", h.Accept, auth)
	g.POST("/requests/:id/cancel-acceptance", h.CancelAcceptance, auth)
	g.POST("/requests/:id/cancel-donor", h.CancelDonor, auth)
	g.POST("/requests/:id/fulfill", h.Fulfill, auth)

	g.GET("/donations/myhistory", d.MyHistory, auth)
}
