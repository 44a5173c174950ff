package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/bloodlink/blood-donor-backend/internal/repository"
	"github.com/bloodlink/blood-donor-backend/internal/service"
)

// RequestHandler serves the authenticated blood request endpoints.  State
// changes go through the RequestService; listings read the repository.
type RequestHandler struct {
	Service  *service.RequestService
	Requests *repository.RequestRepo

	// OnChange, when set, runs after every successful create or state
	// change; the server uses it to purge the cached public listing.
	OnChange func(ctx context.Context)
}

func NewRequestHandler(svc *service.RequestService, requests *repository.RequestRepo) *RequestHandler {
	if svc == nil || requests == nil {
		panic("nil dependency passed to NewRequestHandler")
	}
	return &RequestHandler{Service: svc, Requests: requests}
}

type createRequestReq struct {
	BloodTypeID uint8   `json:"blood_type_id" validate:"required"`
	City        string  `json:"city" validate:"required,max=100"`
	Reason      *string `json:"reason" validate:"omitempty,max=500"`
	DateNeeded  string  `json:"date_needed" validate:"omitempty,datetime=2006-01-02"`
}

// Create handles POST /api/requests.
func (h *RequestHandler) Create(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return msg(c, http.StatusUnauthorized, "Access denied.")
	}
	var req createRequestReq
	if ok, err := bindValid(c, &req); !ok {
		return err
	}
	if strings.TrimSpace(req.City) == "" {
		return msg(c, http.StatusBadRequest, "city: is required")
	}
	in := service.NewRequest{RecipientID: uid, BloodTypeID: req.BloodTypeID, City: req.City}
	if req.Reason != nil {
		if r := strings.TrimSpace(*req.Reason); r != "" {
			in.Reason = &r
		}
	}
	if req.DateNeeded != "" {
		d, _ := time.Parse(time.DateOnly, req.DateNeeded)
		in.DateNeeded = &d
	}

	ctx, cancel := dbCtx(c)
	defer cancel()
	res, err := h.Service.Create(ctx, in)
	if err != nil {
		return respondError(c, err, "create request")
	}
	h.changed(ctx)
	return c.JSON(http.StatusCreated, echo.Map{
		"message":         "Blood request created successfully!",
		"request_id":      res.RequestID,
		"donors_notified": res.DonorsNotified,
	})
}

// MyRequests handles GET /api/requests/myrequests.
func (h *RequestHandler) MyRequests(c echo.Context) error {
	return h.list(c, "my requests", h.Requests.Mine)
}

// Available handles GET /api/requests/available.
func (h *RequestHandler) Available(c echo.Context) error {
	return h.list(c, "available requests", h.Requests.Available)
}

// Accepted handles GET /api/requests/accepted.
func (h *RequestHandler) Accepted(c echo.Context) error {
	return h.list(c, "accepted requests", h.Requests.Accepted)
}

func (h *RequestHandler) list(c echo.Context, op string, fetch func(ctx context.Context, userID uint64) ([]repository.RequestView, error)) error {
	uid, err := getUserID(c)
	if err != nil {
		return msg(c, http.StatusUnauthorized, "Access denied.")
	}
	ctx, cancel := dbCtx(c)
	defer cancel()
	out, err := fetch(ctx, uid)
	if err != nil {
		return respondError(c, err, op)
	}
	return c.JSON(http.StatusOK, out)
}

// Get handles GET /api/requests/:id.
func (h *RequestHandler) Get(c echo.Context) error {
	id, ok := requestID(c)
	if !ok {
		return msg(c, http.StatusBadRequest, "Invalid request id.")
	}
	ctx, cancel := dbCtx(c)
	defer cancel()
	v, err := h.Requests.Get(ctx, id)
	if err != nil {
		return respondError(c, err, "get request")
	}
	return c.JSON(http.StatusOK, v)
}

// Accept handles POST /api/requests/:id/accept.
func (h *RequestHandler) Accept(c echo.Context) error {
	return h.transition(c, "accept request", h.Service.Accept,
		"Request accepted. The recipient has been notified.")
}

// CancelAcceptance handles POST /api/requests/:id/cancel-acceptance.
func (h *RequestHandler) CancelAcceptance(c echo.Context) error {
	return h.transition(c, "cancel acceptance", h.Service.CancelAcceptance,
		"Your acceptance has been cancelled. The request is active again.")
}

// CancelDonor handles POST /api/requests/:id/cancel-donor.
func (h *RequestHandler) CancelDonor(c echo.Context) error {
	return h.transition(c, "cancel donor", h.Service.CancelDonor,
		"The donor has been cancelled. Your request is active again.")
}

// Fulfill handles POST /api/requests/:id/fulfill.
func (h *RequestHandler) Fulfill(c echo.Context) error {
	return h.transition(c, "fulfill request", h.Service.Fulfill,
		"Request marked as fulfilled. Thank you!")
}

// Delete handles DELETE /api/requests/:id.
func (h *RequestHandler) Delete(c echo.Context) error {
	return h.transition(c, "delete request", h.Service.Delete, "Request deleted successfully.")
}

func (h *RequestHandler) transition(c echo.Context, op string, fn func(ctx context.Context, requestID, userID uint64) error, ok string) error {
	uid, err := getUserID(c)
	if err != nil {
		return msg(c, http.StatusUnauthorized, "Access denied.")
	}
	id, valid := requestID(c)
	if !valid {
		return msg(c, http.StatusBadRequest, "Invalid request id.")
	}
	ctx, cancel := dbCtx(c)
	defer cancel()
	if err := fn(ctx, id, uid); err != nil {
		return respondError(c, err, op)
	}
	h.changed(ctx)
	return msg(c, http.StatusOK, ok)
}

func (h *RequestHandler) changed(ctx context.Context) {
	if h.OnChange != nil {
		h.OnChange(ctx)
	}
}
