package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/bloodlink/blood-donor-backend/internal/repository"
)

// PublicHandler serves unauthenticated read-only endpoints used by the
// landing and registration pages.
type PublicHandler struct {
	BloodTypes *repository.BloodTypeRepo
	Requests   *repository.RequestRepo
}

func NewPublicHandler(bt *repository.BloodTypeRepo, rr *repository.RequestRepo) *PublicHandler {
	return &PublicHandler{BloodTypes: bt, Requests: rr}
}

// ListBloodTypes handles GET /api/bloodtypes.
func (h *PublicHandler) ListBloodTypes(c echo.Context) error {
	ctx, cancel := dbCtx(c)
	defer cancel()
	out, err := h.BloodTypes.List(ctx)
	if err != nil {
		return respondError(c, err, "list blood types")
	}
	return c.JSON(http.StatusOK, out)
}

// PublicRequests handles GET /api/requests/public: the latest active
// requests platform-wide, without contact details.
func (h *PublicHandler) PublicRequests(c echo.Context) error {
	ctx, cancel := dbCtx(c)
	defer cancel()
	out, err := h.Requests.Public(ctx)
	if err != nil {
		return respondError(c, err, "public requests")
	}
	return c.JSON(http.StatusOK, out)
}
