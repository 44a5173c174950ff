package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/bloodlink/blood-donor-backend/internal/repository"
)

type DonationHandler struct {
	Donations *repository.DonationRepo
}

func NewDonationHandler(d *repository.DonationRepo) *DonationHandler {
	return &DonationHandler{Donations: d}
}

// MyHistory handles GET /api/donations/myhistory.
func (h *DonationHandler) MyHistory(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return msg(c, http.StatusUnauthorized, "Access denied.")
	}
	ctx, cancel := dbCtx(c)
	defer cancel()
	out, err := h.Donations.History(ctx, uid)
	if err != nil {
		return respondError(c, err, "donation history")
	}
	return c.JSON(http.StatusOK, out)
}
