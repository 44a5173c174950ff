package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/bloodlink/blood-donor-backend/internal/config"
	"github.com/bloodlink/blood-donor-backend/internal/eligibility"
	"github.com/bloodlink/blood-donor-backend/internal/queue"
	"github.com/bloodlink/blood-donor-backend/internal/repository"
	"github.com/bloodlink/blood-donor-backend/internal/service"
	"github.com/bloodlink/blood-donor-backend/internal/utils"
)

// ResetTokenTTL is how long a password reset link stays valid.
const ResetTokenTTL = 15 * time.Minute

// AuthHandler bundles dependencies for account endpoints.
type AuthHandler struct {
	Cfg        config.Config
	Users      *repository.UserRepo
	Dispatcher *service.Dispatcher

	// now is in UTC so profile eligibility uses the same days as matching
	now func() time.Time
}

func NewAuthHandler(cfg config.Config, u *repository.UserRepo, d *service.Dispatcher) *AuthHandler {
	return &AuthHandler{Cfg: cfg, Users: u, Dispatcher: d, now: func() time.Time { return time.Now().UTC() }}
}

// ----- DTOs -----

type registerReq struct {
	Name         string `json:"name" validate:"required,max=100"`
	Email        string `json:"email" validate:"required,email,max=255"`
	Password     string `json:"password" validate:"required,min=6,max=72"`
	DateOfBirth  string `json:"date_of_birth" validate:"required,datetime=2006-01-02"`
	BloodTypeID  uint8  `json:"blood_type_id" validate:"required,min=1,max=8"`
	ContactPhone string `json:"contact_phone" validate:"required,bdphone"`
	City         string `json:"city" validate:"required,max=100"`
}

type loginReq struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type forgotReq struct {
	Email string `json:"email" validate:"required,email"`
}

type resetReq struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

type profileResp struct {
	ID               uint64  `json:"user_id"`
	Name             string  `json:"name"`
	Email            string  `json:"email"`
	DateOfBirth      string  `json:"date_of_birth"`
	BloodTypeID      uint8   `json:"blood_type_id"`
	BloodType        string  `json:"blood_type"`
	ContactPhone     string  `json:"contact_phone"`
	City             string  `json:"city"`
	LastDonationDate *string `json:"last_donation_date"`
	IsEligible       bool    `json:"is_eligible"`
	NextEligibleDate *string `json:"next_eligible_date"`
}

// bindValid binds and validates a request body, writing the 400 itself.
// It returns false when the handler should stop.
func bindValid(c echo.Context, dst interface{}) (bool, error) {
	if err := c.Bind(dst); err != nil {
		return false, msg(c, http.StatusBadRequest, "Invalid request body.")
	}
	if err := c.Validate(dst); err != nil {
		return false, msg(c, http.StatusBadRequest, err.Error())
	}
	return true, nil
}

// Register creates an unverified account and emails a verification link.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if ok, err := bindValid(c, &req); !ok {
		return err
	}
	dob, _ := time.Parse(time.DateOnly, req.DateOfBirth)
	if !dob.Before(h.now()) {
		return msg(c, http.StatusBadRequest, "date_of_birth: must be in the past")
	}
	token, err := utils.NewOpaqueToken()
	if err != nil {
		return respondError(c, err, "register")
	}

	ctx, cancel := dbCtx(c)
	defer cancel()

	_, err = h.Users.Create(ctx, repository.NewUser{
		Name:              req.Name,
		Email:             req.Email,
		Password:          req.Password,
		DateOfBirth:       dob,
		BloodTypeID:       req.BloodTypeID,
		ContactPhone:      req.ContactPhone,
		City:              req.City,
		VerificationToken: token,
	}, h.Cfg.BcryptCost)
	if err != nil {
		var de *repository.DuplicateError
		if errors.As(err, &de) {
			if de.Field == "contact_phone" {
				return msg(c, http.StatusConflict, "Phone number already registered.")
			}
			return msg(c, http.StatusConflict, "Email already exists")
		}
		return respondError(c, err, "register")
	}

	h.Dispatcher.Dispatch(c.Request().Context(), queue.MailJob{
		Kind: queue.MailVerification,
		To:   strings.ToLower(strings.TrimSpace(req.Email)),
		Name: strings.TrimSpace(req.Name),
		Link: h.link("/verify-email.html", token),
	})
	return msg(c, http.StatusCreated, "Registration successful! Please check your email to verify your account.")
}

// VerifyEmail redeems the token from the verification link.
func (h *AuthHandler) VerifyEmail(c echo.Context) error {
	token := strings.TrimSpace(c.QueryParam("token"))
	if token == "" {
		return msg(c, http.StatusBadRequest, "Verification token is required.")
	}
	ctx, cancel := dbCtx(c)
	defer cancel()
	if err := h.Users.Verify(ctx, token); err != nil {
		if errors.Is(err, repository.ErrInvalidToken) {
			return msg(c, http.StatusBadRequest, "Invalid or expired verification link.")
		}
		return respondError(c, err, "verify email")
	}
	return msg(c, http.StatusOK, "Email verified successfully. You can now log in.")
}

// Login checks credentials and returns a bearer token.  Unverified accounts
// are refused with 403.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if ok, err := bindValid(c, &req); !ok {
		return err
	}
	ctx, cancel := dbCtx(c)
	defer cancel()

	u, err := h.Users.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return msg(c, http.StatusBadRequest, "Invalid email or password")
		}
		return respondError(c, err, "login")
	}
	if !utils.VerifyPassword(u.PasswordHash, req.Password) {
		return msg(c, http.StatusBadRequest, "Invalid email or password")
	}
	if !u.IsVerified {
		return msg(c, http.StatusForbidden, "Please verify your email before logging in.")
	}

	access, err := utils.NewAccessToken(h.Cfg.JWTSecret, utils.Identity{ID: u.ID, Name: u.Name, Email: u.Email}, h.Cfg.JWTTTL)
	if err != nil {
		return respondError(c, err, "issue token")
	}
	return c.JSON(http.StatusOK, echo.Map{"token": access.Token})
}

// ForgotPassword issues a 15-minute reset token and emails it.  The
// response is the same whether or not the address is registered.
func (h *AuthHandler) ForgotPassword(c echo.Context) error {
	var req forgotReq
	if ok, err := bindValid(c, &req); !ok {
		return err
	}
	const reply = "If an account with that email exists, a password reset link has been sent."

	ctx, cancel := dbCtx(c)
	defer cancel()
	u, err := h.Users.GetByEmail(ctx, req.Email)
	if errors.Is(err, repository.ErrNotFound) {
		return msg(c, http.StatusOK, reply)
	}
	if err != nil {
		return respondError(c, err, "forgot password")
	}
	token, err := utils.NewOpaqueToken()
	if err != nil {
		return respondError(c, err, "forgot password")
	}
	if err := h.Users.SetResetToken(ctx, u.ID, token, h.now().Add(ResetTokenTTL)); err != nil {
		return respondError(c, err, "forgot password")
	}
	slog.Info("password reset requested", "user_id", u.ID)
	h.Dispatcher.Dispatch(c.Request().Context(), queue.MailJob{
		Kind: queue.MailPasswordReset,
		To:   u.Email,
		Name: u.Name,
		Link: h.link("/reset-password.html", token),
	})
	return msg(c, http.StatusOK, reply)
}

// ResetPassword stores a new password for the holder of a valid token.
func (h *AuthHandler) ResetPassword(c echo.Context) error {
	var req resetReq
	if ok, err := bindValid(c, &req); !ok {
		return err
	}
	ctx, cancel := dbCtx(c)
	defer cancel()
	if err := h.Users.ResetPassword(ctx, strings.TrimSpace(req.Token), req.Password, h.Cfg.BcryptCost, h.now()); err != nil {
		if errors.Is(err, repository.ErrInvalidToken) {
			return msg(c, http.StatusBadRequest, "Invalid or expired reset link.")
		}
		return respondError(c, err, "reset password")
	}
	return msg(c, http.StatusOK, "Password has been reset. You can now log in.")
}

// Profile returns the caller's account along with donation eligibility.
func (h *AuthHandler) Profile(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return msg(c, http.StatusUnauthorized, "Access denied.")
	}
	ctx, cancel := dbCtx(c)
	defer cancel()
	u, err := h.Users.GetByID(ctx, uid)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return msg(c, http.StatusNotFound, "User not found")
		}
		return respondError(c, err, "profile")
	}

	resp := profileResp{
		ID:           u.ID,
		Name:         u.Name,
		Email:        u.Email,
		DateOfBirth:  u.DateOfBirth.Format(time.DateOnly),
		BloodTypeID:  u.BloodTypeID,
		BloodType:    u.BloodType,
		ContactPhone: u.ContactPhone,
		City:         u.City,
		IsEligible:   eligibility.IsEligible(u.LastDonationDate, h.now()),
	}
	if u.LastDonationDate != nil {
		last := u.LastDonationDate.Format(time.DateOnly)
		resp.LastDonationDate = &last
	}
	if next := eligibility.NextEligibleDate(u.LastDonationDate); next != nil {
		s := next.Format(time.DateOnly)
		resp.NextEligibleDate = &s
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *AuthHandler) link(page, token string) string {
	return h.Cfg.FrontendURL + page + "?token=" + url.QueryEscape(token)
}
