// Package service implements the blood request lifecycle: creation with
// donor matching, donor acceptance and cancellation, fulfillment and
// deletion.  Every transition runs in a single transaction holding the
// request's row lock; emails go out after commit.
package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bloodlink/blood-donor-backend/internal/database"
	"github.com/bloodlink/blood-donor-backend/internal/model"
	"github.com/bloodlink/blood-donor-backend/internal/queue"
	"github.com/bloodlink/blood-donor-backend/internal/repository"
)

// ErrValidation marks input the service rejected.  Use errors.As with
// *ValidationError to get the message.
var ErrValidation = errors.New("validation failed")

type ValidationError struct{ Msg string }

func (e *ValidationError) Error() string        { return e.Msg }
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// RequestService owns every mutating request transition.
type RequestService struct {
	db            *sql.DB
	requests      *repository.RequestRepo
	notifications *repository.NotificationRepo
	donations     *repository.DonationRepo
	users         *repository.UserRepo
	bloodTypes    *repository.BloodTypeRepo
	matcher       Matcher
	dispatcher    *Dispatcher
	frontendURL   string
	now           func() time.Time
}

func NewRequestService(db *sql.DB, dispatcher *Dispatcher, frontendURL string) *RequestService {
	return &RequestService{
		db:            db,
		requests:      repository.NewRequestRepo(db),
		notifications: repository.NewNotificationRepo(db),
		donations:     repository.NewDonationRepo(db),
		users:         repository.NewUserRepo(db),
		bloodTypes:    repository.NewBloodTypeRepo(db),
		dispatcher:    dispatcher,
		frontendURL:   frontendURL,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// NewRequest is the input of Create.
type NewRequest struct {
	RecipientID uint64
	BloodTypeID uint8
	City        string
	Reason      *string
	DateNeeded  *time.Time
}

// CreateResult reports the new request and how many donors were notified.
type CreateResult struct {
	RequestID      uint64
	DonorsNotified int
}

// Create inserts an active request, matches eligible donors and records a
// 'sent' notification for each, all in one transaction.  Donor emails are
// dispatched after commit.
func (s *RequestService) Create(ctx context.Context, in NewRequest) (CreateResult, error) {
	now := s.now()
	req := model.BloodRequest{
		RecipientID:   in.RecipientID,
		BloodTypeID:   in.BloodTypeID,
		City:          in.City,
		Reason:        in.Reason,
		DateRequested: now,
		DateNeeded:    in.DateNeeded,
	}
	var (
		donors    []Donor
		bloodType string
	)
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		var err error
		bloodType, err = s.bloodTypes.LabelTx(ctx, tx, in.BloodTypeID)
		if errors.Is(err, repository.ErrNotFound) {
			return &ValidationError{Msg: "Invalid blood type"}
		}
		if err != nil {
			return err
		}
		if err := s.requests.CreateTx(ctx, tx, &req); err != nil {
			return fmt.Errorf("insert request: %w", err)
		}
		donors, err = s.matcher.FindEligibleDonors(ctx, tx, req.City, req.BloodTypeID, req.RecipientID, now)
		if err != nil {
			return fmt.Errorf("match donors: %w", err)
		}
		ids := make([]uint64, len(donors))
		for i, d := range donors {
			ids[i] = d.ID
		}
		return s.notifications.UpsertSentTx(ctx, tx, req.ID, ids)
	})
	if err != nil {
		return CreateResult{}, err
	}

	slog.Info("blood request created", "request_id", req.ID, "recipient_id", req.RecipientID, "donors_notified", len(donors))
	jobs := make([]queue.MailJob, 0, len(donors))
	for _, d := range donors {
		job := queue.MailJob{
			Kind:      queue.MailDonorMatch,
			To:        d.Email,
			Name:      d.Name,
			Link:      s.link("/dashboard.html"),
			RequestID: req.ID,
			BloodType: bloodType,
			City:      req.City,
		}
		if req.Reason != nil {
			job.Reason = *req.Reason
		}
		if req.DateNeeded != nil {
			job.DateNeeded = req.DateNeeded.Format(time.DateOnly)
		}
		jobs = append(jobs, job)
	}
	s.dispatcher.Dispatch(ctx, jobs...)
	return CreateResult{RequestID: req.ID, DonorsNotified: len(donors)}, nil
}

// Accept puts an active request on hold for the donor.  A second donor
// racing for the same request waits on the row lock and then fails with
// ErrConflict.
func (s *RequestService) Accept(ctx context.Context, requestID, donorID uint64) error {
	var contacts map[uint64]repository.Contact
	var req model.BloodRequest
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		var err error
		req, err = s.requests.LockTx(ctx, tx, requestID)
		if err != nil {
			return err
		}
		if req.RecipientID == donorID {
			return repository.ErrForbidden
		}
		if req.Status != model.RequestActive {
			return fmt.Errorf("%w: request is no longer active", repository.ErrConflict)
		}
		if err := s.requests.UpdateStatusTx(ctx, tx, requestID, model.RequestOnHold); err != nil {
			return err
		}
		if err := s.notifications.UpsertTx(ctx, tx, requestID, donorID, model.NotificationAccepted); err != nil {
			return err
		}
		contacts, err = s.users.ContactsTx(ctx, tx, req.RecipientID, donorID)
		return err
	})
	if err != nil {
		return err
	}
	slog.Info("request accepted", "request_id", requestID, "donor_id", donorID)
	recipient, donor := contacts[req.RecipientID], contacts[donorID]
	s.notify(ctx, recipient, queue.MailJob{
		Kind:             queue.MailRequestAccepted,
		RequestID:        requestID,
		CounterpartName:  donor.Name,
		CounterpartPhone: donor.Phone,
	})
	return nil
}

// CancelAcceptance lets the accepting donor withdraw; the request becomes
// active again.
func (s *RequestService) CancelAcceptance(ctx context.Context, requestID, donorID uint64) error {
	var contacts map[uint64]repository.Contact
	var req model.BloodRequest
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		var err error
		req, err = s.requests.LockTx(ctx, tx, requestID)
		if err != nil {
			return err
		}
		status, err := s.notifications.StatusTx(ctx, tx, requestID, donorID)
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: you have not accepted this request", repository.ErrConflict)
		}
		if err != nil {
			return err
		}
		if status != model.NotificationAccepted || req.Status != model.RequestOnHold {
			return fmt.Errorf("%w: you have not accepted this request", repository.ErrConflict)
		}
		if err := s.notifications.UpdateStatusTx(ctx, tx, requestID, donorID, model.NotificationCancelledByDonor); err != nil {
			return err
		}
		if err := s.requests.UpdateStatusTx(ctx, tx, requestID, model.RequestActive); err != nil {
			return err
		}
		contacts, err = s.users.ContactsTx(ctx, tx, req.RecipientID, donorID)
		return err
	})
	if err != nil {
		return err
	}
	slog.Info("acceptance cancelled by donor", "request_id", requestID, "donor_id", donorID)
	s.notify(ctx, contacts[req.RecipientID], queue.MailJob{
		Kind:            queue.MailAcceptanceCancelled,
		RequestID:       requestID,
		CounterpartName: contacts[donorID].Name,
	})
	return nil
}

// CancelDonor lets the recipient release the accepting donor.  A missing
// accepted notification is logged and tolerated.
func (s *RequestService) CancelDonor(ctx context.Context, requestID, recipientID uint64) error {
	var (
		contacts map[uint64]repository.Contact
		donorID  uint64
	)
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		req, err := s.requests.LockTx(ctx, tx, requestID)
		if err != nil {
			return err
		}
		if req.RecipientID != recipientID {
			return repository.ErrForbidden
		}
		if req.Status != model.RequestOnHold {
			return fmt.Errorf("%w: request is not on hold", repository.ErrConflict)
		}
		donorID, err = s.notifications.FindAcceptedTx(ctx, tx, requestID)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			slog.Warn("on-hold request has no accepted notification", "request_id", requestID)
		case err != nil:
			return err
		default:
			if err := s.notifications.UpdateStatusTx(ctx, tx, requestID, donorID, model.NotificationCancelledByRecipient); err != nil {
				return err
			}
		}
		if err := s.requests.UpdateStatusTx(ctx, tx, requestID, model.RequestActive); err != nil {
			return err
		}
		if donorID == 0 {
			return nil
		}
		contacts, err = s.users.ContactsTx(ctx, tx, recipientID, donorID)
		return err
	})
	if err != nil {
		return err
	}
	slog.Info("donor cancelled by recipient", "request_id", requestID, "donor_id", donorID)
	if donorID != 0 {
		s.notify(ctx, contacts[donorID], queue.MailJob{
			Kind:            queue.MailDonorCancelled,
			RequestID:       requestID,
			CounterpartName: contacts[recipientID].Name,
		})
	}
	return nil
}

// Fulfill completes an on-hold request.  Atomically the request and the
// accepted notification become fulfilled, a donation is recorded and the
// donor's last donation date moves to today.
func (s *RequestService) Fulfill(ctx context.Context, requestID, recipientID uint64) error {
	today := day(s.now())
	var (
		contacts map[uint64]repository.Contact
		donorID  uint64
	)
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		req, err := s.requests.LockTx(ctx, tx, requestID)
		if err != nil {
			return err
		}
		if req.RecipientID != recipientID {
			return repository.ErrForbidden
		}
		if req.Status != model.RequestOnHold {
			return fmt.Errorf("%w: request is not on hold", repository.ErrConflict)
		}
		donorID, err = s.notifications.FindAcceptedTx(ctx, tx, requestID)
		if err != nil {
			return err
		}
		if err := s.requests.UpdateStatusTx(ctx, tx, requestID, model.RequestFulfilled); err != nil {
			return err
		}
		if err := s.notifications.UpdateStatusTx(ctx, tx, requestID, donorID, model.NotificationFulfilled); err != nil {
			return err
		}
		rid := requestID
		if err := s.donations.CreateTx(ctx, tx, &model.Donation{
			DonorID:      donorID,
			RecipientID:  recipientID,
			RequestID:    &rid,
			DonationDate: today,
		}); err != nil {
			return fmt.Errorf("insert donation: %w", err)
		}
		if err := s.users.UpdateLastDonationTx(ctx, tx, donorID, today); err != nil {
			return err
		}
		contacts, err = s.users.ContactsTx(ctx, tx, recipientID, donorID)
		return err
	})
	if err != nil {
		return err
	}
	slog.Info("request fulfilled", "request_id", requestID, "donor_id", donorID)
	s.notify(ctx, contacts[donorID], queue.MailJob{
		Kind:            queue.MailDonationRecorded,
		RequestID:       requestID,
		CounterpartName: contacts[recipientID].Name,
	})
	return nil
}

// Delete removes an owned request along with its notifications and
// donation records, whatever its status.
func (s *RequestService) Delete(ctx context.Context, requestID, recipientID uint64) error {
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		req, err := s.requests.LockTx(ctx, tx, requestID)
		if err != nil {
			return err
		}
		if req.RecipientID != recipientID {
			return repository.ErrForbidden
		}
		if err := s.notifications.DeleteByRequestTx(ctx, tx, requestID); err != nil {
			return err
		}
		if err := s.donations.DeleteByRequestTx(ctx, tx, requestID); err != nil {
			return err
		}
		return s.requests.DeleteTx(ctx, tx, requestID)
	})
	if err != nil {
		return err
	}
	slog.Info("request deleted", "request_id", requestID, "recipient_id", recipientID)
	return nil
}

func (s *RequestService) notify(ctx context.Context, to repository.Contact, job queue.MailJob) {
	if to.Email == "" {
		return
	}
	job.To, job.Name = to.Email, to.Name
	s.dispatcher.Dispatch(ctx, job)
}

func (s *RequestService) link(path string) string { return s.frontendURL + path }

func day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
