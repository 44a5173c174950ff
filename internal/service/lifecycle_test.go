package service

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bloodlink/blood-donor-backend/internal/queue"
	"github.com/bloodlink/blood-donor-backend/internal/repository"
)

var fixedNow = time.Date(2026, 6, 1, 10, 30, 0, 0, time.UTC)

type fakeNotifier struct {
	mu   sync.Mutex
	jobs []queue.MailJob
	err  error
}

func (f *fakeNotifier) Notify(_ context.Context, jobs ...queue.MailJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs = append(f.jobs, jobs...)
	return f.err
}

func (f *fakeNotifier) sent() []queue.MailJob {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]queue.MailJob(nil), f.jobs...)
}

type harness struct {
	svc      *RequestService
	mock     sqlmock.Sqlmock
	notifier *fakeNotifier
	dispatch *Dispatcher
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	n := &fakeNotifier{}
	d := NewDispatcher(n, time.Second)
	svc := NewRequestService(db, d, "http://front.test")
	svc.now = func() time.Time { return fixedNow }
	t.Cleanup(func() {
		d.Wait()
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return &harness{svc: svc, mock: mock, notifier: n, dispatch: d}
}

var (
	lockSQL        = regexp.QuoteMeta("FROM blood_requests WHERE request_id = ? FOR UPDATE")
	requestStatus  = regexp.QuoteMeta("UPDATE blood_requests SET status = ?")
	notifStatus    = regexp.QuoteMeta("UPDATE request_notifications SET status = ?")
	notifUpsert    = regexp.QuoteMeta("INSERT INTO request_notifications")
	findAccepted   = regexp.QuoteMeta("status = 'accepted' FOR UPDATE")
	contactsSQL    = regexp.QuoteMeta("FROM users WHERE user_id IN (?,?)")
	contactColumns = []string{"user_id", "name", "email", "contact_phone"}
)

func (h *harness) expectLock(id, recipient uint64, status string) {
	h.mock.ExpectQuery(lockSQL).WithArgs(id).WillReturnRows(
		sqlmock.NewRows([]string{"request_id", "recipient_id", "blood_type_id", "city", "reason",
			"date_requested", "date_needed", "status"}).
			AddRow(id, recipient, 1, "Dhaka", nil, fixedNow, nil, status))
}

func (h *harness) expectContacts(recipient, donor uint64) {
	h.mock.ExpectQuery(contactsSQL).WithArgs(recipient, donor).WillReturnRows(
		sqlmock.NewRows(contactColumns).
			AddRow(recipient, "Rahim", "rahim@example.com", "01711111111").
			AddRow(donor, "Karim", "karim@example.com", "01822222222"))
}

func TestCreate_NotifiesEligibleDonorsInCity(t *testing.T) {
	h := newHarness(t)
	reason := "surgery"
	needed := time.Date(2026, 6, 3, 0, 0, 0, 0, time.UTC)

	h.mock.ExpectBegin()
	h.mock.ExpectQuery(regexp.QuoteMeta("SELECT type FROM blood_types")).WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"type"}).AddRow("A+"))
	h.mock.ExpectExec(regexp.QuoteMeta("INSERT INTO blood_requests")).
		WithArgs(1, 1, "Dhaka", reason, fixedNow, needed, "active").
		WillReturnResult(sqlmock.NewResult(3, 1))
	// eligibility cutoff is bound as a parameter: three calendar months back
	h.mock.ExpectQuery(regexp.QuoteMeta("WHERE TRIM(city) = TRIM(?)")).
		WithArgs("Dhaka", 1, 1, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "name", "email"}).
			AddRow(10, "Karim", "karim@example.com").
			AddRow(11, "Sumi", "sumi@example.com"))
	h.mock.ExpectExec(notifUpsert).WithArgs(3, 10, "sent", 3, 11, "sent").
		WillReturnResult(sqlmock.NewResult(0, 2))
	h.mock.ExpectCommit()

	res, err := h.svc.Create(context.Background(), NewRequest{
		RecipientID: 1, BloodTypeID: 1, City: "  Dhaka ", Reason: &reason, DateNeeded: &needed,
	})
	require.NoError(t, err)
	assert.Equal(t, CreateResult{RequestID: 3, DonorsNotified: 2}, res)

	h.dispatch.Wait()
	jobs := h.notifier.sent()
	require.Len(t, jobs, 2)
	for _, j := range jobs {
		assert.Equal(t, queue.MailDonorMatch, j.Kind)
		assert.Equal(t, "A+", j.BloodType)
		assert.Equal(t, "Dhaka", j.City)
		assert.Equal(t, "2026-06-03", j.DateNeeded)
		assert.Equal(t, "http://front.test/dashboard.html", j.Link)
	}
	assert.ElementsMatch(t, []string{"karim@example.com", "sumi@example.com"}, []string{jobs[0].To, jobs[1].To})
}

func TestCreate_NoDonorsStillSucceeds(t *testing.T) {
	h := newHarness(t)
	h.notifier.err = errors.New("smtp down")

	h.mock.ExpectBegin()
	h.mock.ExpectQuery(regexp.QuoteMeta("SELECT type FROM blood_types")).WithArgs(8).
		WillReturnRows(sqlmock.NewRows([]string{"type"}).AddRow("O-"))
	h.mock.ExpectExec(regexp.QuoteMeta("INSERT INTO blood_requests")).WillReturnResult(sqlmock.NewResult(4, 1))
	h.mock.ExpectQuery(regexp.QuoteMeta("WHERE TRIM(city) = TRIM(?)")).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "name", "email"}))
	h.mock.ExpectCommit()

	res, err := h.svc.Create(context.Background(), NewRequest{RecipientID: 1, BloodTypeID: 8, City: "Sylhet"})
	require.NoError(t, err)
	assert.Equal(t, 0, res.DonorsNotified)
	h.dispatch.Wait()
	assert.Empty(t, h.notifier.sent())
}

func TestCreate_MonthEndCutoffClamps(t *testing.T) {
	h := newHarness(t)
	h.svc.now = func() time.Time { return time.Date(2026, 5, 31, 8, 0, 0, 0, time.UTC) }

	h.mock.ExpectBegin()
	h.mock.ExpectQuery(regexp.QuoteMeta("SELECT type FROM blood_types")).WithArgs(8).
		WillReturnRows(sqlmock.NewRows([]string{"type"}).AddRow("O-"))
	h.mock.ExpectExec(regexp.QuoteMeta("INSERT INTO blood_requests")).WillReturnResult(sqlmock.NewResult(5, 1))
	// 31 May minus three months is 28 Feb, not 3 Mar
	h.mock.ExpectQuery(regexp.QuoteMeta("WHERE TRIM(city) = TRIM(?)")).
		WithArgs("Sylhet", 8, 1, time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC)).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "name", "email"}))
	h.mock.ExpectCommit()

	_, err := h.svc.Create(context.Background(), NewRequest{RecipientID: 1, BloodTypeID: 8, City: "Sylhet"})
	require.NoError(t, err)
}

func TestCreate_UnknownBloodType(t *testing.T) {
	h := newHarness(t)
	h.mock.ExpectBegin()
	h.mock.ExpectQuery(regexp.QuoteMeta("SELECT type FROM blood_types")).WithArgs(42).WillReturnError(sql.ErrNoRows)
	h.mock.ExpectRollback()

	_, err := h.svc.Create(context.Background(), NewRequest{RecipientID: 1, BloodTypeID: 42, City: "Dhaka"})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestAccept(t *testing.T) {
	t.Run("puts request on hold and emails recipient", func(t *testing.T) {
		h := newHarness(t)
		h.mock.ExpectBegin()
		h.expectLock(3, 1, "active")
		h.mock.ExpectExec(requestStatus).WithArgs("on_hold", 3).WillReturnResult(sqlmock.NewResult(0, 1))
		h.mock.ExpectExec(notifUpsert).WithArgs(3, 10, "accepted").WillReturnResult(sqlmock.NewResult(0, 2))
		h.expectContacts(1, 10)
		h.mock.ExpectCommit()

		require.NoError(t, h.svc.Accept(context.Background(), 3, 10))
		h.dispatch.Wait()
		jobs := h.notifier.sent()
		require.Len(t, jobs, 1)
		assert.Equal(t, queue.MailRequestAccepted, jobs[0].Kind)
		assert.Equal(t, "rahim@example.com", jobs[0].To)
		assert.Equal(t, "Karim", jobs[0].CounterpartName)
		assert.Equal(t, "01822222222", jobs[0].CounterpartPhone)
	})

	t.Run("second donor gets conflict", func(t *testing.T) {
		h := newHarness(t)
		h.mock.ExpectBegin()
		h.expectLock(3, 1, "on_hold")
		h.mock.ExpectRollback()

		err := h.svc.Accept(context.Background(), 3, 11)
		assert.ErrorIs(t, err, repository.ErrConflict)
	})

	t.Run("unique accepted row backs the check", func(t *testing.T) {
		h := newHarness(t)
		h.mock.ExpectBegin()
		h.expectLock(3, 1, "active")
		h.mock.ExpectExec(requestStatus).WillReturnResult(sqlmock.NewResult(0, 1))
		h.mock.ExpectExec(notifUpsert).WillReturnError(&mysql.MySQLError{
			Number: 1062, Message: "Duplicate entry '3' for key 'request_notifications.uq_one_accepted'"})
		h.mock.ExpectRollback()

		assert.ErrorIs(t, h.svc.Accept(context.Background(), 3, 11), repository.ErrConflict)
	})

	t.Run("own request is forbidden", func(t *testing.T) {
		h := newHarness(t)
		h.mock.ExpectBegin()
		h.expectLock(3, 1, "active")
		h.mock.ExpectRollback()

		assert.ErrorIs(t, h.svc.Accept(context.Background(), 3, 1), repository.ErrForbidden)
	})

	t.Run("missing request", func(t *testing.T) {
		h := newHarness(t)
		h.mock.ExpectBegin()
		h.mock.ExpectQuery(lockSQL).WithArgs(99).WillReturnError(sql.ErrNoRows)
		h.mock.ExpectRollback()

		assert.ErrorIs(t, h.svc.Accept(context.Background(), 99, 10), repository.ErrNotFound)
	})
}

// Mutual exclusion itself comes from SELECT ... FOR UPDATE in MySQL.  This
// replays the order the lock enforces: the second accept runs after the
// first commits and finds the request on hold.
func TestAccept_SecondAfterLockSeesOnHold(t *testing.T) {
	h := newHarness(t)
	h.mock.ExpectBegin()
	h.expectLock(3, 1, "active")
	h.mock.ExpectExec(requestStatus).WithArgs("on_hold", 3).WillReturnResult(sqlmock.NewResult(0, 1))
	h.mock.ExpectExec(notifUpsert).WithArgs(3, 10, "accepted").WillReturnResult(sqlmock.NewResult(0, 2))
	h.expectContacts(1, 10)
	h.mock.ExpectCommit()
	h.mock.ExpectBegin()
	h.expectLock(3, 1, "on_hold")
	h.mock.ExpectRollback()

	first := h.svc.Accept(context.Background(), 3, 10)
	second := h.svc.Accept(context.Background(), 3, 11)
	assert.NoError(t, first)
	assert.ErrorIs(t, second, repository.ErrConflict)
}

func TestCancelAcceptance(t *testing.T) {
	statusSQL := regexp.QuoteMeta("SELECT status FROM request_notifications")

	t.Run("returns request to active", func(t *testing.T) {
		h := newHarness(t)
		h.mock.ExpectBegin()
		h.expectLock(3, 1, "on_hold")
		h.mock.ExpectQuery(statusSQL).WithArgs(3, 10).WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("accepted"))
		h.mock.ExpectExec(notifStatus).WithArgs("cancelled_by_donor", 3, 10).WillReturnResult(sqlmock.NewResult(0, 1))
		h.mock.ExpectExec(requestStatus).WithArgs("active", 3).WillReturnResult(sqlmock.NewResult(0, 1))
		h.expectContacts(1, 10)
		h.mock.ExpectCommit()

		require.NoError(t, h.svc.CancelAcceptance(context.Background(), 3, 10))
		h.dispatch.Wait()
		jobs := h.notifier.sent()
		require.Len(t, jobs, 1)
		assert.Equal(t, queue.MailAcceptanceCancelled, jobs[0].Kind)
		assert.Equal(t, "rahim@example.com", jobs[0].To)
	})

	t.Run("donor who never accepted", func(t *testing.T) {
		h := newHarness(t)
		h.mock.ExpectBegin()
		h.expectLock(3, 1, "on_hold")
		h.mock.ExpectQuery(statusSQL).WithArgs(3, 11).WillReturnError(sql.ErrNoRows)
		h.mock.ExpectRollback()

		assert.ErrorIs(t, h.svc.CancelAcceptance(context.Background(), 3, 11), repository.ErrConflict)
	})

	t.Run("notification only sent", func(t *testing.T) {
		h := newHarness(t)
		h.mock.ExpectBegin()
		h.expectLock(3, 1, "on_hold")
		h.mock.ExpectQuery(statusSQL).WithArgs(3, 11).WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("sent"))
		h.mock.ExpectRollback()

		assert.ErrorIs(t, h.svc.CancelAcceptance(context.Background(), 3, 11), repository.ErrConflict)
	})
}

func TestCancelDonor(t *testing.T) {
	t.Run("releases donor", func(t *testing.T) {
		h := newHarness(t)
		h.mock.ExpectBegin()
		h.expectLock(3, 1, "on_hold")
		h.mock.ExpectQuery(findAccepted).WithArgs(3).WillReturnRows(sqlmock.NewRows([]string{"donor_id"}).AddRow(10))
		h.mock.ExpectExec(notifStatus).WithArgs("cancelled_by_recipient", 3, 10).WillReturnResult(sqlmock.NewResult(0, 1))
		h.mock.ExpectExec(requestStatus).WithArgs("active", 3).WillReturnResult(sqlmock.NewResult(0, 1))
		h.expectContacts(1, 10)
		h.mock.ExpectCommit()

		require.NoError(t, h.svc.CancelDonor(context.Background(), 3, 1))
		h.dispatch.Wait()
		jobs := h.notifier.sent()
		require.Len(t, jobs, 1)
		assert.Equal(t, queue.MailDonorCancelled, jobs[0].Kind)
		assert.Equal(t, "karim@example.com", jobs[0].To)
		assert.Equal(t, "Rahim", jobs[0].CounterpartName)
	})

	t.Run("tolerates missing accepted row", func(t *testing.T) {
		h := newHarness(t)
		h.mock.ExpectBegin()
		h.expectLock(3, 1, "on_hold")
		h.mock.ExpectQuery(findAccepted).WithArgs(3).WillReturnError(sql.ErrNoRows)
		h.mock.ExpectExec(requestStatus).WithArgs("active", 3).WillReturnResult(sqlmock.NewResult(0, 1))
		h.mock.ExpectCommit()

		require.NoError(t, h.svc.CancelDonor(context.Background(), 3, 1))
		h.dispatch.Wait()
		assert.Empty(t, h.notifier.sent())
	})

	t.Run("not owner", func(t *testing.T) {
		h := newHarness(t)
		h.mock.ExpectBegin()
		h.expectLock(3, 1, "on_hold")
		h.mock.ExpectRollback()

		assert.ErrorIs(t, h.svc.CancelDonor(context.Background(), 3, 2), repository.ErrForbidden)
	})

	t.Run("not on hold", func(t *testing.T) {
		h := newHarness(t)
		h.mock.ExpectBegin()
		h.expectLock(3, 1, "active")
		h.mock.ExpectRollback()

		assert.ErrorIs(t, h.svc.CancelDonor(context.Background(), 3, 1), repository.ErrConflict)
	})
}

func TestFulfill(t *testing.T) {
	today := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	t.Run("records donation and eligibility", func(t *testing.T) {
		h := newHarness(t)
		h.mock.ExpectBegin()
		h.expectLock(3, 1, "on_hold")
		h.mock.ExpectQuery(findAccepted).WithArgs(3).WillReturnRows(sqlmock.NewRows([]string{"donor_id"}).AddRow(10))
		h.mock.ExpectExec(requestStatus).WithArgs("fulfilled", 3).WillReturnResult(sqlmock.NewResult(0, 1))
		h.mock.ExpectExec(notifStatus).WithArgs("fulfilled", 3, 10).WillReturnResult(sqlmock.NewResult(0, 1))
		h.mock.ExpectExec(regexp.QuoteMeta("INSERT INTO donations")).WithArgs(10, 1, 3, today).
			WillReturnResult(sqlmock.NewResult(1, 1))
		h.mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET last_donation_date = ?")).WithArgs(today, 10).
			WillReturnResult(sqlmock.NewResult(0, 1))
		h.expectContacts(1, 10)
		h.mock.ExpectCommit()

		require.NoError(t, h.svc.Fulfill(context.Background(), 3, 1))
		h.dispatch.Wait()
		jobs := h.notifier.sent()
		require.Len(t, jobs, 1)
		assert.Equal(t, queue.MailDonationRecorded, jobs[0].Kind)
		assert.Equal(t, "karim@example.com", jobs[0].To)
	})

	t.Run("active request conflicts", func(t *testing.T) {
		h := newHarness(t)
		h.mock.ExpectBegin()
		h.expectLock(3, 1, "active")
		h.mock.ExpectRollback()

		assert.ErrorIs(t, h.svc.Fulfill(context.Background(), 3, 1), repository.ErrConflict)
	})

	t.Run("no accepted donor", func(t *testing.T) {
		h := newHarness(t)
		h.mock.ExpectBegin()
		h.expectLock(3, 1, "on_hold")
		h.mock.ExpectQuery(findAccepted).WithArgs(3).WillReturnError(sql.ErrNoRows)
		h.mock.ExpectRollback()

		assert.ErrorIs(t, h.svc.Fulfill(context.Background(), 3, 1), repository.ErrNotFound)
	})

	t.Run("write failure rolls back", func(t *testing.T) {
		h := newHarness(t)
		h.mock.ExpectBegin()
		h.expectLock(3, 1, "on_hold")
		h.mock.ExpectQuery(findAccepted).WithArgs(3).WillReturnRows(sqlmock.NewRows([]string{"donor_id"}).AddRow(10))
		h.mock.ExpectExec(requestStatus).WillReturnResult(sqlmock.NewResult(0, 1))
		h.mock.ExpectExec(notifStatus).WillReturnResult(sqlmock.NewResult(0, 1))
		h.mock.ExpectExec(regexp.QuoteMeta("INSERT INTO donations")).WillReturnError(errors.New("disk full"))
		h.mock.ExpectRollback()

		err := h.svc.Fulfill(context.Background(), 3, 1)
		assert.ErrorContains(t, err, "insert donation")
		h.dispatch.Wait()
		assert.Empty(t, h.notifier.sent())
	})
}

func TestDelete(t *testing.T) {
	t.Run("removes notifications donations and request", func(t *testing.T) {
		h := newHarness(t)
		h.mock.ExpectBegin()
		h.expectLock(3, 1, "active")
		h.mock.ExpectExec(regexp.QuoteMeta("DELETE FROM request_notifications WHERE request_id = ?")).WithArgs(3).
			WillReturnResult(sqlmock.NewResult(0, 2))
		h.mock.ExpectExec(regexp.QuoteMeta("DELETE FROM donations WHERE request_id = ?")).WithArgs(3).
			WillReturnResult(sqlmock.NewResult(0, 0))
		h.mock.ExpectExec(regexp.QuoteMeta("DELETE FROM blood_requests WHERE request_id = ?")).WithArgs(3).
			WillReturnResult(sqlmock.NewResult(0, 1))
		h.mock.ExpectCommit()

		require.NoError(t, h.svc.Delete(context.Background(), 3, 1))
	})

	t.Run("fulfilled request can be deleted", func(t *testing.T) {
		h := newHarness(t)
		h.mock.ExpectBegin()
		h.expectLock(4, 1, "fulfilled")
		h.mock.ExpectExec(regexp.QuoteMeta("DELETE FROM request_notifications")).WithArgs(4).
			WillReturnResult(sqlmock.NewResult(0, 1))
		h.mock.ExpectExec(regexp.QuoteMeta("DELETE FROM donations")).WithArgs(4).
			WillReturnResult(sqlmock.NewResult(0, 1))
		h.mock.ExpectExec(regexp.QuoteMeta("DELETE FROM blood_requests")).WithArgs(4).
			WillReturnResult(sqlmock.NewResult(0, 1))
		h.mock.ExpectCommit()

		require.NoError(t, h.svc.Delete(context.Background(), 4, 1))
		assert.Empty(t, h.notifier.sent())
	})

	t.Run("not owner", func(t *testing.T) {
		h := newHarness(t)
		h.mock.ExpectBegin()
		h.expectLock(3, 1, "active")
		h.mock.ExpectRollback()

		assert.ErrorIs(t, h.svc.Delete(context.Background(), 3, 2), repository.ErrForbidden)
	})

	t.Run("missing", func(t *testing.T) {
		h := newHarness(t)
		h.mock.ExpectBegin()
		h.mock.ExpectQuery(lockSQL).WithArgs(9).WillReturnError(sql.ErrNoRows)
		h.mock.ExpectRollback()

		assert.ErrorIs(t, h.svc.Delete(context.Background(), 9, 1), repository.ErrNotFound)
	})
}

func TestDispatcher_NilIsNoop(t *testing.T) {
	var d *Dispatcher
	d.Dispatch(context.Background(), queue.MailJob{To: "x@example.com"})
	d.Wait()
}

func TestDispatcher_DetachesFromRequestContext(t *testing.T) {
	n := &fakeNotifier{}
	d := NewDispatcher(n, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d.Dispatch(ctx, queue.MailJob{To: "x@example.com"})
	d.Wait()
	assert.Len(t, n.sent(), 1)
}
