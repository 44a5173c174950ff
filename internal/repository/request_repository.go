package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/bloodlink/blood-donor-backend/internal/model"
)

// RequestRepo provides the writes used by the lifecycle transitions and
// the read-only listings shown to recipients and donors.  Write methods
// take the caller's transaction; the caller must commit or roll back.
type RequestRepo struct {
	db *sql.DB
}

// NewRequestRepo returns a new RequestRepo bound to the given database.
func NewRequestRepo(db *sql.DB) *RequestRepo { return &RequestRepo{db: db} }

// PublicRequestLimit caps the platform-wide public listing.
const PublicRequestLimit = 8

// RequestView is a request joined with its recipient and blood type as it
// is rendered to clients.  Phone numbers and the donor columns are only
// filled by listings where the caller is entitled to see them.
type RequestView struct {
	ID             uint64  `json:"request_id"`
	RecipientID    uint64  `json:"recipient_id"`
	RecipientName  string  `json:"recipient_name"`
	RecipientPhone *string `json:"recipient_phone,omitempty"`
	BloodType      string  `json:"blood_type"`
	City           string  `json:"city"`
	Reason         *string `json:"reason"`
	DateNeeded     *string `json:"date_needed"`
	DateRequested  string  `json:"date_requested"`
	Status         string  `json:"status"`
	DonorName      *string `json:"donor_name,omitempty"`
	DonorPhone     *string `json:"donor_phone,omitempty"`
}

// CreateTx inserts a new active request and populates its ID.
func (r *RequestRepo) CreateTx(ctx context.Context, tx *sql.Tx, req *model.BloodRequest) error {
	const q = `INSERT INTO blood_requests (recipient_id, blood_type_id, city, reason, date_requested, date_needed, status)
	           VALUES (?, ?, ?, ?, ?, ?, ?)`
	req.Status = model.RequestActive
	req.City = strings.TrimSpace(req.City)
	res, err := tx.ExecContext(ctx, q, req.RecipientID, req.BloodTypeID, req.City,
		req.Reason, req.DateRequested.UTC(), req.DateNeeded, string(req.Status))
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	req.ID = uint64(id)
	return nil
}

// LockTx loads a request and holds its row lock until the transaction
// ends, serialising concurrent transitions on the same request.
func (r *RequestRepo) LockTx(ctx context.Context, tx *sql.Tx, id uint64) (model.BloodRequest, error) {
	const q = `SELECT request_id, recipient_id, blood_type_id, city, reason, date_requested, date_needed, status
	           FROM blood_requests WHERE request_id = ? FOR UPDATE`
	var (
		req    model.BloodRequest
		reason sql.NullString
		needed sql.NullTime
		status string
	)
	err := tx.QueryRowContext(ctx, q, id).Scan(&req.ID, &req.RecipientID, &req.BloodTypeID, &req.City,
		&reason, &req.DateRequested, &needed, &status)
	if err != nil {
		return model.BloodRequest{}, noRows(err)
	}
	if reason.Valid {
		req.Reason = &reason.String
	}
	if needed.Valid {
		req.DateNeeded = &needed.Time
	}
	req.Status = model.RequestStatus(status)
	return req, nil
}

// UpdateStatusTx sets the request status.
func (r *RequestRepo) UpdateStatusTx(ctx context.Context, tx *sql.Tx, id uint64, status model.RequestStatus) error {
	_, err := tx.ExecContext(ctx, "UPDATE blood_requests SET status = ? WHERE request_id = ?", string(status), id)
	return err
}

// DeleteTx removes the request row.  Notifications must be deleted first.
func (r *RequestRepo) DeleteTx(ctx context.Context, tx *sql.Tx, id uint64) error {
	_, err := tx.ExecContext(ctx, "DELETE FROM blood_requests WHERE request_id = ?", id)
	return err
}

// Every listing selects the same columns so one scanner serves them all.
// The last three are recipient phone, donor name and donor phone.
const requestViewSelect = `SELECT r.request_id, r.recipient_id, ru.name, bt.type, r.city, r.reason,
       r.date_needed, r.date_requested, r.status, `

const requestViewFrom = `
  FROM blood_requests r
  JOIN users ru ON ru.user_id = r.recipient_id
  JOIN blood_types bt ON bt.blood_type_id = r.blood_type_id`

// Public returns the latest active requests platform-wide.
func (r *RequestRepo) Public(ctx context.Context) ([]RequestView, error) {
	q := requestViewSelect + `NULL, NULL, NULL` + requestViewFrom + `
	WHERE r.status = 'active'
	ORDER BY r.date_requested DESC, r.request_id DESC
	LIMIT ?`
	return r.list(ctx, q, PublicRequestLimit)
}

// Available returns active requests in the donor's own city, excluding the
// donor's own requests.  Blood type is not filtered.
func (r *RequestRepo) Available(ctx context.Context, donorID uint64) ([]RequestView, error) {
	q := requestViewSelect + `NULL, NULL, NULL` + requestViewFrom + `
	WHERE r.status = 'active'
	  AND TRIM(r.city) = (SELECT TRIM(me.city) FROM users me WHERE me.user_id = ?)
	  AND r.recipient_id <> ?
	ORDER BY r.date_requested DESC, r.request_id DESC`
	return r.list(ctx, q, donorID, donorID)
}

// Mine returns the recipient's requests newest first, with the accepted
// donor's contact details while a request is on hold.
func (r *RequestRepo) Mine(ctx context.Context, recipientID uint64) ([]RequestView, error) {
	q := requestViewSelect + `NULL, d.name, d.contact_phone` + requestViewFrom + `
	LEFT JOIN request_notifications n ON n.accepted_request_id = r.request_id
	LEFT JOIN users d ON d.user_id = n.donor_id
	WHERE r.recipient_id = ?
	ORDER BY r.date_requested DESC, r.request_id DESC`
	return r.list(ctx, q, recipientID)
}

// Accepted returns the on-hold requests the donor has accepted, with the
// recipient's phone so the two parties can get in touch.
func (r *RequestRepo) Accepted(ctx context.Context, donorID uint64) ([]RequestView, error) {
	q := requestViewSelect + `ru.contact_phone, NULL, NULL` + requestViewFrom + `
	JOIN request_notifications n ON n.request_id = r.request_id
	WHERE n.donor_id = ? AND n.status = 'accepted' AND r.status = 'on_hold'
	ORDER BY r.date_requested DESC, r.request_id DESC`
	return r.list(ctx, q, donorID)
}

// Get returns a single request.
func (r *RequestRepo) Get(ctx context.Context, id uint64) (RequestView, error) {
	q := requestViewSelect + `NULL, NULL, NULL` + requestViewFrom + `
	WHERE r.request_id = ?`
	out, err := r.list(ctx, q, id)
	if err != nil {
		return RequestView{}, err
	}
	if len(out) == 0 {
		return RequestView{}, ErrNotFound
	}
	return out[0], nil
}

func (r *RequestRepo) list(ctx context.Context, q string, args ...any) ([]RequestView, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []RequestView{}
	for rows.Next() {
		var (
			v                     RequestView
			reason                sql.NullString
			needed                sql.NullTime
			requested             time.Time
			rPhone, dName, dPhone sql.NullString
		)
		if err := rows.Scan(&v.ID, &v.RecipientID, &v.RecipientName, &v.BloodType, &v.City, &reason,
			&needed, &requested, &v.Status, &rPhone, &dName, &dPhone); err != nil {
			return nil, err
		}
		v.Reason = nullString(reason)
		if needed.Valid {
			d := needed.Time.Format(time.DateOnly)
			v.DateNeeded = &d
		}
		v.DateRequested = requested.UTC().Format(time.RFC3339)
		v.RecipientPhone = nullString(rPhone)
		v.DonorName = nullString(dName)
		v.DonorPhone = nullString(dPhone)
		out = append(out, v)
	}
	return out, rows.Err()
}

func nullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
