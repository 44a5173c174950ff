package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/bloodlink/blood-donor-backend/internal/model"
)

// DonationRepo writes donation records at fulfillment and lists a donor's
// history.  Donations are never updated.
type DonationRepo struct {
	db *sql.DB
}

func NewDonationRepo(db *sql.DB) *DonationRepo { return &DonationRepo{db: db} }

// DonationView is one row of a donor's history.  RequestCity is nil when
// the originating request has been deleted.
type DonationView struct {
	ID               uint64  `json:"donation_id"`
	DonationDate     string  `json:"donation_date"`
	BloodTypeDonated string  `json:"blood_type_donated"`
	RecipientName    string  `json:"recipient_name"`
	RequestCity      *string `json:"request_city"`
}

// CreateTx inserts a donation and populates its ID.
func (r *DonationRepo) CreateTx(ctx context.Context, tx *sql.Tx, d *model.Donation) error {
	res, err := tx.ExecContext(ctx,
		"INSERT INTO donations (donor_id, recipient_id, request_id, donation_date) VALUES (?, ?, ?, ?)",
		d.DonorID, d.RecipientID, d.RequestID, d.DonationDate)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	d.ID = uint64(id)
	return nil
}

// DeleteByRequestTx removes the donations recorded against a request.
func (r *DonationRepo) DeleteByRequestTx(ctx context.Context, tx *sql.Tx, requestID uint64) error {
	_, err := tx.ExecContext(ctx, "DELETE FROM donations WHERE request_id = ?", requestID)
	return err
}

// History lists the donor's donations, newest first.  The donated type is
// the donor's own blood type.
func (r *DonationRepo) History(ctx context.Context, donorID uint64) ([]DonationView, error) {
	const q = `SELECT d.donation_id, d.donation_date, bt.type, ru.name, r.city
	           FROM donations d
	           JOIN users du ON du.user_id = d.donor_id
	           JOIN blood_types bt ON bt.blood_type_id = du.blood_type_id
	           JOIN users ru ON ru.user_id = d.recipient_id
	           LEFT JOIN blood_requests r ON r.request_id = d.request_id
	           WHERE d.donor_id = ?
	           ORDER BY d.donation_date DESC, d.donation_id DESC`
	rows, err := r.db.QueryContext(ctx, q, donorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []DonationView{}
	for rows.Next() {
		var (
			v    DonationView
			day  time.Time
			city sql.NullString
		)
		if err := rows.Scan(&v.ID, &day, &v.BloodTypeDonated, &v.RecipientName, &city); err != nil {
			return nil, err
		}
		v.DonationDate = day.Format(time.DateOnly)
		v.RequestCity = nullString(city)
		out = append(out, v)
	}
	return out, rows.Err()
}
