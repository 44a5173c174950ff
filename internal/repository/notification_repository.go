package repository

import (
	"context"
	"database/sql"

	"github.com/bloodlink/blood-donor-backend/internal/model"
)

// NotificationRepo manages request_notifications, the per-donor relation to
// a request.  The (request_id, donor_id) pair is unique, and only one row
// per request may be 'accepted' at a time.
type NotificationRepo struct {
	db *sql.DB
}

func NewNotificationRepo(db *sql.DB) *NotificationRepo { return &NotificationRepo{db: db} }

const upsertNotification = `INSERT INTO request_notifications (request_id, donor_id, status) VALUES `

// UpsertTx inserts or overwrites the status for one (request, donor) pair.
// A second accepted row for the same request is reported as ErrConflict.
func (r *NotificationRepo) UpsertTx(ctx context.Context, tx *sql.Tx, requestID, donorID uint64, status model.NotificationStatus) error {
	_, err := tx.ExecContext(ctx,
		upsertNotification+`(?, ?, ?) ON DUPLICATE KEY UPDATE status = VALUES(status)`,
		requestID, donorID, string(status))
	if key, ok := duplicateKey(err); ok && key == "uq_one_accepted" {
		return ErrConflict
	}
	return err
}

// UpsertSentTx records a 'sent' notification for each donor in a single
// statement.  Passing an empty slice has no effect.
func (r *NotificationRepo) UpsertSentTx(ctx context.Context, tx *sql.Tx, requestID uint64, donorIDs []uint64) error {
	if len(donorIDs) == 0 {
		return nil
	}
	query := upsertNotification
	args := make([]interface{}, 0, len(donorIDs)*3)
	for i, id := range donorIDs {
		if i > 0 {
			query += ","
		}
		query += "(?, ?, ?)"
		args = append(args, requestID, id, string(model.NotificationSent))
	}
	query += " ON DUPLICATE KEY UPDATE status = VALUES(status)"
	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// StatusTx returns the donor's notification status for a request, locking
// the row.  ErrNotFound when the donor was never notified or accepted.
func (r *NotificationRepo) StatusTx(ctx context.Context, tx *sql.Tx, requestID, donorID uint64) (model.NotificationStatus, error) {
	var status string
	err := tx.QueryRowContext(ctx,
		"SELECT status FROM request_notifications WHERE request_id = ? AND donor_id = ? FOR UPDATE",
		requestID, donorID).Scan(&status)
	if err != nil {
		return "", noRows(err)
	}
	return model.NotificationStatus(status), nil
}

// FindAcceptedTx returns the donor holding the request.
func (r *NotificationRepo) FindAcceptedTx(ctx context.Context, tx *sql.Tx, requestID uint64) (uint64, error) {
	var donorID uint64
	err := tx.QueryRowContext(ctx,
		"SELECT donor_id FROM request_notifications WHERE request_id = ? AND status = 'accepted' FOR UPDATE",
		requestID).Scan(&donorID)
	if err != nil {
		return 0, noRows(err)
	}
	return donorID, nil
}

// UpdateStatusTx sets the status of an existing notification.
func (r *NotificationRepo) UpdateStatusTx(ctx context.Context, tx *sql.Tx, requestID, donorID uint64, status model.NotificationStatus) error {
	_, err := tx.ExecContext(ctx,
		"UPDATE request_notifications SET status = ? WHERE request_id = ? AND donor_id = ?",
		string(status), requestID, donorID)
	return err
}

// DeleteByRequestTx removes every notification of a request.
func (r *NotificationRepo) DeleteByRequestTx(ctx context.Context, tx *sql.Tx, requestID uint64) error {
	_, err := tx.ExecContext(ctx, "DELETE FROM request_notifications WHERE request_id = ?", requestID)
	return err
}
