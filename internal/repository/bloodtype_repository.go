package repository

import (
	"context"
	"database/sql"

	"github.com/bloodlink/blood-donor-backend/internal/model"
)

// BloodTypeRepo reads the static blood_types table.
type BloodTypeRepo struct{ DB *sql.DB }

func NewBloodTypeRepo(db *sql.DB) *BloodTypeRepo { return &BloodTypeRepo{DB: db} }

// List returns every blood type ordered by id.
func (r *BloodTypeRepo) List(ctx context.Context) ([]model.BloodType, error) {
	rows, err := r.DB.QueryContext(ctx, "SELECT blood_type_id, type FROM blood_types ORDER BY blood_type_id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.BloodType{}
	for rows.Next() {
		var bt model.BloodType
		if err := rows.Scan(&bt.ID, &bt.Type); err != nil {
			return nil, err
		}
		out = append(out, bt)
	}
	return out, rows.Err()
}

// LabelTx returns the label of a blood type, or ErrNotFound.
func (r *BloodTypeRepo) LabelTx(ctx context.Context, tx *sql.Tx, id uint8) (string, error) {
	var label string
	err := tx.QueryRowContext(ctx, "SELECT type FROM blood_types WHERE blood_type_id = ?", id).Scan(&label)
	if err != nil {
		return "", noRows(err)
	}
	return label, nil
}
