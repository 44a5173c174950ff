package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/bloodlink/blood-donor-backend/internal/model"
	"github.com/bloodlink/blood-donor-backend/internal/utils"
)

// UserRepo reads and writes the users table.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

// NewUser carries the registration input.  VerificationToken is stored as
// the account's single active one-time token.
type NewUser struct {
	Name              string
	Email             string
	Password          string
	DateOfBirth       time.Time
	BloodTypeID       uint8
	ContactPhone      string
	City              string
	VerificationToken string
}

const userCols = `u.user_id, u.name, u.email, u.password_hash, u.date_of_birth,
       u.blood_type_id, bt.type, u.contact_phone, u.city, u.is_verified,
       u.verification_token, u.reset_token_expires, u.last_donation_date, u.created_at`

// Create hashes the password and inserts an unverified user.  A taken
// email or phone yields a *DuplicateError.
func (r *UserRepo) Create(ctx context.Context, in NewUser, cost int) (uint64, error) {
	hash, err := utils.HashPassword(in.Password, cost)
	if err != nil {
		return 0, err
	}
	res, err := r.DB.ExecContext(ctx,
		`INSERT INTO users (name, email, password_hash, date_of_birth, blood_type_id, contact_phone, city, is_verified, verification_token)
		 VALUES (?,?,?,?,?,?,?,0,?)`,
		strings.TrimSpace(in.Name), normalizeEmail(in.Email), hash, in.DateOfBirth,
		in.BloodTypeID, strings.TrimSpace(in.ContactPhone), strings.TrimSpace(in.City), in.VerificationToken)
	if err != nil {
		if key, ok := duplicateKey(err); ok {
			if strings.Contains(key, "phone") {
				return 0, &DuplicateError{Field: "contact_phone"}
			}
			return 0, &DuplicateError{Field: "email"}
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	return r.getOne(ctx, "u.email = ?", normalizeEmail(email))
}

// GetByID fetches a user by id, including the blood type label.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	return r.getOne(ctx, "u.user_id = ?", id)
}

func (r *UserRepo) getOne(ctx context.Context, where string, arg any) (model.User, error) {
	q := `SELECT ` + userCols + `
	      FROM users u
	      JOIN blood_types bt ON bt.blood_type_id = u.blood_type_id
	      WHERE ` + where + ` LIMIT 1`
	var (
		u       model.User
		token   sql.NullString
		expires sql.NullTime
		last    sql.NullTime
	)
	err := r.DB.QueryRowContext(ctx, q, arg).Scan(
		&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.DateOfBirth,
		&u.BloodTypeID, &u.BloodType, &u.ContactPhone, &u.City, &u.IsVerified,
		&token, &expires, &last, &u.CreatedAt,
	)
	if err != nil {
		return model.User{}, noRows(err)
	}
	if token.Valid {
		u.VerificationToken = &token.String
	}
	if expires.Valid {
		u.ResetTokenExpires = &expires.Time
	}
	if last.Valid {
		u.LastDonationDate = &last.Time
	}
	return u, nil
}

// Verify redeems an email verification token.  Reset tokens (those with an
// expiry) are not accepted here.
func (r *UserRepo) Verify(ctx context.Context, token string) error {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE users SET is_verified = 1, verification_token = NULL
		 WHERE verification_token = ? AND reset_token_expires IS NULL`, token)
	if err != nil {
		return err
	}
	return affected(res, ErrInvalidToken)
}

// SetResetToken replaces the user's active token with a password reset
// token valid until expires.
func (r *UserRepo) SetResetToken(ctx context.Context, userID uint64, token string, expires time.Time) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE users SET verification_token = ?, reset_token_expires = ? WHERE user_id = ?",
		token, expires.UTC(), userID)
	if err != nil {
		return err
	}
	return affected(res, ErrNotFound)
}

// ResetPassword stores a new hash for the holder of an unexpired reset
// token and clears the token.  Redeeming the emailed link also proves
// ownership of the address, so the account is marked verified.
func (r *UserRepo) ResetPassword(ctx context.Context, token, password string, cost int, now time.Time) error {
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return err
	}
	res, err := r.DB.ExecContext(ctx,
		`UPDATE users SET password_hash = ?, verification_token = NULL, reset_token_expires = NULL, is_verified = 1
		 WHERE verification_token = ? AND reset_token_expires > ?`,
		hash, token, now.UTC())
	if err != nil {
		return err
	}
	return affected(res, ErrInvalidToken)
}

// ClearExpiredResetTokens drops reset tokens whose expiry has passed and
// returns how many were cleared.
func (r *UserRepo) ClearExpiredResetTokens(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE users SET verification_token = NULL, reset_token_expires = NULL
		 WHERE reset_token_expires IS NOT NULL AND reset_token_expires <= ?`, now.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// UpdateLastDonationTx records a donation date on the donor.
func (r *UserRepo) UpdateLastDonationTx(ctx context.Context, tx *sql.Tx, userID uint64, day time.Time) error {
	_, err := tx.ExecContext(ctx, "UPDATE users SET last_donation_date = ? WHERE user_id = ?", day, userID)
	return err
}

// Contact is the part of a user shared with the other party of a request.
type Contact struct {
	ID    uint64
	Name  string
	Email string
	Phone string
}

// ContactsTx loads contact details for the given users, keyed by id.
// Unknown ids are absent from the map.
func (r *UserRepo) ContactsTx(ctx context.Context, tx *sql.Tx, ids ...uint64) (map[uint64]Contact, error) {
	out := make(map[uint64]Contact, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	query := "SELECT user_id, name, email, contact_phone FROM users WHERE user_id IN (" +
		strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",") + ")"
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var c Contact
		if err := rows.Scan(&c.ID, &c.Name, &c.Email, &c.Phone); err != nil {
			return nil, err
		}
		out[c.ID] = c
	}
	return out, rows.Err()
}

func normalizeEmail(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
