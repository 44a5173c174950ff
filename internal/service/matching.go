package service

import (
	"context"
	"time"

	"github.com/bloodlink/blood-donor-backend/internal/database"
	"github.com/bloodlink/blood-donor-backend/internal/eligibility"
)

// Donor is a user eligible to receive a donor_match notification.
type Donor struct {
	ID    uint64
	Name  string
	Email string
}

// Matcher selects donors for a new request.
type Matcher struct{}

// FindEligibleDonors returns verified users in the same city (compared
// after trimming) with the same blood type whose last donation is at least
// three calendar months before asOf.  excludeUserID is never returned.
// There is no ranking and no limit.
func (Matcher) FindEligibleDonors(ctx context.Context, q database.Queryer, city string, bloodTypeID uint8, excludeUserID uint64, asOf time.Time) ([]Donor, error) {
	const query = `SELECT user_id, name, email
	               FROM users
	               WHERE TRIM(city) = TRIM(?)
	                 AND blood_type_id = ?
	                 AND is_verified = 1
	                 AND user_id <> ?
	                 AND (last_donation_date IS NULL OR last_donation_date <= ?)
	               ORDER BY user_id`
	rows, err := q.QueryContext(ctx, query, city, bloodTypeID, excludeUserID, eligibility.Cutoff(asOf))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Donor
	for rows.Next() {
		var d Donor
		if err := rows.Scan(&d.ID, &d.Name, &d.Email); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
