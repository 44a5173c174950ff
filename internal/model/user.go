package model

import "time"

// User represents a row of the `users` table.  A user is both a potential
// recipient (owner of blood requests) and a potential donor.
//
// Fields:
//
//	ID                – primary key.
//	Name              – display name shown on request cards.
//	Email             – unique login address.
//	PasswordHash      – bcrypt hash.
//	DateOfBirth       – DATE column.
//	BloodTypeID       – reference into blood_types.
//	BloodType         – joined label (e.g. "A+"), empty when not loaded.
//	ContactPhone      – unique phone number shared with the matched party.
//	City              – used for donor matching.
//	IsVerified        – set once the emailed token is redeemed.
//	VerificationToken – single active token for verification or reset.
//	ResetTokenExpires – expiry of a password reset token, nil otherwise.
//	LastDonationDate  – updated only when a donation is fulfilled.
//	CreatedAt         – creation timestamp.
type User struct {
	ID                uint64
	Name              string
	Email             string
	PasswordHash      string
	DateOfBirth       time.Time
	BloodTypeID       uint8
	BloodType         string
	ContactPhone      string
	City              string
	IsVerified        bool
	VerificationToken *string
	ResetTokenExpires *time.Time
	LastDonationDate  *time.Time
	CreatedAt         time.Time
}

// BloodType is a row of the static `blood_types` reference table.
type BloodType struct {
	ID   uint8  `json:"blood_type_id"`
	Type string `json:"type"`
}
