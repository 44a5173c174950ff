package model

import "time"

// Donation is the immutable record written when a request is fulfilled.
// RequestID becomes nil if the originating request is later removed.
type Donation struct {
	ID           uint64
	DonorID      uint64
	RecipientID  uint64
	RequestID    *uint64
	DonationDate time.Time
}
