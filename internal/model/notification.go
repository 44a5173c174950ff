package model

import "time"

// NotificationStatus tracks a donor's relation to a single request.
type NotificationStatus string

const (
	NotificationSent                 NotificationStatus = "sent"
	NotificationAccepted             NotificationStatus = "accepted"
	NotificationFulfilled            NotificationStatus = "fulfilled"
	NotificationCancelledByDonor     NotificationStatus = "cancelled_by_donor"
	NotificationCancelledByRecipient NotificationStatus = "cancelled_by_recipient"
)

// RequestNotification is the join row between a request and a donor.  The
// (request, donor) pair is unique and re-insertion overwrites the status.
type RequestNotification struct {
	ID        uint64
	RequestID uint64
	DonorID   uint64
	Status    NotificationStatus
	UpdatedAt time.Time
}
