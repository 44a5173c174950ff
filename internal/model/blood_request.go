package model

import "time"

// RequestStatus is the lifecycle state of a blood request.
type RequestStatus string

const (
	RequestActive    RequestStatus = "active"
	RequestOnHold    RequestStatus = "on_hold"
	RequestFulfilled RequestStatus = "fulfilled"
)

// BloodRequest mirrors the `blood_requests` table.  RecipientID never
// changes after creation.  At most one donor holds a request while it is
// on_hold.
type BloodRequest struct {
	ID            uint64
	RecipientID   uint64
	BloodTypeID   uint8
	City          string
	Reason        *string
	DateRequested time.Time
	DateNeeded    *time.Time
	Status        RequestStatus
}
