// Package queue defines the outbound mail payload exchanged over RabbitMQ
// together with its publisher and consumer.
package queue

// MailKind selects the email template.
type MailKind string

const (
	MailVerification        MailKind = "verification"
	MailPasswordReset       MailKind = "password_reset"
	MailDonorMatch          MailKind = "donor_match"
	MailRequestAccepted     MailKind = "request_accepted"
	MailAcceptanceCancelled MailKind = "acceptance_cancelled"
	MailDonorCancelled      MailKind = "donor_cancelled"
	MailDonationRecorded    MailKind = "donation_recorded"
)

// MailJob is one email to send.  It carries everything the template needs
// so consumers never query the primary database.  Counterpart fields
// describe the other party (the donor in a recipient's mail and vice
// versa).
type MailJob struct {
	Kind             MailKind `json:"kind"`
	To               string   `json:"to"`
	Name             string   `json:"name"`
	Link             string   `json:"link,omitempty"`
	RequestID        uint64   `json:"request_id,omitempty"`
	BloodType        string   `json:"blood_type,omitempty"`
	City             string   `json:"city,omitempty"`
	Reason           string   `json:"reason,omitempty"`
	DateNeeded       string   `json:"date_needed,omitempty"`
	CounterpartName  string   `json:"counterpart_name,omitempty"`
	CounterpartPhone string   `json:"counterpart_phone,omitempty"`
	QueuedAt         string   `json:"queued_at"`
}
