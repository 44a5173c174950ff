package mail

import (
	"context"
	"errors"

	"github.com/bloodlink/blood-donor-backend/internal/queue"
)

// DirectNotifier sends every job synchronously through a Sender.  It is
// used when no broker is configured.
type DirectNotifier struct {
	Sender queue.Sender
}

// Notify sends each job and returns the joined failures.  One bad address
// does not stop the rest of the batch.
func (n DirectNotifier) Notify(ctx context.Context, jobs ...queue.MailJob) error {
	var errs []error
	for _, job := range jobs {
		if err := n.Sender.Send(ctx, job); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// QueueNotifier hands jobs to RabbitMQ; a consumer delivers them later.
type QueueNotifier struct {
	Publisher *queue.Publisher
}

func (n QueueNotifier) Notify(ctx context.Context, jobs ...queue.MailJob) error {
	return n.Publisher.Publish(ctx, jobs...)
}
