package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/bloodlink/blood-donor-backend/internal/queue"
)

// Notifier delivers mail jobs, either directly over SMTP or through the
// broker.
type Notifier interface {
	Notify(ctx context.Context, jobs ...queue.MailJob) error
}

// DefaultDispatchTimeout bounds one batch of post-commit emails.
const DefaultDispatchTimeout = 30 * time.Second

// Dispatcher runs email delivery after a transaction has committed.  Jobs
// are sent on a goroutine detached from the request's cancellation, and
// failures are logged, never returned.  A nil *Dispatcher drops all jobs.
type Dispatcher struct {
	notifier Notifier
	timeout  time.Duration
	wg       sync.WaitGroup
}

func NewDispatcher(n Notifier, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultDispatchTimeout
	}
	return &Dispatcher{notifier: n, timeout: timeout}
}

// Dispatch sends jobs in the background.
func (d *Dispatcher) Dispatch(ctx context.Context, jobs ...queue.MailJob) {
	if d == nil || d.notifier == nil || len(jobs) == 0 {
		return
	}
	ctx = context.WithoutCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(ctx, d.timeout)
		defer cancel()
		if err := d.notifier.Notify(ctx, jobs...); err != nil {
			slog.Warn("email dispatch failed", "kind", jobs[0].Kind, "jobs", len(jobs), "error", err)
		}
	}()
}

// Wait blocks until every dispatched batch has finished.
func (d *Dispatcher) Wait() {
	if d != nil {
		d.wg.Wait()
	}
}
