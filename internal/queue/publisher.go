package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// MailQueueName is the durable queue holding outbound mail jobs.
const MailQueueName = "mail.outbound"

// Publisher sends mail jobs to the mail.outbound queue.  It dials per call,
// so it holds no connection state and is safe for concurrent use.
type Publisher struct {
	URL string
}

// Publish sends every job over a single connection.  Messages are
// persistent.  The first failure aborts the batch and is returned.
func (p *Publisher) Publish(ctx context.Context, jobs ...MailJob) error {
	if len(jobs) == 0 {
		return nil
	}
	conn, err := amqp.Dial(p.URL)
	if err != nil {
		return fmt.Errorf("rabbitmq dial: %w", err)
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("rabbitmq channel: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := declareMailQueue(ch); err != nil {
		return err
	}

	for _, job := range jobs {
		pub, err := newPublishing(job, time.Now().UTC())
		if err != nil {
			return err
		}
		if err := ch.PublishWithContext(ctx,
			"",            // default exchange
			MailQueueName, // routing key = queue name
			false,         // mandatory
			false,         // immediate
			pub,
		); err != nil {
			return fmt.Errorf("rabbitmq publish: %w", err)
		}
	}
	return nil
}

func declareMailQueue(ch *amqp.Channel) error {
	if _, err := ch.QueueDeclare(
		MailQueueName,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,
	); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	return nil
}

func newPublishing(job MailJob, now time.Time) (amqp.Publishing, error) {
	if job.QueuedAt == "" {
		job.QueuedAt = now.Format(time.RFC3339)
	}
	body, err := json.Marshal(job)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("marshal mail job: %w", err)
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    now,
		Type:         string(job.Kind),
		Body:         body,
	}, nil
}
