// Package mail renders and delivers the service's transactional emails
// over SMTP.
package mail

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"html/template"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/gomail.v2"

	"github.com/bloodlink/blood-donor-backend/internal/config"
	"github.com/bloodlink/blood-donor-backend/internal/queue"
)

// Mailer renders a MailJob with its template and sends it via SMTP.
type Mailer struct {
	cfg       config.SMTPConfig
	templates map[queue.MailKind]*template.Template
	send      func(*gomail.Message) error
}

// NewMailer parses the templates.  A file named <kind>.html in
// cfg.Templates replaces the built-in template for that kind.
func NewMailer(cfg config.SMTPConfig) (*Mailer, error) {
	m := &Mailer{cfg: cfg, templates: make(map[queue.MailKind]*template.Template, len(defaults))}
	for kind, def := range defaults {
		var (
			tmpl *template.Template
			err  error
		)
		if cfg.Templates != "" {
			path := filepath.Join(cfg.Templates, string(kind)+".html")
			if _, statErr := os.Stat(path); statErr == nil {
				tmpl, err = template.ParseFiles(path)
			}
		}
		if tmpl == nil && err == nil {
			tmpl, err = template.New(string(kind)).Parse(def.body)
		}
		if err != nil {
			return nil, fmt.Errorf("parse %s template: %w", kind, err)
		}
		m.templates[kind] = tmpl
	}
	m.send = m.dialAndSend
	return m, nil
}

// Render returns the subject and HTML body for a job.
func (m *Mailer) Render(job queue.MailJob) (string, string, error) {
	tmpl, ok := m.templates[job.Kind]
	if !ok {
		return "", "", fmt.Errorf("no template for mail kind %q", job.Kind)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, job); err != nil {
		return "", "", fmt.Errorf("render %s: %w", job.Kind, err)
	}
	return defaults[job.Kind].subject(job), buf.String(), nil
}

// Send renders and delivers the job.  It satisfies queue.Sender.
func (m *Mailer) Send(ctx context.Context, job queue.MailJob) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	subject, body, err := m.Render(job)
	if err != nil {
		return err
	}
	msg := gomail.NewMessage()
	msg.SetAddressHeader("From", m.cfg.FromEmail, m.cfg.FromName)
	msg.SetHeader("To", job.To)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", body)

	if err := m.send(msg); err != nil {
		return fmt.Errorf("send %s mail: %w", job.Kind, err)
	}
	slog.Debug("mail sent", "kind", job.Kind, "request_id", job.RequestID)
	return nil
}

func (m *Mailer) dialAndSend(msg *gomail.Message) error {
	d := gomail.NewDialer(m.cfg.Host, m.cfg.Port, m.cfg.Username, m.cfg.Password)
	// STARTTLS on submission ports, implicit TLS (465) otherwise
	d.SSL = !m.cfg.UseTLS
	d.TLSConfig = &tls.Config{ServerName: m.cfg.Host}
	return d.DialAndSend(msg)
}
