// Package worker delivers queued emails over SMTP and records the
// outcome in email_logs.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/openbadges/backend/pkg/queue"
)

// Sender delivers one email. SMTPSender is the production
// implementation; tests substitute a fake.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// SMTPSender sends mail through a plain SMTP relay.
type SMTPSender struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Send delivers one message. Uses AUTH PLAIN when credentials are set.
func (s *SMTPSender) Send(_ context.Context, to, subject, body string) error {
	addr := fmt.Sprintf("%s:%d", s.Host, s.Port)
	var auth smtp.Auth
	if s.Username != "" {
		auth = smtp.PlainAuth("", s.Username, s.Password, s.Host)
	}
	msg := strings.Join([]string{
		"From: " + s.From,
		"To: " + to,
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=utf-8",
		"",
		body,
	}, "\r\n")
	if err := smtp.SendMail(addr, auth, s.From, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

// JobSource feeds the worker loop. *queue.Queue is the production
// implementation; tests substitute an in-memory fake.
type JobSource interface {
	Dequeue(ctx context.Context) (*queue.Job, error)
	Retry(ctx context.Context, job *queue.Job) error
}

// DeliveryLog records delivery outcomes. *emaillogs.Repository
// implements it; may be nil to skip logging.
type DeliveryLog interface {
	RecordSent(ctx context.Context, emailType, recipientEmail, subject string) error
	RecordFailed(ctx context.Context, emailType, recipientEmail, subject, errMsg string) error
}

// EmailProcessor processes email jobs: deliver via the sender, record
// the outcome in email_logs.
type EmailProcessor struct {
	sender  Sender
	logs    DeliveryLog
	queue   JobSource
	backoff time.Duration
	logger  *zap.Logger
}

// NewEmailProcessor creates an email delivery processor.
func NewEmailProcessor(sender Sender, logs DeliveryLog, q JobSource, logger *zap.Logger) *EmailProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EmailProcessor{sender: sender, logs: logs, queue: q, backoff: queue.RetryBackoff, logger: logger}
}

// Process executes one email job.
func (p *EmailProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeEmail {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.EmailPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	if err := p.sender.Send(ctx, payload.RecipientEmail, payload.Subject, payload.BodyText); err != nil {
		if p.logs != nil {
			if logErr := p.logs.RecordFailed(ctx, payload.EmailType, payload.RecipientEmail, payload.Subject, err.Error()); logErr != nil {
				p.logger.Error("record failed email failed", zap.Error(logErr))
			}
		}
		return fmt.Errorf("send email: %w", err)
	}

	if p.logs != nil {
		if err := p.logs.RecordSent(ctx, payload.EmailType, payload.RecipientEmail, payload.Subject); err != nil {
			p.logger.Error("record sent email failed", zap.Error(err))
		}
	}
	p.logger.Info("email delivered",
		zap.String("email_type", payload.EmailType), zap.String("recipient", payload.RecipientEmail))
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *EmailProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("email worker stopping")
			return
		default:
		}

		job, err := p.queue.Dequeue(ctx)
		if err != nil {
			p.logger.Warn("dequeue error", zap.Error(err))
			time.Sleep(p.backoff)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := p.queue.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			time.Sleep(p.backoff)
			continue
		}
	}
}
