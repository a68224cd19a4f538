package emaillogs

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openbadges/backend/internal/models"
)

// Repository handles email_logs persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an email logs repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// RecordSent inserts a successful delivery record.
func (r *Repository) RecordSent(ctx context.Context, emailType, recipientEmail, subject string) error {
	const q = `INSERT INTO email_logs (email_type, recipient_email, subject, status, sent_at)
		VALUES ($1, $2, $3, 'sent', $4)`
	_, err := r.pool.Exec(ctx, q, emailType, recipientEmail, subject, time.Now())
	return err
}

// RecordFailed inserts a failed delivery record with the error.
func (r *Repository) RecordFailed(ctx context.Context, emailType, recipientEmail, subject, errMsg string) error {
	const q = `INSERT INTO email_logs (email_type, recipient_email, subject, status, error_message)
		VALUES ($1, $2, $3, 'failed', $4)`
	_, err := r.pool.Exec(ctx, q, emailType, recipientEmail, subject, errMsg)
	return err
}

// List returns email logs, newest first.
func (r *Repository) List(ctx context.Context) ([]*models.EmailLog, error) {
	const q = `SELECT id, email_type, recipient_email, subject, status, error_message, sent_at, created_at
		FROM email_logs
		ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.EmailLog
	for rows.Next() {
		var el models.EmailLog
		if err := rows.Scan(&el.ID, &el.EmailType, &el.RecipientEmail, &el.Subject,
			&el.Status, &el.ErrorMessage, &el.SentAt, &el.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &el)
	}
	return list, rows.Err()
}
