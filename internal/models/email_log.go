package models

import (
	"time"

	"github.com/google/uuid"
)

// EmailLog records one delivery attempt made by the worker.
type EmailLog struct {
	ID             uuid.UUID  `json:"id"`
	EmailType      string     `json:"email_type"`
	RecipientEmail string     `json:"recipient_email"`
	Subject        string     `json:"subject"`
	Status         string     `json:"status"` // sent | failed
	ErrorMessage   string     `json:"error_message,omitempty"`
	SentAt         *time.Time `json:"sent_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}
