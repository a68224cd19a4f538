package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// DefaultCredentialTypes are the v3 credential types used when an assertion
// does not carry an explicit type list.
var DefaultCredentialTypes = []string{"VerifiableCredential", "OpenBadgeCredential"}

// Assertion is an award of a BadgeClass to a recipient ("OpenBadgeCredential"
// in Open Badges v3). The legacy v2 badge_class reference and the v3
// achievement reference are the same underlying row; the API exposes the id
// under both names.
type Assertion struct {
	ID                  uuid.UUID       `json:"id"`
	RecipientID         uuid.UUID       `json:"recipient_id"`
	BadgeClassID        uuid.UUID       `json:"badge_class"`
	Identifier          string          `json:"identifier"`
	RecipientIdentifier string          `json:"recipient_identifier"`
	IssuedOn            time.Time       `json:"issued_on"`
	Evidence            json.RawMessage `json:"evidence,omitempty"`
	EvidenceURL         string          `json:"evidence_url,omitempty"`
	Narrative           string          `json:"narrative,omitempty"`
	Expires             *time.Time      `json:"expires,omitempty"`
	Revoked             bool            `json:"revoked"`
	RevocationReason    string          `json:"revocation_reason,omitempty"`
	Version             BadgeVersion    `json:"version"`
	CredentialID        string          `json:"credential_id,omitempty"`
	CredentialType      []string        `json:"credential_type,omitempty"`
	Verification        json.RawMessage `json:"verification,omitempty"`
	Signature           string          `json:"signature,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// MarshalJSON exposes the badge class id under both the legacy v2 name and
// the v3 achievement name.
func (a Assertion) MarshalJSON() ([]byte, error) {
	type alias Assertion
	return json.Marshal(struct {
		alias
		Achievement uuid.UUID `json:"achievement"`
	}{alias(a), a.BadgeClassID})
}
