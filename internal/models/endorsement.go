package models

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// EndorsementKind identifies which kind of entity an endorsement attaches to.
type EndorsementKind string

const (
	EndorsementBadgeClass EndorsementKind = "badge_class"
	EndorsementIssuer     EndorsementKind = "issuer"
	EndorsementAssertion  EndorsementKind = "assertion"
)

// ErrInvalidTarget is returned when an endorsement target is zero-valued or
// carries an unknown kind.
var ErrInvalidTarget = errors.New("endorsement target must reference exactly one badge class, issuer or assertion")

// EndorsementTarget is a tagged reference to the one entity an endorsement
// attaches to. Constructing it through the per-kind helpers makes the
// "exactly one target" rule structural: a target always names one entity.
type EndorsementTarget struct {
	Kind EndorsementKind `json:"kind"`
	ID   uuid.UUID       `json:"id"`
}

// BadgeClassTarget references a badge class.
func BadgeClassTarget(id uuid.UUID) EndorsementTarget {
	return EndorsementTarget{Kind: EndorsementBadgeClass, ID: id}
}

// IssuerTarget references an issuer.
func IssuerTarget(id uuid.UUID) EndorsementTarget {
	return EndorsementTarget{Kind: EndorsementIssuer, ID: id}
}

// AssertionTarget references an assertion.
func AssertionTarget(id uuid.UUID) EndorsementTarget {
	return EndorsementTarget{Kind: EndorsementAssertion, ID: id}
}

// Validate rejects zero targets and unknown kinds.
func (t EndorsementTarget) Validate() error {
	if t.ID == uuid.Nil {
		return ErrInvalidTarget
	}
	switch t.Kind {
	case EndorsementBadgeClass, EndorsementIssuer, EndorsementAssertion:
		return nil
	}
	return ErrInvalidTarget
}

// Claim is the statement an endorser makes about the endorsed entity.
type Claim struct {
	Text   string    `json:"text"`
	Date   time.Time `json:"date"`
	Rating *int      `json:"rating,omitempty"`
}

// Endorsement is a third party's attestation about exactly one badge class,
// issuer or assertion. Target and endorser are immutable after creation; only
// the claim text may change.
type Endorsement struct {
	ID           string            `json:"id"`
	Target       EndorsementTarget `json:"target"`
	EndorserID   uuid.UUID         `json:"endorser_id"`
	Claim        Claim             `json:"claim"`
	IssuedOn     time.Time         `json:"issued_on"`
	Verification json.RawMessage   `json:"verification,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}
