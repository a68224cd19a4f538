package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// BadgeVersion is the Open Badges standard version an entity conforms to.
type BadgeVersion string

const (
	VersionV2 BadgeVersion = "v2"
	VersionV3 BadgeVersion = "v3"
)

// ValidVersion reports whether v is a known Open Badges version.
func ValidVersion(v BadgeVersion) bool {
	return v == VersionV2 || v == VersionV3
}

// KeyType is the signing algorithm family for issuer keys.
type KeyType string

const (
	KeyTypeRSA       KeyType = "rsa"
	KeyTypeEd25519   KeyType = "ed25519"
	KeyTypeSecp256k1 KeyType = "secp256k1"
)

// ValidKeyType reports whether k is a supported key type.
func ValidKeyType(k KeyType) bool {
	return k == KeyTypeRSA || k == KeyTypeEd25519 || k == KeyTypeSecp256k1
}

// Issuer is a badge-issuing organization ("Profile" in Open Badges v3).
type Issuer struct {
	ID             uuid.UUID       `json:"id"`
	Version        BadgeVersion    `json:"version"`
	Name           string          `json:"name"`
	URL            string          `json:"url"`
	Email          string          `json:"email"`
	Description    string          `json:"description"`
	Image          string          `json:"image"`
	PublicKey      string          `json:"public_key,omitempty"`
	KeyType        KeyType         `json:"key_type,omitempty"`
	PrivacyPolicy  string          `json:"privacy_policy,omitempty"`
	Verification   json.RawMessage `json:"verification,omitempty"`
	RevocationList string          `json:"revocation_list,omitempty"`
	OwnerID        uuid.UUID       `json:"owner_id"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// IssuerMember links a user as a non-owning member of an issuer.
type IssuerMember struct {
	ID       uuid.UUID `json:"id"`
	IssuerID uuid.UUID `json:"issuer_id"`
	UserID   uuid.UUID `json:"user_id"`
	JoinedAt time.Time `json:"joined_at"`
}

// ProfileName returns the organization name for credential profiles.
func (i *Issuer) ProfileName() string { return i.Name }

// ProfileEmail returns the contact email for credential profiles.
func (i *Issuer) ProfileEmail() string { return i.Email }

// ProfileURL returns the organization website.
func (i *Issuer) ProfileURL() string { return i.URL }

// ProfileImage returns the logo URL or stored asset reference.
func (i *Issuer) ProfileImage() string { return i.Image }
