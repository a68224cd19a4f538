// Package openbadges assembles Open Badges v3.0 JSON-LD documents from
// persisted rows. Builders are pure: callers fetch everything up front
// and marshaling with encoding/json yields deterministic output.
package openbadges

// Context is the Open Badges v3.0 JSON-LD context URI.
const Context = "https://purl.imsglobal.org/spec/ob/v3p0/context-3.0.3.json"

// Profile identifies the entity behind a credential: a badge-issuing
// organization or an individual endorser. URL and image are explicit
// nulls rather than omitted so both shapes stay field-compatible.
type Profile struct {
	Type  []string `json:"type"`
	Name  string   `json:"name"`
	Email string   `json:"email"`
	URL   *string  `json:"url"`
	Image *string  `json:"image"`
}

// EndorsementSubject names the entity an endorsement is about.
type EndorsementSubject struct {
	Type               []string `json:"type"`
	ID                 string   `json:"id"`
	EndorsementComment string   `json:"endorsementComment"`
}

// EndorsementCredential is a third-party attestation embedded in an
// Achievement or OpenBadgeCredential. It carries no endorsement list of
// its own: embedding stops at one level.
type EndorsementCredential struct {
	Type              []string           `json:"type"`
	ID                string             `json:"id"`
	IssuanceDate      string             `json:"issuanceDate"`
	Issuer            Profile            `json:"issuer"`
	CredentialSubject EndorsementSubject `json:"credentialSubject"`
}

// Achievement describes a badge class.
type Achievement struct {
	Type            []string                `json:"type"`
	AchievementType string                  `json:"achievementType"`
	Name            string                  `json:"name"`
	Description     string                  `json:"description"`
	Criteria        string                  `json:"criteria"`
	Image           *string                 `json:"image"`
	Tag             []string                `json:"tag"`
	Version         string                  `json:"version"`
	Endorsement     []EndorsementCredential `json:"endorsement,omitempty"`
}

// Evidence justifies an award.
type Evidence struct {
	Type      []string `json:"type"`
	ID        string   `json:"id"`
	Narrative string   `json:"narrative"`
}

// AchievementSubject is the credential's recipient. The achievement is
// rebuilt rather than referenced so documents stay self-contained.
type AchievementSubject struct {
	Type        []string    `json:"type"`
	Identifier  string      `json:"identifier"`
	Achievement Achievement `json:"achievement"`
}

// Credential is a full OpenBadgeCredential document.
type Credential struct {
	Context           string                  `json:"@context"`
	Type              []string                `json:"type"`
	ID                string                  `json:"id"`
	Name              string                  `json:"name"`
	AwardedDate       string                  `json:"awardedDate"`
	Achievement       Achievement             `json:"achievement"`
	CredentialSubject AchievementSubject      `json:"credentialSubject"`
	Evidence          []Evidence              `json:"evidence,omitempty"`
	ExpirationDate    string                  `json:"expirationDate,omitempty"`
	Endorsement       []EndorsementCredential `json:"endorsement,omitempty"`
}
