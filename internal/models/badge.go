package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// BadgeClass is a badge definition ("Achievement" in Open Badges v3).
// Image holds either an absolute URL or an S3 object key for an uploaded asset.
type BadgeClass struct {
	ID          uuid.UUID    `json:"id"`
	Version     BadgeVersion `json:"version"`
	Name        string       `json:"name"`
	Type        string       `json:"type"`
	Description string       `json:"description"`
	Image       string       `json:"image"`
	CriteriaURL string       `json:"criteria_url"`
	IssuerID    uuid.UUID    `json:"issuer_id"`
	Category    string       `json:"category"`
	Skills      string       `json:"skills"`
	Level       string       `json:"level"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// SkillsList splits the comma-delimited skills field into trimmed tags.
// Returns an empty (non-nil) slice when no skills are set.
func (b *BadgeClass) SkillsList() []string {
	tags := []string{}
	for _, s := range strings.Split(b.Skills, ",") {
		if t := strings.TrimSpace(s); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

// Alignment maps a badge class to an external competency-framework entry.
type Alignment struct {
	ID                uuid.UUID `json:"id"`
	BadgeClassID      uuid.UUID `json:"badge_class_id"`
	TargetName        string    `json:"target_name"`
	TargetURL         string    `json:"target_url"`
	TargetDescription string    `json:"target_description"`
	TargetFramework   string    `json:"target_framework"`
	TargetCode        string    `json:"target_code"`
	CreatedAt         time.Time `json:"created_at"`
}
