package openbadges

import (
	"strings"
	"time"

	"github.com/openbadges/backend/internal/models"
)

// Profileable is anything that can appear as a credential Profile.
// Issuers and individual endorsers both qualify, so credential builders
// need no per-entity code paths.
type Profileable interface {
	ProfileName() string
	ProfileEmail() string
	ProfileURL() string
	ProfileImage() string
}

// ImageResolver turns a stored asset reference into an absolute URL.
// It reports false when the reference cannot be resolved.
type ImageResolver func(ref string) (string, bool)

// EndorsementView pairs an endorsement with its endorser for embedding.
type EndorsementView struct {
	Endorsement models.Endorsement
	Endorser    Profileable
}

// Assembler builds Open Badges v3.0 JSON-LD documents. It holds only
// the image resolver; every builder is a pure function of its inputs.
type Assembler struct {
	resolveImage ImageResolver
}

// NewAssembler creates an assembler. A nil resolver leaves non-absolute
// image references unresolved.
func NewAssembler(resolver ImageResolver) *Assembler {
	return &Assembler{resolveImage: resolver}
}

// ResolveImageURL passes absolute http(s) URLs through unchanged,
// resolves stored references through the injected resolver, and returns
// nil when resolution fails. It never errors.
func (a *Assembler) ResolveImageURL(image string) *string {
	if image == "" {
		return nil
	}
	if strings.HasPrefix(image, "http://") || strings.HasPrefix(image, "https://") {
		return &image
	}
	if a.resolveImage == nil {
		return nil
	}
	resolved, ok := a.resolveImage(image)
	if !ok {
		return nil
	}
	return &resolved
}

// BuildProfile projects an issuer or user into a Profile document.
func (a *Assembler) BuildProfile(p Profileable) Profile {
	var url *string
	if u := p.ProfileURL(); u != "" {
		url = &u
	}
	return Profile{
		Type:  []string{"Profile"},
		Name:  p.ProfileName(),
		Email: p.ProfileEmail(),
		URL:   url,
		Image: a.ResolveImageURL(p.ProfileImage()),
	}
}

// BuildEndorsementCredential projects one endorsement into an
// EndorsementCredential. The subject id is the endorsed entity's id and
// the issuer is the endorser's profile.
func (a *Assembler) BuildEndorsementCredential(v EndorsementView) EndorsementCredential {
	return EndorsementCredential{
		Type:         []string{"EndorsementCredential"},
		ID:           v.Endorsement.ID,
		IssuanceDate: v.Endorsement.IssuedOn.UTC().Format(time.RFC3339),
		Issuer:       a.BuildProfile(v.Endorser),
		CredentialSubject: EndorsementSubject{
			Type:               []string{"EndorsementSubject"},
			ID:                 v.Endorsement.Target.ID.String(),
			EndorsementComment: v.Endorsement.Claim.Text,
		},
	}
}

func (a *Assembler) buildEndorsements(views []EndorsementView) []EndorsementCredential {
	if len(views) == 0 {
		return nil
	}
	list := make([]EndorsementCredential, 0, len(views))
	for _, v := range views {
		list = append(list, a.BuildEndorsementCredential(v))
	}
	return list
}

// BuildAchievement projects a badge class into an Achievement. The
// endorsements must target the badge class and arrive newest first; they
// are embedded one level deep only.
func (a *Assembler) BuildAchievement(badge *models.BadgeClass, endorsements []EndorsementView) Achievement {
	return Achievement{
		Type:            []string{"Achievement"},
		AchievementType: badge.Type,
		Name:            badge.Name,
		Description:     badge.Description,
		Criteria:        badge.CriteriaURL,
		Image:           a.ResolveImageURL(badge.Image),
		Tag:             badge.SkillsList(),
		Version:         string(badge.Version),
		Endorsement:     a.buildEndorsements(endorsements),
	}
}

// BuildCredential projects an assertion and its badge class into a full
// OpenBadgeCredential. badgeEndorsements target the badge class and
// assertionEndorsements target the assertion itself, both newest first.
func (a *Assembler) BuildCredential(assertion *models.Assertion, badge *models.BadgeClass,
	badgeEndorsements, assertionEndorsements []EndorsementView) Credential {

	credentialType := assertion.CredentialType
	if len(credentialType) == 0 {
		credentialType = []string{"OpenBadgeCredential"}
	}
	id := assertion.CredentialID
	if id == "" {
		id = assertion.Identifier
	}

	achievement := a.BuildAchievement(badge, badgeEndorsements)
	c := Credential{
		Context:     Context,
		Type:        credentialType,
		ID:          id,
		Name:        badge.Name + " Credential",
		AwardedDate: assertion.IssuedOn.UTC().Format(time.RFC3339),
		Achievement: achievement,
		CredentialSubject: AchievementSubject{
			Type:        []string{"AchievementSubject"},
			Identifier:  assertion.RecipientIdentifier,
			Achievement: achievement,
		},
		Endorsement: a.buildEndorsements(assertionEndorsements),
	}
	if assertion.EvidenceURL != "" {
		c.Evidence = []Evidence{{
			Type:      []string{"Evidence"},
			ID:        assertion.EvidenceURL,
			Narrative: assertion.Narrative,
		}}
	}
	if assertion.Expires != nil {
		c.ExpirationDate = assertion.Expires.UTC().Format(time.RFC3339)
	}
	return c
}
