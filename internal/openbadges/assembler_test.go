package openbadges

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/openbadges/backend/internal/models"
)

func testBadge() *models.BadgeClass {
	return &models.BadgeClass{
		ID:          uuid.MustParse("6f1c2a2e-9c1d-4a7a-8b0e-111111111111"),
		Version:     models.VersionV3,
		Name:        "Test Badge",
		Type:        "Achievement",
		Description: "A badge for testing",
		Image:       "https://img.example.com/badge.png",
		CriteriaURL: "https://example.com/criteria",
		Skills:      "go, testing ,  backend",
	}
}

func testAssertion(badgeID uuid.UUID) *models.Assertion {
	return &models.Assertion{
		ID:                  uuid.MustParse("9a51d2a8-1b6c-4f34-9f53-222222222222"),
		BadgeClassID:        badgeID,
		Identifier:          "https://example.com/badges/9a51d2a8-1b6c-4f34-9f53-222222222222",
		RecipientIdentifier: "recipient@example.com",
		IssuedOn:            time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC),
		Version:             models.VersionV3,
		CredentialType:      []string{"VerifiableCredential", "OpenBadgeCredential"},
	}
}

func endorsementView(target models.EndorsementTarget, text string, issuedOn time.Time) EndorsementView {
	return EndorsementView{
		Endorsement: models.Endorsement{
			ID:         "endorsement-" + uuid.New().String(),
			Target:     target,
			EndorserID: uuid.New(),
			Claim:      models.Claim{Text: text, Date: issuedOn},
			IssuedOn:   issuedOn,
		},
		Endorser: &models.User{Email: "endorser@example.com", DisplayName: "An Endorser"},
	}
}

func TestBuildCredentialDeterministic(t *testing.T) {
	a := NewAssembler(nil)
	badge := testBadge()
	assertion := testAssertion(badge.ID)

	first, err := json.Marshal(a.BuildCredential(assertion, badge, nil, nil))
	if err != nil {
		t.Fatal(err)
	}
	second, err := json.Marshal(a.BuildCredential(assertion, badge, nil, nil))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(first, second) {
		t.Errorf("credential JSON not deterministic:\n%s\n%s", first, second)
	}
}

func TestBuildCredentialShape(t *testing.T) {
	a := NewAssembler(nil)
	badge := testBadge()
	assertion := testAssertion(badge.ID)

	c := a.BuildCredential(assertion, badge, nil, nil)
	if c.Context != Context {
		t.Errorf("context = %q, want %q", c.Context, Context)
	}
	if c.Name != "Test Badge Credential" {
		t.Errorf("name = %q", c.Name)
	}
	if c.ID != assertion.Identifier {
		t.Errorf("id = %q, want identifier fallback", c.ID)
	}
	if c.AwardedDate != "2025-03-10T12:00:00Z" {
		t.Errorf("awardedDate = %q", c.AwardedDate)
	}
	if c.CredentialSubject.Identifier != "recipient@example.com" {
		t.Errorf("subject identifier = %q", c.CredentialSubject.Identifier)
	}
	if c.CredentialSubject.Achievement.Name != badge.Name {
		t.Errorf("subject achievement name = %q", c.CredentialSubject.Achievement.Name)
	}
}

func TestBuildCredentialIDPrefersCredentialID(t *testing.T) {
	a := NewAssembler(nil)
	badge := testBadge()
	assertion := testAssertion(badge.ID)
	assertion.CredentialID = "https://example.com/credentials/abc"

	c := a.BuildCredential(assertion, badge, nil, nil)
	if c.ID != "https://example.com/credentials/abc" {
		t.Errorf("id = %q, want credential_id", c.ID)
	}
}

func TestBuildCredentialTypeFallback(t *testing.T) {
	a := NewAssembler(nil)
	badge := testBadge()
	assertion := testAssertion(badge.ID)
	assertion.CredentialType = nil

	c := a.BuildCredential(assertion, badge, nil, nil)
	if len(c.Type) != 1 || c.Type[0] != "OpenBadgeCredential" {
		t.Errorf("type = %v, want [OpenBadgeCredential]", c.Type)
	}
}

func TestEvidenceWithoutExpiration(t *testing.T) {
	a := NewAssembler(nil)
	badge := testBadge()
	assertion := testAssertion(badge.ID)
	assertion.EvidenceURL = "https://example.com/evidence/1"
	assertion.Narrative = "Completed the course"

	raw, err := json.Marshal(a.BuildCredential(assertion, badge, nil, nil))
	if err != nil {
		t.Fatal(err)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatal(err)
	}
	if _, ok := doc["evidence"]; !ok {
		t.Error("evidence key missing")
	}
	if _, ok := doc["expirationDate"]; ok {
		t.Error("expirationDate present without expires")
	}
}

func TestBuildAchievementEndorsementOrderAndComment(t *testing.T) {
	a := NewAssembler(nil)
	badge := testBadge()
	target := models.BadgeClassTarget(badge.ID)

	// Caller supplies newest first, as the repository query orders them.
	newest := endorsementView(target, "Ce badge est excellent", time.Date(2025, 5, 2, 0, 0, 0, 0, time.UTC))
	oldest := endorsementView(target, "Solide", time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC))

	doc := a.BuildAchievement(badge, []EndorsementView{newest, oldest})
	if len(doc.Endorsement) != 2 {
		t.Fatalf("endorsement count = %d, want 2", len(doc.Endorsement))
	}
	if doc.Endorsement[0].CredentialSubject.EndorsementComment != "Ce badge est excellent" {
		t.Errorf("comment = %q", doc.Endorsement[0].CredentialSubject.EndorsementComment)
	}
	if doc.Endorsement[0].IssuanceDate < doc.Endorsement[1].IssuanceDate {
		t.Error("endorsements not newest first")
	}
	if doc.Endorsement[0].CredentialSubject.ID != badge.ID.String() {
		t.Errorf("subject id = %q, want badge id", doc.Endorsement[0].CredentialSubject.ID)
	}
}

func TestBuildAchievementVersionRoundTrip(t *testing.T) {
	a := NewAssembler(nil)
	for _, version := range []models.BadgeVersion{models.VersionV2, models.VersionV3} {
		badge := testBadge()
		badge.Version = version
		doc := a.BuildAchievement(badge, nil)
		if doc.Version != string(version) {
			t.Errorf("version = %q, want %q", doc.Version, version)
		}
	}
}

func TestBuildAchievementTagNeverNil(t *testing.T) {
	a := NewAssembler(nil)
	badge := testBadge()
	badge.Skills = ""

	raw, err := json.Marshal(a.BuildAchievement(badge, nil))
	if err != nil {
		t.Fatal(err)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatal(err)
	}
	tags, ok := doc["tag"].([]any)
	if !ok {
		t.Fatalf("tag is %T, want empty array", doc["tag"])
	}
	if len(tags) != 0 {
		t.Errorf("tag = %v, want empty", tags)
	}
}

func TestBuildAchievementSkillsSplit(t *testing.T) {
	a := NewAssembler(nil)
	doc := a.BuildAchievement(testBadge(), nil)
	want := []string{"go", "testing", "backend"}
	if len(doc.Tag) != len(want) {
		t.Fatalf("tag = %v, want %v", doc.Tag, want)
	}
	for i := range want {
		if doc.Tag[i] != want[i] {
			t.Errorf("tag[%d] = %q, want %q", i, doc.Tag[i], want[i])
		}
	}
}

func TestEndorsementCredentialEmbedsOneLevel(t *testing.T) {
	a := NewAssembler(nil)
	target := models.BadgeClassTarget(uuid.New())
	v := endorsementView(target, "great", time.Now().UTC())

	raw, err := json.Marshal(a.BuildEndorsementCredential(v))
	if err != nil {
		t.Fatal(err)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatal(err)
	}
	if _, ok := doc["endorsement"]; ok {
		t.Error("embedded endorsement carries nested endorsements")
	}
}

func TestBuildProfilePolymorphic(t *testing.T) {
	a := NewAssembler(nil)

	user := &models.User{Email: "jane@example.com", DisplayName: "Jane", AvatarURL: "https://example.com/a.png"}
	p := a.BuildProfile(user)
	if p.Name != "Jane" || p.Email != "jane@example.com" {
		t.Errorf("user profile = %+v", p)
	}
	if p.URL != nil {
		t.Errorf("user profile url = %v, want null", *p.URL)
	}
	if p.Image == nil || *p.Image != "https://example.com/a.png" {
		t.Errorf("user profile image = %v", p.Image)
	}

	// Display name falls back to email.
	anon := &models.User{Email: "anon@example.com"}
	if got := a.BuildProfile(anon).Name; got != "anon@example.com" {
		t.Errorf("fallback name = %q", got)
	}

	issuer := &models.Issuer{Name: "Test Issuer", Email: "contact@issuer.org", URL: "https://issuer.org"}
	p = a.BuildProfile(issuer)
	if p.Name != "Test Issuer" {
		t.Errorf("issuer profile name = %q", p.Name)
	}
	if p.URL == nil || *p.URL != "https://issuer.org" {
		t.Errorf("issuer profile url = %v", p.URL)
	}
}

func TestResolveImageURL(t *testing.T) {
	resolved := "https://cdn.example.com/badges/key.png"
	a := NewAssembler(func(ref string) (string, bool) {
		if ref == "badges/key.png" {
			return resolved, true
		}
		return "", false
	})

	if got := a.ResolveImageURL("https://direct.example.com/x.png"); got == nil || *got != "https://direct.example.com/x.png" {
		t.Errorf("absolute URL not passed through: %v", got)
	}
	if got := a.ResolveImageURL("badges/key.png"); got == nil || *got != resolved {
		t.Errorf("stored ref not resolved: %v", got)
	}
	if got := a.ResolveImageURL("unknown/key"); got != nil {
		t.Errorf("failed resolution = %v, want nil", *got)
	}
	if got := a.ResolveImageURL(""); got != nil {
		t.Errorf("empty image = %v, want nil", *got)
	}

	bare := NewAssembler(nil)
	if got := bare.ResolveImageURL("badges/key.png"); got != nil {
		t.Errorf("nil resolver returned %v, want nil", *got)
	}
}
