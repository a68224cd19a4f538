package endorsements

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/openbadges/backend/internal/auth"
	"github.com/openbadges/backend/internal/middleware"
	"github.com/openbadges/backend/internal/models"
)

// fakeStore keeps endorsements in memory and mirrors the repository's
// ordering and error semantics.
type fakeStore struct {
	endorsements map[string]*models.Endorsement
	targets      map[models.EndorsementTarget]bool
	issuerOwners map[uuid.UUID]bool
	endorsers    map[uuid.UUID]models.User
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		endorsements: map[string]*models.Endorsement{},
		targets:      map[models.EndorsementTarget]bool{},
		issuerOwners: map[uuid.UUID]bool{},
		endorsers:    map[uuid.UUID]models.User{},
	}
}

func (s *fakeStore) Create(_ context.Context, e *models.Endorsement) error {
	if !s.targets[e.Target] {
		return ErrTargetNotFound
	}
	now := time.Now().UTC()
	e.IssuedOn = now
	e.CreatedAt = now
	e.UpdatedAt = now
	clone := *e
	s.endorsements[e.ID] = &clone
	return nil
}

func (s *fakeStore) GetByID(_ context.Context, id string) (*models.Endorsement, error) {
	e, ok := s.endorsements[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *e
	return &clone, nil
}

func (s *fakeStore) ListByTarget(_ context.Context, target models.EndorsementTarget) ([]EndorsementWithEndorser, error) {
	var list []EndorsementWithEndorser
	for _, e := range s.endorsements {
		if e.Target == target {
			list = append(list, EndorsementWithEndorser{
				Endorsement: *e,
				Endorser:    s.endorsers[e.EndorserID],
			})
		}
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].Endorsement.IssuedOn.After(list[j].Endorsement.IssuedOn)
	})
	return list, nil
}

func (s *fakeStore) UpdateClaimText(_ context.Context, id, text string) (*models.Endorsement, error) {
	e, ok := s.endorsements[id]
	if !ok {
		return nil, ErrNotFound
	}
	e.Claim.Text = text
	e.UpdatedAt = time.Now().UTC()
	clone := *e
	return &clone, nil
}

func (s *fakeStore) Delete(_ context.Context, id string) error {
	if _, ok := s.endorsements[id]; !ok {
		return ErrNotFound
	}
	delete(s.endorsements, id)
	return nil
}

func (s *fakeStore) TargetExists(_ context.Context, target models.EndorsementTarget) (bool, error) {
	return s.targets[target], nil
}

func (s *fakeStore) UserOwnsAnyIssuer(_ context.Context, userID uuid.UUID) (bool, error) {
	return s.issuerOwners[userID], nil
}

// identity describes the authenticated caller a test request runs as.
type identity struct {
	userID       uuid.UUID
	isStaff      bool
	isPlaceAdmin bool
}

func authAs(id identity) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.ContextUserID, id.userID)
		c.Set(middleware.ContextUserEmail, "caller@example.com")
		c.Set(middleware.ContextIsStaff, id.isStaff)
		c.Set(middleware.ContextIsPlaceAdmin, id.isPlaceAdmin)
		c.Next()
	}
}

func newRouter(h *Handler, authn gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/endorsements", h.List)
	r.GET("/endorsements/resolve", h.Resolve)
	protected := r.Group("/")
	protected.Use(authn)
	{
		protected.POST("/endorsements", h.Create)
		protected.PUT("/endorsements/:id", h.Update)
		protected.DELETE("/endorsements/:id", h.Delete)
	}
	return r
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCreateRequiresAuthentication(t *testing.T) {
	store := newFakeStore()
	badgeID := uuid.New()
	store.targets[models.BadgeClassTarget(badgeID)] = true

	h := NewHandler(store, nil, zap.NewNop())
	jwtService := auth.NewJWTService("test-secret", 1)
	r := newRouter(h, middleware.JWT(jwtService))

	w := doJSON(t, r, http.MethodPost, "/endorsements", gin.H{
		"badge_class_id": badgeID.String(),
		"claim_text":     "great badge",
	})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
	if len(store.endorsements) != 0 {
		t.Errorf("endorsement count = %d, want 0", len(store.endorsements))
	}
}

func TestCreateRejectsAmbiguousTarget(t *testing.T) {
	store := newFakeStore()
	badgeID, issuerID := uuid.New(), uuid.New()
	store.targets[models.BadgeClassTarget(badgeID)] = true
	store.targets[models.IssuerTarget(issuerID)] = true

	h := NewHandler(store, nil, zap.NewNop())
	r := newRouter(h, authAs(identity{userID: uuid.New(), isStaff: true}))

	cases := []gin.H{
		{"claim_text": "x"},
		{"badge_class_id": badgeID.String(), "issuer_id": issuerID.String(), "claim_text": "x"},
		{"badge_class_id": "not-a-uuid", "claim_text": "x"},
	}
	for _, body := range cases {
		w := doJSON(t, r, http.MethodPost, "/endorsements", body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("body %v: status = %d, want 400", body, w.Code)
		}
	}
	if len(store.endorsements) != 0 {
		t.Errorf("endorsement count = %d, want 0", len(store.endorsements))
	}
}

func TestCreateAuthorization(t *testing.T) {
	store := newFakeStore()
	badgeID := uuid.New()
	store.targets[models.BadgeClassTarget(badgeID)] = true
	owner := uuid.New()
	store.issuerOwners[owner] = true

	h := NewHandler(store, nil, zap.NewNop())
	body := gin.H{"badge_class_id": badgeID.String(), "claim_text": "well earned"}

	r := newRouter(h, authAs(identity{userID: uuid.New()}))
	if w := doJSON(t, r, http.MethodPost, "/endorsements", body); w.Code != http.StatusForbidden {
		t.Errorf("plain user status = %d, want 403", w.Code)
	}

	for name, id := range map[string]identity{
		"staff":        {userID: uuid.New(), isStaff: true},
		"place admin":  {userID: uuid.New(), isPlaceAdmin: true},
		"issuer owner": {userID: owner},
	} {
		r := newRouter(h, authAs(id))
		if w := doJSON(t, r, http.MethodPost, "/endorsements", body); w.Code != http.StatusCreated {
			t.Errorf("%s status = %d, want 201", name, w.Code)
		}
	}
}

func TestCreateEndorsement(t *testing.T) {
	store := newFakeStore()
	assertionID := uuid.New()
	store.targets[models.AssertionTarget(assertionID)] = true

	h := NewHandler(store, nil, zap.NewNop())
	r := newRouter(h, authAs(identity{userID: uuid.New(), isStaff: true}))

	rating := 5
	w := doJSON(t, r, http.MethodPost, "/endorsements", gin.H{
		"assertion_id": assertionID.String(),
		"claim_text":   "Ce badge est excellent",
		"rating":       rating,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", w.Code, w.Body)
	}

	var resp struct {
		Data struct {
			Endorsement models.Endorsement `json:"endorsement"`
			IsEndorsed  bool               `json:"is_endorsed"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	e := resp.Data.Endorsement
	if !strings.HasPrefix(e.ID, "endorsement-") {
		t.Errorf("id = %q, want endorsement- prefix", e.ID)
	}
	if e.Target.Kind != models.EndorsementAssertion || e.Target.ID != assertionID {
		t.Errorf("target = %+v", e.Target)
	}
	if e.Claim.Text != "Ce badge est excellent" {
		t.Errorf("claim text = %q", e.Claim.Text)
	}
	if e.Claim.Rating == nil || *e.Claim.Rating != 5 {
		t.Errorf("rating = %v", e.Claim.Rating)
	}
	if !resp.Data.IsEndorsed {
		t.Error("is_endorsed = false")
	}
}

func TestCreateValidation(t *testing.T) {
	store := newFakeStore()
	badgeID := uuid.New()
	store.targets[models.BadgeClassTarget(badgeID)] = true

	h := NewHandler(store, nil, zap.NewNop())
	r := newRouter(h, authAs(identity{userID: uuid.New(), isStaff: true}))

	if w := doJSON(t, r, http.MethodPost, "/endorsements", gin.H{
		"badge_class_id": badgeID.String(),
		"claim_text":     "   ",
	}); w.Code != http.StatusUnprocessableEntity {
		t.Errorf("blank claim status = %d, want 422", w.Code)
	}

	bad := 6
	if w := doJSON(t, r, http.MethodPost, "/endorsements", gin.H{
		"badge_class_id": badgeID.String(),
		"claim_text":     "fine",
		"rating":         bad,
	}); w.Code != http.StatusUnprocessableEntity {
		t.Errorf("rating 6 status = %d, want 422", w.Code)
	}
}

func TestCreateUnknownTarget(t *testing.T) {
	store := newFakeStore()
	h := NewHandler(store, nil, zap.NewNop())
	r := newRouter(h, authAs(identity{userID: uuid.New(), isStaff: true}))

	w := doJSON(t, r, http.MethodPost, "/endorsements", gin.H{
		"badge_class_id": uuid.NewString(),
		"claim_text":     "x",
	})
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestListNewestFirst(t *testing.T) {
	store := newFakeStore()
	badgeID := uuid.New()
	target := models.BadgeClassTarget(badgeID)
	store.targets[target] = true

	endorser := uuid.New()
	store.endorsers[endorser] = models.User{Email: "peer@example.com", DisplayName: "Peer"}
	for i, text := range []string{"first", "second", "third"} {
		id := "endorsement-" + uuid.NewString()
		store.endorsements[id] = &models.Endorsement{
			ID:         id,
			Target:     target,
			EndorserID: endorser,
			Claim:      models.Claim{Text: text},
			IssuedOn:   time.Date(2025, 1, 1+i, 0, 0, 0, 0, time.UTC),
		}
	}

	h := NewHandler(store, nil, zap.NewNop())
	r := newRouter(h, authAs(identity{userID: uuid.New()}))

	w := doJSON(t, r, http.MethodGet, "/endorsements?badge_class_id="+badgeID.String(), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body)
	}
	var resp struct {
		Data []EndorsementView `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Data) != 3 {
		t.Fatalf("count = %d, want 3", len(resp.Data))
	}
	if resp.Data[0].Claim.Text != "third" || resp.Data[2].Claim.Text != "first" {
		t.Errorf("order = %q, %q, %q; want newest first",
			resp.Data[0].Claim.Text, resp.Data[1].Claim.Text, resp.Data[2].Claim.Text)
	}
	if resp.Data[0].EndorserName != "Peer" || resp.Data[0].EndorserEmail != "peer@example.com" {
		t.Errorf("endorser = %q <%s>", resp.Data[0].EndorserName, resp.Data[0].EndorserEmail)
	}
}

func TestUpdateClaimText(t *testing.T) {
	store := newFakeStore()
	badgeID := uuid.New()
	target := models.BadgeClassTarget(badgeID)
	store.targets[target] = true

	endorser := uuid.New()
	issued := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	id := "endorsement-" + uuid.NewString()
	store.endorsements[id] = &models.Endorsement{
		ID: id, Target: target, EndorserID: endorser,
		Claim:    models.Claim{Text: "original", Date: issued},
		IssuedOn: issued,
	}

	h := NewHandler(store, nil, zap.NewNop())

	// Another authenticated user may not touch it.
	other := newRouter(h, authAs(identity{userID: uuid.New(), isStaff: true}))
	if w := doJSON(t, other, http.MethodPut, "/endorsements/"+id, gin.H{"claim_text": "hijacked"}); w.Code != http.StatusForbidden {
		t.Errorf("non-endorser update status = %d, want 403", w.Code)
	}

	r := newRouter(h, authAs(identity{userID: endorser}))
	w := doJSON(t, r, http.MethodPut, "/endorsements/"+id, gin.H{"claim_text": "revised"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body)
	}
	var resp struct {
		Data models.Endorsement `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Data.Claim.Text != "revised" {
		t.Errorf("claim text = %q", resp.Data.Claim.Text)
	}
	if resp.Data.ID != id || !resp.Data.IssuedOn.Equal(issued) {
		t.Errorf("identity changed: id=%q issued_on=%v", resp.Data.ID, resp.Data.IssuedOn)
	}

	if w := doJSON(t, r, http.MethodPut, "/endorsements/"+id, gin.H{"claim_text": ""}); w.Code != http.StatusUnprocessableEntity {
		t.Errorf("blank claim status = %d, want 422", w.Code)
	}
}

func TestDeleteEndorserOnly(t *testing.T) {
	store := newFakeStore()
	target := models.BadgeClassTarget(uuid.New())
	store.targets[target] = true

	endorser := uuid.New()
	id := "endorsement-" + uuid.NewString()
	store.endorsements[id] = &models.Endorsement{ID: id, Target: target, EndorserID: endorser}

	h := NewHandler(store, nil, zap.NewNop())

	other := newRouter(h, authAs(identity{userID: uuid.New(), isStaff: true}))
	if w := doJSON(t, other, http.MethodDelete, "/endorsements/"+id, nil); w.Code != http.StatusForbidden {
		t.Errorf("non-endorser delete status = %d, want 403", w.Code)
	}

	r := newRouter(h, authAs(identity{userID: endorser}))
	if w := doJSON(t, r, http.MethodDelete, "/endorsements/"+id, nil); w.Code != http.StatusNoContent {
		t.Errorf("delete status = %d, want 204", w.Code)
	}
	if _, ok := store.endorsements[id]; ok {
		t.Error("endorsement still present after delete")
	}

	if w := doJSON(t, r, http.MethodDelete, "/endorsements/"+id, nil); w.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", w.Code)
	}
}

// invalidationRecorder records which targets had cached credentials dropped.
type invalidationRecorder struct {
	targets []models.EndorsementTarget
}

func (r *invalidationRecorder) InvalidateTarget(_ context.Context, target models.EndorsementTarget) {
	r.targets = append(r.targets, target)
}

func TestWritesInvalidateCache(t *testing.T) {
	store := newFakeStore()
	target := models.BadgeClassTarget(uuid.New())
	store.targets[target] = true

	rec := &invalidationRecorder{}
	h := NewHandler(store, rec, zap.NewNop())
	r := newRouter(h, authAs(identity{userID: uuid.New(), isStaff: true}))

	w := doJSON(t, r, http.MethodPost, "/endorsements", gin.H{
		"badge_class_id": target.ID.String(),
		"claim_text":     "cached no more",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d", w.Code)
	}
	if len(rec.targets) != 1 || rec.targets[0] != target {
		t.Errorf("invalidated targets = %v, want [%v]", rec.targets, target)
	}
}

func TestResolveTarget(t *testing.T) {
	store := newFakeStore()
	issuerID := uuid.New()
	store.targets[models.IssuerTarget(issuerID)] = true

	h := NewHandler(store, nil, zap.NewNop())
	r := newRouter(h, authAs(identity{userID: uuid.New()}))

	w := doJSON(t, r, http.MethodGet, "/endorsements/resolve?issuer_id="+issuerID.String(), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body)
	}
	var resp struct {
		Data models.EndorsementTarget `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Data.Kind != models.EndorsementIssuer || resp.Data.ID != issuerID {
		t.Errorf("target = %+v", resp.Data)
	}

	if w := doJSON(t, r, http.MethodGet, "/endorsements/resolve?issuer_id="+uuid.NewString(), nil); w.Code != http.StatusNotFound {
		t.Errorf("unknown issuer status = %d, want 404", w.Code)
	}
	if w := doJSON(t, r, http.MethodGet, "/endorsements/resolve", nil); w.Code != http.StatusBadRequest {
		t.Errorf("no target status = %d, want 400", w.Code)
	}
}
