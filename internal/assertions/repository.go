package assertions

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openbadges/backend/internal/models"
)

// ErrAlreadyAwarded means the recipient already holds this badge.
var ErrAlreadyAwarded = errors.New("badge already awarded to recipient")

const assertionColumns = `id, recipient_id, badge_class_id, identifier, recipient_identifier,
	issued_on, evidence, evidence_url, narrative, expires, revoked, revocation_reason,
	version, credential_id, credential_type, verification, signature, created_at, updated_at`

// Repository handles assertion persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an assertions repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanAssertion(row interface{ Scan(...any) error }) (*models.Assertion, error) {
	var a models.Assertion
	var credentialID *string
	var credentialType []byte
	err := row.Scan(&a.ID, &a.RecipientID, &a.BadgeClassID, &a.Identifier, &a.RecipientIdentifier,
		&a.IssuedOn, &a.Evidence, &a.EvidenceURL, &a.Narrative, &a.Expires, &a.Revoked, &a.RevocationReason,
		&a.Version, &credentialID, &credentialType, &a.Verification, &a.Signature, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if credentialID != nil {
		a.CredentialID = *credentialID
	}
	if len(credentialType) > 0 {
		if err := json.Unmarshal(credentialType, &a.CredentialType); err != nil {
			return nil, err
		}
	}
	return &a, nil
}

// Create inserts an assertion with a caller-generated ID so identifier
// URLs derived from it can be stored in the same insert. Returns
// ErrAlreadyAwarded when the recipient already holds the badge.
func (r *Repository) Create(ctx context.Context, a *models.Assertion) error {
	const q = `INSERT INTO assertions (id, recipient_id, badge_class_id, identifier, recipient_identifier,
		evidence, evidence_url, narrative, expires, version, credential_id, credential_type, verification)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NULLIF($11, ''), $12, $13)
		RETURNING issued_on, created_at, updated_at`
	evidence := a.Evidence
	if len(evidence) == 0 {
		evidence = []byte(`[]`)
	}
	verification := a.Verification
	if len(verification) == 0 {
		verification = []byte(`{}`)
	}
	credentialType, err := json.Marshal(a.CredentialType)
	if err != nil {
		return err
	}
	err = r.pool.QueryRow(ctx, q, a.ID, a.RecipientID, a.BadgeClassID, a.Identifier, a.RecipientIdentifier,
		evidence, a.EvidenceURL, a.Narrative, a.Expires, a.Version, a.CredentialID, credentialType, verification).
		Scan(&a.IssuedOn, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrAlreadyAwarded
		}
		return err
	}
	return nil
}

// GetByID returns an assertion by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Assertion, error) {
	return scanAssertion(r.pool.QueryRow(ctx, `SELECT `+assertionColumns+` FROM assertions WHERE id = $1`, id))
}

// List returns all assertions, newest first.
func (r *Repository) List(ctx context.Context) ([]*models.Assertion, error) {
	return r.listQuery(ctx, `SELECT `+assertionColumns+` FROM assertions ORDER BY issued_on DESC`)
}

// ListByRecipient returns assertions held by the user, newest first.
func (r *Repository) ListByRecipient(ctx context.Context, recipientID uuid.UUID) ([]*models.Assertion, error) {
	return r.listQuery(ctx,
		`SELECT `+assertionColumns+` FROM assertions WHERE recipient_id = $1 ORDER BY issued_on DESC`, recipientID)
}

func (r *Repository) listQuery(ctx context.Context, q string, args ...any) ([]*models.Assertion, error) {
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Assertion
	for rows.Next() {
		a, err := scanAssertion(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, a)
	}
	return list, rows.Err()
}

// Revoke marks an assertion revoked with a reason. Rows are never deleted.
func (r *Repository) Revoke(ctx context.Context, id uuid.UUID, reason string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE assertions SET revoked = TRUE, revocation_reason = $2, updated_at = NOW() WHERE id = $1`,
		id, reason)
	return err
}
