package endorsements

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openbadges/backend/internal/models"
)

var (
	// ErrTargetNotFound means the referenced badge class, issuer or
	// assertion row does not exist.
	ErrTargetNotFound = errors.New("endorsement target not found")
	// ErrNotFound means the endorsement does not exist.
	ErrNotFound = errors.New("endorsement not found")
)

// EndorsementWithEndorser pairs an endorsement with its endorser row for
// credential assembly and list views.
type EndorsementWithEndorser struct {
	Endorsement models.Endorsement
	Endorser    models.User
}

// Repository handles endorsement persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an endorsements repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// targetColumn maps a target kind to its FK column.
func targetColumn(kind models.EndorsementKind) (string, error) {
	switch kind {
	case models.EndorsementBadgeClass:
		return "badge_class_id", nil
	case models.EndorsementIssuer:
		return "issuer_id", nil
	case models.EndorsementAssertion:
		return "assertion_id", nil
	}
	return "", models.ErrInvalidTarget
}

func scanEndorsement(row interface{ Scan(...any) error }) (*models.Endorsement, error) {
	var e models.Endorsement
	var kind models.EndorsementKind
	var badgeClassID, issuerID, assertionID *uuid.UUID
	var claim []byte
	err := row.Scan(&e.ID, &kind, &badgeClassID, &issuerID, &assertionID,
		&e.EndorserID, &claim, &e.IssuedOn, &e.Verification, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	switch {
	case badgeClassID != nil:
		e.Target = models.BadgeClassTarget(*badgeClassID)
	case issuerID != nil:
		e.Target = models.IssuerTarget(*issuerID)
	case assertionID != nil:
		e.Target = models.AssertionTarget(*assertionID)
	}
	if e.Target.Kind != kind {
		return nil, fmt.Errorf("endorsement %s: stored type %q does not match target column", e.ID, kind)
	}
	if err := json.Unmarshal(claim, &e.Claim); err != nil {
		return nil, fmt.Errorf("endorsement %s: decode claim: %w", e.ID, err)
	}
	return &e, nil
}

const endorsementColumns = `id, type, badge_class_id, issuer_id, assertion_id,
	endorser_id, claim, issued_on, verification, created_at, updated_at`

// Create inserts an endorsement in a single transaction. The type column
// and FK column are both derived from the target, so a row can never
// reference more or less than one entity. A missing target row surfaces
// as ErrTargetNotFound.
func (r *Repository) Create(ctx context.Context, e *models.Endorsement) error {
	if err := e.Target.Validate(); err != nil {
		return err
	}
	column, err := targetColumn(e.Target.Kind)
	if err != nil {
		return err
	}
	claim, err := json.Marshal(e.Claim)
	if err != nil {
		return fmt.Errorf("encode claim: %w", err)
	}
	verification := e.Verification
	if len(verification) == 0 {
		verification = []byte(`{}`)
	}

	q := fmt.Sprintf(`INSERT INTO endorsements (id, type, %s, endorser_id, claim, verification)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING issued_on, created_at, updated_at`, column)

	err = pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx, q, e.ID, e.Target.Kind, e.Target.ID, e.EndorserID, claim, verification).
			Scan(&e.IssuedOn, &e.CreatedAt, &e.UpdatedAt)
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return ErrTargetNotFound
		}
		return err
	}
	return nil
}

// GetByID returns an endorsement by ID.
func (r *Repository) GetByID(ctx context.Context, id string) (*models.Endorsement, error) {
	e, err := scanEndorsement(r.pool.QueryRow(ctx,
		`SELECT `+endorsementColumns+` FROM endorsements WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return e, err
}

// ListByTarget returns the endorsements attached to one entity together
// with their endorser rows, newest first.
func (r *Repository) ListByTarget(ctx context.Context, target models.EndorsementTarget) ([]EndorsementWithEndorser, error) {
	if err := target.Validate(); err != nil {
		return nil, err
	}
	column, err := targetColumn(target.Kind)
	if err != nil {
		return nil, err
	}
	q := fmt.Sprintf(`SELECT e.id, e.type, e.badge_class_id, e.issuer_id, e.assertion_id,
		e.endorser_id, e.claim, e.issued_on, e.verification, e.created_at, e.updated_at,
		u.id, u.email, u.display_name, u.avatar_url, u.website
		FROM endorsements e
		INNER JOIN users u ON u.id = e.endorser_id
		WHERE e.%s = $1
		ORDER BY e.issued_on DESC, e.id`, column)

	rows, err := r.pool.Query(ctx, q, target.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []EndorsementWithEndorser
	for rows.Next() {
		var e models.Endorsement
		var kind models.EndorsementKind
		var badgeClassID, issuerID, assertionID *uuid.UUID
		var claim []byte
		var u models.User
		err := rows.Scan(&e.ID, &kind, &badgeClassID, &issuerID, &assertionID,
			&e.EndorserID, &claim, &e.IssuedOn, &e.Verification, &e.CreatedAt, &e.UpdatedAt,
			&u.ID, &u.Email, &u.DisplayName, &u.AvatarURL, &u.Website)
		if err != nil {
			return nil, err
		}
		e.Target = target
		if err := json.Unmarshal(claim, &e.Claim); err != nil {
			return nil, fmt.Errorf("endorsement %s: decode claim: %w", e.ID, err)
		}
		list = append(list, EndorsementWithEndorser{Endorsement: e, Endorser: u})
	}
	return list, rows.Err()
}

// UpdateClaimText rewrites only the claim text. Target, endorser and the
// rest of the claim are immutable after creation.
func (r *Repository) UpdateClaimText(ctx context.Context, id, text string) (*models.Endorsement, error) {
	const q = `UPDATE endorsements
		SET claim = jsonb_set(claim, '{text}', to_jsonb($2::text)), updated_at = NOW()
		WHERE id = $1
		RETURNING ` + endorsementColumns
	e, err := scanEndorsement(r.pool.QueryRow(ctx, q, id, text))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return e, err
}

// Delete removes an endorsement.
func (r *Repository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM endorsements WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// TargetExists reports whether the row a target references exists.
func (r *Repository) TargetExists(ctx context.Context, target models.EndorsementTarget) (bool, error) {
	if err := target.Validate(); err != nil {
		return false, err
	}
	var table string
	switch target.Kind {
	case models.EndorsementBadgeClass:
		table = "badge_classes"
	case models.EndorsementIssuer:
		table = "issuers"
	case models.EndorsementAssertion:
		table = "assertions"
	}
	var exists bool
	err := r.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE id = $1)`, table), target.ID).Scan(&exists)
	return exists, err
}

// UserOwnsAnyIssuer reports whether the user owns at least one issuer.
func (r *Repository) UserOwnsAnyIssuer(ctx context.Context, userID uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM issuers WHERE owner_id = $1)`, userID).Scan(&exists)
	return exists, err
}
