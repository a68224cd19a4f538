package badges

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openbadges/backend/internal/models"
)

const badgeColumns = `id, version, name, type, description, image, criteria_url,
	issuer_id, category, skills, level, created_at, updated_at`

// Repository handles badge class and alignment persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a badges repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanBadge(row interface{ Scan(...any) error }) (*models.BadgeClass, error) {
	var b models.BadgeClass
	err := row.Scan(&b.ID, &b.Version, &b.Name, &b.Type, &b.Description, &b.Image, &b.CriteriaURL,
		&b.IssuerID, &b.Category, &b.Skills, &b.Level, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// Create inserts a badge class.
func (r *Repository) Create(ctx context.Context, b *models.BadgeClass) error {
	const q = `INSERT INTO badge_classes (version, name, type, description, image, criteria_url, issuer_id, category, skills, level)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, q, b.Version, b.Name, b.Type, b.Description, b.Image, b.CriteriaURL,
		b.IssuerID, b.Category, b.Skills, b.Level).
		Scan(&b.ID, &b.CreatedAt, &b.UpdatedAt)
}

// GetByID returns a badge class by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.BadgeClass, error) {
	return scanBadge(r.pool.QueryRow(ctx, `SELECT `+badgeColumns+` FROM badge_classes WHERE id = $1`, id))
}

// List returns all badge classes, newest first.
func (r *Repository) List(ctx context.Context) ([]*models.BadgeClass, error) {
	return r.listQuery(ctx, `SELECT `+badgeColumns+` FROM badge_classes ORDER BY created_at DESC`)
}

// ListByIssuer returns badge classes for one issuer, newest first.
func (r *Repository) ListByIssuer(ctx context.Context, issuerID uuid.UUID) ([]*models.BadgeClass, error) {
	return r.listQuery(ctx,
		`SELECT `+badgeColumns+` FROM badge_classes WHERE issuer_id = $1 ORDER BY created_at DESC`, issuerID)
}

func (r *Repository) listQuery(ctx context.Context, q string, args ...any) ([]*models.BadgeClass, error) {
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.BadgeClass
	for rows.Next() {
		b, err := scanBadge(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, b)
	}
	return list, rows.Err()
}

// UpdateParams holds the editable badge class fields.
type UpdateParams struct {
	Name        string
	Description string
	Image       string
	CriteriaURL string
	Category    string
	Skills      string
	Level       string
	Version     models.BadgeVersion
}

// Update updates badge class fields.
func (r *Repository) Update(ctx context.Context, id uuid.UUID, p UpdateParams) (*models.BadgeClass, error) {
	const q = `UPDATE badge_classes SET name = $2, description = $3, image = $4, criteria_url = $5,
		category = $6, skills = $7, level = $8, version = $9, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + badgeColumns
	return scanBadge(r.pool.QueryRow(ctx, q, id,
		p.Name, p.Description, p.Image, p.CriteriaURL, p.Category, p.Skills, p.Level, p.Version))
}

// SetImage stores the image reference for a badge class.
func (r *Repository) SetImage(ctx context.Context, id uuid.UUID, image string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE badge_classes SET image = $2, updated_at = NOW() WHERE id = $1`, id, image)
	return err
}

// Delete removes a badge class and, via cascades, its alignments,
// assertions and endorsements.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM badge_classes WHERE id = $1`, id)
	return err
}

// AddAlignment inserts an alignment for a badge class.
func (r *Repository) AddAlignment(ctx context.Context, a *models.Alignment) error {
	const q = `INSERT INTO alignments (badge_class_id, target_name, target_url, target_description, target_framework, target_code)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`
	return r.pool.QueryRow(ctx, q, a.BadgeClassID, a.TargetName, a.TargetURL,
		a.TargetDescription, a.TargetFramework, a.TargetCode).
		Scan(&a.ID, &a.CreatedAt)
}

// ListAlignments returns the alignments for a badge class.
func (r *Repository) ListAlignments(ctx context.Context, badgeClassID uuid.UUID) ([]models.Alignment, error) {
	const q = `SELECT id, badge_class_id, target_name, target_url, target_description, target_framework, target_code, created_at
		FROM alignments WHERE badge_class_id = $1 ORDER BY created_at`
	rows, err := r.pool.Query(ctx, q, badgeClassID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Alignment
	for rows.Next() {
		var a models.Alignment
		if err := rows.Scan(&a.ID, &a.BadgeClassID, &a.TargetName, &a.TargetURL,
			&a.TargetDescription, &a.TargetFramework, &a.TargetCode, &a.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, a)
	}
	return list, rows.Err()
}

// DeleteAlignment removes one alignment scoped to its badge class.
func (r *Repository) DeleteAlignment(ctx context.Context, badgeClassID, alignmentID uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM alignments WHERE id = $1 AND badge_class_id = $2`, alignmentID, badgeClassID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// EndorsedBadgeIDs returns, out of the given badge IDs, those the user
// has endorsed directly.
func (r *Repository) EndorsedBadgeIDs(ctx context.Context, userID uuid.UUID, badgeIDs []uuid.UUID) (map[uuid.UUID]bool, error) {
	endorsed := make(map[uuid.UUID]bool, len(badgeIDs))
	if len(badgeIDs) == 0 {
		return endorsed, nil
	}
	const q = `SELECT DISTINCT badge_class_id FROM endorsements
		WHERE endorser_id = $1 AND badge_class_id = ANY($2)`
	rows, err := r.pool.Query(ctx, q, userID, badgeIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		endorsed[id] = true
	}
	return endorsed, rows.Err()
}
