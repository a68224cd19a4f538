package issuers

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openbadges/backend/internal/models"
)

const issuerColumns = `id, version, name, url, email, description, image,
	public_key, key_type, privacy_policy, verification, revocation_list,
	owner_id, created_at, updated_at`

// Repository handles issuer and issuer_member persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an issuers repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanIssuer(row interface{ Scan(...any) error }) (*models.Issuer, error) {
	var i models.Issuer
	err := row.Scan(&i.ID, &i.Version, &i.Name, &i.URL, &i.Email, &i.Description, &i.Image,
		&i.PublicKey, &i.KeyType, &i.PrivacyPolicy, &i.Verification, &i.RevocationList,
		&i.OwnerID, &i.CreatedAt, &i.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &i, nil
}

// Create inserts an issuer owned by the given user.
func (r *Repository) Create(ctx context.Context, i *models.Issuer) error {
	const q = `INSERT INTO issuers (version, name, url, email, description, image, privacy_policy, verification, owner_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, public_key, key_type, revocation_list, created_at, updated_at`
	verification := i.Verification
	if len(verification) == 0 {
		verification = []byte(`{}`)
	}
	return r.pool.QueryRow(ctx, q, i.Version, i.Name, i.URL, i.Email, i.Description, i.Image,
		i.PrivacyPolicy, verification, i.OwnerID).
		Scan(&i.ID, &i.PublicKey, &i.KeyType, &i.RevocationList, &i.CreatedAt, &i.UpdatedAt)
}

// GetByID returns an issuer by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Issuer, error) {
	return scanIssuer(r.pool.QueryRow(ctx, `SELECT `+issuerColumns+` FROM issuers WHERE id = $1`, id))
}

// List returns all issuers ordered by name.
func (r *Repository) List(ctx context.Context) ([]*models.Issuer, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+issuerColumns+` FROM issuers ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Issuer
	for rows.Next() {
		i, err := scanIssuer(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, i)
	}
	return list, rows.Err()
}

// ListByOwner returns issuers owned by the user.
func (r *Repository) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]*models.Issuer, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+issuerColumns+` FROM issuers WHERE owner_id = $1 ORDER BY name`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Issuer
	for rows.Next() {
		i, err := scanIssuer(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, i)
	}
	return list, rows.Err()
}

// UpdateParams holds the editable issuer fields.
type UpdateParams struct {
	Name          string
	URL           string
	Email         string
	Description   string
	Image         string
	PrivacyPolicy string
	Version       models.BadgeVersion
}

// Update updates issuer fields.
func (r *Repository) Update(ctx context.Context, id uuid.UUID, p UpdateParams) (*models.Issuer, error) {
	const q = `UPDATE issuers SET name = $2, url = $3, email = $4, description = $5, image = $6,
		privacy_policy = $7, version = $8, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + issuerColumns
	return scanIssuer(r.pool.QueryRow(ctx, q, id,
		p.Name, p.URL, p.Email, p.Description, p.Image, p.PrivacyPolicy, p.Version))
}

// SetKeys stores a generated key pair on the issuer.
func (r *Repository) SetKeys(ctx context.Context, id uuid.UUID, publicKey string, keyType models.KeyType) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE issuers SET public_key = $2, key_type = $3, updated_at = NOW() WHERE id = $1`,
		id, publicKey, keyType)
	return err
}

// Delete removes an issuer and, via cascades, its badges and memberships.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM issuers WHERE id = $1`, id)
	return err
}

// AddMember adds a user to the issuer. Idempotent on repeat joins.
func (r *Repository) AddMember(ctx context.Context, issuerID, userID uuid.UUID) error {
	const q = `INSERT INTO issuer_members (issuer_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT (issuer_id, user_id) DO NOTHING`
	_, err := r.pool.Exec(ctx, q, issuerID, userID)
	return err
}

// RemoveMember removes a user from the issuer.
func (r *Repository) RemoveMember(ctx context.Context, issuerID, userID uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM issuer_members WHERE issuer_id = $1 AND user_id = $2`, issuerID, userID)
	return err
}

// IsMember reports whether the user has joined the issuer.
func (r *Repository) IsMember(ctx context.Context, issuerID, userID uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM issuer_members WHERE issuer_id = $1 AND user_id = $2)`,
		issuerID, userID).Scan(&exists)
	return exists, err
}

// ListMembers returns the users who joined the issuer.
func (r *Repository) ListMembers(ctx context.Context, issuerID uuid.UUID) ([]models.UserPublic, error) {
	const q = `SELECT u.id, u.email, u.display_name, u.is_staff, u.is_place_admin, u.email_verified, u.created_at
		FROM issuer_members m
		INNER JOIN users u ON u.id = m.user_id
		WHERE m.issuer_id = $1
		ORDER BY u.display_name, u.email`
	rows, err := r.pool.Query(ctx, q, issuerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.UserPublic
	for rows.Next() {
		var u models.UserPublic
		if err := rows.Scan(&u.ID, &u.Email, &u.DisplayName, &u.IsStaff, &u.IsPlaceAdmin, &u.EmailVerified, &u.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, u)
	}
	return list, rows.Err()
}

// OwnsIssuer reports whether the user owns the issuer.
func (r *Repository) OwnsIssuer(ctx context.Context, issuerID, userID uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM issuers WHERE id = $1 AND owner_id = $2)`,
		issuerID, userID).Scan(&exists)
	return exists, err
}
