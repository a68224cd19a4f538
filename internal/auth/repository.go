package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openbadges/backend/internal/models"
)

const userColumns = `id, email, password_hash, is_staff, is_active, is_place_admin,
	email_verified, verification_token, verification_sent_at,
	display_name, bio, avatar_url, website, language, email_notifications,
	created_at, updated_at`

// Repository handles user persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an auth repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanUser(row interface{ Scan(...any) error }) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Email, &u.Password, &u.IsStaff, &u.IsActive, &u.IsPlaceAdmin,
		&u.EmailVerified, &u.VerificationToken, &u.VerificationSentAt,
		&u.DisplayName, &u.Bio, &u.AvatarURL, &u.Website, &u.Language, &u.EmailNotifications,
		&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// GetByID returns a user by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

// GetByEmail returns a user by email.
func (r *Repository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
}

// GetByVerificationToken returns the user holding the given email verification token.
func (r *Repository) GetByVerificationToken(ctx context.Context, token string) (*models.User, error) {
	return scanUser(r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE verification_token = $1 AND verification_token <> ''`, token))
}

// Create inserts a new user with a pending email verification token.
func (r *Repository) Create(ctx context.Context, email, passwordHash, displayName, verificationToken string) (*models.User, error) {
	const q = `INSERT INTO users (email, password_hash, display_name, verification_token, verification_sent_at)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING ` + userColumns
	return scanUser(r.pool.QueryRow(ctx, q, email, passwordHash, displayName, verificationToken))
}

// MarkVerified clears the verification token and marks the email verified.
func (r *Repository) MarkVerified(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE users SET email_verified = TRUE, verification_token = '', updated_at = NOW() WHERE id = $1`, id)
	return err
}

// ResetVerificationToken stores a fresh token and stamps the send time.
func (r *Repository) ResetVerificationToken(ctx context.Context, id uuid.UUID, token string, sentAt time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE users SET verification_token = $2, verification_sent_at = $3, updated_at = NOW() WHERE id = $1`,
		id, token, sentAt)
	return err
}

// UpdateProfileParams holds the editable profile fields.
type UpdateProfileParams struct {
	DisplayName        string
	Bio                string
	AvatarURL          string
	Website            string
	Language           string
	EmailNotifications bool
}

// UpdateProfile updates the user's profile fields.
func (r *Repository) UpdateProfile(ctx context.Context, id uuid.UUID, p UpdateProfileParams) (*models.User, error) {
	const q = `UPDATE users SET display_name = $2, bio = $3, avatar_url = $4, website = $5,
		language = $6, email_notifications = $7, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + userColumns
	return scanUser(r.pool.QueryRow(ctx, q, id,
		p.DisplayName, p.Bio, p.AvatarURL, p.Website, p.Language, p.EmailNotifications))
}

// List returns all users ordered by display name then email.
func (r *Repository) List(ctx context.Context) ([]models.UserPublic, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, email, display_name, is_staff, is_place_admin, email_verified, created_at
		FROM users ORDER BY display_name, email`)
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
