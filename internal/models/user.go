package models

import (
	"time"

	"github.com/google/uuid"
)

// User represents a platform user. Email is the login identifier.
type User struct {
	ID                 uuid.UUID  `json:"id"`
	Email              string     `json:"email"`
	Password           string     `json:"-"`
	IsStaff            bool       `json:"is_staff"`
	IsActive           bool       `json:"is_active"`
	IsPlaceAdmin       bool       `json:"is_place_admin"`
	EmailVerified      bool       `json:"email_verified"`
	VerificationToken  string     `json:"-"`
	VerificationSentAt *time.Time `json:"verification_sent_at,omitempty"`
	DisplayName        string     `json:"display_name"`
	Bio                string     `json:"bio"`
	AvatarURL          string     `json:"avatar_url"`
	Website            string     `json:"website"`
	Language           string     `json:"language"`
	EmailNotifications bool       `json:"email_notifications"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// UserPublic is User without sensitive fields for API responses.
type UserPublic struct {
	ID            uuid.UUID `json:"id"`
	Email         string    `json:"email"`
	DisplayName   string    `json:"display_name"`
	IsStaff       bool      `json:"is_staff"`
	IsPlaceAdmin  bool      `json:"is_place_admin"`
	EmailVerified bool      `json:"email_verified"`
	CreatedAt     time.Time `json:"created_at"`
}

// ToPublic converts User to UserPublic.
func (u *User) ToPublic() UserPublic {
	return UserPublic{
		ID:            u.ID,
		Email:         u.Email,
		DisplayName:   u.DisplayName,
		IsStaff:       u.IsStaff,
		IsPlaceAdmin:  u.IsPlaceAdmin,
		EmailVerified: u.EmailVerified,
		CreatedAt:     u.CreatedAt,
	}
}

// ProfileName returns the name shown on credential profiles.
func (u *User) ProfileName() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Email
}

// ProfileEmail returns the contact email for credential profiles.
func (u *User) ProfileEmail() string { return u.Email }

// ProfileURL returns empty: individual endorsers have no organization URL.
func (u *User) ProfileURL() string { return "" }

// ProfileImage returns the avatar URL, empty when unset.
func (u *User) ProfileImage() string { return u.AvatarURL }
