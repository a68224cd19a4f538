package utils

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// bcrypt silently ignores input past 72 bytes; reject instead.
const maxPasswordBytes = 72

// ErrPasswordTooLong is returned for passwords over 72 bytes.
var ErrPasswordTooLong = errors.New("password exceeds 72 bytes")

// HashPassword hashes a plain password using bcrypt.
func HashPassword(password string) (string, error) {
	if len(password) > maxPasswordBytes {
		return "", ErrPasswordTooLong
	}
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

// CheckPassword compares plain password with hashed password.
func CheckPassword(plain, hashed string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plain)) == nil
}
