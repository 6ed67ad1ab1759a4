package users

import (
	"fmt"
	"time"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"
)

// MinPasswordLength is the shortest password the emulated auth service accepts.
const MinPasswordLength = 6

type User struct {
	ID           string         `json:"id,omitempty"`
	Email        string         `json:"email,omitempty"`
	PasswordHash string         `json:"-"` // never serialize
	Metadata     map[string]any `json:"user_metadata,omitempty"`
	CreatedAt    time.Time      `json:"created_at,omitempty"`
	UpdatedAt    time.Time      `json:"updated_at,omitempty"`
	LastSignIn   time.Time      `json:"last_sign_in_at,omitempty"`
	ConfirmedAt  time.Time      `json:"email_confirmed_at,omitempty"` // zero until the email is confirmed
}

func (u *User) Confirmed() bool {
	return !u.ConfirmedAt.IsZero()
}

// ValidatePasswordStrength checks the minimum length only, counted in runes.
func ValidatePasswordStrength(password string) error {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return fmt.Errorf("password should be at least %d characters", MinPasswordLength)
	}
	return nil
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// CheckPassword checks password against the user's stored hash.
func (u *User) CheckPassword(password string) bool {
	return CheckPasswordHash(password, u.PasswordHash)
}

// MergeMetadata copies data over the user's metadata, key by key.
func (u *User) MergeMetadata(data map[string]any) {
	if len(data) == 0 {
		return
	}
	if u.Metadata == nil {
		u.Metadata = make(map[string]any, len(data))
	}
	for k, v := range data {
		u.Metadata[k] = v
	}
}
