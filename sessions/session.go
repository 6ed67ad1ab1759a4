package sessions

import (
	"time"

	"golang.org/x/oauth2"
)

// MetadataFullName is the user metadata key holding the user's full name.
const MetadataFullName = "nome_completo"

// Metadata is the free-form user data stored alongside the auth user.
type Metadata struct {
	FullName string `json:"nome_completo,omitempty"`
}

// User is the authenticated user as reported by the backend.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Metadata  Metadata  `json:"user_metadata"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// Session is the credential bundle issued by the backend's auth service.
// It is owned by the session store and only ever replaced as a whole.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	ExpiresAt    time.Time `json:"expires_at"`
	User         User      `json:"user"`
}

// UserID returns the owner of the session, empty for a nil session.
func (s *Session) UserID() string {
	if s == nil {
		return ""
	}
	return s.User.ID
}

// Expired reports whether the access token expires within leeway of now.
func (s *Session) Expired(now time.Time, leeway time.Duration) bool {
	if s.ExpiresAt.IsZero() {
		return false
	}
	return !now.Add(leeway).Before(s.ExpiresAt)
}

// Token exposes the session as an oauth2 token for authenticated transports.
func (s *Session) Token() *oauth2.Token {
	tokenType := s.TokenType
	if tokenType == "" {
		tokenType = "bearer"
	}
	return &oauth2.Token{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		TokenType:    tokenType,
		Expiry:       s.ExpiresAt,
	}
}
