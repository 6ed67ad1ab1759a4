package refresh

import (
	"errors"
	"time"
)

var ErrNotFound = errors.New("refresh token not found")

// StoredRefreshToken represents the server-side storage of refresh token metadata.
// The client only receives the Token field (a random string).
type StoredRefreshToken struct {
	Token     string
	UserID    string
	SessionID string
	Iat       time.Time
}

// Repo manages server-side storage of refresh token metadata keyed by the
// token string. Get returns ErrNotFound for unknown tokens.
type Repo interface {
	Upsert(refreshToken *StoredRefreshToken) error
	Delete(token string) error
	Get(token string) (*StoredRefreshToken, error)
	DeleteBySession(sessionID string) error
}
