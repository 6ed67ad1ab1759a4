package refresh

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

const tokenLength = 32

// Manager handles refresh token creation, validation, and rotation
type Manager struct {
	repo    Repo
	expiry  time.Duration
	nowTime func() time.Time
}

// NewManager creates a refresh token manager. A zero expiry never expires tokens.
func NewManager(repo Repo, expiry time.Duration, nowTime func() time.Time) *Manager {
	if nowTime == nil {
		nowTime = time.Now
	}
	return &Manager{
		repo:    repo,
		expiry:  expiry,
		nowTime: nowTime,
	}
}

// Create generates a new refresh token for the session and stores it
func (m *Manager) Create(userID, sessionID string) (string, error) {
	tokenBytes := make([]byte, tokenLength)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	tokenStr := hex.EncodeToString(tokenBytes)
	if err := m.repo.Upsert(&StoredRefreshToken{
		Token:     tokenStr,
		UserID:    userID,
		SessionID: sessionID,
		Iat:       m.nowTime(),
	}); err != nil {
		return "", fmt.Errorf("failed to store refresh token: %w", err)
	}
	return tokenStr, nil
}

// Rotate exchanges token for a new one in the same session. Tokens are single
// use: a second Rotate with the same token fails with ErrNotFound.
func (m *Manager) Rotate(token string) (*StoredRefreshToken, string, error) {
	stored, err := m.repo.Get(token)
	if err != nil {
		return nil, "", err
	}
	if err := m.repo.Delete(token); err != nil {
		return nil, "", err
	}
	if m.IsExpired(stored) {
		return nil, "", fmt.Errorf("%w: expired", ErrNotFound)
	}

	next, err := m.Create(stored.UserID, stored.SessionID)
	if err != nil {
		return nil, "", err
	}
	return stored, next, nil
}

// RevokeSession removes every refresh token of the session
func (m *Manager) RevokeSession(sessionID string) error {
	return m.repo.DeleteBySession(sessionID)
}

func (m *Manager) IsExpired(rt *StoredRefreshToken) bool {
	if m.expiry == 0 {
		return false
	}
	return m.nowTime().Sub(rt.Iat) > m.expiry
}
