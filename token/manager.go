package token

import (
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-punch-clock/token/jwt"
	"github.com/jrsteele09/go-punch-clock/token/keys"
	"github.com/jrsteele09/go-punch-clock/token/refresh"
	"github.com/jrsteele09/go-punch-clock/users"
	"github.com/pkg/errors"
)

// Grant is the token set handed to a client when a session is opened or refreshed.
type Grant struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	ExpiresIn    int64
	ExpiresAt    time.Time
	SessionID    string
}

// Manager issues, refreshes and revokes sessions of the emulated auth service.
type Manager struct {
	signer             *keys.KeyPairSigner
	creator            *jwt.Creator
	inspector          *jwt.Inspector
	refresh            *refresh.Manager
	revokedCache       RevokedSessionCache
	issuer             string
	accessTokenExpiry  time.Duration
	refreshTokenExpiry time.Duration
	nowFunc            func() time.Time
}

type ManagerOption func(*Manager)

func WithTokenExpiry(accessTokenExpiry, refreshTokenExpiry time.Duration) ManagerOption {
	return func(m *Manager) {
		m.accessTokenExpiry = accessTokenExpiry
		m.refreshTokenExpiry = refreshTokenExpiry
	}
}

func WithNowFunc(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowFunc = now
	}
}

func WithIssuer(issuer string) ManagerOption {
	return func(m *Manager) {
		m.issuer = issuer
	}
}

func WithRevokedSessionCache(cache RevokedSessionCache) ManagerOption {
	return func(m *Manager) {
		m.revokedCache = cache
	}
}

func New(refreshRepo refresh.Repo, signer *keys.KeyPairSigner, options ...ManagerOption) (*Manager, error) {
	if refreshRepo == nil {
		return nil, errors.New("[token.New] refresh token repo is required")
	}
	if signer == nil {
		return nil, errors.New("[token.New] signer is required")
	}

	m := &Manager{
		signer:            signer,
		accessTokenExpiry: time.Hour,
	}
	for _, opt := range options {
		opt(m)
	}
	if m.nowFunc == nil {
		m.nowFunc = time.Now
	}
	if m.revokedCache == nil {
		m.revokedCache = NewInMemoryRevokedSessionCache(m.nowFunc)
	}

	m.creator = jwt.NewCreator(m.issuer, m.accessTokenExpiry, signer, m.nowFunc)
	m.inspector = jwt.NewInspector(m.issuer, signer, m.revokedCache, m.nowFunc)
	m.refresh = refresh.NewManager(refreshRepo, m.refreshTokenExpiry, m.nowFunc)
	return m, nil
}

// IssueSession opens a new session for user authenticated by method.
func (m *Manager) IssueSession(user *users.User, method string) (*Grant, error) {
	return m.issue(user, uuid.New().String(), method)
}

// Refresh rotates refreshToken and issues a new access token in the same
// session. lookup resolves the session owner so profile changes show up in
// the new token.
func (m *Manager) Refresh(refreshToken string, lookup func(userID string) (*users.User, error)) (*Grant, error) {
	stored, next, err := m.refresh.Rotate(refreshToken)
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.Refresh] rotate")
	}
	if m.revokedCache.IsRevoked(stored.SessionID) {
		_ = m.refresh.RevokeSession(stored.SessionID)
		return nil, errors.Wrap(jwt.ErrSessionRevoked, "[Manager.Refresh]")
	}

	user, err := lookup(stored.UserID)
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.Refresh] user not found for refresh token")
	}

	accessToken, expiresAt, err := m.creator.CreateAccessToken(user, stored.SessionID, jwt.MethodPassword)
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.Refresh] failed to create access token")
	}
	return m.grant(accessToken, next, expiresAt, stored.SessionID), nil
}

// Authenticate validates an access token and returns its claims.
func (m *Manager) Authenticate(accessToken string) (*jwt.AccessClaims, error) {
	return m.inspector.Inspect(accessToken)
}

// Revoke ends a session: its refresh tokens are deleted and its access tokens
// rejected until they would have expired anyway.
func (m *Manager) Revoke(sessionID string) error {
	if err := m.revokedCache.Add(sessionID, m.nowFunc().Add(m.accessTokenExpiry)); err != nil {
		return errors.Wrap(err, "[Manager.Revoke]")
	}
	if err := m.refresh.RevokeSession(sessionID); err != nil {
		return errors.Wrap(err, "[Manager.Revoke]")
	}
	return nil
}

// GetJWKS returns the JSON Web Key Set for public key distribution
func (m *Manager) GetJWKS() (*keys.JWKS, error) {
	return m.signer.GetJWKS()
}

// CleanupRevokedSessions removes expired entries from the revocation cache
func (m *Manager) CleanupRevokedSessions() {
	m.revokedCache.Cleanup()
}

func (m *Manager) issue(user *users.User, sessionID, method string) (*Grant, error) {
	accessToken, expiresAt, err := m.creator.CreateAccessToken(user, sessionID, method)
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.issue] create access token")
	}
	refreshToken, err := m.refresh.Create(user.ID, sessionID)
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.issue] create refresh token")
	}
	return m.grant(accessToken, refreshToken, expiresAt, sessionID), nil
}

func (m *Manager) grant(accessToken, refreshToken string, expiresAt time.Time, sessionID string) *Grant {
	return &Grant{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "bearer",
		ExpiresIn:    int64(m.accessTokenExpiry.Seconds()),
		ExpiresAt:    expiresAt,
		SessionID:    sessionID,
	}
}
