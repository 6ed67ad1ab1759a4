package jwt

import (
	"fmt"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-punch-clock/token/keys"
	"github.com/jrsteele09/go-punch-clock/users"
)

const (
	// Audience and role of every user access token.
	AudienceAuthenticated = "authenticated"
	RoleAuthenticated     = "authenticated"

	MethodPassword = "password"
	MethodRecovery = "recovery"
)

// AMREntry records how the session was authenticated.
type AMREntry struct {
	Method    string `json:"method"`
	Timestamp int64  `json:"timestamp"`
}

// AccessClaims are the claims of an emulated access token.
type AccessClaims struct {
	jwtlib.RegisteredClaims
	Email        string         `json:"email"`
	Role         string         `json:"role"`
	SessionID    string         `json:"session_id"`
	AMR          []AMREntry     `json:"amr"`
	UserMetadata map[string]any `json:"user_metadata,omitempty"`
}

// Creator signs access tokens
type Creator struct {
	issuer  string
	expiry  time.Duration
	signer  keys.Signer
	nowTime func() time.Time
}

func NewCreator(issuer string, expiry time.Duration, signer keys.Signer, nowTime func() time.Time) *Creator {
	if nowTime == nil {
		nowTime = time.Now
	}
	return &Creator{
		issuer:  issuer,
		expiry:  expiry,
		signer:  signer,
		nowTime: nowTime,
	}
}

// CreateAccessToken issues an access token for user within sessionID,
// authenticated by method. It returns the signed token and its expiry.
func (c *Creator) CreateAccessToken(user *users.User, sessionID, method string) (string, time.Time, error) {
	now := c.nowTime()
	expiresAt := now.Add(c.expiry)
	claims := &AccessClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   user.ID,
			Audience:  jwtlib.ClaimStrings{AudienceAuthenticated},
			IssuedAt:  jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
		},
		Email:        user.Email,
		Role:         RoleAuthenticated,
		SessionID:    sessionID,
		AMR:          []AMREntry{{Method: method, Timestamp: now.Unix()}},
		UserMetadata: user.Metadata,
	}

	signed, err := c.signer.Sign(claims)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign JWT token: %w", err)
	}
	return signed, expiresAt, nil
}
