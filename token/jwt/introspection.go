package jwt

import (
	"errors"
	"fmt"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-punch-clock/token/keys"
)

var (
	ErrInvalidToken   = errors.New("invalid token")
	ErrSessionRevoked = errors.New("session revoked")
)

// RevokedChecker is an interface for checking if a session has been revoked
type RevokedChecker interface {
	IsRevoked(sessionID string) bool
}

// Inspector validates access tokens issued by a Creator sharing its signer
type Inspector struct {
	issuer         string
	signer         keys.Signer
	revokedChecker RevokedChecker
	nowTime        func() time.Time
}

func NewInspector(issuer string, signer keys.Signer, revokedChecker RevokedChecker, nowTime func() time.Time) *Inspector {
	if nowTime == nil {
		nowTime = time.Now
	}
	return &Inspector{
		issuer:         issuer,
		signer:         signer,
		revokedChecker: revokedChecker,
		nowTime:        nowTime,
	}
}

// Inspect verifies the signature, issuer, audience and expiry of rawToken and
// rejects tokens of revoked sessions.
func (i *Inspector) Inspect(rawToken string) (*AccessClaims, error) {
	if strings.TrimSpace(rawToken) == "" {
		return nil, fmt.Errorf("%w: empty token", ErrInvalidToken)
	}

	claims := &AccessClaims{}
	token, err := jwtlib.ParseWithClaims(rawToken, claims, i.signer.GetVerificationKey,
		jwtlib.WithValidMethods([]string{i.signer.GetSigningMethod().Alg()}),
		jwtlib.WithIssuer(i.issuer),
		jwtlib.WithAudience(AudienceAuthenticated),
		jwtlib.WithExpirationRequired(),
		jwtlib.WithTimeFunc(i.nowTime),
	)
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if claims.SessionID != "" && i.revokedChecker != nil && i.revokedChecker.IsRevoked(claims.SessionID) {
		return nil, ErrSessionRevoked
	}
	return claims, nil
}
