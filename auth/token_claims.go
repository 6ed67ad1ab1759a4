package auth

import (
	"context"
	"encoding/json"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

// AMRRecovery is the authentication method of sessions opened from a recovery link.
const AMRRecovery = "recovery"

// amrEntry accepts both the bare string and the {method, timestamp} forms.
type amrEntry struct {
	Method    string `json:"method"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

func (a *amrEntry) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		return json.Unmarshal(b, &a.Method)
	}
	type plain amrEntry
	return json.Unmarshal(b, (*plain)(a))
}

// AccessClaims are the claims the store reads from an access token.
type AccessClaims struct {
	jwt.RegisteredClaims
	Email     string     `json:"email,omitempty"`
	Role      string     `json:"role,omitempty"`
	SessionID string     `json:"session_id,omitempty"`
	AMR       []amrEntry `json:"amr,omitempty"`
}

// Recovery reports whether the token was issued for a password recovery.
func (c *AccessClaims) Recovery() bool {
	for _, a := range c.AMR {
		if a.Method == AMRRecovery {
			return true
		}
	}
	return false
}

// parseAccessClaims decodes token without checking its signature.
func parseAccessClaims(token string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, errors.Wrap(err, "[parseAccessClaims]")
	}
	return claims, nil
}

// TokenVerifier checks the signature of an access token.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) error
}

// JWKSVerifier verifies signatures against a remote JSON Web Key Set.
// Keys are fetched lazily and refetched when an unknown key id shows up.
type JWKSVerifier struct {
	keys *oidc.RemoteKeySet
}

// NewJWKSVerifier builds a verifier for jwksURL. ctx bounds the key fetches.
func NewJWKSVerifier(ctx context.Context, jwksURL string) *JWKSVerifier {
	return &JWKSVerifier{keys: oidc.NewRemoteKeySet(ctx, jwksURL)}
}

func (v *JWKSVerifier) Verify(ctx context.Context, token string) error {
	if _, err := v.keys.VerifySignature(ctx, token); err != nil {
		return errors.Wrap(err, "[JWKSVerifier.Verify]")
	}
	return nil
}
