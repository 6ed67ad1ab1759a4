package keys

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

// Signer signs access tokens and hands out the key that verifies them.
type Signer interface {
	Sign(claims jwt.Claims) (string, error)
	GetVerificationKey(token *jwt.Token) (any, error)
	GetSigningMethod() jwt.SigningMethod
}

var _ Signer = (*KeyPairSigner)(nil)

// KeyPairSigner signs with a single RS256 key pair and stamps its key id in
// the token header so JWKS consumers can pick the right key.
type KeyPairSigner struct {
	keyPair *KeyPair
}

func NewKeyPairSigner(keyPair *KeyPair) *KeyPairSigner {
	return &KeyPairSigner{keyPair: keyPair}
}

func (s *KeyPairSigner) Sign(claims jwt.Claims) (string, error) {
	token := jwt.NewWithClaims(s.keyPair.GetSigningMethod(), claims)
	token.Header["kid"] = s.keyPair.KeyID

	signed, err := token.SignedString(s.keyPair.PrivateKey)
	if err != nil {
		return "", errors.Wrap(err, "[KeyPairSigner.Sign]")
	}
	return signed, nil
}

func (s *KeyPairSigner) GetVerificationKey(token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
		return nil, errors.Errorf("[KeyPairSigner.GetVerificationKey] unexpected signing method %v", token.Header["alg"])
	}
	if kid, ok := token.Header["kid"].(string); ok && kid != s.keyPair.KeyID {
		return nil, errors.Errorf("[KeyPairSigner.GetVerificationKey] unknown key id %q", kid)
	}
	return s.keyPair.PublicKey, nil
}

func (s *KeyPairSigner) GetSigningMethod() jwt.SigningMethod {
	return s.keyPair.GetSigningMethod()
}

func (s *KeyPairSigner) GetJWKS() (*JWKS, error) {
	jwk, err := s.keyPair.ToJWK()
	if err != nil {
		return nil, errors.Wrap(err, "[KeyPairSigner.GetJWKS]")
	}
	return &JWKS{Keys: []JWK{*jwk}}, nil
}
