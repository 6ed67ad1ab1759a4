package keys

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

const (
	RS256 = "RS256"

	minKeyBits = 2048
	pemType    = "RSA PRIVATE KEY"
)

// KeyPair is the RSA key pair the emulator signs access tokens with.
type KeyPair struct {
	KeyID      string
	PrivateKey *rsa.PrivateKey
	PublicKey  *rsa.PublicKey
	Algorithm  string
}

// JWKS is the document served at /auth/v1/.well-known/jwks.json.
type JWKS struct {
	Keys []JWK `json:"keys"`
}

type JWK struct {
	Kty string `json:"kty"`
	Use string `json:"use,omitempty"`
	Kid string `json:"kid,omitempty"`
	Alg string `json:"alg,omitempty"`
	N   string `json:"n,omitempty"`
	E   string `json:"e,omitempty"`
}

func newKeyPair(keyID string, private *rsa.PrivateKey) *KeyPair {
	return &KeyPair{
		KeyID:      keyID,
		PrivateKey: private,
		PublicKey:  &private.PublicKey,
		Algorithm:  RS256,
	}
}

// GenerateRSAKeyPair generates a pair of at least 2048 bits.
func GenerateRSAKeyPair(keyID string, bits int) (*KeyPair, error) {
	private, err := rsa.GenerateKey(rand.Reader, max(bits, minKeyBits))
	if err != nil {
		return nil, errors.Wrap(err, "[GenerateRSAKeyPair]")
	}
	return newKeyPair(keyID, private), nil
}

func (kp *KeyPair) GetSigningMethod() jwt.SigningMethod {
	return jwt.SigningMethodRS256
}

// ExportPrivateKeyPEM encodes the private key as PKCS#1 PEM.
func (kp *KeyPair) ExportPrivateKeyPEM() (string, error) {
	if kp.PrivateKey == nil {
		return "", errors.New("[KeyPair.ExportPrivateKeyPEM] no private key")
	}
	block := &pem.Block{Type: pemType, Bytes: x509.MarshalPKCS1PrivateKey(kp.PrivateKey)}
	return string(pem.EncodeToMemory(block)), nil
}

// ToJWK describes the public key for the key set endpoint.
func (kp *KeyPair) ToJWK() (*JWK, error) {
	if kp.PublicKey == nil {
		return nil, errors.New("[KeyPair.ToJWK] no public key")
	}
	return &JWK{
		Kty: "RSA",
		Use: "sig",
		Kid: kp.KeyID,
		Alg: kp.Algorithm,
		N:   base64.RawURLEncoding.EncodeToString(kp.PublicKey.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(kp.PublicKey.E)).Bytes()),
	}, nil
}

// LoadKeyPairFromPEM rebuilds a pair from a PKCS#1 PEM private key.
func LoadKeyPairFromPEM(keyID, privateKeyPEM string) (*KeyPair, error) {
	block, _ := pem.Decode([]byte(privateKeyPEM))
	if block == nil || block.Type != pemType {
		return nil, errors.New("[LoadKeyPairFromPEM] no RSA private key block")
	}
	private, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, errors.Wrap(err, "[LoadKeyPairFromPEM]")
	}
	return newKeyPair(keyID, private), nil
}

// LoadOrGenerateKeyPair reads the private key stored at path, or generates a
// new pair and stores it there so tokens survive emulator restarts. An empty
// path always generates an ephemeral pair.
func LoadOrGenerateKeyPair(path, keyID string) (*KeyPair, error) {
	if path == "" {
		return GenerateRSAKeyPair(keyID, minKeyBits)
	}

	data, err := os.ReadFile(path)
	if err == nil {
		return LoadKeyPairFromPEM(keyID, string(data))
	}
	if !os.IsNotExist(err) {
		return nil, errors.Wrapf(err, "[LoadOrGenerateKeyPair] reading %s", path)
	}

	keyPair, err := GenerateRSAKeyPair(keyID, minKeyBits)
	if err != nil {
		return nil, errors.Wrap(err, "[LoadOrGenerateKeyPair]")
	}
	privatePEM, err := keyPair.ExportPrivateKeyPEM()
	if err != nil {
		return nil, errors.Wrap(err, "[LoadOrGenerateKeyPair]")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, errors.Wrap(err, "[LoadOrGenerateKeyPair] creating key folder")
	}
	if err := os.WriteFile(path, []byte(privatePEM), 0o600); err != nil {
		return nil, errors.Wrapf(err, "[LoadOrGenerateKeyPair] writing %s", path)
	}
	return keyPair, nil
}
