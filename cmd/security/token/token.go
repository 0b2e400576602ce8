package token

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"strings"
)

// Payload is the signed content of a credential.
type Payload struct {
	Name string `json:"name"`
	Date string `json:"date"`
}

// Verifier checks credentials against a fixed RSA public key.
type Verifier struct {
	pub *rsa.PublicKey
}

// NewVerifier constructs a Verifier. A nil key is allowed at construction
// time so wiring can be unconditional; Verify reports ErrKeyMissing.
func NewVerifier(pub *rsa.PublicKey) *Verifier {
	return &Verifier{pub: pub}
}

// Verify checks tok and returns its payload.
// Errors: ErrKeyMissing if no key is configured, ErrInvalidToken otherwise.
func (v *Verifier) Verify(tok string) (Payload, error) {
	if v == nil || v.pub == nil {
		return Payload{}, ErrKeyMissing
	}

	parts := strings.Split(tok, ".")
	if len(parts) != 2 {
		return Payload{}, ErrInvalidToken
	}

	payloadBytes, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return Payload{}, ErrInvalidToken
	}
	sig, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return Payload{}, ErrInvalidToken
	}

	var p Payload
	if err := json.Unmarshal(payloadBytes, &p); err != nil {
		return Payload{}, ErrInvalidToken
	}

	digest := sha256.Sum256(payloadBytes)
	if err := rsa.VerifyPKCS1v15(v.pub, crypto.SHA256, digest[:], sig); err != nil {
		return Payload{}, ErrInvalidToken
	}

	return p, nil
}

// Sign mints a credential for p using priv. Runtime services never sign;
// this exists for key-generation tooling and tests.
func Sign(p Payload, priv *rsa.PrivateKey) (string, error) {
	payloadBytes, err := json.Marshal(p)
	if err != nil {
		return "", err
	}

	digest := sha256.Sum256(payloadBytes)
	sig, err := rsa.SignPKCS1v15(rand.Reader, priv, crypto.SHA256, digest[:])
	if err != nil {
		return "", err
	}

	return base64.RawURLEncoding.EncodeToString(payloadBytes) + "." +
		base64.RawURLEncoding.EncodeToString(sig), nil
}

// ParsePublicKey parses a PEM-encoded public key (PKIX "PUBLIC KEY" block).
func ParsePublicKey(pemData []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, fmt.Errorf("token: no PEM block found")
	}

	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("token: parse public key: %w", err)
	}

	rsaKey, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("token: not an RSA public key")
	}
	return rsaKey, nil
}

// EncodePublicKey encodes an RSA public key to PEM. Counterpart of
// ParsePublicKey, used by key-generation tooling and tests.
func EncodePublicKey(pub *rsa.PublicKey) ([]byte, error) {
	keyBytes, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("token: marshal public key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: keyBytes}), nil
}
