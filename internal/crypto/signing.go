// Package crypto manages the node receipt key: one ed25519 key whose
// signatures authenticate append acknowledgements. The chain seal itself is
// HMAC-based and lives in the protocol package; losing this key never
// weakens chain integrity, only response authenticity.
package crypto

import (
	"crypto/ed25519"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"
)

type Signer struct {
	private ed25519.PrivateKey
	Public  ed25519.PublicKey
	KeyID   string
}

// NewSignerFromSeed is the primary constructor: a 32-byte seed fully
// determines the key pair, so deployments provision a single secret.
func NewSignerFromSeed(seed []byte) (*Signer, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("seed length %d invalid, want %d", len(seed), ed25519.SeedSize)
	}
	return newSigner(ed25519.NewKeyFromSeed(seed)), nil
}

// LoadSigner reads the node key file. Accepted forms: a PKCS#8 PEM block,
// or a single base64 line holding either the 32-byte seed or the 64-byte
// expanded private key. The public key is derived, never read from disk.
func LoadSigner(path string) (*Signer, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read node key: %w", err)
	}
	priv, err := parsePrivateKey(buf)
	if err != nil {
		return nil, fmt.Errorf("parse node key %s: %w", path, err)
	}
	return newSigner(priv), nil
}

func newSigner(priv ed25519.PrivateKey) *Signer {
	pub := priv.Public().(ed25519.PublicKey)
	sum := sha256.Sum256(pub)
	return &Signer{
		private: priv,
		Public:  pub,
		KeyID:   "ed25519:" + hex.EncodeToString(sum[:8]),
	}
}

func (s *Signer) Sign(payload []byte) string {
	return base64.RawURLEncoding.EncodeToString(ed25519.Sign(s.private, payload))
}

func Verify(pub ed25519.PublicKey, payload []byte, signature string) bool {
	sig, err := base64.RawURLEncoding.DecodeString(signature)
	if err != nil {
		return false
	}
	return ed25519.Verify(pub, payload, sig)
}

// ParsePublicKey decodes an operator-supplied public key (PEM or base64)
// so acks can be verified away from the node that produced them.
func ParsePublicKey(encoded string) (ed25519.PublicKey, error) {
	data := strings.TrimSpace(encoded)
	if strings.HasPrefix(data, "-----BEGIN") {
		block, _ := pem.Decode([]byte(data))
		if block == nil {
			return nil, errors.New("invalid public key pem")
		}
		parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse public key pem: %w", err)
		}
		pk, ok := parsed.(ed25519.PublicKey)
		if !ok {
			return nil, errors.New("public key is not ed25519")
		}
		return pk, nil
	}
	raw, err := decodeKeyBase64(data)
	if err != nil {
		return nil, err
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("public key length %d invalid, want %d", len(raw), ed25519.PublicKeySize)
	}
	return ed25519.PublicKey(raw), nil
}

func parsePrivateKey(buf []byte) (ed25519.PrivateKey, error) {
	data := strings.TrimSpace(string(buf))
	if strings.HasPrefix(data, "-----BEGIN") {
		block, _ := pem.Decode([]byte(data))
		if block == nil {
			return nil, errors.New("invalid private key pem")
		}
		parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse pkcs8 private key: %w", err)
		}
		pk, ok := parsed.(ed25519.PrivateKey)
		if !ok {
			return nil, errors.New("private key is not ed25519")
		}
		return pk, nil
	}
	raw, err := decodeKeyBase64(data)
	if err != nil {
		return nil, err
	}
	switch len(raw) {
	case ed25519.SeedSize:
		return ed25519.NewKeyFromSeed(raw), nil
	case ed25519.PrivateKeySize:
		return ed25519.PrivateKey(raw), nil
	}
	return nil, fmt.Errorf("private key length %d invalid, want %d or %d", len(raw), ed25519.SeedSize, ed25519.PrivateKeySize)
}

// decodeKeyBase64 accepts std or url alphabets, padded or not, by
// normalizing to the raw std alphabet before decoding.
func decodeKeyBase64(s string) ([]byte, error) {
	s = strings.TrimRight(strings.TrimSpace(s), "=")
	s = strings.NewReplacer("-", "+", "_", "/").Replace(s)
	raw, err := base64.RawStdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("key is not valid base64: %w", err)
	}
	return raw, nil
}
