// Package protocol defines the sealed ledger entry model, its canonical
// byte encoding, and the keyed seal over those bytes.
package protocol

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"regexp"

	"github.com/google/uuid"
)

var genesisHashPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

// Seal computes the HMAC-SHA256 of the canonical bytes under the ledger
// secret, hex encoded.
func Seal(canonical, secret []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(canonical)
	return hex.EncodeToString(mac.Sum(nil))
}

// SealEntry canonicalizes the entry (CurrentHash excluded) and seals it.
func SealEntry(e LedgerEntry, secret []byte) (string, error) {
	canonical, err := CanonicalBytes(e)
	if err != nil {
		return "", err
	}
	return Seal(canonical, secret), nil
}

// ValidGenesisHash reports whether s is a 64-character lowercase hex anchor.
func ValidGenesisHash(s string) bool {
	return genesisHashPattern.MatchString(s)
}

// NewEntryID returns a fresh random 128-bit id in canonical form.
func NewEntryID() string {
	return uuid.NewString()
}
