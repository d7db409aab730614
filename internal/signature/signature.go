package signature

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Prefix identifies the signature scheme in the X-Signature header.
const Prefix = "sha256="

// MinSecretBytes is the minimum secret size accepted by GenerateSecret (192 bits).
const MinSecretBytes = 24

// Sign computes the HMAC-SHA256 of body under secret and returns the header
// value "sha256=<hex>". The body must be the exact bytes sent on the wire.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return Prefix + hex.EncodeToString(mac.Sum(nil))
}

// Verify recomputes the signature over body and compares it to header in
// constant time. Receivers should also enforce their replay window using the
// X-Timestamp header; that check is theirs, not ours.
func Verify(secret string, body []byte, header string) bool {
	if !strings.HasPrefix(header, Prefix) {
		return false
	}
	got, err := hex.DecodeString(strings.TrimPrefix(header, Prefix))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}

// GenerateSecret creates a new hex-encoded signing secret of size random bytes.
func GenerateSecret(size int) (string, error) {
	if size < MinSecretBytes {
		return "", fmt.Errorf("secret size must be at least %d bytes", MinSecretBytes)
	}
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}
