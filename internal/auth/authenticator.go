package auth

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/peoplehub/integration-gateway/internal/model"
	"github.com/peoplehub/integration-gateway/internal/repository"
)

var (
	// ErrUnauthenticated covers malformed, unknown, revoked and expired keys.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrForbidden means the key is valid but the source IP is not allowed.
	ErrForbidden = errors.New("forbidden")
)

// KeyPrefix marks gateway API keys: igw_<key_id>_<secret>.
const KeyPrefix = "igw_"

// Identity is the authenticated principal attached to a request.
type Identity struct {
	KeyID              string
	TenantID           string
	Scopes             model.StringSet
	RateLimitPerWindow int
}

func (id Identity) HasScope(scope string) bool {
	return id.Scopes.Contains(scope)
}

// Authenticator validates raw API keys against the credential store.
type Authenticator struct {
	creds repository.CredentialsRepository
}

func NewAuthenticator(creds repository.CredentialsRepository) *Authenticator {
	return &Authenticator{creds: creds}
}

// Authenticate parses the raw key, looks the credential up by key_id (the fast
// lookup segment), verifies the secret hash in constant time, then applies
// revocation, expiry and IP-allowlist rules. Rate limiting is a separate
// check layered on top by the HTTP middleware.
func (a *Authenticator) Authenticate(ctx context.Context, rawKey, sourceIP string) (Identity, error) {
	keyID, secret, err := ParseKey(rawKey)
	if err != nil {
		return Identity{}, ErrUnauthenticated
	}

	cred, err := a.creds.GetByKeyID(ctx, keyID)
	if err != nil {
		return Identity{}, fmt.Errorf("credential lookup: %w", err)
	}
	if cred == nil {
		return Identity{}, ErrUnauthenticated
	}

	if !hmac.Equal([]byte(HashSecret(secret)), []byte(cred.HashedSecret)) {
		return Identity{}, ErrUnauthenticated
	}
	if !cred.Usable(time.Now()) {
		return Identity{}, ErrUnauthenticated
	}
	if len(cred.AllowedIPs) > 0 && !cred.AllowedIPs.Contains(sourceIP) {
		return Identity{}, ErrForbidden
	}

	return Identity{
		KeyID:              cred.KeyID,
		TenantID:           cred.TenantID,
		Scopes:             cred.Scopes,
		RateLimitPerWindow: cred.RateLimitPerWindow,
	}, nil
}

// ParseKey splits a raw key igw_<key_id>_<secret> into its segments.
func ParseKey(raw string) (keyID, secret string, err error) {
	if !strings.HasPrefix(raw, KeyPrefix) {
		return "", "", errors.New("missing key prefix")
	}
	rest := strings.TrimPrefix(raw, KeyPrefix)
	i := strings.IndexByte(rest, '_')
	if i <= 0 || i == len(rest)-1 {
		return "", "", errors.New("malformed key")
	}
	return rest[:i], rest[i+1:], nil
}

// HashSecret returns the hex SHA-256 of the secret segment. Only this hash is
// ever stored; the plaintext exists at mint time and never again.
func HashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// MintKey generates a fresh raw key for the given key_id. The returned raw key
// is shown to the caller exactly once; only the hash goes to storage.
func MintKey(keyID string) (rawKey, hashedSecret string, err error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", "", fmt.Errorf("generating key secret: %w", err)
	}
	secret := hex.EncodeToString(b)
	return KeyPrefix + keyID + "_" + secret, HashSecret(secret), nil
}
