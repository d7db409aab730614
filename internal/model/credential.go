package model

import "time"

// Credential is an API key record. The plaintext secret is returned exactly once
// at creation; only its SHA-256 hash is stored. Revocation and expiry are permanent.
type Credential struct {
	KeyID              string     `db:"key_id"`
	TenantID           string     `db:"tenant_id"`
	HashedSecret       string     `db:"hashed_secret"`
	Scopes             StringSet  `db:"scopes"`
	RateLimitPerWindow int        `db:"rate_limit_per_window"`
	AllowedIPs         StringSet  `db:"allowed_ips"` // nil/empty = any source IP
	ExpiresAt          *time.Time `db:"expires_at"`
	Revoked            bool       `db:"revoked"`
	CreatedAt          time.Time  `db:"created_at"`
}

// Usable reports whether the credential can still authenticate at the given time.
func (c Credential) Usable(now time.Time) bool {
	if c.Revoked {
		return false
	}
	if c.ExpiresAt != nil && !now.Before(*c.ExpiresAt) {
		return false
	}
	return true
}
