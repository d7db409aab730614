package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peoplehub/integration-gateway/internal/model"
)

type fakeCredentialsRepo struct {
	byKeyID map[string]*model.Credential
	err     error
}

func (f *fakeCredentialsRepo) GetByKeyID(_ context.Context, keyID string) (*model.Credential, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.byKeyID[keyID], nil
}

func (f *fakeCredentialsRepo) Insert(_ context.Context, _ *sqlx.Tx, _ model.Credential) error {
	return nil
}

func testCredential(keyID, secret string) *model.Credential {
	return &model.Credential{
		KeyID:              keyID,
		TenantID:           "tenant-1",
		HashedSecret:       HashSecret(secret),
		Scopes:             model.StringSet{"events:emit"},
		RateLimitPerWindow: 100,
	}
}

func TestAuthenticate(t *testing.T) {
	ctx := context.Background()
	const keyID = "k1"
	const secret = "deadbeefcafe"
	raw := KeyPrefix + keyID + "_" + secret

	t.Run("success", func(t *testing.T) {
		repo := &fakeCredentialsRepo{byKeyID: map[string]*model.Credential{keyID: testCredential(keyID, secret)}}
		a := NewAuthenticator(repo)

		id, err := a.Authenticate(ctx, raw, "10.0.0.1")
		require.NoError(t, err)
		assert.Equal(t, "tenant-1", id.TenantID)
		assert.Equal(t, 100, id.RateLimitPerWindow)
		assert.True(t, id.HasScope("events:emit"))
		assert.False(t, id.HasScope("deliveries:read"))
	})

	t.Run("malformed key", func(t *testing.T) {
		a := NewAuthenticator(&fakeCredentialsRepo{})
		_, err := a.Authenticate(ctx, "not-a-key", "")
		assert.ErrorIs(t, err, ErrUnauthenticated)
	})

	t.Run("unknown key id", func(t *testing.T) {
		a := NewAuthenticator(&fakeCredentialsRepo{byKeyID: map[string]*model.Credential{}})
		_, err := a.Authenticate(ctx, raw, "")
		assert.ErrorIs(t, err, ErrUnauthenticated)
	})

	t.Run("wrong secret", func(t *testing.T) {
		repo := &fakeCredentialsRepo{byKeyID: map[string]*model.Credential{keyID: testCredential(keyID, secret)}}
		a := NewAuthenticator(repo)
		_, err := a.Authenticate(ctx, KeyPrefix+keyID+"_wrongsecret", "")
		assert.ErrorIs(t, err, ErrUnauthenticated)
	})

	t.Run("revoked key always fails", func(t *testing.T) {
		cred := testCredential(keyID, secret)
		cred.Revoked = true
		a := NewAuthenticator(&fakeCredentialsRepo{byKeyID: map[string]*model.Credential{keyID: cred}})
		_, err := a.Authenticate(ctx, raw, "")
		assert.ErrorIs(t, err, ErrUnauthenticated)
	})

	t.Run("expired key always fails", func(t *testing.T) {
		cred := testCredential(keyID, secret)
		past := time.Now().Add(-time.Hour)
		cred.ExpiresAt = &past
		a := NewAuthenticator(&fakeCredentialsRepo{byKeyID: map[string]*model.Credential{keyID: cred}})
		_, err := a.Authenticate(ctx, raw, "")
		assert.ErrorIs(t, err, ErrUnauthenticated)
	})

	t.Run("ip allowlist rejects outsiders", func(t *testing.T) {
		cred := testCredential(keyID, secret)
		cred.AllowedIPs = model.StringSet{"192.0.2.10"}
		a := NewAuthenticator(&fakeCredentialsRepo{byKeyID: map[string]*model.Credential{keyID: cred}})

		_, err := a.Authenticate(ctx, raw, "203.0.113.9")
		assert.ErrorIs(t, err, ErrForbidden)

		id, err := a.Authenticate(ctx, raw, "192.0.2.10")
		require.NoError(t, err)
		assert.Equal(t, keyID, id.KeyID)
	})

	t.Run("store error is surfaced, not mapped to unauthenticated", func(t *testing.T) {
		a := NewAuthenticator(&fakeCredentialsRepo{err: errors.New("db down")})
		_, err := a.Authenticate(ctx, raw, "")
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrUnauthenticated)
	})
}

func TestParseKey(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		keyID, secret, err := ParseKey("igw_abc_s3cr3t")
		require.NoError(t, err)
		assert.Equal(t, "abc", keyID)
		assert.Equal(t, "s3cr3t", secret)
	})

	t.Run("secret containing underscores", func(t *testing.T) {
		keyID, secret, err := ParseKey("igw_abc_s3_cr_3t")
		require.NoError(t, err)
		assert.Equal(t, "abc", keyID)
		assert.Equal(t, "s3_cr_3t", secret)
	})

	t.Run("missing prefix", func(t *testing.T) {
		_, _, err := ParseKey("abc_s3cr3t")
		assert.Error(t, err)
	})

	t.Run("missing secret segment", func(t *testing.T) {
		_, _, err := ParseKey("igw_abconly")
		assert.Error(t, err)
	})
}

func TestMintKey(t *testing.T) {
	raw, hashed, err := MintKey("k9")
	require.NoError(t, err)

	keyID, secret, err := ParseKey(raw)
	require.NoError(t, err)
	assert.Equal(t, "k9", keyID)
	assert.Equal(t, hashed, HashSecret(secret))
}
