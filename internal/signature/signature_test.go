package signature

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignAndVerify(t *testing.T) {
	secret := "s3cr3t"
	body := []byte(`{"event_id":"01J0000000000000000000000","event_type":"employee.created","occurred_at":"2025-01-01T00:00:00Z","data":{"id":"42"}}`)

	t.Run("round trip", func(t *testing.T) {
		header := Sign(secret, body)
		assert.True(t, strings.HasPrefix(header, Prefix))
		assert.True(t, Verify(secret, body, header))
	})

	t.Run("one mutated byte invalidates", func(t *testing.T) {
		header := Sign(secret, body)
		mutated := append([]byte(nil), body...)
		mutated[10] ^= 0x01
		assert.False(t, Verify(secret, mutated, header))
	})

	t.Run("wrong secret fails", func(t *testing.T) {
		header := Sign(secret, body)
		assert.False(t, Verify("other", body, header))
	})

	t.Run("missing prefix fails", func(t *testing.T) {
		header := Sign(secret, body)
		assert.False(t, Verify(secret, body, strings.TrimPrefix(header, Prefix)))
	})

	t.Run("garbage hex fails", func(t *testing.T) {
		assert.False(t, Verify(secret, body, Prefix+"zz-not-hex"))
	})

	t.Run("deterministic for same bytes", func(t *testing.T) {
		assert.Equal(t, Sign(secret, body), Sign(secret, body))
	})
}

func TestGenerateSecret(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		s1, err := GenerateSecret(32)
		require.NoError(t, err)
		s2, err := GenerateSecret(32)
		require.NoError(t, err)
		assert.Len(t, s1, 64) // hex doubles
		assert.NotEqual(t, s1, s2)
	})

	t.Run("too small", func(t *testing.T) {
		_, err := GenerateSecret(MinSecretBytes - 1)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "secret size must be at least")
	})
}
