package signing_test

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/worldposta/authproxy/internal/signing"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	s := signing.New("integration-key", "super-secret")

	headers, err := s.Sign(`{"externalUserId":"alice"}`)
	require.NoError(t, err)

	assert.Equal(t, "application/json", headers.ContentType)
	assert.Equal(t, "integration-key", headers.IntegrationKey)
	assert.Len(t, headers.Nonce, 32) // 16 bytes hex-encoded = 128 bits of entropy.

	ts, err := strconv.ParseInt(headers.Timestamp, 10, 64)
	require.NoError(t, err)

	assert.True(t, signing.Verify("super-secret", ts, headers.Nonce, `{"externalUserId":"alice"}`, headers.Signature))
}

func TestVerifyRejectsSingleBytePerturbation(t *testing.T) {
	now := time.Now().Unix()
	sig := signing.Compute("secret", now, "deadbeef", "body")

	assert.True(t, signing.Verify("secret", now, "deadbeef", "body", sig))
	assert.False(t, signing.Verify("secret", now, "deadbeef", "bodx", sig))
	assert.False(t, signing.Verify("secret", now+1, "deadbeef", "body", sig))
	assert.False(t, signing.Verify("secret", now, "deadbeee", "body", sig))
	assert.False(t, signing.Verify("wrong-secret", now, "deadbeef", "body", sig))
}

func TestNoncesAreUnique(t *testing.T) {
	s := signing.New("key", "secret")
	seen := make(map[string]struct{})

	for i := 0; i < 256; i++ {
		headers, err := s.Sign(signing.EmptyBody)
		require.NoError(t, err)

		_, exists := seen[headers.Nonce]
		assert.False(t, exists, "nonce reused: %s", headers.Nonce)
		seen[headers.Nonce] = struct{}{}
	}
}
