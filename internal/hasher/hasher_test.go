package hasher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"golang.org/x/crypto/bcrypt"
)

func TestHashAndVerifyRoundTrip(t *testing.T) {
	h := New(bcrypt.MinCost)

	hash, err := h.Hash("password123")
	require.NoError(t, err)
	require.NotEmpty(t, hash)
	assert.NotContains(t, hash, "password123")

	assert.True(t, h.Verify("password123", hash))
	assert.False(t, h.Verify("password124", hash))
	assert.False(t, h.Verify("", hash))
}

func TestHashesAreSalted(t *testing.T) {
	h := New(bcrypt.MinCost)

	first, err := h.Hash("password123")
	require.NoError(t, err)
	second, err := h.Hash("password123")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestHashRejectsEmptyPassword(t *testing.T) {
	h := New(bcrypt.MinCost)

	_, err := h.Hash("")
	require.ErrorIs(t, err, ErrEmptyPassword)
}

func TestVerifyRejectsGarbageHash(t *testing.T) {
	h := New(bcrypt.MinCost)

	assert.False(t, h.Verify("password123", "not-a-bcrypt-hash"))
}
