package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPasswordHasher_HashAndVerify(t *testing.T) {
	h := NewPasswordHasher()

	hash, err := h.Hash("correct horse battery staple")
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse battery staple", hash)

	assert.True(t, h.Verify("correct horse battery staple", hash))
	assert.False(t, h.Verify("wrong password", hash))
	assert.False(t, h.Verify("", hash))
}

func TestPasswordHasher_UniqueSalts(t *testing.T) {
	h := NewPasswordHasher()

	hash1, err := h.Hash("same password")
	require.NoError(t, err)
	hash2, err := h.Hash("same password")
	require.NoError(t, err)

	assert.NotEqual(t, hash1, hash2, "bcrypt must salt each hash")
}
