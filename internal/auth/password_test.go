package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPasswordHasher(t *testing.T) {
	hasher := NewPasswordHasher(4)

	t.Run("hash and verify roundtrip", func(t *testing.T) {
		hash, err := hasher.Hash("secret1")
		require.NoError(t, err)
		assert.NotEqual(t, "secret1", hash)
		assert.True(t, hasher.Verify("secret1", hash))
	})

	t.Run("wrong password does not verify", func(t *testing.T) {
		hash, err := hasher.Hash("secret1")
		require.NoError(t, err)
		assert.False(t, hasher.Verify("secret2", hash))
	})

	t.Run("same password hashes differently", func(t *testing.T) {
		first, err := hasher.Hash("secret1")
		require.NoError(t, err)
		second, err := hasher.Hash("secret1")
		require.NoError(t, err)
		assert.NotEqual(t, first, second)
	})

	t.Run("garbage hash never verifies", func(t *testing.T) {
		assert.False(t, hasher.Verify("secret1", "not-a-bcrypt-hash"))
	})

	t.Run("out of range cost falls back to default", func(t *testing.T) {
		fallback := NewPasswordHasher(99)
		hash, err := fallback.Hash("secret1")
		require.NoError(t, err)
		assert.True(t, fallback.Verify("secret1", hash))
	})
}
