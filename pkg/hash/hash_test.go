package hash

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndCheckPassword(t *testing.T) {
	hashed, err := HashPassword("s3cret!")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret!", hashed)

	assert.True(t, CheckPasswordHash("s3cret!", hashed))
	assert.False(t, CheckPasswordHash("wrong", hashed))
}

func TestHashPasswordSalted(t *testing.T) {
	a, err := HashPassword("same-password")
	require.NoError(t, err)
	b, err := HashPassword("same-password")
	require.NoError(t, err)
	// bcrypt 带随机盐，两次哈希结果应不同
	assert.NotEqual(t, a, b)
}
