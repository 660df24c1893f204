package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"golang.org/x/crypto/bcrypt"
)

func TestPasswordRoundTrip(t *testing.T) {
	hash, err := HashPassword("hunter2-hunter2", bcrypt.MinCost)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "$2a$"))
	assert.True(t, VerifyPassword(hash, "hunter2-hunter2"))
	assert.False(t, VerifyPassword(hash, "hunter2-wrong"))
	assert.False(t, VerifyPassword("not-a-hash", "hunter2-hunter2"))
}

func TestHashPasswordDefaultsCost(t *testing.T) {
	hash, err := HashPassword("hunter2-hunter2", 0)
	require.NoError(t, err)
	cost, err := bcrypt.Cost([]byte(hash))
	require.NoError(t, err)
	assert.Equal(t, bcrypt.DefaultCost, cost)
}
