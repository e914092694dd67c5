package security

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"carshare/internal/domain/shared/apperr"
)

func TestBcryptHasher(t *testing.T) {
	h := BcryptHasher{Cost: bcrypt.MinCost}

	hash, err := h.Hash("correct horse")
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse", hash)

	require.NoError(t, h.Compare(hash, "correct horse"))

	err = h.Compare(hash, "wrong horse")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrUnauthorized))

	_, err = h.Hash(strings.Repeat("x", 73))
	assert.ErrorIs(t, err, ErrPasswordTooLong)
}

func TestBcryptHasherCostFallback(t *testing.T) {
	assert.Equal(t, bcrypt.DefaultCost, BcryptHasher{}.cost())
	assert.Equal(t, bcrypt.DefaultCost, BcryptHasher{Cost: 99}.cost())
	assert.Equal(t, 5, BcryptHasher{Cost: 5}.cost())
}

func TestRandomTokenGenerator(t *testing.T) {
	g := RandomTokenGenerator{Size: 24, Prefix: "cs_"}
	seen := map[string]struct{}{}
	for i := 0; i < 20; i++ {
		tok, err := g.NewToken()
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(tok, "cs_"))
		assert.Len(t, tok, 3+32)
		_, dup := seen[tok]
		assert.False(t, dup)
		seen[tok] = struct{}{}
	}

	tok, err := RandomTokenGenerator{}.NewToken()
	require.NoError(t, err)
	assert.Len(t, tok, 43)
}
