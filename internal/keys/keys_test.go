package keys

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate(t *testing.T) {
	key, err := Generate()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(key, Prefix))
	// 32 random bytes hex encoded after the prefix
	assert.Len(t, key, len(Prefix)+64)
}

func TestGenerateUnique(t *testing.T) {
	a, err := Generate()
	require.NoError(t, err)
	b, err := Generate()
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestHashDeterministic(t *testing.T) {
	key := "sk_test"
	assert.Equal(t, Hash(key), Hash(key))
	assert.NotEqual(t, Hash(key), Hash("sk_other"))
}

func TestEqual(t *testing.T) {
	h := Hash("sk_abc")
	assert.True(t, Equal(h, h))
	assert.False(t, Equal(h, Hash("sk_abd")))
	assert.False(t, Equal(h, ""))
}
