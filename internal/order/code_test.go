package order

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewVerificationCode(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		code, err := NewVerificationCode()
		require.NoError(t, err)
		require.Len(t, code, CodeLength)
		for _, r := range code {
			assert.True(t, strings.ContainsRune(codeAlphabet, r), "unexpected rune %q", r)
		}
		seen[code] = true
	}
	// 50 draws over a 25^6 space colliding down to a handful would
	// indicate a broken RNG hookup.
	assert.Greater(t, len(seen), 45)
}

func TestNewCodePairDistinct(t *testing.T) {
	buyer, seller, err := NewCodePair()
	require.NoError(t, err)
	assert.NotEqual(t, buyer, seller)
}

func TestNormalizeCode(t *testing.T) {
	assert.Equal(t, "ACDEF3", NormalizeCode("  acdef3 \n"))
	assert.Equal(t, "XY4796", NormalizeCode("xy4796"))
}
