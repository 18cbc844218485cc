package id

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestXORSymmetryAndIdentity(t *testing.T) {
	a, err := New()
	require.NoError(t, err)
	b, err := New()
	require.NoError(t, err)

	assert.Equal(t, a.XOR(b), b.XOR(a))
	assert.Equal(t, Zero, a.XOR(a))
}

func TestCommonPrefixLen(t *testing.T) {
	var a, b ID
	a[0] = 0b11110000
	b[0] = 0b11110000
	assert.Equal(t, Size*8, a.CommonPrefixLen(b), "identical IDs share every bit")

	b[0] = 0b11100000
	assert.Equal(t, 3, a.CommonPrefixLen(b))

	b[0] = 0b01110000
	assert.Equal(t, 0, a.CommonPrefixLen(b))
}

func TestDeriveIsStable(t *testing.T) {
	a := Derive([]byte("Imagine John Lennon Imagine"))
	b := Derive([]byte("Imagine John Lennon Imagine"))
	assert.Equal(t, a, b)

	c := Derive([]byte("something else"))
	assert.NotEqual(t, a, c)
}

func TestHexRoundTrip(t *testing.T) {
	a, err := New()
	require.NoError(t, err)

	parsed, err := FromHex(a.String())
	require.NoError(t, err)
	assert.Equal(t, a, parsed)

	_, err = FromHex("too-short")
	assert.Error(t, err)
}

func TestLessIsTotalOrder(t *testing.T) {
	var a, b ID
	a[0] = 1
	b[0] = 2
	assert.True(t, a.Less(b))
	assert.False(t, b.Less(a))
	assert.False(t, a.Less(a))
}

func TestRandomWithPrefixMatchesBucket(t *testing.T) {
	base, err := New()
	require.NoError(t, err)

	for _, prefixLen := range []int{0, 1, 7, 8, 42, 159} {
		candidate, err := RandomWithPrefix(base, prefixLen)
		require.NoError(t, err)
		assert.Equal(t, prefixLen, base.CommonPrefixLen(candidate), "prefixLen=%d", prefixLen)
	}
}
