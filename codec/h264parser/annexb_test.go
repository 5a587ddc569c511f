package h264parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnnexBToLengthPrefixed(t *testing.T) {
	idrAU := []byte{
		0x00, 0x00, 0x00, 0x01, 0x09, 0xF0,
		0x00, 0x00, 0x01, 0x65, 0x88, 0x84, 0x21,
	}
	out, key, err := AnnexBToLengthPrefixed(idrAU, 4)
	require.NoError(t, err)
	assert.True(t, key)
	assert.Equal(t, []byte{
		0x00, 0x00, 0x00, 0x02, 0x09, 0xF0,
		0x00, 0x00, 0x00, 0x04, 0x65, 0x88, 0x84, 0x21,
	}, out)

	out, key, err = AnnexBToLengthPrefixed(idrAU, 2)
	require.NoError(t, err)
	assert.True(t, key)
	assert.Equal(t, []byte{0x00, 0x02, 0x09, 0xF0, 0x00, 0x04, 0x65, 0x88, 0x84, 0x21}, out)

	out, key, err = AnnexBToLengthPrefixed([]byte{0x00, 0x00, 0x00, 0x01, 0x41, 0x9A, 0x02}, 1)
	require.NoError(t, err)
	assert.False(t, key)
	assert.Equal(t, []byte{0x03, 0x41, 0x9A, 0x02}, out)
}

func TestAnnexBToLengthPrefixedErrors(t *testing.T) {
	_, _, err := AnnexBToLengthPrefixed([]byte{0x00, 0x00, 0x01, 0x65}, 3)
	require.Error(t, err)

	big := append([]byte{0x00, 0x00, 0x00, 0x01, 0x41}, make([]byte, 300)...)
	for i := 5; i < len(big); i++ {
		big[i] = 0xAA
	}
	_, _, err = AnnexBToLengthPrefixed(big, 1)
	require.Error(t, err)
}

func TestIsAnnexB(t *testing.T) {
	assert.True(t, IsAnnexB([]byte{0, 0, 1, 0x65}))
	assert.True(t, IsAnnexB([]byte{0, 0, 0, 1, 0x65}))
	assert.False(t, IsAnnexB([]byte{0, 0, 0, 4, 0x65, 1, 2, 3}))
	assert.False(t, IsAnnexB(nil))
}
