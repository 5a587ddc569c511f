package cenc

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKeyID = uuid.UUID{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f, 0x10}

func TestSeigEntryMarshal(t *testing.T) {
	entry := SeigEntry{IsProtected: true, PerSampleIVSize: 8, KeyID: testKeyID, CryptByteBlock: 1, SkipByteBlock: 9}
	require.NoError(t, entry.Validate())
	b := make([]byte, entry.Len())
	require.Equal(t, 20, entry.Marshal(b))
	assert.Equal(t, append([]byte{0x00, 0x19, 0x01, 0x08}, testKeyID[:]...), b)

	iv := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}
	cbcs := SeigEntry{IsProtected: true, KeyID: testKeyID, CryptByteBlock: 1, SkipByteBlock: 9, ConstantIV: iv}
	require.NoError(t, cbcs.Validate())
	b = make([]byte, cbcs.Len())
	require.Equal(t, 37, cbcs.Marshal(b))
	assert.Equal(t, byte(16), b[20])
	assert.Equal(t, iv, b[21:])
}

func TestSeigEntryValidate(t *testing.T) {
	assert.ErrorIs(t, SeigEntry{PerSampleIVSize: 4}.Validate(), ErrInvalidEntry)
	assert.ErrorIs(t, SeigEntry{CryptByteBlock: 16}.Validate(), ErrInvalidEntry)
	assert.ErrorIs(t, SeigEntry{IsProtected: true}.Validate(), ErrInvalidEntry)
	assert.NoError(t, SeigEntry{}.Validate())
}

func TestNewSampleGroupDescription(t *testing.T) {
	sgpd, err := NewSampleGroupDescription(SeigEntry{IsProtected: true, PerSampleIVSize: 16, KeyID: testKeyID})
	require.NoError(t, err)

	b := make([]byte, sgpd.Len())
	require.Equal(t, 44, sgpd.Marshal(b))
	assert.Equal(t, []byte{
		0x00, 0x00, 0x00, 0x2c, 's', 'g', 'p', 'd',
		0x01, 0x00, 0x00, 0x00,
		's', 'e', 'i', 'g',
		0x00, 0x00, 0x00, 0x14,
		0x00, 0x00, 0x00, 0x01,
		0x00, 0x00, 0x01, 0x10,
	}, b[:28])
	assert.Equal(t, testKeyID[:], b[28:])

	_, err = NewSampleGroupDescription()
	require.ErrorIs(t, err, ErrInvalidEntry)
	_, err = NewSampleGroupDescription(SeigEntry{PerSampleIVSize: 3})
	require.ErrorIs(t, err, ErrInvalidEntry)
}

func TestParseKeyID(t *testing.T) {
	id, err := ParseKeyID("0102030405060708090a0b0c0d0e0f10")
	require.NoError(t, err)
	assert.Equal(t, testKeyID, id)

	id, err = ParseKeyID("01020304-0506-0708-090a-0b0c0d0e0f10")
	require.NoError(t, err)
	assert.Equal(t, testKeyID, id)

	_, err = ParseKeyID("not-a-key")
	require.Error(t, err)
}
