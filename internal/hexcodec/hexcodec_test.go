package hexcodec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := [][]byte{
		{},
		{0x00},
		{0xff, 0x00, 0xab, 0xcd},
		make([]byte, 48),
	}
	for _, b := range cases {
		enc := Encode(b)
		dec, err := Decode(enc)
		require.NoError(t, err)
		assert.Equal(t, b, dec)
	}
}

func TestEncodeIsLowercase(t *testing.T) {
	assert.Equal(t, "deadbeef", Encode([]byte{0xde, 0xad, 0xbe, 0xef}))
}

func TestDecodeCaseInsensitive(t *testing.T) {
	lower, err := Decode("deadbeef")
	require.NoError(t, err)
	upper, err := Decode("DEADBEEF")
	require.NoError(t, err)
	mixed, err := Decode("DeAdBeEf")
	require.NoError(t, err)
	assert.Equal(t, lower, upper)
	assert.Equal(t, lower, mixed)
}

func TestDecodeOddLength(t *testing.T) {
	_, err := Decode("abc")
	assert.ErrorIs(t, err, ErrOddLength)
}

func TestDecodeInvalidChar(t *testing.T) {
	_, err := Decode("zz")
	assert.ErrorIs(t, err, ErrInvalidChar)
}

func TestConstantTimeEqual(t *testing.T) {
	assert.True(t, ConstantTimeEqual([]byte("abc"), []byte("abc")))
	assert.False(t, ConstantTimeEqual([]byte("abc"), []byte("abd")))
	assert.False(t, ConstantTimeEqual([]byte("abc"), []byte("ab")))
	assert.True(t, ConstantTimeEqual(nil, nil))
}
