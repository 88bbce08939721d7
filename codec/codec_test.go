package codec

import (
	"errors"
	"math"
	"testing"

	"github.com/colorfulnotion/ismp/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeCompact(t *testing.T) {
	testCases := []struct {
		value    uint64
		expected []byte
	}{
		{0, []byte{0x00}},
		{1, []byte{0x04}},
		{42, []byte{0xa8}},
		{63, []byte{0xfc}},
		{64, []byte{0x01, 0x01}},
		{69, []byte{0x15, 0x01}},
		{16383, []byte{0xfd, 0xff}},
		{16384, []byte{0x02, 0x00, 0x01, 0x00}},
		{1073741823, []byte{0xfe, 0xff, 0xff, 0xff}},
		{1073741824, []byte{0x03, 0x00, 0x00, 0x00, 0x40}},
		{math.MaxUint64, []byte{0x13, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}},
	}
	for _, tc := range testCases {
		e := NewEncoder()
		e.EncodeCompact(tc.value)
		assert.Equal(t, tc.expected, e.Bytes(), "encode %d", tc.value)

		d := NewDecoder(tc.expected)
		assert.Equal(t, tc.value, d.DecodeCompact(), "decode %d", tc.value)
		assert.NoError(t, d.Finish())
	}
}

func TestDecodeCompactRejectsNonCanonical(t *testing.T) {
	inputs := [][]byte{
		{0x01, 0x00},                   // 0 in two-byte mode
		{0x02, 0x00, 0x00, 0x00},       // 0 in four-byte mode
		{0x03, 0xff, 0xff, 0xff, 0x00}, // < 2^30 in big mode
		{0x07, 0x00, 0x00, 0x00, 0x40, 0x00},
	}
	for _, in := range inputs {
		d := NewDecoder(in)
		d.DecodeCompact()
		assert.True(t, errors.Is(d.Err(), ErrNonCanonical), "input %x", in)
	}
}

func TestFixedWidthLittleEndian(t *testing.T) {
	e := NewEncoder()
	e.EncodeUint32(0x01020304)
	e.EncodeUint64(1)
	e.EncodeBool(true)
	assert.Equal(t, []byte{0x04, 0x03, 0x02, 0x01, 1, 0, 0, 0, 0, 0, 0, 0, 1}, e.Bytes())
}

func TestBytesAndSequences(t *testing.T) {
	e := NewEncoder()
	e.EncodeBytes([]byte("ismp"))
	e.EncodeByteSeq([][]byte{{1}, {2, 3}})
	e.EncodeHashSeq([]common.Hash{common.Keccak256([]byte("a"))})
	e.EncodeU256(uint256.NewInt(258))

	d := NewDecoder(e.Bytes())
	assert.Equal(t, []byte("ismp"), d.DecodeBytes())
	assert.Equal(t, [][]byte{{1}, {2, 3}}, d.DecodeByteSeq())
	assert.Equal(t, []common.Hash{common.Keccak256([]byte("a"))}, d.DecodeHashSeq())
	assert.Equal(t, uint256.NewInt(258), d.DecodeU256())
	require.NoError(t, d.Finish())
}

func TestU256LittleEndian(t *testing.T) {
	e := NewEncoder()
	e.EncodeU256(uint256.NewInt(1))
	expected := make([]byte, 32)
	expected[0] = 1
	assert.Equal(t, expected, e.Bytes())
}

func TestDecoderErrors(t *testing.T) {
	d := NewDecoder([]byte{0x10, 0x01})
	d.DecodeBytes() // claims 4 bytes, has 1
	assert.ErrorIs(t, d.Err(), ErrLengthOverflow)

	d = NewDecoder([]byte{0x02})
	d.DecodeBool()
	assert.ErrorIs(t, d.Err(), ErrInvalidTag)

	d = NewDecoder([]byte{0x05})
	d.DecodeTag(3)
	assert.ErrorIs(t, d.Err(), ErrInvalidTag)

	d = NewDecoder([]byte{0x01, 0x02})
	d.DecodeUint8()
	assert.ErrorIs(t, d.Finish(), ErrTrailingBytes)

	d = NewDecoder(nil)
	assert.Equal(t, uint64(0), d.DecodeUint64())
	assert.ErrorIs(t, d.Err(), ErrUnexpectedEOF)
}
