package codec

import (
	"bytes"
	"encoding/binary"

	"github.com/colorfulnotion/ismp/common"
	"github.com/holiman/uint256"
)

// Encoder appends canonical encodings to an in-memory buffer.
type Encoder struct {
	buf bytes.Buffer
}

// NewEncoder creates a new encoder.
func NewEncoder() *Encoder {
	return &Encoder{}
}

func (e *Encoder) Bytes() []byte {
	return e.buf.Bytes()
}

func (e *Encoder) EncodeUint8(v uint8) {
	e.buf.WriteByte(v)
}

func (e *Encoder) EncodeUint16(v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	e.buf.Write(b[:])
}

func (e *Encoder) EncodeUint32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	e.buf.Write(b[:])
}

func (e *Encoder) EncodeUint64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	e.buf.Write(b[:])
}

func (e *Encoder) EncodeBool(v bool) {
	if v {
		e.buf.WriteByte(1)
		return
	}
	e.buf.WriteByte(0)
}

// EncodeCompact writes x in the SCALE compact form.
func (e *Encoder) EncodeCompact(x uint64) {
	switch {
	case x < 1<<6:
		e.buf.WriteByte(byte(x << 2))
	case x < 1<<14:
		e.EncodeUint16(uint16(x<<2) | 0b01)
	case x < 1<<30:
		e.EncodeUint32(uint32(x<<2) | 0b10)
	default:
		n := 0
		for v := x; v > 0; v >>= 8 {
			n++
		}
		e.buf.WriteByte(byte((n-4)<<2) | 0b11)
		for i := 0; i < n; i++ {
			e.buf.WriteByte(byte(x >> (8 * i)))
		}
	}
}

// EncodeLength writes a sequence length prefix.
func (e *Encoder) EncodeLength(n int) {
	e.EncodeCompact(uint64(n))
}

// EncodeBytes writes a length prefixed byte string.
func (e *Encoder) EncodeBytes(b []byte) {
	e.EncodeLength(len(b))
	e.buf.Write(b)
}

// EncodeFixed writes b as is; the length is implied by the type.
func (e *Encoder) EncodeFixed(b []byte) {
	e.buf.Write(b)
}

func (e *Encoder) EncodeString(s string) {
	e.EncodeBytes([]byte(s))
}

func (e *Encoder) EncodeHash(h common.Hash) {
	e.buf.Write(h[:])
}

// EncodeOption writes the presence tag of an optional value; the caller writes the value when present.
func (e *Encoder) EncodeOption(present bool) {
	e.EncodeBool(present)
}

// EncodeU256 writes a 256-bit unsigned integer as 32 little endian bytes. nil encodes as zero.
func (e *Encoder) EncodeU256(v *uint256.Int) {
	var be [32]byte
	if v != nil {
		be = v.Bytes32()
	}
	for i := 31; i >= 0; i-- {
		e.buf.WriteByte(be[i])
	}
}

// EncodeByteSeq writes a length prefixed sequence of byte strings.
func (e *Encoder) EncodeByteSeq(seq [][]byte) {
	e.EncodeLength(len(seq))
	for _, b := range seq {
		e.EncodeBytes(b)
	}
}

func (e *Encoder) EncodeHashSeq(seq []common.Hash) {
	e.EncodeLength(len(seq))
	for _, h := range seq {
		e.EncodeHash(h)
	}
}
