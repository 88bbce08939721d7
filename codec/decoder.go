package codec

import (
	"encoding/binary"
	"fmt"

	"github.com/colorfulnotion/ismp/common"
	"github.com/holiman/uint256"
)

// Decoder reads canonical encodings from a byte slice. The first error is sticky:
// once set, every subsequent read returns zero values and Err reports it.
type Decoder struct {
	data []byte
	pos  int
	err  error
}

func NewDecoder(data []byte) *Decoder {
	return &Decoder{data: data}
}

func (d *Decoder) Err() error {
	return d.err
}

// Fail records err unless an earlier error is already set.
func (d *Decoder) Fail(err error) {
	if d.err == nil {
		d.err = err
	}
}

func (d *Decoder) Remaining() int {
	return len(d.data) - d.pos
}

// Finish reports the sticky error or ErrTrailingBytes if input is left over.
func (d *Decoder) Finish() error {
	if d.err != nil {
		return d.err
	}
	if d.pos != len(d.data) {
		return fmt.Errorf("%w: %d", ErrTrailingBytes, len(d.data)-d.pos)
	}
	return nil
}

func (d *Decoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}
	if n < 0 || d.pos+n > len(d.data) {
		d.err = ErrUnexpectedEOF
		return nil
	}
	out := d.data[d.pos : d.pos+n]
	d.pos += n
	return out
}

func (d *Decoder) DecodeUint8() uint8 {
	b := d.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (d *Decoder) DecodeUint16() uint16 {
	b := d.take(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (d *Decoder) DecodeUint32() uint32 {
	b := d.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (d *Decoder) DecodeUint64() uint64 {
	b := d.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (d *Decoder) DecodeBool() bool {
	switch d.DecodeUint8() {
	case 0:
		return false
	case 1:
		return true
	default:
		d.Fail(fmt.Errorf("%w: bool", ErrInvalidTag))
		return false
	}
}

// DecodeCompact reads a SCALE compact integer, rejecting non-minimal forms.
func (d *Decoder) DecodeCompact() uint64 {
	first := d.DecodeUint8()
	if d.err != nil {
		return 0
	}
	switch first & 0b11 {
	case 0b00:
		return uint64(first >> 2)
	case 0b01:
		next := d.DecodeUint8()
		x := uint64(uint16(first)|uint16(next)<<8) >> 2
		if d.err == nil && x < 1<<6 {
			d.Fail(ErrNonCanonical)
		}
		return x
	case 0b10:
		rest := d.take(3)
		if rest == nil {
			return 0
		}
		x := uint64(binary.LittleEndian.Uint32([]byte{first, rest[0], rest[1], rest[2]})) >> 2
		if x < 1<<14 {
			d.Fail(ErrNonCanonical)
		}
		return x
	default:
		n := int(first>>2) + 4
		if n > 8 {
			d.Fail(fmt.Errorf("%w: compact integer of %d bytes", ErrNonCanonical, n))
			return 0
		}
		b := d.take(n)
		if b == nil {
			return 0
		}
		var x uint64
		for i := 0; i < n; i++ {
			x |= uint64(b[i]) << (8 * i)
		}
		if x < 1<<30 || b[n-1] == 0 {
			d.Fail(ErrNonCanonical)
		}
		return x
	}
}

// DecodeLength reads a sequence length; each element needs at least minElemSize bytes,
// which bounds allocations on hostile input.
func (d *Decoder) DecodeLength(minElemSize int) int {
	n := d.DecodeCompact()
	if d.err != nil {
		return 0
	}
	if minElemSize < 1 {
		minElemSize = 1
	}
	if n > uint64(d.Remaining()/minElemSize) {
		d.Fail(ErrLengthOverflow)
		return 0
	}
	return int(n)
}

func (d *Decoder) DecodeBytes() []byte {
	n := d.DecodeLength(1)
	b := d.take(n)
	if b == nil {
		return nil
	}
	out := make([]byte, n)
	copy(out, b)
	return out
}

// DecodeFixed fills out with exactly len(out) bytes.
func (d *Decoder) DecodeFixed(out []byte) {
	b := d.take(len(out))
	if b != nil {
		copy(out, b)
	}
}

func (d *Decoder) DecodeString() string {
	return string(d.DecodeBytes())
}

func (d *Decoder) DecodeHash() common.Hash {
	var h common.Hash
	d.DecodeFixed(h[:])
	return h
}

func (d *Decoder) DecodeOption() bool {
	return d.DecodeBool()
}

// DecodeTag reads an enum variant tag and validates it against the number of variants.
func (d *Decoder) DecodeTag(variants uint8) uint8 {
	tag := d.DecodeUint8()
	if d.err == nil && tag >= variants {
		d.Fail(fmt.Errorf("%w: %d", ErrInvalidTag, tag))
	}
	return tag
}

func (d *Decoder) DecodeU256() *uint256.Int {
	b := d.take(32)
	if b == nil {
		return new(uint256.Int)
	}
	var be [32]byte
	for i := 0; i < 32; i++ {
		be[31-i] = b[i]
	}
	return new(uint256.Int).SetBytes32(be[:])
}

func (d *Decoder) DecodeByteSeq() [][]byte {
	n := d.DecodeLength(1)
	out := make([][]byte, 0, n)
	for i := 0; i < n && d.err == nil; i++ {
		out = append(out, d.DecodeBytes())
	}
	return out
}

func (d *Decoder) DecodeHashSeq() []common.Hash {
	n := d.DecodeLength(common.HashLength)
	out := make([]common.Hash, 0, n)
	for i := 0; i < n && d.err == nil; i++ {
		out = append(out, d.DecodeHash())
	}
	return out
}
