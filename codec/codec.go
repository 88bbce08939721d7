// Package codec implements the canonical binary encoding used for every ISMP payload.
//
// The format is SCALE: fixed-width integers are little endian, lengths and counters use
// the compact encoding, byte strings and sequences are length prefixed, options carry a
// one byte presence tag and enums a one byte variant tag. Decoding is strict: non
// canonical compact integers and trailing bytes are rejected, so that every value has
// exactly one encoding and content hashes are reproducible across nodes.
package codec

import (
	"errors"
	"fmt"
)

var (
	ErrUnexpectedEOF  = errors.New("codec: unexpected end of input")
	ErrNonCanonical   = errors.New("codec: non-canonical compact integer")
	ErrTrailingBytes  = errors.New("codec: trailing bytes after value")
	ErrInvalidTag     = errors.New("codec: invalid variant tag")
	ErrLengthOverflow = errors.New("codec: length exceeds remaining input")
)

// Encodable is implemented by every type with a canonical encoding.
type Encodable interface {
	EncodeTo(e *Encoder)
}

// Decodable is implemented by every type that can be read back from its canonical encoding.
type Decodable interface {
	DecodeFrom(d *Decoder)
}

// Encode serializes the given object using the canonical codec rules.
func Encode(obj Encodable) []byte {
	e := NewEncoder()
	obj.EncodeTo(e)
	return e.Bytes()
}

// Decode deserializes inp into obj. The whole input must be consumed.
func Decode(inp []byte, obj Decodable) error {
	d := NewDecoder(inp)
	obj.DecodeFrom(d)
	if err := d.Finish(); err != nil {
		return fmt.Errorf("decoding failed: %w", err)
	}
	return nil
}
