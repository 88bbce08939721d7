package consensus

import (
	"github.com/colorfulnotion/ismp/codec"
	"github.com/colorfulnotion/ismp/common"
	"github.com/colorfulnotion/ismp/types"
)

// Header is the finalized header format shared by the clients in this package.
// It carries the state commitments of the state machines the chain secures, and
// announces the next validator set when the set changes.
type Header struct {
	ParentHash      common.Hash               `json:"parent_hash"`
	Height          uint64                    `json:"height"`
	Timestamp       uint64                    `json:"timestamp"`
	Commitments     []types.IntermediateState `json:"commitments"`
	NextAuthorities []common.HexBytes         `json:"next_authorities,omitempty"`
}

func (h Header) EncodeTo(e *codec.Encoder) {
	e.EncodeHash(h.ParentHash)
	e.EncodeUint64(h.Height)
	e.EncodeUint64(h.Timestamp)
	e.EncodeLength(len(h.Commitments))
	for _, c := range h.Commitments {
		c.EncodeTo(e)
	}
	e.EncodeOption(h.NextAuthorities != nil)
	if h.NextAuthorities != nil {
		e.EncodeLength(len(h.NextAuthorities))
		for _, a := range h.NextAuthorities {
			e.EncodeBytes(a)
		}
	}
}

func (h *Header) DecodeFrom(d *codec.Decoder) {
	h.ParentHash = d.DecodeHash()
	h.Height = d.DecodeUint64()
	h.Timestamp = d.DecodeUint64()
	n := d.DecodeLength(1)
	h.Commitments = make([]types.IntermediateState, n)
	for i := 0; i < n && d.Err() == nil; i++ {
		h.Commitments[i].DecodeFrom(d)
	}
	h.NextAuthorities = nil
	if d.DecodeOption() {
		raw := d.DecodeByteSeq()
		h.NextAuthorities = make([]common.HexBytes, len(raw))
		for i, a := range raw {
			h.NextAuthorities[i] = a
		}
	}
}

// Blake2Hash identifies the header on blake2b chains.
func (h Header) Blake2Hash() common.Hash {
	return common.Blake2Hash(codec.Encode(h))
}

// KeccakHash identifies the header on keccak chains.
func (h Header) KeccakHash() common.Hash {
	return common.Keccak256(codec.Encode(h))
}

// Rotates reports whether the header hands over to a new validator set.
func (h Header) Rotates() bool {
	return h.NextAuthorities != nil
}
