package trie

import (
	"github.com/colorfulnotion/ismp/codec"
	"github.com/colorfulnotion/ismp/common"
)

// StateProof proves the presence or absence of keys in a StateTree with LeafCount entries.
type StateProof struct {
	LeafCount uint64     `json:"leaf_count"`
	Keys      []KeyProof `json:"keys"`
}

// KeyProof covers one key: Leaf when present, otherwise its neighbours Left and Right
// (either may be nil at the edges of the tree).
type KeyProof struct {
	Key   common.HexBytes `json:"key"`
	Leaf  *LeafProof      `json:"leaf,omitempty"`
	Left  *LeafProof      `json:"left,omitempty"`
	Right *LeafProof      `json:"right,omitempty"`
}

type LeafProof struct {
	Index uint64          `json:"index"`
	Key   common.HexBytes `json:"key"`
	Value common.HexBytes `json:"value"`
	Path  []common.Hash   `json:"path"`
}

func (p StateProof) EncodeTo(e *codec.Encoder) {
	e.EncodeUint64(p.LeafCount)
	e.EncodeLength(len(p.Keys))
	for _, kp := range p.Keys {
		kp.EncodeTo(e)
	}
}

func (p *StateProof) DecodeFrom(d *codec.Decoder) {
	p.LeafCount = d.DecodeUint64()
	n := d.DecodeLength(2)
	p.Keys = make([]KeyProof, n)
	for i := 0; i < n && d.Err() == nil; i++ {
		p.Keys[i].DecodeFrom(d)
	}
}

func (kp KeyProof) EncodeTo(e *codec.Encoder) {
	e.EncodeBytes(kp.Key)
	if kp.Leaf != nil {
		e.EncodeUint8(0)
		kp.Leaf.EncodeTo(e)
		return
	}
	e.EncodeUint8(1)
	encodeOptionalLeaf(e, kp.Left)
	encodeOptionalLeaf(e, kp.Right)
}

func (kp *KeyProof) DecodeFrom(d *codec.Decoder) {
	*kp = KeyProof{Key: d.DecodeBytes()}
	if d.DecodeTag(2) == 0 {
		kp.Leaf = new(LeafProof)
		kp.Leaf.DecodeFrom(d)
		return
	}
	kp.Left = decodeOptionalLeaf(d)
	kp.Right = decodeOptionalLeaf(d)
}

func (l LeafProof) EncodeTo(e *codec.Encoder) {
	e.EncodeUint64(l.Index)
	e.EncodeBytes(l.Key)
	e.EncodeBytes(l.Value)
	e.EncodeHashSeq(l.Path)
}

func (l *LeafProof) DecodeFrom(d *codec.Decoder) {
	l.Index = d.DecodeUint64()
	l.Key = d.DecodeBytes()
	l.Value = d.DecodeBytes()
	l.Path = d.DecodeHashSeq()
}

func encodeOptionalLeaf(e *codec.Encoder, l *LeafProof) {
	e.EncodeOption(l != nil)
	if l != nil {
		l.EncodeTo(e)
	}
}

func decodeOptionalLeaf(d *codec.Decoder) *LeafProof {
	if !d.DecodeOption() {
		return nil
	}
	l := new(LeafProof)
	l.DecodeFrom(d)
	return l
}
