package trie

import (
	"fmt"

	"github.com/colorfulnotion/ismp/codec"
	"github.com/colorfulnotion/ismp/common"
	"golang.org/x/exp/slices"
)

// MMRProof proves a set of leaves against an MMR root. Items are the sibling hashes
// needed while climbing each peak containing a proven leaf, and the peak hash of
// every peak containing none, in left to right order.
type MMRProof struct {
	LeafPositions []uint64      `json:"leaf_positions"`
	LeafCount     uint64        `json:"leaf_count"`
	Items         []common.Hash `json:"items"`
}

func (p MMRProof) EncodeTo(e *codec.Encoder) {
	e.EncodeLength(len(p.LeafPositions))
	for _, pos := range p.LeafPositions {
		e.EncodeUint64(pos)
	}
	e.EncodeUint64(p.LeafCount)
	e.EncodeHashSeq(p.Items)
}

func (p *MMRProof) DecodeFrom(d *codec.Decoder) {
	n := d.DecodeLength(8)
	p.LeafPositions = make([]uint64, n)
	for i := 0; i < n && d.Err() == nil; i++ {
		p.LeafPositions[i] = d.DecodeUint64()
	}
	p.LeafCount = d.DecodeUint64()
	p.Items = d.DecodeHashSeq()
}

const maxLeafCount = 1 << 62

type posHash struct {
	pos  uint64
	hash common.Hash
}

// siblingSource yields the hash of a node the walk needs but cannot compute.
type siblingSource func(pos uint64) (common.Hash, error)

// GenerateProof builds a proof for the leaves at the given positions.
func (mmr *MerkleMountainRange) GenerateProof(positions []uint64) (*MMRProof, error) {
	sorted := slices.Clone(positions)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)
	if err := checkLeafPositions(sorted, mmr.size); err != nil {
		return nil, err
	}
	leaves := make([]posHash, len(sorted))
	for i, pos := range sorted {
		h, err := mmr.node(pos)
		if err != nil {
			return nil, err
		}
		leaves[i] = posHash{pos, h}
	}
	proof := &MMRProof{LeafPositions: sorted, LeafCount: mmr.LeafCount()}
	collect := func(pos uint64) (common.Hash, error) {
		h, err := mmr.node(pos)
		if err != nil {
			return common.Hash{}, err
		}
		proof.Items = append(proof.Items, h)
		return h, nil
	}
	if _, err := calculateRoot(mmr.size, leaves, collect); err != nil {
		return nil, err
	}
	return proof, nil
}

// VerifyMMRProof checks that leaves, given in the order of proof.LeafPositions, are
// committed to by root.
func VerifyMMRProof(root common.Hash, proof *MMRProof, leaves []common.Hash) bool {
	calculated, err := CalculateMMRRoot(proof, leaves)
	return err == nil && calculated == root
}

// CalculateMMRRoot recomputes the root implied by a proof and its leaves.
func CalculateMMRRoot(proof *MMRProof, leaves []common.Hash) (common.Hash, error) {
	if proof == nil || len(leaves) != len(proof.LeafPositions) || len(leaves) == 0 {
		return common.Hash{}, ErrMMRInvalidProof
	}
	if proof.LeafCount > maxLeafCount {
		return common.Hash{}, fmt.Errorf("%w: leaf count %d", ErrMMRInvalidProof, proof.LeafCount)
	}
	size := LeafCountToMMRSize(proof.LeafCount)
	if err := checkLeafPositions(proof.LeafPositions, size); err != nil {
		return common.Hash{}, err
	}
	claimed := make([]posHash, len(leaves))
	for i, h := range leaves {
		claimed[i] = posHash{proof.LeafPositions[i], h}
	}
	next := 0
	consume := func(uint64) (common.Hash, error) {
		if next >= len(proof.Items) {
			return common.Hash{}, fmt.Errorf("%w: too few items", ErrMMRInvalidProof)
		}
		next++
		return proof.Items[next-1], nil
	}
	root, err := calculateRoot(size, claimed, consume)
	if err != nil {
		return common.Hash{}, err
	}
	if next != len(proof.Items) {
		return common.Hash{}, fmt.Errorf("%w: %d unused items", ErrMMRInvalidProof, len(proof.Items)-next)
	}
	return root, nil
}

func checkLeafPositions(positions []uint64, size uint64) error {
	for i, pos := range positions {
		if pos >= size || !IsLeafPos(pos) {
			return fmt.Errorf("%w: %d", ErrMMRInvalidLeaf, pos)
		}
		if i > 0 && positions[i-1] >= pos {
			return ErrMMRUnsortedLeaves
		}
	}
	return nil
}

// calculateRoot is shared by proof generation and verification: both walk every
// peak the same way and differ only in where missing hashes come from.
func calculateRoot(size uint64, leaves []posHash, sibling siblingSource) (common.Hash, error) {
	peaks := getPeaks(size)
	peakHashes := make([]common.Hash, 0, len(peaks))
	i := 0
	for _, peak := range peaks {
		start := i
		for i < len(leaves) && leaves[i].pos <= peak {
			i++
		}
		var (
			h   common.Hash
			err error
		)
		if start == i {
			h, err = sibling(peak)
		} else {
			h, err = walkPeak(peak, leaves[start:i], sibling)
		}
		if err != nil {
			return common.Hash{}, err
		}
		peakHashes = append(peakHashes, h)
	}
	if i != len(leaves) {
		return common.Hash{}, ErrMMRInvalidLeaf
	}
	return BagPeaks(peakHashes), nil
}

// walkPeak climbs from the given leaves, all under peak, up to the peak hash.
func walkPeak(peak uint64, leaves []posHash, sibling siblingSource) (common.Hash, error) {
	type item struct {
		posHash
		height uint32
	}
	queue := make([]item, 0, len(leaves))
	for _, l := range leaves {
		queue = append(queue, item{posHash: l})
	}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur.pos == peak {
			if len(queue) != 0 {
				return common.Hash{}, fmt.Errorf("%w: nodes left above peak %d", ErrMMRInvalidProof, peak)
			}
			return cur.hash, nil
		}

		isRight := posHeightInTree(cur.pos+1) > cur.height
		var sibPos, parentPos uint64
		if isRight {
			sibPos = cur.pos - siblingOffset(cur.height)
			parentPos = cur.pos + 1
		} else {
			sibPos = cur.pos + siblingOffset(cur.height)
			parentPos = cur.pos + parentOffset(cur.height)
		}
		if parentPos > peak {
			return common.Hash{}, fmt.Errorf("%w: position %d climbs past peak %d", ErrMMRInvalidProof, cur.pos, peak)
		}

		var sibHash common.Hash
		if len(queue) > 0 && queue[0].pos == sibPos {
			sibHash = queue[0].hash
			queue = queue[1:]
		} else {
			h, err := sibling(sibPos)
			if err != nil {
				return common.Hash{}, err
			}
			sibHash = h
		}

		parent := item{posHash: posHash{pos: parentPos}, height: cur.height + 1}
		if isRight {
			parent.hash = merge(sibHash, cur.hash)
		} else {
			parent.hash = merge(cur.hash, sibHash)
		}
		queue = append(queue, parent)
	}
	return common.Hash{}, fmt.Errorf("%w: empty walk under peak %d", ErrMMRInvalidProof, peak)
}
