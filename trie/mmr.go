package trie

import (
	"errors"
	"fmt"
	"math/bits"

	"github.com/colorfulnotion/ismp/common"
)

var (
	ErrMMRNodeMissing    = errors.New("mmr: node missing from store")
	ErrMMRInvalidLeaf    = errors.New("mmr: position is not a leaf of this mmr")
	ErrMMRInvalidProof   = errors.New("mmr: malformed proof")
	ErrMMRUnsortedLeaves = errors.New("mmr: leaf positions must be strictly increasing")
)

// NodeStore holds MMR node hashes by position.
type NodeStore interface {
	GetNode(pos uint64) (common.Hash, bool, error)
	PutNode(pos uint64, hash common.Hash) error
}

// MemNodeStore is an in-memory NodeStore.
type MemNodeStore map[uint64]common.Hash

func (s MemNodeStore) GetNode(pos uint64) (common.Hash, bool, error) {
	h, ok := s[pos]
	return h, ok, nil
}

func (s MemNodeStore) PutNode(pos uint64, hash common.Hash) error {
	s[pos] = hash
	return nil
}

// MerkleMountainRange is an append-only accumulator. Nodes are numbered in post-order:
// leaves 0, 1, 3, 4, 7, ... with each parent following its right child.
type MerkleMountainRange struct {
	size  uint64
	store NodeStore
}

// NewMMR opens an MMR of the given size (total node count) over store.
func NewMMR(size uint64, store NodeStore) *MerkleMountainRange {
	return &MerkleMountainRange{size: size, store: store}
}

func (mmr *MerkleMountainRange) Size() uint64 {
	return mmr.size
}

func (mmr *MerkleMountainRange) LeafCount() uint64 {
	return MMRSizeToLeafCount(mmr.size)
}

// Append adds a leaf and returns its position.
func (mmr *MerkleMountainRange) Append(leaf common.Hash) (uint64, error) {
	leafPos := mmr.size
	if err := mmr.store.PutNode(leafPos, leaf); err != nil {
		return 0, err
	}
	pos, height, current := leafPos, uint32(0), leaf
	for posHeightInTree(pos+1) > height {
		pos++
		leftPos := pos - parentOffset(height)
		left, err := mmr.node(leftPos)
		if err != nil {
			return 0, err
		}
		current = merge(left, current)
		if err := mmr.store.PutNode(pos, current); err != nil {
			return 0, err
		}
		height++
	}
	mmr.size = pos + 1
	return leafPos, nil
}

func (mmr *MerkleMountainRange) node(pos uint64) (common.Hash, error) {
	h, ok, err := mmr.store.GetNode(pos)
	if err != nil {
		return common.Hash{}, err
	}
	if !ok {
		return common.Hash{}, fmt.Errorf("%w: position %d", ErrMMRNodeMissing, pos)
	}
	return h, nil
}

// PeakPositions lists the peak positions from left (highest) to right.
func (mmr *MerkleMountainRange) PeakPositions() []uint64 {
	return getPeaks(mmr.size)
}

func (mmr *MerkleMountainRange) Peaks() ([]common.Hash, error) {
	positions := getPeaks(mmr.size)
	peaks := make([]common.Hash, len(positions))
	for i, pos := range positions {
		h, err := mmr.node(pos)
		if err != nil {
			return nil, err
		}
		peaks[i] = h
	}
	return peaks, nil
}

// Root bags the peaks. An empty MMR has the zero root.
func (mmr *MerkleMountainRange) Root() (common.Hash, error) {
	peaks, err := mmr.Peaks()
	if err != nil {
		return common.Hash{}, err
	}
	return BagPeaks(peaks), nil
}

// BagPeaks folds peaks from the right: H(p0 || H(p1 || ... pn)).
func BagPeaks(peaks []common.Hash) common.Hash {
	if len(peaks) == 0 {
		return common.Hash{}
	}
	bag := peaks[len(peaks)-1]
	for i := len(peaks) - 2; i >= 0; i-- {
		bag = merge(peaks[i], bag)
	}
	return bag
}

// LeafIndexToPos maps the i-th appended leaf to its node position.
func LeafIndexToPos(index uint64) uint64 {
	return LeafIndexToMMRSize(index) - uint64(bits.TrailingZeros64(index+1)) - 1
}

// LeafIndexToMMRSize is the MMR size right after the i-th leaf was appended.
func LeafIndexToMMRSize(index uint64) uint64 {
	leaves := index + 1
	return 2*leaves - uint64(bits.OnesCount64(leaves))
}

// LeafCountToMMRSize is the size of an MMR holding n leaves.
func LeafCountToMMRSize(n uint64) uint64 {
	return 2*n - uint64(bits.OnesCount64(n))
}

// MMRSizeToLeafCount counts the leaves under the peaks of an MMR of the given size.
func MMRSizeToLeafCount(size uint64) uint64 {
	var leaves uint64
	for _, pos := range getPeaks(size) {
		leaves += 1 << posHeightInTree(pos)
	}
	return leaves
}

// IsLeafPos reports whether pos is a leaf position.
func IsLeafPos(pos uint64) bool {
	return posHeightInTree(pos) == 0
}

func posHeightInTree(pos uint64) uint32 {
	pos++
	for !allOnes(pos) {
		pos = jumpLeft(pos)
	}
	return uint32(64-bits.LeadingZeros64(pos)) - 1
}

func allOnes(n uint64) bool {
	return n != 0 && n&(n+1) == 0
}

func jumpLeft(pos uint64) uint64 {
	bitLength := uint32(64 - bits.LeadingZeros64(pos))
	mostSignificant := uint64(1) << (bitLength - 1)
	return pos - (mostSignificant - 1)
}

func parentOffset(height uint32) uint64 {
	return 2 << height
}

func siblingOffset(height uint32) uint64 {
	return (2 << height) - 1
}

func getPeakPosByHeight(height uint32) uint64 {
	return (1 << (height + 1)) - 2
}

func leftPeakHeightPos(size uint64) (uint32, uint64) {
	height := uint32(1)
	prevPos := uint64(0)
	pos := getPeakPosByHeight(height)
	for pos < size {
		height++
		prevPos = pos
		pos = getPeakPosByHeight(height)
	}
	return height - 1, prevPos
}

func getRightPeak(height uint32, pos, size uint64) (uint32, uint64, bool) {
	pos += siblingOffset(height)
	for pos > size-1 {
		if height == 0 {
			return 0, 0, false
		}
		pos -= parentOffset(height - 1)
		height--
	}
	return height, pos, true
}

func getPeaks(size uint64) []uint64 {
	if size == 0 {
		return nil
	}
	height, pos := leftPeakHeightPos(size)
	peaks := []uint64{pos}
	for height > 0 {
		h, p, ok := getRightPeak(height, pos, size)
		if !ok {
			break
		}
		height, pos = h, p
		peaks = append(peaks, pos)
	}
	return peaks
}
