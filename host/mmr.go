package host

import (
	"fmt"

	"github.com/colorfulnotion/ismp/codec"
	"github.com/colorfulnotion/ismp/common"
	"github.com/colorfulnotion/ismp/ismperrors"
	"github.com/colorfulnotion/ismp/log"
	"github.com/colorfulnotion/ismp/trie"
	"github.com/colorfulnotion/ismp/types"
	"github.com/xlab/treeprint"
)

// nodeStore keeps every MMR node in the offchain index.
type nodeStore struct {
	s *hostState
}

func (n nodeStore) GetNode(pos uint64) (common.Hash, bool, error) {
	return n.s.readHash(mmrNodeKey(pos))
}

func (n nodeStore) PutNode(pos uint64, hash common.Hash) error {
	return n.s.kv.Put(mmrNodeKey(pos), hash[:])
}

func (s *hostState) mmr() (*trie.MerkleMountainRange, error) {
	size, _, err := s.readUint64(mmrSizeKey)
	if err != nil {
		return nil, err
	}
	return trie.NewMMR(size, nodeStore{s}), nil
}

// appendLeaf adds leaf to the accumulator. On-chain only the root, the counters and
// the peaks are kept; the nodes and the leaf payload go to the offchain index.
func (s *hostState) appendLeaf(leaf types.Leaf) (types.LeafMetadata, error) {
	mmr, err := s.mmr()
	if err != nil {
		return types.LeafMetadata{}, err
	}
	leafIndex := mmr.LeafCount()
	oldPeaks := mmr.PeakPositions()
	pos, err := mmr.Append(leaf.Hash())
	if err != nil {
		return types.LeafMetadata{}, err
	}
	root, err := mmr.Root()
	if err != nil {
		return types.LeafMetadata{}, err
	}

	for _, p := range oldPeaks {
		if err := s.kv.Delete(mmrPeakKey(p)); err != nil {
			return types.LeafMetadata{}, err
		}
	}
	peaks, err := mmr.Peaks()
	if err != nil {
		return types.LeafMetadata{}, err
	}
	for i, p := range mmr.PeakPositions() {
		if err := s.kv.Put(mmrPeakKey(p), peaks[i][:]); err != nil {
			return types.LeafMetadata{}, err
		}
	}
	if err := s.kv.Put(mmrRootKey, root[:]); err != nil {
		return types.LeafMetadata{}, err
	}
	if err := s.writeUint64(mmrSizeKey, mmr.Size()); err != nil {
		return types.LeafMetadata{}, err
	}
	if err := s.writeUint64(mmrLeafCountKey, leafIndex+1); err != nil {
		return types.LeafMetadata{}, err
	}
	if err := s.write(mmrLeafKey(pos), leaf); err != nil {
		return types.LeafMetadata{}, err
	}
	log.Trace(log.MMRModule, "mmr leaf appended", "leafIndex", leafIndex, "pos", pos, "root", root)
	return types.LeafMetadata{LeafIndex: leafIndex, Position: pos}, nil
}

func (s *hostState) leafAt(pos uint64) (types.Leaf, error) {
	var leaf types.Leaf
	ok, err := s.read(mmrLeafKey(pos), &leaf)
	if err != nil {
		return leaf, err
	}
	if !ok {
		return leaf, fmt.Errorf("no leaf at position %d: %w", pos, ismperrors.ErrHImplementationSpecific)
	}
	return leaf, nil
}

// MmrRoot is the current accumulator root, zero while empty.
func (h *Host) MmrRoot() (common.Hash, error) {
	var root common.Hash
	err := h.view(func(s *hostState) error {
		var err error
		root, _, err = s.readHash(mmrRootKey)
		return err
	})
	return root, err
}

func (h *Host) MmrLeafCount() (uint64, error) {
	var n uint64
	err := h.view(func(s *hostState) error {
		var err error
		n, _, err = s.readUint64(mmrLeafCountKey)
		return err
	})
	return n, err
}

// MmrTree renders the accumulator nodes as a tree of mountains.
func (h *Host) MmrTree() (treeprint.Tree, error) {
	var tree treeprint.Tree
	err := h.view(func(s *hostState) error {
		mmr, err := s.mmr()
		if err != nil {
			return err
		}
		tree, err = mmr.ToTree()
		return err
	})
	return tree, err
}

// GenerateProof proves the leaves at the given positions against MmrRoot. The leaves
// are returned in proof order.
func (h *Host) GenerateProof(positions []uint64) (*trie.MMRProof, []types.Leaf, error) {
	var (
		proof  *trie.MMRProof
		leaves []types.Leaf
	)
	err := h.view(func(s *hostState) error {
		mmr, err := s.mmr()
		if err != nil {
			return err
		}
		if proof, err = mmr.GenerateProof(positions); err != nil {
			return err
		}
		for _, pos := range proof.LeafPositions {
			leaf, err := s.leafAt(pos)
			if err != nil {
				return err
			}
			leaves = append(leaves, leaf)
		}
		return nil
	})
	return proof, leaves, err
}

// EncodedProof is GenerateProof in the wire form carried by request and response messages.
func (h *Host) EncodedProof(positions []uint64) ([]byte, error) {
	proof, _, err := h.GenerateProof(positions)
	if err != nil {
		return nil, err
	}
	return codec.Encode(*proof), nil
}

// GetRequests returns the requests stored at the given leaf positions. Positions
// holding responses are skipped.
func (h *Host) GetRequests(positions []uint64) ([]types.Request, error) {
	var out []types.Request
	err := h.view(func(s *hostState) error {
		for _, pos := range positions {
			leaf, err := s.leafAt(pos)
			if err != nil {
				return err
			}
			if leaf.Request != nil {
				out = append(out, *leaf.Request)
			}
		}
		return nil
	})
	return out, err
}

func (h *Host) GetResponses(positions []uint64) ([]types.Response, error) {
	var out []types.Response
	err := h.view(func(s *hostState) error {
		for _, pos := range positions {
			leaf, err := s.leafAt(pos)
			if err != nil {
				return err
			}
			if leaf.Response != nil {
				out = append(out, *leaf.Response)
			}
		}
		return nil
	})
	return out, err
}
