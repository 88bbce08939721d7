package trie

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	"github.com/colorfulnotion/ismp/common"
)

var (
	ErrStateProofInvalid    = errors.New("state proof: verification failed")
	ErrStateProofKeyMissing = errors.New("state proof: key not covered by proof")
)

// KeyValue is one entry of a state tree.
type KeyValue struct {
	Key   []byte
	Value []byte
}

type stateNode struct {
	hash  common.Hash
	left  *stateNode
	right *stateNode
}

// StateTree is a well balanced binary tree over key/value entries sorted by key.
// Subtrees split with the larger half on the left. Absence of a key is shown by two
// adjacent leaves around it, which sorting makes sound.
type StateTree struct {
	entries []KeyValue
	root    *stateNode
}

// NewStateTree builds the tree. Later duplicates of a key are dropped.
func NewStateTree(entries []KeyValue) *StateTree {
	sorted := make([]KeyValue, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		return bytes.Compare(sorted[i].Key, sorted[j].Key) < 0
	})
	unique := sorted[:0]
	for i, kv := range sorted {
		if i > 0 && bytes.Equal(kv.Key, sorted[i-1].Key) {
			continue
		}
		unique = append(unique, kv)
	}
	tree := &StateTree{entries: unique}
	if len(unique) > 0 {
		leaves := make([]*stateNode, len(unique))
		for i, kv := range unique {
			leaves[i] = &stateNode{hash: computeLeaf(kv.Key, kv.Value)}
		}
		tree.root = buildStateTree(leaves)
	}
	return tree
}

func buildStateTree(nodes []*stateNode) *stateNode {
	if len(nodes) == 1 {
		return nodes[0]
	}
	mid := splitPoint(len(nodes))
	left := buildStateTree(nodes[:mid])
	right := buildStateTree(nodes[mid:])
	return &stateNode{hash: computeNode(left.hash, right.hash), left: left, right: right}
}

func splitPoint(n int) int {
	return (n + 1) / 2
}

func (tree *StateTree) Root() common.Hash {
	if tree.root == nil {
		return common.Hash{}
	}
	return tree.root.hash
}

func (tree *StateTree) Len() int {
	return len(tree.entries)
}

// Get returns the value stored under key.
func (tree *StateTree) Get(key []byte) ([]byte, bool) {
	i, found := tree.search(key)
	if !found {
		return nil, false
	}
	return tree.entries[i].Value, true
}

func (tree *StateTree) search(key []byte) (int, bool) {
	i := sort.Search(len(tree.entries), func(i int) bool {
		return bytes.Compare(tree.entries[i].Key, key) >= 0
	})
	return i, i < len(tree.entries) && bytes.Equal(tree.entries[i].Key, key)
}

// Prove builds membership or non-membership proofs for every key.
func (tree *StateTree) Prove(keys [][]byte) *StateProof {
	proof := &StateProof{LeafCount: uint64(len(tree.entries))}
	for _, key := range keys {
		kp := KeyProof{Key: key}
		i, found := tree.search(key)
		if found {
			kp.Leaf = tree.trace(i)
		} else {
			if i > 0 {
				kp.Left = tree.trace(i - 1)
			}
			if i < len(tree.entries) {
				kp.Right = tree.trace(i)
			}
		}
		proof.Keys = append(proof.Keys, kp)
	}
	return proof
}

// trace collects the siblings from leaf index up to the root, bottom first.
func (tree *StateTree) trace(index int) *LeafProof {
	var path []common.Hash
	node, lo, hi := tree.root, 0, len(tree.entries)
	for hi-lo > 1 {
		mid := lo + splitPoint(hi-lo)
		if index < mid {
			path = append(path, node.right.hash)
			node, hi = node.left, mid
		} else {
			path = append(path, node.left.hash)
			node, lo = node.right, mid
		}
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	kv := tree.entries[index]
	return &LeafProof{Index: uint64(index), Key: kv.Key, Value: kv.Value, Path: path}
}

// computeDirectionsForIndex returns, top down, whether index descends right at each level.
func computeDirectionsForIndex(index, totalLeaves uint64) []bool {
	var dirs []bool
	lo, hi := uint64(0), totalLeaves
	for hi-lo > 1 {
		mid := lo + uint64(splitPoint(int(hi-lo)))
		if index < mid {
			dirs = append(dirs, false)
			hi = mid
		} else {
			dirs = append(dirs, true)
			lo = mid
		}
	}
	return dirs
}

// verifyLeaf recomputes the root from a leaf and its path.
func verifyLeaf(root common.Hash, leafCount uint64, leaf *LeafProof) bool {
	if leaf == nil || leaf.Index >= leafCount {
		return false
	}
	dirs := computeDirectionsForIndex(leaf.Index, leafCount)
	if len(dirs) != len(leaf.Path) {
		return false
	}
	current := computeLeaf(leaf.Key, leaf.Value)
	for i, sib := range leaf.Path {
		if dirs[len(dirs)-1-i] {
			current = computeNode(sib, current)
		} else {
			current = computeNode(current, sib)
		}
	}
	return current == root
}

// VerifyKey checks the proof for key against root. It returns the proven value and
// whether the key is present; an error means the proof does not establish either.
func (p *StateProof) VerifyKey(root common.Hash, key []byte) ([]byte, bool, error) {
	for _, kp := range p.Keys {
		if !bytes.Equal(kp.Key, key) {
			continue
		}
		if kp.Leaf != nil {
			if !bytes.Equal(kp.Leaf.Key, key) || !verifyLeaf(root, p.LeafCount, kp.Leaf) {
				return nil, false, fmt.Errorf("%w: inclusion of %x", ErrStateProofInvalid, key)
			}
			return kp.Leaf.Value, true, nil
		}
		if err := p.verifyAbsence(root, kp); err != nil {
			return nil, false, err
		}
		return nil, false, nil
	}
	return nil, false, fmt.Errorf("%w: %x", ErrStateProofKeyMissing, key)
}

func (p *StateProof) verifyAbsence(root common.Hash, kp KeyProof) error {
	fail := fmt.Errorf("%w: exclusion of %x", ErrStateProofInvalid, kp.Key)
	switch {
	case kp.Left == nil && kp.Right == nil:
		if p.LeafCount != 0 || root != (common.Hash{}) {
			return fail
		}
		return nil
	case kp.Left == nil:
		if kp.Right.Index != 0 || bytes.Compare(kp.Key, kp.Right.Key) >= 0 {
			return fail
		}
	case kp.Right == nil:
		if kp.Left.Index != p.LeafCount-1 || bytes.Compare(kp.Left.Key, kp.Key) >= 0 {
			return fail
		}
	default:
		if kp.Right.Index != kp.Left.Index+1 ||
			bytes.Compare(kp.Left.Key, kp.Key) >= 0 ||
			bytes.Compare(kp.Key, kp.Right.Key) >= 0 {
			return fail
		}
	}
	if kp.Left != nil && !verifyLeaf(root, p.LeafCount, kp.Left) {
		return fail
	}
	if kp.Right != nil && !verifyLeaf(root, p.LeafCount, kp.Right) {
		return fail
	}
	return nil
}
