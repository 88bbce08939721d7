package trie

import (
	"github.com/colorfulnotion/ismp/common"
	"golang.org/x/crypto/sha3"
)

var (
	leafPrefix = []byte{0x00}
	nodePrefix = []byte{0x01}
)

// computeHash is keccak256 over the concatenation of data.
func computeHash(data ...[]byte) common.Hash {
	h := sha3.NewLegacyKeccak256()
	for _, d := range data {
		h.Write(d)
	}
	var out common.Hash
	h.Sum(out[:0])
	return out
}

// merge combines two MMR nodes.
func merge(left, right common.Hash) common.Hash {
	return computeHash(left[:], right[:])
}

// computeNode combines two state tree nodes. The prefix separates inner nodes from leaves.
func computeNode(left, right common.Hash) common.Hash {
	return computeHash(nodePrefix, left[:], right[:])
}

// computeLeaf hashes a state tree entry. The value enters through its own hash so
// proofs of long values stay short.
func computeLeaf(key, value []byte) common.Hash {
	valueHash := computeHash(value)
	var lenPrefix [4]byte
	lenPrefix[0] = byte(len(key))
	lenPrefix[1] = byte(len(key) >> 8)
	lenPrefix[2] = byte(len(key) >> 16)
	lenPrefix[3] = byte(len(key) >> 24)
	return computeHash(leafPrefix, lenPrefix[:], key, valueHash[:])
}
