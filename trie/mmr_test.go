package trie

import (
	"fmt"
	"testing"

	"github.com/colorfulnotion/ismp/codec"
	"github.com/colorfulnotion/ismp/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func leafHash(i int) common.Hash {
	return computeHash([]byte(fmt.Sprintf("leaf%d", i)))
}

func buildMMR(t *testing.T, n int) (*MerkleMountainRange, []uint64) {
	t.Helper()
	mmr := NewMMR(0, MemNodeStore{})
	positions := make([]uint64, n)
	for i := 0; i < n; i++ {
		pos, err := mmr.Append(leafHash(i))
		require.NoError(t, err)
		positions[i] = pos
	}
	return mmr, positions
}

func TestMMRPositions(t *testing.T) {
	_, positions := buildMMR(t, 8)
	assert.Equal(t, []uint64{0, 1, 3, 4, 7, 8, 10, 11}, positions)
	for i, pos := range positions {
		assert.Equal(t, pos, LeafIndexToPos(uint64(i)))
		assert.True(t, IsLeafPos(pos))
	}
	assert.False(t, IsLeafPos(2))
	assert.False(t, IsLeafPos(6))
	assert.Equal(t, uint64(15), LeafCountToMMRSize(8))
	assert.Equal(t, uint64(8), MMRSizeToLeafCount(15))
	assert.Equal(t, uint64(10), LeafCountToMMRSize(6))
}

func TestMMRPeaks(t *testing.T) {
	cases := map[uint64][]uint64{
		0:  nil,
		1:  {0},
		3:  {2},
		4:  {2, 3},
		7:  {6},
		8:  {6, 7},
		10: {6, 9},
		11: {6, 9, 10},
		19: {14, 17, 18},
	}
	for size, expected := range cases {
		assert.Equal(t, expected, getPeaks(size), "size %d", size)
	}
}

func TestMMRRoot(t *testing.T) {
	mmr, _ := buildMMR(t, 0)
	root, err := mmr.Root()
	require.NoError(t, err)
	assert.Equal(t, common.Hash{}, root)

	mmr, _ = buildMMR(t, 1)
	root, err = mmr.Root()
	require.NoError(t, err)
	assert.Equal(t, leafHash(0), root)

	mmr, _ = buildMMR(t, 3)
	root, err = mmr.Root()
	require.NoError(t, err)
	expected := merge(merge(leafHash(0), leafHash(1)), leafHash(2))
	assert.Equal(t, expected, root)

	mmr, _ = buildMMR(t, 7)
	root, err = mmr.Root()
	require.NoError(t, err)
	p0 := merge(merge(leafHash(0), leafHash(1)), merge(leafHash(2), leafHash(3)))
	p1 := merge(leafHash(4), leafHash(5))
	p2 := leafHash(6)
	assert.Equal(t, merge(p0, merge(p1, p2)), root)
	assert.Equal(t, uint64(11), mmr.Size())
	assert.Equal(t, uint64(7), mmr.LeafCount())
}

// Every subset of leaves of every MMR up to 11 leaves proves against the root.
func TestMMRProofAllSubsets(t *testing.T) {
	for n := 1; n <= 11; n++ {
		mmr, positions := buildMMR(t, n)
		root, err := mmr.Root()
		require.NoError(t, err)
		for mask := 1; mask < 1<<n; mask++ {
			var picked []uint64
			var leaves []common.Hash
			for i := 0; i < n; i++ {
				if mask&(1<<i) != 0 {
					picked = append(picked, positions[i])
					leaves = append(leaves, leafHash(i))
				}
			}
			proof, err := mmr.GenerateProof(picked)
			require.NoError(t, err)
			require.True(t, VerifyMMRProof(root, proof, leaves), "n=%d mask=%b", n, mask)
		}
	}
}

func TestMMRProofRejectsTampering(t *testing.T) {
	mmr, positions := buildMMR(t, 13)
	root, err := mmr.Root()
	require.NoError(t, err)
	picked := []uint64{positions[2], positions[9], positions[12]}
	leaves := []common.Hash{leafHash(2), leafHash(9), leafHash(12)}
	proof, err := mmr.GenerateProof(picked)
	require.NoError(t, err)
	require.True(t, VerifyMMRProof(root, proof, leaves))

	for i := range leaves {
		for bit := 0; bit < 256; bit += 37 {
			flipped := append([]common.Hash(nil), leaves...)
			flipped[i][bit/8] ^= 1 << (bit % 8)
			assert.False(t, VerifyMMRProof(root, proof, flipped))
		}
	}
	for bit := 0; bit < 256; bit++ {
		badRoot := root
		badRoot[bit/8] ^= 1 << (bit % 8)
		assert.False(t, VerifyMMRProof(badRoot, proof, leaves))
	}
	for i := range proof.Items {
		bad := *proof
		bad.Items = append([]common.Hash(nil), proof.Items...)
		bad.Items[i][0] ^= 0x80
		assert.False(t, VerifyMMRProof(root, &bad, leaves))
	}

	short := *proof
	short.Items = proof.Items[:len(proof.Items)-1]
	assert.False(t, VerifyMMRProof(root, &short, leaves))
	long := *proof
	long.Items = append(append([]common.Hash(nil), proof.Items...), common.Hash{})
	assert.False(t, VerifyMMRProof(root, &long, leaves))

	// leaves must line up with their positions
	swapped := []common.Hash{leaves[1], leaves[0], leaves[2]}
	assert.False(t, VerifyMMRProof(root, proof, swapped))
}

func TestMMRProofInvalidPositions(t *testing.T) {
	mmr, _ := buildMMR(t, 4)
	_, err := mmr.GenerateProof([]uint64{2})
	assert.ErrorIs(t, err, ErrMMRInvalidLeaf)
	_, err = mmr.GenerateProof([]uint64{7})
	assert.ErrorIs(t, err, ErrMMRInvalidLeaf)

	proof := &MMRProof{LeafPositions: []uint64{3, 1}, LeafCount: 4}
	_, err = CalculateMMRRoot(proof, []common.Hash{{}, {}})
	assert.ErrorIs(t, err, ErrMMRUnsortedLeaves)
}

func TestMMRProofEncoding(t *testing.T) {
	mmr, positions := buildMMR(t, 6)
	proof, err := mmr.GenerateProof([]uint64{positions[5], positions[1]})
	require.NoError(t, err)
	assert.Equal(t, []uint64{positions[1], positions[5]}, proof.LeafPositions)

	var decoded MMRProof
	require.NoError(t, codec.Decode(codec.Encode(proof), &decoded))
	assert.Equal(t, *proof, decoded)
}

func TestMMRReopen(t *testing.T) {
	store := MemNodeStore{}
	mmr := NewMMR(0, store)
	for i := 0; i < 5; i++ {
		_, err := mmr.Append(leafHash(i))
		require.NoError(t, err)
	}
	reopened := NewMMR(mmr.Size(), store)
	_, err := reopened.Append(leafHash(5))
	require.NoError(t, err)

	fresh, _ := buildMMR(t, 6)
	r1, err := reopened.Root()
	require.NoError(t, err)
	r2, err := fresh.Root()
	require.NoError(t, err)
	assert.Equal(t, r2, r1)
}

func TestMMRToTree(t *testing.T) {
	mmr, _ := buildMMR(t, 3)
	tree, err := mmr.ToTree()
	require.NoError(t, err)
	out := tree.String()
	assert.Contains(t, out, "leaves=3")
	assert.Contains(t, out, "[2] ")
	assert.Contains(t, out, "[3] ")
}
