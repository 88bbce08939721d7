package trie

import (
	"fmt"
	"testing"

	"github.com/colorfulnotion/ismp/codec"
	"github.com/colorfulnotion/ismp/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entries(n int) []KeyValue {
	out := make([]KeyValue, n)
	for i := 0; i < n; i++ {
		// stored keys are even so odd keys fall between them
		out[i] = KeyValue{Key: []byte(fmt.Sprintf("key%03d", 2*i)), Value: []byte(fmt.Sprintf("value%d", i))}
	}
	return out
}

func TestStateTreeEmpty(t *testing.T) {
	tree := NewStateTree(nil)
	assert.Equal(t, common.Hash{}, tree.Root())

	proof := tree.Prove([][]byte{[]byte("anything")})
	value, found, err := proof.VerifyKey(tree.Root(), []byte("anything"))
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, value)
}

func TestStateTreeSingleLeaf(t *testing.T) {
	tree := NewStateTree([]KeyValue{{Key: []byte("a"), Value: []byte("1")}})
	assert.Equal(t, computeLeaf([]byte("a"), []byte("1")), tree.Root())
}

func TestStateTreeMembership(t *testing.T) {
	for n := 1; n <= 17; n++ {
		kvs := entries(n)
		tree := NewStateTree(kvs)
		root := tree.Root()
		for i, kv := range kvs {
			proof := tree.Prove([][]byte{kv.Key})
			value, found, err := proof.VerifyKey(root, kv.Key)
			require.NoError(t, err, "n=%d i=%d", n, i)
			require.True(t, found)
			assert.Equal(t, kv.Value, value)

			var decoded StateProof
			require.NoError(t, codec.Decode(codec.Encode(proof), &decoded))
			_, found, err = decoded.VerifyKey(root, kv.Key)
			require.NoError(t, err)
			require.True(t, found)
		}
	}
}

func TestStateTreeNonMembership(t *testing.T) {
	for n := 1; n <= 9; n++ {
		tree := NewStateTree(entries(n))
		root := tree.Root()
		var absent [][]byte
		for i := -1; i < 2*n; i += 2 {
			absent = append(absent, []byte(fmt.Sprintf("key%03d", i)))
		}
		absent = append(absent, []byte("a"), []byte("zzz"))
		proof := tree.Prove(absent)
		for _, key := range absent {
			_, found, err := proof.VerifyKey(root, key)
			require.NoError(t, err, "n=%d key=%s", n, key)
			assert.False(t, found)
		}
	}
}

func TestStateTreeRejectsForgery(t *testing.T) {
	tree := NewStateTree(entries(6))
	root := tree.Root()
	present := []byte("key004")

	// a present key cannot be proven absent with non adjacent neighbours
	forged := &StateProof{LeafCount: 6, Keys: []KeyProof{{
		Key:   present,
		Left:  tree.trace(1),
		Right: tree.trace(3),
	}}}
	_, _, err := forged.VerifyKey(root, present)
	assert.ErrorIs(t, err, ErrStateProofInvalid)

	// tampered value
	proof := tree.Prove([][]byte{present})
	proof.Keys[0].Leaf.Value = []byte("other")
	_, _, err = proof.VerifyKey(root, present)
	assert.ErrorIs(t, err, ErrStateProofInvalid)

	// wrong leaf count changes the path shape
	proof = tree.Prove([][]byte{present})
	proof.LeafCount = 7
	_, _, err = proof.VerifyKey(root, present)
	assert.ErrorIs(t, err, ErrStateProofInvalid)

	// flipped root
	proof = tree.Prove([][]byte{present})
	bad := root
	bad[31] ^= 1
	_, _, err = proof.VerifyKey(bad, present)
	assert.ErrorIs(t, err, ErrStateProofInvalid)

	_, _, err = proof.VerifyKey(root, []byte("key000"))
	assert.ErrorIs(t, err, ErrStateProofKeyMissing)
}

func TestStateTreeDuplicatesAndOrder(t *testing.T) {
	a := NewStateTree([]KeyValue{{Key: []byte("b"), Value: []byte("2")}, {Key: []byte("a"), Value: []byte("1")}})
	b := NewStateTree([]KeyValue{{Key: []byte("a"), Value: []byte("1")}, {Key: []byte("b"), Value: []byte("2")}, {Key: []byte("a"), Value: []byte("x")}})
	assert.Equal(t, a.Root(), b.Root())
	v, ok := b.Get([]byte("a"))
	require.True(t, ok)
	assert.Equal(t, []byte("1"), v)
	assert.Equal(t, 2, b.Len())
}
