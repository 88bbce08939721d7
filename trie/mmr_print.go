package trie

import (
	"fmt"

	"github.com/xlab/treeprint"
)

// ToTree renders every mountain of the MMR down to its leaves.
func (mmr *MerkleMountainRange) ToTree() (treeprint.Tree, error) {
	tree := treeprint.New()
	tree.SetValue(fmt.Sprintf("MMR size=%d leaves=%d", mmr.size, mmr.LeafCount()))
	for _, peak := range getPeaks(mmr.size) {
		if err := mmr.addSubtree(tree, peak, posHeightInTree(peak)); err != nil {
			return nil, err
		}
	}
	return tree, nil
}

func (mmr *MerkleMountainRange) addSubtree(parent treeprint.Tree, pos uint64, height uint32) error {
	h, err := mmr.node(pos)
	if err != nil {
		return err
	}
	label := fmt.Sprintf("[%d] %s", pos, h.String_short())
	if height == 0 {
		parent.AddNode(label)
		return nil
	}
	branch := parent.AddBranch(label)
	left := pos - (uint64(1) << height)
	if err := mmr.addSubtree(branch, left, height-1); err != nil {
		return err
	}
	return mmr.addSubtree(branch, pos-1, height-1)
}
