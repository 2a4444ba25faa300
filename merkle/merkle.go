// Package merkle implements the binary Merkle tree engine of spec §4.2:
// build a tree over fixed-size leaves with Bitcoin-style odd-leaf
// duplication, and generate/verify bottom-up inclusion proofs carrying a
// left/right flag per level.
package merkle

import (
	"github.com/ssum-chain/core/crypto"
)

// Proof is an inclusion proof: one sibling hash per tree level, ordered
// bottom-up, plus whether the sibling sits on the right of the path at
// that level.
type Proof struct {
	Siblings  []crypto.Hash
	RightFlag []bool // RightFlag[i] == true means Siblings[i] is the right child
}

// Tree is a binary Merkle tree built over an ordered leaf list. Leaves
// are kept so proofs can be regenerated for any index.
type Tree struct {
	levels [][]crypto.Hash // levels[0] = leaves, levels[len-1] = [root]
}

// Build constructs a Merkle tree from pre-hashed leaves. An odd leaf
// count at any level duplicates the last leaf, matching Bitcoin's rule
// (spec §4.2 "Merkle rule").
func Build(leaves []crypto.Hash) *Tree {
	if len(leaves) == 0 {
		return &Tree{levels: [][]crypto.Hash{{crypto.Hash{}}}}
	}
	level := make([]crypto.Hash, len(leaves))
	copy(level, leaves)

	levels := [][]crypto.Hash{level}
	for len(level) > 1 {
		next := make([]crypto.Hash, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			left := level[i]
			right := level[i]
			if i+1 < len(level) {
				right = level[i+1]
			}
			next = append(next, crypto.Sha256(left.Bytes(), right.Bytes()))
		}
		levels = append(levels, next)
		level = next
	}
	return &Tree{levels: levels}
}

// Root returns the tree's root hash.
func (t *Tree) Root() crypto.Hash {
	top := t.levels[len(t.levels)-1]
	return top[0]
}

// Prove builds an inclusion proof for the leaf at index. Returns false
// if index is out of range.
func (t *Tree) Prove(index int) (Proof, bool) {
	if index < 0 || index >= len(t.levels[0]) {
		return Proof{}, false
	}
	var proof Proof
	idx := index
	for lvl := 0; lvl < len(t.levels)-1; lvl++ {
		level := t.levels[lvl]
		isRightChild := idx%2 == 1
		var siblingIdx int
		var siblingIsRight bool
		if isRightChild {
			siblingIdx = idx - 1
			siblingIsRight = false
		} else {
			siblingIdx = idx + 1
			siblingIsRight = true
			if siblingIdx >= len(level) {
				siblingIdx = idx // duplicated-last-leaf case
			}
		}
		proof.Siblings = append(proof.Siblings, level[siblingIdx])
		proof.RightFlag = append(proof.RightFlag, siblingIsRight)
		idx /= 2
	}
	return proof, true
}

// Verify checks that leaf, combined with proof, reconstructs root.
func Verify(leaf crypto.Hash, proof Proof, root crypto.Hash) bool {
	cur := leaf
	for i, sibling := range proof.Siblings {
		if proof.RightFlag[i] {
			cur = crypto.Sha256(cur.Bytes(), sibling.Bytes())
		} else {
			cur = crypto.Sha256(sibling.Bytes(), cur.Bytes())
		}
	}
	return cur == root
}

// Root is a convenience one-shot helper for callers that only need the
// root hash, not a reusable proof-capable Tree.
func Root(leaves []crypto.Hash) crypto.Hash {
	return Build(leaves).Root()
}
