package chaintypes

import "github.com/holiman/uint256"

// ChainTip is (block, height, total_weight) per spec §3, where
// total_weight == cumulative_work.
type ChainTip struct {
	Block       *Block
	Height      uint64
	TotalWeight *uint256.Int
}

// Less implements the fork-choice ordering of §4.6: greatest
// cumulative_work wins; ties break on lexicographically smaller
// header_hash; remaining ties break on earliest timestamp. Less
// reports whether t "loses" to other (i.e. other should replace t as
// canonical).
func (t *ChainTip) Less(other *ChainTip) bool {
	cmp := t.TotalWeight.Cmp(other.TotalWeight)
	if cmp != 0 {
		return cmp < 0
	}
	th, oh := t.Block.Hash(), other.Block.Hash()
	if th != oh {
		// Smaller header_hash wins: other beats t iff other's hash is smaller.
		return oh.Less(th)
	}
	return other.Block.Header.Timestamp < t.Block.Header.Timestamp
}
