package chaintypes

import (
	"github.com/ssum-chain/core/crypto"
	"github.com/ssum-chain/core/subsetsum"
)

// ProblemMetadata records the Subset-Sum instance a block's mining
// attempt targeted, so a receiving node can re-verify without
// re-deriving the PRF stream from scratch if it already trusts the
// parent/epoch/miner/nonce binding (it re-derives anyway during full
// validation — see package validation — this is a convenience cache).
type ProblemMetadata struct {
	Problem subsetsum.Problem
}

// Block is (header, transactions[], problem_metadata, offchain_cid) per
// spec §3. offchain_cid is required: it addresses the externally stored
// proof bundle (problem instance, witness, auxiliary data).
type Block struct {
	Header      *Header
	Txs         []*Transaction
	ProblemMeta ProblemMetadata
	OffchainCID string
}

// EncodeBody produces the canonical block body of §6:
// u32 tx_count || [transactions canonically ordered], each transaction
// encoded as message || signature(64).
func (b *Block) EncodeBody() []byte {
	buf := crypto.PutUint32LE(nil, uint32(len(b.Txs)))
	for _, tx := range b.Txs {
		buf = append(buf, tx.Encode()...)
	}
	return buf
}

// Hash returns the block's header_hash, which identifies the block.
func (b *Block) Hash() crypto.Hash {
	return b.Header.Hash()
}

// TxHashes returns the tx_hash of every transaction in canonical order,
// the leaf set for the tx_root Merkle tree.
func (b *Block) TxHashes() []crypto.Hash {
	out := make([]crypto.Hash, len(b.Txs))
	for i, tx := range b.Txs {
		out[i] = tx.Hash()
	}
	return out
}

// IsGenesis reports whether this block is the chain's genesis block.
func (b *Block) IsGenesis() bool {
	return b.Header.Height == 0 && b.Header.ParentHash == crypto.ZeroHash
}
