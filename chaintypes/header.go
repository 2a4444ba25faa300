// Package chaintypes defines the canonical, fixed-shape consensus
// records of spec §3: BlockHeader, Block, Transaction, Account, Escrow,
// ChainTip, and ValidatorStatus. Every encoding here is little-endian
// and order-fixed, per §6 — there is no field optionality beyond what
// spec.md marks with `?`, and hashes/keys are raw bytes internally (hex
// is purely a display concern, per §9's design note on source "mixed
// hex-string/bytes representation").
package chaintypes

import (
	"github.com/holiman/uint256"

	"github.com/ssum-chain/core/crypto"
)

// ExtraSize is the reserved trailing field of BlockHeader.
const ExtraSize = 32

// Header is the canonical, fixed-size block header of spec §3.
// cumulative_work is a u128 quantity; represented here with uint256 per
// DESIGN.md (only the low 128 bits are ever significant).
type Header struct {
	Version           uint32
	ParentHash        crypto.Hash
	Height            uint64
	Timestamp         int64
	TxRoot            crypto.Hash
	StateRoot         crypto.Hash
	CommitmentsRoot   crypto.Hash
	DifficultyTarget  uint64
	CumulativeWork    *uint256.Int
	MinerPubkey       crypto.Address
	CommitNonce       uint64
	ProblemType       uint16
	Tier              uint8
	CommitEpoch       uint64
	ProofCommitment   crypto.Hash
	Extra             [ExtraSize]byte
}

// Encode produces the canonical little-endian encoding used both for
// header_hash and for the wire, per §6 "Header encoding (for hashing and
// wire)": concatenation in field order, little-endian for every integer,
// raw 32-byte hashes/keys, i64 timestamp as two's-complement
// little-endian.
func (h *Header) Encode() []byte {
	buf := make([]byte, 0, 4+32+8+8+32+32+32+8+16+32+8+2+1+8+32+ExtraSize)
	buf = crypto.PutUint32LE(buf, h.Version)
	buf = append(buf, h.ParentHash.Bytes()...)
	buf = crypto.PutUint64LE(buf, h.Height)
	buf = crypto.PutInt64LE(buf, h.Timestamp)
	buf = append(buf, h.TxRoot.Bytes()...)
	buf = append(buf, h.StateRoot.Bytes()...)
	buf = append(buf, h.CommitmentsRoot.Bytes()...)
	buf = crypto.PutUint64LE(buf, h.DifficultyTarget)

	cw := h.CumulativeWork
	if cw == nil {
		cw = uint256.NewInt(0)
	}
	beCW := cw.Bytes32()
	// cumulative_work is specified as u128: take the low 16 bytes of the
	// little-endian representation.
	leCW := reverse32(beCW)
	buf = append(buf, leCW[:16]...)

	buf = append(buf, h.MinerPubkey.Bytes()...)
	buf = crypto.PutUint64LE(buf, h.CommitNonce)
	buf = crypto.PutUint16LE(buf, h.ProblemType)
	buf = append(buf, h.Tier)
	buf = crypto.PutUint64LE(buf, h.CommitEpoch)
	buf = append(buf, h.ProofCommitment.Bytes()...)
	buf = append(buf, h.Extra[:]...)
	return buf
}

// reverse32 flips a uint256's big-endian byte array (as produced by
// Bytes32) into little-endian order.
func reverse32(b [32]byte) [32]byte {
	var out [32]byte
	for i := range b {
		out[i] = b[31-i]
	}
	return out
}

// Hash computes header_hash = SHA-256(canonical_encoding(header)).
func (h *Header) Hash() crypto.Hash {
	return crypto.Sha256(h.Encode())
}

// Clone returns a deep copy safe for independent mutation (e.g. by a
// builder finalising a draft header without aliasing CumulativeWork).
func (h *Header) Clone() *Header {
	cp := *h
	if h.CumulativeWork != nil {
		cp.CumulativeWork = new(uint256.Int).Set(h.CumulativeWork)
	}
	return &cp
}
