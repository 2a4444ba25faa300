// Package commitment implements the commit-leaf construction of spec §3
// and the commit-reveal protocol of §4.5: a 64-byte leaf binding a
// hiding half (seed/miner/epoch/nonce) to a binding half (candidate
// answer/salt), and the reveal-time checks a light client must run
// against a committed Merkle root.
package commitment

import (
	"github.com/ssum-chain/core/consenserr"
	"github.com/ssum-chain/core/crypto"
	"github.com/ssum-chain/core/merkle"
)

// LeafSize is the fixed wire size of a CommitmentLeaf: left(32) || right(32).
const LeafSize = 64

// Leaf is a 64-byte commit-leaf: left (hiding) || right (binding).
type Leaf struct {
	Left  crypto.Hash
	Right crypto.Hash
}

// Encode serializes a Leaf to its canonical 64-byte wire form.
func (l Leaf) Encode() []byte {
	out := make([]byte, 0, LeafSize)
	out = append(out, l.Left.Bytes()...)
	out = append(out, l.Right.Bytes()...)
	return out
}

// Hash returns SHA-256 over the leaf's canonical encoding, used as the
// Merkle leaf value for the commitments tree.
func (l Leaf) Hash() crypto.Hash {
	return crypto.Sha256(l.Encode())
}

// BuildLeft computes the hiding half: SHA-256(seed || miner || commit_epoch || commit_nonce).
func BuildLeft(seed crypto.Hash, miner crypto.Address, commitEpoch, commitNonce uint64) crypto.Hash {
	buf := append([]byte{}, seed.Bytes()...)
	buf = append(buf, miner.Bytes()...)
	buf = crypto.PutUint64LE(buf, commitEpoch)
	buf = crypto.PutUint64LE(buf, commitNonce)
	return crypto.Sha256(buf)
}

// BuildRight computes the binding half: SHA-256(candidate_answer_serialised || salt).
func BuildRight(candidateAnswerSerialised []byte, salt []byte) crypto.Hash {
	return crypto.Sha256(candidateAnswerSerialised, salt)
}

// BuildLeaf assembles a full CommitmentLeaf from its hiding/binding inputs.
func BuildLeaf(seed crypto.Hash, miner crypto.Address, commitEpoch, commitNonce uint64, candidateAnswerSerialised, salt []byte) Leaf {
	return Leaf{
		Left:  BuildLeft(seed, miner, commitEpoch, commitNonce),
		Right: BuildRight(candidateAnswerSerialised, salt),
	}
}

// ProofCommitment computes the header's proof_commitment field:
// SHA-256(commitments_root || commit_epoch || miner_pubkey), per §4.5.
func ProofCommitment(commitmentsRoot crypto.Hash, commitEpoch uint64, miner crypto.Address) crypto.Hash {
	buf := append([]byte{}, commitmentsRoot.Bytes()...)
	buf = crypto.PutUint64LE(buf, commitEpoch)
	buf = append(buf, miner.Bytes()...)
	return crypto.Sha256(buf)
}

// Reveal is what a miner publishes after the commit phase: the winning
// leaf, its Merkle inclusion proof, and the raw witness materials used
// to recompute the binding half.
type Reveal struct {
	Leaf                      Leaf
	Proof                     merkle.Proof
	CandidateAnswerSerialised []byte
	Salt                      []byte
}

// VerifyReveal implements the rejection rules of §4.5 enforceable by a
// light client: the Merkle proof must verify against commitmentsRoot,
// and the recomputed binding hash must match Leaf.Right exactly.
func VerifyReveal(r Reveal, commitmentsRoot crypto.Hash) error {
	if !merkle.Verify(r.Leaf.Hash(), r.Proof, commitmentsRoot) {
		return consenserr.New(consenserr.InvalidReveal, "commitment merkle proof does not verify against commitments_root")
	}
	recomputed := BuildRight(r.CandidateAnswerSerialised, r.Salt)
	if recomputed != r.Leaf.Right {
		return consenserr.New(consenserr.InvalidReveal, "reveal witness does not bind to committed leaf.right")
	}
	return nil
}

// VerifyProofCommitment checks a header's proof_commitment against the
// committed root/epoch/miner triple. A block failing this check is
// never accepted (§4.5: "never accepted").
func VerifyProofCommitment(commitmentsRoot crypto.Hash, commitEpoch uint64, miner crypto.Address, claimed crypto.Hash) bool {
	return ProofCommitment(commitmentsRoot, commitEpoch, miner) == claimed
}
