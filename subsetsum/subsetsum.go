// Package subsetsum implements the proof-of-work core of spec §4.4: a
// deterministic, commit-bound Subset-Sum problem generator and an exact
// verifier for claimed solutions. Every accepted witness is exactly
// checked — there is no heuristic or probabilistic acceptance path,
// per spec.md's Non-goals.
package subsetsum

import (
	"math/bits"

	"github.com/holiman/uint256"

	"github.com/ssum-chain/core/consenserr"
	"github.com/ssum-chain/core/crypto"
	"github.com/ssum-chain/core/internal/log"
	"github.com/ssum-chain/core/params"
)

var logger = log.NewModuleLogger("subsetsum")

// elementRange bounds generated multiset elements to keep sums (and thus
// DP table sizes) within VerifyMemoryCap for every supported tier.
const elementRange = 1 << 16

// Problem is a committed Subset-Sum instance: a multiset of positive
// integers, a target sum, and a tier controlling the multiset's size.
type Problem struct {
	Multiset []uint64
	Target   uint64
	Tier     uint8
}

// prfStream is a counter-mode SHA-256 expansion used to deterministically
// derive problem instances from a 32-byte seed. It is the "fixed PRF" of
// spec §4.4; nothing about it depends on the miner's later choices beyond
// the already-committed seed inputs.
type prfStream struct {
	seed    crypto.Hash
	counter uint64
	buf     []byte
}

func newPRFStream(seed crypto.Hash) *prfStream {
	return &prfStream{seed: seed}
}

func (s *prfStream) fill() {
	ctr := crypto.PutUint64LE(nil, s.counter)
	s.counter++
	h := crypto.Sha256(s.seed.Bytes(), ctr)
	s.buf = append(s.buf, h.Bytes()...)
}

func (s *prfStream) nextBytes(n int) []byte {
	for len(s.buf) < n {
		s.fill()
	}
	out := s.buf[:n]
	s.buf = s.buf[n:]
	return out
}

func (s *prfStream) nextUint32() uint32 {
	b := s.nextBytes(4)
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func (s *prfStream) nextUint64() uint64 {
	b := s.nextBytes(8)
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}

// DeriveSeed computes the PRF seed bound to (parent_header_hash,
// commit_epoch, miner_pubkey, commit_nonce): SHA-256 of their
// little-endian concatenation. This is the same "seed" referenced by
// package commitment's hiding-half construction (§3's CommitmentLeaf),
// so a miner builds its commit leaf and its problem instance from
// exactly the same bound value.
func DeriveSeed(parentHeaderHash crypto.Hash, commitEpoch uint64, miner crypto.Address, commitNonce uint64) crypto.Hash {
	buf := append([]byte{}, parentHeaderHash.Bytes()...)
	buf = crypto.PutUint64LE(buf, commitEpoch)
	buf = append(buf, miner.Bytes()...)
	buf = crypto.PutUint64LE(buf, commitNonce)
	return crypto.Sha256(buf)
}

// DeriveProblem computes the problem instance bound to
// (parent_header_hash, commit_epoch, miner_pubkey, commit_nonce), per
// spec §4.4's anti-grinding rule: the instance is not chosen by the
// miner. A different commit_nonce yields an entirely different
// instance, and the commitment Merkle tree (package commitment) makes
// every attempt within an epoch costly to discard.
//
// The target is derived as roughly half the multiset's total (plus
// PRF-derived jitter), which is the standard construction for
// subset-sum instances with a high but not guaranteed density of
// solutions: this keeps the search genuinely hard while not requiring
// a planted witness that the generator (and therefore anyone who knows
// the seed) could reveal for free.
func DeriveProblem(parentHeaderHash crypto.Hash, commitEpoch uint64, miner crypto.Address, commitNonce uint64, tier uint8) (Problem, error) {
	min, max, ok := params.TierWindow(tier)
	if !ok {
		return Problem{}, consenserr.New(consenserr.InvalidHeader, "tier out of range 1..5")
	}

	seed := DeriveSeed(parentHeaderHash, commitEpoch, miner, commitNonce)
	stream := newPRFStream(seed)

	sizeRange := uint32(max - min + 1)
	n := min + int(stream.nextUint32()%sizeRange)

	multiset := make([]uint64, n)
	var total uint64
	for i := range multiset {
		v := 1 + stream.nextUint64()%elementRange
		multiset[i] = v
		total += v
	}

	// Jitter the target around the half-sum by an offset in
	// [-(total/8 + 1), total/8], i.e. about +/-12.5% of the multiset
	// total, deterministically.
	half := total / 2
	jitterRange := total/8 + 1
	jitter := stream.nextUint64() % (2 * jitterRange)
	var target uint64
	if jitter >= jitterRange {
		target = half + (jitter - jitterRange)
	} else if half > jitterRange-jitter {
		target = half - (jitterRange - jitter)
	} else {
		target = half
	}

	return Problem{Multiset: multiset, Target: target, Tier: tier}, nil
}

// ValidateWitness is the fast path of §4.4 (linear in |M| + |S|): sum
// the claimed subset and check multiset-multiplicity containment.
// This alone is a complete, exact validity check for a *given* witness.
func ValidateWitness(p Problem, subset []uint64) error {
	if len(subset) == 0 {
		return consenserr.New(consenserr.InvalidWork, "claimed subset is empty")
	}

	available := make(map[uint64]int, len(p.Multiset))
	for _, v := range p.Multiset {
		available[v]++
	}

	var sum uint64
	for _, v := range subset {
		if available[v] == 0 {
			return consenserr.New(consenserr.InvalidWork, "claimed element exceeds multiset multiplicity")
		}
		available[v]--
		sum += v
	}

	if sum != p.Target {
		return consenserr.New(consenserr.InvalidWork, "claimed subset does not sum to target")
	}

	min, max, ok := params.TierWindow(p.Tier)
	if !ok || len(p.Multiset) < min || len(p.Multiset) > max {
		return consenserr.New(consenserr.InvalidWork, "multiset size outside tier window")
	}

	return nil
}

// DPConfirmAchievable re-derives, via the standard O(|M|*T) subset-sum
// dynamic program with O(T) memory, whether target is achievable from
// multiset at all. This is the adversarial-input fallback of §4.4: it
// does not trust that a fast-path pass over a specific claimed subset
// was performed honestly by a remote caller re-deriving verification
// from wire bytes, and independently reconstructs exactness. Refuses to
// allocate more than params.VerifyMemoryCap bytes.
func DPConfirmAchievable(multiset []uint64, target uint64) (bool, error) {
	words := target/64 + 1
	bytesNeeded := words * 8
	if bytesNeeded > params.VerifyMemoryCap {
		return false, consenserr.New(consenserr.InvalidWork, "subset-sum DP table exceeds verify memory cap")
	}

	// dp is a bitset over achievable sums in [0, target].
	dp := make([]uint64, words)
	dp[0] = 1 // sum 0 achievable with the empty subset

	setBit := func(i uint64) { dp[i/64] |= 1 << (i % 64) }
	getBit := func(i uint64) bool { return dp[i/64]&(1<<(i%64)) != 0 }

	for _, v := range multiset {
		if v > target {
			continue
		}
		// Iterate sums downward so each element is used at most once
		// per multiset occurrence (0/1 knapsack-style subset-sum DP).
		for s := target; s >= v; s-- {
			if getBit(s - v) {
				setBit(s)
			}
			if s == v {
				break
			}
		}
	}

	return getBit(target), nil
}

// EncodeSubset serializes a claimed witness subset as a flat
// concatenation of little-endian uint64 elements — the
// candidate_answer_serialised referenced by the commitment module's
// binding hash (§3's CommitmentLeaf.right).
func EncodeSubset(subset []uint64) []byte {
	buf := make([]byte, 0, len(subset)*8)
	for _, v := range subset {
		buf = crypto.PutUint64LE(buf, v)
	}
	return buf
}

// DecodeSubset parses the wire form produced by EncodeSubset.
func DecodeSubset(data []byte) ([]uint64, error) {
	if len(data)%8 != 0 {
		return nil, consenserr.New(consenserr.InvalidWork, "candidate answer is not a whole number of uint64 elements")
	}
	out := make([]uint64, len(data)/8)
	for i := range out {
		var v uint64
		b := data[i*8 : i*8+8]
		for j := 7; j >= 0; j-- {
			v = v<<8 | uint64(b[j])
		}
		out[i] = v
	}
	return out, nil
}

// TierWeight assigns an integer weight per problem tier, used by
// WorkScore. Larger tiers (bigger multisets) weigh more heavily.
func TierWeight(tier uint8) uint64 {
	return uint64(tier)
}

// WorkScore computes W = tier_weight * |S| * floor(log2(T)), rounded
// down, per §4.4. Used for difficulty retargeting and reward accounting.
func WorkScore(tier uint8, subsetSize int, target uint64) uint64 {
	if target == 0 || subsetSize <= 0 {
		return 0
	}
	log2T := uint64(bits.Len64(target) - 1) // floor(log2(target))
	return TierWeight(tier) * uint64(subsetSize) * log2T
}

// WorkWeight computes 2^difficulty_target as a u128-safe value (stored
// in a uint256, only the low 128 bits are ever significant), used for
// cumulative-work fork-choice comparisons per §4.4/§4.6.
func WorkWeight(difficultyTarget uint64) *uint256.Int {
	w := uint256.NewInt(1)
	if difficultyTarget >= 256 {
		// Saturate rather than wrap; a difficulty this absurd should
		// never be produced by any legitimate retarget algorithm.
		logger.Error("difficulty_target out of representable range", "difficulty_target", difficultyTarget)
		return uint256.NewInt(0).Not(uint256.NewInt(0))
	}
	return w.Lsh(w, uint(difficultyTarget))
}
