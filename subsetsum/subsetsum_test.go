package subsetsum

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssum-chain/core/crypto"
)

func TestDeriveProblem_DeterministicAndTierBound(t *testing.T) {
	parent := crypto.Sha256([]byte("parent"))
	miner := crypto.Address{1, 2, 3}

	p1, err := DeriveProblem(parent, 7, miner, 42, 2)
	require.NoError(t, err)
	p2, err := DeriveProblem(parent, 7, miner, 42, 2)
	require.NoError(t, err)
	assert.Equal(t, p1, p2, "identical inputs must derive byte-identical problems")

	assert.GreaterOrEqual(t, len(p1.Multiset), 12)
	assert.LessOrEqual(t, len(p1.Multiset), 16)

	p3, err := DeriveProblem(parent, 7, miner, 43, 2)
	require.NoError(t, err)
	assert.NotEqual(t, p1, p3, "different commit_nonce must yield a different instance")
}

func TestDeriveProblem_RejectsBadTier(t *testing.T) {
	parent := crypto.Sha256([]byte("parent"))
	_, err := DeriveProblem(parent, 0, crypto.Address{}, 0, 6)
	assert.Error(t, err)
}

func TestValidateWitness_ExactMultisetContainment(t *testing.T) {
	p := Problem{Multiset: []uint64{2, 3, 5, 5, 7}, Target: 10, Tier: 1}
	// Tier 1 window is 8-12; override manually to exercise witness logic only.
	p.Tier = 0 // force tier-window check to fail distinctly below

	err := ValidateWitness(p, []uint64{2, 3, 5})
	require.Error(t, err) // tier window check fails (tier 0 invalid)

	p.Multiset = make([]uint64, 8)
	copy(p.Multiset, []uint64{2, 3, 5, 5, 7, 1, 1, 1})
	p.Tier = 1

	require.NoError(t, ValidateWitness(p, []uint64{2, 3, 5}))
}

func TestValidateWitness_RejectsOverMultiplicity(t *testing.T) {
	p := Problem{Multiset: []uint64{2, 3, 5, 7, 1, 1, 1, 1}, Target: 4, Tier: 1}
	err := ValidateWitness(p, []uint64{2, 2})
	assert.Error(t, err)
}

func TestValidateWitness_RejectsWrongSum(t *testing.T) {
	p := Problem{Multiset: []uint64{2, 3, 5, 7, 1, 1, 1, 1}, Target: 99, Tier: 1}
	err := ValidateWitness(p, []uint64{2, 3})
	assert.Error(t, err)
}

func TestDPConfirmAchievable(t *testing.T) {
	multiset := []uint64{2, 3, 5, 7}
	ok, err := DPConfirmAchievable(multiset, 10)
	require.NoError(t, err)
	assert.True(t, ok) // 3+7 or 2+3+5

	ok, err = DPConfirmAchievable(multiset, 100)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDPConfirmAchievable_MemoryCapEnforced(t *testing.T) {
	_, err := DPConfirmAchievable([]uint64{1}, ^uint64(0))
	assert.Error(t, err)
}

func TestWorkScore_Monotone(t *testing.T) {
	low := WorkScore(1, 3, 16)
	high := WorkScore(5, 3, 16)
	assert.Greater(t, high, low)
}

func TestWorkWeight_PowersOfTwo(t *testing.T) {
	w0 := WorkWeight(0)
	w1 := WorkWeight(1)
	assert.Equal(t, uint64(1), w0.Uint64())
	assert.Equal(t, uint64(2), w1.Uint64())
}

func TestEncodeDecodeSubset_RoundTrip(t *testing.T) {
	subset := []uint64{2, 3, 5, 1 << 40}
	decoded, err := DecodeSubset(EncodeSubset(subset))
	require.NoError(t, err)
	assert.Equal(t, subset, decoded)
}

func TestDecodeSubset_RejectsPartialElement(t *testing.T) {
	_, err := DecodeSubset([]byte{1, 2, 3})
	assert.Error(t, err)
}
