package engine

import (
	"context"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssum-chain/core/builder"
	"github.com/ssum-chain/core/chaintypes"
	"github.com/ssum-chain/core/commitment"
	"github.com/ssum-chain/core/crypto"
	"github.com/ssum-chain/core/forkchoice"
	"github.com/ssum-chain/core/mempool"
	"github.com/ssum-chain/core/merkle"
	"github.com/ssum-chain/core/slashing"
	"github.com/ssum-chain/core/storage"
	"github.com/ssum-chain/core/subsetsum"
	"github.com/ssum-chain/core/validation"
)

func testGenesis() *chaintypes.Block {
	h := &chaintypes.Header{
		Version:          1,
		ParentHash:       crypto.ZeroHash,
		Height:           0,
		Timestamp:        1_700_000_000,
		TxRoot:           merkle.Root(nil),
		StateRoot:        merkle.Root(nil),
		CommitmentsRoot:  merkle.Root(nil),
		DifficultyTarget: 0,
		CumulativeWork:   uint256.NewInt(0),
	}
	return &chaintypes.Block{Header: h, OffchainCID: "genesis-cid"}
}

func newTestEngine(t *testing.T) (*ConsensusEngine, crypto.PrivateKey, crypto.Address) {
	t.Helper()
	genesis := testGenesis()
	priv, addr, err := crypto.GenerateKey()
	require.NoError(t, err)

	state := storage.NewInMemory()
	v := validation.New(validation.AuthorityMode, []crypto.Address{addr})
	v.Now = func() time.Time { return time.Unix(genesis.Header.Timestamp+100000, 0) }

	fc, err := forkchoice.New(v, state, genesis, nil)
	require.NoError(t, err)

	e, err := New(Config{
		State:      state,
		Mempool:    mempool.NewInMemory(),
		Validator:  v,
		ForkChoice: fc,
		Slashing:   slashing.New([]crypto.Address{addr}),
		BlockTime:  20 * time.Millisecond,
		Now:        func() time.Time { return time.Unix(genesis.Header.Timestamp+100000, 0) },
	})
	require.NoError(t, err)
	return e, priv, addr
}

func TestProduceBlock_ExtendsCanonical(t *testing.T) {
	e, priv, _ := newTestEngine(t)

	block, err := e.ProduceBlock(context.Background(), priv, builder.MiningResult{DifficultyTarget: 1, OffchainCID: "cid"})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), block.Header.Height)
	assert.Equal(t, block.Hash(), e.CanonicalTip().Block.Hash())
}

func TestProduceBlock_CancelledContextDiscardsCandidate(t *testing.T) {
	e, priv, _ := newTestEngine(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.ProduceBlock(ctx, priv, builder.MiningResult{DifficultyTarget: 1, OffchainCID: "cid"})
	assert.Error(t, err)
	assert.Equal(t, uint64(0), e.CanonicalTip().Height, "cancelled production must not touch canonical state")
}

func TestAddBlock_RejectionRaisesSlashingOffence(t *testing.T) {
	e, _, addr := newTestEngine(t)

	genesisHash := e.CanonicalTip().Block.Hash()
	bad := &chaintypes.Block{Header: &chaintypes.Header{
		Version:     1,
		ParentHash:  genesisHash,
		Height:      1,
		Timestamp:   e.CanonicalTip().Block.Header.Timestamp, // not strictly greater: fails step 3
		MinerPubkey: addr,
	}}
	// Parent linkage is correct so this is not treated as an orphan; the
	// timestamp ordering check fails instead, forcing InvalidHeader.
	err := e.AddBlock(bad, nil)
	require.Error(t, err)

	status, ok := e.slasher.Status(addr)
	require.True(t, ok)
	assert.Equal(t, uint64(1), status.SlashCount)
}

func TestRunProducer_SkipsSlotsForUnscheduledProducer(t *testing.T) {
	e, priv, _ := newTestEngine(t)
	_, other, err := crypto.GenerateKey()
	require.NoError(t, err)
	// other is not part of the authority set at all, so it is never
	// scheduled: RunProducer must never attempt a build on its behalf.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	called := false
	e.RunProducer(ctx, other, priv, func(height uint64) (builder.MiningResult, error) {
		called = true
		return builder.MiningResult{}, nil
	})
	assert.False(t, called)
}

// trySubsetSum brute-forces every non-empty subset of p.Multiset,
// returning the first one that sums exactly to p.Target. Tier-2
// instances (12-16 elements) are small enough for this to be cheap in
// a test.
func trySubsetSum(p subsetsum.Problem) ([]uint64, bool) {
	n := len(p.Multiset)
	for mask := 1; mask < (1 << n); mask++ {
		var sum uint64
		var subset []uint64
		for i := 0; i < n; i++ {
			if mask&(1<<i) != 0 {
				sum += p.Multiset[i]
				subset = append(subset, p.Multiset[i])
			}
		}
		if sum == p.Target {
			return subset, true
		}
	}
	return nil, false
}

// findSolvableMining scans commit_nonce values until one derives a
// tier-2 problem with an exactly-matching subset, then packages it as a
// builder.MiningResult the way a real open-mode producer would: one
// committed attempt, its winning witness, and a fixed salt.
func findSolvableMining(t *testing.T, parentHash crypto.Hash, epoch uint64, miner crypto.Address) builder.MiningResult {
	t.Helper()
	const tier = uint8(2)
	for nonce := uint64(0); nonce < 500; nonce++ {
		problem, err := subsetsum.DeriveProblem(parentHash, epoch, miner, nonce, tier)
		require.NoError(t, err)
		witness, ok := trySubsetSum(problem)
		if !ok {
			continue
		}
		seed := subsetsum.DeriveSeed(parentHash, epoch, miner, nonce)
		salt := []byte("salt")
		leaf := commitment.BuildLeaf(seed, miner, epoch, nonce, subsetsum.EncodeSubset(witness), salt)
		return builder.MiningResult{
			CommitEpoch:      epoch,
			CommitNonce:      nonce,
			Tier:             tier,
			DifficultyTarget: 2,
			Problem:          problem,
			CommitmentLeaves: []commitment.Leaf{leaf},
			WinningIndex:     0,
			Witness:          witness,
			Salt:             salt,
			OffchainCID:      "cid",
		}
	}
	t.Fatal("no solvable tier-2 instance found within scan window")
	return builder.MiningResult{}
}

func newOpenModeTestEngine(t *testing.T) (*ConsensusEngine, crypto.PrivateKey, crypto.Address) {
	t.Helper()
	genesis := testGenesis()
	priv, addr, err := crypto.GenerateKey()
	require.NoError(t, err)

	state := storage.NewInMemory()
	v := validation.New(validation.OpenMode, nil)
	v.Now = func() time.Time { return time.Unix(genesis.Header.Timestamp+100000, 0) }

	fc, err := forkchoice.New(v, state, genesis, nil)
	require.NoError(t, err)

	e, err := New(Config{
		State:      state,
		Mempool:    mempool.NewInMemory(),
		Validator:  v,
		ForkChoice: fc,
		BlockTime:  20 * time.Millisecond,
		Now:        func() time.Time { return time.Unix(genesis.Header.Timestamp+100000, 0) },
	})
	require.NoError(t, err)
	return e, priv, addr
}

// TestProduceBlock_OpenModeProducesAndExtendsCanonical guards against
// ProduceBlock passing a nil reveal to its own AddBlock call: in
// OpenMode that would make validateWork reject every block a producer
// builds for itself (InvalidReveal), so production could never
// succeed. This drives the same open-mode path cmd/ssumcore's run
// command exercises.
func TestProduceBlock_OpenModeProducesAndExtendsCanonical(t *testing.T) {
	e, priv, addr := newOpenModeTestEngine(t)

	mining := findSolvableMining(t, e.CanonicalTip().Block.Hash(), 1, addr)
	block, err := e.ProduceBlock(context.Background(), priv, mining)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), block.Header.Height)
	assert.Equal(t, block.Hash(), e.CanonicalTip().Block.Hash())
}
