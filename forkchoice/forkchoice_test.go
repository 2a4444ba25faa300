package forkchoice

import (
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssum-chain/core/builder"
	"github.com/ssum-chain/core/chaintypes"
	"github.com/ssum-chain/core/crypto"
	"github.com/ssum-chain/core/mempool"
	"github.com/ssum-chain/core/merkle"
	"github.com/ssum-chain/core/storage"
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

func TestForkChoice_AddBlock_ExtendsCanonical(t *testing.T) {
	genesis := testGenesis()
	minerPriv, minerAddr, err := crypto.GenerateKey()
	require.NoError(t, err)

	state := storage.NewInMemory()
	v := validation.New(validation.AuthorityMode, []crypto.Address{minerAddr})
	v.Now = func() time.Time { return time.Unix(genesis.Header.Timestamp+1000, 0) }

	fc, err := New(v, state, genesis, nil)
	require.NoError(t, err)

	pool := mempool.NewInMemory()
	blk, err := builder.BuildBlock(genesis.Header, pool, state, minerPriv, time.Unix(genesis.Header.Timestamp+10, 0), builder.MiningResult{DifficultyTarget: 1, OffchainCID: "cid"})
	require.NoError(t, err)

	reorgRequired, err := fc.AddBlock(blk, nil)
	require.NoError(t, err)
	assert.False(t, reorgRequired)
	assert.Equal(t, blk.Hash(), fc.CanonicalTip().Block.Hash())
}

func TestForkChoice_AddBlock_RejectsOrphan(t *testing.T) {
	genesis := testGenesis()
	_, miner, err := crypto.GenerateKey()
	require.NoError(t, err)

	state := storage.NewInMemory()
	v := validation.New(validation.AuthorityMode, []crypto.Address{miner})
	fc, err := New(v, state, genesis, nil)
	require.NoError(t, err)

	orphanParent := crypto.Sha256([]byte("no such parent"))
	h := &chaintypes.Header{
		Version:    1,
		ParentHash: orphanParent,
		Height:     1,
		Timestamp:  genesis.Header.Timestamp + 10,
	}
	block := &chaintypes.Block{Header: h}

	_, err = fc.AddBlock(block, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OrphanBlock")
}

func TestForkChoice_AddBlock_DuplicateIsNoop(t *testing.T) {
	genesis := testGenesis()
	_, miner, err := crypto.GenerateKey()
	require.NoError(t, err)
	state := storage.NewInMemory()
	v := validation.New(validation.AuthorityMode, []crypto.Address{miner})
	fc, err := New(v, state, genesis, nil)
	require.NoError(t, err)

	reorgRequired, err := fc.AddBlock(genesis, nil)
	require.NoError(t, err)
	assert.False(t, reorgRequired)
}

// TestForkChoice_Reorg_DepthTwo reproduces spec §8 scenario 5: canonical
// is [G, A1, A2] (cumulative_work 4: work_weight 2^1 = 2 per block at
// difficulty_target 1), a side chain [G, B1, B2, B3] (cumulative_work 6)
// arrives and must trigger a depth-2 reorg onto B3.
func TestForkChoice_Reorg_DepthTwo(t *testing.T) {
	genesis := testGenesis()
	minerPriv, minerAddr, err := crypto.GenerateKey()
	require.NoError(t, err)

	state := storage.NewInMemory()
	v := validation.New(validation.AuthorityMode, []crypto.Address{minerAddr})
	v.Now = func() time.Time { return time.Unix(genesis.Header.Timestamp+100000, 0) }

	fc, err := New(v, state, genesis, nil)
	require.NoError(t, err)

	pool := mempool.NewInMemory()
	base := genesis.Header
	a1, err := builder.BuildBlock(base, pool, state, minerPriv, time.Unix(base.Timestamp+10, 0), builder.MiningResult{DifficultyTarget: 1, OffchainCID: "cid"})
	require.NoError(t, err)
	_, err = builder.ApplyBlock(state, a1)
	require.NoError(t, err)
	reorgRequired, err := fc.AddBlock(a1, nil)
	require.NoError(t, err)
	require.False(t, reorgRequired)

	a2, err := builder.BuildBlock(a1.Header, pool, state, minerPriv, time.Unix(a1.Header.Timestamp+10, 0), builder.MiningResult{DifficultyTarget: 1, OffchainCID: "cid"})
	require.NoError(t, err)
	_, err = builder.ApplyBlock(state, a2)
	require.NoError(t, err)
	reorgRequired, err = fc.AddBlock(a2, nil)
	require.NoError(t, err)
	require.False(t, reorgRequired)

	require.Equal(t, a2.Hash(), fc.CanonicalTip().Block.Hash())

	// Build the side chain against an independent scratch state seeded
	// identically to genesis, so its blocks carry correct state_roots
	// without disturbing the canonical live state.
	sideState := storage.NewInMemory()
	b1, err := builder.BuildBlock(base, pool, sideState, minerPriv, time.Unix(base.Timestamp+11, 0), builder.MiningResult{DifficultyTarget: 1, OffchainCID: "cid"})
	require.NoError(t, err)
	_, err = builder.ApplyBlock(sideState, b1)
	require.NoError(t, err)
	reorgRequired, err = fc.AddBlock(b1, nil)
	require.NoError(t, err)
	assert.False(t, reorgRequired, "side chain shorter than canonical so far")

	b2, err := builder.BuildBlock(b1.Header, pool, sideState, minerPriv, time.Unix(b1.Header.Timestamp+10, 0), builder.MiningResult{DifficultyTarget: 1, OffchainCID: "cid"})
	require.NoError(t, err)
	_, err = builder.ApplyBlock(sideState, b2)
	require.NoError(t, err)
	// b2 ties canonical on cumulative_work; whether that alone already
	// outranks canonical depends on the tie-break (header_hash,
	// timestamp) defined by ChainTip.Less, not asserted here.
	_, err = fc.AddBlock(b2, nil)
	require.NoError(t, err)

	b3, err := builder.BuildBlock(b2.Header, pool, sideState, minerPriv, time.Unix(b2.Header.Timestamp+10, 0), builder.MiningResult{DifficultyTarget: 1, OffchainCID: "cid"})
	require.NoError(t, err)
	_, err = builder.ApplyBlock(sideState, b3)
	require.NoError(t, err)
	reorgRequired, err = fc.AddBlock(b3, nil)
	require.NoError(t, err)
	require.True(t, reorgRequired, "side chain now has greater cumulative_work")

	var gotEvent ReorgEvent
	fc.onReorg = func(e ReorgEvent) { gotEvent = e }

	err = fc.Reorg(b3.Hash())
	require.NoError(t, err)
	assert.Equal(t, b3.Hash(), fc.CanonicalTip().Block.Hash())
	assert.Equal(t, uint64(2), gotEvent.Depth)
	assert.Equal(t, a2.Hash(), gotEvent.OldTip)
	assert.Equal(t, b3.Hash(), gotEvent.NewTip)
}

func TestForkChoice_New_RejectsNonGenesis(t *testing.T) {
	notGenesis := &chaintypes.Block{Header: &chaintypes.Header{Height: 1}}
	_, _, minerErr := crypto.GenerateKey()
	require.NoError(t, minerErr)
	v := validation.New(validation.AuthorityMode, nil)
	_, err := New(v, storage.NewInMemory(), notGenesis, nil)
	assert.Error(t, err)
}
