package builder

import (
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssum-chain/core/chaintypes"
	"github.com/ssum-chain/core/crypto"
	"github.com/ssum-chain/core/mempool"
	"github.com/ssum-chain/core/storage"
)

func genesisHeader() *chaintypes.Header {
	return &chaintypes.Header{
		Version:        1,
		ParentHash:     crypto.ZeroHash,
		Height:         0,
		Timestamp:      1700000000,
		CumulativeWork: uint256.NewInt(0),
	}
}

func TestFeeSplit_RemainderGoesToBurn(t *testing.T) {
	miner, burn, treasury, validatorPool := feeSplit(105)
	assert.Equal(t, uint64(63), miner)
	assert.Equal(t, uint64(15), treasury)
	assert.Equal(t, uint64(5), validatorPool)
	assert.Equal(t, uint64(22), burn, "20% floor (21) plus the 1-wei remainder")
	assert.Equal(t, uint64(105), miner+burn+treasury+validatorPool)
}

func TestBuildBlock_SimpleExtension(t *testing.T) {
	state := storage.NewInMemory()
	pool := mempool.NewInMemory()

	senderPriv, senderAddr, err := crypto.GenerateKey()
	require.NoError(t, err)
	_, recipientAddr, err := crypto.GenerateKey()
	require.NoError(t, err)

	state.PutAccount(senderAddr, &chaintypes.Account{Address: senderAddr, Balance: 10_000, Nonce: 0})

	tx := &chaintypes.Transaction{
		CodecVersion: 1,
		TxType:       1,
		From:         senderAddr,
		To:           recipientAddr,
		Amount:       1000,
		Nonce:        0,
		GasLimit:     300,
		GasPrice:     5,
		Timestamp:    1700000001,
	}
	tx.Sign(senderPriv)
	require.True(t, pool.Insert(tx))

	_, minerAddr, err := crypto.GenerateKey()
	require.NoError(t, err)
	minerPriv, _, err := crypto.GenerateKey()
	require.NoError(t, err)
	_ = minerAddr

	parent := genesisHeader()
	mining := MiningResult{CommitEpoch: 1, CommitNonce: 1, Tier: 2, DifficultyTarget: 4}

	block, err := BuildBlock(parent, pool, state, minerPriv, time.Unix(1700000010, 0), mining)
	require.NoError(t, err)
	require.Len(t, block.Txs, 1)
	assert.Equal(t, uint64(1), block.Header.Height)
	assert.Equal(t, parent.Hash(), block.Header.ParentHash)

	// BuildBlock must not mutate the live state snapshot.
	sender, ok := state.GetAccount(senderAddr)
	require.True(t, ok)
	assert.Equal(t, uint64(10_000), sender.Balance)
}

func TestApplyBlock_SimpleExtensionNumbers(t *testing.T) {
	state := storage.NewInMemory()
	senderPriv, senderAddr, err := crypto.GenerateKey()
	require.NoError(t, err)
	_, recipientAddr, err := crypto.GenerateKey()
	require.NoError(t, err)
	_, minerAddr, err := crypto.GenerateKey()
	require.NoError(t, err)

	state.PutAccount(senderAddr, &chaintypes.Account{Address: senderAddr, Balance: 10_000, Nonce: 0})

	tx := &chaintypes.Transaction{
		CodecVersion: 1,
		TxType:       1,
		From:         senderAddr,
		To:           recipientAddr,
		Amount:       1000,
		Nonce:        0,
		GasLimit:     300,
		GasPrice:     5,
		Timestamp:    1700000001,
	}
	tx.Sign(senderPriv)

	block := &chaintypes.Block{
		Header: &chaintypes.Header{MinerPubkey: minerAddr},
		Txs:    []*chaintypes.Transaction{tx},
	}

	_, err = ApplyBlock(state, block)
	require.NoError(t, err)

	sender, _ := state.GetAccount(senderAddr)
	recipient, _ := state.GetAccount(recipientAddr)
	miner, _ := state.GetAccount(minerAddr)
	burn, _ := state.GetAccount(BurnAddress)
	treasury, _ := state.GetAccount(TreasuryAddress)
	validatorPool, _ := state.GetAccount(ValidatorPoolAddress)

	// fee = 300*5 = 1500, above MIN_FEE; split 900/300/225/75 with no remainder.
	assert.Equal(t, uint64(10_000-2500), sender.Balance)
	assert.Equal(t, uint64(1000), recipient.Balance)
	assert.Equal(t, uint64(900), miner.Balance)
	assert.Equal(t, uint64(300), burn.Balance)
	assert.Equal(t, uint64(225), treasury.Balance)
	assert.Equal(t, uint64(75), validatorPool.Balance)
}

func TestApplyBlock_RejectsNonceMismatch(t *testing.T) {
	state := storage.NewInMemory()
	senderPriv, senderAddr, err := crypto.GenerateKey()
	require.NoError(t, err)
	state.PutAccount(senderAddr, &chaintypes.Account{Address: senderAddr, Balance: 10_000, Nonce: 5})

	tx := &chaintypes.Transaction{From: senderAddr, To: crypto.Address{1}, Amount: 1, Nonce: 0, GasLimit: 21, GasPrice: 5}
	tx.Sign(senderPriv)

	block := &chaintypes.Block{Header: &chaintypes.Header{}, Txs: []*chaintypes.Transaction{tx}}
	_, err = ApplyBlock(state, block)
	assert.Error(t, err)
}

func TestApplyBlock_RejectsInsufficientBalance(t *testing.T) {
	state := storage.NewInMemory()
	senderPriv, senderAddr, err := crypto.GenerateKey()
	require.NoError(t, err)
	state.PutAccount(senderAddr, &chaintypes.Account{Address: senderAddr, Balance: 10, Nonce: 0})

	tx := &chaintypes.Transaction{From: senderAddr, To: crypto.Address{1}, Amount: 1000, Nonce: 0, GasLimit: 21, GasPrice: 5}
	tx.Sign(senderPriv)

	block := &chaintypes.Block{Header: &chaintypes.Header{}, Txs: []*chaintypes.Transaction{tx}}
	_, err = ApplyBlock(state, block)
	assert.Error(t, err)
}
