// Package builder implements spec §4.2's block builder and
// state-transition function: transaction selection, deterministic
// apply order, fee accounting, and the three canonical roots
// (tx_root/state_root/commitments_root) every header must carry.
package builder

import (
	"sort"
	"time"

	"github.com/holiman/uint256"

	"github.com/ssum-chain/core/chaintypes"
	"github.com/ssum-chain/core/commitment"
	"github.com/ssum-chain/core/consenserr"
	"github.com/ssum-chain/core/crypto"
	"github.com/ssum-chain/core/internal/log"
	"github.com/ssum-chain/core/mempool"
	"github.com/ssum-chain/core/merkle"
	"github.com/ssum-chain/core/params"
	"github.com/ssum-chain/core/storage"
	"github.com/ssum-chain/core/subsetsum"
)

var logger = log.NewModuleLogger(log.Builder)

func seedAddress(seed string) crypto.Address {
	return crypto.BytesToAddress(crypto.Sha256([]byte(seed)).Bytes())
}

// TreasuryAddress, BurnAddress, and ValidatorPoolAddress are the fixed
// sink addresses §4.2's fee split credits.
var (
	TreasuryAddress      = seedAddress(params.TreasuryAddressSeed)
	BurnAddress          = seedAddress(params.BurnAddressSeed)
	ValidatorPoolAddress = seedAddress(params.ValidatorPoolAddressSeed)
)

// MiningResult carries the outcome of the commit-reveal protocol (§4.5)
// and the Subset-Sum work (§4.4) that BuildBlock assembles into a
// header. A producer computes this separately from block building
// proper: solving the problem and collecting commitment attempts is a
// distinct concern from transaction selection and state application.
type MiningResult struct {
	CommitEpoch      uint64
	CommitNonce      uint64
	Tier             uint8
	DifficultyTarget uint64
	ProblemType      uint16
	Problem          subsetsum.Problem
	// CommitmentLeaves lists every attempt's leaf made within this
	// epoch, in attempt order; their Merkle root becomes
	// commitments_root.
	CommitmentLeaves []commitment.Leaf
	// WinningIndex, Witness, and Salt are the reveal half of the
	// commit-reveal protocol (§4.5): which of CommitmentLeaves is the
	// winning attempt, the subset-sum witness that binds to its right
	// half, and the salt used to build that binding hash. Only
	// meaningful when CommitmentLeaves is non-empty (open-mode mining);
	// a producer that never committed any work (authority mode) leaves
	// these zero-valued.
	WinningIndex int
	Witness      []uint64
	Salt         []byte
	OffchainCID  string
}

// feeSplit computes the four-way split of a transaction's fee per
// §4.2: 60% miner, 20% burn, 15% treasury, 5% validator pool, integer
// division with any remainder assigned to burn.
func feeSplit(fee uint64) (miner, burn, treasury, validatorPool uint64) {
	miner = fee * params.MinerShare / 100
	burn = fee * params.BurnShare / 100
	treasury = fee * params.TreasuryShare / 100
	validatorPool = fee * params.ValidatorShare / 100
	remainder := fee - (miner + burn + treasury + validatorPool)
	burn += remainder
	return
}

func canonicalFee(tx *chaintypes.Transaction) uint64 {
	fee := tx.Fee()
	if fee < params.MinFee {
		fee = params.MinFee
	}
	return fee
}

// canonicalOrder re-sorts txs into §4.2 step 3's execution order:
// ascending (from, nonce), ties broken by tx_hash ascending.
func canonicalOrder(txs []*chaintypes.Transaction) []*chaintypes.Transaction {
	out := make([]*chaintypes.Transaction, len(txs))
	copy(out, txs)
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.From != b.From {
			return lessAddress(a.From, b.From)
		}
		if a.Nonce != b.Nonce {
			return a.Nonce < b.Nonce
		}
		return a.Hash().Less(b.Hash())
	})
	return out
}

func lessAddress(a, b crypto.Address) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// applyTransaction applies one transaction's balance/nonce effects to
// state, per §4.2 "Application". Fee pools accumulate into the caller's
// running totals so the caller can credit sinks once per block.
func applyTransaction(state storage.Storage, tx *chaintypes.Transaction, pools *feePools) error {
	sender, ok := state.GetAccount(tx.From)
	if !ok {
		sender = &chaintypes.Account{Address: tx.From}
	}
	if sender.Nonce != tx.Nonce {
		return consenserr.New(consenserr.InvalidStateTransition, "sender nonce mismatch")
	}
	fee := canonicalFee(tx)
	cost := tx.Amount + fee
	if sender.Balance < cost {
		return consenserr.New(consenserr.InvalidStateTransition, "sender balance insufficient for amount+fee")
	}

	recipient, ok := state.GetAccount(tx.To)
	if !ok {
		recipient = &chaintypes.Account{Address: tx.To}
	}

	sender.Balance -= cost
	sender.Nonce++
	recipient.Balance += tx.Amount

	state.PutAccount(tx.From, sender)
	state.PutAccount(tx.To, recipient)

	minerAmt, burnAmt, treasuryAmt, validatorAmt := feeSplit(fee)
	pools.miner += minerAmt
	pools.burn += burnAmt
	pools.treasury += treasuryAmt
	pools.validatorPool += validatorAmt
	return nil
}

type feePools struct {
	miner         uint64
	burn          uint64
	treasury      uint64
	validatorPool uint64
}

func (p *feePools) settle(state storage.Storage, miner crypto.Address) {
	credit := func(addr crypto.Address, amount uint64) {
		if amount == 0 {
			return
		}
		acc, ok := state.GetAccount(addr)
		if !ok {
			acc = &chaintypes.Account{Address: addr}
		}
		acc.Balance += amount
		state.PutAccount(addr, acc)
	}
	credit(miner, p.miner)
	credit(BurnAddress, p.burn)
	credit(TreasuryAddress, p.treasury)
	credit(ValidatorPoolAddress, p.validatorPool)
}

// StateRoot computes the sorted-account Merkle root of §4.2: leaves are
// SHA-256(address || balance_le || nonce_le), ordered by address
// ascending. Exported so genesis construction can compute the same
// root a header built by BuildBlock would carry.
func StateRoot(state storage.Storage) crypto.Hash {
	return stateRoot(state)
}

func stateRoot(state storage.Storage) crypto.Hash {
	accounts := state.AllAccounts()
	sort.Slice(accounts, func(i, j int) bool {
		return lessAddress(accounts[i].Address, accounts[j].Address)
	})
	leaves := make([]crypto.Hash, len(accounts))
	for i, a := range accounts {
		leaves[i] = a.Leaf()
	}
	return merkle.Root(leaves)
}

// BuildBlock implements the §4.2 contract: build_block(parent,
// mempool_snapshot, state_snapshot, producer_key, now) -> Block.
// Transaction selection and application run against state directly,
// then the pre-build state is restored — build errors never mutate
// state, per §4.2 "Failure semantics".
func BuildBlock(parent *chaintypes.Header, pool mempool.Mempool, state storage.Storage, producerKey crypto.PrivateKey, now time.Time, mining MiningResult) (*chaintypes.Block, error) {
	if parent == nil {
		return nil, consenserr.New(consenserr.InvalidHeader, "parent header is required")
	}

	candidates := pool.SnapshotTop(params.MaxTxPerBlock, params.BlockGasLimit)
	ordered := canonicalOrder(candidates)

	minerAddr := crypto.PublicKey(producerKey)

	snap := state.Snapshot()
	defer state.Restore(snap)

	pools := &feePools{}
	applied := make([]*chaintypes.Transaction, 0, len(ordered))
	for _, tx := range ordered {
		if err := applyTransaction(state, tx, pools); err != nil {
			logger.Warn("aborting candidate block: transaction cannot be applied", "tx_hash", tx.Hash(), "err", err)
			return nil, consenserr.Wrap(consenserr.InvalidStateTransition, "builder cannot include a transaction it cannot apply", err)
		}
		applied = append(applied, tx)
	}
	pools.settle(state, minerAddr)

	sRoot := stateRoot(state)
	txRoot := merkle.Root(blockTxHashes(applied))

	leafHashes := make([]crypto.Hash, len(mining.CommitmentLeaves))
	for i, l := range mining.CommitmentLeaves {
		leafHashes[i] = l.Hash()
	}
	commitmentsRoot := merkle.Root(leafHashes)
	proofCommitment := commitment.ProofCommitment(commitmentsRoot, mining.CommitEpoch, minerAddr)

	cumulativeWork := subsetsum.WorkWeight(mining.DifficultyTarget)
	if parent.CumulativeWork != nil {
		cumulativeWork = new(uint256.Int).Add(parent.CumulativeWork, cumulativeWork)
	}

	header := &chaintypes.Header{
		Version:          1,
		ParentHash:       parent.Hash(),
		Height:           parent.Height + 1,
		Timestamp:        now.Unix(),
		TxRoot:           txRoot,
		StateRoot:        sRoot,
		CommitmentsRoot:  commitmentsRoot,
		DifficultyTarget: mining.DifficultyTarget,
		CumulativeWork:   cumulativeWork,
		MinerPubkey:      minerAddr,
		CommitNonce:      mining.CommitNonce,
		ProblemType:      mining.ProblemType,
		Tier:             mining.Tier,
		CommitEpoch:      mining.CommitEpoch,
		ProofCommitment:  proofCommitment,
	}

	return &chaintypes.Block{
		Header:      header,
		Txs:         applied,
		ProblemMeta: chaintypes.ProblemMetadata{Problem: mining.Problem},
		OffchainCID: mining.OffchainCID,
	}, nil
}

func blockTxHashes(txs []*chaintypes.Transaction) []crypto.Hash {
	out := make([]crypto.Hash, len(txs))
	for i, tx := range txs {
		out[i] = tx.Hash()
	}
	return out
}

// ApplyBlock implements apply_block(state, block) -> new_state_root:
// applies every transaction in the block's (already canonical) order
// to state and returns the resulting state_root. Unlike BuildBlock,
// this mutates state permanently — callers (package validation,
// package forkchoice) are responsible for snapshotting beforehand if
// the caller needs to be able to roll back on failure.
func ApplyBlock(state storage.Storage, block *chaintypes.Block) (crypto.Hash, error) {
	pools := &feePools{}
	for _, tx := range block.Txs {
		if err := applyTransaction(state, tx, pools); err != nil {
			return crypto.Hash{}, consenserr.Wrap(consenserr.InvalidStateTransition, "block contains a transaction that cannot be applied", err)
		}
	}
	pools.settle(state, block.Header.MinerPubkey)
	return stateRoot(state), nil
}
