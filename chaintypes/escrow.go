package chaintypes

import (
	"github.com/ssum-chain/core/consenserr"
	"github.com/ssum-chain/core/crypto"
	"github.com/ssum-chain/core/params"
)

// EscrowState is the fixed, three-valued state of an Escrow record.
type EscrowState uint8

const (
	EscrowLocked EscrowState = iota
	EscrowReleased
	EscrowRefunded
)

func (s EscrowState) String() string {
	switch s {
	case EscrowLocked:
		return "Locked"
	case EscrowReleased:
		return "Released"
	case EscrowRefunded:
		return "Refunded"
	default:
		return "Unknown"
	}
}

// Escrow is the canonical escrow record of spec §3. Once settled
// (Released or Refunded), it is immutable — no further transitions are
// permitted by Release/Refund below.
type Escrow struct {
	ID            crypto.Hash
	Submitter     crypto.Address
	Amount        uint64
	ProblemHash   crypto.Hash
	CreatedBlock  uint64
	ExpiryBlock   uint64
	State         EscrowState
	Recipient     *crypto.Address
	SettledBlock  *uint64
	SettlementTx  *crypto.Hash
}

// EscrowID computes id = SHA-256(submitter || problem_hash || created_block).
func EscrowID(submitter crypto.Address, problemHash crypto.Hash, createdBlock uint64) crypto.Hash {
	buf := append([]byte{}, submitter.Bytes()...)
	buf = append(buf, problemHash.Bytes()...)
	buf = crypto.PutUint64LE(buf, createdBlock)
	return crypto.Sha256(buf)
}

// NewEscrow constructs a Locked escrow, validating the duration window
// of §3 (duration in [EscrowMinDuration, EscrowMaxDuration] blocks).
func NewEscrow(submitter crypto.Address, amount uint64, problemHash crypto.Hash, createdBlock, expiryBlock uint64) (*Escrow, error) {
	if expiryBlock <= createdBlock {
		return nil, consenserr.New(consenserr.InvalidStateTransition, "escrow expiry_block must exceed created_block")
	}
	duration := expiryBlock - createdBlock
	if duration < params.EscrowMinDuration || duration > params.EscrowMaxDuration {
		return nil, consenserr.New(consenserr.InvalidStateTransition, "escrow duration outside allowed window")
	}
	return &Escrow{
		ID:           EscrowID(submitter, problemHash, createdBlock),
		Submitter:    submitter,
		Amount:       amount,
		ProblemHash:  problemHash,
		CreatedBlock: createdBlock,
		ExpiryBlock:  expiryBlock,
		State:        EscrowLocked,
	}, nil
}

// Release transitions Locked -> Released, per §3: recipient given,
// amount >= EscrowMinReleaseAmount, and the escrow must still be Locked.
// Once settled it is immutable: calling Release/Refund again fails.
func (e *Escrow) Release(recipient crypto.Address, settledBlock uint64, settlementTx crypto.Hash) error {
	if e.State != EscrowLocked {
		return consenserr.New(consenserr.InvalidStateTransition, "escrow is not Locked")
	}
	if e.Amount < params.EscrowMinReleaseAmount {
		return consenserr.New(consenserr.InvalidStateTransition, "escrow amount below minimum release amount")
	}
	e.State = EscrowReleased
	e.Recipient = &recipient
	e.SettledBlock = &settledBlock
	e.SettlementTx = &settlementTx
	return nil
}

// Refund transitions Locked -> Refunded once currentBlock >= expiry_block.
func (e *Escrow) Refund(currentBlock uint64, settlementTx crypto.Hash) error {
	if e.State != EscrowLocked {
		return consenserr.New(consenserr.InvalidStateTransition, "escrow is not Locked")
	}
	if currentBlock < e.ExpiryBlock {
		return consenserr.New(consenserr.InvalidStateTransition, "escrow has not yet expired")
	}
	e.State = EscrowRefunded
	e.SettledBlock = &currentBlock
	e.SettlementTx = &settlementTx
	return nil
}
