package chaintypes

import "github.com/ssum-chain/core/crypto"

// Account is the canonical account record of spec §3. Nonce is the next
// expected transaction nonce; balance never goes negative — enforced by
// the state-transition function (package builder), not by this type.
type Account struct {
	Address   crypto.Address
	Balance   uint64
	Nonce     uint64
	CreatedAt int64
	UpdatedAt int64
}

// Leaf returns SHA-256(address || balance_le || nonce_le), the leaf
// value for the sorted state_root Merkle tree of §4.2.
func (a *Account) Leaf() crypto.Hash {
	buf := append([]byte{}, a.Address.Bytes()...)
	buf = crypto.PutUint64LE(buf, a.Balance)
	buf = crypto.PutUint64LE(buf, a.Nonce)
	return crypto.Sha256(buf)
}
