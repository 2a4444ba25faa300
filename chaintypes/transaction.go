package chaintypes

import (
	"github.com/ssum-chain/core/crypto"
)

// Transaction is the fixed-shape record of spec §3: a single transfer,
// not a tagged union of transaction kinds (smart-contract execution is
// a spec.md Non-goal).
type Transaction struct {
	CodecVersion uint8
	TxType       uint8
	From         crypto.Address
	To           crypto.Address
	Amount       uint64
	Nonce        uint64
	GasLimit     uint64
	GasPrice     uint64
	Data         []byte
	Timestamp    int64
	Signature    crypto.Signature
}

// SigningMessage builds the canonical little-endian signing message of
// §6: codec_version || tx_type || from || to || amount || nonce ||
// gas_limit || gas_price || data_len(u32) || data || timestamp.
func (tx *Transaction) SigningMessage() []byte {
	buf := make([]byte, 0, 2+64+8*4+4+len(tx.Data)+8)
	buf = append(buf, tx.CodecVersion, tx.TxType)
	buf = append(buf, tx.From.Bytes()...)
	buf = append(buf, tx.To.Bytes()...)
	buf = crypto.PutUint64LE(buf, tx.Amount)
	buf = crypto.PutUint64LE(buf, tx.Nonce)
	buf = crypto.PutUint64LE(buf, tx.GasLimit)
	buf = crypto.PutUint64LE(buf, tx.GasPrice)
	buf = crypto.PutUint32LE(buf, uint32(len(tx.Data)))
	buf = append(buf, tx.Data...)
	buf = crypto.PutInt64LE(buf, tx.Timestamp)
	return buf
}

// Hash returns tx_hash = SHA-256(signing message), per §3.
func (tx *Transaction) Hash() crypto.Hash {
	return crypto.Sha256(tx.SigningMessage())
}

// Sign signs the transaction's canonical message with priv and sets Signature.
func (tx *Transaction) Sign(priv crypto.PrivateKey) {
	tx.Signature = crypto.Sign(priv, tx.SigningMessage())
}

// VerifySignature checks tx.Signature against tx.From over the canonical message.
func (tx *Transaction) VerifySignature() bool {
	return crypto.Verify(tx.From, tx.SigningMessage(), tx.Signature)
}

// Fee computes gas_limit * gas_price, floored at params.MinFee by the
// caller (builder applies the floor; kept out of this pure accessor so
// Fee always reflects exactly what the transaction declares).
func (tx *Transaction) Fee() uint64 {
	return tx.GasLimit * tx.GasPrice
}

// Encode serializes a single transaction for the canonical block body:
// message || signature(64), per §6 "Canonical block body".
func (tx *Transaction) Encode() []byte {
	buf := tx.SigningMessage()
	buf = append(buf, tx.Signature.Bytes()...)
	return buf
}
