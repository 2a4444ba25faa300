// Package crypto implements the pure, deterministic, side-effect-free
// primitives of spec §4.1: SHA-256 hashing, Ed25519 sign/verify (RFC
// 8032), and canonical little-endian integer encoding. Nothing in this
// package touches the network, disk, or wall clock.
package crypto

import (
	"crypto/sha256"
	"encoding/binary"

	"golang.org/x/crypto/ed25519"

	"github.com/ssum-chain/core/internal/log"
)

var logger = log.NewModuleLogger(log.Crypto)

const (
	HashSize      = 32
	AddressSize   = ed25519.PublicKeySize // 32
	SignatureSize = ed25519.SignatureSize // 64
	PrivateKeySize = ed25519.PrivateKeySize
)

// Hash is a 32-byte SHA-256 digest, treated as opaque.
type Hash [HashSize]byte

// Address is an Ed25519 public key, shared by miner identity and
// transaction endpoints.
type Address [AddressSize]byte

// Signature is a 64-byte Ed25519 signature.
type Signature [SignatureSize]byte

// PrivateKey is an Ed25519 private key (64 bytes: seed || public key).
type PrivateKey []byte

// ZeroHash is the all-zero hash used as the genesis parent_hash.
var ZeroHash = Hash{}

func (h Hash) Bytes() []byte { return h[:] }
func (a Address) Bytes() []byte { return a[:] }
func (s Signature) Bytes() []byte { return s[:] }

// Less provides a total order over hashes for fork-choice tie-breaking
// (§4.6: "lexicographically smaller header_hash").
func (h Hash) Less(o Hash) bool {
	for i := range h {
		if h[i] != o[i] {
			return h[i] < o[i]
		}
	}
	return false
}

func BytesToHash(b []byte) Hash {
	var h Hash
	copy(h[:], b)
	return h
}

func BytesToAddress(b []byte) Address {
	var a Address
	copy(a[:], b)
	return a
}

func BytesToSignature(b []byte) Signature {
	var s Signature
	copy(s[:], b)
	return s
}

// Sha256 computes the SHA-256 digest of the concatenation of its
// arguments, matching the canonical `SHA-256(a || b || ...)` notation
// used throughout spec.md.
func Sha256(parts ...[]byte) Hash {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
	}
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

// GenerateKey creates a new random Ed25519 keypair.
func GenerateKey() (PrivateKey, Address, error) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, Address{}, err
	}
	return PrivateKey(priv), BytesToAddress(pub), nil
}

// Sign produces a 64-byte Ed25519 signature over message.
func Sign(priv PrivateKey, message []byte) Signature {
	sig := ed25519.Sign(ed25519.PrivateKey(priv), message)
	return BytesToSignature(sig)
}

// Verify checks an Ed25519 signature against the given public key and
// message. Never panics on malformed input — malformed keys/signatures
// simply fail verification.
func Verify(pub Address, message []byte, sig Signature) bool {
	defer func() {
		// ed25519.Verify never panics on wrong-sized slices built from
		// our fixed-size arrays, but guard defensively since this
		// function sits on the block-acceptance hot path.
		_ = recover()
	}()
	return ed25519.Verify(ed25519.PublicKey(pub[:]), message, sig[:])
}

// PublicKey extracts the Ed25519 public key embedded in a private key.
func PublicKey(priv PrivateKey) Address {
	pub := ed25519.PrivateKey(priv).Public().(ed25519.PublicKey)
	return BytesToAddress(pub)
}

// PutUint16LE, PutUint32LE, PutUint64LE, PutInt64LE append the
// little-endian encoding of v to dst, matching §6's canonical encoding
// rule ("little-endian for every integer").
func PutUint16LE(dst []byte, v uint16) []byte {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	return append(dst, b[:]...)
}

func PutUint32LE(dst []byte, v uint32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return append(dst, b[:]...)
}

func PutUint64LE(dst []byte, v uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return append(dst, b[:]...)
}

func PutInt64LE(dst []byte, v int64) []byte {
	return PutUint64LE(dst, uint64(v))
}

// PutUint128LE encodes a 128-bit unsigned value (represented as hi:lo
// uint64 pairs, since Go has no native u128) as 16 little-endian bytes.
func PutUint128LE(dst []byte, hi, lo uint64) []byte {
	dst = PutUint64LE(dst, lo)
	dst = PutUint64LE(dst, hi)
	return dst
}

func init() {
	logger.Debug("crypto primitives initialized", "hashSize", HashSize, "addressSize", AddressSize)
}
