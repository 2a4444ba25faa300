package chaintypes

import "github.com/ssum-chain/core/crypto"

// ValidatorStatus is the canonical validator record of spec §3, owned
// and mutated exclusively by package slashing. Jailed/Banned/JailedUntil
// refine the single `active` field §3 names into the full three-state
// machine §4.8 describes (Active <-> Jailed, terminal Banned); Active
// remains the derived, stored convenience flag §3 specifies.
type ValidatorStatus struct {
	Address           crypto.Address
	Active            bool
	Jailed            bool
	Banned            bool
	JailedUntil       int64
	SlashCount        uint64
	TotalSeverity     uint64
	LastSlashTime     int64
	ConsecutiveMissed uint64
	ProducedBlocks    uint64
	InvalidBlocks     uint64
	Reputation        float64 // in [0, 1]
}
