// Copyright 2018 The klaytn Authors
// This file is part of the klaytn library.
//
// The klaytn library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The klaytn library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the klaytn library. If not, see <http://www.gnu.org/licenses/>.
//
// This file carries forward the named-constant style of the teacher's
// params/protocol_params.go, rewritten for subset-sum consensus instead
// of EVM gas accounting.

package params

import "time"

const (
	// Block construction (§4.2)

	MaxTxPerBlock  = 1000        // max transactions selected from mempool per block
	BlockGasLimit  = 30_000_000  // gas budget per block
	MinFee         = 1000        // minimum fee in wei, floor for gas_limit*gas_price
	TreasuryShare  = 15          // percent of fees routed to the treasury address
	MinerShare     = 60          // percent of fees routed to the block's miner
	BurnShare      = 20          // percent of fees burned
	ValidatorShare = 5           // percent of fees routed to the validator pool
	FeeShareTotal  = 100         // MinerShare+BurnShare+TreasuryShare+ValidatorShare

	// Block/header validation (§4.3)

	MaxClockSkew = 600 * time.Second // header timestamp may not exceed wall clock by more than this

	// Subset-sum verifier (§4.4)

	VerifyMemoryCap = 64 << 20 // 64 MiB, DP table memory ceiling before InvalidWork

	// Tier size windows: [min, max] element counts for tiers 1..5.
	TierMin1, TierMax1 = 8, 12
	TierMin2, TierMax2 = 12, 16
	TierMin3, TierMax3 = 16, 20
	TierMin4, TierMax4 = 20, 24
	TierMin5, TierMax5 = 24, 32

	// Fork choice & reorg (§4.6/§4.7)

	ForkCacheMaxDepthBehindCanonical = 10   // prune tips more than this far behind canonical
	ForkCacheMaxEntries              = 100  // total bounded cache size
	ReorgMaxLookback                 = 1000 // common-ancestor walk budget, levels

	// Slashing (§4.8)

	DefaultMissedSlotThreshold = 10            // consecutive missed slots before a Liveness offence
	BanThreshold               = 100           // total_severity at which a validator is permanently Banned
	DefaultJailDuration         = time.Hour     // temporary jail duration
	ReputationDecayRate         = 0.01          // reputation recovered per produced block
	MinReputation               = 0.6           // below this, a validator is deactivated until recovery
	SeverityDoubleSign          = 10
	SeverityInvalidBlock        = 5
	SeverityWrongTurn           = 3
	SeverityLiveness            = 1

	// Escrow transitions (§3)

	EscrowMinReleaseAmount = 1000   // minimum amount releasable to a recipient
	EscrowMinDuration      = 100    // minimum blocks between created_block and expiry_block
	EscrowMaxDuration      = 100000 // maximum blocks between created_block and expiry_block

	// Block production timing (§5)

	DefaultBlockTime = 2 * time.Second // target time between blocks
)

// TreasuryAddressSeed, BurnAddressSeed, and ValidatorPoolAddressSeed are
// each expanded via SHA-256 to derive fixed, publicly known sink
// addresses referenced by §4.2's fee split. None is a private key — no
// party ever signs on their behalf.
const (
	TreasuryAddressSeed      = "ssum-chain/treasury/v1"
	BurnAddressSeed          = "ssum-chain/burn/v1"
	ValidatorPoolAddressSeed = "ssum-chain/validator-pool/v1"
)

// TierWindow returns the inclusive [min, max] multiset-size window for a tier.
func TierWindow(tier uint8) (min, max int, ok bool) {
	switch tier {
	case 1:
		return TierMin1, TierMax1, true
	case 2:
		return TierMin2, TierMax2, true
	case 3:
		return TierMin3, TierMax3, true
	case 4:
		return TierMin4, TierMax4, true
	case 5:
		return TierMin5, TierMax5, true
	default:
		return 0, 0, false
	}
}
