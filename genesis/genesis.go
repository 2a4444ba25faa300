// Package genesis builds the chain's genesis block and seeds initial
// account balances, satisfying spec §6's genesis constants. The
// JSON-config/Validate/Build shape is adapted from the teacher-adjacent
// Klingnet config/genesis.go in other_examples (MainnetGenesis/
// TestnetGenesis/LoadGenesis/Validate), trimmed to the fields this
// consensus core actually needs: there is no sub-chain, token, or fork
// schedule to carry, only chain identity, an initial difficulty
// target, and an allocation table.
package genesis

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"github.com/holiman/uint256"

	"github.com/ssum-chain/core/builder"
	"github.com/ssum-chain/core/chaintypes"
	"github.com/ssum-chain/core/consenserr"
	"github.com/ssum-chain/core/crypto"
	"github.com/ssum-chain/core/merkle"
	"github.com/ssum-chain/core/storage"
)

// Config is the on-disk genesis configuration: everything an operator
// must agree on before launching a chain. Unlike the teacher's
// Klingnet config, there is no PoA/PoW Type switch — this core always
// runs subset-sum consensus; Validators instead selects authority mode
// vs. open mode (an empty Validators list means open/permissionless
// mining, per spec §3/§4.3).
type Config struct {
	ChainID          string            `json:"chain_id"`
	Timestamp        int64             `json:"timestamp"`
	DifficultyTarget uint64            `json:"difficulty_target"`
	ExtraData        string            `json:"extra_data,omitempty"`
	Alloc            map[string]uint64 `json:"alloc"`
	Validators       []string          `json:"validators,omitempty"`
	OffchainCID      string            `json:"offchain_cid"`
}

// Load reads and validates a genesis configuration from path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, consenserr.Wrap(consenserr.ConfigError, "reading genesis file", err)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, consenserr.Wrap(consenserr.ConfigError, "parsing genesis file", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes cfg to path as indented JSON.
func (c *Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return consenserr.Wrap(consenserr.ConfigError, "encoding genesis config", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return consenserr.Wrap(consenserr.ConfigError, "writing genesis file", err)
	}
	return nil
}

// Validate checks the configuration is well-formed: required fields
// are present and addresses parse. The sum of allocations is not
// checked.
func (c *Config) Validate() error {
	if c.ChainID == "" {
		return consenserr.New(consenserr.ConfigError, "chain_id is required")
	}
	if c.OffchainCID == "" {
		return consenserr.New(consenserr.ConfigError, "offchain_cid MUST be present in genesis (spec §6)")
	}
	for addrHex := range c.Alloc {
		if _, err := parseAddress(addrHex); err != nil {
			return consenserr.Wrap(consenserr.ConfigError, fmt.Sprintf("invalid alloc address %q", addrHex), err)
		}
	}
	for _, v := range c.Validators {
		if _, err := parseAddress(v); err != nil {
			return consenserr.Wrap(consenserr.ConfigError, fmt.Sprintf("invalid validator address %q", v), err)
		}
	}
	return nil
}

func parseAddress(s string) (crypto.Address, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return crypto.Address{}, err
	}
	if len(b) != crypto.AddressSize {
		return crypto.Address{}, fmt.Errorf("address must be %d bytes, got %d", crypto.AddressSize, len(b))
	}
	return crypto.BytesToAddress(b), nil
}

// ValidatorAddresses returns the configured authority set, empty for open mode.
func (c *Config) ValidatorAddresses() ([]crypto.Address, error) {
	out := make([]crypto.Address, 0, len(c.Validators))
	for _, v := range c.Validators {
		addr, err := parseAddress(v)
		if err != nil {
			return nil, err
		}
		out = append(out, addr)
	}
	return out, nil
}

// Apply seeds state with the configured initial account balances. Call
// once, against empty storage, before Build.
func (c *Config) Apply(state storage.Storage) error {
	for addrHex, balance := range c.Alloc {
		addr, err := parseAddress(addrHex)
		if err != nil {
			return consenserr.Wrap(consenserr.ConfigError, "invalid alloc address", err)
		}
		state.PutAccount(addr, &chaintypes.Account{
			Address:   addr,
			Balance:   balance,
			CreatedAt: c.Timestamp,
			UpdatedAt: c.Timestamp,
		})
	}
	return nil
}

// Build constructs the genesis block per spec §6's genesis constants:
// version=1, height=0, parent_hash=0x32, cumulative_work=0,
// difficulty_target as configured, commitments_root defined (the empty
// Merkle root, since genesis commits no subset-sum problems),
// offchain_cid present. state must already reflect the genesis
// allocations (call Apply first) so state_root matches what a peer
// replaying from an empty store and the same config would compute.
func (c *Config) Build(state storage.Storage) (*chaintypes.Block, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	h := &chaintypes.Header{
		Version:          1,
		ParentHash:       crypto.ZeroHash,
		Height:           0,
		Timestamp:        c.Timestamp,
		TxRoot:           merkle.Root(nil),
		StateRoot:        builder.StateRoot(state),
		CommitmentsRoot:  merkle.Root(nil),
		DifficultyTarget: c.DifficultyTarget,
		CumulativeWork:   uint256.NewInt(0),
	}
	copy(h.Extra[:], []byte(c.ExtraData))
	return &chaintypes.Block{Header: h, OffchainCID: c.OffchainCID}, nil
}
