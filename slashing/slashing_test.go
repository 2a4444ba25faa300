package slashing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssum-chain/core/crypto"
	"github.com/ssum-chain/core/params"
)

func twoValidators(t *testing.T) (crypto.Address, crypto.Address) {
	t.Helper()
	_, a, err := crypto.GenerateKey()
	require.NoError(t, err)
	_, b, err := crypto.GenerateKey()
	require.NoError(t, err)
	return a, b
}

// TestRecordOffence_DoubleSignJailsAndReproducesScenarioSix reproduces
// spec §8 scenario 6: a double-sign drops V's reputation, jails it, and
// after jail expiry one honest produced block (by any validator, not
// necessarily V) recovers its reputation by exactly
// params.ReputationDecayRate, leaving V inactive until reputation
// reaches params.MinReputation.
func TestRecordOffence_DoubleSignJailsAndReproducesScenarioSix(t *testing.T) {
	v, other := twoValidators(t)
	m := New([]crypto.Address{v, other})
	start := time.Unix(1_700_000_000, 0)

	ev, recorded, err := m.RecordOffence(v, DoubleSign, 10, []byte("conflicting headers"), start)
	require.NoError(t, err)
	assert.True(t, recorded)
	assert.Equal(t, uint64(params.SeverityDoubleSign), ev.Severity)

	status, ok := m.Status(v)
	require.True(t, ok)
	assert.True(t, status.Jailed)
	assert.False(t, status.Banned)
	assert.False(t, status.Active)
	assert.Equal(t, uint64(1), status.SlashCount)
	assert.Equal(t, uint64(params.SeverityDoubleSign), status.TotalSeverity)
	assert.InDelta(t, 0.0, status.Reputation, 1e-9, "severity 10 / 10.0 drops reputation to exactly zero")

	// Jail not yet expired: producing a block elsewhere must not unjail V.
	stillJailed := start.Add(params.DefaultJailDuration / 2)
	m.RecordProducedBlock(other, stillJailed)
	status, _ = m.Status(v)
	assert.True(t, status.Jailed)
	assert.InDelta(t, params.ReputationDecayRate, status.Reputation, 1e-9)

	// Jail expired, reputation recovered by exactly one tick: still below
	// MinReputation, so V remains inactive per §8 scenario 6.
	afterJail := start.Add(params.DefaultJailDuration + time.Second)
	m.RecordProducedBlock(other, afterJail)
	status, _ = m.Status(v)
	assert.InDelta(t, 2*params.ReputationDecayRate, status.Reputation, 1e-9)
	assert.False(t, status.Active, "reputation is still far below MinReputation")
}

func TestRecordOffence_ReachingBanThresholdBansPermanently(t *testing.T) {
	v, _ := twoValidators(t)
	m := New([]crypto.Address{v})
	now := time.Unix(1_700_000_000, 0)

	for i := uint64(0); i < 10; i++ {
		_, _, err := m.RecordOffence(v, DoubleSign, i, []byte{byte(i)}, now)
		require.NoError(t, err)
	}

	status, ok := m.Status(v)
	require.True(t, ok)
	assert.True(t, status.Banned)
	assert.False(t, status.Jailed)
	assert.False(t, status.Active)
	assert.GreaterOrEqual(t, status.TotalSeverity, uint64(params.BanThreshold))

	// A banned validator never recovers via produced blocks.
	m.RecordProducedBlock(v, now.Add(24*time.Hour))
	status, _ = m.Status(v)
	assert.True(t, status.Banned)
	assert.False(t, status.Active)
}

func TestRecordOffence_IsIdempotent(t *testing.T) {
	v, _ := twoValidators(t)
	m := New([]crypto.Address{v})
	now := time.Unix(1_700_000_000, 0)
	evidence := []byte("identical evidence bytes")

	_, firstRecorded, err := m.RecordOffence(v, InvalidBlock, 5, evidence, now)
	require.NoError(t, err)
	require.True(t, firstRecorded)
	status1, _ := m.Status(v)

	_, secondRecorded, err := m.RecordOffence(v, InvalidBlock, 5, evidence, now.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, secondRecorded, "identical offence must not be recorded twice")

	status2, _ := m.Status(v)
	assert.Equal(t, status1, status2, "duplicate evidence must leave status unchanged")
	assert.Len(t, m.Ledger(), 1)
}

func TestRecordMissedSlot_RaisesLivenessOffenceAtThreshold(t *testing.T) {
	v, _ := twoValidators(t)
	m := New([]crypto.Address{v})
	now := time.Unix(1_700_000_000, 0)

	for i := uint64(1); i < params.DefaultMissedSlotThreshold; i++ {
		require.NoError(t, m.RecordMissedSlot(v, i, now))
	}
	status, _ := m.Status(v)
	assert.False(t, status.Jailed, "threshold not yet reached")

	require.NoError(t, m.RecordMissedSlot(v, params.DefaultMissedSlotThreshold, now))
	status, _ = m.Status(v)
	assert.True(t, status.Jailed, "liveness offence fires once the threshold is reached")
	assert.Equal(t, uint64(0), status.ConsecutiveMissed, "counter resets after the offence fires")

	ledger := m.Ledger()
	require.Len(t, ledger, 1)
	assert.Equal(t, Liveness, ledger[0].Offence)
}

func TestSchedule_SkipsJailedAndBannedValidators(t *testing.T) {
	a, b := twoValidators(t)
	_, c, err := crypto.GenerateKey()
	require.NoError(t, err)
	m := New([]crypto.Address{a, b, c})
	now := time.Unix(1_700_000_000, 0)

	_, _, err = m.RecordOffence(b, InvalidBlock, 1, []byte("bad block"), now)
	require.NoError(t, err)

	seen := map[crypto.Address]bool{}
	for h := uint64(0); h < 6; h++ {
		addr, err := m.Schedule(h)
		require.NoError(t, err)
		seen[addr] = true
	}
	assert.False(t, seen[b], "jailed validator must never be scheduled")
	assert.True(t, seen[a])
	assert.True(t, seen[c])
}

func TestSchedule_NoActiveValidatorsReturnsError(t *testing.T) {
	v, _ := twoValidators(t)
	m := New([]crypto.Address{v})
	now := time.Unix(1_700_000_000, 0)
	for i := uint64(0); i < 10; i++ {
		_, _, err := m.RecordOffence(v, DoubleSign, i, []byte{byte(i)}, now)
		require.NoError(t, err)
	}
	_, err := m.Schedule(0)
	assert.Error(t, err)
}

func TestRecordOffence_UnregisteredValidatorErrors(t *testing.T) {
	registered, _ := twoValidators(t)
	_, stranger, err := crypto.GenerateKey()
	require.NoError(t, err)
	m := New([]crypto.Address{registered})
	_, _, err = m.RecordOffence(stranger, WrongTurn, 1, nil, time.Unix(0, 0))
	assert.Error(t, err)
}
