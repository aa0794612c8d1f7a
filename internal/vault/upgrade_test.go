package vault

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sheikh-saqib/custody-vault-ledger/internal/errors"
	"github.com/sheikh-saqib/custody-vault-ledger/internal/models"
	"github.com/sheikh-saqib/custody-vault-ledger/internal/models/events"
)

func TestUpgradePreservesState(t *testing.T) {
	f := initialized(t)
	require.NoError(t, f.vault.Deposit(f.ctx, alice, dec(100)))

	require.NoError(t, f.vault.Upgrade(f.ctx, admin, models.V2))
	assertDec(t, 95, f.balance(t, alice))
	assertDec(t, 95, f.total(t))
	fee, err := f.vault.GetDepositFee(f.ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 500, fee)

	require.NoError(t, f.vault.InitializeV2(f.ctx, admin, 1000))
	require.NoError(t, f.vault.Upgrade(f.ctx, admin, models.V3))
	require.NoError(t, f.vault.InitializeV3(f.ctx, admin, time.Hour))
	assertDec(t, 95, f.balance(t, alice))
	assertDec(t, 95, f.total(t))

	st, err := f.vault.State(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, models.V3, st.Version)
	assert.Equal(t, models.V3, st.Initialized)
	assert.EqualValues(t, 500, st.V1.DepositFeeBp)
	assert.EqualValues(t, 1000, st.V2.YieldRateBp)
	assert.Equal(t, time.Hour, st.V3.WithdrawalDelay)

	// Version 1 behaviour keeps working after the upgrades.
	require.NoError(t, f.vault.Deposit(f.ctx, alice, dec(200)))
	assertDec(t, 95+190, f.balance(t, alice))
	require.NoError(t, f.vault.Withdraw(f.ctx, alice, dec(85)))
	assertDec(t, 200, f.balance(t, alice))
}

func TestUpgradeOrdering(t *testing.T) {
	f := initialized(t)

	err := f.vault.Upgrade(f.ctx, admin, models.V3)
	assert.True(t, ErrVersion.Is(err), "versions cannot be skipped")
	err = f.vault.Upgrade(f.ctx, admin, models.V1)
	assert.True(t, ErrVersion.Is(err))

	err = f.vault.InitializeV2(f.ctx, admin, 100)
	assert.True(t, ErrVersion.Is(err), "version 2 is not active yet")

	require.NoError(t, f.vault.Upgrade(f.ctx, admin, models.V2))
	err = f.vault.Upgrade(f.ctx, admin, models.V2)
	assert.True(t, ErrVersion.Is(err), "upgrade cannot be repeated")

	err = f.vault.Upgrade(f.ctx, admin, models.V3)
	assert.True(t, ErrNotInitialized.Is(err), "version 2 must be initialized first")

	active, init, err := f.vault.Version(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, models.V2, active)
	assert.Equal(t, models.V1, init)

	require.NoError(t, f.vault.InitializeV2(f.ctx, admin, 100))
	err = f.vault.InitializeV2(f.ctx, admin, 100)
	assert.True(t, ErrAlreadyInitialized.Is(err))

	require.NoError(t, f.vault.Upgrade(f.ctx, admin, models.V3))
	require.NoError(t, f.vault.InitializeV3(f.ctx, admin, time.Minute))
	err = f.vault.InitializeV3(f.ctx, admin, time.Minute)
	assert.True(t, ErrAlreadyInitialized.Is(err))

	err = f.vault.Upgrade(f.ctx, admin, models.LatestVersion+1)
	assert.True(t, ErrVersion.Is(err))
}

func TestAdminOnlyOperations(t *testing.T) {
	f := initialized(t)

	assert.True(t, errors.ErrUnauthorized.Is(f.vault.Upgrade(f.ctx, alice, models.V2)))
	require.NoError(t, f.vault.Upgrade(f.ctx, admin, models.V2))
	assert.True(t, errors.ErrUnauthorized.Is(f.vault.InitializeV2(f.ctx, alice, 100)))
	require.NoError(t, f.vault.InitializeV2(f.ctx, admin, 100))

	assert.True(t, errors.ErrUnauthorized.Is(f.vault.SetYieldRate(f.ctx, alice, 1)))
	assert.True(t, errors.ErrUnauthorized.Is(f.vault.PauseDeposits(f.ctx, alice)))
	assert.True(t, errors.ErrUnauthorized.Is(f.vault.ResumeDeposits(f.ctx, alice)))

	require.NoError(t, f.vault.Upgrade(f.ctx, admin, models.V3))
	assert.True(t, errors.ErrUnauthorized.Is(f.vault.InitializeV3(f.ctx, alice, 0)))
	require.NoError(t, f.vault.InitializeV3(f.ctx, admin, 0))
	assert.True(t, errors.ErrUnauthorized.Is(f.vault.SetWithdrawalDelay(f.ctx, alice, 0)))

	rate, err := f.vault.GetYieldRate(f.ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 100, rate)
}

func TestVersionGatedOperations(t *testing.T) {
	f := initialized(t)

	_, err := f.vault.GetUserYield(f.ctx, alice)
	assert.True(t, ErrVersion.Is(err))
	assert.True(t, ErrVersion.Is(f.vault.PauseDeposits(f.ctx, admin)))
	assert.True(t, ErrVersion.Is(f.vault.RequestWithdrawal(f.ctx, alice, dec(1))))
	assert.True(t, ErrVersion.Is(f.vault.EmergencyWithdraw(f.ctx, alice)))
	_, err = f.vault.GetWithdrawalDelay(f.ctx)
	assert.True(t, ErrVersion.Is(err))
}

func TestUpgradeStartsYieldForExistingAccounts(t *testing.T) {
	f := initialized(t)
	require.NoError(t, f.vault.Deposit(f.ctx, alice, dec(1000)))

	// Time spent on version 1 never earns yield.
	f.clock.Advance(365 * 24 * time.Hour)
	require.NoError(t, f.vault.Upgrade(f.ctx, admin, models.V2))
	require.NoError(t, f.vault.InitializeV2(f.ctx, admin, 1000))

	y, err := f.vault.GetUserYield(f.ctx, alice)
	require.NoError(t, err)
	assertDec(t, 0, y)

	f.clock.Advance(365 * 24 * time.Hour)
	y, err = f.vault.GetUserYield(f.ctx, alice)
	require.NoError(t, err)
	assertDec(t, 95, y)
}

func TestYieldStartsAtInitializationNotUpgrade(t *testing.T) {
	f := initialized(t)
	require.NoError(t, f.vault.Deposit(f.ctx, alice, dec(1000)))
	require.NoError(t, f.vault.Upgrade(f.ctx, admin, models.V2))

	f.clock.Advance(180 * 24 * time.Hour)
	require.NoError(t, f.vault.InitializeV2(f.ctx, admin, 1000))
	y, err := f.vault.GetUserYield(f.ctx, alice)
	require.NoError(t, err)
	assertDec(t, 0, y)
	assertDec(t, 950, f.balance(t, alice))

	f.clock.Advance(365 * 24 * time.Hour)
	y, err = f.vault.GetUserYield(f.ctx, alice)
	require.NoError(t, err)
	assertDec(t, 95, y)
}

func TestUpgradeIsPublished(t *testing.T) {
	f := initialized(t)
	require.NoError(t, f.vault.Upgrade(f.ctx, admin, models.V2))

	msgs := f.publisher.Messages()
	e := msgs[len(msgs)-1].Event.(events.VaultEvent)
	assert.Equal(t, events.Upgraded, e.Type)
	assert.EqualValues(t, 2, e.Value)
	assert.EqualValues(t, 2, e.Version)
	assert.Equal(t, admin.String(), e.Caller)
}
