package events

import (
	"time"

	"github.com/shopspring/decimal"
)

// Type names a vault event.
type Type string

const (
	Initialized         Type = "initialized"
	Upgraded            Type = "upgraded"
	Deposited           Type = "deposited"
	Withdrawn           Type = "withdrawn"
	YieldClaimed        Type = "yield_claimed"
	WithdrawalRequested Type = "withdrawal_requested"
	WithdrawalExecuted  Type = "withdrawal_executed"
	EmergencyWithdrawn  Type = "emergency_withdrawn"
	DepositFeeChanged   Type = "deposit_fee_changed"
	YieldRateChanged    Type = "yield_rate_changed"
	DepositsPaused      Type = "deposits_paused"
	DepositsResumed     Type = "deposits_resumed"
	WithdrawalDelaySet  Type = "withdrawal_delay_set"
)

// VaultEvent is published after a vault operation has been committed.
type VaultEvent struct {
	ID         string          `json:"id"`
	Type       Type            `json:"type"`
	Caller     string          `json:"caller"`
	Owner      string          `json:"owner,omitempty"`
	Amount     decimal.Decimal `json:"amount"`
	Fee        decimal.Decimal `json:"fee"`
	Value      uint64          `json:"value,omitempty"` // basis points, seconds or version
	Version    uint32          `json:"version"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// PartitionKey keeps the events of an owner ordered on a single partition.
func (e VaultEvent) PartitionKey() string {
	if e.Owner != "" {
		return e.Owner
	}
	return e.Caller
}
