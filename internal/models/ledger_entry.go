package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// EntryKind classifies a ledger entry.
type EntryKind string

const (
	EntryDeposit    EntryKind = "deposit"
	EntryFee        EntryKind = "fee"
	EntryWithdrawal EntryKind = "withdrawal"
	EntryYield      EntryKind = "yield"
	EntryEmergency  EntryKind = "emergency_withdrawal"
)

// LedgerEntry represents a single balance change of an account. Entries are
// append only: the sum of the amounts of an owner's entries is its balance.
// Fee entries are booked on the vault custody account.
type LedgerEntry struct {
	ID        string          `json:"id"`         // unique identifier
	AccountID Address         `json:"account_id"` // which account this entry belongs to
	Kind      EntryKind       `json:"kind"`       // what caused the change
	Amount    decimal.Decimal `json:"amount"`     // base units, positive credits, negative debits
	CreatedAt time.Time       `json:"created_at"` // timestamp
}
