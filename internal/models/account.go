package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Address identifies a caller or an account holder.
type Address string

func (a Address) String() string {
	return string(a)
}

// Account is the custody balance of a single owner. It is created on first
// deposit and never deleted; a zero balance is a valid state.
type Account struct {
	Owner     Address
	Balance   decimal.Decimal
	CreatedAt time.Time
}

// YieldCheckpoint is the moment yield accrual of an owner is measured from.
// Checkpoints exist from version 2 on.
type YieldCheckpoint struct {
	Owner Address
	Since time.Time
}
