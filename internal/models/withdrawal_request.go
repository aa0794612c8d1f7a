package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// WithdrawalRequest is a queued withdrawal. An owner has at most one.
type WithdrawalRequest struct {
	Owner       Address         `json:"owner"`
	Amount      decimal.Decimal `json:"amount"`
	RequestedAt time.Time       `json:"requested_at"`
}

// ReadyAt returns the earliest time the request can be executed.
func (r *WithdrawalRequest) ReadyAt(delay time.Duration) time.Time {
	return r.RequestedAt.Add(delay)
}
