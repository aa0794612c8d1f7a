package vault

import "github.com/sheikh-saqib/custody-vault-ledger/internal/errors"

var (
	ErrNotInitialized     = errors.ErrState.Register(100, "not initialized")
	ErrAlreadyInitialized = errors.ErrState.Register(101, "already initialized")
	ErrVersion            = errors.ErrState.Register(102, "not supported by the active version")
	ErrNoRequest          = errors.ErrState.Register(103, "no withdrawal request")
	ErrDelayNotElapsed    = errors.ErrState.Register(104, "delay not passed")
	ErrRequestPending     = errors.ErrState.Register(105, "withdrawal request pending")
	ErrReentrant          = errors.ErrState.Register(106, "reentrant call")

	ErrInsufficientBalance = errors.ErrInput.Register(120, "insufficient balance")
	ErrInvalidAmount       = errors.ErrInput.Register(121, "invalid amount")
	ErrInvalidBasisPoints  = errors.ErrInput.Register(122, "basis points out of range")

	ErrDepositsPaused = errors.ErrPolicy.Register(140, "deposits paused")
)
