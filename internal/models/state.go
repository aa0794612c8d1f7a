package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Version is the schema and behaviour version of a vault.
type Version uint32

const (
	// V1 is the base vault: deposits with a fee and withdrawals.
	V1 Version = 1
	// V2 adds yield accrual and the deposit pause switch.
	V2 Version = 2
	// V3 adds queued withdrawals and the emergency exit.
	V3 Version = 3

	// LatestVersion is the highest version this code can run.
	LatestVersion = V3
)

// MaxBasisPoints is the upper bound of every basis point setting.
const MaxBasisPoints = 10000

// ConfigV1 holds the fields introduced by the first version.
type ConfigV1 struct {
	AssetRef      Address
	Admin         Address
	DepositFeeBp  uint32
	TotalDeposits decimal.Decimal
}

// ConfigV2 holds the fields introduced by the second version.
type ConfigV2 struct {
	DepositsPaused bool
	YieldRateBp    uint32
}

// ConfigV3 holds the fields introduced by the third version.
type ConfigV3 struct {
	WithdrawalDelay time.Duration
}

// State is the single persistent vault record.
//
// Fields added by a version live in that version's sub-record only. A
// sub-record is nil until the migration that introduces it has run, so later
// versions never reuse or reinterpret fields of earlier ones.
type State struct {
	// Version is the active implementation.
	Version Version
	// Initialized is the highest version whose one-shot initializer ran.
	Initialized Version

	V1 ConfigV1
	V2 *ConfigV2
	V3 *ConfigV3
}

// Clone returns a deep copy of the state.
func (s *State) Clone() *State {
	c := *s
	if s.V2 != nil {
		v2 := *s.V2
		c.V2 = &v2
	}
	if s.V3 != nil {
		v3 := *s.V3
		c.V3 = &v3
	}
	return &c
}

// Validate checks the structural invariants of the state.
func (s *State) Validate() error {
	if s.Version < V1 || s.Version > LatestVersion {
		return fmt.Errorf("unknown version %d", s.Version)
	}
	if s.Initialized > s.Version {
		return fmt.Errorf("initialized version %d ahead of active version %d", s.Initialized, s.Version)
	}
	if s.Initialized+1 < s.Version {
		return fmt.Errorf("version %d active while only version %d is initialized", s.Version, s.Initialized)
	}
	if s.V1.Admin == "" {
		return fmt.Errorf("admin is required")
	}
	if s.V1.AssetRef == "" {
		return fmt.Errorf("asset is required")
	}
	if s.V1.DepositFeeBp > MaxBasisPoints {
		return fmt.Errorf("deposit fee %d out of range", s.V1.DepositFeeBp)
	}
	if s.V1.TotalDeposits.IsNegative() {
		return fmt.Errorf("negative total deposits")
	}
	if (s.V2 != nil) != (s.Version >= V2) {
		return fmt.Errorf("version %d state does not match version 2 fields", s.Version)
	}
	if s.V2 != nil && s.V2.YieldRateBp > MaxBasisPoints {
		return fmt.Errorf("yield rate %d out of range", s.V2.YieldRateBp)
	}
	if (s.V3 != nil) != (s.Version >= V3) {
		return fmt.Errorf("version %d state does not match version 3 fields", s.Version)
	}
	if s.V3 != nil && s.V3.WithdrawalDelay < 0 {
		return fmt.Errorf("negative withdrawal delay")
	}
	return nil
}
