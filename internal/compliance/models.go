// Package compliance evaluates transfer policy (limits, freezes, jurisdiction
// caps) and keeps the settlement bookkeeping those policies read. The ledger
// asks CanTransfer before moving value and reports Transferred, Created and
// Destroyed exactly once after each settled operation.
package compliance

import (
	"context"
	"math"
	"time"

	"custos/pkg/domain"
)

// Limits is the global numeric policy. Zero disables the respective check.
type Limits struct {
	DailyLimit       uint64        `json:"daily_limit"`
	MonthlyLimit     uint64        `json:"monthly_limit"`
	MaxBalance       uint64        `json:"max_balance"`
	MinHoldingPeriod time.Duration `json:"min_holding_period"`
}

// TransferRecord is a holder's rolling outbound totals. Windows are fixed,
// not sliding: the total reads as zero the instant now reaches the reset
// time, and the transfer that reopens a window anchors the next boundary a
// full window ahead of itself.
type TransferRecord struct {
	DailyTotal     uint64
	DailyResetAt   time.Time
	MonthlyTotal   uint64
	MonthlyResetAt time.Time
}

// Effective returns the totals as seen at now; expired windows read as zero.
func (r TransferRecord) Effective(now time.Time) (daily, monthly uint64) {
	daily, monthly = r.DailyTotal, r.MonthlyTotal
	if !now.Before(r.DailyResetAt) {
		daily = 0
	}
	if !now.Before(r.MonthlyResetAt) {
		monthly = 0
	}
	return daily, monthly
}

// Apply accumulates amount into both windows, resetting any expired window
// first.
func (r *TransferRecord) Apply(amount uint64, now time.Time, dayWindow, monthWindow time.Duration) {
	if !now.Before(r.DailyResetAt) {
		r.DailyTotal = 0
		r.DailyResetAt = now.Add(dayWindow)
	}
	if !now.Before(r.MonthlyResetAt) {
		r.MonthlyTotal = 0
		r.MonthlyResetAt = now.Add(monthWindow)
	}
	r.DailyTotal = saturatingAdd(r.DailyTotal, amount)
	r.MonthlyTotal = saturatingAdd(r.MonthlyTotal, amount)
}

// HolderState is per-holder bookkeeping consulted by the policy checks.
type HolderState struct {
	IsHolder       bool
	LastReceivedAt time.Time
}

// JurisdictionStats are the per-country aggregates maintained on settlement.
type JurisdictionStats struct {
	Holders uint64 `json:"holders"`
	Minted  uint64 `json:"minted"`
	Burned  uint64 `json:"burned"`
	MintOps uint64 `json:"mint_ops"`
	BurnOps uint64 `json:"burn_ops"`
}

// Reason explains a compliance decision.
type Reason string

const (
	ReasonOK                Reason = "ok"
	ReasonBurnAllowed       Reason = "burn_always_allowed"
	ReasonCountryRestricted Reason = "country_restricted"
	ReasonHoldingPeriod     Reason = "holding_period_active"
	ReasonDailyLimit        Reason = "daily_limit_exceeded"
	ReasonMonthlyLimit      Reason = "monthly_limit_exceeded"
	ReasonMaxBalance        Reason = "max_balance_exceeded"
	ReasonHolderCap         Reason = "holder_cap_reached"
)

// Decision is the advisory answer the ledger acts on. Policy violations are
// decisions, not errors.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  Reason `json:"reason"`
}

func allow(reason Reason) Decision  { return Decision{Allowed: true, Reason: reason} }
func reject(reason Reason) Decision { return Decision{Allowed: false, Reason: reason} }

// BalanceReader is the ledger-side balance lookup consulted for max-balance
// and holder-flag bookkeeping. The post-state must already be committed when
// settlement notifications arrive.
type BalanceReader interface {
	BalanceOf(ctx context.Context, holder domain.Address) (uint64, error)
}

// CountryReader resolves a holder's jurisdiction; implemented by the identity
// storage. Unregistered holders resolve to country zero.
type CountryReader interface {
	CountryOf(ctx context.Context, holder domain.Address) (domain.CountryCode, error)
}

// saturatingAdd clamps instead of wrapping; a saturated total can only make
// limit checks stricter, never leak headroom.
func saturatingAdd(a, b uint64) uint64 {
	if a > math.MaxUint64-b {
		return math.MaxUint64
	}
	return a + b
}

// addOverflows reports whether a+b would wrap.
func addOverflows(a, b uint64) bool {
	return a > math.MaxUint64-b
}
