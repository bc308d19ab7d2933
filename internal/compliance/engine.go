package compliance

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"custos/internal/platform/metrics"
	"custos/pkg/domain"
	"custos/pkg/platform/sentinel"
)

// Clock is injected for testability; defaults to time.Now.
type Clock func() time.Time

// Engine evaluates transfer policy and maintains settlement bookkeeping.
// CanTransfer is a pure read; the settlement notifications are the only
// mutations and accept them solely from the bound ledger. With no
// BalanceReader bound, balance-dependent checks read as unlimited.
type Engine struct {
	mu sync.RWMutex

	limits          Limits
	restricted      map[domain.CountryCode]bool
	maxHolders      map[domain.CountryCode]uint64
	holderCounts    map[domain.CountryCode]uint64
	holders         map[domain.Address]HolderState
	mintedByCountry map[domain.CountryCode]uint64
	burnedByCountry map[domain.CountryCode]uint64
	mintOps         map[domain.CountryCode]uint64
	burnOps         map[domain.CountryCode]uint64
	mintedByHolder  map[domain.Address]uint64
	burnedByHolder  map[domain.Address]uint64

	boundToken domain.Address
	balances   BalanceReader

	counters    CounterStore
	countries   CountryReader
	clock       Clock
	dayWindow   time.Duration
	monthWindow time.Duration
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithClock sets the clock function for testability.
func WithClock(clock Clock) EngineOption {
	return func(e *Engine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// WithWindows overrides the fixed window lengths.
func WithWindows(day, month time.Duration) EngineOption {
	return func(e *Engine) {
		e.dayWindow = day
		e.monthWindow = month
	}
}

// WithMetrics attaches decision metrics.
func WithMetrics(m *metrics.Metrics) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

func NewEngine(counters CounterStore, countries CountryReader, logger *slog.Logger, opts ...EngineOption) *Engine {
	e := &Engine{
		restricted:      make(map[domain.CountryCode]bool),
		maxHolders:      make(map[domain.CountryCode]uint64),
		holderCounts:    make(map[domain.CountryCode]uint64),
		holders:         make(map[domain.Address]HolderState),
		mintedByCountry: make(map[domain.CountryCode]uint64),
		burnedByCountry: make(map[domain.CountryCode]uint64),
		mintOps:         make(map[domain.CountryCode]uint64),
		burnOps:         make(map[domain.CountryCode]uint64),
		mintedByHolder:  make(map[domain.Address]uint64),
		burnedByHolder:  make(map[domain.Address]uint64),
		counters:        counters,
		countries:       countries,
		clock:           time.Now,
		dayWindow:       24 * time.Hour,
		monthWindow:     30 * 24 * time.Hour,
		logger:          logger,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// CanTransfer decides whether moving amount from -> to would violate policy.
// A zero from means minting, a zero to means burning; burning is always
// allowed. Pure read, safe to call speculatively.
func (e *Engine) CanTransfer(ctx context.Context, from, to domain.Address, amount uint64) (Decision, error) {
	decision, err := e.canTransfer(ctx, from, to, amount)
	if err != nil {
		return Decision{}, err
	}
	if e.metrics != nil {
		e.metrics.ComplianceDecisions.WithLabelValues(string(decision.Reason)).Inc()
	}
	return decision, nil
}

// canTransfer gathers the external inputs (jurisdictions, rolling counters,
// the recipient balance) before taking the read lock, so a slow ledger or
// store round-trip never stalls settlement notifications queued behind the
// write lock. The checks themselves run against the limits in force when
// the evaluation started.
func (e *Engine) canTransfer(ctx context.Context, from, to domain.Address, amount uint64) (Decision, error) {
	if to == domain.ZeroAddress {
		return allow(ReasonBurnAllowed), nil
	}
	now := e.clock()

	e.mu.RLock()
	limits := e.limits
	balances := e.balances
	e.mu.RUnlock()

	toCountry, err := e.countries.CountryOf(ctx, to)
	if err != nil {
		return Decision{}, err
	}

	var fromCountry domain.CountryCode
	var daily, monthly uint64
	if from != domain.ZeroAddress {
		if fromCountry, err = e.countries.CountryOf(ctx, from); err != nil {
			return Decision{}, err
		}
		rec, err := e.counters.Record(ctx, from)
		if err != nil {
			return Decision{}, err
		}
		daily, monthly = rec.Effective(now)
	}

	var balance uint64
	readBalance := limits.MaxBalance > 0 && balances != nil
	if readBalance {
		if balance, err = balances.BalanceOf(ctx, to); err != nil {
			return Decision{}, err
		}
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.restricted[toCountry] {
		return reject(ReasonCountryRestricted), nil
	}

	if from != domain.ZeroAddress {
		if e.restricted[fromCountry] {
			return reject(ReasonCountryRestricted), nil
		}

		if limits.MinHoldingPeriod > 0 {
			if last := e.holders[from].LastReceivedAt; !last.IsZero() && now.Before(last.Add(limits.MinHoldingPeriod)) {
				return reject(ReasonHoldingPeriod), nil
			}
		}

		if limits.DailyLimit > 0 && (addOverflows(daily, amount) || daily+amount > limits.DailyLimit) {
			return reject(ReasonDailyLimit), nil
		}
		if limits.MonthlyLimit > 0 && (addOverflows(monthly, amount) || monthly+amount > limits.MonthlyLimit) {
			return reject(ReasonMonthlyLimit), nil
		}
	}

	if readBalance && (addOverflows(balance, amount) || balance+amount > limits.MaxBalance) {
		return reject(ReasonMaxBalance), nil
	}

	// Existing holders are exempt from the jurisdiction holder cap.
	if cap := e.maxHolders[toCountry]; cap > 0 && !e.holders[to].IsHolder {
		if e.holderCounts[toCountry] >= cap {
			return reject(ReasonHolderCap), nil
		}
	}

	return allow(ReasonOK), nil
}

// Transferred records a settled transfer: the sender's rolling counters, the
// recipient's last-receive time and both parties' holder flags. Every
// fallible lookup is resolved before the first write, so a failed balance or
// country read leaves the settlement unrecorded rather than half-applied.
func (e *Engine) Transferred(ctx context.Context, caller, from, to domain.Address, amount uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireBoundLocked(caller); err != nil {
		return err
	}
	now := e.clock()

	var clearFrom, markTo bool
	var fromCountry, toCountry domain.CountryCode
	if from != domain.ZeroAddress {
		var err error
		if clearFrom, err = e.holderClearNeededLocked(ctx, from); err != nil {
			return err
		}
		if clearFrom {
			if fromCountry, err = e.countries.CountryOf(ctx, from); err != nil {
				return err
			}
		}
	}
	if to != domain.ZeroAddress && amount > 0 && !e.holders[to].IsHolder {
		markTo = true
		var err error
		if toCountry, err = e.countries.CountryOf(ctx, to); err != nil {
			return err
		}
	}

	if from != domain.ZeroAddress {
		if _, err := e.counters.Apply(ctx, from, amount, now, e.dayWindow, e.monthWindow); err != nil {
			return err
		}
		if clearFrom {
			e.clearHolderLocked(from, fromCountry)
		}
	}
	if to != domain.ZeroAddress {
		state := e.holders[to]
		state.LastReceivedAt = now
		e.holders[to] = state
		if markTo {
			e.setHolderLocked(to, toCountry)
		}
	}
	if e.metrics != nil {
		e.metrics.Settlements.WithLabelValues("transferred").Inc()
	}
	e.logger.InfoContext(ctx, "transfer settled",
		"from", from.Hex(), "to", to.Hex(), "amount", amount)
	return nil
}

// Created records a settled mint.
func (e *Engine) Created(ctx context.Context, caller, to domain.Address, amount uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireBoundLocked(caller); err != nil {
		return err
	}
	country, err := e.countries.CountryOf(ctx, to)
	if err != nil {
		return err
	}
	markTo := amount > 0 && !e.holders[to].IsHolder

	e.mintedByHolder[to] = saturatingAdd(e.mintedByHolder[to], amount)
	e.mintedByCountry[country] = saturatingAdd(e.mintedByCountry[country], amount)
	e.mintOps[country]++

	state := e.holders[to]
	state.LastReceivedAt = e.clock()
	e.holders[to] = state
	if markTo {
		e.setHolderLocked(to, country)
	}
	if e.metrics != nil {
		e.metrics.Settlements.WithLabelValues("created").Inc()
	}
	e.logger.InfoContext(ctx, "mint settled", "to", to.Hex(), "amount", amount)
	return nil
}

// Destroyed records a settled burn.
func (e *Engine) Destroyed(ctx context.Context, caller, from domain.Address, amount uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireBoundLocked(caller); err != nil {
		return err
	}
	country, err := e.countries.CountryOf(ctx, from)
	if err != nil {
		return err
	}
	clearFrom, err := e.holderClearNeededLocked(ctx, from)
	if err != nil {
		return err
	}

	e.burnedByHolder[from] = saturatingAdd(e.burnedByHolder[from], amount)
	e.burnedByCountry[country] = saturatingAdd(e.burnedByCountry[country], amount)
	e.burnOps[country]++

	if clearFrom {
		e.clearHolderLocked(from, country)
	}
	if e.metrics != nil {
		e.metrics.Settlements.WithLabelValues("destroyed").Inc()
	}
	e.logger.InfoContext(ctx, "burn settled", "from", from.Hex(), "amount", amount)
	return nil
}

// SetLimits replaces the global policy. Takes effect on the next decision.
func (e *Engine) SetLimits(ctx context.Context, limits Limits) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.limits = limits
	e.logger.InfoContext(ctx, "compliance limits updated",
		"daily", limits.DailyLimit, "monthly", limits.MonthlyLimit,
		"max_balance", limits.MaxBalance, "min_holding_period", limits.MinHoldingPeriod)
}

// GetLimits returns the current global policy.
func (e *Engine) GetLimits(context.Context) Limits {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.limits
}

// SetCountryRestriction freezes or unfreezes a jurisdiction.
func (e *Engine) SetCountryRestriction(ctx context.Context, country domain.CountryCode, restricted bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if restricted {
		e.restricted[country] = true
	} else {
		delete(e.restricted, country)
	}
	e.logger.InfoContext(ctx, "country restriction updated", "country", country, "restricted", restricted)
}

// SetMaxHoldersPerCountry caps how many holders a jurisdiction may have.
// Zero removes the cap.
func (e *Engine) SetMaxHoldersPerCountry(ctx context.Context, country domain.CountryCode, cap uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if cap == 0 {
		delete(e.maxHolders, country)
	} else {
		e.maxHolders[country] = cap
	}
	e.logger.InfoContext(ctx, "holder cap updated", "country", country, "cap", cap)
}

// BindToken designates the single ledger allowed to report settlements, and
// the balance source for balance-dependent checks.
func (e *Engine) BindToken(ctx context.Context, token domain.Address, balances BalanceReader) error {
	if token == domain.ZeroAddress {
		return fmt.Errorf("token address required: %w", sentinel.ErrInvalidArgument)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.boundToken = token
	e.balances = balances
	e.logger.InfoContext(ctx, "token bound", "token", token.Hex())
	return nil
}

// HolderInfo returns a holder's bookkeeping state.
func (e *Engine) HolderInfo(_ context.Context, holder domain.Address) HolderState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.holders[holder]
}

// StatsFor returns the aggregates for a jurisdiction.
func (e *Engine) StatsFor(_ context.Context, country domain.CountryCode) JurisdictionStats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return JurisdictionStats{
		Holders: e.holderCounts[country],
		Minted:  e.mintedByCountry[country],
		Burned:  e.burnedByCountry[country],
		MintOps: e.mintOps[country],
		BurnOps: e.burnOps[country],
	}
}

func (e *Engine) requireBoundLocked(caller domain.Address) error {
	if e.boundToken == domain.ZeroAddress {
		return fmt.Errorf("no token bound: %w", sentinel.ErrUnauthorized)
	}
	if caller != e.boundToken {
		return fmt.Errorf("caller %s is not the bound token: %w", caller.Hex(), sentinel.ErrUnauthorized)
	}
	return nil
}

// holderClearNeededLocked reports whether a flagged holder's settled balance
// reached zero. Requires a bound balance reader; without one the flag is
// left as-is. Read-only: the flag itself is cleared by clearHolderLocked
// once the settlement's writes begin.
func (e *Engine) holderClearNeededLocked(ctx context.Context, holder domain.Address) (bool, error) {
	if e.balances == nil || !e.holders[holder].IsHolder {
		return false, nil
	}
	balance, err := e.balances.BalanceOf(ctx, holder)
	if err != nil {
		return false, err
	}
	return balance == 0, nil
}

// setHolderLocked flags a new holder and counts it against its jurisdiction.
// Infallible on purpose: callers resolve the country before writing.
func (e *Engine) setHolderLocked(holder domain.Address, country domain.CountryCode) {
	state := e.holders[holder]
	state.IsHolder = true
	e.holders[holder] = state
	e.holderCounts[country]++
}

// clearHolderLocked drops the holder flag and its jurisdiction count.
func (e *Engine) clearHolderLocked(holder domain.Address, country domain.CountryCode) {
	state := e.holders[holder]
	state.IsHolder = false
	e.holders[holder] = state
	if e.holderCounts[country] > 0 {
		e.holderCounts[country]--
	}
}
