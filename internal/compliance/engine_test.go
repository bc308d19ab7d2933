package compliance

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"custos/pkg/domain"
	"custos/pkg/platform/sentinel"
)

const (
	countryUS = domain.CountryCode(840)
	countryDE = domain.CountryCode(276)
)

// fakeCountries maps holders to jurisdictions; unknown holders resolve to
// country zero like unregistered addresses do.
type fakeCountries map[domain.Address]domain.CountryCode

func (f fakeCountries) CountryOf(_ context.Context, holder domain.Address) (domain.CountryCode, error) {
	return f[holder], nil
}

// fakeLedger is the bound token: a balance book the engine consults.
type fakeLedger map[domain.Address]uint64

func (f fakeLedger) BalanceOf(_ context.Context, holder domain.Address) (uint64, error) {
	return f[holder], nil
}

type EngineSuite struct {
	suite.Suite
	ctx       context.Context
	engine    *Engine
	countries fakeCountries
	ledger    fakeLedger
	now       time.Time

	token domain.Address
	alice domain.Address
	bob   domain.Address
	carol domain.Address
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func (s *EngineSuite) SetupTest() {
	s.ctx = context.Background()
	s.now = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	s.token = domain.Address{0xF0}
	s.alice = domain.Address{0xA1}
	s.bob = domain.Address{0xB2}
	s.carol = domain.Address{0xC3}

	s.countries = fakeCountries{s.alice: countryUS, s.bob: countryUS, s.carol: countryDE}
	s.ledger = fakeLedger{}

	s.engine = NewEngine(NewInMemoryCounterStore(), s.countries, slog.New(slog.DiscardHandler),
		WithClock(func() time.Time { return s.now }))
	s.Require().NoError(s.engine.BindToken(s.ctx, s.token, s.ledger))
}

func (s *EngineSuite) decide(from, to domain.Address, amount uint64) Decision {
	d, err := s.engine.CanTransfer(s.ctx, from, to, amount)
	s.Require().NoError(err)
	return d
}

// settle mirrors the ledger contract: update balances first, then notify.
func (s *EngineSuite) settle(from, to domain.Address, amount uint64) {
	switch {
	case from == domain.ZeroAddress:
		s.ledger[to] += amount
		s.Require().NoError(s.engine.Created(s.ctx, s.token, to, amount))
	case to == domain.ZeroAddress:
		s.ledger[from] -= amount
		s.Require().NoError(s.engine.Destroyed(s.ctx, s.token, from, amount))
	default:
		s.ledger[from] -= amount
		s.ledger[to] += amount
		s.Require().NoError(s.engine.Transferred(s.ctx, s.token, from, to, amount))
	}
}

func (s *EngineSuite) TestBurnAlwaysAllowed() {
	s.engine.SetLimits(s.ctx, Limits{DailyLimit: 1, MinHoldingPeriod: time.Hour})
	s.engine.SetCountryRestriction(s.ctx, countryUS, true)

	d := s.decide(s.alice, domain.ZeroAddress, 1_000_000)
	s.True(d.Allowed)
	s.Equal(ReasonBurnAllowed, d.Reason)
}

func (s *EngineSuite) TestCountryRestriction() {
	s.engine.SetCountryRestriction(s.ctx, countryDE, true)

	s.Run("restricted recipient rejected", func() {
		d := s.decide(s.alice, s.carol, 10)
		s.False(d.Allowed)
		s.Equal(ReasonCountryRestricted, d.Reason)
	})

	s.Run("restricted sender rejected", func() {
		d := s.decide(s.carol, s.alice, 10)
		s.False(d.Allowed)
		s.Equal(ReasonCountryRestricted, d.Reason)
	})

	s.Run("minting into a restricted country rejected", func() {
		d := s.decide(domain.ZeroAddress, s.carol, 10)
		s.False(d.Allowed)
	})

	s.Run("lifting the restriction allows again", func() {
		s.engine.SetCountryRestriction(s.ctx, countryDE, false)
		s.True(s.decide(s.alice, s.carol, 10).Allowed)
	})
}

func (s *EngineSuite) TestDailyLimitFixedWindow() {
	s.engine.SetLimits(s.ctx, Limits{DailyLimit: 1000})
	s.settle(domain.ZeroAddress, s.alice, 5000)

	s.True(s.decide(s.alice, s.bob, 600).Allowed)
	s.settle(s.alice, s.bob, 600)

	s.Run("second transfer in the window exceeding the cap rejected", func() {
		d := s.decide(s.alice, s.bob, 500)
		s.False(d.Allowed)
		s.Equal(ReasonDailyLimit, d.Reason)
	})

	s.Run("exactly reaching the cap allowed", func() {
		s.True(s.decide(s.alice, s.bob, 400).Allowed)
	})

	s.Run("after the window boundary the total resets", func() {
		s.now = s.now.Add(24 * time.Hour)
		s.True(s.decide(s.alice, s.bob, 500).Allowed)
		s.settle(s.alice, s.bob, 500)

		d := s.decide(s.alice, s.bob, 501)
		s.False(d.Allowed)
		s.Equal(ReasonDailyLimit, d.Reason)
	})
}

func (s *EngineSuite) TestMonthlyLimit() {
	s.engine.SetLimits(s.ctx, Limits{MonthlyLimit: 2000})
	s.settle(domain.ZeroAddress, s.alice, 5000)

	s.settle(s.alice, s.bob, 1500)
	s.now = s.now.Add(5 * 24 * time.Hour) // past the daily boundary, inside the monthly

	d := s.decide(s.alice, s.bob, 600)
	s.False(d.Allowed)
	s.Equal(ReasonMonthlyLimit, d.Reason)

	s.now = s.now.Add(30 * 24 * time.Hour)
	s.True(s.decide(s.alice, s.bob, 600).Allowed)
}

func (s *EngineSuite) TestMinHoldingPeriod() {
	s.engine.SetLimits(s.ctx, Limits{MinHoldingPeriod: 48 * time.Hour})
	s.settle(domain.ZeroAddress, s.alice, 100)

	d := s.decide(s.alice, s.bob, 10)
	s.False(d.Allowed)
	s.Equal(ReasonHoldingPeriod, d.Reason)

	s.now = s.now.Add(48 * time.Hour)
	s.True(s.decide(s.alice, s.bob, 10).Allowed)
}

func (s *EngineSuite) TestMaxBalance() {
	s.engine.SetLimits(s.ctx, Limits{MaxBalance: 1000})
	s.settle(domain.ZeroAddress, s.bob, 800)

	d := s.decide(s.alice, s.bob, 300)
	s.False(d.Allowed)
	s.Equal(ReasonMaxBalance, d.Reason)

	s.True(s.decide(s.alice, s.bob, 200).Allowed, "reaching the cap exactly is allowed")
	s.True(s.decide(domain.ZeroAddress, s.carol, 1000).Allowed, "mint up to the cap allowed")
	s.False(s.decide(domain.ZeroAddress, s.bob, 201).Allowed, "mints are subject to the cap too")
}

func (s *EngineSuite) TestHolderCapBoundary() {
	s.engine.SetMaxHoldersPerCountry(s.ctx, countryUS, 2)

	// First and second US holders accepted.
	s.True(s.decide(domain.ZeroAddress, s.alice, 10).Allowed)
	s.settle(domain.ZeroAddress, s.alice, 10)
	s.True(s.decide(domain.ZeroAddress, s.bob, 10).Allowed)
	s.settle(domain.ZeroAddress, s.bob, 10)

	s.Run("cap+1-th new holder rejected", func() {
		dave := domain.Address{0xD4}
		s.countries[dave] = countryUS
		d := s.decide(s.alice, dave, 5)
		s.False(d.Allowed)
		s.Equal(ReasonHolderCap, d.Reason)
	})

	s.Run("existing holder exempt from the cap", func() {
		s.True(s.decide(s.alice, s.bob, 5).Allowed)
	})

	s.Run("other jurisdictions unaffected", func() {
		s.True(s.decide(s.alice, s.carol, 5).Allowed)
	})

	s.Run("burning a holder to zero frees a slot", func() {
		s.settle(s.bob, domain.ZeroAddress, 10)
		s.False(s.engine.HolderInfo(s.ctx, s.bob).IsHolder)

		dave := domain.Address{0xD4}
		s.countries[dave] = countryUS
		s.True(s.decide(s.alice, dave, 5).Allowed)
	})
}

func (s *EngineSuite) TestSettlementBookkeeping() {
	s.settle(domain.ZeroAddress, s.alice, 100)
	s.settle(domain.ZeroAddress, s.carol, 50)
	s.settle(s.alice, s.bob, 40)
	s.settle(s.carol, domain.ZeroAddress, 50)

	s.Run("jurisdiction aggregates", func() {
		us := s.engine.StatsFor(s.ctx, countryUS)
		s.Equal(uint64(100), us.Minted)
		s.Equal(uint64(1), us.MintOps)
		s.Equal(uint64(2), us.Holders) // alice and bob

		de := s.engine.StatsFor(s.ctx, countryDE)
		s.Equal(uint64(50), de.Minted)
		s.Equal(uint64(50), de.Burned)
		s.Equal(uint64(1), de.BurnOps)
		s.Equal(uint64(0), de.Holders, "carol burned to zero")
	})

	s.Run("holder state", func() {
		s.True(s.engine.HolderInfo(s.ctx, s.bob).IsHolder)
		s.Equal(s.now, s.engine.HolderInfo(s.ctx, s.bob).LastReceivedAt)
		s.False(s.engine.HolderInfo(s.ctx, s.carol).IsHolder)
	})
}

func (s *EngineSuite) TestBoundLedgerInvariant() {
	s.Run("unbound engine rejects notifications", func() {
		bare := NewEngine(NewInMemoryCounterStore(), s.countries, slog.New(slog.DiscardHandler))
		err := bare.Transferred(s.ctx, s.token, s.alice, s.bob, 1)
		s.Require().ErrorIs(err, sentinel.ErrUnauthorized)
	})

	s.Run("notification from a non-bound caller rejected", func() {
		imposter := domain.Address{0xEE}
		s.Require().ErrorIs(s.engine.Transferred(s.ctx, imposter, s.alice, s.bob, 1), sentinel.ErrUnauthorized)
		s.Require().ErrorIs(s.engine.Created(s.ctx, imposter, s.alice, 1), sentinel.ErrUnauthorized)
		s.Require().ErrorIs(s.engine.Destroyed(s.ctx, imposter, s.alice, 1), sentinel.ErrUnauthorized)
	})

	s.Run("binding a zero token rejected", func() {
		s.Require().ErrorIs(s.engine.BindToken(s.ctx, domain.ZeroAddress, s.ledger), sentinel.ErrInvalidArgument)
	})
}

func (s *EngineSuite) TestDecisionIsPure() {
	s.engine.SetLimits(s.ctx, Limits{DailyLimit: 1000})
	s.settle(domain.ZeroAddress, s.alice, 100)

	first := s.decide(s.alice, s.bob, 600)
	second := s.decide(s.alice, s.bob, 600)
	s.Equal(first, second)

	// Repeated checks must not consume limit headroom.
	for range 10 {
		s.True(s.decide(s.alice, s.bob, 1000).Allowed)
	}
}

// blockingLedger parks BalanceOf until released, signalling when a read has
// started.
type blockingLedger struct {
	entered chan struct{}
	release chan struct{}
}

func (l *blockingLedger) BalanceOf(ctx context.Context, _ domain.Address) (uint64, error) {
	select {
	case l.entered <- struct{}{}:
	default:
	}
	select {
	case <-l.release:
		return 0, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// faultyCountries fails lookups for one address and delegates the rest.
type faultyCountries struct {
	fakeCountries
	broken domain.Address
}

func (f faultyCountries) CountryOf(ctx context.Context, holder domain.Address) (domain.CountryCode, error) {
	if holder == f.broken {
		return 0, fmt.Errorf("jurisdiction lookup: %w", sentinel.ErrUnavailable)
	}
	return f.fakeCountries.CountryOf(ctx, holder)
}

func (s *EngineSuite) TestSlowBalanceReadDoesNotBlockSettlement() {
	ledger := &blockingLedger{entered: make(chan struct{}, 1), release: make(chan struct{})}
	s.Require().NoError(s.engine.BindToken(s.ctx, s.token, ledger))
	s.engine.SetLimits(s.ctx, Limits{MaxBalance: 1_000})

	type checked struct {
		decision Decision
		err      error
	}
	decided := make(chan checked, 1)
	go func() {
		d, err := s.engine.CanTransfer(s.ctx, s.alice, s.bob, 10)
		decided <- checked{d, err}
	}()

	select {
	case <-ledger.entered:
	case <-time.After(time.Second):
		s.FailNow("balance read never started")
	}

	// With the check stalled on the ledger, settlements must still land.
	settled := make(chan error, 1)
	go func() { settled <- s.engine.Transferred(s.ctx, s.token, s.alice, s.bob, 10) }()
	select {
	case err := <-settled:
		s.Require().NoError(err)
	case <-time.After(time.Second):
		s.FailNow("settlement blocked behind a stalled balance read")
	}

	close(ledger.release)
	select {
	case res := <-decided:
		s.Require().NoError(res.err)
		s.True(res.decision.Allowed)
	case <-time.After(time.Second):
		s.FailNow("decision never completed")
	}
}

func (s *EngineSuite) TestFailedRecipientLookupLeavesSenderUntouched() {
	counters := NewInMemoryCounterStore()
	engine := NewEngine(counters, faultyCountries{fakeCountries: s.countries, broken: s.bob},
		slog.New(slog.DiscardHandler), WithClock(func() time.Time { return s.now }))
	s.Require().NoError(engine.BindToken(s.ctx, s.token, s.ledger))

	err := engine.Transferred(s.ctx, s.token, s.alice, s.bob, 250)
	s.Require().ErrorIs(err, sentinel.ErrUnavailable)

	// Nothing settled: the sender's rolling counters and both parties'
	// holder state read exactly as before the failed notification.
	rec, err := counters.Record(s.ctx, s.alice)
	s.Require().NoError(err)
	daily, monthly := rec.Effective(s.now)
	s.Zero(daily)
	s.Zero(monthly)
	s.False(engine.HolderInfo(s.ctx, s.alice).IsHolder)
	s.False(engine.HolderInfo(s.ctx, s.bob).IsHolder)
	s.True(engine.HolderInfo(s.ctx, s.bob).LastReceivedAt.IsZero())
}
