package compliance

import (
	"context"
	"sync"
	"time"

	"custos/pkg/domain"
)

// CounterStore persists per-holder transfer records. Record is a pure read;
// Apply performs the window roll and accumulation. The engine is the single
// writer (bound-ledger invariant), so implementations need not coordinate
// concurrent writers.
type CounterStore interface {
	Record(ctx context.Context, holder domain.Address) (TransferRecord, error)
	Apply(ctx context.Context, holder domain.Address, amount uint64, now time.Time, dayWindow, monthWindow time.Duration) (TransferRecord, error)
}

// InMemoryCounterStore keeps transfer records in memory.
type InMemoryCounterStore struct {
	mu      sync.RWMutex
	records map[domain.Address]TransferRecord
}

func NewInMemoryCounterStore() *InMemoryCounterStore {
	return &InMemoryCounterStore{records: make(map[domain.Address]TransferRecord)}
}

func (s *InMemoryCounterStore) Record(_ context.Context, holder domain.Address) (TransferRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.records[holder], nil
}

func (s *InMemoryCounterStore) Apply(_ context.Context, holder domain.Address, amount uint64, now time.Time, dayWindow, monthWindow time.Duration) (TransferRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.records[holder]
	rec.Apply(amount, now, dayWindow, monthWindow)
	s.records[holder] = rec
	return rec, nil
}
