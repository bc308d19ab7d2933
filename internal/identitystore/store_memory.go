package identitystore

import (
	"context"
	"fmt"
	"sync"

	"custos/pkg/domain"
	"custos/pkg/platform/indexedset"
	"custos/pkg/platform/sentinel"
)

// InMemory keeps holder records in memory. Enumeration is backed by an
// indexed set so removal is O(1) without breaking the holder list.
type InMemory struct {
	mu      sync.RWMutex
	records map[domain.Address]Record
	holders *indexedset.Set[domain.Address]
}

func NewInMemory() *InMemory {
	return &InMemory{
		records: make(map[domain.Address]Record),
		holders: indexedset.New[domain.Address](),
	}
}

func (s *InMemory) Add(_ context.Context, holder domain.Address, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[holder]; ok {
		return fmt.Errorf("holder %s: %w", holder.Hex(), sentinel.ErrExists)
	}
	s.records[holder] = rec
	s.holders.Add(holder)
	return nil
}

func (s *InMemory) Remove(_ context.Context, holder domain.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[holder]; !ok {
		return fmt.Errorf("holder %s: %w", holder.Hex(), sentinel.ErrNotFound)
	}
	delete(s.records, holder)
	s.holders.Remove(holder)
	return nil
}

func (s *InMemory) UpdateIdentity(_ context.Context, holder, identity domain.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[holder]
	if !ok {
		return fmt.Errorf("holder %s: %w", holder.Hex(), sentinel.ErrNotFound)
	}
	rec.Identity = identity
	s.records[holder] = rec
	return nil
}

func (s *InMemory) UpdateCountry(_ context.Context, holder domain.Address, country domain.CountryCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[holder]
	if !ok {
		return fmt.Errorf("holder %s: %w", holder.Hex(), sentinel.ErrNotFound)
	}
	rec.Country = country
	s.records[holder] = rec
	return nil
}

func (s *InMemory) Contains(_ context.Context, holder domain.Address) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.records[holder]
	return ok, nil
}

func (s *InMemory) Get(_ context.Context, holder domain.Address) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[holder]
	if !ok {
		return Record{}, fmt.Errorf("holder %s: %w", holder.Hex(), sentinel.ErrNotFound)
	}
	return rec, nil
}

func (s *InMemory) Holders(_ context.Context) ([]domain.Address, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.holders.Values(), nil
}
