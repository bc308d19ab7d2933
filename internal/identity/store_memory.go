package identity

import (
	"context"
	"fmt"
	"sync"

	"custos/pkg/domain"
	"custos/pkg/platform/indexedset"
	"custos/pkg/platform/sentinel"
)

// Error Contract:
// All store methods follow this pattern:
// - Return ErrNotFound (wrapped) when the identity, key or claim does not exist
// - Return ErrExists (wrapped) when creating an identity that is already present
// - Return nil for successful operations
//
// Purpose-set and claim-index invariants live here so no caller can violate
// them: a key never holds a purpose twice, an empty key is deleted, and the
// per-topic claim index always agrees with the claim map.

type identityRecord struct {
	keys          map[domain.Hash]*Key
	claims        map[domain.ClaimID]*Claim
	claimsByTopic map[domain.ClaimTopic]*indexedset.Set[domain.ClaimID]
}

func newIdentityRecord() *identityRecord {
	return &identityRecord{
		keys:          make(map[domain.Hash]*Key),
		claims:        make(map[domain.ClaimID]*Claim),
		claimsByTopic: make(map[domain.ClaimTopic]*indexedset.Set[domain.ClaimID]),
	}
}

// InMemoryStore keeps identity records in memory.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[domain.Address]*identityRecord
}

// NewInMemoryStore constructs an empty identity store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[domain.Address]*identityRecord)}
}

// CreateIdentity registers a new identity with its initial management key.
func (s *InMemoryStore) CreateIdentity(_ context.Context, entity domain.Address, managementKey Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[entity]; ok {
		return fmt.Errorf("identity %s: %w", entity.Hex(), sentinel.ErrExists)
	}
	rec := newIdentityRecord()
	k := managementKey
	rec.keys[k.Hash] = &k
	s.records[entity] = rec
	return nil
}

// Exists reports whether an identity record is present.
func (s *InMemoryStore) Exists(_ context.Context, entity domain.Address) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.records[entity]
	return ok, nil
}

// AddKeyPurpose grants a purpose to a key, creating the key if new.
func (s *InMemoryStore) AddKeyPurpose(_ context.Context, entity domain.Address, keyHash domain.Hash, purpose domain.KeyPurpose, keyType domain.KeyType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[entity]
	if !ok {
		return fmt.Errorf("identity %s: %w", entity.Hex(), sentinel.ErrNotFound)
	}
	key, ok := rec.keys[keyHash]
	if !ok {
		rec.keys[keyHash] = &Key{Hash: keyHash, Type: keyType, Purposes: []domain.KeyPurpose{purpose}}
		return nil
	}
	if key.Type != keyType {
		return fmt.Errorf("key registered with type %d: %w", key.Type, sentinel.ErrInvalidArgument)
	}
	if !key.addPurpose(purpose) {
		return fmt.Errorf("key already holds purpose %d: %w", purpose, sentinel.ErrExists)
	}
	return nil
}

// RemoveKeyPurpose revokes a purpose; the key is deleted once its purpose set
// empties.
func (s *InMemoryStore) RemoveKeyPurpose(_ context.Context, entity domain.Address, keyHash domain.Hash, purpose domain.KeyPurpose) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[entity]
	if !ok {
		return fmt.Errorf("identity %s: %w", entity.Hex(), sentinel.ErrNotFound)
	}
	key, ok := rec.keys[keyHash]
	if !ok {
		return fmt.Errorf("key %s: %w", keyHash.Hex(), sentinel.ErrNotFound)
	}
	if !key.removePurpose(purpose) {
		return fmt.Errorf("key does not hold purpose %d: %w", purpose, sentinel.ErrNotFound)
	}
	if len(key.Purposes) == 0 {
		delete(rec.keys, keyHash)
	}
	return nil
}

// GetKey returns a copy of the key.
func (s *InMemoryStore) GetKey(_ context.Context, entity domain.Address, keyHash domain.Hash) (*Key, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[entity]
	if !ok {
		return nil, fmt.Errorf("identity %s: %w", entity.Hex(), sentinel.ErrNotFound)
	}
	key, ok := rec.keys[keyHash]
	if !ok {
		return nil, fmt.Errorf("key %s: %w", keyHash.Hex(), sentinel.ErrNotFound)
	}
	cp := *key
	cp.Purposes = append([]domain.KeyPurpose(nil), key.Purposes...)
	return &cp, nil
}

// KeyHasPurpose reports whether a key on entity carries purpose.
func (s *InMemoryStore) KeyHasPurpose(_ context.Context, entity domain.Address, keyHash domain.Hash, purpose domain.KeyPurpose) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[entity]
	if !ok {
		return false, fmt.Errorf("identity %s: %w", entity.Hex(), sentinel.ErrNotFound)
	}
	key, ok := rec.keys[keyHash]
	if !ok {
		return false, nil
	}
	return key.HasPurpose(purpose), nil
}

// PutClaim stores a claim on its subject, indexing it by topic. Re-putting an
// existing claim ID replaces the claim without duplicating the index entry.
func (s *InMemoryStore) PutClaim(_ context.Context, claim *Claim) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[claim.Subject]
	if !ok {
		return fmt.Errorf("identity %s: %w", claim.Subject.Hex(), sentinel.ErrNotFound)
	}
	cp := *claim
	rec.claims[claim.ID] = &cp
	set, ok := rec.claimsByTopic[claim.Topic]
	if !ok {
		set = indexedset.New[domain.ClaimID]()
		rec.claimsByTopic[claim.Topic] = set
	}
	set.Add(claim.ID)
	return nil
}

// DeleteClaim removes a claim and its topic-index entry, returning the
// removed claim.
func (s *InMemoryStore) DeleteClaim(_ context.Context, subject domain.Address, id domain.ClaimID) (*Claim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[subject]
	if !ok {
		return nil, fmt.Errorf("identity %s: %w", subject.Hex(), sentinel.ErrNotFound)
	}
	claim, ok := rec.claims[id]
	if !ok {
		return nil, fmt.Errorf("claim %s: %w", id.Hex(), sentinel.ErrNotFound)
	}
	delete(rec.claims, id)
	if set := rec.claimsByTopic[claim.Topic]; set != nil {
		set.Remove(id)
		if set.Len() == 0 {
			delete(rec.claimsByTopic, claim.Topic)
		}
	}
	return claim, nil
}

// GetClaim returns a copy of the claim.
func (s *InMemoryStore) GetClaim(_ context.Context, subject domain.Address, id domain.ClaimID) (*Claim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[subject]
	if !ok {
		return nil, fmt.Errorf("identity %s: %w", subject.Hex(), sentinel.ErrNotFound)
	}
	claim, ok := rec.claims[id]
	if !ok {
		return nil, fmt.Errorf("claim %s: %w", id.Hex(), sentinel.ErrNotFound)
	}
	cp := *claim
	return &cp, nil
}

// ClaimIDsByTopic lists the subject's claims for a topic. Order is not stable
// across removals.
func (s *InMemoryStore) ClaimIDsByTopic(_ context.Context, subject domain.Address, topic domain.ClaimTopic) ([]domain.ClaimID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[subject]
	if !ok {
		return nil, fmt.Errorf("identity %s: %w", subject.Hex(), sentinel.ErrNotFound)
	}
	set, ok := rec.claimsByTopic[topic]
	if !ok {
		return nil, nil
	}
	return set.Values(), nil
}
