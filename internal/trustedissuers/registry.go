// Package trustedissuers tracks which issuer identities may attest to which
// claim topics. Issuers are enumerable globally and per topic; both views and
// the per-issuer topic set are mutated together behind one lock so they can
// never disagree. Transport gates mutations on the manager role.
package trustedissuers

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"custos/pkg/domain"
	"custos/pkg/platform/indexedset"
	"custos/pkg/platform/sentinel"
)

// IssuerRecord describes a trusted issuer: the identity holding its signer
// keys and the topics it may attest to.
type IssuerRecord struct {
	Issuer   domain.Address
	Identity domain.Address
	Topics   []domain.ClaimTopic
}

type issuerEntry struct {
	identity domain.Address
	topics   *indexedset.Set[domain.ClaimTopic]
}

// Registry is the in-memory trusted issuers registry.
type Registry struct {
	mu      sync.RWMutex
	issuers *indexedset.Set[domain.Address]
	entries map[domain.Address]*issuerEntry
	byTopic map[domain.ClaimTopic]*indexedset.Set[domain.Address]
	logger  *slog.Logger
}

func New(logger *slog.Logger) *Registry {
	return &Registry{
		issuers: indexedset.New[domain.Address](),
		entries: make(map[domain.Address]*issuerEntry),
		byTopic: make(map[domain.ClaimTopic]*indexedset.Set[domain.Address]),
		logger:  logger,
	}
}

// Add registers an issuer for a non-empty topic list. Duplicate topics in the
// list are collapsed.
func (r *Registry) Add(ctx context.Context, issuer, identity domain.Address, topics []domain.ClaimTopic) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.addLocked(ctx, issuer, identity, topics)
}

// AddBatch registers issuers, silently skipping entries that already exist or
// carry an empty topic list.
func (r *Registry) AddBatch(ctx context.Context, records []IssuerRecord) error {
	if len(records) == 0 {
		return fmt.Errorf("empty issuer list: %w", sentinel.ErrInvalidArgument)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range records {
		if _, exists := r.entries[rec.Issuer]; exists || len(rec.Topics) == 0 {
			continue
		}
		if err := r.addLocked(ctx, rec.Issuer, rec.Identity, rec.Topics); err != nil {
			return err
		}
	}
	return nil
}

// Remove deletes an issuer, unwinding the global list and every per-topic
// list before dropping the record.
func (r *Registry) Remove(ctx context.Context, issuer domain.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeLocked(ctx, issuer)
}

// UpdateTopics replaces an issuer's topic set. Defined as remove-everything
// then add-everything rather than a diff; redundant work, simpler to reason
// about.
func (r *Registry) UpdateTopics(ctx context.Context, issuer domain.Address, topics []domain.ClaimTopic) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[issuer]
	if !ok {
		return fmt.Errorf("issuer %s: %w", issuer.Hex(), sentinel.ErrNotFound)
	}
	if len(topics) == 0 {
		return fmt.Errorf("empty topic list: %w", sentinel.ErrInvalidArgument)
	}
	identity := entry.identity
	if err := r.removeLocked(ctx, issuer); err != nil {
		return err
	}
	return r.addLocked(ctx, issuer, identity, topics)
}

// IsTrusted reports whether issuer is registered at all.
func (r *Registry) IsTrusted(_ context.Context, issuer domain.Address) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.issuers.Contains(issuer)
}

// HasTopic reports whether issuer may attest to topic.
func (r *Registry) HasTopic(_ context.Context, issuer domain.Address, topic domain.ClaimTopic) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[issuer]
	return ok && entry.topics.Contains(topic)
}

// IdentityOf returns the identity address holding the issuer's signer keys.
func (r *Registry) IdentityOf(_ context.Context, issuer domain.Address) (domain.Address, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[issuer]
	if !ok {
		return domain.Address{}, fmt.Errorf("issuer %s: %w", issuer.Hex(), sentinel.ErrNotFound)
	}
	return entry.identity, nil
}

// Get returns the full record for an issuer.
func (r *Registry) Get(_ context.Context, issuer domain.Address) (IssuerRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[issuer]
	if !ok {
		return IssuerRecord{}, fmt.Errorf("issuer %s: %w", issuer.Hex(), sentinel.ErrNotFound)
	}
	return IssuerRecord{Issuer: issuer, Identity: entry.identity, Topics: entry.topics.Values()}, nil
}

// Issuers enumerates all trusted issuers. Order is not stable across
// removals.
func (r *Registry) Issuers(_ context.Context) []domain.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.issuers.Values()
}

// IssuersForTopic enumerates issuers trusted for a topic.
func (r *Registry) IssuersForTopic(_ context.Context, topic domain.ClaimTopic) []domain.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set, ok := r.byTopic[topic]
	if !ok {
		return nil
	}
	return set.Values()
}

func (r *Registry) addLocked(ctx context.Context, issuer, identity domain.Address, topics []domain.ClaimTopic) error {
	if _, exists := r.entries[issuer]; exists {
		return fmt.Errorf("issuer %s: %w", issuer.Hex(), sentinel.ErrExists)
	}
	if len(topics) == 0 {
		return fmt.Errorf("empty topic list: %w", sentinel.ErrInvalidArgument)
	}

	entry := &issuerEntry{identity: identity, topics: indexedset.New[domain.ClaimTopic]()}
	for _, topic := range topics {
		if !entry.topics.Add(topic) {
			continue // duplicate topic in the request
		}
		set, ok := r.byTopic[topic]
		if !ok {
			set = indexedset.New[domain.Address]()
			r.byTopic[topic] = set
		}
		set.Add(issuer)
	}
	r.entries[issuer] = entry
	r.issuers.Add(issuer)
	r.logger.InfoContext(ctx, "trusted issuer added",
		"issuer", issuer.Hex(), "identity", identity.Hex(), "topics", entry.topics.Len())
	return nil
}

func (r *Registry) removeLocked(ctx context.Context, issuer domain.Address) error {
	entry, ok := r.entries[issuer]
	if !ok {
		return fmt.Errorf("issuer %s: %w", issuer.Hex(), sentinel.ErrNotFound)
	}
	for _, topic := range entry.topics.Values() {
		set := r.byTopic[topic]
		set.Remove(issuer)
		if set.Len() == 0 {
			delete(r.byTopic, topic)
		}
	}
	r.issuers.Remove(issuer)
	delete(r.entries, issuer)
	r.logger.InfoContext(ctx, "trusted issuer removed", "issuer", issuer.Hex())
	return nil
}
