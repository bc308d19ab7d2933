// Package claimtopics keeps the operator-managed set of attestation topics a
// holder must satisfy to be verified. Transport gates mutations on the
// manager role.
package claimtopics

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"custos/pkg/domain"
	"custos/pkg/platform/indexedset"
	"custos/pkg/platform/sentinel"
)

// Registry is the in-memory required-topic set.
type Registry struct {
	mu     sync.RWMutex
	topics *indexedset.Set[domain.ClaimTopic]
	logger *slog.Logger
}

func New(logger *slog.Logger) *Registry {
	return &Registry{topics: indexedset.New[domain.ClaimTopic](), logger: logger}
}

// Add registers a required topic.
func (r *Registry) Add(ctx context.Context, topic domain.ClaimTopic) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.topics.Add(topic) {
		return fmt.Errorf("claim topic %d: %w", topic, sentinel.ErrExists)
	}
	r.logger.InfoContext(ctx, "claim topic added", "topic", topic)
	return nil
}

// AddBatch registers topics, silently skipping ones already present.
func (r *Registry) AddBatch(ctx context.Context, topics []domain.ClaimTopic) error {
	if len(topics) == 0 {
		return fmt.Errorf("empty topic list: %w", sentinel.ErrInvalidArgument)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, topic := range topics {
		if r.topics.Add(topic) {
			r.logger.InfoContext(ctx, "claim topic added", "topic", topic)
		}
	}
	return nil
}

// Remove drops a required topic.
func (r *Registry) Remove(ctx context.Context, topic domain.ClaimTopic) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.topics.Remove(topic) {
		return fmt.Errorf("claim topic %d: %w", topic, sentinel.ErrNotFound)
	}
	r.logger.InfoContext(ctx, "claim topic removed", "topic", topic)
	return nil
}

// Contains reports whether a topic is required.
func (r *Registry) Contains(_ context.Context, topic domain.ClaimTopic) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.topics.Contains(topic)
}

// Topics returns the required topic set. Order is not stable across removals.
func (r *Registry) Topics(_ context.Context) []domain.ClaimTopic {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.topics.Values()
}
