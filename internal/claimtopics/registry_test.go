package claimtopics

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"custos/pkg/domain"
	"custos/pkg/platform/sentinel"
)

func newRegistry() *Registry {
	return New(slog.New(slog.DiscardHandler))
}

func TestAddRemove(t *testing.T) {
	ctx := context.Background()
	r := newRegistry()

	require.NoError(t, r.Add(ctx, 1))
	require.NoError(t, r.Add(ctx, 2))
	require.ErrorIs(t, r.Add(ctx, 1), sentinel.ErrExists)

	require.True(t, r.Contains(ctx, 1))
	require.ElementsMatch(t, []domain.ClaimTopic{1, 2}, r.Topics(ctx))

	require.NoError(t, r.Remove(ctx, 1))
	require.ErrorIs(t, r.Remove(ctx, 1), sentinel.ErrNotFound)
	require.False(t, r.Contains(ctx, 1))
	require.ElementsMatch(t, []domain.ClaimTopic{2}, r.Topics(ctx))
}

func TestAddBatchSkipsConflicts(t *testing.T) {
	ctx := context.Background()
	r := newRegistry()
	require.NoError(t, r.Add(ctx, 1))

	// Batch add skips existing entries rather than failing.
	require.NoError(t, r.AddBatch(ctx, []domain.ClaimTopic{1, 2, 3, 2}))
	require.ElementsMatch(t, []domain.ClaimTopic{1, 2, 3}, r.Topics(ctx))

	require.ErrorIs(t, r.AddBatch(ctx, nil), sentinel.ErrInvalidArgument)
}
