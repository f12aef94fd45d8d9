package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/recallkit/core"
	"github.com/rushteam/recallkit/store"
)

func entry(userID int64, ids ...int64) *Entry {
	items := make([]core.Candidate, 0, len(ids))
	for _, id := range ids {
		items = append(items, core.MustCandidate(id, float64(id), core.StrategyHot))
	}
	return &Entry{UserID: userID, Scene: "feed", Items: items}
}

func TestMemory(t *testing.T) {
	ctx := context.Background()
	m, err := NewMemory(2, time.Minute)
	require.NoError(t, err)
	clock := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return clock }

	require.NoError(t, m.Put(ctx, entry(1, 10, 11)))
	got, ok, err := m.Get(ctx, 1, "feed")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []int64{10, 11}, core.CandidateIDs(got.Items))

	_, ok, _ = m.Get(ctx, 1, "other")
	assert.False(t, ok, "scenes are cached separately")

	require.NoError(t, m.Put(ctx, entry(1, 12)))
	got, _, _ = m.Get(ctx, 1, "feed")
	assert.Equal(t, []int64{12}, core.CandidateIDs(got.Items), "refresh overwrites")

	require.NoError(t, m.Put(ctx, entry(2, 1)))
	require.NoError(t, m.Put(ctx, entry(3, 1)))
	assert.Equal(t, 2, m.Len())

	clock = clock.Add(2 * time.Minute)
	_, ok, _ = m.Get(ctx, 3, "feed")
	assert.False(t, ok, "expired")

	require.NoError(t, m.Put(ctx, entry(4, 1)))
	require.NoError(t, m.Invalidate(ctx, 4, "feed"))
	_, ok, _ = m.Get(ctx, 4, "feed")
	assert.False(t, ok)
}

func TestStore(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryStore()
	defer kv.Close()
	s := &Store{KV: kv, TTL: time.Hour}

	_, ok, err := s.Get(ctx, 1, "feed")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Put(ctx, entry(1, 5, 6)))
	got, ok, err := s.Get(ctx, 1, "feed")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []int64{5, 6}, core.CandidateIDs(got.Items))
	assert.Equal(t, core.StrategyHot, got.Items[0].Source)
	assert.Equal(t, "hot", got.Items[0].Labels[core.LabelRecallSource].Value)

	require.NoError(t, kv.Set(ctx, DefaultKeyPrefix+"2:feed", []byte("{")))
	_, _, err = s.Get(ctx, 2, "feed")
	assert.Error(t, err)

	require.NoError(t, s.Invalidate(ctx, 1, "feed"))
	_, ok, _ = s.Get(ctx, 1, "feed")
	assert.False(t, ok)
}
