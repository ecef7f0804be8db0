package rules

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreVelocityTrim(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for i := 0; i < 15; i++ {
		entries, err := store.AppendVelocity(ctx, "u1",
			VelocityEntry{Timestamp: baseTime.Add(time.Duration(i) * time.Second), Amount: float64(i)},
			VelocityHistorySize)
		require.NoError(t, err)

		want := i + 1
		if want > VelocityHistorySize {
			want = VelocityHistorySize
		}
		require.Len(t, entries, want)
		assert.Equal(t, float64(i), entries[0].Amount)
	}

	// Oldest entries were evicted, newest kept.
	entries, err := store.AppendVelocity(ctx, "u1",
		VelocityEntry{Timestamp: baseTime.Add(time.Minute), Amount: 99},
		VelocityHistorySize)
	require.NoError(t, err)
	require.Len(t, entries, VelocityHistorySize)
	assert.Equal(t, float64(99), entries[0].Amount)
	assert.Equal(t, float64(14), entries[1].Amount)
}

func TestMemoryStoreIsolatesUsers(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, err := store.AppendVelocity(ctx, "u1", VelocityEntry{Timestamp: baseTime, Amount: 1}, VelocityHistorySize)
	require.NoError(t, err)

	entries, err := store.AppendVelocity(ctx, "u2", VelocityEntry{Timestamp: baseTime, Amount: 2}, VelocityHistorySize)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	require.NoError(t, store.SetLocationState(ctx, "u1", LocationState{Location: "NYC", ChangedAt: baseTime}))
	state, err := store.LocationState(ctx, "u2")
	require.NoError(t, err)
	assert.Nil(t, state)
}
