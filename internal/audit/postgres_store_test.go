package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/fraudgate/internal/testutil"
)

func TestPostgresStoreRoundTrip(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()

	reason := "Unusual Location Change Detected"
	rec := &Record{
		ID:            "vd_pg_test_1",
		CorrelationID: "corr-1",
		UserID:        "user-pg",
		Amount:        42000,
		Location:      "NYC",
		Type:          "TRANSFER",
		Verdict:       "Fraud",
		RuleVerdict:   true,
		MLProbability: 0.8,
		HybridScore:   0.71,
		FraudScore:    75,
		RiskLevel:     "MEDIUM",
		Reason:        &reason,
		Confidence:    0.42,
		CreatedAt:     time.Now().UTC().Truncate(time.Microsecond),
	}
	require.NoError(t, store.Create(ctx, rec))

	got, err := store.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.UserID, got.UserID)
	assert.Equal(t, rec.HybridScore, got.HybridScore)
	require.NotNil(t, got.Reason)
	assert.Equal(t, reason, *got.Reason)
	assert.True(t, rec.CreatedAt.Equal(got.CreatedAt))

	records, err := store.ListByUser(ctx, "user-pg", 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, rec.ID, records[0].ID)

	_, err = store.Get(ctx, "vd_does_not_exist")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresStoreNullReason(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, &Record{
		ID:        "vd_pg_test_2",
		UserID:    "user-pg",
		Verdict:   "Not Fraud",
		RiskLevel: "LOW",
		CreatedAt: time.Now().UTC(),
	}))

	got, err := store.Get(ctx, "vd_pg_test_2")
	require.NoError(t, err)
	assert.Nil(t, got.Reason)
}
