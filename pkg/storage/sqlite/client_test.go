package sqlite_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridironai/expertmem-go/pkg/storage"
	"github.com/gridironai/expertmem-go/pkg/storage/sqlite"
)

func newTestClient(t *testing.T) *sqlite.Client {
	t.Helper()
	client, err := sqlite.NewClient(&sqlite.Config{
		DBPath:             filepath.Join(t.TempDir(), "test.db"),
		TableName:          "expert_memories",
		EmbeddingModelDims: 3,
	})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func testRecord(id int64, embeddings map[string][]float64) *storage.Record {
	return &storage.Record{
		ID:                 id,
		ExpertID:           "the_sharp",
		GameID:             "2025-W5-BUF-KC",
		MemoryType:         "prediction_outcome",
		CreatedAt:          time.Now().Add(-time.Duration(id) * time.Hour).UTC(),
		GameContext:        []byte(`{"home_team":"KC","away_team":"BUF","week":5}`),
		PredictionData:     []byte(`{"winner":"KC","confidence":0.8}`),
		Lessons:            []string{"underdogs travel well"},
		EmotionalIntensity: 0.7,
		Embeddings:         embeddings,
	}
}

func TestInsertAndGet(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	record := testRecord(1, map[string][]float64{"combined": {1, 0, 0}})
	require.NoError(t, client.Insert(ctx, record))

	got, err := client.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, record.ExpertID, got.ExpertID)
	assert.Equal(t, record.GameID, got.GameID)
	assert.Equal(t, record.MemoryType, got.MemoryType)
	assert.JSONEq(t, string(record.GameContext), string(got.GameContext))
	assert.Equal(t, record.Lessons, got.Lessons)
	assert.Equal(t, record.EmotionalIntensity, got.EmotionalIntensity)
	assert.Equal(t, []float64{1, 0, 0}, got.Embeddings["combined"])
}

func TestGetNotFound(t *testing.T) {
	client := newTestClient(t)

	_, err := client.Get(context.Background(), 999)
	require.Error(t, err)
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}

func TestQueryNearestOrdering(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.Insert(ctx, testRecord(1, map[string][]float64{"combined": {0, 1, 0}})))
	require.NoError(t, client.Insert(ctx, testRecord(2, map[string][]float64{"combined": {1, 0, 0}})))
	require.NoError(t, client.Insert(ctx, testRecord(3, map[string][]float64{"combined": {-1, 0, 0}})))
	// No combined embedding: must be excluded from the search.
	require.NoError(t, client.Insert(ctx, testRecord(4, map[string][]float64{"prediction": {1, 0, 0}})))

	records, err := client.QueryNearest(ctx, "the_sharp", "combined", []float64{1, 0, 0}, 10)
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, int64(2), records[0].ID)
	assert.Equal(t, int64(1), records[1].ID)
	assert.Equal(t, int64(3), records[2].ID)
	assert.InDelta(t, 1.0, records[0].Score, 1e-9)
	assert.InDelta(t, 0.5, records[1].Score, 1e-9)
	assert.InDelta(t, 0.0, records[2].Score, 1e-9)
}

func TestQueryNearestLimitsK(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	for id := int64(1); id <= 5; id++ {
		require.NoError(t, client.Insert(ctx, testRecord(id, map[string][]float64{"combined": {1, 0, 0}})))
	}

	records, err := client.QueryNearest(ctx, "the_sharp", "combined", []float64{1, 0, 0}, 2)
	require.NoError(t, err)
	assert.Len(t, records, 2)
	// Equal scores break ties by ID ascending.
	assert.Equal(t, int64(1), records[0].ID)
	assert.Equal(t, int64(2), records[1].ID)
}

func TestQueryNearestScopedToExpert(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	mine := testRecord(1, map[string][]float64{"combined": {1, 0, 0}})
	other := testRecord(2, map[string][]float64{"combined": {1, 0, 0}})
	other.ExpertID = "someone_else"
	require.NoError(t, client.Insert(ctx, mine))
	require.NoError(t, client.Insert(ctx, other))

	records, err := client.QueryNearest(ctx, "the_sharp", "combined", []float64{1, 0, 0}, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, int64(1), records[0].ID)
}

func TestListByExpertNewestFirst(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	// testRecord ages each record by its ID, so ID 1 is newest.
	for id := int64(1); id <= 3; id++ {
		require.NoError(t, client.Insert(ctx, testRecord(id, nil)))
	}

	records, err := client.ListByExpert(ctx, "the_sharp", 10, 0)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, int64(1), records[0].ID)
	assert.Equal(t, int64(3), records[2].ID)

	page, err := client.ListByExpert(ctx, "the_sharp", 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, int64(2), page[0].ID)
}

func TestUpdateEmbeddings(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.Insert(ctx, testRecord(1, nil)))

	// Before backfill the record is invisible to vector search.
	records, err := client.QueryNearest(ctx, "the_sharp", "combined", []float64{1, 0, 0}, 10)
	require.NoError(t, err)
	assert.Empty(t, records)

	require.NoError(t, client.UpdateEmbeddings(ctx, 1, map[string][]float64{
		"combined":     {1, 0, 0},
		"game_context": {0, 1, 0},
	}))

	records, err = client.QueryNearest(ctx, "the_sharp", "combined", []float64{1, 0, 0}, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)

	got, err := client.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1, 0}, got.Embeddings["game_context"])
}

func TestUpdateEmbeddingsNotFound(t *testing.T) {
	client := newTestClient(t)

	err := client.UpdateEmbeddings(context.Background(), 999, map[string][]float64{"combined": {1, 0, 0}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}

func TestIncrementRetrievalCount(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.Insert(ctx, testRecord(1, nil)))

	for i := 0; i < 3; i++ {
		require.NoError(t, client.IncrementRetrievalCount(ctx, 1))
	}

	got, err := client.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.RetrievalCount)
}

func TestDelete(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.Insert(ctx, testRecord(1, nil)))
	require.NoError(t, client.Insert(ctx, testRecord(2, nil)))

	require.NoError(t, client.Delete(ctx, []int64{1, 999}))

	_, err := client.Get(ctx, 1)
	assert.True(t, errors.Is(err, storage.ErrNotFound))
	_, err = client.Get(ctx, 2)
	assert.NoError(t, err)

	// Empty delete is a no-op.
	assert.NoError(t, client.Delete(ctx, nil))
}
