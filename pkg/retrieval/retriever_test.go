package retrieval_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridironai/expertmem-go/pkg/core"
	"github.com/gridironai/expertmem-go/pkg/embedder"
	"github.com/gridironai/expertmem-go/pkg/retrieval"
	"github.com/gridironai/expertmem-go/pkg/storage"
)

// fakeStore is an in-memory MemoryStore that tracks call counts.
type fakeStore struct {
	mu          sync.Mutex
	records     map[int64]*storage.Record
	queryCalls  int
	listCalls   int
	incremented map[int64]int
	failQuery   bool
	failList    bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		records:     make(map[int64]*storage.Record),
		incremented: make(map[int64]int),
	}
}

func (s *fakeStore) Insert(ctx context.Context, record *storage.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.ID] = record
	return nil
}

func (s *fakeStore) UpdateEmbeddings(ctx context.Context, id int64, embeddings map[string][]float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return storage.ErrNotFound
	}
	if rec.Embeddings == nil {
		rec.Embeddings = make(map[string][]float64)
	}
	for ch, vec := range embeddings {
		rec.Embeddings[ch] = vec
	}
	return nil
}

func (s *fakeStore) Get(ctx context.Context, id int64) (*storage.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return rec, nil
}

func (s *fakeStore) QueryNearest(ctx context.Context, expertID, channel string, queryVector []float64, k int) ([]*storage.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queryCalls++
	if s.failQuery {
		return nil, storage.ErrUnavailable
	}

	var out []*storage.Record
	for _, rec := range s.records {
		if rec.ExpertID != expertID {
			continue
		}
		vec, ok := rec.Embeddings[channel]
		if !ok || len(vec) == 0 {
			continue
		}
		clone := *rec
		clone.Score = cosine01(queryVector, vec)
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func (s *fakeStore) ListByExpert(ctx context.Context, expertID string, limit, offset int) ([]*storage.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listCalls++
	if s.failList {
		return nil, storage.ErrUnavailable
	}

	var out []*storage.Record
	for _, rec := range s.records {
		if rec.ExpertID == expertID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *fakeStore) IncrementRetrievalCount(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.incremented[id]++
	if rec, ok := s.records[id]; ok {
		rec.RetrievalCount++
	}
	return nil
}

func (s *fakeStore) Delete(ctx context.Context, ids []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.records, id)
	}
	return nil
}

func (s *fakeStore) Close() error { return nil }

func (s *fakeStore) counts() (queries, lists int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queryCalls, s.listCalls
}

// fakeEmbedder returns a fixed vector and tracks call counts.
type fakeEmbedder struct {
	mu    sync.Mutex
	vec   []float64
	fail  bool
	calls int
}

func (e *fakeEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.fail {
		return nil, fmt.Errorf("Embed: %w: connection refused", embedder.ErrUnavailable)
	}
	return e.vec, nil
}

func (e *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i := range texts {
		vec, err := e.Embed(ctx, texts[i])
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (e *fakeEmbedder) Dimensions() int { return len(e.vec) }
func (e *fakeEmbedder) Close() error    { return nil }

func (e *fakeEmbedder) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

func cosine01(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return (dot/(math.Sqrt(na)*math.Sqrt(nb)) + 1) / 2
}

func testProfiles() core.StaticProfiles {
	return core.StaticProfiles{
		"the_sharp": {
			ExpertID:              "the_sharp",
			AnalyticalFocus:       map[string]float64{core.DimensionTeams: 1.0},
			DecayHalfLifeDays:     30,
			WorkingMemoryCapacity: 7,
			MaxReasoningMemories:  3,
			MaxContextualMemories: 3,
			MaxMarketMemories:     2,
			MaxLearningMemories:   2,
		},
	}
}

func testQuery() *core.GameContext {
	return &core.GameContext{HomeTeam: "KC", AwayTeam: "BUF", Week: 5, Season: 2025}
}

func addRecord(t *testing.T, store *fakeStore, id int64, memType core.MemoryType, age time.Duration, embeddings map[core.Channel][]float64) {
	t.Helper()
	record := &core.MemoryRecord{
		ID:          id,
		ExpertID:    "the_sharp",
		GameID:      fmt.Sprintf("game-%d", id),
		MemoryType:  memType,
		CreatedAt:   time.Now().Add(-age).UTC(),
		GameContext: &core.GameContext{HomeTeam: "KC", AwayTeam: "BUF", Week: 5, Season: 2024},
		Embeddings:  embeddings,
	}
	stored, err := core.ToStorageRecord(record)
	require.NoError(t, err)
	require.NoError(t, store.Insert(context.Background(), stored))
}

func TestRetrieveRanksByRelevance(t *testing.T) {
	store := newFakeStore()
	addRecord(t, store, 1, core.MemoryTypePredictionOutcome, time.Hour, map[core.Channel][]float64{core.ChannelCombined: {0, 1, 0}})
	addRecord(t, store, 2, core.MemoryTypePredictionOutcome, time.Hour, map[core.Channel][]float64{core.ChannelCombined: {1, 0, 0}})
	addRecord(t, store, 3, core.MemoryTypeContextual, time.Hour, map[core.Channel][]float64{core.ChannelCombined: {-1, 0, 0}})

	embed := &fakeEmbedder{vec: []float64{1, 0, 0}}
	retriever, err := retrieval.NewRetriever(store, embed, testProfiles())
	require.NoError(t, err)

	result, err := retriever.Retrieve(context.Background(), "the_sharp", testQuery())
	require.NoError(t, err)

	assert.False(t, result.Degraded)
	assert.False(t, result.EmbeddingDegraded)
	assert.False(t, result.CacheHit)
	require.Len(t, result.Memories, 3)

	// Identical structured similarity, so cosine decides the order.
	assert.Equal(t, int64(2), result.Memories[0].Record.ID)
	assert.Equal(t, int64(1), result.Memories[1].Record.ID)
	assert.Equal(t, int64(3), result.Memories[2].Record.ID)

	for i, m := range result.Memories {
		assert.Equal(t, i+1, m.Rank)
		assert.NotEmpty(t, m.RetrievalReason)
		assert.GreaterOrEqual(t, m.RelevanceScore, 0.0)
		assert.LessOrEqual(t, m.RelevanceScore, 1.0)
	}

	// Returned memories get their retrieval counts bumped at the store.
	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Equal(t, 1, store.incremented[1])
	assert.Equal(t, 1, store.incremented[2])
	assert.Equal(t, 1, store.incremented[3])
}

func TestRetrieveChannelAgreementBoost(t *testing.T) {
	store := newFakeStore()
	// Same combined cosine; record 2 also surfaces on the game-context
	// channel and should rank first.
	addRecord(t, store, 1, core.MemoryTypePredictionOutcome, time.Hour, map[core.Channel][]float64{
		core.ChannelCombined: {0, 1, 0},
	})
	addRecord(t, store, 2, core.MemoryTypePredictionOutcome, time.Hour, map[core.Channel][]float64{
		core.ChannelCombined:    {0, 1, 0},
		core.ChannelGameContext: {0, 1, 0},
	})

	embed := &fakeEmbedder{vec: []float64{1, 0, 0}}
	retriever, err := retrieval.NewRetriever(store, embed, testProfiles())
	require.NoError(t, err)

	result, err := retriever.Retrieve(context.Background(), "the_sharp", testQuery())
	require.NoError(t, err)
	require.Len(t, result.Memories, 2)
	assert.Equal(t, int64(2), result.Memories[0].Record.ID)
	assert.Greater(t, result.Memories[0].RelevanceScore, result.Memories[1].RelevanceScore)
}

func TestRetrieveCacheHit(t *testing.T) {
	store := newFakeStore()
	addRecord(t, store, 1, core.MemoryTypePredictionOutcome, time.Hour, map[core.Channel][]float64{core.ChannelCombined: {1, 0, 0}})

	embed := &fakeEmbedder{vec: []float64{1, 0, 0}}
	retriever, err := retrieval.NewRetriever(store, embed, testProfiles())
	require.NoError(t, err)

	first, err := retriever.Retrieve(context.Background(), "the_sharp", testQuery())
	require.NoError(t, err)
	assert.False(t, first.CacheHit)

	queriesAfterFirst, _ := store.counts()
	embedsAfterFirst := embed.callCount()

	second, err := retriever.Retrieve(context.Background(), "the_sharp", testQuery())
	require.NoError(t, err)
	assert.True(t, second.CacheHit)
	assert.Equal(t, first.Memories, second.Memories)

	// Neither the store nor the embedder saw additional work.
	queriesAfterSecond, _ := store.counts()
	assert.Equal(t, queriesAfterFirst, queriesAfterSecond)
	assert.Equal(t, embedsAfterFirst, embed.callCount())
}

func TestRetrieveWithoutCache(t *testing.T) {
	store := newFakeStore()
	addRecord(t, store, 1, core.MemoryTypePredictionOutcome, time.Hour, map[core.Channel][]float64{core.ChannelCombined: {1, 0, 0}})

	embed := &fakeEmbedder{vec: []float64{1, 0, 0}}
	retriever, err := retrieval.NewRetriever(store, embed, testProfiles())
	require.NoError(t, err)

	first, err := retriever.Retrieve(context.Background(), "the_sharp", testQuery(), retrieval.WithoutCache())
	require.NoError(t, err)
	second, err := retriever.Retrieve(context.Background(), "the_sharp", testQuery(), retrieval.WithoutCache())
	require.NoError(t, err)

	assert.False(t, second.CacheHit)

	// Identical inputs, identical ranked IDs.
	require.Equal(t, len(first.Memories), len(second.Memories))
	for i := range first.Memories {
		assert.Equal(t, first.Memories[i].Record.ID, second.Memories[i].Record.ID)
		assert.Equal(t, first.Memories[i].RelevanceScore, second.Memories[i].RelevanceScore)
	}
}

func TestRetrieveEmbeddingDegraded(t *testing.T) {
	store := newFakeStore()
	addRecord(t, store, 1, core.MemoryTypePredictionOutcome, time.Hour, map[core.Channel][]float64{core.ChannelCombined: {1, 0, 0}})

	embed := &fakeEmbedder{vec: []float64{1, 0, 0}, fail: true}
	retriever, err := retrieval.NewRetriever(store, embed, testProfiles())
	require.NoError(t, err)

	result, err := retriever.Retrieve(context.Background(), "the_sharp", testQuery())
	require.NoError(t, err)

	assert.True(t, result.EmbeddingDegraded)
	assert.False(t, result.Degraded)
	require.Len(t, result.Memories, 1, "structured-only fallback should still return memories")

	queries, lists := store.counts()
	assert.Equal(t, 0, queries, "vector search should be skipped in degraded mode")
	assert.Equal(t, 1, lists)

	// Degraded results must not be cached: the next call goes back to the
	// store instead of pinning the fallback for the TTL.
	_, err = retriever.Retrieve(context.Background(), "the_sharp", testQuery())
	require.NoError(t, err)
	_, lists = store.counts()
	assert.Equal(t, 2, lists)
}

func TestRetrieveStoreFailure(t *testing.T) {
	store := newFakeStore()
	store.failQuery = true

	embed := &fakeEmbedder{vec: []float64{1, 0, 0}}
	retriever, err := retrieval.NewRetriever(store, embed, testProfiles())
	require.NoError(t, err)

	result, err := retriever.Retrieve(context.Background(), "the_sharp", testQuery())
	require.NoError(t, err, "store failure must degrade, not error")
	assert.True(t, result.Degraded)
	assert.Empty(t, result.Memories)
}

func TestRetrievePerTypeCaps(t *testing.T) {
	store := newFakeStore()
	// Four market memories outscore three contextual ones; the market cap
	// of 2 forces the contextual memories into the result anyway.
	for id := int64(1); id <= 4; id++ {
		addRecord(t, store, id, core.MemoryTypeMarket, time.Hour, map[core.Channel][]float64{core.ChannelCombined: {1, 0, 0}})
	}
	for id := int64(5); id <= 7; id++ {
		addRecord(t, store, id, core.MemoryTypeContextual, time.Hour, map[core.Channel][]float64{core.ChannelCombined: {0, 1, 0}})
	}

	embed := &fakeEmbedder{vec: []float64{1, 0, 0}}
	retriever, err := retrieval.NewRetriever(store, embed, testProfiles())
	require.NoError(t, err)

	result, err := retriever.Retrieve(context.Background(), "the_sharp", testQuery())
	require.NoError(t, err)

	byType := make(map[core.MemoryType]int)
	for _, m := range result.Memories {
		byType[m.Record.MemoryType]++
	}
	assert.Equal(t, 2, byType[core.MemoryTypeMarket])
	assert.Equal(t, 3, byType[core.MemoryTypeContextual])
	assert.Len(t, result.Memories, 5)
}

func TestRetrieveMixedCapProfile(t *testing.T) {
	// Only the market cap is set. The contextual memories carry a zero cap
	// and must still fill the remaining working-memory slots rather than
	// being shut out.
	profiles := core.StaticProfiles{
		"the_sharp": {
			ExpertID:              "the_sharp",
			AnalyticalFocus:       map[string]float64{core.DimensionTeams: 1.0},
			DecayHalfLifeDays:     30,
			WorkingMemoryCapacity: 5,
			MaxMarketMemories:     2,
		},
	}

	store := newFakeStore()
	for id := int64(1); id <= 4; id++ {
		addRecord(t, store, id, core.MemoryTypeMarket, time.Hour, map[core.Channel][]float64{core.ChannelCombined: {1, 0, 0}})
	}
	for id := int64(5); id <= 7; id++ {
		addRecord(t, store, id, core.MemoryTypeContextual, time.Hour, map[core.Channel][]float64{core.ChannelCombined: {0, 1, 0}})
	}

	embed := &fakeEmbedder{vec: []float64{1, 0, 0}}
	retriever, err := retrieval.NewRetriever(store, embed, profiles)
	require.NoError(t, err)

	result, err := retriever.Retrieve(context.Background(), "the_sharp", testQuery())
	require.NoError(t, err)

	byType := make(map[core.MemoryType]int)
	for _, m := range result.Memories {
		byType[m.Record.MemoryType]++
	}
	assert.Equal(t, 2, byType[core.MemoryTypeMarket])
	assert.Equal(t, 3, byType[core.MemoryTypeContextual])
	assert.Len(t, result.Memories, 5)
}

func TestRetrieveRelevanceThreshold(t *testing.T) {
	store := newFakeStore()
	addRecord(t, store, 1, core.MemoryTypePredictionOutcome, time.Hour, map[core.Channel][]float64{core.ChannelCombined: {1, 0, 0}})
	addRecord(t, store, 2, core.MemoryTypePredictionOutcome, time.Hour, map[core.Channel][]float64{core.ChannelCombined: {-1, 0, 0}})

	embed := &fakeEmbedder{vec: []float64{1, 0, 0}}
	retriever, err := retrieval.NewRetriever(store, embed, testProfiles())
	require.NoError(t, err)

	result, err := retriever.Retrieve(context.Background(), "the_sharp", testQuery(),
		retrieval.WithRelevanceThreshold(0.9), retrieval.WithoutCache())
	require.NoError(t, err)

	require.Len(t, result.Memories, 1)
	assert.Equal(t, int64(1), result.Memories[0].Record.ID)
}

func TestRetrieveMaxMemoriesOption(t *testing.T) {
	store := newFakeStore()
	for id := int64(1); id <= 5; id++ {
		addRecord(t, store, id, core.MemoryTypePredictionOutcome, time.Hour, map[core.Channel][]float64{core.ChannelCombined: {1, 0, 0}})
	}

	embed := &fakeEmbedder{vec: []float64{1, 0, 0}}
	retriever, err := retrieval.NewRetriever(store, embed, testProfiles())
	require.NoError(t, err)

	result, err := retriever.Retrieve(context.Background(), "the_sharp", testQuery(),
		retrieval.WithMaxMemories(2), retrieval.WithoutCache())
	require.NoError(t, err)
	assert.Len(t, result.Memories, 2)
}

func TestRetrieveSkipsMalformedRecords(t *testing.T) {
	store := newFakeStore()
	addRecord(t, store, 1, core.MemoryTypePredictionOutcome, time.Hour, map[core.Channel][]float64{core.ChannelCombined: {1, 0, 0}})

	// A record without created_at cannot be decayed; it must be skipped,
	// not scored and not fatal.
	broken := &storage.Record{
		ID:          2,
		ExpertID:    "the_sharp",
		GameID:      "game-2",
		MemoryType:  string(core.MemoryTypePredictionOutcome),
		GameContext: []byte(`{"home_team":"KC","away_team":"BUF"}`),
		Embeddings:  map[string][]float64{"combined": {1, 0, 0}},
	}
	require.NoError(t, store.Insert(context.Background(), broken))

	embed := &fakeEmbedder{vec: []float64{1, 0, 0}}
	retriever, err := retrieval.NewRetriever(store, embed, testProfiles())
	require.NoError(t, err)

	result, err := retriever.Retrieve(context.Background(), "the_sharp", testQuery())
	require.NoError(t, err)
	require.Len(t, result.Memories, 1)
	assert.Equal(t, int64(1), result.Memories[0].Record.ID)
}

func TestRetrieveInputValidation(t *testing.T) {
	store := newFakeStore()
	embed := &fakeEmbedder{vec: []float64{1, 0, 0}}
	retriever, err := retrieval.NewRetriever(store, embed, testProfiles())
	require.NoError(t, err)

	_, err = retriever.Retrieve(context.Background(), "", testQuery())
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrInvalidInput))

	_, err = retriever.Retrieve(context.Background(), "the_sharp", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrInvalidInput))

	_, err = retriever.Retrieve(context.Background(), "unknown_expert", testQuery())
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrNotFound))
}

func TestNewRetrieverValidation(t *testing.T) {
	embed := &fakeEmbedder{vec: []float64{1, 0, 0}}

	_, err := retrieval.NewRetriever(nil, embed, testProfiles())
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrInvalidConfig))

	_, err = retrieval.NewRetriever(newFakeStore(), embed, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrInvalidConfig))

	// A nil embedder is allowed: the retriever runs structured-only.
	retriever, err := retrieval.NewRetriever(newFakeStore(), nil, testProfiles())
	require.NoError(t, err)

	result, err := retriever.Retrieve(context.Background(), "the_sharp", testQuery())
	require.NoError(t, err)
	assert.True(t, result.EmbeddingDegraded)
}
