package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gridironai/expertmem-go/pkg/core"
	"github.com/gridironai/expertmem-go/pkg/embedder"
	"github.com/gridironai/expertmem-go/pkg/encoder"
	"github.com/gridironai/expertmem-go/pkg/scoring"
	"github.com/gridironai/expertmem-go/pkg/storage"
)

// channelAgreementBoost is added to the relevance of a memory that surfaced
// on more than one embedding channel. Independent channels agreeing is a
// stronger signal than either alone.
const channelAgreementBoost = 0.05

// queryChannels are the embedding channels searched per retrieval. The
// combined channel captures the whole episode; the game-context channel
// catches memories whose context matches even when prediction and outcome
// text dominate the combined vector.
var queryChannels = []core.Channel{core.ChannelCombined, core.ChannelGameContext}

// Retriever is the episodic memory retriever. Given an expert and an
// upcoming game, it returns the expert's most relevant past memories,
// ranked, capped by working-memory limits, and annotated with provenance.
//
// Failure policy: recoverable infrastructure failures never surface as
// errors. Embedding provider failure degrades the call to structured-only
// similarity; store failure yields an empty result. Both are reported via
// flags on the RetrievalResult so prediction logic can adjust confidence.
// Only caller mistakes (unknown expert, nil query) return errors.
//
// Safe for concurrent use.
type Retriever struct {
	store      storage.MemoryStore
	embedder   embedder.Provider
	profiles   core.ProfileSource
	similarity *scoring.SimilarityScorer
	decay      *scoring.TemporalDecayScorer
	cache      Cache
	cacheSet   bool
	logger     *slog.Logger
	tuning     core.RetrievalConfig
}

// Option configures a Retriever at construction time.
type Option func(*Retriever)

// WithCache replaces the default LRU result cache. Passing nil disables
// caching entirely.
func WithCache(cache Cache) Option {
	return func(r *Retriever) {
		r.cache = cache
		r.cacheSet = true
	}
}

// WithLogger sets the structured logger. Defaults to slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Retriever) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithTuning overrides the retrieval tuning parameters. Unset fields take
// their defaults.
func WithTuning(tuning core.RetrievalConfig) Option {
	return func(r *Retriever) {
		tuning.ApplyDefaults()
		r.tuning = tuning
	}
}

// NewRetriever creates a memory retriever.
//
// Parameters:
//   - store: The memory store backend (required)
//   - embed: The embedding provider; nil runs the retriever in permanent
//     structured-only mode
//   - profiles: The expert profile source (required)
//   - opts: Optional configuration
//
// Returns the retriever, or ErrInvalidConfig if a required dependency is
// missing.
func NewRetriever(store storage.MemoryStore, embed embedder.Provider, profiles core.ProfileSource, opts ...Option) (*Retriever, error) {
	if store == nil {
		return nil, core.NewEngineError("NewRetriever", fmt.Errorf("%w: nil memory store", core.ErrInvalidConfig))
	}
	if profiles == nil {
		return nil, core.NewEngineError("NewRetriever", fmt.Errorf("%w: nil profile source", core.ErrInvalidConfig))
	}

	decay, err := scoring.NewTemporalDecayScorer(scoring.DefaultAlpha)
	if err != nil {
		return nil, err
	}

	r := &Retriever{
		store:      store,
		embedder:   embed,
		profiles:   profiles,
		similarity: scoring.NewSimilarityScorer(),
		decay:      decay,
		logger:     slog.Default(),
	}
	r.tuning.ApplyDefaults()

	for _, opt := range opts {
		opt(r)
	}
	if !r.cacheSet {
		r.cache = NewLRUCache(r.tuning.CacheCapacity, r.tuning.CacheTTL)
	}

	return r, nil
}

// candidate is a scoring-stage view of one fetched record.
type candidate struct {
	record    *core.MemoryRecord
	channels  []core.Channel
	cosine    float64
	hasCosine bool
}

// Retrieve returns the ranked memories for an expert facing the given game.
//
// The pipeline: cache lookup, query embedding, parallel per-channel
// candidate fetch, per-candidate scoring (structured + vector similarity
// blended with temporal decay and vividness under the strategy weights),
// channel-agreement merge, relevance threshold, per-type working-memory
// caps, rank assignment, and retrieval-count bookkeeping.
//
// Given identical inputs and store contents, the ranked output is
// deterministic: ties in relevance break by ascending memory ID.
//
// Returns an error only for caller mistakes (unknown expert, nil query).
// Infrastructure failures degrade the result instead; check the Degraded
// and EmbeddingDegraded flags.
func (r *Retriever) Retrieve(ctx context.Context, expertID string, query *core.GameContext, opts ...RetrieveOption) (*core.RetrievalResult, error) {
	start := time.Now()

	if expertID == "" {
		return nil, core.NewEngineError("Retrieve", fmt.Errorf("%w: empty expert id", core.ErrInvalidInput))
	}
	if query == nil {
		return nil, core.NewEngineError("Retrieve", fmt.Errorf("%w: nil game context", core.ErrInvalidInput))
	}

	profile, err := r.profiles.Profile(expertID)
	if err != nil {
		return nil, err
	}

	options := ApplyRetrieveOptions(opts...)
	limit := profile.WorkingMemoryCapacity
	if options.MaxMemories > 0 && options.MaxMemories < limit {
		limit = options.MaxMemories
	}

	key := Fingerprint(expertID, query, limit, options.RelevanceThreshold, options.Strategy)
	if !options.DisableCache && r.cache != nil {
		if cached, ok := r.cache.Get(key); ok {
			hit := *cached
			hit.CacheHit = true
			hit.Latency = time.Since(start)
			return &hit, nil
		}
	}

	weights := scoring.ResolveStrategy(options.Strategy, query.Week)
	queryVec, embeddingDegraded := r.embedQuery(ctx, query)

	candidates, err := r.fetchCandidates(ctx, expertID, queryVec, embeddingDegraded)
	if err != nil {
		r.logger.Error("memory store unavailable, returning empty result",
			"expert_id", expertID, "error", err)
		return &core.RetrievalResult{
			ExpertID:          expertID,
			Memories:          []*core.RetrievedMemory{},
			Degraded:          true,
			EmbeddingDegraded: embeddingDegraded,
			Latency:           time.Since(start),
			RetrievedAt:       time.Now(),
		}, nil
	}

	now := time.Now()
	scored := make([]*core.RetrievedMemory, 0, len(candidates))
	for _, c := range candidates {
		scored = append(scored, r.scoreCandidate(query, profile, weights, c, now))
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].RelevanceScore != scored[j].RelevanceScore {
			return scored[i].RelevanceScore > scored[j].RelevanceScore
		}
		return scored[i].Record.ID < scored[j].Record.ID
	})

	memories := r.applyLimits(scored, profile, options.RelevanceThreshold, limit)

	for i, m := range memories {
		m.Rank = i + 1
		if err := r.store.IncrementRetrievalCount(ctx, m.Record.ID); err != nil {
			r.logger.Warn("failed to increment retrieval count",
				"memory_id", m.Record.ID, "error", err)
		} else {
			m.Record.RetrievalCount++
		}
	}

	result := &core.RetrievalResult{
		ExpertID:          expertID,
		Memories:          memories,
		EmbeddingDegraded: embeddingDegraded,
		Latency:           time.Since(start),
		RetrievedAt:       now,
	}

	if result.Latency > r.tuning.LatencyTarget {
		r.logger.Warn("retrieval exceeded latency target",
			"expert_id", expertID,
			"latency", result.Latency,
			"target", r.tuning.LatencyTarget)
	}

	// Degraded results are never cached: they would pin a bad answer for
	// the full TTL after the provider recovers.
	if !options.DisableCache && !embeddingDegraded && r.cache != nil {
		r.cache.Put(key, result)
	}

	return result, nil
}

// embedQuery encodes and embeds the query context. The second return is
// true when the retrieval must fall back to structured-only similarity.
func (r *Retriever) embedQuery(ctx context.Context, query *core.GameContext) ([]float64, bool) {
	if r.embedder == nil {
		return nil, true
	}
	text := encoder.EncodeGameContext(query)
	if text == "" {
		return nil, true
	}
	vec, err := r.embedder.Embed(ctx, text)
	if err != nil {
		r.logger.Warn("embedding provider unavailable, falling back to structured similarity",
			"error", err)
		return nil, true
	}
	return vec, false
}

// fetchCandidates gathers candidate records, either via parallel
// per-channel nearest-neighbor queries or, in degraded mode, via a recency
// listing. Malformed records are skipped with a warning. Returns an error
// only when the store itself fails.
func (r *Retriever) fetchCandidates(ctx context.Context, expertID string, queryVec []float64, structuredOnly bool) ([]*candidate, error) {
	if structuredOnly {
		recs, err := r.store.ListByExpert(ctx, expertID, r.tuning.CandidatesPerChannel*len(queryChannels), 0)
		if err != nil {
			return nil, err
		}
		candidates := make([]*candidate, 0, len(recs))
		for _, rec := range recs {
			record, ok := r.decodeRecord(rec)
			if !ok {
				continue
			}
			candidates = append(candidates, &candidate{record: record})
		}
		return candidates, nil
	}

	results := make([][]*storage.Record, len(queryChannels))
	g, gctx := errgroup.WithContext(ctx)
	for i, ch := range queryChannels {
		i, ch := i, ch
		g.Go(func() error {
			recs, err := r.store.QueryNearest(gctx, expertID, string(ch), queryVec, r.tuning.CandidatesPerChannel)
			if err != nil {
				return err
			}
			results[i] = recs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Merge channels in fixed order so the candidate list is deterministic.
	// A record seen on several channels keeps its best cosine and remembers
	// every channel it surfaced on.
	byID := make(map[int64]*candidate)
	var ordered []*candidate
	for i, ch := range queryChannels {
		for _, rec := range results[i] {
			if existing, ok := byID[rec.ID]; ok {
				existing.channels = append(existing.channels, ch)
				if rec.Score > existing.cosine {
					existing.cosine = rec.Score
				}
				continue
			}
			record, ok := r.decodeRecord(rec)
			if !ok {
				continue
			}
			c := &candidate{
				record:    record,
				channels:  []core.Channel{ch},
				cosine:    rec.Score,
				hasCosine: true,
			}
			byID[rec.ID] = c
			ordered = append(ordered, c)
		}
	}
	return ordered, nil
}

// decodeRecord converts a stored record, rejecting malformed ones. A memory
// without a creation time cannot be decayed and one without a game context
// cannot be compared; neither is scorable.
func (r *Retriever) decodeRecord(rec *storage.Record) (*core.MemoryRecord, bool) {
	record := core.FromStorageRecord(rec)
	if record.CreatedAt.IsZero() || record.GameContext == nil {
		r.logger.Warn("skipping malformed memory record",
			"memory_id", rec.ID, "expert_id", rec.ExpertID)
		return nil, false
	}
	return record, true
}

// scoreCandidate computes the similarity and composite relevance scores for
// one candidate and builds its provenance string.
func (r *Retriever) scoreCandidate(query *core.GameContext, profile *core.ExpertRetrievalProfile, weights scoring.Weights, c *candidate, now time.Time) *core.RetrievedMemory {
	breakdown := r.similarity.Breakdown(query, c.record.GameContext, profile)
	structured := r.similarity.Score(query, c.record.GameContext, profile)

	sim := structured
	if c.hasCosine {
		sim = r.similarity.ScoreWithVector(structured, c.cosine, profile.VectorWeight())
	}

	decay := r.decay.Decay(c.record.AgeDays(now), profile.DecayHalfLifeDays)
	relevance := scoring.Composite(weights, sim, decay, c.record.EmotionalIntensity)
	if len(c.channels) >= 2 {
		relevance = scoring.Clamp01(relevance + channelAgreementBoost)
	}

	dominant := r.similarity.DominantDimension(breakdown, profile)
	return &core.RetrievedMemory{
		Record:          c.record,
		SimilarityScore: sim,
		RelevanceScore:  relevance,
		RetrievalReason: retrievalReason(c, dominant),
	}
}

// applyLimits filters by the relevance threshold and enforces the expert's
// per-type sub-caps and overall working-memory limit, preserving score
// order. A zero per-type cap leaves that type uncapped; only the overall
// limit bounds it.
func (r *Retriever) applyLimits(scored []*core.RetrievedMemory, profile *core.ExpertRetrievalProfile, threshold float64, limit int) []*core.RetrievedMemory {
	perType := make(map[core.MemoryType]int, 4)
	memories := make([]*core.RetrievedMemory, 0, limit)
	for _, m := range scored {
		if len(memories) >= limit {
			break
		}
		if m.RelevanceScore < threshold {
			// Scored list is sorted descending; everything after is below
			// threshold too.
			break
		}
		if perType[m.Record.MemoryType] >= profile.TypeCap(m.Record.MemoryType) {
			continue
		}
		perType[m.Record.MemoryType]++
		memories = append(memories, m)
	}
	return memories
}

// retrievalReason builds the human-readable provenance string for one
// retrieved memory.
func retrievalReason(c *candidate, dominant string) string {
	var b strings.Builder
	if c.hasCosine {
		names := make([]string, len(c.channels))
		for i, ch := range c.channels {
			names[i] = string(ch)
		}
		b.WriteString("matched channels " + strings.Join(names, ", "))
	} else {
		b.WriteString("structured similarity")
	}
	if dominant != "" {
		b.WriteString("; dominant dimension: " + dominant)
	} else {
		b.WriteString("; no dominant dimension")
	}
	return b.String()
}
