// Package core provides the shared types, errors, profiles, and configuration
// for the expert memory retrieval engine.
package core

import "time"

// MemoryType tags a memory record by what it captures. The retriever uses the
// tag to apportion an expert's working-memory slots across types.
type MemoryType string

const (
	// MemoryTypePredictionOutcome records a prediction together with how the
	// game actually resolved.
	MemoryTypePredictionOutcome MemoryType = "prediction_outcome"

	// MemoryTypeContextual records situational observations about a game
	// without a graded prediction attached.
	MemoryTypeContextual MemoryType = "contextual"

	// MemoryTypeMarket records betting-market behavior (line movement,
	// public splits) around a game.
	MemoryTypeMarket MemoryType = "market"

	// MemoryTypeLearning records a distilled lesson the expert extracted
	// from past results.
	MemoryTypeLearning MemoryType = "learning"
)

// Channel identifies one of the independent text-to-vector encodings of a
// memory. A record carries up to four channel embeddings; each is optional
// and absent when the corresponding source text was empty.
type Channel string

const (
	// ChannelGameContext embeds the structured game snapshot.
	ChannelGameContext Channel = "game_context"

	// ChannelPrediction embeds the prediction payload.
	ChannelPrediction Channel = "prediction"

	// ChannelOutcome embeds the outcome payload.
	ChannelOutcome Channel = "outcome"

	// ChannelCombined embeds the labeled concatenation of the other three.
	ChannelCombined Channel = "combined"
)

// Channels lists every embedding channel in a fixed order.
var Channels = []Channel{ChannelGameContext, ChannelPrediction, ChannelOutcome, ChannelCombined}

// WeatherSnapshot captures game-day weather for structured similarity.
type WeatherSnapshot struct {
	// TemperatureF is the kickoff temperature in Fahrenheit.
	TemperatureF float64 `json:"temperature_f"`

	// WindMPH is the sustained wind speed in miles per hour.
	WindMPH float64 `json:"wind_mph"`

	// Conditions is a categorical description ("clear", "rain", "snow", "dome").
	Conditions string `json:"conditions,omitempty"`
}

// MarketSnapshot captures betting-market state for structured similarity.
type MarketSnapshot struct {
	// OpeningLine is the opening point spread (home-relative, negative when
	// the home team is favored).
	OpeningLine float64 `json:"opening_line"`

	// CurrentLine is the most recent point spread.
	CurrentLine float64 `json:"current_line"`

	// PublicHomePct is the share of public bets on the home side (0-100).
	PublicHomePct float64 `json:"public_home_pct"`
}

// LineMovement returns the signed spread movement since open.
func (m *MarketSnapshot) LineMovement() float64 {
	return m.CurrentLine - m.OpeningLine
}

// GameContext is the structured snapshot of a game used both as the query
// side of a retrieval and as the stored context of a memory. Optional
// sections (Weather, Market) are nil when unknown; scorers treat absent
// sections as non-contributing rather than dissimilar.
type GameContext struct {
	// HomeTeam and AwayTeam are team abbreviations (e.g. "KC", "BUF").
	HomeTeam string `json:"home_team"`
	AwayTeam string `json:"away_team"`

	// Week is the week of the season (1-18 regular season).
	Week int `json:"week"`

	// Season is the season year (e.g. 2025).
	Season int `json:"season"`

	// Divisional reports whether the matchup is intra-division.
	Divisional bool `json:"divisional"`

	// Primetime reports whether the game kicks off in a primetime slot.
	Primetime bool `json:"primetime"`

	// Weather is the weather snapshot (nil when unknown or irrelevant).
	Weather *WeatherSnapshot `json:"weather,omitempty"`

	// Market is the betting-market snapshot (nil when unknown).
	Market *MarketSnapshot `json:"market,omitempty"`

	// Injuries lists notable injury designations ("KC QB questionable").
	Injuries []string `json:"injuries,omitempty"`

	// SituationalFlags lists free-form situational markers
	// ("short_week", "revenge_game", "must_win").
	SituationalFlags []string `json:"situational_flags,omitempty"`
}

// Teams returns the two team abbreviations.
func (g *GameContext) Teams() [2]string {
	return [2]string{g.HomeTeam, g.AwayTeam}
}

// PredictionData is the structured payload of what an expert predicted.
type PredictionData struct {
	// Winner is the predicted winning team abbreviation.
	Winner string `json:"winner,omitempty"`

	// Margin is the predicted victory margin in points.
	Margin float64 `json:"margin,omitempty"`

	// Total is the predicted combined score.
	Total float64 `json:"total,omitempty"`

	// Confidence is the expert's stated confidence (0.0-1.0).
	Confidence float64 `json:"confidence,omitempty"`

	// Rationale is a short free-text justification.
	Rationale string `json:"rationale,omitempty"`
}

// OutcomeData is the structured payload of how the game resolved.
type OutcomeData struct {
	// Winner is the winning team abbreviation.
	Winner string `json:"winner,omitempty"`

	// HomeScore and AwayScore are the final scores.
	HomeScore int `json:"home_score"`
	AwayScore int `json:"away_score"`

	// Upset reports whether the pregame underdog won outright.
	Upset bool `json:"upset"`

	// Narrative is a short free-text account of the result.
	Narrative string `json:"narrative,omitempty"`
}

// MemoryRecord is a stored episodic memory: one expert's recollection of one
// game, with structured payloads and up to four channel embeddings.
//
// Invariants:
//   - ID is unique and assigned at creation.
//   - CreatedAt is immutable after creation; it is the sole basis for decay.
//   - EmotionalIntensity is clamped to [0,1].
//   - A record with no embeddings exists but is excluded from similarity
//     search until its embeddings are backfilled.
type MemoryRecord struct {
	// ID is the unique identifier of the memory.
	ID int64 `json:"id"`

	// ExpertID identifies the owning expert. Memories are never shared
	// across experts at retrieval time.
	ExpertID string `json:"expert_id"`

	// GameID references the game the memory is about.
	GameID string `json:"game_id"`

	// MemoryType tags the record for working-memory slot apportionment.
	MemoryType MemoryType `json:"memory_type"`

	// CreatedAt is when the memory was created. Never mutated.
	CreatedAt time.Time `json:"created_at"`

	// GameContext is the structured game snapshot.
	GameContext *GameContext `json:"game_context,omitempty"`

	// PredictionData is what was predicted (optional).
	PredictionData *PredictionData `json:"prediction_data,omitempty"`

	// OutcomeData is what happened (optional).
	OutcomeData *OutcomeData `json:"outcome_data,omitempty"`

	// LessonsLearned is an ordered list of short insights extracted at
	// creation time.
	LessonsLearned []string `json:"lessons_learned,omitempty"`

	// EmotionalIntensity is the vividness weight in [0,1], higher for
	// surprising or upset outcomes.
	EmotionalIntensity float64 `json:"emotional_intensity"`

	// Embeddings holds the per-channel vectors. Omitted from JSON to keep
	// payloads small.
	Embeddings map[Channel][]float64 `json:"-"`

	// RetrievalCount is incremented each time the memory is returned by the
	// retriever. Read by quality analysis.
	RetrievalCount int64 `json:"retrieval_count"`
}

// Ready reports whether the record has at least one embedding and is
// therefore eligible for similarity search.
func (r *MemoryRecord) Ready() bool {
	for _, v := range r.Embeddings {
		if len(v) > 0 {
			return true
		}
	}
	return false
}

// AgeDays returns the record's age in whole days as of now.
func (r *MemoryRecord) AgeDays(now time.Time) int {
	if r.CreatedAt.IsZero() || now.Before(r.CreatedAt) {
		return 0
	}
	return int(now.Sub(r.CreatedAt).Hours() / 24)
}

// RetrievedMemory is a MemoryRecord paired with its query-time scores. It is
// ephemeral: built per retrieval, never persisted.
type RetrievedMemory struct {
	// Record is the underlying stored memory.
	Record *MemoryRecord `json:"record"`

	// SimilarityScore is the structured(+vector) similarity in [0,1].
	SimilarityScore float64 `json:"similarity_score"`

	// RelevanceScore is the composite score after decay and strategy
	// weighting, in [0,1]. Final ordering is by this score.
	RelevanceScore float64 `json:"relevance_score"`

	// RetrievalReason is a human-readable provenance string: which
	// channel(s) matched and the dominant similarity dimension.
	RetrievalReason string `json:"retrieval_reason"`

	// Rank is the 1-based position after the final sort.
	Rank int `json:"rank"`
}

// RetrievalResult is what callers receive from the retriever. Recoverable
// failures never surface as errors; they are reflected in the flags below so
// downstream prediction logic can adjust rather than silently proceeding.
type RetrievalResult struct {
	// ExpertID is the expert the retrieval was performed for.
	ExpertID string `json:"expert_id"`

	// Memories is the final ranked result set.
	Memories []*RetrievedMemory `json:"memories"`

	// Degraded is true when the store was unavailable and the result is
	// empty for that reason.
	Degraded bool `json:"degraded"`

	// EmbeddingDegraded is true when the embedding provider was unavailable
	// and scoring fell back to structured similarity only.
	EmbeddingDegraded bool `json:"embedding_degraded"`

	// CacheHit is true when the result was served from the retrieval cache.
	CacheHit bool `json:"cache_hit"`

	// Latency is the wall-clock duration of the retrieval call.
	Latency time.Duration `json:"latency"`

	// RetrievedAt is when the result was produced.
	RetrievedAt time.Time `json:"retrieved_at"`
}

// QualityMetrics scores one memory's long-run usefulness. Every component is
// in [0,1]; QualityScore is the fixed-weight combination.
type QualityMetrics struct {
	// RelevanceAccuracy estimates how often the memory earns its retrievals
	// relative to its age.
	RelevanceAccuracy float64 `json:"relevance_accuracy"`

	// PredictionImpact is a heuristic proxy built from emotional intensity
	// and memory type. It does not join against realized outcome accuracy
	// and should be treated as best-effort, not ground truth.
	PredictionImpact float64 `json:"prediction_impact"`

	// RetrievalEfficiency rewards memories that keep being retrieved.
	RetrievalEfficiency float64 `json:"retrieval_efficiency"`

	// ContentRichness rewards lessons, structured payloads, and embedding
	// coverage.
	ContentRichness float64 `json:"content_richness"`

	// TemporalStability rewards memories that stay useful as they age.
	TemporalStability float64 `json:"temporal_stability"`

	// QualityScore is the weighted overall score in [0,1].
	QualityScore float64 `json:"quality_score"`
}
