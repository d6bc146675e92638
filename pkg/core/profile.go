// Package core provides the shared types, errors, profiles, and configuration
// for the expert memory retrieval engine.
package core

import (
	"encoding/json"
	"fmt"
	"os"
)

// Names of the structured similarity dimensions an expert's analytical focus
// can weight. A dimension whose weight is at or below FocusThreshold is
// skipped entirely during scoring.
const (
	// DimensionTeams weights team-overlap similarity.
	DimensionTeams = "teams"

	// DimensionWeather weights weather similarity.
	DimensionWeather = "weather"

	// DimensionMarket weights betting-market similarity.
	DimensionMarket = "market"

	// DimensionSituational weights situational similarity (divisional,
	// primetime, week distance).
	DimensionSituational = "situational"
)

// FocusThreshold is the minimum analytical-focus weight for a dimension to
// contribute to similarity scoring. Experts that don't care about a
// dimension skip its computation entirely.
const FocusThreshold = 0.05

// ExpertRetrievalProfile is the per-expert retrieval configuration. It is
// loaded once at startup and treated as read-only for the runtime of a
// retrieval.
//
// Example:
//
//	profile := &core.ExpertRetrievalProfile{
//	    ExpertID:              "the_sharp",
//	    AnalyticalFocus:       map[string]float64{"teams": 0.4, "market": 0.6},
//	    DecayHalfLifeDays:     30,
//	    WorkingMemoryCapacity: 7,
//	    MaxReasoningMemories:  3,
//	    MaxContextualMemories: 2,
//	    MaxMarketMemories:     2,
//	    MaxLearningMemories:   2,
//	}
type ExpertRetrievalProfile struct {
	// ExpertID identifies the expert this profile belongs to.
	ExpertID string `json:"expert_id"`

	// AnalyticalFocus maps similarity dimension names to weights. Weights
	// need not sum to 1; scoring normalizes over contributing dimensions.
	AnalyticalFocus map[string]float64 `json:"analytical_focus"`

	// DecayHalfLifeDays is the number of days after which a memory's
	// temporal relevance halves. Must be positive.
	DecayHalfLifeDays float64 `json:"decay_half_life_days"`

	// WorkingMemoryCapacity is the maximum number of memories returned per
	// retrieval, modeling finite attention.
	WorkingMemoryCapacity int `json:"working_memory_capacity"`

	// MaxReasoningMemories caps prediction_outcome memories per result.
	// Zero leaves the type uncapped.
	MaxReasoningMemories int `json:"max_reasoning_memories"`

	// MaxContextualMemories caps contextual memories per result. Zero
	// leaves the type uncapped.
	MaxContextualMemories int `json:"max_contextual_memories"`

	// MaxMarketMemories caps market memories per result. Zero leaves the
	// type uncapped.
	MaxMarketMemories int `json:"max_market_memories"`

	// MaxLearningMemories caps learning memories per result. Zero leaves
	// the type uncapped.
	MaxLearningMemories int `json:"max_learning_memories"`

	// EmbeddingWeight is the weight of vector cosine similarity when an
	// embedding is available for both query and candidate. The structured
	// score receives the complement. Omitted means 0.5; an explicit zero
	// disables the vector component entirely.
	EmbeddingWeight *float64 `json:"embedding_weight,omitempty"`
}

// Validate checks the profile for configuration errors.
//
// Validation fails fast at profile load rather than producing NaN or
// divide-by-zero at query time. Checks:
//   - ExpertID must be set
//   - DecayHalfLifeDays must be positive
//   - WorkingMemoryCapacity must be positive
//   - per-type caps and focus weights must be non-negative
//   - EmbeddingWeight must be in [0,1]
//
// Returns ErrInvalidProfile (wrapped with detail) on the first violation.
func (p *ExpertRetrievalProfile) Validate() error {
	if p.ExpertID == "" {
		return NewEngineError("Validate", fmt.Errorf("%w: missing expert_id", ErrInvalidProfile))
	}
	if p.DecayHalfLifeDays <= 0 {
		return NewEngineError("Validate", fmt.Errorf("%w: expert %s: decay_half_life_days must be positive, got %v",
			ErrInvalidProfile, p.ExpertID, p.DecayHalfLifeDays))
	}
	if p.WorkingMemoryCapacity <= 0 {
		return NewEngineError("Validate", fmt.Errorf("%w: expert %s: working_memory_capacity must be positive, got %d",
			ErrInvalidProfile, p.ExpertID, p.WorkingMemoryCapacity))
	}
	for _, cap := range []int{p.MaxReasoningMemories, p.MaxContextualMemories, p.MaxMarketMemories, p.MaxLearningMemories} {
		if cap < 0 {
			return NewEngineError("Validate", fmt.Errorf("%w: expert %s: negative per-type cap", ErrInvalidProfile, p.ExpertID))
		}
	}
	for dim, w := range p.AnalyticalFocus {
		if w < 0 {
			return NewEngineError("Validate", fmt.Errorf("%w: expert %s: negative focus weight for %q",
				ErrInvalidProfile, p.ExpertID, dim))
		}
	}
	if p.EmbeddingWeight != nil && (*p.EmbeddingWeight < 0 || *p.EmbeddingWeight > 1) {
		return NewEngineError("Validate", fmt.Errorf("%w: expert %s: embedding_weight must be in [0,1], got %v",
			ErrInvalidProfile, p.ExpertID, *p.EmbeddingWeight))
	}
	return nil
}

// TypeCap returns the per-type sub-cap for the given memory type. A zero
// configured cap leaves the type uncapped, so the method returns the overall
// working-memory capacity for it; a profile that sets only some caps still
// admits memories of the other types.
func (p *ExpertRetrievalProfile) TypeCap(t MemoryType) int {
	var c int
	switch t {
	case MemoryTypePredictionOutcome:
		c = p.MaxReasoningMemories
	case MemoryTypeContextual:
		c = p.MaxContextualMemories
	case MemoryTypeMarket:
		c = p.MaxMarketMemories
	case MemoryTypeLearning:
		c = p.MaxLearningMemories
	}
	if c == 0 {
		return p.WorkingMemoryCapacity
	}
	return c
}

// VectorWeight returns EmbeddingWeight, defaulting to 0.5 when the profile
// does not set one. An explicit zero is honored so a profile can run on
// structured similarity alone.
func (p *ExpertRetrievalProfile) VectorWeight() float64 {
	if p.EmbeddingWeight == nil {
		return 0.5
	}
	return *p.EmbeddingWeight
}

// ProfileSource provides expert retrieval profiles keyed by expert ID. It is
// loaded once at startup and treated as read-only input at retrieval time.
type ProfileSource interface {
	// Profile returns the profile for the given expert, or ErrNotFound if
	// the expert is unknown.
	Profile(expertID string) (*ExpertRetrievalProfile, error)
}

// StaticProfiles is an in-memory ProfileSource backed by a map.
type StaticProfiles map[string]*ExpertRetrievalProfile

// Profile returns the profile for expertID, or ErrNotFound.
func (s StaticProfiles) Profile(expertID string) (*ExpertRetrievalProfile, error) {
	p, ok := s[expertID]
	if !ok {
		return nil, NewEngineError("Profile", fmt.Errorf("%w: expert %s", ErrNotFound, expertID))
	}
	return p, nil
}

// LoadProfiles loads and validates expert profiles from a JSON file.
//
// The file contains an array of profile objects. Every profile is validated
// on load; a single invalid profile fails the whole load so that
// configuration errors surface at startup, never mid-retrieval.
//
// Parameters:
//   - path: Path to the JSON profiles file
//
// Returns a StaticProfiles source, or an error if loading, parsing, or
// validation fails.
func LoadProfiles(path string) (StaticProfiles, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewEngineError("LoadProfiles", err)
	}

	var profiles []*ExpertRetrievalProfile
	if err := json.Unmarshal(data, &profiles); err != nil {
		return nil, NewEngineError("LoadProfiles", err)
	}

	source := make(StaticProfiles, len(profiles))
	for _, p := range profiles {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		source[p.ExpertID] = p
	}
	return source, nil
}
