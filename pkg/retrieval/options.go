package retrieval

import (
	"github.com/gridironai/expertmem-go/pkg/scoring"
)

// DefaultRelevanceThreshold is the minimum composite relevance score a
// memory needs to make the result set.
const DefaultRelevanceThreshold = 0.25

// RetrieveOptions holds the per-call retrieval parameters.
type RetrieveOptions struct {
	// MaxMemories caps the result set. Zero means the expert's working
	// memory capacity; a positive value is additionally clamped to that
	// capacity.
	MaxMemories int

	// RelevanceThreshold is the minimum composite relevance score. Memories
	// scoring below it are dropped even when slots remain.
	RelevanceThreshold float64

	// Strategy selects the similarity/recency/vividness weighting preset.
	Strategy scoring.Strategy

	// DisableCache bypasses the result cache for this call, both lookup and
	// population.
	DisableCache bool
}

// RetrieveOption configures a single Retrieve call.
type RetrieveOption func(*RetrieveOptions)

// WithMaxMemories caps the number of memories returned. The expert's
// working memory capacity still applies as an upper bound.
func WithMaxMemories(n int) RetrieveOption {
	return func(o *RetrieveOptions) {
		o.MaxMemories = n
	}
}

// WithRelevanceThreshold overrides the minimum relevance score.
func WithRelevanceThreshold(threshold float64) RetrieveOption {
	return func(o *RetrieveOptions) {
		o.RelevanceThreshold = threshold
	}
}

// WithStrategy selects the retrieval weighting strategy.
func WithStrategy(strategy scoring.Strategy) RetrieveOption {
	return func(o *RetrieveOptions) {
		o.Strategy = strategy
	}
}

// WithoutCache bypasses the result cache for this call.
func WithoutCache() RetrieveOption {
	return func(o *RetrieveOptions) {
		o.DisableCache = true
	}
}

// ApplyRetrieveOptions builds the effective options from defaults plus the
// given option functions.
func ApplyRetrieveOptions(opts ...RetrieveOption) *RetrieveOptions {
	options := &RetrieveOptions{
		RelevanceThreshold: DefaultRelevanceThreshold,
		Strategy:           scoring.StrategyRecencyWeighted,
	}
	for _, opt := range opts {
		opt(options)
	}
	return options
}
