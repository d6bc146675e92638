// Package scoring provides the similarity and temporal decay scorers used to
// rank candidate memories during retrieval.
package scoring

import (
	"fmt"
	"math"

	"github.com/gridironai/expertmem-go/pkg/core"
)

// DefaultAlpha is the default similarity floor in the blended weighted
// score. With alpha=0.5, a fully decayed memory still keeps half of its
// similarity score.
const DefaultAlpha = 0.5

// TemporalDecayScorer converts a memory's age and an expert's decay profile
// into a decay multiplier, and blends decay with similarity.
//
// The blend is deliberately not a pure product: with multiplicative decay an
// extremely similar but old memory would be erased outright, which is the
// wrong failure mode for a recall system. The blended form keeps a floor of
// alpha under the decay channel:
//
//	weighted = similarity * (alpha + (1-alpha) * decay)
type TemporalDecayScorer struct {
	// alpha is the similarity floor in [0,1]. alpha=1 ignores decay
	// entirely; alpha=0 is pure multiplicative decay.
	alpha float64
}

// NewTemporalDecayScorer creates a decay scorer with the given blend floor.
//
// Parameters:
//   - alpha: Similarity floor in [0,1]
//
// Returns an error if alpha is out of range.
func NewTemporalDecayScorer(alpha float64) (*TemporalDecayScorer, error) {
	if alpha < 0 || alpha > 1 {
		return nil, core.NewEngineError("NewTemporalDecayScorer",
			fmt.Errorf("%w: alpha must be in [0,1], got %v", core.ErrInvalidConfig, alpha))
	}
	return &TemporalDecayScorer{alpha: alpha}, nil
}

// Alpha returns the configured similarity floor.
func (s *TemporalDecayScorer) Alpha() float64 {
	return s.alpha
}

// WithAlpha returns a scorer with a different blend floor, for strategies
// that weight recency differently per call. Out-of-range values keep the
// receiver's floor.
func (s *TemporalDecayScorer) WithAlpha(alpha float64) *TemporalDecayScorer {
	if alpha < 0 || alpha > 1 {
		return s
	}
	return &TemporalDecayScorer{alpha: alpha}
}

// Decay returns the exponential decay multiplier for a memory of the given
// age:
//
//	decay = 0.5 ^ (age_days / half_life_days)
//
// Edge cases: ageDays <= 0 returns exactly 1.0. Non-positive half-lives are
// a configuration error rejected at profile load; if one slips through, the
// scorer returns 1.0 rather than producing NaN at query time.
func (s *TemporalDecayScorer) Decay(ageDays int, halfLifeDays float64) float64 {
	if ageDays <= 0 || halfLifeDays <= 0 {
		return 1.0
	}
	return math.Pow(0.5, float64(ageDays)/halfLifeDays)
}

// WeightedScore blends similarity and decay:
//
//	similarity * (alpha + (1-alpha) * decay)
//
// The result is clamped to [0,1] and is non-increasing in age for fixed
// similarity.
func (s *TemporalDecayScorer) WeightedScore(similarity, decay float64) float64 {
	return Clamp01(similarity * (s.alpha + (1-s.alpha)*decay))
}

// Clamp01 clamps v to [0,1].
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
