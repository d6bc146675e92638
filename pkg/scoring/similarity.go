// Package scoring provides the similarity and temporal decay scorers used to
// rank candidate memories during retrieval.
package scoring

import (
	"math"
	"strings"

	"github.com/gridironai/expertmem-go/pkg/core"
)

// NeutralScore is returned when no structured dimension contributes. An
// empty signal must not be indistinguishable from "definitely dissimilar",
// so the default is neutral rather than zero.
const NeutralScore = 0.5

// SimilarityScorer combines structured-field overlap between two game
// contexts into a single similarity score, weighted by the expert's
// analytical focus.
//
// Each dimension (teams, weather, market, situational) only contributes if
// the expert's focus weight for it exceeds core.FocusThreshold. Skipping is
// a performance optimization as much as a correctness rule: most experts
// are insensitive to most dimensions, and skipped dimensions are never
// computed at all.
type SimilarityScorer struct{}

// NewSimilarityScorer creates a structured similarity scorer.
func NewSimilarityScorer() *SimilarityScorer {
	return &SimilarityScorer{}
}

// Score computes the weight-normalized structured similarity between a
// query context and a candidate context for the given expert profile.
//
// Returns a score in [0,1]; NeutralScore when no dimension contributes
// (empty focus, or the data for every focused dimension is absent).
func (s *SimilarityScorer) Score(query, candidate *core.GameContext, profile *core.ExpertRetrievalProfile) float64 {
	breakdown := s.Breakdown(query, candidate, profile)
	if len(breakdown) == 0 {
		return NeutralScore
	}

	var weighted, total float64
	for dim, sub := range breakdown {
		w := profile.AnalyticalFocus[dim]
		weighted += w * sub
		total += w
	}
	if total == 0 {
		return NeutralScore
	}
	return Clamp01(weighted / total)
}

// Breakdown returns the per-dimension sub-scores that contribute for this
// profile. Dimensions whose focus weight is at or below core.FocusThreshold,
// or whose data is absent on either side, are omitted.
func (s *SimilarityScorer) Breakdown(query, candidate *core.GameContext, profile *core.ExpertRetrievalProfile) map[string]float64 {
	breakdown := make(map[string]float64, 4)
	if query == nil || candidate == nil {
		return breakdown
	}

	if profile.AnalyticalFocus[core.DimensionTeams] > core.FocusThreshold {
		breakdown[core.DimensionTeams] = teamOverlap(query, candidate)
	}
	if profile.AnalyticalFocus[core.DimensionWeather] > core.FocusThreshold {
		if sub, ok := weatherSimilarity(query.Weather, candidate.Weather); ok {
			breakdown[core.DimensionWeather] = sub
		}
	}
	if profile.AnalyticalFocus[core.DimensionMarket] > core.FocusThreshold {
		if sub, ok := marketSimilarity(query.Market, candidate.Market); ok {
			breakdown[core.DimensionMarket] = sub
		}
	}
	if profile.AnalyticalFocus[core.DimensionSituational] > core.FocusThreshold {
		breakdown[core.DimensionSituational] = situationalSimilarity(query, candidate)
	}

	return breakdown
}

// DominantDimension returns the contributing dimension with the highest
// focus-weighted sub-score, or "" if none contributed. Ties resolve in the
// fixed dimension order for determinism.
func (s *SimilarityScorer) DominantDimension(breakdown map[string]float64, profile *core.ExpertRetrievalProfile) string {
	dominant := ""
	best := -1.0
	for _, dim := range []string{core.DimensionTeams, core.DimensionWeather, core.DimensionMarket, core.DimensionSituational} {
		sub, ok := breakdown[dim]
		if !ok {
			continue
		}
		weighted := profile.AnalyticalFocus[dim] * sub
		if weighted > best {
			best = weighted
			dominant = dim
		}
	}
	return dominant
}

// ScoreWithVector blends the structured score with an embedding cosine
// similarity. The vector is an additional weighted component, never a
// replacement: structured and embedding similarity are complementary
// signals.
//
// Parameters:
//   - structured: Structured similarity in [0,1]
//   - cosine: Vector cosine similarity mapped into [0,1]
//   - vectorWeight: Weight of the vector component in [0,1]
func (s *SimilarityScorer) ScoreWithVector(structured, cosine, vectorWeight float64) float64 {
	vectorWeight = Clamp01(vectorWeight)
	return Clamp01(structured*(1-vectorWeight) + cosine*vectorWeight)
}

// teamOverlap scores shared teams: 0 shared -> 0, 1 shared -> 0.5,
// 2 shared -> 1.
func teamOverlap(query, candidate *core.GameContext) float64 {
	shared := 0
	for _, qt := range query.Teams() {
		if qt == "" {
			continue
		}
		for _, ct := range candidate.Teams() {
			if qt == ct {
				shared++
				break
			}
		}
	}
	switch {
	case shared >= 2:
		return 1
	case shared == 1:
		return 0.5
	default:
		return 0
	}
}

// weatherSimilarity scores temperature delta, wind delta, and categorical
// condition match. Returns ok=false when either side has no weather data.
func weatherSimilarity(query, candidate *core.WeatherSnapshot) (float64, bool) {
	if query == nil || candidate == nil {
		return 0, false
	}

	tempScore := 1 - math.Min(math.Abs(query.TemperatureF-candidate.TemperatureF)/40.0, 1)
	windScore := 1 - math.Min(math.Abs(query.WindMPH-candidate.WindMPH)/25.0, 1)

	sum := tempScore + windScore
	n := 2.0
	if query.Conditions != "" && candidate.Conditions != "" {
		if strings.EqualFold(query.Conditions, candidate.Conditions) {
			sum++
		}
		n++
	}
	return sum / n, true
}

// marketSimilarity scores line-movement direction and magnitude agreement
// plus the public-betting delta. Returns ok=false when either side has no
// market data.
func marketSimilarity(query, candidate *core.MarketSnapshot) (float64, bool) {
	if query == nil || candidate == nil {
		return 0, false
	}

	qMove, cMove := query.LineMovement(), candidate.LineMovement()

	dirScore := 0.0
	if sameDirection(qMove, cMove) {
		dirScore = 1.0
	}
	magScore := 1 - math.Min(math.Abs(qMove-cMove)/7.0, 1)
	pubScore := 1 - math.Min(math.Abs(query.PublicHomePct-candidate.PublicHomePct)/50.0, 1)

	return 0.4*dirScore + 0.3*magScore + 0.3*pubScore, true
}

// situationalSimilarity scores divisional match, primetime match, and
// week-distance decay.
func situationalSimilarity(query, candidate *core.GameContext) float64 {
	score := 0.0
	if query.Divisional == candidate.Divisional {
		score++
	}
	if query.Primetime == candidate.Primetime {
		score++
	}
	weekDelta := math.Abs(float64(query.Week - candidate.Week))
	score += 1 - math.Min(weekDelta/17.0, 1)
	return score / 3
}

// sameDirection reports whether two line movements agree in direction.
// Movements under half a point are treated as flat.
func sameDirection(a, b float64) bool {
	const flat = 0.5
	switch {
	case math.Abs(a) < flat && math.Abs(b) < flat:
		return true
	case a >= flat && b >= flat:
		return true
	case a <= -flat && b <= -flat:
		return true
	default:
		return false
	}
}
