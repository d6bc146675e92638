// Package scoring provides the similarity and temporal decay scorers used to
// rank candidate memories during retrieval.
package scoring

// Strategy names a weighting preset over similarity, recency, and vividness.
type Strategy string

const (
	// StrategySimilarityOnly ranks purely by similarity; decay and
	// vividness are ignored.
	StrategySimilarityOnly Strategy = "similarity_only"

	// StrategyRecencyWeighted splits evenly between similarity and recency.
	StrategyRecencyWeighted Strategy = "recency_weighted"

	// StrategyAdaptive varies the weights by week of season: early season
	// favors similarity over recency, since there is little current-season
	// history to be recent about; late season balances all three signals.
	StrategyAdaptive Strategy = "adaptive"
)

// Weights is a weighting over the three relevance signals. The weights need
// not sum to 1; composition normalizes.
type Weights struct {
	// Similarity weights the (structured + vector) similarity signal.
	Similarity float64

	// Recency weights the temporal decay signal.
	Recency float64

	// Vividness weights the memory's emotional intensity.
	Vividness float64
}

// Alpha returns the similarity floor for the blended decay formula derived
// from the similarity/recency split: alpha = S / (S + R). A strategy with
// no recency weight yields alpha=1 (decay has no effect); an even split
// yields alpha=0.5.
func (w Weights) Alpha() float64 {
	total := w.Similarity + w.Recency
	if total <= 0 {
		return 1
	}
	return w.Similarity / total
}

// vividnessShare returns the normalized share of the vividness signal.
func (w Weights) vividnessShare() float64 {
	total := w.Similarity + w.Recency + w.Vividness
	if total <= 0 {
		return 0
	}
	return w.Vividness / total
}

// ResolveStrategy maps a strategy name and the query's week-of-season to
// concrete weights. Unknown strategies resolve to recency-weighted.
func ResolveStrategy(strategy Strategy, week int) Weights {
	switch strategy {
	case StrategySimilarityOnly:
		return Weights{Similarity: 1}
	case StrategyAdaptive:
		switch {
		case week > 0 && week <= 6:
			return Weights{Similarity: 0.7, Recency: 0.15, Vividness: 0.15}
		case week > 6 && week <= 12:
			return Weights{Similarity: 0.5, Recency: 0.3, Vividness: 0.2}
		default:
			return Weights{Similarity: 0.4, Recency: 0.35, Vividness: 0.25}
		}
	default:
		return Weights{Similarity: 0.5, Recency: 0.5}
	}
}

// Composite combines similarity, decay, and vividness under the given
// weights into the final relevance score.
//
// The similarity and decay signals combine through the blended decay
// formula (see TemporalDecayScorer.WeightedScore) with alpha derived from
// the similarity/recency split; vividness then mixes in by its normalized
// share. The result is clamped to [0,1].
func Composite(w Weights, similarity, decay, vividness float64) float64 {
	blended := Clamp01(similarity * (w.Alpha() + (1-w.Alpha())*decay))
	share := w.vividnessShare()
	return Clamp01(blended*(1-share) + Clamp01(vividness)*share)
}
