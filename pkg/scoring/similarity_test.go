package scoring_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gridironai/expertmem-go/pkg/core"
	"github.com/gridironai/expertmem-go/pkg/scoring"
)

func marketFocusedProfile() *core.ExpertRetrievalProfile {
	return &core.ExpertRetrievalProfile{
		ExpertID: "sharp",
		AnalyticalFocus: map[string]float64{
			core.DimensionTeams:  0.3,
			core.DimensionMarket: 0.7,
		},
		DecayHalfLifeDays:     30,
		WorkingMemoryCapacity: 7,
	}
}

func TestScoreNeutralWhenNothingContributes(t *testing.T) {
	scorer := scoring.NewSimilarityScorer()

	// No analytical focus at all.
	empty := &core.ExpertRetrievalProfile{
		ExpertID:              "blank",
		DecayHalfLifeDays:     30,
		WorkingMemoryCapacity: 7,
	}
	query := &core.GameContext{HomeTeam: "KC", AwayTeam: "BUF", Week: 5}
	candidate := &core.GameContext{HomeTeam: "KC", AwayTeam: "BUF", Week: 5}
	assert.Equal(t, scoring.NeutralScore, scorer.Score(query, candidate, empty))

	// Focused only on market, but neither side has market data: the
	// dimension is skipped, leaving nothing, which must read neutral
	// rather than dissimilar.
	marketOnly := &core.ExpertRetrievalProfile{
		ExpertID:              "market_only",
		AnalyticalFocus:       map[string]float64{core.DimensionMarket: 1.0},
		DecayHalfLifeDays:     30,
		WorkingMemoryCapacity: 7,
	}
	assert.Equal(t, scoring.NeutralScore, scorer.Score(query, candidate, marketOnly))
}

func TestBreakdownGating(t *testing.T) {
	scorer := scoring.NewSimilarityScorer()
	query := &core.GameContext{
		HomeTeam: "KC", AwayTeam: "BUF", Week: 5,
		Weather: &core.WeatherSnapshot{TemperatureF: 20, WindMPH: 18, Conditions: "snow"},
		Market:  &core.MarketSnapshot{OpeningLine: -3.5, CurrentLine: -5.5, PublicHomePct: 72},
	}
	candidate := &core.GameContext{
		HomeTeam: "KC", AwayTeam: "DEN", Week: 8,
		Weather: &core.WeatherSnapshot{TemperatureF: 25, WindMPH: 15, Conditions: "snow"},
		Market:  &core.MarketSnapshot{OpeningLine: -2.5, CurrentLine: -4.0, PublicHomePct: 65},
	}

	breakdown := scorer.Breakdown(query, candidate, marketFocusedProfile())
	assert.Contains(t, breakdown, core.DimensionTeams)
	assert.Contains(t, breakdown, core.DimensionMarket)
	// Weather and situational are below the focus threshold for this
	// profile and must not be computed.
	assert.NotContains(t, breakdown, core.DimensionWeather)
	assert.NotContains(t, breakdown, core.DimensionSituational)
}

func TestBreakdownAtThresholdIsSkipped(t *testing.T) {
	scorer := scoring.NewSimilarityScorer()
	profile := &core.ExpertRetrievalProfile{
		ExpertID: "edge",
		AnalyticalFocus: map[string]float64{
			core.DimensionTeams: core.FocusThreshold, // exactly at threshold
		},
		DecayHalfLifeDays:     30,
		WorkingMemoryCapacity: 7,
	}
	query := &core.GameContext{HomeTeam: "KC", AwayTeam: "BUF"}
	breakdown := scorer.Breakdown(query, query, profile)
	assert.Empty(t, breakdown)
}

func TestTeamOverlap(t *testing.T) {
	scorer := scoring.NewSimilarityScorer()
	profile := &core.ExpertRetrievalProfile{
		ExpertID:              "teams",
		AnalyticalFocus:       map[string]float64{core.DimensionTeams: 1.0},
		DecayHalfLifeDays:     30,
		WorkingMemoryCapacity: 7,
	}
	query := &core.GameContext{HomeTeam: "KC", AwayTeam: "BUF"}

	cases := []struct {
		name      string
		candidate *core.GameContext
		want      float64
	}{
		{"both teams", &core.GameContext{HomeTeam: "BUF", AwayTeam: "KC"}, 1.0},
		{"one team", &core.GameContext{HomeTeam: "KC", AwayTeam: "DEN"}, 0.5},
		{"no teams", &core.GameContext{HomeTeam: "DAL", AwayTeam: "PHI"}, 0.0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, scorer.Score(query, tc.candidate, profile))
		})
	}
}

func TestMarketSimilarityDirection(t *testing.T) {
	scorer := scoring.NewSimilarityScorer()
	profile := &core.ExpertRetrievalProfile{
		ExpertID:              "market",
		AnalyticalFocus:       map[string]float64{core.DimensionMarket: 1.0},
		DecayHalfLifeDays:     30,
		WorkingMemoryCapacity: 7,
	}

	query := &core.GameContext{
		HomeTeam: "KC", AwayTeam: "BUF",
		Market: &core.MarketSnapshot{OpeningLine: -3.0, CurrentLine: -6.0, PublicHomePct: 70},
	}
	sameDir := &core.GameContext{
		HomeTeam: "DAL", AwayTeam: "PHI",
		Market: &core.MarketSnapshot{OpeningLine: -2.0, CurrentLine: -4.5, PublicHomePct: 68},
	}
	oppositeDir := &core.GameContext{
		HomeTeam: "DAL", AwayTeam: "PHI",
		Market: &core.MarketSnapshot{OpeningLine: -4.0, CurrentLine: -1.0, PublicHomePct: 68},
	}

	assert.Greater(t, scorer.Score(query, sameDir, profile), scorer.Score(query, oppositeDir, profile))
}

func TestScoreWithVector(t *testing.T) {
	scorer := scoring.NewSimilarityScorer()

	// Equal weight blends evenly.
	assert.InDelta(t, 0.7, scorer.ScoreWithVector(0.6, 0.8, 0.5), 1e-9)
	// Weight 0 ignores the vector.
	assert.InDelta(t, 0.6, scorer.ScoreWithVector(0.6, 0.9, 0), 1e-9)
	// Weight 1 is pure vector.
	assert.InDelta(t, 0.9, scorer.ScoreWithVector(0.6, 0.9, 1), 1e-9)
}

func TestDominantDimension(t *testing.T) {
	scorer := scoring.NewSimilarityScorer()
	profile := marketFocusedProfile()

	breakdown := map[string]float64{
		core.DimensionTeams:  1.0, // weighted 0.3
		core.DimensionMarket: 0.6, // weighted 0.42
	}
	assert.Equal(t, core.DimensionMarket, scorer.DominantDimension(breakdown, profile))
	assert.Equal(t, "", scorer.DominantDimension(map[string]float64{}, profile))
}
