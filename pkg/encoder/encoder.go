// Package encoder turns structured game, prediction, and outcome records
// into normalized text summaries suitable for embedding.
//
// Encoding is a pure function with no failure modes: absent fields are
// simply omitted from the text, never an error. Determinism matters —
// identical structured input must produce byte-identical text, because
// embeddings may be cached keyed on the hash of this text. Field order is
// fixed and floats use a fixed one-decimal format.
package encoder

import (
	"fmt"
	"strings"

	"github.com/gridironai/expertmem-go/pkg/core"
)

// Encode produces the text summary for the given embedding channel of a
// record. An empty string means the channel has no source text and should
// not be embedded.
func Encode(channel core.Channel, record *core.MemoryRecord) string {
	switch channel {
	case core.ChannelGameContext:
		return EncodeGameContext(record.GameContext)
	case core.ChannelPrediction:
		return EncodePrediction(record.PredictionData)
	case core.ChannelOutcome:
		return EncodeOutcome(record.OutcomeData)
	case core.ChannelCombined:
		return EncodeCombined(record.GameContext, record.PredictionData, record.OutcomeData)
	default:
		return ""
	}
}

// EncodeGameContext encodes a game snapshot as a pipe-delimited summary.
//
// Example:
//
//	matchup=BUF@KC | week=5 | season=2025 | divisional | weather=20.0F wind=18.0mph snow | line open=-3.5 current=-5.5 | public_home=72.0% | injuries=KC QB questionable | flags=short_week
func EncodeGameContext(gc *core.GameContext) string {
	if gc == nil {
		return ""
	}

	var parts []string
	if gc.HomeTeam != "" || gc.AwayTeam != "" {
		parts = append(parts, fmt.Sprintf("matchup=%s@%s", gc.AwayTeam, gc.HomeTeam))
	}
	if gc.Week > 0 {
		parts = append(parts, fmt.Sprintf("week=%d", gc.Week))
	}
	if gc.Season > 0 {
		parts = append(parts, fmt.Sprintf("season=%d", gc.Season))
	}
	if gc.Divisional {
		parts = append(parts, "divisional")
	}
	if gc.Primetime {
		parts = append(parts, "primetime")
	}
	if w := gc.Weather; w != nil {
		weather := fmt.Sprintf("weather=%.1fF wind=%.1fmph", w.TemperatureF, w.WindMPH)
		if w.Conditions != "" {
			weather += " " + w.Conditions
		}
		parts = append(parts, weather)
	}
	if m := gc.Market; m != nil {
		parts = append(parts, fmt.Sprintf("line open=%.1f current=%.1f", m.OpeningLine, m.CurrentLine))
		parts = append(parts, fmt.Sprintf("public_home=%.1f%%", m.PublicHomePct))
	}
	if len(gc.Injuries) > 0 {
		parts = append(parts, "injuries="+strings.Join(gc.Injuries, "; "))
	}
	if len(gc.SituationalFlags) > 0 {
		parts = append(parts, "flags="+strings.Join(gc.SituationalFlags, "; "))
	}

	return strings.Join(parts, " | ")
}

// EncodePrediction encodes a prediction payload as a pipe-delimited summary.
func EncodePrediction(pd *core.PredictionData) string {
	if pd == nil {
		return ""
	}

	var parts []string
	if pd.Winner != "" {
		parts = append(parts, "predicted_winner="+pd.Winner)
	}
	if pd.Margin != 0 {
		parts = append(parts, fmt.Sprintf("margin=%.1f", pd.Margin))
	}
	if pd.Total != 0 {
		parts = append(parts, fmt.Sprintf("total=%.1f", pd.Total))
	}
	if pd.Confidence != 0 {
		parts = append(parts, fmt.Sprintf("confidence=%.2f", pd.Confidence))
	}
	if pd.Rationale != "" {
		parts = append(parts, "rationale="+pd.Rationale)
	}

	return strings.Join(parts, " | ")
}

// EncodeOutcome encodes an outcome payload as a pipe-delimited summary.
func EncodeOutcome(od *core.OutcomeData) string {
	if od == nil {
		return ""
	}

	var parts []string
	if od.Winner != "" {
		parts = append(parts, "winner="+od.Winner)
	}
	if od.HomeScore != 0 || od.AwayScore != 0 {
		parts = append(parts, fmt.Sprintf("final=%d-%d", od.HomeScore, od.AwayScore))
	}
	if od.Upset {
		parts = append(parts, "upset")
	}
	if od.Narrative != "" {
		parts = append(parts, "narrative="+od.Narrative)
	}

	return strings.Join(parts, " | ")
}

// EncodeCombined encodes the labeled concatenation of the context,
// prediction, and outcome summaries. Sections with no content are omitted.
func EncodeCombined(gc *core.GameContext, pd *core.PredictionData, od *core.OutcomeData) string {
	var sections []string
	if s := EncodeGameContext(gc); s != "" {
		sections = append(sections, "context: "+s)
	}
	if s := EncodePrediction(pd); s != "" {
		sections = append(sections, "prediction: "+s)
	}
	if s := EncodeOutcome(od); s != "" {
		sections = append(sections, "outcome: "+s)
	}
	return strings.Join(sections, " || ")
}
