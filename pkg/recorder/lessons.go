package recorder

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/gridironai/expertmem-go/pkg/llm"
)

// maxLessons caps the lessons stored per memory.
const maxLessons = 3

// lessonPrompt asks for short transferable lessons, one per line. The
// response format is parsed by parseLessons.
const lessonPrompt = `You analyze NFL betting results. Given the game below, extract up to %d short, transferable lessons a bettor should remember. One lesson per line, each starting with "- ". No preamble, no numbering.

%s`

// extractLessons produces the lessons for a new memory. With a generator
// configured it asks the LLM and parses the line-per-lesson response; on
// any generator failure, or with no generator at all, it falls back to the
// rule-based lessons so memory creation never depends on LLM availability.
func (r *Recorder) extractLessons(ctx context.Context, input *MemoryInput) []string {
	if input.OutcomeData == nil {
		// Nothing has resolved yet; there is no lesson to extract.
		return nil
	}

	if r.generator != nil {
		summary := episodeSummary(input)
		prompt := fmt.Sprintf(lessonPrompt, maxLessons, summary)
		response, err := r.generator.Generate(ctx, prompt,
			llm.WithTemperature(0.3), llm.WithMaxTokens(300))
		if err == nil {
			if lessons := parseLessons(response); len(lessons) > 0 {
				return lessons
			}
		} else {
			r.logger.Warn("lesson extraction via LLM failed, using rule-based fallback",
				"game_id", input.GameID, "error", err)
		}
	}

	return ruleLessons(input)
}

// parseLessons splits a line-per-lesson response, stripping bullet markers
// and dropping blank lines.
func parseLessons(response string) []string {
	var lessons []string
	for _, line := range strings.Split(response, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimPrefix(line, "- ")
		line = strings.TrimPrefix(line, "* ")
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		lessons = append(lessons, line)
		if len(lessons) >= maxLessons {
			break
		}
	}
	return lessons
}

// episodeSummary renders the episode for the extraction prompt.
func episodeSummary(input *MemoryInput) string {
	var b strings.Builder
	gc := input.GameContext
	fmt.Fprintf(&b, "Game: %s @ %s, week %d", gc.AwayTeam, gc.HomeTeam, gc.Week)
	if gc.Divisional {
		b.WriteString(", divisional")
	}
	if gc.Primetime {
		b.WriteString(", primetime")
	}
	b.WriteString("\n")
	if w := gc.Weather; w != nil {
		fmt.Fprintf(&b, "Weather: %.0fF, wind %.0fmph, %s\n", w.TemperatureF, w.WindMPH, w.Conditions)
	}
	if m := gc.Market; m != nil {
		fmt.Fprintf(&b, "Market: line moved from %.1f to %.1f, %.0f%% of public on home side\n",
			m.OpeningLine, m.CurrentLine, m.PublicHomePct)
	}
	if pd := input.PredictionData; pd != nil {
		fmt.Fprintf(&b, "Prediction: %s by %.1f, confidence %.2f\n", pd.Winner, pd.Margin, pd.Confidence)
		if pd.Rationale != "" {
			fmt.Fprintf(&b, "Rationale: %s\n", pd.Rationale)
		}
	}
	if od := input.OutcomeData; od != nil {
		fmt.Fprintf(&b, "Result: %s won %d-%d", od.Winner, od.HomeScore, od.AwayScore)
		if od.Upset {
			b.WriteString(" (upset)")
		}
		b.WriteString("\n")
	}
	return b.String()
}

// ruleLessons derives lessons from the structured payloads alone. The rules
// favor the surprising cases; a chalk result with an accurate prediction
// yields nothing worth remembering.
func ruleLessons(input *MemoryInput) []string {
	var lessons []string
	gc := input.GameContext
	od := input.OutcomeData
	pd := input.PredictionData

	if od.Upset {
		lesson := fmt.Sprintf("%s won outright as the underdog", od.Winner)
		if gc.Market != nil && math.Abs(gc.Market.CurrentLine) >= 7 {
			lesson += fmt.Sprintf(" against a %.1f-point spread", math.Abs(gc.Market.CurrentLine))
		}
		lessons = append(lessons, lesson)
	}

	if pd != nil && pd.Winner != "" && od.Winner != "" && pd.Winner != od.Winner {
		lesson := fmt.Sprintf("picked %s, %s won", pd.Winner, od.Winner)
		if pd.Confidence >= 0.8 {
			lesson += " despite high confidence"
		}
		if gc.Divisional {
			lesson += "; divisional games run closer than the matchup suggests"
		}
		lessons = append(lessons, lesson)
	}

	if m := gc.Market; m != nil && math.Abs(m.LineMovement()) >= 2 && od.Winner != "" {
		direction := "toward the home side"
		if m.LineMovement() > 0 {
			direction = "away from the home side"
		}
		lessons = append(lessons,
			fmt.Sprintf("line moved %.1f points %s before kickoff; %s won", math.Abs(m.LineMovement()), direction, od.Winner))
	}

	if w := gc.Weather; w != nil && w.WindMPH >= 20 && pd != nil && pd.Total > 0 {
		actual := od.HomeScore + od.AwayScore
		if float64(actual) < pd.Total {
			lessons = append(lessons,
				fmt.Sprintf("high wind (%.0fmph) held scoring under the projected total", w.WindMPH))
		}
	}

	if len(lessons) > maxLessons {
		lessons = lessons[:maxLessons]
	}
	return lessons
}
