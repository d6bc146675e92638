// Package quality scores the long-run usefulness of stored memories and
// drives threshold-based cleanup. It runs offline, never on the retrieval
// hot path.
package quality

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/gridironai/expertmem-go/pkg/core"
	"github.com/gridironai/expertmem-go/pkg/scoring"
	"github.com/gridironai/expertmem-go/pkg/storage"
)

// Component weights of the overall quality score. They sum to 1.
const (
	weightRelevance  = 0.25
	weightImpact     = 0.25
	weightEfficiency = 0.20
	weightRichness   = 0.15
	weightStability  = 0.15
)

// defaultScanPageSize is the page size for full-expert scans.
const defaultScanPageSize = 500

// MemoryQuality pairs a memory with its computed quality metrics.
type MemoryQuality struct {
	// Record is the scored memory.
	Record *core.MemoryRecord `json:"record"`

	// Metrics holds the component scores and the overall quality score.
	Metrics core.QualityMetrics `json:"metrics"`
}

// CleanupReport describes one cleanup pass. In dry-run mode Candidates
// lists what would be deleted without touching the store.
type CleanupReport struct {
	// ExpertID is the expert the pass ran for.
	ExpertID string `json:"expert_id"`

	// Threshold is the quality score below which memories are removed.
	Threshold float64 `json:"threshold"`

	// Examined is the number of memories scored.
	Examined int `json:"examined"`

	// Candidates lists the IDs below the threshold, ascending.
	Candidates []int64 `json:"candidates"`

	// Deleted is true when the candidates were actually removed.
	Deleted bool `json:"deleted"`
}

// Analyzer computes memory quality metrics for an expert's memory bank.
//
// Concurrent analyses of the same expert coalesce into a single store scan;
// every caller receives the shared result. Safe for concurrent use.
type Analyzer struct {
	store    storage.MemoryStore
	logger   *slog.Logger
	group    singleflight.Group
	pageSize int
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithLogger sets the structured logger. Defaults to slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Analyzer) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithPageSize sets the store scan page size.
func WithPageSize(n int) Option {
	return func(a *Analyzer) {
		if n > 0 {
			a.pageSize = n
		}
	}
}

// NewAnalyzer creates a quality analyzer.
func NewAnalyzer(store storage.MemoryStore, opts ...Option) (*Analyzer, error) {
	if store == nil {
		return nil, core.NewEngineError("NewAnalyzer", fmt.Errorf("%w: nil memory store", core.ErrInvalidConfig))
	}
	a := &Analyzer{
		store:    store,
		logger:   slog.Default(),
		pageSize: defaultScanPageSize,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Score computes the quality metrics for one memory as of now.
//
// The components reward memories that keep earning retrievals as they age
// and penalize stale, never-retrieved ones: an old memory with zero
// retrievals always scores below a recent, frequently retrieved one.
func (a *Analyzer) Score(record *core.MemoryRecord, now time.Time) core.QualityMetrics {
	age := record.AgeDays(now)
	count := float64(record.RetrievalCount)

	m := core.QualityMetrics{
		RelevanceAccuracy:   relevanceAccuracy(count, age),
		PredictionImpact:    predictionImpact(record),
		RetrievalEfficiency: retrievalEfficiency(count),
		ContentRichness:     contentRichness(record),
		TemporalStability:   temporalStability(count, age),
	}
	m.QualityScore = scoring.Clamp01(
		weightRelevance*m.RelevanceAccuracy +
			weightImpact*m.PredictionImpact +
			weightEfficiency*m.RetrievalEfficiency +
			weightRichness*m.ContentRichness +
			weightStability*m.TemporalStability)
	return m
}

// AnalyzeExpert scores every memory of an expert and returns them ordered
// by quality, best first (ties by ascending ID).
//
// Concurrent calls for the same expert share one underlying scan.
func (a *Analyzer) AnalyzeExpert(ctx context.Context, expertID string) ([]*MemoryQuality, error) {
	if expertID == "" {
		return nil, core.NewEngineError("AnalyzeExpert", fmt.Errorf("%w: empty expert id", core.ErrInvalidInput))
	}

	v, err, _ := a.group.Do(expertID, func() (interface{}, error) {
		return a.analyze(ctx, expertID)
	})
	if err != nil {
		return nil, core.NewEngineError("AnalyzeExpert", err)
	}
	return v.([]*MemoryQuality), nil
}

func (a *Analyzer) analyze(ctx context.Context, expertID string) ([]*MemoryQuality, error) {
	now := time.Now()
	var scored []*MemoryQuality

	for offset := 0; ; offset += a.pageSize {
		recs, err := a.store.ListByExpert(ctx, expertID, a.pageSize, offset)
		if err != nil {
			return nil, err
		}
		for _, rec := range recs {
			record := core.FromStorageRecord(rec)
			scored = append(scored, &MemoryQuality{
				Record:  record,
				Metrics: a.Score(record, now),
			})
		}
		if len(recs) < a.pageSize {
			break
		}
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Metrics.QualityScore != scored[j].Metrics.QualityScore {
			return scored[i].Metrics.QualityScore > scored[j].Metrics.QualityScore
		}
		return scored[i].Record.ID < scored[j].Record.ID
	})
	return scored, nil
}

// Cleanup removes an expert's memories whose quality score falls below
// threshold. With dryRun set, it reports the exact candidates without
// deleting anything, so operators can preview a threshold before
// committing to it.
func (a *Analyzer) Cleanup(ctx context.Context, expertID string, threshold float64, dryRun bool) (*CleanupReport, error) {
	scored, err := a.AnalyzeExpert(ctx, expertID)
	if err != nil {
		return nil, err
	}

	report := &CleanupReport{
		ExpertID:  expertID,
		Threshold: threshold,
		Examined:  len(scored),
	}
	for _, mq := range scored {
		if mq.Metrics.QualityScore < threshold {
			report.Candidates = append(report.Candidates, mq.Record.ID)
		}
	}
	sort.Slice(report.Candidates, func(i, j int) bool {
		return report.Candidates[i] < report.Candidates[j]
	})

	if dryRun || len(report.Candidates) == 0 {
		a.logger.Info("quality cleanup dry run",
			"expert_id", expertID,
			"threshold", threshold,
			"examined", report.Examined,
			"candidates", len(report.Candidates))
		return report, nil
	}

	if err := a.store.Delete(ctx, report.Candidates); err != nil {
		return nil, core.NewEngineError("Cleanup", err)
	}
	report.Deleted = true
	a.logger.Info("quality cleanup removed memories",
		"expert_id", expertID,
		"threshold", threshold,
		"removed", len(report.Candidates))
	return report, nil
}

// relevanceAccuracy estimates how often the memory earns its retrievals
// relative to its age, saturating at roughly one retrieval per week.
func relevanceAccuracy(count float64, ageDays int) float64 {
	expected := float64(ageDays)/7.0 + 1
	return scoring.Clamp01(count / expected)
}

// predictionImpact is a heuristic proxy: memory types closer to graded
// predictions carry more impact, scaled by how vivid the episode was.
func predictionImpact(record *core.MemoryRecord) float64 {
	var base float64
	switch record.MemoryType {
	case core.MemoryTypePredictionOutcome:
		base = 0.8
	case core.MemoryTypeLearning:
		base = 0.7
	case core.MemoryTypeMarket:
		base = 0.5
	default:
		base = 0.4
	}
	return scoring.Clamp01(0.6*base + 0.4*record.EmotionalIntensity)
}

// retrievalEfficiency rewards memories that keep being retrieved,
// saturating smoothly.
func retrievalEfficiency(count float64) float64 {
	return count / (count + 5)
}

// contentRichness rewards lessons, structured payloads, and embedding
// coverage in equal parts.
func contentRichness(record *core.MemoryRecord) float64 {
	var score float64
	score += 0.25 * math.Min(float64(len(record.LessonsLearned))/3.0, 1)
	if record.PredictionData != nil {
		score += 0.25
	}
	if record.OutcomeData != nil {
		score += 0.25
	}
	score += 0.25 * math.Min(float64(len(record.Embeddings))/4.0, 1)
	return scoring.Clamp01(score)
}

// temporalStability rewards memories that stay useful as they age: a
// 60-day half-life base, lifted by sustained retrieval usage.
func temporalStability(count float64, ageDays int) float64 {
	base := math.Pow(0.5, float64(ageDays)/60.0)
	usage := 0.3 * math.Min(count/10.0, 1)
	return scoring.Clamp01(base + usage)
}
