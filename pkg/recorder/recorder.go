// Package recorder provides the memory creation path: it assigns IDs,
// derives emotional intensity, extracts lessons, persists records, and
// backfills channel embeddings asynchronously.
package recorder

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"

	"github.com/gridironai/expertmem-go/pkg/core"
	"github.com/gridironai/expertmem-go/pkg/embedder"
	"github.com/gridironai/expertmem-go/pkg/encoder"
	"github.com/gridironai/expertmem-go/pkg/llm"
	"github.com/gridironai/expertmem-go/pkg/storage"
)

// backfillTimeout bounds one asynchronous embedding backfill. The write
// itself has already committed; a hung provider must not pin a goroutine.
const backfillTimeout = 30 * time.Second

// MemoryInput is the caller-supplied content of a new memory. The recorder
// owns ID assignment, timestamps, intensity, and lessons.
type MemoryInput struct {
	// ExpertID identifies the owning expert. Required.
	ExpertID string

	// GameID references the game the memory is about. Required.
	GameID string

	// MemoryType tags the record. Required.
	MemoryType core.MemoryType

	// GameContext is the structured game snapshot. Required: a memory
	// without context can never be retrieved by similarity.
	GameContext *core.GameContext

	// PredictionData is what the expert predicted (optional).
	PredictionData *core.PredictionData

	// OutcomeData is how the game resolved (optional).
	OutcomeData *core.OutcomeData
}

// Recorder creates and persists memory records.
//
// Writes are durable before Record returns; embedding generation runs in
// the background by default so a slow provider never blocks the write path.
// A record is excluded from similarity search until its backfill lands.
//
// Safe for concurrent use.
type Recorder struct {
	store     storage.MemoryStore
	embedder  embedder.Provider
	generator llm.Generator
	node      *snowflake.Node
	logger    *slog.Logger
	syncEmbed bool
	wg        sync.WaitGroup
}

// Option configures a Recorder at construction time.
type Option func(*Recorder)

// WithLogger sets the structured logger. Defaults to slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Recorder) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithSynchronousEmbedding makes Record generate embeddings inline instead
// of in the background. Embedding failure still does not fail the write.
func WithSynchronousEmbedding() Option {
	return func(r *Recorder) {
		r.syncEmbed = true
	}
}

// NewRecorder creates a recorder.
//
// Parameters:
//   - store: The memory store backend (required)
//   - embed: The embedding provider; nil skips embedding generation
//   - generator: The LLM used for lesson extraction; nil falls back to
//     rule-based lessons
//   - nodeID: Snowflake node ID in [0, 1023] for unique ID generation
//   - opts: Optional configuration
//
// Returns the recorder, or ErrInvalidConfig on a missing store or bad node
// ID.
func NewRecorder(store storage.MemoryStore, embed embedder.Provider, generator llm.Generator, nodeID int64, opts ...Option) (*Recorder, error) {
	if store == nil {
		return nil, core.NewEngineError("NewRecorder", fmt.Errorf("%w: nil memory store", core.ErrInvalidConfig))
	}

	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, core.NewEngineError("NewRecorder", fmt.Errorf("%w: %v", core.ErrInvalidConfig, err))
	}

	r := &Recorder{
		store:     store,
		embedder:  embed,
		generator: generator,
		node:      node,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Record creates and persists a memory from the given input.
//
// The recorder assigns the ID and creation time, derives emotional
// intensity from how surprising the episode was, extracts lessons, and
// inserts the record. Embeddings are generated afterwards (asynchronously
// unless configured otherwise) and backfilled onto the stored record.
//
// Returns the created record, or an error if validation or the insert
// fails.
func (r *Recorder) Record(ctx context.Context, input *MemoryInput) (*core.MemoryRecord, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}

	record := &core.MemoryRecord{
		ID:                 r.node.Generate().Int64(),
		ExpertID:           input.ExpertID,
		GameID:             input.GameID,
		MemoryType:         input.MemoryType,
		CreatedAt:          time.Now().UTC(),
		GameContext:        input.GameContext,
		PredictionData:     input.PredictionData,
		OutcomeData:        input.OutcomeData,
		EmotionalIntensity: emotionalIntensity(input),
		LessonsLearned:     r.extractLessons(ctx, input),
	}

	stored, err := core.ToStorageRecord(record)
	if err != nil {
		return nil, err
	}
	if err := r.store.Insert(ctx, stored); err != nil {
		return nil, core.NewEngineError("Record", err)
	}

	if r.embedder != nil {
		if r.syncEmbed {
			r.backfillEmbeddings(ctx, record)
		} else {
			r.wg.Add(1)
			go func() {
				defer r.wg.Done()
				bctx, cancel := context.WithTimeout(context.Background(), backfillTimeout)
				defer cancel()
				r.backfillEmbeddings(bctx, record)
			}()
		}
	}

	return record, nil
}

// Flush blocks until all in-flight embedding backfills finish.
func (r *Recorder) Flush() {
	r.wg.Wait()
}

// Close waits for in-flight backfills. It does not close the store or the
// providers; their lifecycles belong to the caller.
func (r *Recorder) Close() error {
	r.wg.Wait()
	return nil
}

// backfillEmbeddings encodes each channel of the record, embeds the
// non-empty texts in one batch, and writes the vectors back. Failures are
// logged, never raised: the record stays retrievable via the structured
// path until a later backfill succeeds.
func (r *Recorder) backfillEmbeddings(ctx context.Context, record *core.MemoryRecord) {
	var channels []core.Channel
	var texts []string
	for _, ch := range core.Channels {
		text := encoder.Encode(ch, record)
		if text == "" {
			continue
		}
		channels = append(channels, ch)
		texts = append(texts, text)
	}
	if len(texts) == 0 {
		return
	}

	vectors, err := r.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		r.logger.Warn("embedding backfill failed",
			"memory_id", record.ID, "error", err)
		return
	}
	if len(vectors) != len(channels) {
		r.logger.Warn("embedding backfill returned wrong vector count",
			"memory_id", record.ID, "want", len(channels), "got", len(vectors))
		return
	}

	embeddings := make(map[string][]float64, len(channels))
	for i, ch := range channels {
		embeddings[string(ch)] = vectors[i]
	}
	if err := r.store.UpdateEmbeddings(ctx, record.ID, embeddings); err != nil {
		r.logger.Warn("failed to persist backfilled embeddings",
			"memory_id", record.ID, "error", err)
		return
	}

	record.Embeddings = make(map[core.Channel][]float64, len(channels))
	for i, ch := range channels {
		record.Embeddings[ch] = vectors[i]
	}
}

// validateInput checks the required MemoryInput fields.
func validateInput(input *MemoryInput) error {
	if input == nil {
		return core.NewEngineError("Record", fmt.Errorf("%w: nil input", core.ErrInvalidInput))
	}
	if input.ExpertID == "" {
		return core.NewEngineError("Record", fmt.Errorf("%w: missing expert_id", core.ErrInvalidInput))
	}
	if input.GameID == "" {
		return core.NewEngineError("Record", fmt.Errorf("%w: missing game_id", core.ErrInvalidInput))
	}
	if input.GameContext == nil {
		return core.NewEngineError("Record", fmt.Errorf("%w: missing game context", core.ErrInvalidInput))
	}
	switch input.MemoryType {
	case core.MemoryTypePredictionOutcome, core.MemoryTypeContextual,
		core.MemoryTypeMarket, core.MemoryTypeLearning:
	default:
		return core.NewEngineError("Record", fmt.Errorf("%w: unknown memory type %q", core.ErrInvalidInput, input.MemoryType))
	}
	return nil
}

// emotionalIntensity derives the vividness weight from how surprising the
// episode was. Upsets and busted predictions stick; routine results fade.
func emotionalIntensity(input *MemoryInput) float64 {
	intensity := 0.3

	if od := input.OutcomeData; od != nil {
		if od.Upset {
			intensity += 0.4
		}
		if pd := input.PredictionData; pd != nil && pd.Winner != "" && od.Winner != "" {
			if pd.Winner != od.Winner {
				intensity += 0.2
			} else if pd.Confidence >= 0.8 {
				// A high-confidence call that lands is memorable too, just
				// less than a miss.
				intensity += 0.1
			}
		}
	}
	if input.GameContext.Primetime {
		intensity += 0.1
	}

	if intensity > 1 {
		return 1
	}
	return intensity
}
