// Package storage provides interfaces and types for memory store backends.
//
// It defines the MemoryStore interface that all storage implementations must
// satisfy, along with the stored record type and query options.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Predefined storage errors.
var (
	// ErrUnavailable indicates the backing store could not serve the
	// operation (connection failure, timeout).
	ErrUnavailable = errors.New("memory store unavailable")

	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("record not found")
)

// Record is a memory record as persisted by a store.
//
// This type is defined in the storage package to avoid circular dependencies
// with the core package. Structured payloads travel as raw JSON; the core
// package owns the conversion to and from typed values.
type Record struct {
	// ID is the unique identifier of the memory.
	ID int64

	// ExpertID identifies the owning expert.
	ExpertID string

	// GameID references the game the memory is about.
	GameID string

	// MemoryType is the memory type tag.
	MemoryType string

	// CreatedAt is when the memory was created. Immutable.
	CreatedAt time.Time

	// GameContext is the JSON-encoded structured game snapshot.
	GameContext json.RawMessage

	// PredictionData is the JSON-encoded prediction payload (optional).
	PredictionData json.RawMessage

	// OutcomeData is the JSON-encoded outcome payload (optional).
	OutcomeData json.RawMessage

	// Lessons is the ordered list of lesson strings.
	Lessons []string

	// EmotionalIntensity is the vividness weight in [0,1].
	EmotionalIntensity float64

	// Embeddings maps channel name to vector. A channel absent from the map
	// has no embedding yet.
	Embeddings map[string][]float64

	// RetrievalCount is the number of times the record has been returned by
	// the retriever.
	RetrievalCount int64

	// Score is the similarity score attached by QueryNearest results. Not
	// persisted.
	Score float64
}

// MemoryStore defines the interface for memory store backends.
//
// All storage implementations (SQLite, PostgreSQL, MySQL) must implement
// this interface. Implementations are safe for concurrent use.
type MemoryStore interface {
	// Insert inserts a record into the store.
	Insert(ctx context.Context, record *Record) error

	// UpdateEmbeddings sets or replaces the given channel embeddings on an
	// existing record. Channels not present in the map are left untouched.
	// Used for asynchronous embedding backfill after the initial write.
	UpdateEmbeddings(ctx context.Context, id int64, embeddings map[string][]float64) error

	// Get retrieves a record by ID.
	Get(ctx context.Context, id int64) (*Record, error)

	// QueryNearest returns up to k records owned by expertID that have an
	// embedding on the given channel, ordered by descending similarity to
	// queryVector (ties by ID ascending). Each returned record carries its
	// similarity in Score. Records without an embedding on the channel are
	// excluded.
	QueryNearest(ctx context.Context, expertID, channel string, queryVector []float64, k int) ([]*Record, error)

	// ListByExpert returns up to limit records owned by expertID, newest
	// first, skipping offset records. Used by the structured-only retrieval
	// path and by offline quality scans.
	ListByExpert(ctx context.Context, expertID string, limit, offset int) ([]*Record, error)

	// IncrementRetrievalCount atomically increments a record's retrieval
	// count at the store, so concurrent retrievals never lose increments.
	IncrementRetrievalCount(ctx context.Context, id int64) error

	// Delete deletes the given records. Missing IDs are ignored.
	Delete(ctx context.Context, ids []int64) error

	// Close closes the store and releases resources.
	Close() error
}
