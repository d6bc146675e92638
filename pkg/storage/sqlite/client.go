// Package sqlite provides the SQLite reference implementation of the memory
// store.
//
// SQLite is a lightweight, file-based database suitable for local
// development and small-scale deployments. Channel vectors are stored as
// JSON strings in TEXT fields, and nearest-neighbor queries use in-memory
// cosine similarity over the expert's candidate rows.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/gridironai/expertmem-go/pkg/storage"
)

// embeddingColumns maps channel names to their table columns.
var embeddingColumns = map[string]string{
	"game_context": "emb_game_context",
	"prediction":   "emb_prediction",
	"outcome":      "emb_outcome",
	"combined":     "emb_combined",
}

// Client implements storage.MemoryStore using SQLite as the backend.
type Client struct {
	// db is the SQLite database connection.
	db *sql.DB

	// tableName is the name of the table storing memories.
	tableName string

	// dimensions is the dimension of embedding vectors.
	dimensions int
}

// Config contains configuration for creating a SQLite memory store.
type Config struct {
	// DBPath is the path to the SQLite database file.
	DBPath string

	// TableName is the name of the table to use.
	TableName string

	// EmbeddingModelDims is the dimension of embedding vectors.
	EmbeddingModelDims int
}

// NewClient creates a new SQLite memory store client.
//
// Parameters:
//   - cfg: Configuration containing database path, table name, and embedding
//     dimensions
//
// Returns:
//   - *Client: The SQLite client instance
//   - error: Error if database connection or table creation fails
func NewClient(cfg *Config) (*Client, error) {
	dbDir := filepath.Dir(cfg.DBPath)
	if dbDir != "" && dbDir != "." {
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			return nil, fmt.Errorf("NewSQLiteClient: failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", cfg.DBPath+"?_foreign_keys=1&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("NewSQLiteClient: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("NewSQLiteClient: %w", err)
	}

	client := &Client{
		db:         db,
		tableName:  cfg.TableName,
		dimensions: cfg.EmbeddingModelDims,
	}

	if err := client.initTables(context.Background()); err != nil {
		return nil, err
	}

	return client, nil
}

// initTables initializes the database table structure.
//
// Channel vectors are stored as JSON strings in TEXT fields, one column per
// channel.
func (c *Client) initTables(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id INTEGER PRIMARY KEY,
			expert_id TEXT NOT NULL,
			game_id TEXT NOT NULL,
			memory_type TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			game_context TEXT,
			prediction_data TEXT,
			outcome_data TEXT,
			lessons TEXT,
			emotional_intensity REAL DEFAULT 0.0,
			emb_game_context TEXT,
			emb_prediction TEXT,
			emb_outcome TEXT,
			emb_combined TEXT,
			retrieval_count INTEGER DEFAULT 0
		)
	`, c.tableName)

	if _, err := c.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("initTables: %w", err)
	}

	indexQuery := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS idx_%s_expert ON %s(expert_id, created_at)
	`, c.tableName, c.tableName)
	if _, err := c.db.ExecContext(ctx, indexQuery); err != nil {
		return fmt.Errorf("initTables: %w", err)
	}

	return nil
}

// Insert inserts a record into the store.
func (c *Client) Insert(ctx context.Context, record *storage.Record) error {
	lessons, err := json.Marshal(record.Lessons)
	if err != nil {
		return fmt.Errorf("Insert: %w", err)
	}

	embJSON := make(map[string]interface{}, len(embeddingColumns))
	for channel := range embeddingColumns {
		if vec, ok := record.Embeddings[channel]; ok && len(vec) > 0 {
			data, err := json.Marshal(vec)
			if err != nil {
				return fmt.Errorf("Insert: %w", err)
			}
			embJSON[channel] = string(data)
		} else {
			embJSON[channel] = nil
		}
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, expert_id, game_id, memory_type, created_at,
			game_context, prediction_data, outcome_data, lessons,
			emotional_intensity, emb_game_context, emb_prediction,
			emb_outcome, emb_combined, retrieval_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.tableName)

	_, err = c.db.ExecContext(ctx, query,
		record.ID, record.ExpertID, record.GameID, record.MemoryType,
		record.CreatedAt.UTC(),
		nullableJSON(record.GameContext), nullableJSON(record.PredictionData),
		nullableJSON(record.OutcomeData), string(lessons),
		record.EmotionalIntensity,
		embJSON["game_context"], embJSON["prediction"],
		embJSON["outcome"], embJSON["combined"],
		record.RetrievalCount,
	)
	if err != nil {
		return fmt.Errorf("Insert: %w: %v", storage.ErrUnavailable, err)
	}
	return nil
}

// UpdateEmbeddings sets the given channel embeddings on an existing record.
func (c *Client) UpdateEmbeddings(ctx context.Context, id int64, embeddings map[string][]float64) error {
	if len(embeddings) == 0 {
		return nil
	}

	sets := make([]string, 0, len(embeddings))
	args := make([]interface{}, 0, len(embeddings)+1)
	for channel, vec := range embeddings {
		column, ok := embeddingColumns[channel]
		if !ok {
			return fmt.Errorf("UpdateEmbeddings: unknown channel %q", channel)
		}
		data, err := json.Marshal(vec)
		if err != nil {
			return fmt.Errorf("UpdateEmbeddings: %w", err)
		}
		sets = append(sets, column+" = ?")
		args = append(args, string(data))
	}
	args = append(args, id)

	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = ?", c.tableName, strings.Join(sets, ", "))
	result, err := c.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("UpdateEmbeddings: %w: %v", storage.ErrUnavailable, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("UpdateEmbeddings: %w: id %d", storage.ErrNotFound, id)
	}
	return nil
}

// Get retrieves a record by ID.
func (c *Client) Get(ctx context.Context, id int64) (*storage.Record, error) {
	query := fmt.Sprintf(`
		SELECT id, expert_id, game_id, memory_type, created_at,
			game_context, prediction_data, outcome_data, lessons,
			emotional_intensity, emb_game_context, emb_prediction,
			emb_outcome, emb_combined, retrieval_count
		FROM %s WHERE id = ?
	`, c.tableName)

	record, err := scanRecord(c.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("Get: %w: id %d", storage.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("Get: %w: %v", storage.ErrUnavailable, err)
	}
	return record, nil
}

// QueryNearest returns the k nearest records for an expert on one channel.
//
// Candidate rows are loaded for the expert, cosine similarity is computed in
// memory against the query vector, and the top k are returned sorted by
// descending score with ties broken by ID ascending. Rows without an
// embedding on the channel are excluded by the SQL filter.
func (c *Client) QueryNearest(ctx context.Context, expertID, channel string, queryVector []float64, k int) ([]*storage.Record, error) {
	column, ok := embeddingColumns[channel]
	if !ok {
		return nil, fmt.Errorf("QueryNearest: unknown channel %q", channel)
	}

	query := fmt.Sprintf(`
		SELECT id, expert_id, game_id, memory_type, created_at,
			game_context, prediction_data, outcome_data, lessons,
			emotional_intensity, emb_game_context, emb_prediction,
			emb_outcome, emb_combined, retrieval_count
		FROM %s WHERE expert_id = ? AND %s IS NOT NULL
	`, c.tableName, column)

	rows, err := c.db.QueryContext(ctx, query, expertID)
	if err != nil {
		return nil, fmt.Errorf("QueryNearest: %w: %v", storage.ErrUnavailable, err)
	}
	defer rows.Close()

	var records []*storage.Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("QueryNearest: %w: %v", storage.ErrUnavailable, err)
		}
		record.Score = cosineSimilarity(queryVector, record.Embeddings[channel])
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("QueryNearest: %w: %v", storage.ErrUnavailable, err)
	}

	sort.Slice(records, func(i, j int) bool {
		if records[i].Score != records[j].Score {
			return records[i].Score > records[j].Score
		}
		return records[i].ID < records[j].ID
	})
	if k > 0 && len(records) > k {
		records = records[:k]
	}
	return records, nil
}

// ListByExpert returns up to limit records for an expert, newest first.
func (c *Client) ListByExpert(ctx context.Context, expertID string, limit, offset int) ([]*storage.Record, error) {
	query := fmt.Sprintf(`
		SELECT id, expert_id, game_id, memory_type, created_at,
			game_context, prediction_data, outcome_data, lessons,
			emotional_intensity, emb_game_context, emb_prediction,
			emb_outcome, emb_combined, retrieval_count
		FROM %s WHERE expert_id = ?
		ORDER BY created_at DESC, id ASC
		LIMIT ? OFFSET ?
	`, c.tableName)

	if limit <= 0 {
		limit = -1
	}

	rows, err := c.db.QueryContext(ctx, query, expertID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("ListByExpert: %w: %v", storage.ErrUnavailable, err)
	}
	defer rows.Close()

	var records []*storage.Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("ListByExpert: %w: %v", storage.ErrUnavailable, err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListByExpert: %w: %v", storage.ErrUnavailable, err)
	}
	return records, nil
}

// IncrementRetrievalCount atomically increments a record's retrieval count.
//
// The increment happens in SQL, so concurrent retrievals of the same record
// never lose updates.
func (c *Client) IncrementRetrievalCount(ctx context.Context, id int64) error {
	query := fmt.Sprintf("UPDATE %s SET retrieval_count = retrieval_count + 1 WHERE id = ?", c.tableName)
	_, err := c.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("IncrementRetrievalCount: %w: %v", storage.ErrUnavailable, err)
	}
	return nil
}

// Delete deletes the given records. Missing IDs are ignored.
func (c *Client) Delete(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}

	query := fmt.Sprintf("DELETE FROM %s WHERE id IN (%s)", c.tableName, strings.Join(placeholders, ", "))
	if _, err := c.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("Delete: %w: %v", storage.ErrUnavailable, err)
	}
	return nil
}

// Close closes the store and releases resources.
func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// scanner abstracts *sql.Row and *sql.Rows for scanning.
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanRecord scans one row into a storage.Record, decoding JSON columns.
func scanRecord(s scanner) (*storage.Record, error) {
	var record storage.Record
	var gameContext, predictionData, outcomeData, lessons sql.NullString
	var embGC, embPred, embOut, embComb sql.NullString

	err := s.Scan(
		&record.ID, &record.ExpertID, &record.GameID, &record.MemoryType,
		&record.CreatedAt,
		&gameContext, &predictionData, &outcomeData, &lessons,
		&record.EmotionalIntensity,
		&embGC, &embPred, &embOut, &embComb,
		&record.RetrievalCount,
	)
	if err != nil {
		return nil, err
	}

	if gameContext.Valid {
		record.GameContext = json.RawMessage(gameContext.String)
	}
	if predictionData.Valid {
		record.PredictionData = json.RawMessage(predictionData.String)
	}
	if outcomeData.Valid {
		record.OutcomeData = json.RawMessage(outcomeData.String)
	}
	if lessons.Valid && lessons.String != "" {
		_ = json.Unmarshal([]byte(lessons.String), &record.Lessons)
	}

	record.Embeddings = make(map[string][]float64, 4)
	for channel, column := range map[string]sql.NullString{
		"game_context": embGC,
		"prediction":   embPred,
		"outcome":      embOut,
		"combined":     embComb,
	} {
		if !column.Valid || column.String == "" {
			continue
		}
		var vec []float64
		if err := json.Unmarshal([]byte(column.String), &vec); err == nil && len(vec) > 0 {
			record.Embeddings[channel] = vec
		}
	}

	return &record, nil
}

// nullableJSON converts raw JSON into a driver value, mapping empty to NULL.
func nullableJSON(data json.RawMessage) interface{} {
	if len(data) == 0 {
		return nil
	}
	return string(data)
}

// cosineSimilarity computes the cosine similarity of two vectors, mapped
// into [0,1]. Mismatched or empty vectors score 0.
func cosineSimilarity(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}

	cos := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	return (cos + 1) / 2
}
