// Package mysql provides the MySQL implementation of the memory store.
//
// Channel vectors are stored as JSON strings in TEXT columns and
// nearest-neighbor queries compute cosine similarity in memory over the
// expert's candidate rows, the same strategy as the SQLite reference store.
package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	_ "github.com/go-sql-driver/mysql"

	"github.com/gridironai/expertmem-go/pkg/storage"
)

// embeddingColumns maps channel names to their table columns.
var embeddingColumns = map[string]string{
	"game_context": "emb_game_context",
	"prediction":   "emb_prediction",
	"outcome":      "emb_outcome",
	"combined":     "emb_combined",
}

// Client implements storage.MemoryStore using MySQL as the backend.
type Client struct {
	db         *sql.DB
	tableName  string
	dimensions int
}

// Config contains MySQL configuration.
type Config struct {
	Host               string
	Port               int
	User               string
	Password           string
	DBName             string
	TableName          string
	EmbeddingModelDims int
}

// NewClient creates a new MySQL memory store client.
func NewClient(cfg *Config) (*Client, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.DBName)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("NewMySQLClient: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("NewMySQLClient: %w", err)
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

// initTables creates the memory table if it does not exist.
func (c *Client) initTables(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id BIGINT PRIMARY KEY,
			expert_id VARCHAR(128) NOT NULL,
			game_id VARCHAR(128) NOT NULL,
			memory_type VARCHAR(32) NOT NULL,
			created_at DATETIME(6) NOT NULL,
			game_context JSON,
			prediction_data JSON,
			outcome_data JSON,
			lessons JSON,
			emotional_intensity DOUBLE DEFAULT 0.0,
			emb_game_context LONGTEXT,
			emb_prediction LONGTEXT,
			emb_outcome LONGTEXT,
			emb_combined LONGTEXT,
			retrieval_count BIGINT DEFAULT 0,
			INDEX idx_expert (expert_id, created_at)
		)
	`, c.tableName)

	if _, err := c.db.ExecContext(ctx, query); err != nil {
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
		nullableVector(record.Embeddings["game_context"]),
		nullableVector(record.Embeddings["prediction"]),
		nullableVector(record.Embeddings["outcome"]),
		nullableVector(record.Embeddings["combined"]),
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
	record, err := scanRecord(c.db.QueryRowContext(ctx, c.selectQuery()+" WHERE id = ?", id))
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
// Candidate rows are loaded for the expert and ranked by in-memory cosine
// similarity, ties broken by ID ascending.
func (c *Client) QueryNearest(ctx context.Context, expertID, channel string, queryVector []float64, k int) ([]*storage.Record, error) {
	column, ok := embeddingColumns[channel]
	if !ok {
		return nil, fmt.Errorf("QueryNearest: unknown channel %q", channel)
	}

	query := c.selectQuery() + fmt.Sprintf(" WHERE expert_id = ? AND %s IS NOT NULL", column)
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
	if limit <= 0 {
		limit = 1000
	}

	query := c.selectQuery() + " WHERE expert_id = ? ORDER BY created_at DESC, id ASC LIMIT ? OFFSET ?"
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
func (c *Client) IncrementRetrievalCount(ctx context.Context, id int64) error {
	query := fmt.Sprintf("UPDATE %s SET retrieval_count = retrieval_count + 1 WHERE id = ?", c.tableName)
	if _, err := c.db.ExecContext(ctx, query, id); err != nil {
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

// selectQuery returns the shared SELECT column list.
func (c *Client) selectQuery() string {
	return fmt.Sprintf(`
		SELECT id, expert_id, game_id, memory_type, created_at,
			game_context, prediction_data, outcome_data, lessons,
			emotional_intensity, emb_game_context, emb_prediction,
			emb_outcome, emb_combined, retrieval_count
		FROM %s`, c.tableName)
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

// nullableVector JSON-encodes a vector, mapping empty to NULL.
func nullableVector(vec []float64) interface{} {
	if len(vec) == 0 {
		return nil
	}
	data, err := json.Marshal(vec)
	if err != nil {
		return nil
	}
	return string(data)
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
