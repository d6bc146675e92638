// Package postgres provides the PostgreSQL + pgvector implementation of the
// memory store.
//
// Channel vectors are stored in pgvector columns, one per channel, and
// nearest-neighbor queries use the cosine distance operator so ranking
// happens inside the database.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/lib/pq"

	"github.com/gridironai/expertmem-go/pkg/storage"
)

// embeddingColumns maps channel names to their table columns.
var embeddingColumns = map[string]string{
	"game_context": "emb_game_context",
	"prediction":   "emb_prediction",
	"outcome":      "emb_outcome",
	"combined":     "emb_combined",
}

// Client implements storage.MemoryStore using PostgreSQL with pgvector.
type Client struct {
	db         *sql.DB
	tableName  string
	dimensions int
}

// Config contains PostgreSQL configuration.
type Config struct {
	Host               string
	Port               int
	User               string
	Password           string
	DBName             string
	TableName          string
	EmbeddingModelDims int
	SSLMode            string
}

// NewClient creates a new PostgreSQL memory store client.
func NewClient(cfg *Config) (*Client, error) {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, sslMode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("NewPostgresClient: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("NewPostgresClient: %w", err)
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

// initTables enables the pgvector extension and creates the memory table.
func (c *Client) initTables(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("initTables: %w", err)
	}

	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id BIGINT PRIMARY KEY,
			expert_id TEXT NOT NULL,
			game_id TEXT NOT NULL,
			memory_type TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			game_context JSONB,
			prediction_data JSONB,
			outcome_data JSONB,
			lessons JSONB,
			emotional_intensity DOUBLE PRECISION DEFAULT 0.0,
			emb_game_context vector(%d),
			emb_prediction vector(%d),
			emb_outcome vector(%d),
			emb_combined vector(%d),
			retrieval_count BIGINT DEFAULT 0
		)
	`, c.tableName, c.dimensions, c.dimensions, c.dimensions, c.dimensions)

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

	query := fmt.Sprintf(`
		INSERT INTO %s (id, expert_id, game_id, memory_type, created_at,
			game_context, prediction_data, outcome_data, lessons,
			emotional_intensity, emb_game_context, emb_prediction,
			emb_outcome, emb_combined, retrieval_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
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
	i := 1
	for channel, vec := range embeddings {
		column, ok := embeddingColumns[channel]
		if !ok {
			return fmt.Errorf("UpdateEmbeddings: unknown channel %q", channel)
		}
		sets = append(sets, fmt.Sprintf("%s = $%d", column, i))
		args = append(args, vectorToString(vec))
		i++
	}
	args = append(args, id)

	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = $%d", c.tableName, strings.Join(sets, ", "), i)
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
			emotional_intensity,
			emb_game_context::text, emb_prediction::text,
			emb_outcome::text, emb_combined::text,
			retrieval_count, 0.0
		FROM %s WHERE id = $1
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
// pgvector's cosine distance operator (<=>) ranks candidates in the
// database; the distance is mapped into a [0,1] similarity score. Ties are
// broken by ID ascending for deterministic ordering.
func (c *Client) QueryNearest(ctx context.Context, expertID, channel string, queryVector []float64, k int) ([]*storage.Record, error) {
	column, ok := embeddingColumns[channel]
	if !ok {
		return nil, fmt.Errorf("QueryNearest: unknown channel %q", channel)
	}

	query := fmt.Sprintf(`
		SELECT id, expert_id, game_id, memory_type, created_at,
			game_context, prediction_data, outcome_data, lessons,
			emotional_intensity,
			emb_game_context::text, emb_prediction::text,
			emb_outcome::text, emb_combined::text,
			retrieval_count,
			1 - (%s <=> $1) / 2 AS score
		FROM %s
		WHERE expert_id = $2 AND %s IS NOT NULL
		ORDER BY %s <=> $1, id ASC
		LIMIT $3
	`, column, c.tableName, column, column)

	rows, err := c.db.QueryContext(ctx, query, vectorToString(queryVector), expertID, k)
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
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("QueryNearest: %w: %v", storage.ErrUnavailable, err)
	}
	return records, nil
}

// ListByExpert returns up to limit records for an expert, newest first.
func (c *Client) ListByExpert(ctx context.Context, expertID string, limit, offset int) ([]*storage.Record, error) {
	if limit <= 0 {
		limit = 1000
	}

	query := fmt.Sprintf(`
		SELECT id, expert_id, game_id, memory_type, created_at,
			game_context, prediction_data, outcome_data, lessons,
			emotional_intensity,
			emb_game_context::text, emb_prediction::text,
			emb_outcome::text, emb_combined::text,
			retrieval_count, 0.0
		FROM %s WHERE expert_id = $1
		ORDER BY created_at DESC, id ASC
		LIMIT $2 OFFSET $3
	`, c.tableName)

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
	query := fmt.Sprintf("UPDATE %s SET retrieval_count = retrieval_count + 1 WHERE id = $1", c.tableName)
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
		placeholders[i] = fmt.Sprintf("$%d", i+1)
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

// scanRecord scans one row into a storage.Record.
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
		&record.RetrievalCount, &record.Score,
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
		if vec, err := parseVectorString(column.String); err == nil && len(vec) > 0 {
			record.Embeddings[channel] = vec
		}
	}

	return &record, nil
}

// vectorToString formats a vector as a pgvector literal: [0.1,0.2,...].
func vectorToString(vector []float64) string {
	parts := make([]string, len(vector))
	for i, v := range vector {
		parts[i] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// nullableVector formats a vector literal, mapping empty to NULL.
func nullableVector(vector []float64) interface{} {
	if len(vector) == 0 {
		return nil
	}
	return vectorToString(vector)
}

// nullableJSON converts raw JSON into a driver value, mapping empty to NULL.
func nullableJSON(data json.RawMessage) interface{} {
	if len(data) == 0 {
		return nil
	}
	return string(data)
}

// parseVectorString parses a pgvector literal back into a float slice.
func parseVectorString(s string) ([]float64, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")
	if s == "" {
		return nil, nil
	}

	parts := strings.Split(s, ",")
	vec := make([]float64, len(parts))
	for i, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return nil, err
		}
		vec[i] = v
	}
	return vec, nil
}
