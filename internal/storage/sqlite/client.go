package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/EvianLUO/bertopic-analysis-tool/internal/storage/models"
	"github.com/EvianLUO/bertopic-analysis-tool/pkg/logger"
)

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	_, err = db.Exec("PRAGMA journal_mode = WAL")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS stopword_categories (
		name TEXT PRIMARY KEY,
		words TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS analysis_runs (
		id TEXT PRIMARY KEY,
		source TEXT NOT NULL,
		embedding_model TEXT,
		segmenter TEXT,
		num_documents INTEGER NOT NULL,
		num_topics INTEGER NOT NULL,
		num_noise INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL,
		status TEXT NOT NULL,
		error TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_runs_created ON analysis_runs(created_at);
	CREATE INDEX IF NOT EXISTS idx_runs_status ON analysis_runs(status);
	`

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

func (c *Client) GetStopwordCategories() ([]models.StopwordCategory, error) {
	query := `SELECT name, words, updated_at FROM stopword_categories ORDER BY name`

	rows, err := c.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to get stopword categories: %w", err)
	}
	defer rows.Close()

	var categories []models.StopwordCategory
	for rows.Next() {
		var cat models.StopwordCategory
		var wordsJSON string
		var updatedAt int64

		if err := rows.Scan(&cat.Name, &wordsJSON, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		if err := json.Unmarshal([]byte(wordsJSON), &cat.Words); err != nil {
			return nil, fmt.Errorf("failed to decode stopwords for %q: %w", cat.Name, err)
		}
		cat.UpdatedAt = time.Unix(updatedAt, 0)
		categories = append(categories, cat)
	}

	return categories, rows.Err()
}

// UpsertStopwordCategories replaces the given categories in one transaction. Categories
// not listed are left untouched.
func (c *Client) UpsertStopwordCategories(categories []models.StopwordCategory) error {
	tx, err := c.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO stopword_categories (name, words, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			words = excluded.words,
			updated_at = excluded.updated_at
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, cat := range categories {
		words := cat.Words
		if words == nil {
			words = []string{}
		}
		wordsJSON, err := json.Marshal(words)
		if err != nil {
			return fmt.Errorf("failed to encode stopwords for %q: %w", cat.Name, err)
		}
		if _, err := stmt.Exec(cat.Name, string(wordsJSON), cat.UpdatedAt.Unix()); err != nil {
			return fmt.Errorf("failed to upsert stopword category %q: %w", cat.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit stopwords: %w", err)
	}

	logger.Debug("Stopword categories stored", zap.Int("categories", len(categories)))
	return nil
}

func (c *Client) InsertRun(run *models.AnalysisRun) error {
	query := `
		INSERT INTO analysis_runs (id, source, embedding_model, segmenter, num_documents, num_topics,
			num_noise, duration_ms, status, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := c.db.Exec(
		query,
		run.ID,
		run.Source,
		run.EmbeddingModel,
		run.Segmenter,
		run.NumDocuments,
		run.NumTopics,
		run.NumNoise,
		run.DurationMS,
		run.Status,
		run.Error,
		run.CreatedAt.Unix(),
	)

	if err != nil {
		return fmt.Errorf("failed to insert analysis run: %w", err)
	}

	logger.Info("Analysis run recorded",
		zap.String("run_id", run.ID),
		zap.String("status", run.Status),
		zap.Int("topics", run.NumTopics),
	)

	return nil
}

func (c *Client) ListRuns(limit int) ([]models.AnalysisRun, error) {
	query := `
		SELECT id, source, embedding_model, segmenter, num_documents, num_topics, num_noise,
			duration_ms, status, error, created_at
		FROM analysis_runs
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`

	rows, err := c.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list analysis runs: %w", err)
	}
	defer rows.Close()

	var runs []models.AnalysisRun
	for rows.Next() {
		var r models.AnalysisRun
		var createdAt int64

		err := rows.Scan(&r.ID, &r.Source, &r.EmbeddingModel, &r.Segmenter, &r.NumDocuments,
			&r.NumTopics, &r.NumNoise, &r.DurationMS, &r.Status, &r.Error, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		r.CreatedAt = time.Unix(createdAt, 0)
		runs = append(runs, r)
	}

	return runs, rows.Err()
}
