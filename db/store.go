package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// PredictionRecord is one served prediction.
type PredictionRecord struct {
	ID         int64     `db:"id" json:"id"`
	RequestID  string    `db:"request_id" json:"request_id"`
	Variant    string    `db:"variant" json:"variant"`
	Label      string    `db:"label" json:"label"`
	ClassIndex int       `db:"class_index" json:"class_index"`
	Code       int       `db:"code" json:"code"`
	LatencyMS  float64   `db:"latency_ms" json:"latency_ms"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// Store keeps the prediction history in SQLite or PostgreSQL.
type Store struct {
	db *sqlx.DB
}

var schemas = map[string]string{
	"sqlite3": `
	CREATE TABLE IF NOT EXISTS predictions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		request_id VARCHAR(64),
		variant VARCHAR(32) NOT NULL,
		label VARCHAR(128) NOT NULL,
		class_index INTEGER NOT NULL,
		code INTEGER NOT NULL,
		latency_ms REAL,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_predictions_variant ON predictions(variant, created_at);`,
	"postgres": `
	CREATE TABLE IF NOT EXISTS predictions (
		id BIGSERIAL PRIMARY KEY,
		request_id VARCHAR(64),
		variant VARCHAR(32) NOT NULL,
		label VARCHAR(128) NOT NULL,
		class_index INTEGER NOT NULL,
		code INTEGER NOT NULL,
		latency_ms DOUBLE PRECISION,
		created_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_predictions_variant ON predictions(variant, created_at);`,
}

// Open connects and creates the schema. driver is "sqlite3" or "postgres".
func Open(driver, dsn string) (*Store, error) {
	schema, ok := schemas[driver]
	if !ok {
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	database, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database failed: %w", err)
	}
	if driver == "sqlite3" {
		// one connection keeps :memory: databases shared and avoids SQLITE_BUSY
		database.SetMaxOpenConns(1)
	}
	if err := database.Ping(); err != nil {
		database.Close()
		return nil, fmt.Errorf("ping database failed: %w", err)
	}
	if _, err := database.Exec(schema); err != nil {
		database.Close()
		return nil, fmt.Errorf("create tables failed: %w", err)
	}
	return &Store{db: database}, nil
}

func (s *Store) SavePrediction(ctx context.Context, record PredictionRecord) error {
	if s == nil || s.db == nil {
		return errors.New("database not initialized")
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	query := s.db.Rebind(`
		INSERT INTO predictions (
			request_id, variant, label, class_index, code, latency_ms, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, query,
		record.RequestID, record.Variant, record.Label,
		record.ClassIndex, record.Code, record.LatencyMS, record.CreatedAt,
	)
	return err
}

// RecentPredictions returns the newest records first. An empty variant
// matches all variants.
func (s *Store) RecentPredictions(ctx context.Context, variant string, limit int) ([]PredictionRecord, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("database not initialized")
	}
	if limit <= 0 {
		limit = 20
	}
	query := `
		SELECT id, request_id, variant, label, class_index, code, latency_ms, created_at
		FROM predictions`
	args := []any{}
	if variant != "" {
		query += ` WHERE variant = ?`
		args = append(args, variant)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	records := make([]PredictionRecord, 0)
	if err := s.db.SelectContext(ctx, &records, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to query predictions: %w", err)
	}
	return records, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
