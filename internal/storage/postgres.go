package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"go.uber.org/zap"
)

// Config holds database configuration
type Config struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string
}

// Postgres is the durable Sink backed by PostgreSQL.
type Postgres struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgres creates a new PostgreSQL connection
func NewPostgres(cfg Config, logger *zap.Logger) (*Postgres, error) {
	if cfg.SSLMode == "" {
		cfg.SSLMode = "disable"
	}

	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &Postgres{db: db, logger: logger}, nil
}

// Close closes the database connection
func (p *Postgres) Close() error {
	return p.db.Close()
}

// Ping verifies the database connection
func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// CreateTables creates the event and anomaly tables the worker writes to.
// The uploads and users tables belong to the API service; only the
// status column of uploads is touched here.
func (p *Postgres) CreateTables(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS events (
			id BIGSERIAL PRIMARY KEY,
			upload_id UUID,
			timestamp TIMESTAMPTZ,
			src_ip VARCHAR(45),
			dest_ip VARCHAR(45),
			user_agent TEXT,
			username VARCHAR(256),
			url TEXT,
			method VARCHAR(16),
			status INTEGER,
			bytes BIGINT,
			raw_line TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_upload_id ON events(upload_id)`,
		`CREATE INDEX IF NOT EXISTS idx_events_src_ip ON events(src_ip)`,
		`CREATE TABLE IF NOT EXISTS anomalies (
			id BIGSERIAL PRIMARY KEY,
			event_id BIGINT REFERENCES events(id) ON DELETE CASCADE,
			detector VARCHAR(128),
			score VARCHAR(32),
			reason TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_anomalies_event_id ON anomalies(event_id)`,
	}

	for _, query := range queries {
		if _, err := p.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}

	return nil
}

// InsertEvents bulk-inserts events in one transaction and returns the
// assigned IDs in input order. A failure rolls back the whole batch.
func (p *Postgres) InsertEvents(ctx context.Context, events []Event) ([]int64, error) {
	if len(events) == 0 {
		return nil, nil
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO events (upload_id, timestamp, src_ip, dest_ip, user_agent,
			username, url, method, status, bytes, raw_line)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`)
	if err != nil {
		return nil, fmt.Errorf("prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	ids := make([]int64, 0, len(events))
	for i, e := range events {
		var id int64
		err := stmt.QueryRowContext(ctx,
			e.UploadID, e.Timestamp, e.SrcIP, nullString(e.DestIP), nullString(e.UserAgent),
			nullString(e.Username), e.URL, e.Method, e.Status, e.Bytes, e.RawLine,
		).Scan(&id)
		if err != nil {
			return nil, fmt.Errorf("insert event %d: %w", i, err)
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit events: %w", err)
	}

	p.logger.Info("inserted events", zap.Int("count", len(ids)))
	return ids, nil
}

// InsertAnomalies bulk-inserts anomaly rows in one transaction.
func (p *Postgres) InsertAnomalies(ctx context.Context, anomalies []Anomaly) error {
	if len(anomalies) == 0 {
		return nil
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO anomalies (event_id, detector, score, reason)
		VALUES ($1, $2, $3, $4)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i, a := range anomalies {
		if _, err := stmt.ExecContext(ctx, a.EventID, a.Detector, a.Score, a.Reason); err != nil {
			return fmt.Errorf("insert anomaly %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit anomalies: %w", err)
	}

	p.logger.Info("inserted anomalies", zap.Int("count", len(anomalies)))
	return nil
}

// UpdateUploadStatus marks an upload row with the worker's outcome.
// A missing uploads table is tolerated so the worker can run standalone.
func (p *Postgres) UpdateUploadStatus(ctx context.Context, uploadID, status string) error {
	_, err := p.db.ExecContext(ctx,
		`UPDATE uploads SET status = $1 WHERE id = $2`, status, uploadID)
	if err != nil {
		return fmt.Errorf("update upload status: %w", err)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
