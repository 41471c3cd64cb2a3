package database

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"chat-moderation-engine/internal/store"
)

// Database is the PostgreSQL implementation of store.Store
type Database struct {
	db     *sql.DB
	stmts  atomic.Pointer[PreparedStatements]
	logger *zap.Logger
}

var _ store.Store = (*Database)(nil)

type PostgresConfig struct {
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	User     string `json:"user" yaml:"user"`
	Password string `json:"password" yaml:"password"`
	Database string `json:"database" yaml:"database"`
	SSLMode  string `json:"sslmode" yaml:"sslmode"`
}

// Enabled reports whether a PostgreSQL host is configured
func (c PostgresConfig) Enabled() bool {
	return c.Host != ""
}

// DSN builds the lib/pq connection string
func (c PostgresConfig) DSN() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	port := c.Port
	if port == 0 {
		port = 5432
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s tcp_user_timeout=1000",
		c.Host, port, c.User, c.Password, c.Database, sslMode)
}

const schema = `
-- Risk profiles, one row per actor name
CREATE TABLE IF NOT EXISTS risk_profiles (
    actor_name TEXT PRIMARY KEY,
    cumulative_threat_score DOUBLE PRECISION NOT NULL DEFAULT 0 CHECK (cumulative_threat_score >= 0),
    warning_count INTEGER NOT NULL DEFAULT 0 CHECK (warning_count >= 0),
    last_activity BIGINT NOT NULL,
    device_fingerprint TEXT NOT NULL DEFAULT ''
);

-- Executed bans; (device_id, created_at) makes retried inserts idempotent
CREATE TABLE IF NOT EXISTS ban_records (
    id UUID PRIMARY KEY,
    actor_name TEXT NOT NULL,
    device_id TEXT NOT NULL,
    reason TEXT NOT NULL,
    severity TEXT NOT NULL,
    threat_score DOUBLE PRECISION NOT NULL,
    detected_patterns TEXT[] NOT NULL DEFAULT '{}',
    duration_seconds BIGINT NOT NULL, -- 0 means permanent
    message_content TEXT NOT NULL DEFAULT '',
    created_at BIGINT NOT NULL, -- unix nanoseconds
    expires_at BIGINT, -- NULL means permanent
    UNIQUE(device_id, created_at)
);

-- Keys of applied risk deltas; a replayed delta is skipped
CREATE TABLE IF NOT EXISTS risk_deltas (
    delta_key TEXT PRIMARY KEY,
    applied_at BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_risk_deltas_applied ON risk_deltas(applied_at);
CREATE INDEX IF NOT EXISTS idx_ban_records_actor ON ban_records(actor_name);
CREATE INDEX IF NOT EXISTS idx_ban_records_device ON ban_records(device_id);
CREATE INDEX IF NOT EXISTS idx_ban_records_created ON ban_records(created_at DESC);
`

func NewDatabase(ctx context.Context, cfg PostgresConfig, logger *zap.Logger) (*Database, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(1 * time.Hour)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}

	d := &Database{db: db, logger: logger}
	if err := d.InitPreparedStatements(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init prepared statements: %w", err)
	}

	logger.Info("PostgreSQL connected", zap.String("host", cfg.Host), zap.String("database", cfg.Database))
	return d, nil
}

func (d *Database) Close() error {
	d.ClosePreparedStatements()
	return d.db.Close()
}

func (d *Database) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}
