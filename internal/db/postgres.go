package db

import (
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/gw-dg/palanam-latency/internal/config"

	_ "github.com/lib/pq"
)

func ConnectPostgres(cfg *config.Config, log *zap.Logger) (*sql.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.PostgresHost,
		cfg.PostgresPort,
		cfg.PostgresUser,
		cfg.PostgresPassword,
		cfg.PostgresDB,
		cfg.PostgresSSLMode,
	)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	createSchemaSQL := fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", cfg.PostgresSchema)
	if _, err := db.Exec(createSchemaSQL); err != nil {
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	setSearchPathSQL := fmt.Sprintf("SET search_path TO %s, public", cfg.PostgresSchema)
	if _, err := db.Exec(setSearchPathSQL); err != nil {
		return nil, fmt.Errorf("failed to set search_path: %w", err)
	}

	if err := RunMigrations(db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	log.Info("postgres connection established",
		zap.String("database", cfg.PostgresDB),
		zap.String("schema", cfg.PostgresSchema),
	)
	return db, nil
}

func RunMigrations(db *sql.DB) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			video_path TEXT,
			status TEXT NOT NULL,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL,
			updated_at TIMESTAMP WITH TIME ZONE NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_created_at ON sessions(created_at DESC)`,

		`CREATE TABLE IF NOT EXISTS detections (
			id BIGSERIAL PRIMARY KEY,
			session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			ts DOUBLE PRECISION NOT NULL,
			frame_index INTEGER NOT NULL,
			label TEXT NOT NULL,
			confidence DOUBLE PRECISION NOT NULL,
			flagged BOOLEAN NOT NULL,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_detections_session_id ON detections(session_id)`,
		`CREATE INDEX IF NOT EXISTS idx_detections_flagged ON detections(session_id, flagged)`,
	}

	for i, migration := range migrations {
		if _, err := db.Exec(migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}
