// Package storage persists banks, credit cards, and promotions in a SQL
// database. Every write is an idempotent upsert keyed on a natural key, so
// re-crawling the same source updates rows in place instead of duplicating
// them. Each upsert is its own atomic unit; a crawl run is deliberately not
// wrapped in one all-or-nothing transaction.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/stonebomdic/credit-card-crawler/internal/config"
)

// Store provides access to the relational database.
type Store struct {
	db          *sql.DB
	autoMigrate bool
}

// Open initialises a Store from configuration and verifies connectivity.
func Open(cfg config.SQLConfig) (*Store, error) {
	if cfg.Driver == "" || cfg.DSN == "" {
		return nil, errors.New("sql config missing driver or dsn")
	}
	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open sql connection: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sql connection: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime.Duration > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime.Duration)
	}

	store := &Store{db: db, autoMigrate: cfg.AutoMigrate}
	if cfg.AutoMigrate {
		if err := store.ensureSchema(context.Background()); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return store, nil
}

// Close closes the underlying DB connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) ensureSchema(ctx context.Context) error {
	if s == nil || s.db == nil || !s.autoMigrate {
		return nil
	}
	schemaCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS banks (
		    id BIGSERIAL PRIMARY KEY,
		    name TEXT NOT NULL,
		    code TEXT NOT NULL UNIQUE,
		    website TEXT,
		    logo_url TEXT,
		    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS credit_cards (
		    id BIGSERIAL PRIMARY KEY,
		    bank_id BIGINT NOT NULL REFERENCES banks(id),
		    name TEXT NOT NULL,
		    card_type TEXT,
		    annual_fee INT,
		    annual_fee_waiver TEXT,
		    image_url TEXT,
		    apply_url TEXT,
		    min_income INT,
		    features JSONB,
		    base_reward_rate DOUBLE PRECISION NOT NULL DEFAULT 0,
		    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		    UNIQUE (bank_id, name)
		)`,
		`CREATE TABLE IF NOT EXISTS promotions (
		    id BIGSERIAL PRIMARY KEY,
		    card_id BIGINT NOT NULL REFERENCES credit_cards(id) ON DELETE CASCADE,
		    title TEXT NOT NULL,
		    description TEXT,
		    category TEXT,
		    reward_type TEXT,
		    reward_rate DOUBLE PRECISION NOT NULL DEFAULT 0,
		    reward_limit INT,
		    min_spend INT,
		    start_date DATE,
		    end_date DATE,
		    terms TEXT,
		    source_url TEXT,
		    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		    UNIQUE (card_id, title)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_credit_cards_bank_id ON credit_cards (bank_id)`,
		`CREATE INDEX IF NOT EXISTS idx_promotions_card_id ON promotions (card_id)`,
		`CREATE INDEX IF NOT EXISTS idx_promotions_end_date ON promotions (end_date)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(schemaCtx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
