package main

import (
	"context"
	"log"

	"invox/pkg/config"
	"invox/pkg/logger"
	"invox/pkg/postgres"

	"go.uber.org/zap"
)

// Schema statements are idempotent so the migrator can run on every deploy.
var statements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY,
		username VARCHAR(255) NOT NULL,
		email VARCHAR(255) NOT NULL UNIQUE,
		password_hash VARCHAR(255) NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS invoices (
		id UUID PRIMARY KEY,
		owner_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		vendor_name VARCHAR(255),
		invoice_number VARCHAR(255),
		invoice_date DATE,
		currency VARCHAR(16),
		subtotal DOUBLE PRECISION,
		discount_percentage DOUBLE PRECISION,
		discount_amount DOUBLE PRECISION,
		cgst_rate DOUBLE PRECISION,
		cgst_amount DOUBLE PRECISION,
		sgst_rate DOUBLE PRECISION,
		sgst_amount DOUBLE PRECISION,
		tax DOUBLE PRECISION,
		total_amount DOUBLE PRECISION,
		line_items JSONB NOT NULL DEFAULT '[]',
		status VARCHAR(32) NOT NULL,
		validation_errors JSONB NOT NULL DEFAULT '[]',
		validation_warnings JSONB NOT NULL DEFAULT '[]',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	// One live record per (owner, vendor, number). Records parked in
	// REVIEW_REQUIRED are excluded so duplicate uploads can still be
	// persisted with their blocking finding.
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_invoices_owner_vendor_number
		ON invoices (owner_id, vendor_name, invoice_number)
		WHERE status <> 'REVIEW_REQUIRED'`,

	`CREATE INDEX IF NOT EXISTS idx_invoices_owner_created
		ON invoices (owner_id, created_at DESC)`,

	`CREATE INDEX IF NOT EXISTS idx_invoices_owner_status
		ON invoices (owner_id, status)`,
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := logger.Init(cfg.Logger.Level); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()
	appLogger := logger.Get()

	ctx := context.Background()
	db, err := postgres.NewPool(ctx, &cfg.Database, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	appLogger.Info("Applying schema migrations")

	for i, stmt := range statements {
		if _, err := db.Exec(ctx, stmt); err != nil {
			appLogger.Fatal("Migration statement failed",
				zap.Int("statement", i),
				zap.Error(err),
			)
		}
	}

	appLogger.Info("Schema migrations applied", zap.Int("statements", len(statements)))
}
