package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"backoffice-svc/config"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS orders (
		order_id VARCHAR(64) PRIMARY KEY,
		customer_id VARCHAR(64) NOT NULL,
		items JSONB NOT NULL DEFAULT '[]',
		subtotal NUMERIC(14, 2) NOT NULL DEFAULT 0,
		tax_amount NUMERIC(14, 2) NOT NULL DEFAULT 0,
		shipping_charges NUMERIC(14, 2) NOT NULL DEFAULT 0,
		discount NUMERIC(14, 2) NOT NULL DEFAULT 0,
		final_amount NUMERIC(14, 2) NOT NULL DEFAULT 0,
		payment_method VARCHAR(32) NOT NULL,
		payment_status VARCHAR(32) NOT NULL DEFAULT 'pending',
		status VARCHAR(32) NOT NULL DEFAULT 'pending',
		order_date TIMESTAMPTZ NOT NULL,
		shipping_address JSONB NOT NULL DEFAULT '{}',
		flags JSONB NOT NULL DEFAULT '[]',
		refund_info JSONB,
		deleted_at TIMESTAMPTZ,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_order_date ON orders (order_date)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_customer ON orders (customer_id)`,
	`CREATE TABLE IF NOT EXISTS customers (
		customer_id VARCHAR(64) PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		email VARCHAR(255) NOT NULL DEFAULT '',
		phone VARCHAR(64) NOT NULL DEFAULT '',
		registration_date TIMESTAMPTZ NOT NULL,
		total_orders INTEGER NOT NULL DEFAULT 0,
		total_spent NUMERIC(14, 2) NOT NULL DEFAULT 0,
		last_order_date TIMESTAMPTZ,
		status VARCHAR(32) NOT NULL DEFAULT 'active',
		segmentation VARCHAR(32) NOT NULL DEFAULT 'new',
		engagement_score INTEGER NOT NULL DEFAULT 0,
		churn_risk VARCHAR(16) NOT NULL DEFAULT 'low',
		flags JSONB NOT NULL DEFAULT '[]',
		deleted_at TIMESTAMPTZ,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS products (
		sku VARCHAR(64) PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		category VARCHAR(128) NOT NULL DEFAULT '',
		subcategory VARCHAR(128) NOT NULL DEFAULT '',
		base_price NUMERIC(14, 2) NOT NULL DEFAULT 0,
		sale_price NUMERIC(14, 2) NOT NULL DEFAULT 0,
		tax_rate NUMERIC(6, 4) NOT NULL DEFAULT 0,
		stock INTEGER NOT NULL DEFAULT 0,
		reserved INTEGER NOT NULL DEFAULT 0,
		low_stock_threshold INTEGER NOT NULL DEFAULT 0,
		views BIGINT NOT NULL DEFAULT 0,
		purchases BIGINT NOT NULL DEFAULT 0,
		revenue NUMERIC(16, 2) NOT NULL DEFAULT 0,
		last_purchased_at TIMESTAMPTZ,
		flags JSONB NOT NULL DEFAULT '[]',
		status VARCHAR(32) NOT NULL DEFAULT 'pending_approval',
		deleted_at TIMESTAMPTZ,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS order_completions (
		order_id VARCHAR(64) PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		reversed_at TIMESTAMPTZ
	)`,
	`ALTER TABLE order_completions ADD COLUMN IF NOT EXISTS reversed_at TIMESTAMPTZ`,
	`CREATE TABLE IF NOT EXISTS audit_logs (
		id UUID PRIMARY KEY,
		actor_id VARCHAR(64) NOT NULL,
		action VARCHAR(128) NOT NULL,
		resource_type VARCHAR(32) NOT NULL,
		resource_id VARCHAR(64),
		changes JSONB NOT NULL DEFAULT '{}',
		metadata JSONB NOT NULL DEFAULT '{}',
		severity VARCHAR(16) NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_logs_resource ON audit_logs (resource_type, resource_id)`,
	`CREATE TABLE IF NOT EXISTS admin_users (
		id SERIAL PRIMARY KEY,
		email VARCHAR(255) UNIQUE NOT NULL,
		password_hash VARCHAR(255) NOT NULL,
		role VARCHAR(32) NOT NULL DEFAULT 'admin',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`,
}

func InitDB(cfg config.DBConfig, logger *zap.Logger) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := EnsureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	logger.Info("Database connection established", zap.String("host", cfg.Host), zap.String("database", cfg.Name))
	return db, nil
}

func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}
