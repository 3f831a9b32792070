package database

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Connection pool sizing for the gateway: handlers issue many short
// conditional updates (order claims, message edits), so idle headroom
// matters more than raw connection count.
const (
	pgMaxOpenConns    = 25
	pgMaxIdleConns    = 10
	pgConnMaxLifetime = 30 * time.Minute
	pgDialTimeout     = 5 * time.Second
)

// ConnectPostgres opens the gateway's PostgreSQL connection from a DSN and
// verifies it with a bounded ping.
func ConnectPostgres(dsn string) (*gorm.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn must not be empty")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		PrepareStmt: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access postgres connection pool: %w", err)
	}
	sqlDB.SetMaxOpenConns(pgMaxOpenConns)
	sqlDB.SetMaxIdleConns(pgMaxIdleConns)
	sqlDB.SetConnMaxLifetime(pgConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), pgDialTimeout)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}

	return db, nil
}
