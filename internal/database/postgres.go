package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

var DB *pgxpool.Pool

const connectTimeout = 10 * time.Second

// PoolOptions carries the pool tunables read from the environment.
// Non-positive values leave the pgxpool defaults in place.
type PoolOptions struct {
	MaxConns int32
	MinConns int32
}

func ConnectDB(databaseURL string, opts PoolOptions) error {
	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return fmt.Errorf("parse database config: %w", err)
	}
	applyPoolOptions(poolConfig, opts)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	DB, err = pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return fmt.Errorf("create connection pool: %w", err)
	}

	if err := DB.Ping(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}

	log.Printf("Database pool ready (max_conns=%d min_conns=%d)", poolConfig.MaxConns, poolConfig.MinConns)
	return nil
}

func applyPoolOptions(poolConfig *pgxpool.Config, opts PoolOptions) {
	if opts.MaxConns > 0 {
		poolConfig.MaxConns = opts.MaxConns
	}
	if opts.MinConns > 0 {
		poolConfig.MinConns = opts.MinConns
	}
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
}

func CloseDB() {
	if DB != nil {
		DB.Close()
	}
}
