package database

import (
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

func TestApplyPoolOptionsOverridesSizing(t *testing.T) {
	poolConfig, err := pgxpool.ParseConfig("postgres://localhost:5432/app")
	if err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}

	applyPoolOptions(poolConfig, PoolOptions{MaxConns: 25, MinConns: 5})

	if poolConfig.MaxConns != 25 {
		t.Fatalf("expected MaxConns 25, got %d", poolConfig.MaxConns)
	}
	if poolConfig.MinConns != 5 {
		t.Fatalf("expected MinConns 5, got %d", poolConfig.MinConns)
	}
	if poolConfig.MaxConnLifetime != time.Hour {
		t.Fatalf("expected MaxConnLifetime 1h, got %v", poolConfig.MaxConnLifetime)
	}
}

func TestApplyPoolOptionsKeepsDefaultsForZeroValues(t *testing.T) {
	poolConfig, err := pgxpool.ParseConfig("postgres://localhost:5432/app")
	if err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}
	defaultMax := poolConfig.MaxConns
	defaultMin := poolConfig.MinConns

	applyPoolOptions(poolConfig, PoolOptions{})

	if poolConfig.MaxConns != defaultMax {
		t.Fatalf("expected default MaxConns %d, got %d", defaultMax, poolConfig.MaxConns)
	}
	if poolConfig.MinConns != defaultMin {
		t.Fatalf("expected default MinConns %d, got %d", defaultMin, poolConfig.MinConns)
	}
}

func TestConnectDBRejectsMalformedURL(t *testing.T) {
	if err := ConnectDB("not-a-url x", PoolOptions{}); err == nil {
		t.Fatal("expected error for malformed database url")
	}
}
