// internal/core/ports/database.go
package ports

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Database is the connection pool behind the Postgres unit of work.
type Database interface {
	Pool() *pgxpool.Pool
	Close()
	Ping(ctx context.Context) error
	Health(ctx context.Context) PoolHealth
}

// PoolHealth is a point-in-time view of the pool and the ledger head.
type PoolHealth struct {
	Healthy           bool   `json:"healthy"`
	Error             string `json:"error,omitempty"`
	TotalConns        int32  `json:"totalConns"`
	IdleConns         int32  `json:"idleConns"`
	AcquiredConns     int32  `json:"acquiredConns"`
	MaxConns          int32  `json:"maxConns"`
	EmptyAcquireCount int64  `json:"emptyAcquireCount"`
	LedgerHead        int64  `json:"ledgerHead"`
}
