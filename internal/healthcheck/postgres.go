package healthcheck

import (
	"context"
	"time"
)

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PostgresChecker verifies storage connectivity.
type PostgresChecker struct {
	pool    Pinger
	timeout time.Duration
}

// NewPostgresChecker creates a storage connectivity checker.
func NewPostgresChecker(pool Pinger) *PostgresChecker {
	return &PostgresChecker{pool: pool, timeout: 2 * time.Second}
}

// Check pings the connection pool.
func (c *PostgresChecker) Check(ctx context.Context) CheckResult {
	result := CheckResult{ID: "postgres"}
	if c.pool == nil {
		result.Status = StatusError
		result.Detail = "connection pool is not configured"
		return result
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := c.pool.Ping(ctx); err != nil {
		result.Status = StatusError
		result.Detail = err.Error()
		return result
	}
	result.Status = StatusOK
	return result
}
