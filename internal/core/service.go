// Package core provides the business logic for CSV dataset storage: schema
// synchronization, bulk import, and record CRUD. It has no HTTP
// dependencies and can be driven by any frontend.
package core

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tabledrop/tabledrop/internal/config"
)

// DBTX is the interface for database operations.
// Satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
}

// Service owns the connection pool and the backing table for uploaded
// datasets. All database access goes through it; nothing here is global.
type Service struct {
	pool  *pgxpool.Pool
	table string
}

// NewService creates a Service over the given pool, storing records in the
// configured table.
func NewService(pool *pgxpool.Pool, cfg *config.Config) *Service {
	return &Service{
		pool:  pool,
		table: cfg.Database.Table,
	}
}

// Table returns the name of the backing table.
func (s *Service) Table() string {
	return s.table
}

// Ping probes database connectivity. Used by the health endpoint.
func (s *Service) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
