package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sjsage522/pricecrawler/internal/crawler"
	"sjsage522/pricecrawler/logger"
	apperrors "sjsage522/pricecrawler/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TableName is the table every crawl writes into
const TableName = "communities"

const uniqueViolation = "23505"

const createTableSQL = `
CREATE TABLE IF NOT EXISTS communities (
	community_name TEXT NOT NULL,
	cid BIGINT PRIMARY KEY,
	location TEXT NOT NULL,
	cur_price BIGINT NOT NULL DEFAULT 0,
	price201212 BIGINT NOT NULL DEFAULT 0,
	price201306 BIGINT NOT NULL DEFAULT 0,
	price201312 BIGINT NOT NULL DEFAULT 0,
	price201406 BIGINT NOT NULL DEFAULT 0,
	price201412 BIGINT NOT NULL DEFAULT 0
);
`

// PostgresSink writes records into PostgreSQL with a single COPY per crawl
type PostgresSink struct {
	pool *pgxpool.Pool
}

// NewPostgresSink connects to databaseURL and verifies the connection
func NewPostgresSink(ctx context.Context, databaseURL string) (*PostgresSink, error) {
	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, apperrors.NewConfiguration("invalid DATABASE_URL", err)
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolConfig)
	if err != nil {
		return nil, apperrors.NewPersistence("postgres", "failed to create pool", err)
	}

	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, apperrors.NewPersistence("postgres", "failed to connect", err)
	}

	logger.ForStorage().Info().
		Str("host", poolConfig.ConnConfig.Host).
		Str("database", poolConfig.ConnConfig.Database).
		Msg("Connected to PostgreSQL")

	return &PostgresSink{pool: pool}, nil
}

// EnsureDatabase creates the database named in databaseURL when it does not exist yet
func EnsureDatabase(ctx context.Context, databaseURL string) error {
	connConfig, err := pgx.ParseConfig(databaseURL)
	if err != nil {
		return apperrors.NewConfiguration("invalid DATABASE_URL", err)
	}
	target := connConfig.Database
	if target == "" || target == "postgres" {
		return nil
	}

	connConfig.Database = "postgres"
	conn, err := pgx.ConnectConfig(ctx, connConfig)
	if err != nil {
		return apperrors.NewPersistence("postgres", "failed to connect to maintenance database", err)
	}
	defer conn.Close(ctx)

	var exists bool
	err = conn.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)", target).Scan(&exists)
	if err != nil {
		return apperrors.NewPersistence("postgres", "failed to look up database", err)
	}
	if exists {
		return nil
	}

	if _, err := conn.Exec(ctx, "CREATE DATABASE "+pgx.Identifier{target}.Sanitize()); err != nil {
		return apperrors.NewPersistence("postgres", fmt.Sprintf("failed to create database %s", target), err)
	}
	logger.ForStorage().Info().Str("database", target).Msg("Created database")
	return nil
}

// EnsureSchema creates the communities table if it is absent
func (s *PostgresSink) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, createTableSQL); err != nil {
		return apperrors.NewPersistence("postgres", "failed to ensure schema", err)
	}
	return nil
}

// Write copies every record inside one transaction. A duplicate cid fails
// the whole write; nothing is committed.
func (s *PostgresSink) Write(ctx context.Context, records []crawler.CommunityRecord) error {
	start := time.Now()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return apperrors.NewPersistence("postgres", "failed to begin transaction", err)
	}
	defer tx.Rollback(ctx)

	copied, err := tx.CopyFrom(ctx, pgx.Identifier{TableName}, Columns, pgx.CopyFromRows(Rows(records)))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return apperrors.NewPersistence("postgres", "community already stored: "+pgErr.Detail, err)
		}
		return apperrors.NewPersistence("postgres", "bulk copy failed", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return apperrors.NewPersistence("postgres", "failed to commit", err)
	}

	logger.ForStorage().Info().
		Int64("rows", copied).
		Dur("elapsed", time.Since(start)).
		Msg("Records committed")
	return nil
}

// Close closes the connection pool
func (s *PostgresSink) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}
