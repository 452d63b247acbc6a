package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvector "github.com/pgvector/pgvector-go/pgx"

	"github.com/david/campus-notice/internal/logging"
)

// Connect opens a pgx pool. The pgvector types are registered on every connection
// made after the extension exists; call pool.Reset after the migration that creates
// it so earlier connections pick them up.
func Connect(ctx context.Context, dbURL string) (*pgxpool.Pool, error) {
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is not set")
	}

	config, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, fmt.Errorf("error parsing db config: %w", err)
	}
	if config.MaxConns < 4 {
		config.MaxConns = 4
	}
	config.HealthCheckPeriod = time.Minute

	config.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		var hasVector bool
		if err := conn.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM pg_type WHERE typname = 'vector')").Scan(&hasVector); err != nil {
			return err
		}
		if !hasVector {
			return nil
		}
		return pgxvector.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("error connecting to db: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("error pinging db: %w", err)
	}

	logging.For("db").Infof("connected to %s/%s (max %d conns)", config.ConnConfig.Host, config.ConnConfig.Database, config.MaxConns)
	return pool, nil
}
