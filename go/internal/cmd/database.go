package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	"github.com/mcdev12/focushub/go/internal/dbconfig"
	"github.com/rs/zerolog/log"
)

func setupDatabase(dbCfg dbconfig.Config) (*sql.DB, error) {
	database, err := sql.Open("postgres", dbCfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to create database connection: %w", err)
	}
	database.SetMaxOpenConns(dbCfg.MaxConns)
	database.SetMaxIdleConns(dbCfg.MaxIdleConns)
	database.SetConnMaxLifetime(dbCfg.ConnMaxLifetime)

	if err := database.Ping(); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().
		Str("user", dbCfg.User).
		Str("host", dbCfg.Host).
		Int("port", dbCfg.Port).
		Str("database", dbCfg.Database).
		Msg("connected to database")
	return database, nil
}

// setupPool opens the pgx pool used by the presence ledger
func setupPool(ctx context.Context, dbCfg dbconfig.Config) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dbCfg.PoolDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to create pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}
