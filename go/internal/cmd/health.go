package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

type HealthStatus struct {
	Healthy           bool     `json:"healthy"`
	DatabaseConnected bool     `json:"database_connected"`
	LedgerConnected   bool     `json:"ledger_connected"`
	NATSConnected     bool     `json:"nats_connected"`
	CacheConnected    bool     `json:"cache_connected"`
	Errors            []string `json:"errors,omitempty"`
}

// HealthChecker probes the stores and brokers the account server depends on
type HealthChecker struct {
	database *sql.DB
	pool     *pgxpool.Pool
	services *Services
}

func NewHealthChecker(database *sql.DB, pool *pgxpool.Pool, services *Services) *HealthChecker {
	return &HealthChecker{database: database, pool: pool, services: services}
}

func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{Healthy: true}

	if err := h.database.PingContext(ctx); err != nil {
		status.Healthy = false
		status.Errors = append(status.Errors, fmt.Sprintf("database ping failed: %v", err))
	} else {
		status.DatabaseConnected = true
	}

	if err := h.pool.Ping(ctx); err != nil {
		status.Healthy = false
		status.Errors = append(status.Errors, fmt.Sprintf("ledger pool ping failed: %v", err))
	} else {
		status.LedgerConnected = true
	}

	// optional dependencies only count when configured
	if consumer := h.services.Consumer; consumer != nil {
		status.NATSConnected = consumer.Connected()
		if !status.NATSConnected {
			status.Healthy = false
			status.Errors = append(status.Errors, "NATS not connected")
		}
	}

	if cache := h.services.Cache; cache != nil {
		if err := cache.Ping(ctx); err != nil {
			// the leaderboard falls back to the database
			status.Errors = append(status.Errors, fmt.Sprintf("cache ping failed: %v", err))
		} else {
			status.CacheConnected = true
		}
	}

	return status
}

func (h *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := h.Check(ctx)

	w.Header().Set("Content-Type", "application/json")
	if !status.Healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(status); err != nil {
		log.Error().Err(err).Msg("failed to write health check response")
	}
}
