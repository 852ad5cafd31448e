// Package audit persists control-loop events to Postgres, adapted from
// internal/db's connection and reconnect-with-backoff helpers. The sink is
// strictly additive: a dead or misconfigured database never blocks or fails
// the control path, only the audit trail.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"

	"github.com/tobiasrehn/shadeflow/internal/shading"
	"github.com/tobiasrehn/shadeflow/pkg/config"
)

const eventQueueSize = 256

type event struct {
	kind     string
	uniqueID string
	detail   string
	on       bool
	at       time.Time
}

// Sink is a Postgres-backed audit trail. Construct one with Connect; the
// zero value, which Nop() returns, discards every event.
type Sink struct {
	db     *sql.DB
	logger *slog.Logger
	events chan event
	done   chan struct{}
}

// Nop returns a Sink that discards every event, for when AuditConfig.DSN is
// empty.
func Nop() *Sink {
	return &Sink{}
}

// Connect opens the audit database, creates its table if absent, and starts
// the background writer goroutine. Connection failures are returned to the
// caller; once running, write failures are logged and dropped.
func Connect(cfg config.AuditConfig, logger *slog.Logger) (*Sink, error) {
	if cfg.DSN == "" {
		return Nop(), nil
	}
	if logger == nil {
		logger = slog.Default()
	}

	sqlDB, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("audit: open failed: %w", err)
	}

	maxOpen := cfg.MaxOpenConns
	if maxOpen == 0 {
		maxOpen = 5
	}
	maxIdle := cfg.MaxIdleConns
	if maxIdle == 0 {
		maxIdle = 2
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(maxIdle)
	sqlDB.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("audit: ping failed: %w", err)
	}

	if _, err := sqlDB.ExecContext(ctx, schemaSQL); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("audit: schema init failed: %w", err)
	}

	s := &Sink{
		db:     sqlDB,
		logger: logger,
		events: make(chan event, eventQueueSize),
		done:   make(chan struct{}),
	}
	go s.run()
	return s, nil
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS shading_events (
	id SERIAL PRIMARY KEY,
	kind TEXT NOT NULL,
	unique_id TEXT NOT NULL,
	detail TEXT NOT NULL,
	on_off BOOLEAN NOT NULL,
	occurred_at TIMESTAMPTZ NOT NULL
)`

func (s *Sink) run() {
	defer close(s.done)
	for ev := range s.events {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO shading_events (kind, unique_id, detail, on_off, occurred_at) VALUES ($1, $2, $3, $4, $5)`,
			ev.kind, ev.uniqueID, ev.detail, ev.on, ev.at)
		cancel()
		if err != nil {
			s.logger.Warn("audit: insert failed", "kind", ev.kind, "unique_id", ev.uniqueID, "error", err)
		}
	}
}

func (s *Sink) enqueue(ev event) {
	if s.events == nil {
		return
	}
	select {
	case s.events <- ev:
	default:
		s.logger.Warn("audit: event queue full, dropping event", "kind", ev.kind, "unique_id", ev.uniqueID)
	}
}

// RecordModeTransition logs a mode change.
func (s *Sink) RecordModeTransition(uniqueID string, from, to shading.Mode, at time.Time) {
	s.enqueue(event{kind: "mode_transition", uniqueID: uniqueID, detail: fmt.Sprintf("%s -> %s", from, to), at: at})
}

// RecordLockChange logs a lock being raised or released.
func (s *Sink) RecordLockChange(uniqueID, lockName string, on bool, at time.Time) {
	s.enqueue(event{kind: "lock_change", uniqueID: uniqueID, detail: lockName, on: on, at: at})
}

// RecordSolarHeatingChange logs the solar-heating status flipping.
func (s *Sink) RecordSolarHeatingChange(uniqueID string, on bool, at time.Time) {
	s.enqueue(event{kind: "solar_heating", uniqueID: uniqueID, on: on, at: at})
}

// Close drains the event queue and closes the underlying connection. Safe
// to call on a Nop sink.
func (s *Sink) Close() error {
	if s.events == nil {
		return nil
	}
	close(s.events)
	<-s.done
	return s.db.Close()
}
