// Package sqlite provides a sink that stores events in a SQLite table.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/specialistvlad/eventgrid/internal/event"
	"github.com/specialistvlad/eventgrid/internal/handlers"
)

// Module implements the handlers.Module interface for this package.
type Module struct{}

// Config defines the arguments of the sqlite sink.
type Config struct {
	Path  string `yaml:"path"`
	Table string `yaml:"table"`
}

var tableRegex = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Sink inserts one row per event.
type Sink struct {
	db     *sql.DB
	insert *sql.Stmt
}

// NewSink opens the database and creates the table if needed.
func NewSink(ctx context.Context, cfg Config) (*Sink, error) {
	if cfg.Path == "" {
		return nil, errors.New("path is required")
	}
	if cfg.Table == "" {
		cfg.Table = "events"
	}
	if !tableRegex.MatchString(cfg.Table) {
		return nil, fmt.Errorf("invalid table name %q", cfg.Table)
	}

	db, err := sql.Open("sqlite", cfg.Path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id      TEXT PRIMARY KEY,
	origin  TEXT NOT NULL,
	ingest  TEXT NOT NULL,
	payload TEXT
)`, cfg.Table)
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table %s: %w", cfg.Table, err)
	}

	insert, err := db.PrepareContext(ctx, fmt.Sprintf(
		"INSERT INTO %s (id, origin, ingest, payload) VALUES (?, ?, ?, ?)", cfg.Table))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("preparing insert: %w", err)
	}
	return &Sink{db: db, insert: insert}, nil
}

// Write implements handlers.Sink.
func (s *Sink) Write(ctx context.Context, ev event.Event) error {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return fmt.Errorf("failed to encode event %s: %w", ev.ID, err)
	}
	if _, err := s.insert.ExecContext(ctx, ev.ID, ev.Origin, ev.Ingest.Format(time.RFC3339Nano), string(payload)); err != nil {
		return fmt.Errorf("inserting event %s: %w", ev.ID, err)
	}
	return nil
}

// Close implements handlers.Sink.
func (s *Sink) Close() error {
	return errors.Join(s.insert.Close(), s.db.Close())
}

// Register registers the connector with the engine.
func (m *Module) Register(h *handlers.Handlers) {
	h.RegisterConnector("sqlite", &handlers.RegisteredConnector{
		Description: "stores events in a SQLite table",
		NewSink: func(ctx context.Context, config map[string]any) (handlers.Sink, error) {
			var cfg Config
			if err := handlers.Decode(config, &cfg); err != nil {
				return nil, err
			}
			return NewSink(ctx, cfg)
		},
	})
}
