package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// DefaultSQLTable is the table SQLSink writes to when none is configured.
const DefaultSQLTable = "session_audit_events"

// SQLSink inserts events into a PostgreSQL table. Insert failures are logged
// and the event is dropped.
type SQLSink struct {
	db      *sql.DB
	table   string
	timeout time.Duration
	logger  *slog.Logger
	insert  string
}

// SQLSinkConfig configures NewSQLSink.
type SQLSinkConfig struct {
	Table   string
	Timeout time.Duration
	Logger  *slog.Logger
}

func NewSQLSink(db *sql.DB, cfg SQLSinkConfig) (*SQLSink, error) {
	if db == nil {
		return nil, errors.New("audit sql sink requires a database")
	}
	if cfg.Table == "" {
		cfg.Table = DefaultSQLTable
	}
	if !validTableName(cfg.Table) {
		return nil, fmt.Errorf("audit sql sink: invalid table name %q", cfg.Table)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &SQLSink{
		db:      db,
		table:   cfg.Table,
		timeout: cfg.Timeout,
		logger:  cfg.Logger,
		insert: `INSERT INTO ` + cfg.Table + ` (id, occurred_at, event_type, request_id, path, ip, state, chunks, success, error, metadata)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
	}, nil
}

// EnsureSchema creates the audit table when it does not exist.
func (s *SQLSink) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS `+s.table+` (
	id          TEXT PRIMARY KEY,
	occurred_at TIMESTAMPTZ NOT NULL,
	event_type  TEXT NOT NULL,
	request_id  TEXT NOT NULL DEFAULT '',
	path        TEXT NOT NULL DEFAULT '',
	ip          TEXT NOT NULL DEFAULT '',
	state       TEXT NOT NULL DEFAULT '',
	chunks      INTEGER NOT NULL DEFAULT 0,
	success     BOOLEAN NOT NULL,
	error       TEXT NOT NULL DEFAULT '',
	metadata    JSONB
)`)
	if err != nil {
		return fmt.Errorf("create audit table: %w", err)
	}
	return nil
}

func (s *SQLSink) Emit(ctx context.Context, event Event) {
	if s == nil {
		return
	}

	var metadata []byte
	if len(event.Metadata) > 0 {
		var err error
		metadata, err = json.Marshal(event.Metadata)
		if err != nil {
			metadata = nil
		}
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.db.ExecContext(ctx, s.insert,
		event.ID,
		event.Timestamp,
		event.EventType,
		event.RequestID,
		event.Path,
		event.IP,
		event.State,
		event.Chunks,
		event.Success,
		event.Error,
		metadata,
	)
	if err != nil {
		s.logger.Warn("audit.sql_insert_failed", "event_type", event.EventType, "error", err)
	}
}

func validTableName(name string) bool {
	for i, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
		case (r >= '0' && r <= '9') || r == '.':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return name != ""
}
