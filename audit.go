package goSession

import (
	"database/sql"
	"io"
	"log/slog"

	"github.com/MrEthical07/goSession/internal/audit"
)

// AuditEvent is one session lifecycle record.
type AuditEvent = audit.Event

// AuditSink receives audit events from the engine's dispatcher goroutine.
type AuditSink = audit.Sink

// NoOpSink drops audit events.
type NoOpSink = audit.NoOpSink

// ChannelSink writes audit events into a buffered channel.
type ChannelSink = audit.ChannelSink

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink = audit.JSONWriterSink

// SlogSink writes audit events as structured log records.
type SlogSink = audit.SlogSink

// NewChannelSink returns a ChannelSink with the given buffer.
func NewChannelSink(buffer int) *ChannelSink {
	return audit.NewChannelSink(buffer)
}

// NewJSONWriterSink returns a JSONWriterSink on w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return audit.NewJSONWriterSink(w)
}

// NewSlogSink returns a SlogSink on logger, or slog.Default when nil.
func NewSlogSink(logger *slog.Logger) *SlogSink {
	return audit.NewSlogSink(logger)
}

// SQLSink inserts audit events into a PostgreSQL table.
type SQLSink = audit.SQLSink

// SQLSinkConfig configures NewSQLSink.
type SQLSinkConfig = audit.SQLSinkConfig

// NewSQLSink returns a SQLSink writing through db.
func NewSQLSink(db *sql.DB, cfg SQLSinkConfig) (*SQLSink, error) {
	return audit.NewSQLSink(db, cfg)
}
