package sink

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/jellywish/confidential-cat-counter/pkg/audit"
)

// SQLiteConfig contains configuration for the SQLite sink.
type SQLiteConfig struct {
	// Path is the database file path.
	Path string

	// WALMode enables Write-Ahead Logging.
	// Default: true
	WALMode bool

	// BusyTimeout is the duration to wait when the database is locked.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// DefaultSQLiteConfig returns the default SQLite configuration.
func DefaultSQLiteConfig() *SQLiteConfig {
	return &SQLiteConfig{
		Path:        "data/audit.db",
		WALMode:     true,
		BusyTimeout: 5 * time.Second,
	}
}

// Filter selects stored records. Zero fields match everything.
type Filter struct {
	JobID string
	Event string
	RunID string
	Since time.Time
	Limit int
}

// StoredRecord is a record together with its storage metadata.
type StoredRecord struct {
	ID         string
	RunID      string
	RecordedAt time.Time
	Record     audit.Record
}

// SQLiteSink appends audit records to a SQLite database. Each process run
// gets its own run id because sequence numbers restart with the process.
type SQLiteSink struct {
	db     *sql.DB
	config *SQLiteConfig
	runID  string
	logger *slog.Logger
}

// NewSQLiteSink opens (and if needed creates) the database.
func NewSQLiteSink(config *SQLiteConfig) (*SQLiteSink, error) {
	if config == nil {
		config = DefaultSQLiteConfig()
	}
	if config.BusyTimeout <= 0 {
		config.BusyTimeout = 5 * time.Second
	}

	logger := slog.Default().With("component", "audit.sink.sqlite")

	db, err := sql.Open("sqlite", config.Path)
	if err != nil {
		return nil, NewStorageError("sqlite", "open", err)
	}

	// A single connection keeps pragmas in effect and serializes appends.
	db.SetMaxOpenConns(1)

	s := &SQLiteSink{
		db:     db,
		config: config,
		runID:  uuid.NewString(),
		logger: logger,
	}

	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("SQLite audit sink initialized",
		"path", config.Path,
		"wal_mode", config.WALMode,
		"run_id", s.runID,
	)

	return s, nil
}

func (s *SQLiteSink) initialize() error {
	if s.config.WALMode {
		if _, err := s.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			return NewStorageError("sqlite", "enable_wal", err)
		}
	}

	if _, err := s.db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", s.config.BusyTimeout.Milliseconds())); err != nil {
		return NewStorageError("sqlite", "set_busy_timeout", err)
	}

	if _, err := s.db.Exec(Schema); err != nil {
		return NewStorageError("sqlite", "create_schema", err)
	}

	if _, err := s.db.Exec(InsertSchemaVersion, SchemaVersion); err != nil {
		return NewStorageError("sqlite", "insert_schema_version", err)
	}

	var version sql.NullInt64
	if err := s.db.QueryRow(GetSchemaVersion).Scan(&version); err != nil {
		return NewStorageError("sqlite", "get_schema_version", err)
	}
	if !version.Valid || version.Int64 != SchemaVersion {
		return NewStorageError("sqlite", "schema_version_mismatch",
			fmt.Errorf("expected schema version %d, got %d", SchemaVersion, version.Int64))
	}

	return nil
}

// RunID identifies this process's records.
func (s *SQLiteSink) RunID() string {
	return s.runID
}

// Publish inserts r.
func (s *SQLiteSink) Publish(ctx context.Context, r audit.Record) error {
	body, err := json.Marshal(r)
	if err != nil {
		return &audit.SinkError{Sink: "sqlite", Sequence: r.Sequence, Cause: err}
	}

	var jobID any
	if id := r.JobID(); id != "" {
		jobID = id
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_records (
			id, run_id, sequence, event, timestamp, simulated, job_id, signature, body, recorded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), s.runID, int64(r.Sequence), r.Event, r.Timestamp, r.Simulated,
		jobID, r.Signature, string(body), time.Now().UTC(),
	)
	if err != nil {
		return &audit.SinkError{Sink: "sqlite", Sequence: r.Sequence, Cause: NewStorageError("sqlite", "insert", err)}
	}
	return nil
}

// Query returns stored records matching f in insertion order.
func (s *SQLiteSink) Query(ctx context.Context, f Filter) ([]StoredRecord, error) {
	var (
		clauses []string
		args    []any
	)
	if f.JobID != "" {
		clauses = append(clauses, "job_id = ?")
		args = append(args, f.JobID)
	}
	if f.Event != "" {
		clauses = append(clauses, "event = ?")
		args = append(args, f.Event)
	}
	if f.RunID != "" {
		clauses = append(clauses, "run_id = ?")
		args = append(args, f.RunID)
	}
	if !f.Since.IsZero() {
		clauses = append(clauses, "timestamp >= ?")
		args = append(args, f.Since.Unix())
	}

	query := "SELECT id, run_id, recorded_at, body FROM audit_records"
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY rowid"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, NewStorageError("sqlite", "query", err)
	}
	defer rows.Close()

	var out []StoredRecord
	for rows.Next() {
		var (
			sr   StoredRecord
			body string
		)
		if err := rows.Scan(&sr.ID, &sr.RunID, &sr.RecordedAt, &body); err != nil {
			return nil, NewStorageError("sqlite", "scan", err)
		}
		if err := json.Unmarshal([]byte(body), &sr.Record); err != nil {
			return nil, NewStorageError("sqlite", "decode", err)
		}
		out = append(out, sr)
	}
	if err := rows.Err(); err != nil {
		return nil, NewStorageError("sqlite", "query", err)
	}
	return out, nil
}

// Count returns the number of stored records.
func (s *SQLiteSink) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_records").Scan(&n); err != nil {
		return 0, NewStorageError("sqlite", "count", err)
	}
	return n, nil
}

// DeleteBefore removes records with a timestamp before cutoff.
func (s *SQLiteSink) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM audit_records WHERE timestamp < ?", cutoff.Unix())
	if err != nil {
		return 0, NewStorageError("sqlite", "delete", err)
	}
	return res.RowsAffected()
}

// DeleteOldest removes all but the newest keep records.
func (s *SQLiteSink) DeleteOldest(ctx context.Context, keep int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM audit_records WHERE id NOT IN (
			SELECT id FROM audit_records ORDER BY rowid DESC LIMIT ?
		)`, keep)
	if err != nil {
		return 0, NewStorageError("sqlite", "delete", err)
	}
	return res.RowsAffected()
}

// Close closes the database.
func (s *SQLiteSink) Close() error {
	if err := s.db.Close(); err != nil {
		return NewStorageError("sqlite", "close", err)
	}
	return nil
}
