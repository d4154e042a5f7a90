// Package sqlite implements depth.Archive using pure-Go SQLite.
// Zero CGO required.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/irfansofyana/depth"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// StoreOption configures a SQLite Store.
type StoreOption func(*Store)

// WithLogger sets a structured logger for the store.
func WithLogger(l *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

// Store implements depth.Archive backed by a local SQLite file. Completed
// reports only; in-flight session state is never persisted.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ depth.Archive = (*Store)(nil)

// nopLogger is a logger that discards all output.
var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// New creates a Store using a local SQLite file at dbPath.
// It opens a single shared connection pool with SetMaxOpenConns(1) so that
// all goroutines serialize through one connection, eliminating SQLITE_BUSY
// errors caused by concurrent writers opening independent connections.
func New(dbPath string, opts ...StoreOption) *Store {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		// sql.Open only fails when the driver is not registered; with the
		// blank import above that never happens.
		panic(fmt.Sprintf("sqlite: open driver: %v", err))
	}
	db.SetMaxOpenConns(1)
	s := &Store{db: db, logger: nopLogger}
	for _, o := range opts {
		o(s)
	}
	s.logger.Debug("sqlite: archive opened", "path", dbPath)
	return s
}

// Init creates the reports table.
func (s *Store) Init(ctx context.Context) error {
	ddl := `CREATE TABLE IF NOT EXISTS reports (
		session_id TEXT PRIMARY KEY,
		question TEXT NOT NULL,
		brief TEXT NOT NULL,
		report TEXT NOT NULL,
		refs TEXT,
		finding_count INTEGER NOT NULL,
		iterations INTEGER NOT NULL,
		units_used INTEGER NOT NULL,
		completion_reason TEXT,
		input_tokens INTEGER NOT NULL,
		output_tokens INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL,
		created_at INTEGER NOT NULL
	)`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create reports table: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// SaveReport upserts one completed report.
func (s *Store) SaveReport(ctx context.Context, r depth.ArchivedReport) error {
	refs, err := json.Marshal(r.References)
	if err != nil {
		return fmt.Errorf("marshal references: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO reports (session_id, question, brief, report, refs,
			finding_count, iterations, units_used, completion_reason,
			input_tokens, output_tokens, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			report = excluded.report,
			refs = excluded.refs,
			finding_count = excluded.finding_count,
			completion_reason = excluded.completion_reason`,
		r.SessionID, r.Question, r.Brief, r.Report, string(refs),
		r.FindingCount, r.Iterations, r.UnitsUsed, r.CompletionReason,
		r.InputTokens, r.OutputTokens, r.DurationMS, r.CreatedAt)
	if err != nil {
		return fmt.Errorf("save report: %w", err)
	}
	s.logger.Debug("sqlite: report saved", "session", r.SessionID)
	return nil
}

// GetReport fetches one report by session id.
func (s *Store) GetReport(ctx context.Context, sessionID string) (depth.ArchivedReport, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT session_id, question, brief, report, refs, finding_count,
			iterations, units_used, completion_reason, input_tokens,
			output_tokens, duration_ms, created_at
		FROM reports WHERE session_id = ?`, sessionID)
	return scanReport(row)
}

// ListReports returns the most recent reports, newest first.
func (s *Store) ListReports(ctx context.Context, limit int) ([]depth.ArchivedReport, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, question, brief, report, refs, finding_count,
			iterations, units_used, completion_reason, input_tokens,
			output_tokens, duration_ms, created_at
		FROM reports ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	var out []depth.ArchivedReport
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReport(row rowScanner) (depth.ArchivedReport, error) {
	var r depth.ArchivedReport
	var refs sql.NullString
	err := row.Scan(&r.SessionID, &r.Question, &r.Brief, &r.Report, &refs,
		&r.FindingCount, &r.Iterations, &r.UnitsUsed, &r.CompletionReason,
		&r.InputTokens, &r.OutputTokens, &r.DurationMS, &r.CreatedAt)
	if err != nil {
		return depth.ArchivedReport{}, fmt.Errorf("scan report: %w", err)
	}
	if refs.Valid && refs.String != "" {
		if err := json.Unmarshal([]byte(refs.String), &r.References); err != nil {
			return depth.ArchivedReport{}, fmt.Errorf("unmarshal references: %w", err)
		}
	}
	return r, nil
}
