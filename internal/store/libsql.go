package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/rendis/conduit/pkg/schema"
)

// LibSQLStore implements Store using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path.
// The path should be a file URI, e.g. "file:/var/lib/conduit/log.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA cache_size=-20000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// Vacuum runs VACUUM on the database.
func (s *LibSQLStore) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// Ping checks database connectivity.
func (s *LibSQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// AppendEntries inserts a batch in one transaction. A row whose
// (request_id, started_at) already exists is skipped, so replaying a batch
// after an ambiguous failure does not duplicate entries.
func (s *LibSQLStore) AppendEntries(ctx context.Context, entries []ExecutionLogEntry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeError("begin append", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO execution_log
		 (request_id, action_name, caller_id, arguments, started_at, duration_ms, status, error_code, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return storeError("prepare append", err)
	}
	defer stmt.Close()

	for i := range entries {
		e := &entries[i]
		args, err := marshalMapOrDefault(e.Arguments)
		if err != nil {
			return storeError("marshal arguments", err)
		}
		if _, err := stmt.ExecContext(ctx,
			e.RequestID, e.ActionName, e.CallerID, string(args),
			toMillis(e.StartedAt), e.DurationMs, string(e.Status),
			nullStr(string(e.ErrorCode)), toMillis(timeOrNow(e.Timestamp)),
		); err != nil {
			return storeError("insert entry", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return storeError("commit append", err)
	}
	return nil
}

// QueryEntries returns entries matching filter, newest first.
func (s *LibSQLStore) QueryEntries(ctx context.Context, filter LogFilter) ([]*ExecutionLogEntry, error) {
	var (
		where []string
		args  []any
	)
	if filter.Action != "" {
		where = append(where, "action_name = ?")
		args = append(args, filter.Action)
	}
	if filter.CallerID != "" {
		where = append(where, "caller_id = ?")
		args = append(args, filter.CallerID)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	if !filter.Since.IsZero() {
		where = append(where, "timestamp >= ?")
		args = append(args, toMillis(filter.Since))
	}
	if !filter.Until.IsZero() {
		where = append(where, "timestamp < ?")
		args = append(args, toMillis(filter.Until))
	}

	q := `SELECT id, request_id, action_name, caller_id, arguments, started_at, duration_ms, status, error_code, timestamp
		  FROM execution_log`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY timestamp DESC, id DESC LIMIT ?"
	args = append(args, filter.EffectiveLimit())

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, storeError("query entries", err)
	}
	defer rows.Close()

	var out []*ExecutionLogEntry
	for rows.Next() {
		var (
			e                ExecutionLogEntry
			argsJSON, status string
			errCode          sql.NullString
			startedMs, tsMs  int64
		)
		if err := rows.Scan(&e.ID, &e.RequestID, &e.ActionName, &e.CallerID, &argsJSON,
			&startedMs, &e.DurationMs, &status, &errCode, &tsMs); err != nil {
			return nil, storeError("scan entry", err)
		}
		e.Status = schema.OutcomeStatus(status)
		if errCode.Valid {
			e.ErrorCode = schema.ErrorCode(errCode.String)
		}
		e.StartedAt = fromMillis(startedMs)
		e.Timestamp = fromMillis(tsMs)
		e.Arguments = map[string]any{}
		if err := json.Unmarshal([]byte(argsJSON), &e.Arguments); err != nil {
			return nil, storeError("decode arguments", err)
		}
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("iterate entries", err)
	}
	return out, nil
}

// PurgeBefore deletes entries whose timestamp precedes cutoff.
func (s *LibSQLStore) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM execution_log WHERE timestamp < ?`, toMillis(cutoff))
	if err != nil {
		return 0, storeError("purge entries", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storeError("purge rows affected", err)
	}
	return n, nil
}

// --- helpers ---

func storeError(op string, err error) error {
	return schema.NewErrorf(schema.ErrCodeStore, "%s: %s", op, err.Error()).WithCause(err)
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func nullStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func marshalMapOrDefault(m map[string]any) ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

var _ Store = (*LibSQLStore)(nil)
