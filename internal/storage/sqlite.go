package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store on a single SQLite database file. The same
// file is shared with external producers that insert pending commands, so it
// runs in WAL mode with a busy timeout.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path and provisions the schema.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection serialises writers inside this process; other processes
	// are handled by the busy timeout.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS audit_records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp TEXT NOT NULL,
		sender TEXT NOT NULL,
		context TEXT NOT NULL,
		content TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_audit_context ON audit_records(context, id);

	CREATE TABLE IF NOT EXISTS pending_commands (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		context TEXT NOT NULL,
		text TEXT NOT NULL,
		sent INTEGER NOT NULL DEFAULT 0,
		dispatched_at INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_pending_sent ON pending_commands(sent, id);

	CREATE TABLE IF NOT EXISTS channel_members (
		context TEXT NOT NULL,
		nick TEXT NOT NULL,
		flags TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (context, nick)
	);

	CREATE TABLE IF NOT EXISTS active_direct_chats (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		bot_identity TEXT NOT NULL,
		user TEXT NOT NULL,
		UNIQUE (bot_identity, user)
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// AppendAudit writes one audit record.
func (s *SQLiteStore) AppendAudit(ctx context.Context, rec AuditRecord) error {
	ts := rec.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_records (timestamp, sender, context, content) VALUES (?, ?, ?, ?)`,
		ts.Format(time.RFC3339Nano), rec.Sender, rec.Context, rec.Content)
	if err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	return nil
}

// RecentAudit returns the newest records for a context.
func (s *SQLiteStore) RecentAudit(ctx context.Context, context string, limit int) ([]AuditRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, timestamp, sender, context, content
		FROM audit_records WHERE context = ?
		ORDER BY id DESC LIMIT ?`, context, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit records: %w", err)
	}
	defer rows.Close()

	var out []AuditRecord
	for rows.Next() {
		var rec AuditRecord
		var ts string
		if err := rows.Scan(&rec.ID, &ts, &rec.Sender, &rec.Context, &rec.Content); err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		rec.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// EnsureDirectChat inserts the (bot, user) pair unless it already exists.
func (s *SQLiteStore) EnsureDirectChat(ctx context.Context, bot, user string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO active_direct_chats (bot_identity, user) VALUES (?, ?)`, bot, user)
	if err != nil {
		return fmt.Errorf("insert direct chat: %w", err)
	}
	return nil
}

// EnqueueCommand inserts an unsent pending command.
func (s *SQLiteStore) EnqueueCommand(ctx context.Context, context, text string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO pending_commands (context, text, sent) VALUES (?, ?, 0)`, context, text)
	if err != nil {
		return 0, fmt.Errorf("insert pending command: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("pending command id: %w", err)
	}
	return id, nil
}

// PendingCommands returns the unsent queue in insertion order.
func (s *SQLiteStore) PendingCommands(ctx context.Context) ([]PendingCommand, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, context, text FROM pending_commands WHERE sent = 0 ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query pending commands: %w", err)
	}
	defer rows.Close()

	var out []PendingCommand
	for rows.Next() {
		var cmd PendingCommand
		if err := rows.Scan(&cmd.ID, &cmd.Context, &cmd.Text); err != nil {
			return nil, fmt.Errorf("scan pending command: %w", err)
		}
		out = append(out, cmd)
	}
	return out, rows.Err()
}

// MarkSent flags a pending command as dispatched.
func (s *SQLiteStore) MarkSent(ctx context.Context, id int64, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE pending_commands SET sent = 1, dispatched_at = ? WHERE id = ?`, at.UnixNano(), id)
	if err != nil {
		return fmt.Errorf("mark command %d sent: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("mark command %d sent: %w", id, ErrNotFound)
	}
	return nil
}

// PurgeSent deletes sent commands dispatched before cutoff.
func (s *SQLiteStore) PurgeSent(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM pending_commands WHERE sent = 1 AND dispatched_at IS NOT NULL AND dispatched_at < ?`,
		cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("purge sent commands: %w", err)
	}
	return res.RowsAffected()
}

// ReplaceMembers deletes and reinserts a channel's membership in one transaction.
func (s *SQLiteStore) ReplaceMembers(ctx context.Context, channel string, members []Member) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin members tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM channel_members WHERE context = ?`, channel); err != nil {
		return fmt.Errorf("clear members of %s: %w", channel, err)
	}
	for _, m := range members {
		if _, err = tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO channel_members (context, nick, flags) VALUES (?, ?, ?)`,
			channel, m.Nick, m.Flags); err != nil {
			return fmt.Errorf("insert member %s of %s: %w", m.Nick, channel, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit members tx: %w", err)
	}
	return nil
}

// Members returns the stored membership of a channel.
func (s *SQLiteStore) Members(ctx context.Context, channel string) ([]Member, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT nick, flags FROM channel_members WHERE context = ? ORDER BY nick`, channel)
	if err != nil {
		return nil, fmt.Errorf("query members: %w", err)
	}
	defer rows.Close()

	var out []Member
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.Nick, &m.Flags); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ErrNotFound is returned when a row addressed by id does not exist.
var ErrNotFound = errors.New("not found")
