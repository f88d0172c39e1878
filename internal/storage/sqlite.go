package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "remindbot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// Store is the SQLite-backed reminder store.
type Store struct {
	db  *sql.DB
	log logx.Logger
}

func Open(cfg Config, log logx.Logger) (*Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("storage path is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &Store{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *Store) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Write executes fn inside a single transaction and commits iff fn returns nil.
func (s *Store) Write(ctx context.Context, fn func(tx *Tx) error) error {
	dbtx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(&Tx{tx: dbtx}); err != nil {
		_ = dbtx.Rollback()
		return err
	}
	return dbtx.Commit()
}

// Tx is a read/write handle scoped to one Write() call.
type Tx struct {
	tx *sql.Tx
}

// DueReminders returns every reminder with remind_at <= now, oldest first.
// An empty result is not an error.
func (t *Tx) DueReminders(ctx context.Context, now time.Time) ([]Reminder, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT id, chat_id, author_id, content, created_at, remind_at
		 FROM pending_reminders WHERE remind_at <= ?
		 ORDER BY remind_at, id`,
		now.UnixMilli(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanReminders(rows)
}

// DeleteReminder removes one row inside the transaction.
func (t *Tx) DeleteReminder(ctx context.Context, id int64) error {
	_, err := t.tx.ExecContext(ctx, `DELETE FROM pending_reminders WHERE id = ?`, id)
	return err
}

// InsertReminder stores a new pending reminder and returns its id.
func (s *Store) InsertReminder(ctx context.Context, r Reminder) (int64, error) {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO pending_reminders(chat_id, author_id, content, created_at, remind_at)
		 VALUES(?,?,?,?,?)`,
		r.ChatID, r.AuthorID, r.Content, r.CreatedAt.UnixMilli(), r.RemindAt.UnixMilli(),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// RemindersByAuthor lists a user's pending reminders, soonest first.
func (s *Store) RemindersByAuthor(ctx context.Context, authorID int64) ([]Reminder, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, chat_id, author_id, content, created_at, remind_at
		 FROM pending_reminders WHERE author_id = ?
		 ORDER BY remind_at, id`,
		authorID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanReminders(rows)
}

// CountByAuthor counts a user's pending reminders.
func (s *Store) CountByAuthor(ctx context.Context, authorID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pending_reminders WHERE author_id = ?`, authorID,
	).Scan(&n)
	return n, err
}

// DeleteByAuthor removes one reminder only if it belongs to authorID.
// Reports whether a row was deleted.
func (s *Store) DeleteByAuthor(ctx context.Context, id, authorID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM pending_reminders WHERE id = ? AND author_id = ?`, id, authorID,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func scanReminders(rows *sql.Rows) ([]Reminder, error) {
	var out []Reminder
	for rows.Next() {
		var (
			r                  Reminder
			createdMS, remindMS int64
		)
		if err := rows.Scan(&r.ID, &r.ChatID, &r.AuthorID, &r.Content, &createdMS, &remindMS); err != nil {
			return nil, err
		}
		r.CreatedAt = time.UnixMilli(createdMS)
		r.RemindAt = time.UnixMilli(remindMS)
		out = append(out, r)
	}
	return out, rows.Err()
}
