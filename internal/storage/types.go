package storage

import "time"

// Config configures the SQLite store.
type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means default
}

// Reminder is one pending reminder row.
//
// Rows are created by the /remind command and consumed (read + deleted) by the
// dispatcher. RemindAt is never mutated after insert.
type Reminder struct {
	ID        int64
	ChatID    int64 // target chat at creation time
	AuthorID  int64 // the user to remind
	Content   string
	CreatedAt time.Time
	RemindAt  time.Time
}
