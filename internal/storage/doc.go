// Package storage persists pending reminders in a SQLite database.
//
// The dispatcher consumes reminders through Write(), a single transactional
// scope per cycle; the command layer uses the autocommit helpers.
package storage
