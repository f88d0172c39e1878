package config

// Config is the full bot configuration. Files may be JSON or YAML; unknown
// keys are rejected so typos surface at load/reload time.
type Config struct {
	Telegram   TelegramConfig   `json:"telegram"`
	Logging    LoggingConfig    `json:"logging"`
	Storage    StorageConfig    `json:"storage"`
	Dispatcher DispatcherConfig `json:"dispatcher"`
	Reminders  RemindersConfig  `json:"reminders,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// GroupLog is an optional chat id (as string) that mirrors warnings and
	// errors, used by the logging Telegram sink.
	GroupLog string `json:"group_log,omitempty"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id,omitempty"`
	MinLevel   string `json:"min_level,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

// StorageConfig controls the reminder store (SQLite database file).
type StorageConfig struct {
	Path string `json:"path"`
	// BusyTimeout is a Go duration string.
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// DispatcherConfig controls the reminder dispatch cycle.
//
// Interval is a Go duration string; the dispatcher fires at a fixed rate
// (default "30s") with an immediate first cycle.
type DispatcherConfig struct {
	Enabled  bool   `json:"enabled"`
	Interval string `json:"interval,omitempty"`
}

// RemindersConfig bounds reminder creation.
type RemindersConfig struct {
	// MaxPending caps pending reminders per user (default 100).
	MaxPending int `json:"max_pending,omitempty"`
	// MaxLeadTime caps how far in the future a reminder may be set
	// (Go duration string, default "8760h" = 1 year).
	MaxLeadTime string `json:"max_lead_time,omitempty"`
}
