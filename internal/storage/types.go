package storage

import (
	"errors"
	"time"
)

var ErrClosed = errors.New("storage closed")

// Config configures storage.
//
// Driver values:
//   - "file": JSON snapshot (tmp + fsync + rename) plus a JSON Lines audit log
//   - "sqlite": SQLite database file
//   - "redis": Redis hash + capped audit list
//   - "memory": process-local, lost on exit (tests, dry runs)
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default

	Redis RedisConfig
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string // key prefix, default "shawbot:"
	AuditCap int64  // max audit entries kept, default 10000
}

// AuditEntry records one publish attempt or operator command.
// Keep it compact and schema-stable.
type AuditEntry struct {
	At       time.Time `json:"at"`
	Actor    string    `json:"actor"`  // "loop", "http", "cli"
	Action   string    `json:"action"` // "publish", "start", "pause", "reset", ...
	Document string    `json:"document,omitempty"`
	Doc      int       `json:"doc"`
	Frag     int       `json:"frag"`
	Text     string    `json:"text,omitempty"`
	OK       bool      `json:"ok"`
	Error    string    `json:"err,omitempty"`
	TookMS   int64     `json:"took_ms,omitempty"`
}
