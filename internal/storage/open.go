package storage

import (
	"context"
	"errors"
	"strings"

	"shawbot/internal/cursor"
	logx "shawbot/pkg/logx"
)

// Store is the persistence API used by the dispatch loop and the CLI.
// It satisfies cursor.Store.
type Store interface {
	cursor.Store
	AppendAudit(ctx context.Context, e AuditEntry) error
	Close() error
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "", "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "redis":
		return openRedis(cfg, log)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
