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

	"shawbot/internal/cursor"
	logx "shawbot/pkg/logx"

	_ "modernc.org/sqlite"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()))
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	// FULL: a committed cursor survives power loss.
	if _, err := db.Exec("PRAGMA synchronous = FULL"); err != nil {
		log.Warn("sqlite synchronous=FULL not applied", logx.String("path", path), logx.Err(err))
	}

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) GetCursor(ctx context.Context) (cursor.Position, error) {
	var p cursor.Position
	err := s.db.QueryRowContext(ctx, `SELECT doc, frag FROM cursor WHERE id = 1`).Scan(&p.Doc, &p.Frag)
	if errors.Is(err, sql.ErrNoRows) {
		return cursor.Position{}, cursor.ErrNotFound
	}
	if err != nil {
		return cursor.Position{}, err
	}
	return p, nil
}

func (s *sqliteStore) SetCursor(ctx context.Context, p cursor.Position) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cursor(id, doc, frag, updated_at) VALUES(1,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET doc=excluded.doc, frag=excluded.frag, updated_at=excluded.updated_at`,
		p.Doc, p.Frag, time.Now().UTC().Format(time.RFC3339Nano),
	)
	return err
}

func (s *sqliteStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit(at, actor, action, document, doc, frag, text, ok, err, took_ms)
		 VALUES(?,?,?,?,?,?,?,?,?,?)`,
		e.At.Format(time.RFC3339Nano), e.Actor, e.Action, nullStr(e.Document), e.Doc, e.Frag,
		nullStr(e.Text), e.OK, nullStr(e.Error), e.TookMS,
	)
	return err
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
