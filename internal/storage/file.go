package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	json "github.com/goccy/go-json"

	"shawbot/internal/cursor"
	logx "shawbot/pkg/logx"
)

// fileStore keeps everything next to a single configured path.
//
// Files:
//   - <prefix>.cursor.json  (replaced atomically on every change)
//   - <prefix>.audit.jsonl  (append-only JSON Lines)
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	cursorPath string
	auditFile  *os.File
}

type cursorRecord struct {
	Doc  int `json:"doc"`
	Frag int `json:"frag"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	af, err := os.OpenFile(prefix+".audit.jsonl", os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}

	// Leftover from a crash between write and rename.
	_ = os.Remove(prefix + ".cursor.json.tmp")

	return &fileStore{
		log:        log,
		cursorPath: prefix + ".cursor.json",
		auditFile:  af,
	}, nil
}

func (s *fileStore) GetCursor(ctx context.Context) (cursor.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.auditFile == nil {
		return cursor.Position{}, ErrClosed
	}
	b, err := os.ReadFile(s.cursorPath)
	if errors.Is(err, os.ErrNotExist) {
		return cursor.Position{}, cursor.ErrNotFound
	}
	if err != nil {
		return cursor.Position{}, err
	}
	var rec cursorRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		return cursor.Position{}, fmt.Errorf("decode %s: %w", s.cursorPath, err)
	}
	return cursor.Position{Doc: rec.Doc, Frag: rec.Frag}, nil
}

func (s *fileStore) SetCursor(ctx context.Context, p cursor.Position) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := json.Marshal(cursorRecord{Doc: p.Doc, Frag: p.Frag})
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.auditFile == nil {
		return ErrClosed
	}
	return writeFileAtomic(s.cursorPath, b)
}

func (s *fileStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.auditFile == nil {
		return ErrClosed
	}
	return json.NewEncoder(s.auditFile).Encode(e)
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.auditFile == nil {
		return nil
	}
	err := s.auditFile.Close()
	s.auditFile = nil
	return err
}

// writeFileAtomic replaces path with data. The data and the directory entry
// are both synced before it returns.
func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return syncDir(filepath.Dir(path))
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	// Some filesystems refuse fsync on directories.
	if err := d.Sync(); err != nil && !errors.Is(err, os.ErrInvalid) {
		return err
	}
	return nil
}
