package storage

import (
	"context"
	"sync"
	"time"

	"shawbot/internal/cursor"
)

// Memory is a process-local Store.
type Memory struct {
	mu     sync.Mutex
	pos    cursor.Position
	has    bool
	audit  []AuditEntry
	closed bool
}

func NewMemory() *Memory { return &Memory{} }

func (m *Memory) GetCursor(ctx context.Context) (cursor.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return cursor.Position{}, ErrClosed
	}
	if !m.has {
		return cursor.Position{}, cursor.ErrNotFound
	}
	return m.pos, nil
}

func (m *Memory) SetCursor(ctx context.Context, p cursor.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.pos, m.has = p, true
	return nil
}

func (m *Memory) AppendAudit(ctx context.Context, e AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	m.audit = append(m.audit, e)
	return nil
}

// Audit returns a copy of the recorded entries.
func (m *Memory) Audit() []AuditEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]AuditEntry(nil), m.audit...)
}

func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}
