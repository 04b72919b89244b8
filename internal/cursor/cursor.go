// Package cursor tracks dispatch progress as a (document, fragment) pair and
// writes every change through to a Store before it becomes visible.
package cursor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	logx "shawbot/pkg/logx"
)

// Position identifies the next fragment to emit.
type Position struct {
	Doc  int `json:"doc"`
	Frag int `json:"frag"`
}

func (p Position) String() string { return fmt.Sprintf("%d:%d", p.Doc, p.Frag) }

func (p Position) valid() bool { return p.Doc >= 0 && p.Frag >= 0 }

// Store is the durable backing for a Cursor. SetCursor must not return
// before the position is durable.
type Store interface {
	GetCursor(ctx context.Context) (Position, error)
	SetCursor(ctx context.Context, p Position) error
}

var (
	// ErrNotFound is returned by stores that have never saved a position.
	ErrNotFound = errors.New("cursor not found")
	// ErrEmptyList is returned when there is no document to point at.
	ErrEmptyList = errors.New("document list is empty")
)

type Cursor struct {
	store Store
	log   logx.Logger

	mu  sync.Mutex
	pos Position
}

func New(store Store, log logx.Logger) *Cursor {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Cursor{store: store, log: log}
}

// Load reads the stored position. A missing or unreadable position yields
// the origin; it is never an error.
func (c *Cursor) Load(ctx context.Context) Position {
	p, err := c.store.GetCursor(ctx)
	switch {
	case errors.Is(err, ErrNotFound):
		p = Position{}
	case err != nil:
		c.log.Warn("cursor unreadable; starting from origin", logx.Err(err))
		p = Position{}
	case !p.valid():
		c.log.Warn("cursor corrupt; starting from origin", logx.String("stored", p.String()))
		p = Position{}
	}

	c.mu.Lock()
	c.pos = p
	c.mu.Unlock()
	return p
}

// Position returns the in-memory position without touching the store.
func (c *Cursor) Position() Position {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pos
}

// CurrentDocument returns the document the cursor points at. If the stored
// document index no longer fits the list, the cursor wraps to the origin and
// the wrap is persisted first.
func (c *Cursor) CurrentDocument(ctx context.Context, list []string) (string, Position, error) {
	if len(list) == 0 {
		return "", c.Position(), ErrEmptyList
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pos.Doc >= len(list) {
		c.log.Info("cursor past end of document list; wrapping",
			logx.Int("doc", c.pos.Doc), logx.Int("docs", len(list)))
		if err := c.saveLocked(ctx, Position{}); err != nil {
			return "", c.pos, err
		}
	}
	return list[c.pos.Doc], c.pos, nil
}

func (c *Cursor) AdvanceFragment(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saveLocked(ctx, Position{Doc: c.pos.Doc, Frag: c.pos.Frag + 1})
}

func (c *Cursor) AdvanceDocument(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saveLocked(ctx, Position{Doc: c.pos.Doc + 1})
}

func (c *Cursor) Reset(ctx context.Context) error {
	return c.Set(ctx, Position{})
}

// Set moves the cursor to an arbitrary position (operator override).
func (c *Cursor) Set(ctx context.Context, p Position) error {
	if !p.valid() {
		return fmt.Errorf("invalid cursor position %s", p)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saveLocked(ctx, p)
}

// saveLocked persists p and only then adopts it, so a failed write leaves the
// cursor where it was.
func (c *Cursor) saveLocked(ctx context.Context, p Position) error {
	if err := c.store.SetCursor(ctx, p); err != nil {
		return fmt.Errorf("save cursor %s: %w", p, err)
	}
	c.pos = p
	return nil
}
