package cursor

import (
	"context"
	"errors"
	"sync"
	"testing"

	logx "shawbot/pkg/logx"
)

type fakeStore struct {
	mu     sync.Mutex
	pos    Position
	has    bool
	getErr error
	setErr error
	sets   int
}

func (s *fakeStore) GetCursor(ctx context.Context) (Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return Position{}, s.getErr
	}
	if !s.has {
		return Position{}, ErrNotFound
	}
	return s.pos, nil
}

func (s *fakeStore) SetCursor(ctx context.Context, p Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.setErr != nil {
		return s.setErr
	}
	s.pos, s.has = p, true
	s.sets++
	return nil
}

func TestLoadDefaultsToOrigin(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	tests := []struct {
		name  string
		store *fakeStore
	}{
		{name: "missing", store: &fakeStore{}},
		{name: "unreadable", store: &fakeStore{getErr: errors.New("disk on fire")}},
		{name: "negative", store: &fakeStore{has: true, pos: Position{Doc: -1, Frag: 3}}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := New(tt.store, logx.Nop()).Load(ctx); got != (Position{}) {
				t.Fatalf("Load = %v, want origin", got)
			}
		})
	}
}

func TestResumeRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := &fakeStore{}
	c := New(st, logx.Nop())
	c.Load(ctx)
	if err := c.AdvanceFragment(ctx); err != nil {
		t.Fatal(err)
	}
	if err := c.AdvanceFragment(ctx); err != nil {
		t.Fatal(err)
	}
	if err := c.AdvanceDocument(ctx); err != nil {
		t.Fatal(err)
	}
	if err := c.AdvanceFragment(ctx); err != nil {
		t.Fatal(err)
	}

	// "restart": a fresh cursor over the same store
	got := New(st, logx.Nop()).Load(ctx)
	if want := (Position{Doc: 1, Frag: 1}); got != want {
		t.Fatalf("reloaded = %v, want %v", got, want)
	}
}

func TestResetIsIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := &fakeStore{has: true, pos: Position{Doc: 4, Frag: 17}}
	c := New(st, logx.Nop())
	c.Load(ctx)
	for i := 0; i < 2; i++ {
		if err := c.Reset(ctx); err != nil {
			t.Fatal(err)
		}
		if got := New(st, logx.Nop()).Load(ctx); got != (Position{}) {
			t.Fatalf("after reset Load = %v", got)
		}
	}
}

func TestCurrentDocumentWrapsAndPersists(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := &fakeStore{has: true, pos: Position{Doc: 5, Frag: 9}}
	c := New(st, logx.Nop())
	c.Load(ctx)

	path, pos, err := c.CurrentDocument(ctx, []string{"a", "b"})
	if err != nil {
		t.Fatal(err)
	}
	if path != "a" || pos != (Position{}) {
		t.Fatalf("CurrentDocument = %q %v, want a 0:0", path, pos)
	}
	if st.pos != (Position{}) || st.sets != 1 {
		t.Fatalf("wrap not persisted: %v (sets=%d)", st.pos, st.sets)
	}

	if _, _, err := c.CurrentDocument(ctx, nil); !errors.Is(err, ErrEmptyList) {
		t.Fatalf("err = %v, want ErrEmptyList", err)
	}
}

func TestFailedSaveKeepsPosition(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := &fakeStore{has: true, pos: Position{Doc: 0, Frag: 2}}
	c := New(st, logx.Nop())
	c.Load(ctx)

	st.setErr = errors.New("read-only fs")
	if err := c.AdvanceFragment(ctx); err == nil {
		t.Fatal("expected save error")
	}
	if got := c.Position(); got != (Position{Doc: 0, Frag: 2}) {
		t.Fatalf("Position = %v after failed save", got)
	}
}

func TestSetRejectsNegative(t *testing.T) {
	t.Parallel()
	c := New(&fakeStore{}, logx.Nop())
	if err := c.Set(context.Background(), Position{Doc: -2}); err == nil {
		t.Fatal("expected error")
	}
}
