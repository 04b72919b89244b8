package dispatch

import (
	"context"
	"errors"
	"time"

	"shawbot/internal/cursor"
)

type State int

const (
	Idle State = iota
	Running
	Paused
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Paused:
		return "paused"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

var (
	ErrAlreadyRunning = errors.New("loop already running")
	ErrNotRunning     = errors.New("loop is not running")
	ErrNotPaused      = errors.New("loop is not paused")
	ErrNoDocuments    = errors.New("no documents to publish")
)

// Snapshot is a point-in-time view of the loop for status surfaces.
type Snapshot struct {
	State        string          `json:"state"`
	RunningSince time.Time       `json:"running_since,omitempty"`
	Position     cursor.Position `json:"position"`
	Document     string          `json:"document,omitempty"`
	Fragments    int             `json:"fragments"`
	Published    uint64          `json:"published"`
	Failures     int             `json:"consecutive_failures"`
	RetryAt      time.Time       `json:"retry_at,omitempty"`
	NextTick     time.Time       `json:"next_tick,omitempty"`
	LastError    string          `json:"last_error,omitempty"`
}

// Event payloads published on the bus.
type (
	StateChange struct {
		From string `json:"from"`
		To   string `json:"to"`
	}
	DocumentChange struct {
		Doc         int    `json:"doc"`
		Path        string `json:"path"`
		Tag         string `json:"tag"`
		Fragments   int    `json:"fragments"`
		Fingerprint string `json:"fingerprint"`
	}
	FragmentEmitted struct {
		Doc  int    `json:"doc"`
		Frag int    `json:"frag"`
		Path string `json:"path"`
		Text string `json:"text"`
	}
	PublishFailure struct {
		Doc     int       `json:"doc"`
		Frag    int       `json:"frag"`
		Error   string    `json:"error"`
		RetryAt time.Time `json:"retry_at"`
	}
	LoopStopped struct {
		Reason string `json:"reason"`
	}
)

type actorKey struct{}

// WithActor tags ctx with who issued a command ("http", "cli", ...). The
// actor is recorded in the audit trail.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

func actorFrom(ctx context.Context) string {
	if a, ok := ctx.Value(actorKey{}).(string); ok && a != "" {
		return a
	}
	return "api"
}
