// Package dispatch runs the publish loop: once per tick it emits the fragment
// under the cursor, advances the cursor on success and rolls over to the next
// document at end of document.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"shawbot/internal/cursor"
	"shawbot/internal/document"
	"shawbot/internal/eventbus"
	"shawbot/internal/metrics"
	"shawbot/internal/publish"
	"shawbot/internal/storage"
	logx "shawbot/pkg/logx"
)

type Config struct {
	// ListPath is the document list file, re-read on Start and after every
	// rollover.
	ListPath       string
	PublishTimeout time.Duration
	BackoffBase    time.Duration
	BackoffMax     time.Duration
}

type DocumentLoader interface {
	Load(ctx context.Context, path string) (*document.Document, error)
}

type AuditSink interface {
	AppendAudit(ctx context.Context, e storage.AuditEntry) error
}

type Option func(*Loop)

func WithLogger(log logx.Logger) Option     { return func(l *Loop) { l.log = log } }
func WithBus(bus eventbus.Bus) Option       { return func(l *Loop) { l.bus = bus } }
func WithMetrics(m *metrics.Metrics) Option { return func(l *Loop) { l.metrics = m } }
func WithAudit(a AuditSink) Option          { return func(l *Loop) { l.audit = a } }
func WithClock(now func() time.Time) Option { return func(l *Loop) { l.now = now } }
func WithListReader(fn func(string) ([]string, error)) Option {
	return func(l *Loop) { l.readList = fn }
}

// Loop is the dispatch state machine.
//
// Lock order: tickMu, then mu. tickMu serializes ticks with the commands
// that touch the cursor or the cache; mu guards the fields read by Snapshot.
type Loop struct {
	cfg      Config
	cur      *cursor.Cursor
	loader   DocumentLoader
	pub      publish.Publisher
	log      logx.Logger
	bus      eventbus.Bus
	metrics  *metrics.Metrics
	audit    AuditSink
	now      func() time.Time
	readList func(string) ([]string, error)

	tickMu sync.Mutex

	// Written under tickMu and mu; read under either.
	mu           sync.Mutex
	list         []string
	doc          *document.Document // cached fragments of list[docIdx]
	docIdx       int
	state        State
	runningSince time.Time
	failures     int
	retryAt      time.Time
	lastErr      string
	published    uint64
}

func New(cfg Config, cur *cursor.Cursor, loader DocumentLoader, pub publish.Publisher, opts ...Option) *Loop {
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = defaultPublishTimeout
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = defaultBackoffBase
	}
	if cfg.BackoffMax < cfg.BackoffBase {
		cfg.BackoffMax = defaultBackoffMax
		if cfg.BackoffMax < cfg.BackoffBase {
			cfg.BackoffMax = cfg.BackoffBase
		}
	}
	l := &Loop{
		cfg:      cfg,
		cur:      cur,
		loader:   loader,
		pub:      pub,
		now:      time.Now,
		readList: document.ReadList,
	}
	for _, o := range opts {
		o(l)
	}
	if l.log.IsZero() {
		l.log = logx.Nop()
	}
	return l
}

func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *Loop) Snapshot() Snapshot {
	pos := l.cur.Position()
	l.mu.Lock()
	defer l.mu.Unlock()
	s := Snapshot{
		State:        l.state.String(),
		RunningSince: l.runningSince,
		Position:     pos,
		Published:    l.published,
		Failures:     l.failures,
		RetryAt:      l.retryAt,
		LastError:    l.lastErr,
	}
	if pos.Doc < len(l.list) {
		s.Document = l.list[pos.Doc]
	}
	if l.doc != nil {
		s.Fragments = len(l.doc.Fragments)
	}
	return s
}

// Start reads the document list and the durable cursor, then begins
// accepting ticks. An unreadable or empty list leaves the loop Stopped and
// the cursor untouched.
func (l *Loop) Start(ctx context.Context) error {
	l.tickMu.Lock()
	defer l.tickMu.Unlock()

	if st := l.State(); st == Running || st == Paused {
		return ErrAlreadyRunning
	}

	list, err := l.readList(l.cfg.ListPath)
	if err == nil && len(list) == 0 {
		err = ErrNoDocuments
	}
	if err != nil {
		l.haltLocked(ctx, fmt.Errorf("document list %s: %w", l.cfg.ListPath, err))
		return err
	}

	pos := l.cur.Load(ctx)
	l.setList(list)
	l.setDoc(nil, 0)

	l.mu.Lock()
	l.runningSince = l.now()
	l.failures, l.retryAt, l.lastErr = 0, time.Time{}, ""
	l.mu.Unlock()

	l.log.Info("dispatch started", logx.Int("documents", len(list)), logx.String("cursor", pos.String()))
	l.metrics.SetCursor(pos.Doc, pos.Frag)
	l.transition(Running)
	l.record(ctx, storage.AuditEntry{Action: "start", Doc: pos.Doc, Frag: pos.Frag, OK: true})
	return nil
}

// Pause suspends tick delivery and keeps the cached fragments.
func (l *Loop) Pause(ctx context.Context) error {
	if !l.swapState(Running, Paused) {
		return ErrNotRunning
	}
	l.record(ctx, storage.AuditEntry{Action: "pause", OK: true})
	return nil
}

func (l *Loop) Resume(ctx context.Context) error {
	if !l.swapState(Paused, Running) {
		return ErrNotPaused
	}
	l.record(ctx, storage.AuditEntry{Action: "resume", OK: true})
	return nil
}

// Stop waits for an in-flight tick, then drops the cache so the next Start
// reloads from the durable cursor.
func (l *Loop) Stop(ctx context.Context) error {
	l.tickMu.Lock()
	defer l.tickMu.Unlock()
	if st := l.State(); st != Running && st != Paused {
		return ErrNotRunning
	}
	l.setDoc(nil, 0)
	l.mu.Lock()
	l.runningSince = time.Time{}
	l.retryAt = time.Time{}
	l.mu.Unlock()
	l.transition(Stopped)
	l.publish(eventbus.LoopStopped, LoopStopped{Reason: "operator stop"})
	l.record(ctx, storage.AuditEntry{Action: "stop", OK: true})
	return nil
}

// Reset moves the cursor to the origin and invalidates the cache. It is
// allowed in every state.
func (l *Loop) Reset(ctx context.Context) error {
	l.tickMu.Lock()
	defer l.tickMu.Unlock()
	err := l.cur.Reset(ctx)
	l.setDoc(nil, 0)
	if err == nil {
		l.mu.Lock()
		l.failures, l.retryAt = 0, time.Time{}
		l.mu.Unlock()
		l.metrics.SetCursor(0, 0)
		l.log.Info("cursor reset")
	}
	l.record(ctx, storage.AuditEntry{Action: "reset", OK: err == nil, Error: errString(err)})
	return err
}

// Tick emits at most one fragment. It never panics and never returns an
// error: every failure either stops the loop or leaves the cursor for the
// next tick. A tick arriving while another is in progress is dropped.
func (l *Loop) Tick(ctx context.Context) {
	if !l.tickMu.TryLock() {
		l.metrics.Skipped("busy")
		return
	}
	defer l.tickMu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			l.log.Error("tick panicked", logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
			l.haltLocked(ctx, fmt.Errorf("panic: %v", r))
		}
	}()

	l.mu.Lock()
	state, retryAt := l.state, l.retryAt
	l.mu.Unlock()
	if state != Running {
		return
	}
	if !retryAt.IsZero() && l.now().Before(retryAt) {
		l.metrics.Skipped("backoff")
		return
	}

	doc, pos, err := l.resolve(ctx)
	if err != nil {
		l.haltLocked(ctx, err)
		return
	}
	text := doc.Fragments[pos.Frag]

	pctx, cancel := context.WithTimeout(ctx, l.cfg.PublishTimeout)
	start := l.now()
	err = l.pub.Publish(pctx, text)
	cancel()
	took := l.now().Sub(start)

	if err != nil {
		if ctx.Err() != nil {
			// shutting down; not a publish failure
			return
		}
		l.publishFailed(ctx, doc, pos, err, took)
		return
	}

	if err := l.cur.AdvanceFragment(ctx); err != nil {
		// The fragment is out but the cursor is not. Retrying would post it
		// again every tick, so stop and let the operator look at storage.
		l.haltLocked(ctx, fmt.Errorf("fragment %s published but cursor not saved: %w", pos, err))
		return
	}

	l.mu.Lock()
	l.failures, l.retryAt, l.lastErr = 0, time.Time{}, ""
	l.published++
	l.mu.Unlock()

	l.metrics.Published(took)
	l.metrics.SetCursor(pos.Doc, pos.Frag+1)
	l.log.Info("fragment published", logx.String("pos", pos.String()), logx.Int("of", len(doc.Fragments)), logx.String("doc", doc.Path))
	l.publish(eventbus.FragmentEmitted, FragmentEmitted{Doc: pos.Doc, Frag: pos.Frag, Path: doc.Path, Text: text})
	l.record(ctx, storage.AuditEntry{
		Actor: "loop", Action: "publish", Document: doc.Path,
		Doc: pos.Doc, Frag: pos.Frag, Text: text, OK: true, TookMS: took.Milliseconds(),
	})
}

// resolve returns the document and position of the next fragment, rolling
// over past exhausted documents. At most len(list) rollovers are attempted so
// a list of fragment-less documents cannot spin.
func (l *Loop) resolve(ctx context.Context) (*document.Document, cursor.Position, error) {
	for rolls := 0; ; rolls++ {
		path, pos, err := l.cur.CurrentDocument(ctx, l.list)
		if err != nil {
			return nil, pos, err
		}
		doc, err := l.document(ctx, pos.Doc, path)
		if err != nil {
			return nil, pos, err
		}
		if pos.Frag < len(doc.Fragments) {
			return doc, pos, nil
		}

		if rolls >= len(l.list) {
			return nil, pos, ErrNoDocuments
		}
		l.log.Info("end of document", logx.String("doc", path), logx.Int("fragments", len(doc.Fragments)))
		if err := l.cur.AdvanceDocument(ctx); err != nil {
			return nil, pos, err
		}
		l.setDoc(nil, 0)
		list, err := l.readList(l.cfg.ListPath)
		if err == nil && len(list) == 0 {
			err = ErrNoDocuments
		}
		if err != nil {
			return nil, pos, fmt.Errorf("document list %s: %w", l.cfg.ListPath, err)
		}
		l.setList(list)
	}
}

func (l *Loop) document(ctx context.Context, idx int, path string) (*document.Document, error) {
	if d := l.doc; d != nil && l.docIdx == idx && d.Path == path {
		return d, nil
	}
	d, err := l.loader.Load(ctx, path)
	if err != nil {
		var le *document.LoadError
		if errors.As(err, &le) {
			l.metrics.LoadFailed(le.Kind.String())
		}
		return nil, err
	}
	l.setDoc(d, idx)
	l.metrics.Loaded()
	l.log.Info("document loaded", logx.String("doc", path), logx.String("tag", d.Tag),
		logx.Int("fragments", len(d.Fragments)), logx.String("fingerprint", d.FingerprintHex()))
	l.publish(eventbus.DocumentChanged, DocumentChange{
		Doc: idx, Path: path, Tag: d.Tag, Fragments: len(d.Fragments), Fingerprint: d.FingerprintHex(),
	})
	return d, nil
}

func (l *Loop) publishFailed(ctx context.Context, doc *document.Document, pos cursor.Position, err error, took time.Duration) {
	l.mu.Lock()
	l.failures++
	delay := backoffDelay(l.cfg.BackoffBase, l.cfg.BackoffMax, l.failures, err)
	l.retryAt = l.now().Add(delay)
	l.lastErr = err.Error()
	failures, retryAt := l.failures, l.retryAt
	l.mu.Unlock()

	l.metrics.PublishFailed(failureReason(err), took)
	l.log.Warn("publish failed; will retry", logx.String("pos", pos.String()), logx.Int("failures", failures),
		logx.Duration("backoff", delay), logx.Err(err))
	l.publish(eventbus.PublishFailed, PublishFailure{Doc: pos.Doc, Frag: pos.Frag, Error: err.Error(), RetryAt: retryAt})
	l.record(ctx, storage.AuditEntry{
		Actor: "loop", Action: "publish", Document: doc.Path, Doc: pos.Doc, Frag: pos.Frag,
		Text: doc.Fragments[pos.Frag], OK: false, Error: err.Error(), TookMS: took.Milliseconds(),
	})
}

// haltLocked moves to Stopped after a terminal failure. Caller holds tickMu.
func (l *Loop) haltLocked(ctx context.Context, err error) {
	l.setDoc(nil, 0)
	l.mu.Lock()
	l.runningSince = time.Time{}
	l.retryAt = time.Time{}
	l.lastErr = err.Error()
	l.mu.Unlock()

	l.log.Error("dispatch stopped", logx.Err(err))
	l.transition(Stopped)
	l.publish(eventbus.LoopStopped, LoopStopped{Reason: err.Error()})
	l.record(ctx, storage.AuditEntry{Actor: "loop", Action: "halt", OK: false, Error: err.Error()})
}

func (l *Loop) swapState(from, to State) bool {
	l.mu.Lock()
	if l.state != from {
		l.mu.Unlock()
		return false
	}
	l.state = to
	l.mu.Unlock()
	l.announce(from, to)
	return true
}

func (l *Loop) transition(to State) {
	l.mu.Lock()
	from := l.state
	l.state = to
	l.mu.Unlock()
	if from != to {
		l.announce(from, to)
	}
}

func (l *Loop) announce(from, to State) {
	l.metrics.SetState(to.String())
	l.log.Debug("state changed", logx.String("from", from.String()), logx.String("to", to.String()))
	l.publish(eventbus.StateChanged, StateChange{From: from.String(), To: to.String()})
}

func (l *Loop) setDoc(d *document.Document, idx int) {
	l.mu.Lock()
	l.doc, l.docIdx = d, idx
	l.mu.Unlock()
}

func (l *Loop) setList(list []string) {
	l.mu.Lock()
	l.list = list
	l.mu.Unlock()
}

func (l *Loop) publish(t eventbus.Type, data any) {
	if l.bus == nil {
		return
	}
	l.bus.Publish(eventbus.Event{Type: t, Time: l.now(), Data: data})
}

func (l *Loop) record(ctx context.Context, e storage.AuditEntry) {
	if l.audit == nil {
		return
	}
	if e.Actor == "" {
		e.Actor = actorFrom(ctx)
	}
	if e.At.IsZero() {
		e.At = l.now()
	}
	// Audit is best effort; a cancelled tick context must not lose it.
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := l.audit.AppendAudit(actx, e); err != nil {
		l.log.Warn("audit append failed", logx.String("action", e.Action), logx.Err(err))
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
