// Package control is the operator HTTP surface: loop commands, status,
// metrics and a live event stream.
package control

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	json "github.com/goccy/go-json"

	"shawbot/internal/dispatch"
	"shawbot/internal/eventbus"
	logx "shawbot/pkg/logx"
)

const DefaultAddr = "127.0.0.1:8088"

// Loop is the part of the dispatch loop the surface drives.
type Loop interface {
	Start(ctx context.Context) error
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	Stop(ctx context.Context) error
	Reset(ctx context.Context) error
	Snapshot() dispatch.Snapshot
}

type Options struct {
	// Token, when set, is required as "Authorization: Bearer <token>" on
	// every route except /healthz.
	Token   string
	Pprof   bool
	Metrics http.Handler
	Bus     eventbus.Bus
	Log     logx.Logger
	// NextTick, when set, fills Snapshot.NextTick in every response.
	NextTick func() time.Time
}

// NewHandler builds the router.
func NewHandler(loop Loop, opt Options) http.Handler {
	log := opt.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	h := &handler{loop: loop, bus: opt.Bus, log: log, next: opt.NextTick}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.logRequests)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	r.Group(func(r chi.Router) {
		if opt.Token != "" {
			r.Use(bearer(opt.Token))
		}
		r.Get("/status", h.status)
		r.Post("/start", h.command("start", loop.Start))
		r.Post("/pause", h.command("pause", loop.Pause))
		r.Post("/resume", h.command("resume", loop.Resume))
		r.Post("/stop", h.command("stop", loop.Stop))
		r.Post("/reset", h.command("reset", loop.Reset))
		if opt.Bus != nil {
			r.Get("/events", h.events)
		}
		if opt.Metrics != nil {
			r.Method(http.MethodGet, "/metrics", opt.Metrics)
		}
		if opt.Pprof {
			r.Mount("/debug", middleware.Profiler())
		}
	})
	return r
}

type handler struct {
	loop Loop
	bus  eventbus.Bus
	log  logx.Logger
	next func() time.Time
}

func (h *handler) snapshot() dispatch.Snapshot {
	s := h.loop.Snapshot()
	if h.next != nil {
		s.NextTick = h.next()
	}
	return s
}

func (h *handler) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.snapshot())
}

type commandResponse struct {
	OK     bool              `json:"ok"`
	Error  string            `json:"error,omitempty"`
	Status dispatch.Snapshot `json:"status"`
}

func (h *handler) command(name string, fn func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := dispatch.WithActor(r.Context(), "http")
		err := fn(ctx)
		resp := commandResponse{OK: err == nil, Status: h.snapshot()}
		code := http.StatusOK
		if err != nil {
			resp.Error = err.Error()
			code = statusFor(err)
			h.log.Warn("command failed", logx.String("cmd", name), logx.Err(err))
		} else {
			h.log.Info("command applied", logx.String("cmd", name), logx.String("state", resp.Status.State))
		}
		writeJSON(w, code, resp)
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, dispatch.ErrAlreadyRunning),
		errors.Is(err, dispatch.ErrNotRunning),
		errors.Is(err, dispatch.ErrNotPaused):
		return http.StatusConflict
	case errors.Is(err, dispatch.ErrNoDocuments):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// events streams loop events as server-sent events until the client leaves.
func (h *handler) events(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	ch, unsub := h.bus.Subscribe(32)
	defer unsub()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	keepalive := time.NewTicker(30 * time.Second)
	defer keepalive.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepalive.C:
			fmt.Fprintf(w, ": keepalive\n\n")
			flusher.Flush()
		case e, ok := <-ch:
			if !ok {
				return
			}
			b, err := json.Marshal(e)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Type, b)
			flusher.Flush()
		}
	}
}

func (h *handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.log.Debug("http request",
			logx.String("method", r.Method),
			logx.String("path", r.URL.Path),
			logx.Int("status", ww.Status()),
			logx.Duration("took", time.Since(start)),
			logx.String("req_id", middleware.GetReqID(r.Context())),
		)
	})
}

func bearer(token string) func(http.Handler) http.Handler {
	want := []byte("Bearer " + token)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := []byte(strings.TrimSpace(r.Header.Get("Authorization")))
			if subtle.ConstantTimeCompare(got, want) != 1 {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// Server runs the handler until its context ends.
type Server struct {
	addr string
	h    http.Handler
	log  logx.Logger
}

func NewServer(addr string, h http.Handler, log logx.Logger) *Server {
	if addr == "" {
		addr = DefaultAddr
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Server{addr: addr, h: h, log: log}
}

// Serve listens and serves; on ctx cancellation it shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:           s.h,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	s.log.Info("control listening", logx.String("addr", ln.Addr().String()))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
