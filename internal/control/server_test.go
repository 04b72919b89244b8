package control

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	json "github.com/goccy/go-json"

	"shawbot/internal/dispatch"
	"shawbot/internal/eventbus"
	logx "shawbot/pkg/logx"
)

type fakeLoop struct {
	mu    sync.Mutex
	state string
	calls []string
	err   error
}

func (f *fakeLoop) do(name string) func(context.Context) error {
	return func(ctx context.Context) error {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.calls = append(f.calls, name)
		if f.err != nil {
			return f.err
		}
		f.state = name
		return nil
	}
}

func (f *fakeLoop) Start(ctx context.Context) error  { return f.do("start")(ctx) }
func (f *fakeLoop) Pause(ctx context.Context) error  { return f.do("pause")(ctx) }
func (f *fakeLoop) Resume(ctx context.Context) error { return f.do("resume")(ctx) }
func (f *fakeLoop) Stop(ctx context.Context) error   { return f.do("stop")(ctx) }
func (f *fakeLoop) Reset(ctx context.Context) error  { return f.do("reset")(ctx) }

func (f *fakeLoop) Snapshot() dispatch.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return dispatch.Snapshot{State: f.state}
}

func TestCommands(t *testing.T) {
	t.Parallel()
	loop := &fakeLoop{}
	srv := httptest.NewServer(NewHandler(loop, Options{Log: logx.Nop()}))
	defer srv.Close()

	for _, cmd := range []string{"start", "pause", "resume", "stop", "reset"} {
		resp, err := http.Post(srv.URL+"/"+cmd, "application/json", nil)
		if err != nil {
			t.Fatal(err)
		}
		var body commandResponse
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK || !body.OK || body.Status.State != cmd {
			t.Fatalf("%s: code=%d body=%+v", cmd, resp.StatusCode, body)
		}
	}
	if got := strings.Join(loop.calls, ","); got != "start,pause,resume,stop,reset" {
		t.Fatalf("calls = %s", got)
	}
}

func TestCommandErrorCodes(t *testing.T) {
	t.Parallel()
	tests := []struct {
		err  error
		want int
	}{
		{dispatch.ErrNotRunning, http.StatusConflict},
		{dispatch.ErrAlreadyRunning, http.StatusConflict},
		{dispatch.ErrNoDocuments, http.StatusUnprocessableEntity},
		{context.DeadlineExceeded, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		h := NewHandler(&fakeLoop{err: tt.err}, Options{})
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/pause", nil))
		if rec.Code != tt.want {
			t.Fatalf("%v: code = %d, want %d", tt.err, rec.Code, tt.want)
		}
	}
}

func TestStatusAndMethodRouting(t *testing.T) {
	t.Parallel()
	h := NewHandler(&fakeLoop{state: "paused"}, Options{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	var snap dispatch.Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusOK || snap.State != "paused" {
		t.Fatalf("status: %d %+v", rec.Code, snap)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/start", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET /start = %d", rec.Code)
	}
}

func TestStatusReportsNextTick(t *testing.T) {
	t.Parallel()
	at := time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)
	h := NewHandler(&fakeLoop{state: "running"}, Options{NextTick: func() time.Time { return at }})

	for _, req := range []*http.Request{
		httptest.NewRequest(http.MethodGet, "/status", nil),
		httptest.NewRequest(http.MethodPost, "/resume", nil),
	} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		body := rec.Body.Bytes()
		var snap dispatch.Snapshot
		if req.Method == http.MethodPost {
			var resp commandResponse
			if err := json.Unmarshal(body, &resp); err != nil {
				t.Fatal(err)
			}
			snap = resp.Status
		} else if err := json.Unmarshal(body, &snap); err != nil {
			t.Fatal(err)
		}
		if !snap.NextTick.Equal(at) {
			t.Fatalf("%s %s: next_tick = %v", req.Method, req.URL.Path, snap.NextTick)
		}
	}
}

func TestBearerToken(t *testing.T) {
	t.Parallel()
	h := NewHandler(&fakeLoop{}, Options{Token: "s3cret"})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token: %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("with token: %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz: %d", rec.Code)
	}
}

func TestMetricsMounted(t *testing.T) {
	t.Parallel()
	m := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("shawbot_up 1\n")) })
	h := NewHandler(&fakeLoop{}, Options{Metrics: m})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "shawbot_up") {
		t.Fatalf("metrics: %d %q", rec.Code, rec.Body.String())
	}
}

func TestEventStream(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	srv := httptest.NewServer(NewHandler(&fakeLoop{}, Options{Bus: bus}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/events", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content-type = %q", ct)
	}

	rd := bufio.NewReader(resp.Body)
	// wait for the connect ping so the subscription exists
	for {
		line, err := rd.ReadString('\n')
		if err != nil {
			t.Fatal(err)
		}
		if strings.HasPrefix(line, "data: connected") {
			break
		}
	}
	bus.Publish(eventbus.Event{Type: eventbus.FragmentEmitted, Data: dispatch.FragmentEmitted{Doc: 1, Frag: 2, Text: "hi #t"}})

	for {
		line, err := rd.ReadString('\n')
		if err != nil {
			t.Fatal(err)
		}
		if strings.HasPrefix(line, "event: fragment.emitted") {
			data, err := rd.ReadString('\n')
			if err != nil {
				t.Fatal(err)
			}
			if !strings.Contains(data, `"text":"hi #t"`) {
				t.Fatalf("data = %q", data)
			}
			return
		}
	}
}

func TestServerShutsDownOnCancel(t *testing.T) {
	t.Parallel()
	s := NewServer("127.0.0.1:0", NewHandler(&fakeLoop{}, Options{}), logx.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
