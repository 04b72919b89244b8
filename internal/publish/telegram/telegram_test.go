package telegram

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	logx "shawbot/pkg/logx"
)

type fakeAPI struct {
	mu   sync.Mutex
	sent []map[string]any
	fail bool
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch {
	case strings.HasSuffix(r.URL.Path, "/getMe"):
		_, _ = io.WriteString(w, `{"ok":true,"result":{"id":42,"is_bot":true,"first_name":"shaw","username":"shawbot"}}`)
	case strings.HasSuffix(r.URL.Path, "/sendMessage"):
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.fail {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`)
			return
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.sent = append(f.sent, body)
		_, _ = io.WriteString(w, `{"ok":true,"result":{"message_id":7,"date":0,"chat":{"id":-100,"type":"channel"},"text":"x"}}`)
	default:
		http.NotFound(w, r)
	}
}

func TestPublishSendsToChat(t *testing.T) {
	t.Parallel()
	api := &fakeAPI{}
	srv := httptest.NewServer(api)
	defer srv.Close()

	p, err := New(Config{Token: "123:abc", Chat: "@lit", URL: srv.URL}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Publish(context.Background(), "one two... #lit"); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	api.mu.Lock()
	defer api.mu.Unlock()
	if len(api.sent) != 1 {
		t.Fatalf("sent %d messages", len(api.sent))
	}
	if got := api.sent[0]["text"]; got != "one two... #lit" {
		t.Fatalf("text = %v", got)
	}
	if got := api.sent[0]["chat_id"]; got != "@lit" {
		t.Fatalf("chat_id = %v", got)
	}
}

func TestPublishSurfacesAPIError(t *testing.T) {
	t.Parallel()
	api := &fakeAPI{fail: true}
	srv := httptest.NewServer(api)
	defer srv.Close()

	p, err := New(Config{Token: "123:abc", Chat: "-100", URL: srv.URL}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Publish(context.Background(), "x #t"); err == nil {
		t.Fatal("expected error")
	}
}

func TestNewRequiresTokenAndChat(t *testing.T) {
	t.Parallel()
	if _, err := New(Config{Chat: "@x"}, logx.Nop()); err == nil {
		t.Fatal("expected token error")
	}
	if _, err := New(Config{Token: "1:a"}, logx.Nop()); err == nil {
		t.Fatal("expected chat error")
	}
}
