package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	logx "shawbot/pkg/logx"
)

const sampleJSON = `{
  "logging": {"level": "debug", "console": true, "file": {"enabled": false}},
  "feed": {"list": "docs/list.txt", "schedule": "30m", "max_len": 140, "autostart": true},
  "publisher": {"driver": "dryrun"},
  "storage": {"driver": "file", "path": "data/shawbot.json"},
  "control": {"enabled": true, "addr": "127.0.0.1:8088"}
}`

const sampleYAML = `
logging:
  level: info
  console: true
  file:
    enabled: false
feed:
  list: docs/list.txt
  schedule: "*/15 * * * *"
  overlong: reject
publisher:
  driver: telegram
  chat: "@lit"
  rate_per_hour: 4
storage:
  driver: redis
  redis:
    addr: 127.0.0.1:6379
    db: 2
`

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoadJSONAndYAML(t *testing.T) {
	t.Parallel()
	m := NewManager(writeConfig(t, "c.json", sampleJSON), logx.Nop())
	cfg, err := m.Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Feed.Schedule != "30m" || !cfg.Feed.Autostart || cfg.Storage.Driver != "file" {
		t.Fatalf("json cfg = %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if m.Get() != cfg {
		t.Fatal("Get did not return committed config")
	}

	y, err := NewManager(writeConfig(t, "c.yaml", sampleYAML), logx.Nop()).Load()
	if err != nil {
		t.Fatal(err)
	}
	if y.Publisher.RatePerHour != 4 || y.Storage.Redis.DB != 2 || y.Feed.Overlong != "reject" {
		t.Fatalf("yaml cfg = %+v", y)
	}
	if err := y.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestDecodeIsStrict(t *testing.T) {
	t.Parallel()
	tests := map[string]string{
		"unknown field": `{"feed": {"list": "x", "schedule": "1h", "speed": 3}}`,
		"trailing":      `{"feed": {}} {"feed": {}}`,
		"bad yaml":      "feed: [unterminated",
	}
	for name, body := range tests {
		ext := ".json"
		if name == "bad yaml" {
			ext = ".yml"
		}
		if _, err := Decode("c"+ext, []byte(body)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	cfg := &Config{
		Feed:      FeedConfig{Overlong: "truncate", PublishTimeout: "soon", MaxLen: -1},
		Publisher: PublisherConfig{Driver: "telegram"},
		Storage:   StorageConfig{Driver: "etcd"},
	}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected errors")
	}
	for _, want := range []string{
		"feed.list", "feed.schedule", "feed.max_len", "feed.overlong", "feed.publish_timeout",
		"publisher.chat", "storage.driver",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q does not mention %s", err, want)
		}
	}
}

func TestDurationOr(t *testing.T) {
	t.Parallel()
	if d, err := DurationOr("x", "", time.Minute); err != nil || d != time.Minute {
		t.Fatalf("default: %s %v", d, err)
	}
	if d, err := DurationOr("x", " 5s ", 0); err != nil || d != 5*time.Second {
		t.Fatalf("parse: %s %v", d, err)
	}
	if _, err := DurationOr("x", "-1s", 0); err == nil {
		t.Fatal("negative accepted")
	}
}

func TestDiff(t *testing.T) {
	t.Parallel()
	a, _ := Decode("a.json", []byte(sampleJSON))
	b, _ := Decode("b.json", []byte(sampleJSON))
	if ch := Diff(a, b); len(ch.Sections) != 0 {
		t.Fatalf("identical configs differ: %+v", ch)
	}

	b.Feed.Schedule = "1h"
	b.Logging.Level = "info"
	b.Storage.Driver = "sqlite"
	ch := Diff(a, b)
	if got := strings.Join(ch.Sections, ","); got != "feed.schedule,logging,storage" {
		t.Fatalf("sections = %s", got)
	}
	if !ch.Live || len(ch.RestartRequired) != 1 || ch.RestartRequired[0] != "storage" {
		t.Fatalf("change = %+v", ch)
	}
}

func TestReloadValidatesAndSkipsUnchanged(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	p := writeConfig(t, "c.json", sampleJSON)
	m := NewManager(p, logx.Nop())
	if _, err := m.Load(); err != nil {
		t.Fatal(err)
	}
	m.SetValidator(func(ctx context.Context, cfg *Config) error { return cfg.Validate() })
	sub := m.Subscribe(1)
	defer m.Unsubscribe(sub)

	if changed, err := m.Reload(ctx); err != nil || changed {
		t.Fatalf("unchanged reload = %v %v", changed, err)
	}

	bad := strings.Replace(sampleJSON, `"schedule": "30m"`, `"schedule": ""`, 1)
	if err := os.WriteFile(p, []byte(bad), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Reload(ctx); err == nil {
		t.Fatal("invalid config accepted")
	}
	if m.Get().Feed.Schedule != "30m" {
		t.Fatal("rejected config was committed")
	}

	good := strings.Replace(sampleJSON, `"schedule": "30m"`, `"schedule": "45m"`, 1)
	if err := os.WriteFile(p, []byte(good), 0o600); err != nil {
		t.Fatal(err)
	}
	if changed, err := m.Reload(ctx); err != nil || !changed {
		t.Fatalf("reload = %v %v", changed, err)
	}
	select {
	case cfg := <-sub:
		if cfg.Feed.Schedule != "45m" {
			t.Fatalf("published schedule = %s", cfg.Feed.Schedule)
		}
	default:
		t.Fatal("nothing published")
	}
}

func TestWatchPublishesOnWrite(t *testing.T) {
	t.Parallel()
	p := writeConfig(t, "c.json", sampleJSON)
	m := NewManager(p, logx.Nop())
	if _, err := m.Load(); err != nil {
		t.Fatal(err)
	}
	sub := m.Subscribe(1)
	defer m.Unsubscribe(sub)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Watch(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	// let the watcher register before writing
	time.Sleep(100 * time.Millisecond)
	updated := strings.Replace(sampleJSON, `"level": "debug"`, `"level": "warn"`, 1)
	if err := os.WriteFile(p, []byte(updated), 0o600); err != nil {
		t.Fatal(err)
	}
	select {
	case cfg := <-sub:
		if cfg.Logging.Level != "warn" {
			t.Fatalf("level = %s", cfg.Logging.Level)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no reload published")
	}
}
