package credentials

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestReadFile(t *testing.T) {
	t.Parallel()
	p := filepath.Join(t.TempDir(), "creds")
	if err := os.WriteFile(p, []byte("ck\ncs\n\n  at  \nas\nextra\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	c, err := ReadFile(p)
	if err != nil {
		t.Fatal(err)
	}
	want := Credentials{ConsumerKey: "ck", ConsumerSecret: "cs", AccessToken: "at", AccessSecret: "as"}
	if c != want {
		t.Fatalf("got %+v, want %+v", c, want)
	}
}

func TestReadFileShort(t *testing.T) {
	t.Parallel()
	p := filepath.Join(t.TempDir(), "creds")
	if err := os.WriteFile(p, []byte("ck\ncs\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadFile(p); !errors.Is(err, ErrFileShort) {
		t.Fatalf("err = %v, want ErrFileShort", err)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Parallel()
	c, err := load(Config{EnvPrefix: "BOT_"}, map[string]string{
		"BOT_ACCESS_TOKEN":      "123:abc",
		"BOT_CONSUMER_KEY":      "k",
		"SHAWBOT_ACCESS_SECRET": "ignored",
	})
	if err != nil {
		t.Fatal(err)
	}
	if c.AccessToken != "123:abc" || c.ConsumerKey != "k" || c.AccessSecret != "" {
		t.Fatalf("got %+v", c)
	}
}

func TestFileWinsOverEnvironment(t *testing.T) {
	t.Parallel()
	p := filepath.Join(t.TempDir(), "creds")
	if err := os.WriteFile(p, []byte("a\nb\nfile-token\nd\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	c, err := load(Config{File: p}, map[string]string{"SHAWBOT_ACCESS_TOKEN": "env-token"})
	if err != nil {
		t.Fatal(err)
	}
	if c.AccessToken != "file-token" {
		t.Fatalf("AccessToken = %q", c.AccessToken)
	}
	if r := c.Redacted(); !r["access_token"] {
		t.Fatalf("redacted = %v", r)
	}
}
