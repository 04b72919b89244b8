// Package credentials loads the four opaque secrets handed to the publish
// driver. Values come from a four-line file, the environment, or both.
package credentials

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

const DefaultEnvPrefix = "SHAWBOT_"

// Credentials are passed through unchanged. For the Telegram driver only
// AccessToken (the bot token) is used.
type Credentials struct {
	ConsumerKey    string `env:"CONSUMER_KEY"`
	ConsumerSecret string `env:"CONSUMER_SECRET"`
	AccessToken    string `env:"ACCESS_TOKEN"`
	AccessSecret   string `env:"ACCESS_SECRET"`
}

// Redacted is safe to log.
func (c Credentials) Redacted() map[string]bool {
	return map[string]bool{
		"consumer_key":    c.ConsumerKey != "",
		"consumer_secret": c.ConsumerSecret != "",
		"access_token":    c.AccessToken != "",
		"access_secret":   c.AccessSecret != "",
	}
}

type Config struct {
	// File holds the four values, one per line, in field order.
	File string
	// EnvPrefix defaults to SHAWBOT_.
	EnvPrefix string
	// DotEnv is loaded into the process environment first when present.
	DotEnv string
}

var ErrFileShort = errors.New("credentials file must hold four non-empty lines")

// Load reads File (if set) and then fills any empty field from the
// environment.
func Load(cfg Config) (Credentials, error) {
	if cfg.DotEnv != "" {
		if err := godotenv.Load(cfg.DotEnv); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Credentials{}, fmt.Errorf("load %s: %w", cfg.DotEnv, err)
		}
	}
	return load(cfg, nil)
}

func load(cfg Config, environ map[string]string) (Credentials, error) {
	var c Credentials
	if cfg.File != "" {
		var err error
		if c, err = ReadFile(cfg.File); err != nil {
			return Credentials{}, err
		}
	}

	prefix := cfg.EnvPrefix
	if prefix == "" {
		prefix = DefaultEnvPrefix
	}
	var fromEnv Credentials
	if err := env.ParseWithOptions(&fromEnv, env.Options{Prefix: prefix, Environment: environ}); err != nil {
		return Credentials{}, err
	}
	fill(&c.ConsumerKey, fromEnv.ConsumerKey)
	fill(&c.ConsumerSecret, fromEnv.ConsumerSecret)
	fill(&c.AccessToken, fromEnv.AccessToken)
	fill(&c.AccessSecret, fromEnv.AccessSecret)
	return c, nil
}

func fill(dst *string, v string) {
	if *dst == "" {
		*dst = v
	}
}

// ReadFile parses the four-line credentials file. Blank lines are ignored.
func ReadFile(path string) (Credentials, error) {
	f, err := os.Open(path)
	if err != nil {
		return Credentials{}, err
	}
	defer f.Close()

	var vals []string
	sc := bufio.NewScanner(f)
	for sc.Scan() && len(vals) < 4 {
		if v := strings.TrimSpace(sc.Text()); v != "" {
			vals = append(vals, v)
		}
	}
	if err := sc.Err(); err != nil {
		return Credentials{}, err
	}
	if len(vals) < 4 {
		return Credentials{}, fmt.Errorf("%s: %w", path, ErrFileShort)
	}
	return Credentials{ConsumerKey: vals[0], ConsumerSecret: vals[1], AccessToken: vals[2], AccessSecret: vals[3]}, nil
}
