package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks the config for values no component can accept. Deeper
// checks (schedule syntax, storage reachability) happen when components are
// built from it.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	if strings.TrimSpace(c.Feed.List) == "" {
		add("feed.list is required")
	}
	if strings.TrimSpace(c.Feed.Schedule) == "" {
		add("feed.schedule is required")
	}
	if c.Feed.MaxLen < 0 {
		add("feed.max_len must be >= 0")
	}
	switch strings.ToLower(strings.TrimSpace(c.Feed.Overlong)) {
	case "", "split", "hard_split", "reject":
	default:
		add("feed.overlong: unknown policy %q (use split or reject)", c.Feed.Overlong)
	}
	for field, raw := range map[string]string{
		"feed.publish_timeout": c.Feed.PublishTimeout,
		"feed.backoff_base":    c.Feed.BackoffBase,
		"feed.backoff_max":     c.Feed.BackoffMax,
		"storage.busy_timeout": c.Storage.BusyTimeout,
	} {
		if _, err := DurationOr(field, raw, 0); err != nil {
			errs = append(errs, err)
		}
	}

	switch strings.ToLower(strings.TrimSpace(c.Publisher.Driver)) {
	case "dryrun", "dry-run", "":
	case "telegram":
		if strings.TrimSpace(c.Publisher.Chat) == "" {
			add("publisher.chat is required for telegram")
		}
	default:
		add("publisher.driver: unknown driver %q", c.Publisher.Driver)
	}
	if c.Publisher.RatePerHour < 0 {
		add("publisher.rate_per_hour must be >= 0")
	}

	switch strings.ToLower(strings.TrimSpace(c.Storage.Driver)) {
	case "", "file", "sqlite", "sqlite3":
		if strings.TrimSpace(c.Storage.Path) == "" {
			add("storage.path is required for the %s driver", orDefault(c.Storage.Driver, "file"))
		}
	case "redis":
		if strings.TrimSpace(c.Storage.Redis.Addr) == "" {
			add("storage.redis.addr is required for the redis driver")
		}
	case "memory":
	default:
		add("storage.driver: unknown driver %q", c.Storage.Driver)
	}
	return errors.Join(errs...)
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
