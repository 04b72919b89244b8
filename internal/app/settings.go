package app

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"shawbot/internal/config"
	"shawbot/internal/credentials"
	"shawbot/internal/dispatch"
	"shawbot/internal/document"
	"shawbot/internal/schedule"
	"shawbot/internal/segment"
	"shawbot/internal/storage"
	logx "shawbot/pkg/logx"
)

// settings is the config mapped onto component configs. Building it is the
// full validation of a config file.
type settings struct {
	logging   logx.Config
	storage   storage.Config
	seg       segment.Segmenter
	tagMarker string
	dispatch  dispatch.Config
	schedule  schedule.Config
	autostart bool

	publisher   config.PublisherConfig
	credentials credentials.Config
	control     config.ControlConfig
}

func mapSettings(cfg *config.Config) (settings, error) {
	if cfg == nil {
		return settings{}, fmt.Errorf("config is nil")
	}
	if err := cfg.Validate(); err != nil {
		return settings{}, err
	}

	var s settings
	s.logging = mapLogging(cfg.Logging)

	policy, err := segment.ParsePolicy(cfg.Feed.Overlong)
	if err != nil {
		return settings{}, fmt.Errorf("feed.overlong: %w", err)
	}
	marker := cfg.Feed.Marker
	if marker == "" {
		marker = segment.DefaultMarker
	}
	s.seg = segment.New(cfg.Feed.MaxLen, marker, policy)
	s.tagMarker = cfg.Feed.TagMarker
	if s.tagMarker == "" {
		s.tagMarker = document.DefaultTagMarker
	}

	s.dispatch.ListPath = cfg.Feed.List
	if s.dispatch.PublishTimeout, err = config.DurationOr("feed.publish_timeout", cfg.Feed.PublishTimeout, 20*time.Second); err != nil {
		return settings{}, err
	}
	if s.dispatch.BackoffBase, err = config.DurationOr("feed.backoff_base", cfg.Feed.BackoffBase, 30*time.Second); err != nil {
		return settings{}, err
	}
	if s.dispatch.BackoffMax, err = config.DurationOr("feed.backoff_max", cfg.Feed.BackoffMax, 30*time.Minute); err != nil {
		return settings{}, err
	}
	if s.dispatch.BackoffMax < s.dispatch.BackoffBase {
		return settings{}, fmt.Errorf("feed.backoff_max (%s) is below feed.backoff_base (%s)", s.dispatch.BackoffMax, s.dispatch.BackoffBase)
	}

	s.schedule = schedule.Config{Schedule: cfg.Feed.Schedule, Timezone: cfg.Feed.Timezone}
	if _, err := schedule.Parse(cfg.Feed.Schedule); err != nil {
		return settings{}, fmt.Errorf("feed.schedule: %w", err)
	}
	if tz := strings.TrimSpace(cfg.Feed.Timezone); tz != "" && !strings.EqualFold(tz, "local") {
		if _, err := time.LoadLocation(tz); err != nil {
			return settings{}, fmt.Errorf("feed.timezone: invalid %q: %w", tz, err)
		}
	}
	s.autostart = cfg.Feed.Autostart

	if s.storage, err = mapStorage(cfg.Storage); err != nil {
		return settings{}, err
	}

	s.publisher = cfg.Publisher
	s.publisher.Driver = strings.ToLower(strings.TrimSpace(cfg.Publisher.Driver))
	s.credentials = credentials.Config{
		File:      cfg.Credentials.File,
		EnvPrefix: cfg.Credentials.EnvPrefix,
		DotEnv:    cfg.Credentials.DotEnv,
	}
	s.control = cfg.Control
	return s, nil
}

func mapLogging(lc config.LoggingConfig) logx.Config {
	return logx.Config{
		Level:   lc.Level,
		Console: lc.Console,
		File: logx.FileConfig{
			Enabled: lc.File.Enabled,
			Path:    lc.File.Path,
		},
	}
}

func mapStorage(sc config.StorageConfig) (storage.Config, error) {
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	busy, err := config.DurationOr("storage.busy_timeout", sc.BusyTimeout, 0)
	if err != nil {
		return storage.Config{}, err
	}
	out := storage.Config{
		Driver:      driver,
		Path:        strings.TrimSpace(sc.Path),
		BusyTimeout: busy,
		Redis: storage.RedisConfig{
			Addr:     sc.Redis.Addr,
			Password: sc.Redis.Password,
			DB:       sc.Redis.DB,
			Prefix:   sc.Redis.Prefix,
			AuditCap: sc.Redis.AuditCap,
		},
	}
	if out.Path != "" {
		out.Path = filepath.Clean(out.Path)
	}
	return out, nil
}
