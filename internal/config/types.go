package config

// Config is the on-disk configuration (JSON or YAML).
//
// All durations are Go duration strings ("500ms", "20s", "30m").
type Config struct {
	Logging     LoggingConfig     `json:"logging"`
	Feed        FeedConfig        `json:"feed"`
	Publisher   PublisherConfig   `json:"publisher"`
	Credentials CredentialsConfig `json:"credentials,omitempty"`
	Storage     StorageConfig     `json:"storage"`
	Control     ControlConfig     `json:"control,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"` // default: ./shawbot.log
}

// FeedConfig describes what is published and how often.
//
// Defaults (when fields are omitted/zero):
//   - tag_marker: "#"
//   - max_len: 140
//   - marker: "..."
//   - overlong: "split"
//   - publish_timeout: "20s"
//   - backoff_base: "30s"
//   - backoff_max: "30m"
type FeedConfig struct {
	List      string `json:"list"`
	TagMarker string `json:"tag_marker,omitempty"`
	MaxLen    int    `json:"max_len,omitempty"`
	Marker    string `json:"marker,omitempty"`
	// Overlong is the policy for a single word longer than the budget:
	// "split" cuts it, "reject" fails the document.
	Overlong string `json:"overlong,omitempty"`

	// Schedule is an interval ("30m", "02:30") or a cron expression.
	Schedule string `json:"schedule"`
	Timezone string `json:"timezone,omitempty"`

	PublishTimeout string `json:"publish_timeout,omitempty"`
	BackoffBase    string `json:"backoff_base,omitempty"`
	BackoffMax     string `json:"backoff_max,omitempty"`

	// Autostart starts the loop as soon as the process is up.
	Autostart bool `json:"autostart,omitempty"`
}

type PublisherConfig struct {
	// Driver is "telegram" or "dryrun".
	Driver string `json:"driver"`
	// Chat is a numeric chat id or an @channel username (telegram).
	Chat string `json:"chat,omitempty"`
	// APIURL overrides the Bot API endpoint (telegram).
	APIURL string `json:"api_url,omitempty"`
	// RatePerHour caps publishes; 0 disables the cap.
	RatePerHour int `json:"rate_per_hour,omitempty"`
}

type CredentialsConfig struct {
	File      string `json:"file,omitempty"`
	EnvPrefix string `json:"env_prefix,omitempty"` // default: SHAWBOT_
	DotEnv    string `json:"dotenv,omitempty"`
}

type StorageConfig struct {
	// Driver is "file", "sqlite", "redis" or "memory".
	Driver      string      `json:"driver"`
	Path        string      `json:"path,omitempty"`
	BusyTimeout string      `json:"busy_timeout,omitempty"` // sqlite
	Redis       RedisConfig `json:"redis,omitempty"`
}

type RedisConfig struct {
	Addr     string `json:"addr,omitempty"`
	Password string `json:"password,omitempty"` // do not log
	DB       int    `json:"db,omitempty"`
	Prefix   string `json:"prefix,omitempty"`
	AuditCap int64  `json:"audit_cap,omitempty"`
}

// ControlConfig is the operator HTTP surface.
type ControlConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"`  // default: 127.0.0.1:8088
	Token   string `json:"token,omitempty"` // optional bearer token (do not log)
	// Pprof mounts net/http/pprof under /debug.
	Pprof bool `json:"pprof,omitempty"`
}
