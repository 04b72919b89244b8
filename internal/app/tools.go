package app

import (
	"shawbot/internal/config"
	"shawbot/internal/control"
	"shawbot/internal/document"
	"shawbot/internal/storage"
	logx "shawbot/pkg/logx"
)

// The helpers below let CLI subcommands build single components from the
// same config the daemon uses.

// LoadConfig reads and fully validates the config file.
func LoadConfig(path string) (*config.Config, error) {
	cfg, err := config.NewManager(path, logx.Nop()).Parse()
	if err != nil {
		return nil, err
	}
	if _, err := mapSettings(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// NewLoader builds the document loader configured by the feed section.
func NewLoader(cfg *config.Config) (*document.Loader, error) {
	s, err := mapSettings(cfg)
	if err != nil {
		return nil, err
	}
	return document.NewLoader(s.seg, s.tagMarker), nil
}

// OpenStore opens the configured cursor store.
func OpenStore(cfg *config.Config, log logx.Logger) (storage.Store, error) {
	sc, err := mapStorage(cfg.Storage)
	if err != nil {
		return nil, err
	}
	return storage.Open(sc, log)
}

// ControlURL is the base URL of the control surface.
func ControlURL(cfg *config.Config) string {
	addr := cfg.Control.Addr
	if addr == "" {
		addr = control.DefaultAddr
	}
	return "http://" + addr
}
