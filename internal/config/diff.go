package config

import (
	"sort"
	"strings"

	logx "shawbot/pkg/logx"
)

// Change summarizes what a reload touched.
type Change struct {
	Sections []string
	// Live sections are applied without a restart (logging, schedule).
	Live bool
	// RestartRequired lists sections that only take effect on restart.
	RestartRequired []string
}

// Diff compares two configs. Secrets are never part of the result.
func Diff(oldCfg, newCfg *Config) Change {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var ch Change
	mark := func(section string, live bool) {
		ch.Sections = append(ch.Sections, section)
		if live {
			ch.Live = true
		} else {
			ch.RestartRequired = append(ch.RestartRequired, section)
		}
	}

	if oldCfg.Logging != newCfg.Logging {
		mark("logging", true)
	}
	of, nf := oldCfg.Feed, newCfg.Feed
	if strings.TrimSpace(of.Schedule) != strings.TrimSpace(nf.Schedule) || of.Timezone != nf.Timezone {
		mark("feed.schedule", true)
	}
	of.Schedule, nf.Schedule, of.Timezone, nf.Timezone = "", "", "", ""
	if of != nf {
		mark("feed", false)
	}
	if oldCfg.Publisher != newCfg.Publisher {
		mark("publisher", false)
	}
	if oldCfg.Credentials != newCfg.Credentials {
		mark("credentials", false)
	}
	if oldCfg.Storage != newCfg.Storage {
		mark("storage", false)
	}
	if oldCfg.Control != newCfg.Control {
		mark("control", false)
	}
	sort.Strings(ch.Sections)
	return ch
}

// Fields renders the change for structured logs.
func (c Change) Fields() []logx.Field {
	return []logx.Field{
		logx.String("changed", strings.Join(c.Sections, ",")),
		logx.String("restart_required", strings.Join(c.RestartRequired, ",")),
	}
}
