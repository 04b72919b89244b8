package schedule

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Kind is either a cron expression or a fixed interval.
type Kind int

const (
	KindInterval Kind = iota
	KindCron
)

func (k Kind) String() string {
	if k == KindCron {
		return "cron"
	}
	return "interval"
}

// Spec is a parsed tick schedule.
//
// Accepted forms:
//   - Go duration: "30m", "1h30m"
//   - HH:MM interval: "00:50" (50 minutes), "02:30"
//   - Cron: "*/15 * * * *", "0 9-17 * * MON-FRI", "@hourly", "@every 45m"
//
// "cron:" forces cron parsing; "every:" or "interval:" forces interval parsing.
type Spec struct {
	Kind  Kind
	Every time.Duration
	Cron  string

	sched cron.Schedule
}

func (s Spec) String() string {
	if s.Kind == KindCron {
		return "cron " + s.Cron
	}
	return "every " + s.Every.String()
}

// Schedule returns the robfig/cron schedule for s.
func (s Spec) Schedule() cron.Schedule {
	if s.sched != nil {
		return s.sched
	}
	return cron.Every(s.Every)
}

// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
var parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

var reHHMM = regexp.MustCompile(`^(\d{1,3}):([0-5]\d)$`)

// MinInterval is the shortest accepted interval. robfig/cron rounds
// intervals down to whole seconds.
const MinInterval = time.Second

func Parse(raw string) (Spec, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Spec{}, fmt.Errorf("schedule required")
	}

	low := strings.ToLower(s)
	switch {
	case strings.HasPrefix(low, "cron:"):
		return parseCron(strings.TrimSpace(s[len("cron:"):]))
	case strings.HasPrefix(low, "every:"):
		return parseInterval(strings.TrimSpace(s[len("every:"):]))
	case strings.HasPrefix(low, "interval:"):
		return parseInterval(strings.TrimSpace(s[len("interval:"):]))
	case strings.HasPrefix(s, "@") || strings.ContainsAny(s, " \t"):
		return parseCron(s)
	default:
		return parseInterval(s)
	}
}

func parseCron(expr string) (Spec, error) {
	if expr == "" {
		return Spec{}, fmt.Errorf("cron expression required")
	}
	sched, err := parser.Parse(expr)
	if err != nil {
		return Spec{}, fmt.Errorf("invalid cron %q: %w", expr, err)
	}
	return Spec{Kind: KindCron, Cron: expr, sched: sched}, nil
}

func parseInterval(v string) (Spec, error) {
	var d time.Duration
	if m := reHHMM.FindStringSubmatch(v); m != nil {
		hh, _ := strconv.Atoi(m[1])
		mm, _ := strconv.Atoi(m[2])
		d = time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute
	} else {
		var err error
		if d, err = time.ParseDuration(v); err != nil {
			return Spec{}, fmt.Errorf("invalid schedule %q (use a duration like '30m', HH:MM like '02:30', or cron like '*/15 * * * *')", v)
		}
	}
	if d < MinInterval {
		return Spec{}, fmt.Errorf("interval %s is below %s", d, MinInterval)
	}
	return Spec{Kind: KindInterval, Every: d}, nil
}
