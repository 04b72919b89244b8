package schedule

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	logx "shawbot/pkg/logx"
)

func TestParse(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in      string
		kind    Kind
		every   time.Duration
		wantErr bool
	}{
		{in: "30m", kind: KindInterval, every: 30 * time.Minute},
		{in: "every: 1h30m", kind: KindInterval, every: 90 * time.Minute},
		{in: "00:50", kind: KindInterval, every: 50 * time.Minute},
		{in: "interval:02:30", kind: KindInterval, every: 150 * time.Minute},
		{in: "*/15 * * * *", kind: KindCron},
		{in: "0 0 9 * * MON-FRI", kind: KindCron},
		{in: "@hourly", kind: KindCron},
		{in: "cron: @every 45m", kind: KindCron},
		{in: "", wantErr: true},
		{in: "soon", wantErr: true},
		{in: "500ms", wantErr: true},
		{in: "00:00", wantErr: true},
		{in: "1:75", wantErr: true},
		{in: "cron: 61 * * * *", wantErr: true},
		{in: "cron:", wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := Parse(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Parse(%q) = %v, want error", tt.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%q): %v", tt.in, err)
			}
			if got.Kind != tt.kind {
				t.Fatalf("kind = %s, want %s", got.Kind, tt.kind)
			}
			if tt.kind == KindInterval && got.Every != tt.every {
				t.Fatalf("every = %s, want %s", got.Every, tt.every)
			}
			if got.Schedule() == nil {
				t.Fatal("nil schedule")
			}
		})
	}
}

func TestSpecNextIsAfterNow(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 5, 1, 10, 7, 0, 0, time.UTC)
	s, err := Parse("*/15 * * * *")
	if err != nil {
		t.Fatal(err)
	}
	if got, want := s.Schedule().Next(now), time.Date(2024, 5, 1, 10, 15, 0, 0, time.UTC); !got.Equal(want) {
		t.Fatalf("Next = %s, want %s", got, want)
	}
}

func TestTickerFires(t *testing.T) {
	t.Parallel()
	var n atomic.Int32
	done := make(chan struct{}, 1)
	tk, err := New(Config{Schedule: "1s"}, func(ctx context.Context) {
		if n.Add(1) == 1 {
			done <- struct{}{}
		}
	}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tk.Start(ctx)
	if tk.Next().IsZero() {
		t.Fatal("Next is zero while running")
	}
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("no tick")
	}
	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
	defer stopCancel()
	tk.Stop(stopCtx)
	if !tk.Next().IsZero() {
		t.Fatal("Next not zero after Stop")
	}
}

func TestTickerApply(t *testing.T) {
	t.Parallel()
	tk, err := New(Config{Schedule: "1h"}, func(context.Context) {}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if err := tk.Apply(Config{Schedule: "nonsense"}); err == nil {
		t.Fatal("expected error")
	}
	if err := tk.Apply(Config{Schedule: "*/5 * * * *"}); err != nil {
		t.Fatal(err)
	}
	if tk.Spec().Kind != KindCron {
		t.Fatalf("spec = %s", tk.Spec())
	}
	if err := tk.Apply(Config{Schedule: "1h", Timezone: "Mars/Olympus"}); err == nil {
		t.Fatal("expected timezone error")
	}
}
