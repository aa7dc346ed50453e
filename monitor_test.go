package rescache

import (
	"context"
	"testing"
	"time"
)

// stubSource reports whatever Stats the test sets.
type stubSource struct {
	stats Stats
}

func (s *stubSource) Stats(context.Context) Stats { return s.stats }

func statsWithL1Usage(size, max int64) Stats {
	return Stats{L1: TierStats{SizeBytes: size, MaxSizeBytes: max}}
}

func TestMonitorAlertHysteresis(t *testing.T) {
	src := &stubSource{}
	m := NewMonitor(src, MonitorOptions{HighWater: 0.9, LowWater: 0.75})
	now := time.Now()

	// Below the high-water mark: nothing fires.
	src.stats = statsWithL1Usage(50, 100)
	m.sample(now)
	if snap := m.Snapshot(); len(snap.Alerts) != 0 {
		t.Fatalf("alerts below threshold: %+v", snap.Alerts)
	}

	// First crossing fires exactly one alert.
	src.stats = statsWithL1Usage(95, 100)
	m.sample(now.Add(time.Second))
	snap := m.Snapshot()
	if len(snap.Alerts) != 1 {
		t.Fatalf("alerts after crossing = %d, want 1", len(snap.Alerts))
	}
	if a := snap.Alerts[0]; a.Tier != TierMemory || a.Usage != 0.95 {
		t.Fatalf("unexpected alert: %+v", a)
	}

	// Staying high does not re-fire.
	m.sample(now.Add(2 * time.Second))
	m.sample(now.Add(3 * time.Second))
	if snap := m.Snapshot(); len(snap.Alerts) != 1 {
		t.Fatalf("alert re-fired while high: %d", len(snap.Alerts))
	}

	// Dipping to 0.8 is between the marks: still disarmed.
	src.stats = statsWithL1Usage(80, 100)
	m.sample(now.Add(4 * time.Second))
	src.stats = statsWithL1Usage(95, 100)
	m.sample(now.Add(5 * time.Second))
	if snap := m.Snapshot(); len(snap.Alerts) != 1 {
		t.Fatalf("alert re-fired without dropping below low water: %d", len(snap.Alerts))
	}

	// Below low water re-arms; the next crossing fires again.
	src.stats = statsWithL1Usage(50, 100)
	m.sample(now.Add(6 * time.Second))
	src.stats = statsWithL1Usage(95, 100)
	m.sample(now.Add(7 * time.Second))
	if snap := m.Snapshot(); len(snap.Alerts) != 2 {
		t.Fatalf("alerts after re-arm = %d, want 2", len(snap.Alerts))
	}
}

func TestMonitorUnboundedTierNeverAlerts(t *testing.T) {
	src := &stubSource{stats: statsWithL1Usage(1 << 30, 0)}
	m := NewMonitor(src, MonitorOptions{})

	m.sample(time.Now())
	if snap := m.Snapshot(); len(snap.Alerts) != 0 {
		t.Fatalf("unbounded tier alerted: %+v", snap.Alerts)
	}
}

func TestMonitorRingDropsOldestFirst(t *testing.T) {
	src := &stubSource{}
	m := NewMonitor(src, MonitorOptions{History: 3})
	base := time.Unix(1000, 0)

	for i := 0; i < 5; i++ {
		src.stats = statsWithL1Usage(int64(i), 100)
		m.sample(base.Add(time.Duration(i) * time.Second))
	}

	snap := m.Snapshot()
	if len(snap.Samples) != 3 {
		t.Fatalf("samples = %d, want 3", len(snap.Samples))
	}
	for i, s := range snap.Samples {
		want := base.Add(time.Duration(i+2) * time.Second)
		if !s.Time.Equal(want) {
			t.Fatalf("sample %d at %v, want %v", i, s.Time, want)
		}
	}
	if snap.Samples[0].L1Bytes != 2 || snap.Samples[2].L1Bytes != 4 {
		t.Fatalf("ring lost order: %+v", snap.Samples)
	}
}

func TestMonitorAlertHistoryBounded(t *testing.T) {
	src := &stubSource{}
	m := NewMonitor(src, MonitorOptions{MaxAlerts: 2})
	now := time.Now()

	// Oscillate across both marks to fire repeatedly.
	for i := 0; i < 4; i++ {
		src.stats = statsWithL1Usage(95, 100)
		m.sample(now.Add(time.Duration(2*i) * time.Second))
		src.stats = statsWithL1Usage(10, 100)
		m.sample(now.Add(time.Duration(2*i+1) * time.Second))
	}

	snap := m.Snapshot()
	if len(snap.Alerts) != 2 {
		t.Fatalf("alert history = %d, want 2", len(snap.Alerts))
	}
	// The retained alerts are the newest.
	if !snap.Alerts[1].Time.After(snap.Alerts[0].Time) {
		t.Fatalf("alerts out of order: %+v", snap.Alerts)
	}
}

func TestMonitorStartStop(t *testing.T) {
	src := &stubSource{stats: statsWithL1Usage(1, 100)}
	m := NewMonitor(src, MonitorOptions{Interval: 5 * time.Millisecond})

	m.Start()
	time.Sleep(30 * time.Millisecond)
	m.Stop()
	m.Stop() // idempotent

	snap := m.Snapshot()
	if len(snap.Samples) == 0 {
		t.Fatal("loop took no samples")
	}
	n := len(snap.Samples)
	time.Sleep(20 * time.Millisecond)
	if got := len(m.Snapshot().Samples); got != n {
		t.Fatalf("sampling continued after Stop: %d -> %d", n, got)
	}
}

func TestMonitorSamplesCacheStats(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, func(o *Options) { o.MemoryMaxBytes = 100 })
	defer c.Close(ctx)

	_ = c.Set(ctx, "b1", "r", make([]byte, 40), "", nil)
	_, _ = c.Get(ctx, "b1", "r")

	m := NewMonitor(c, MonitorOptions{})
	m.sample(time.Now())

	snap := m.Snapshot()
	if len(snap.Samples) != 1 {
		t.Fatalf("samples = %d, want 1", len(snap.Samples))
	}
	s := snap.Samples[0]
	if s.L1Bytes != 40 || s.L1Usage != 0.4 {
		t.Fatalf("sample = %+v, want 40 bytes at 0.4 usage", s)
	}
	if s.HitRatio != 1 {
		t.Fatalf("hit ratio = %v, want 1", s.HitRatio)
	}
}
