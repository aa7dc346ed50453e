package rescache

import (
	"context"
	"sync"
	"time"
)

// Monitor defaults.
const (
	DefaultSampleInterval = 30 * time.Second
	DefaultHistory        = 120
	DefaultHighWater      = 0.9
	DefaultLowWater       = 0.75
	DefaultMaxAlerts      = 32
)

// Tier labels used in samples and alerts.
const (
	TierMemory     = "memory"
	TierPersistent = "persistent"
)

// StatsSource is anything that can report cache stats; Cache satisfies it.
type StatsSource interface {
	Stats(ctx context.Context) Stats
}

// Sample is one observation of the cache.
type Sample struct {
	Time     time.Time
	HitRatio float64
	L1Bytes  int64
	L2Bytes  int64
	L1Usage  float64 // L1Bytes / L1 max, 0 when unbounded
	L2Usage  float64
}

// Alert records a tier crossing its high-water usage threshold. An alert
// fires once per crossing: it re-arms only after usage drops below the
// low-water mark, so a tier sitting above the threshold does not re-fire
// every sample.
type Alert struct {
	Time      time.Time
	Tier      string
	Usage     float64
	Threshold float64
}

// MonitorSnapshot is an immutable diagnostic view.
type MonitorSnapshot struct {
	Stats   Stats
	Samples []Sample // oldest first
	Alerts  []Alert  // oldest first
}

type MonitorOptions struct {
	Interval  time.Duration // default 30s
	History   int           // ring capacity, default 120 samples
	HighWater float64       // default 0.9
	LowWater  float64       // default 0.75; must be below HighWater
	MaxAlerts int           // alert history bound, default 32
	Logger    Logger
}

// Monitor samples a StatsSource on a fixed interval into a bounded ring,
// raising hysteresis alerts on capacity pressure.
type Monitor struct {
	src  StatsSource
	opts MonitorOptions
	log  Logger

	mu      sync.Mutex
	samples []Sample // ring buffer
	head    int      // index of the oldest sample
	count   int
	alerts  []Alert
	armed   map[string]bool

	stopCh    chan struct{}
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
}

func NewMonitor(src StatsSource, opts MonitorOptions) *Monitor {
	opts.Interval = coalesce(opts.Interval, DefaultSampleInterval)
	opts.History = coalesce(opts.History, DefaultHistory)
	opts.HighWater = coalesce(opts.HighWater, DefaultHighWater)
	opts.LowWater = coalesce(opts.LowWater, DefaultLowWater)
	opts.MaxAlerts = coalesce(opts.MaxAlerts, DefaultMaxAlerts)

	return &Monitor{
		src:     src,
		opts:    opts,
		log:     coalesce[Logger](opts.Logger, NopLogger{}),
		samples: make([]Sample, opts.History),
		armed:   map[string]bool{TierMemory: true, TierPersistent: true},
		stopCh:  make(chan struct{}),
	}
}

// Start launches the sampling loop. Safe to call once; Stop ends it.
func (m *Monitor) Start() {
	m.startOnce.Do(func() {
		m.wg.Add(1)
		go m.loop()
	})
}

func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
		m.wg.Wait()
	})
}

func (m *Monitor) loop() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.opts.Interval)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			m.sample(now)
		case <-m.stopCh:
			return
		}
	}
}

// sample takes one observation. Exposed to the loop and to tests.
func (m *Monitor) sample(now time.Time) {
	st := m.src.Stats(context.Background())

	s := Sample{
		Time:     now,
		HitRatio: st.HitRatio(),
		L1Bytes:  st.L1.SizeBytes,
		L2Bytes:  st.L2.SizeBytes,
		L1Usage:  usage(st.L1.SizeBytes, st.L1.MaxSizeBytes),
		L2Usage:  usage(st.L2.SizeBytes, st.L2.MaxSizeBytes),
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.push(s)
	m.checkLocked(now, TierMemory, s.L1Usage)
	m.checkLocked(now, TierPersistent, s.L2Usage)
}

func usage(size, max int64) float64 {
	if max <= 0 {
		return 0
	}
	return float64(size) / float64(max)
}

// push writes into the ring, dropping the oldest sample at capacity.
func (m *Monitor) push(s Sample) {
	if m.count < len(m.samples) {
		m.samples[(m.head+m.count)%len(m.samples)] = s
		m.count++
		return
	}
	m.samples[m.head] = s
	m.head = (m.head + 1) % len(m.samples)
}

func (m *Monitor) checkLocked(now time.Time, tier string, u float64) {
	switch {
	case u >= m.opts.HighWater && m.armed[tier]:
		m.armed[tier] = false
		a := Alert{Time: now, Tier: tier, Usage: u, Threshold: m.opts.HighWater}
		m.alerts = append(m.alerts, a)
		if len(m.alerts) > m.opts.MaxAlerts {
			m.alerts = m.alerts[len(m.alerts)-m.opts.MaxAlerts:]
		}
		m.log.Warn("cache tier above high-water mark",
			Fields{"tier": tier, "usage": u, "threshold": m.opts.HighWater})
	case u <= m.opts.LowWater && !m.armed[tier]:
		m.armed[tier] = true
	}
}

// Snapshot returns the current stats plus copies of the recent sample and
// alert history, oldest first.
func (m *Monitor) Snapshot() MonitorSnapshot {
	st := m.src.Stats(context.Background())

	m.mu.Lock()
	defer m.mu.Unlock()

	samples := make([]Sample, m.count)
	for i := 0; i < m.count; i++ {
		samples[i] = m.samples[(m.head+i)%len(m.samples)]
	}
	alerts := make([]Alert, len(m.alerts))
	copy(alerts, m.alerts)

	return MonitorSnapshot{Stats: st, Samples: samples, Alerts: alerts}
}
