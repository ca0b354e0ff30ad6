package metrics

import (
	"runtime"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// Metrics holds counters for image load operations. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	StartTime time.Time

	attaches      atomic.Int64
	syncHits      atomic.Int64
	fetches       atomic.Int64
	cacheServed   atomic.Int64
	loaded        atomic.Int64
	failures      atomic.Int64
	cancellations atomic.Int64
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Attaches      int64
	SyncHits      int64
	Fetches       int64
	CacheServed   int64
	Loaded        int64
	Failures      int64
	Cancellations int64
}

// NewMetrics creates a new metrics instance
func NewMetrics() *Metrics {
	return &Metrics{
		StartTime: time.Now(),
	}
}

// RecordAttach counts a lifecycle attach.
func (m *Metrics) RecordAttach() {
	if m != nil {
		m.attaches.Add(1)
	}
}

// RecordSyncHit counts an attach satisfied synchronously from the cache.
func (m *Metrics) RecordSyncHit() {
	if m != nil {
		m.syncHits.Add(1)
		m.loaded.Add(1)
	}
}

// RecordFetch counts a completed fetch and whether the cache served it.
func (m *Metrics) RecordFetch(fromCache bool) {
	if m == nil {
		return
	}
	m.fetches.Add(1)
	if fromCache {
		m.cacheServed.Add(1)
	}
}

// RecordLoaded counts an asynchronous load that produced an image.
func (m *Metrics) RecordLoaded() {
	if m != nil {
		m.loaded.Add(1)
	}
}

// RecordFailure counts a load that ended in the failed phase.
func (m *Metrics) RecordFailure() {
	if m != nil {
		m.failures.Add(1)
	}
}

// RecordCancellation counts a load reverted by cancellation.
func (m *Metrics) RecordCancellation() {
	if m != nil {
		m.cancellations.Add(1)
	}
}

// Snapshot returns the current counter values.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	return Snapshot{
		Attaches:      m.attaches.Load(),
		SyncHits:      m.syncHits.Load(),
		Fetches:       m.fetches.Load(),
		CacheServed:   m.cacheServed.Load(),
		Loaded:        m.loaded.Load(),
		Failures:      m.failures.Load(),
		Cancellations: m.cancellations.Load(),
	}
}

// LogSummary logs the counters and current resource usage
func (m *Metrics) LogSummary(logger logrus.FieldLogger) {
	if m == nil {
		return
	}
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	s := m.Snapshot()
	logger.WithFields(logrus.Fields{
		"uptime":        time.Since(m.StartTime).String(),
		"attaches":      s.Attaches,
		"sync_hits":     s.SyncHits,
		"fetches":       s.Fetches,
		"cache_served":  s.CacheServed,
		"loaded":        s.Loaded,
		"failures":      s.Failures,
		"cancellations": s.Cancellations,
		"memory_mb":     float64(mem.Alloc) / 1024 / 1024,
	}).Info("📊 load summary")
}

// LogStartupBanner logs a startup banner with system info
func LogStartupBanner(logger logrus.FieldLogger, version string) {
	logger.WithFields(logrus.Fields{
		"version": version,
		"go":      runtime.Version(),
		"arch":    runtime.GOOS + "/" + runtime.GOARCH,
		"cpus":    runtime.NumCPU(),
	}).Debug("🚀 asyncimage")
}

// paces grade an elapsed time by the first bound it falls under.
var paces = []struct {
	under time.Duration
	label string
}{
	{time.Second, "fast"},
	{5 * time.Second, "normal"},
	{30 * time.Second, "slow"},
}

func pace(d time.Duration) string {
	for _, p := range paces {
		if d < p.under {
			return p.label
		}
	}
	return "stalled"
}

// Timer measures one operation and logs its elapsed time on Stop.
type Timer struct {
	log   logrus.FieldLogger
	start time.Time
}

func NewTimer(logger logrus.FieldLogger, operation string) *Timer {
	log := logger.WithField("op", operation)
	log.Debug("⏱️  timer started")
	return &Timer{log: log, start: time.Now()}
}

// Stop returns the time elapsed since NewTimer.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	t.log.WithFields(logrus.Fields{
		"elapsed": elapsed,
		"pace":    pace(elapsed),
	}).Debug("⏱️  timer stopped")
	return elapsed
}
