// Package stats aggregates per-process lifecycle samples into
// fleet-level statistics for the exit summary.
package stats

import (
	"sync"
	"time"

	"github.com/influxdata/tdigest"
)

// UptimeTracker records per-process uptime samples and exposes
// percentile estimates over the whole fleet.
//
// Samples are merged into a t-digest so memory stays bounded no matter
// how many restarts the fleet accumulates.
type UptimeTracker struct {
	mu     sync.Mutex
	digest *tdigest.TDigest

	count int64
	min   time.Duration
	max   time.Duration
	total time.Duration
}

// NewUptimeTracker creates an empty tracker.
func NewUptimeTracker() *UptimeTracker {
	return &UptimeTracker{
		digest: tdigest.NewWithCompression(100), // ~100 centroids, ~10KB
	}
}

// Record adds one process uptime sample. Negative samples are dropped.
func (u *UptimeTracker) Record(uptime time.Duration) {
	if uptime < 0 {
		return
	}

	u.mu.Lock()
	defer u.mu.Unlock()

	u.digest.Add(uptime.Seconds(), 1)
	if u.count == 0 || uptime < u.min {
		u.min = uptime
	}
	if uptime > u.max {
		u.max = uptime
	}
	u.count++
	u.total += uptime
}

// Count returns the number of samples recorded.
func (u *UptimeTracker) Count() int64 {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.count
}

// Quantile returns the uptime at quantile q in [0, 1], or 0 when no
// samples have been recorded.
func (u *UptimeTracker) Quantile(q float64) time.Duration {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.count == 0 {
		return 0
	}
	return time.Duration(u.digest.Quantile(q) * float64(time.Second))
}

// P50 returns the median uptime.
func (u *UptimeTracker) P50() time.Duration { return u.Quantile(0.50) }

// P95 returns the 95th percentile uptime.
func (u *UptimeTracker) P95() time.Duration { return u.Quantile(0.95) }

// P99 returns the 99th percentile uptime.
func (u *UptimeTracker) P99() time.Duration { return u.Quantile(0.99) }

// Min returns the shortest recorded uptime.
func (u *UptimeTracker) Min() time.Duration {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.min
}

// Max returns the longest recorded uptime.
func (u *UptimeTracker) Max() time.Duration {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.max
}

// Average returns the mean uptime, or 0 when no samples exist.
func (u *UptimeTracker) Average() time.Duration {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.count == 0 {
		return 0
	}
	return u.total / time.Duration(u.count)
}
