package timeseries

import (
	"sync"
	"testing"
	"time"
)

// fakeClock is a deterministic clock for tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestRateTracker_Empty(t *testing.T) {
	tracker := NewRateTrackerWithClock(newFakeClock())

	stats := tracker.GetStats()
	if stats.Total != 0 {
		t.Errorf("Total = %d, want 0", stats.Total)
	}
	if stats.Avg30s != 0 {
		t.Errorf("Avg30s = %f, want 0", stats.Avg30s)
	}
}

func TestRateTracker_Add(t *testing.T) {
	tracker := NewRateTracker()

	tracker.Add(100)
	tracker.Add(50)
	tracker.Add(-10) // ignored
	tracker.Add(0)   // ignored

	if got := tracker.GetStats().Total; got != 150 {
		t.Errorf("Total = %d, want 150", got)
	}
}

func TestRateTracker_SteadyRate(t *testing.T) {
	clock := newFakeClock()
	tracker := NewRateTrackerWithClock(clock)

	// 1000 units per second for 60 seconds.
	for i := 0; i < 60; i++ {
		clock.Advance(time.Second)
		tracker.Add(1000)
		tracker.RecordSample()
	}

	stats := tracker.GetStats()
	if stats.Total != 60000 {
		t.Fatalf("Total = %d, want 60000", stats.Total)
	}

	for name, avg := range map[string]float64{
		"Avg30s":     stats.Avg30s,
		"Avg60s":     stats.Avg60s,
		"AvgOverall": stats.AvgOverall,
	} {
		if avg < 990 || avg > 1010 {
			t.Errorf("%s = %f, want ~1000", name, avg)
		}
	}
}

func TestRateTracker_RateChange(t *testing.T) {
	clock := newFakeClock()
	tracker := NewRateTrackerWithClock(clock)

	// 30 seconds at 100/s, then 30 seconds at 1000/s.
	for i := 0; i < 30; i++ {
		clock.Advance(time.Second)
		tracker.Add(100)
		tracker.RecordSample()
	}
	for i := 0; i < 30; i++ {
		clock.Advance(time.Second)
		tracker.Add(1000)
		tracker.RecordSample()
	}

	stats := tracker.GetStats()

	// The 30s window only sees the fast phase.
	if stats.Avg30s < 950 || stats.Avg30s > 1050 {
		t.Errorf("Avg30s = %f, want ~1000", stats.Avg30s)
	}
	// The 60s window blends both phases.
	if stats.Avg60s < 500 || stats.Avg60s > 600 {
		t.Errorf("Avg60s = %f, want ~550", stats.Avg60s)
	}
}

func TestRateTracker_RingBufferWraps(t *testing.T) {
	clock := newFakeClock()
	tracker := NewRateTrackerWithClock(clock)

	// More samples than the ring holds.
	for i := 0; i < ringBufferSize+100; i++ {
		clock.Advance(time.Second)
		tracker.Add(10)
		tracker.RecordSample()
	}

	if got := tracker.SampleCount(); got != ringBufferSize {
		t.Errorf("SampleCount = %d, want %d", got, ringBufferSize)
	}

	stats := tracker.GetStats()
	if stats.Avg300s < 9 || stats.Avg300s > 11 {
		t.Errorf("Avg300s = %f, want ~10", stats.Avg300s)
	}
}

func TestRateTracker_Reset(t *testing.T) {
	clock := newFakeClock()
	tracker := NewRateTrackerWithClock(clock)

	clock.Advance(time.Second)
	tracker.Add(500)
	tracker.RecordSample()

	tracker.Reset()

	stats := tracker.GetStats()
	if stats.Total != 0 {
		t.Errorf("Total after reset = %d, want 0", stats.Total)
	}
	if tracker.SampleCount() != 1 {
		t.Errorf("SampleCount after reset = %d, want 1", tracker.SampleCount())
	}
}

func TestRateTracker_ConcurrentAdd(t *testing.T) {
	tracker := NewRateTracker()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				tracker.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := tracker.GetStats().Total; got != 10000 {
		t.Errorf("Total = %d, want 10000", got)
	}
}
