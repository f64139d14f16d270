package supervisor

import (
	"math/rand"
	"time"
)

// JitterSource provides deterministic, per-process jitter values.
// A per-process seed keeps relative timing offsets stable across
// restarts, preventing processes from synchronizing.
type JitterSource struct {
	configSeed int64
}

// NewJitterSource creates a jitter source with the given config seed.
func NewJitterSource(configSeed int64) *JitterSource {
	return &JitterSource{configSeed: configSeed}
}

// NewJitterSourceFromTime creates a jitter source seeded from the clock.
func NewJitterSourceFromTime() *JitterSource {
	return NewJitterSource(time.Now().UnixNano())
}

// ForProcess returns a generator seeded for a specific process identity.
// The same identity always produces the same sequence.
func (j *JitterSource) ForProcess(proc string) *rand.Rand {
	return rand.New(rand.NewSource(seedFor(proc, j.configSeed)))
}

// ProcessJitter returns a jitter duration for a process within [0, maxJitter).
func (j *JitterSource) ProcessJitter(proc string, maxJitter time.Duration) time.Duration {
	if maxJitter <= 0 {
		return 0
	}
	return time.Duration(j.ForProcess(proc).Int63n(int64(maxJitter)))
}
