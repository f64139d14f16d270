package supervisor

import (
	"hash/fnv"
	"math"
	"math/rand"
	"time"
)

// BackoffConfig holds the configuration for exponential restart backoff.
type BackoffConfig struct {
	Initial    time.Duration // Initial delay (default: 250ms)
	Max        time.Duration // Maximum delay (default: 30s)
	Multiplier float64       // Growth per attempt (default: 1.7)
	JitterPct  float64       // Jitter as a fraction of the delay (default: 0.4 = ±20%)
}

// DefaultBackoffConfig returns sensible defaults for restart backoff.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		Initial:    250 * time.Millisecond,
		Max:        30 * time.Second,
		Multiplier: 1.7,
		JitterPct:  0.4,
	}
}

// Backoff calculates exponential backoff delays with jitter. Each
// instance is tied to one process identity so jitter is deterministic
// per process across a run.
type Backoff struct {
	config   BackoffConfig
	attempts int
	rng      *rand.Rand
}

// NewBackoff creates a Backoff calculator for a specific process. The
// identity and configSeed together seed the jitter.
func NewBackoff(proc string, configSeed int64, cfg BackoffConfig) *Backoff {
	return &Backoff{
		config: cfg,
		rng:    rand.New(rand.NewSource(seedFor(proc, configSeed))),
	}
}

// seedFor derives a deterministic seed from a process identity.
func seedFor(proc string, configSeed int64) int64 {
	h := fnv.New64a()
	h.Write([]byte(proc))
	return int64(h.Sum64()) ^ configSeed
}

// Next returns the next backoff delay and increments the attempt counter.
func (b *Backoff) Next() time.Duration {
	delay := b.Calculate()
	b.attempts++
	return delay
}

// Calculate returns the current delay without incrementing attempts.
func (b *Backoff) Calculate() time.Duration {
	delay := float64(b.config.Initial) * math.Pow(b.config.Multiplier, float64(b.attempts))

	if delay > float64(b.config.Max) {
		delay = float64(b.config.Max)
	}

	// ±(JitterPct/2) of the delay.
	if b.config.JitterPct > 0 {
		jitterRange := delay * b.config.JitterPct
		delay += jitterRange*b.rng.Float64() - jitterRange/2
	}

	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

// Reset resets the attempt counter to zero.
func (b *Backoff) Reset() {
	b.attempts = 0
}

// Attempts returns the current attempt count.
func (b *Backoff) Attempts() int {
	return b.attempts
}

// SetAttempts sets the attempt counter.
func (b *Backoff) SetAttempts(n int) {
	b.attempts = n
}

// BackoffResetThreshold is the minimum uptime before backoff resets.
// A process that stayed up this long is considered stable again.
const BackoffResetThreshold = 30 * time.Second

// ShouldReset determines if backoff should reset after an exit.
func ShouldReset(uptime time.Duration, exitCode int) bool {
	if uptime >= BackoffResetThreshold {
		return true
	}
	// Clean exits are not crash loops.
	return exitCode == 0
}
