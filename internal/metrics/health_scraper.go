package metrics

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/influxdata/tdigest"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

// HealthTarget names one managed process metrics endpoint to scrape.
type HealthTarget struct {
	Process string
	URL     string
}

// ProcessHealth contains scraped metrics from one managed process.
// Relies on the standard process_* metrics every Prometheus client
// library exports.
type ProcessHealth struct {
	Process string

	CPUPercent float64 // instantaneous, from process_cpu_seconds_total rate
	RSSBytes   int64
	OpenFDs    int64

	// Rolling window CPU percentiles
	CPUP50           float64
	CPUMax           float64
	CPUWindowSeconds int

	LastUpdate time.Time
	Healthy    bool
	Error      string
}

// healthState holds per-target scrape state.
type healthState struct {
	latest ProcessHealth

	lastCPUSeconds float64
	lastCPUTime    time.Time

	cpuDigest  *tdigest.TDigest
	cpuSamples []healthSample
}

// healthSample is one CPU rate sample with timestamp.
type healthSample struct {
	value float64
	time  time.Time
}

// HealthScraper periodically scrapes the metrics endpoints of managed
// processes and derives CPU and memory health from the standard
// process_* series.
type HealthScraper struct {
	targets    []HealthTarget
	interval   time.Duration
	windowSize time.Duration
	logger     *slog.Logger
	httpClient *http.Client

	collector *Collector // optional, republishes per-process gauges

	mu    sync.Mutex
	state map[string]*healthState
}

// NewHealthScraper creates a new process health scraper.
// Returns nil if there are no targets (feature disabled).
func NewHealthScraper(targets []HealthTarget, interval, windowSize time.Duration, collector *Collector, logger *slog.Logger) *HealthScraper {
	if len(targets) == 0 {
		return nil // Feature disabled
	}

	if windowSize < 10*time.Second {
		windowSize = 10 * time.Second
	}
	if windowSize > 300*time.Second {
		windowSize = 300 * time.Second
	}

	state := make(map[string]*healthState, len(targets))
	for _, t := range targets {
		state[t.Process] = &healthState{
			latest: ProcessHealth{
				Process: t.Process,
				Healthy: false,
				Error:   "not yet scraped",
			},
			cpuDigest: tdigest.NewWithCompression(100),
		}
	}

	return &HealthScraper{
		targets:    targets,
		interval:   interval,
		windowSize: windowSize,
		logger:     logger,
		collector:  collector,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
		state: state,
	}
}

// Run starts the scrape loop. Blocks until the context is cancelled.
func (s *HealthScraper) Run(ctx context.Context) {
	if s == nil {
		return // Feature disabled
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.scrapeAll()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.scrapeAll()
		}
	}
}

// Health returns the current health for one process.
func (s *HealthScraper) Health(proc string) (ProcessHealth, bool) {
	if s == nil {
		return ProcessHealth{}, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.state[proc]
	if !ok {
		return ProcessHealth{}, false
	}
	return st.latest, true
}

// AllHealth returns the current health of every target.
func (s *HealthScraper) AllHealth() []ProcessHealth {
	if s == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]ProcessHealth, 0, len(s.targets))
	for _, t := range s.targets {
		out = append(out, s.state[t.Process].latest)
	}
	return out
}

// scrapeAll scrapes every target once.
func (s *HealthScraper) scrapeAll() {
	for _, t := range s.targets {
		health := s.scrapeTarget(t)

		s.mu.Lock()
		s.state[t.Process].latest = health
		s.mu.Unlock()

		if s.collector != nil && health.Healthy {
			s.collector.RecordHealth(t.Process, health.CPUPercent, health.RSSBytes)
		}
	}
}

// scrapeTarget scrapes one endpoint and derives health numbers.
func (s *HealthScraper) scrapeTarget(t HealthTarget) ProcessHealth {
	now := time.Now()
	health := ProcessHealth{
		Process:          t.Process,
		LastUpdate:       now,
		CPUWindowSeconds: int(s.windowSize.Seconds()),
	}

	families, err := s.fetch(t.URL)
	if err != nil {
		health.Error = err.Error()
		if s.logger != nil {
			s.logger.Debug("health_scrape_error", "process", t.Process, "error", err)
		}
		return health
	}

	health.RSSBytes = int64(gaugeValue(families, "process_resident_memory_bytes"))
	health.OpenFDs = int64(gaugeValue(families, "process_open_fds"))

	cpuSeconds := counterValue(families, "process_cpu_seconds_total")

	s.mu.Lock()
	st := s.state[t.Process]
	if !st.lastCPUTime.IsZero() {
		deltaTime := now.Sub(st.lastCPUTime).Seconds()
		deltaCPU := cpuSeconds - st.lastCPUSeconds
		if deltaTime > 0 && deltaCPU >= 0 {
			health.CPUPercent = deltaCPU / deltaTime * 100

			st.cpuDigest.Add(health.CPUPercent, 1)
			st.cpuSamples = append(st.cpuSamples, healthSample{value: health.CPUPercent, time: now})
			s.cleanupWindow(st, now)

			if len(st.cpuSamples) > 0 {
				health.CPUP50 = st.cpuDigest.Quantile(0.50)
				health.CPUMax = st.cpuSamples[0].value
				for _, sample := range st.cpuSamples {
					if sample.value > health.CPUMax {
						health.CPUMax = sample.value
					}
				}
			}
		}
	}
	st.lastCPUSeconds = cpuSeconds
	st.lastCPUTime = now
	s.mu.Unlock()

	health.Healthy = true
	return health
}

// fetch downloads and parses one Prometheus text exposition.
func (s *HealthScraper) fetch(url string) (map[string]*dto.MetricFamily, error) {
	resp, err := s.httpClient.Get(url)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http status %d", resp.StatusCode)
	}

	decoder := expfmt.NewDecoder(resp.Body, expfmt.FmtText)
	families := make(map[string]*dto.MetricFamily)

	for {
		var mf dto.MetricFamily
		if err := decoder.Decode(&mf); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("decode error: %w", err)
		}
		families[mf.GetName()] = &mf
	}

	return families, nil
}

// cleanupWindow drops samples older than the window and rebuilds the
// digest when any expired. Caller holds s.mu.
func (s *HealthScraper) cleanupWindow(st *healthState, now time.Time) {
	cutoff := now.Add(-s.windowSize)

	valid := make([]healthSample, 0, len(st.cpuSamples))
	expired := 0
	for _, sample := range st.cpuSamples {
		if sample.time.After(cutoff) {
			valid = append(valid, sample)
		} else {
			expired++
		}
	}

	if expired > 0 {
		st.cpuDigest = tdigest.NewWithCompression(100)
		for _, sample := range valid {
			st.cpuDigest.Add(sample.value, 1)
		}
	}

	st.cpuSamples = valid
}

// gaugeValue returns the first gauge value of a family, or 0.
func gaugeValue(families map[string]*dto.MetricFamily, name string) float64 {
	mf, ok := families[name]
	if !ok || len(mf.GetMetric()) == 0 {
		return 0
	}
	return mf.GetMetric()[0].GetGauge().GetValue()
}

// counterValue returns the summed counter value of a family, or 0.
func counterValue(families map[string]*dto.MetricFamily, name string) float64 {
	mf, ok := families[name]
	if !ok {
		return 0
	}
	var total float64
	for _, m := range mf.GetMetric() {
		total += m.GetCounter().GetValue()
	}
	return total
}
