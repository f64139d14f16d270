package logging

import (
	"bufio"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/procfleet/go-proc-fleet/internal/timeseries"
)

const (
	// MaxLineLength is the maximum length of a single output line before
	// truncation.
	MaxLineLength = 4096

	// MaxBufferedLines is the number of recent lines kept per stream for
	// the exit summary.
	MaxBufferedLines = 100
)

// OutputHandler forwards one output stream (stdout or stderr) of a
// managed process into the structured log, keeping a ring of recent
// lines for the exit summary.
type OutputHandler struct {
	proc    string // process identity
	stream  string // "stdout" or "stderr"
	logger  *slog.Logger
	verbose bool
	rate    *timeseries.RateTracker

	buffer []string
	bufIdx int
	mu     sync.Mutex
}

// NewOutputHandler creates a handler for one stream of a managed process.
func NewOutputHandler(proc, stream string, logger *slog.Logger, verbose bool) *OutputHandler {
	return &OutputHandler{
		proc:    proc,
		stream:  stream,
		logger:  logger,
		verbose: verbose,
		buffer:  make([]string, MaxBufferedLines),
	}
}

// SetRateTracker makes the handler feed output volume into tracker.
// Several handlers may share one tracker.
func (h *OutputHandler) SetRateTracker(tracker *timeseries.RateTracker) *OutputHandler {
	h.rate = tracker
	return h
}

// HandleReader reads r line by line until EOF. Run it in a goroutine
// with the pipe end of the child stream.
func (h *OutputHandler) HandleReader(r io.Reader) {
	scanner := bufio.NewScanner(r)
	buf := make([]byte, MaxLineLength)
	scanner.Buffer(buf, MaxLineLength)

	for scanner.Scan() {
		h.HandleLine(scanner.Text())
	}
}

// HandleLine buffers and logs a single output line.
func (h *OutputHandler) HandleLine(line string) {
	if len(line) > MaxLineLength {
		line = line[:MaxLineLength] + "...(truncated)"
	}

	if h.rate != nil {
		// Line plus the stripped newline.
		h.rate.Add(int64(len(line)) + 1)
	}

	h.mu.Lock()
	h.buffer[h.bufIdx] = line
	h.bufIdx = (h.bufIdx + 1) % MaxBufferedLines
	h.mu.Unlock()

	level := h.classifyLine(line)
	if !h.verbose && level == slog.LevelDebug {
		return
	}

	h.logger.Log(nil, level, "process_output",
		"process", h.proc,
		"stream", h.stream,
		"line", line,
	)
}

// classifyLine maps an output line to a log level. Managed processes are
// typically JVM-hosted, so the patterns cover java.util.logging and
// logback/log4j level markers plus common fatal conditions.
func (h *OutputHandler) classifyLine(line string) slog.Level {
	lower := strings.ToLower(line)

	if strings.Contains(lower, "outofmemoryerror") ||
		strings.Contains(lower, "fatal") ||
		strings.Contains(lower, "exception") ||
		strings.Contains(lower, "severe:") ||
		strings.Contains(lower, " error ") ||
		strings.Contains(lower, "[error]") {
		return slog.LevelWarn
	}

	if strings.Contains(lower, " warn ") ||
		strings.Contains(lower, "[warn]") ||
		strings.Contains(lower, "warning:") {
		return slog.LevelWarn
	}

	return slog.LevelDebug
}

// RecentLines returns the n most recent lines, oldest first.
func (h *OutputHandler) RecentLines(n int) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	if n > MaxBufferedLines {
		n = MaxBufferedLines
	}

	lines := make([]string, 0, n)
	for i := 0; i < n; i++ {
		idx := (h.bufIdx - n + i + MaxBufferedLines) % MaxBufferedLines
		if h.buffer[idx] != "" {
			lines = append(lines, h.buffer[idx])
		}
	}
	return lines
}

// ErrorPatterns are conditions counted for the exit summary.
var ErrorPatterns = []string{
	"OutOfMemoryError",
	"StackOverflowError",
	"ClassNotFoundException",
	"NoClassDefFoundError",
	"Address already in use",
	"Connection refused",
	"FATAL",
}

// CountErrors counts occurrences of known error patterns in the buffer.
func (h *OutputHandler) CountErrors() map[string]int {
	h.mu.Lock()
	defer h.mu.Unlock()

	counts := make(map[string]int)
	for _, line := range h.buffer {
		if line == "" {
			continue
		}
		for _, pattern := range ErrorPatterns {
			if strings.Contains(line, pattern) {
				counts[pattern]++
			}
		}
	}
	return counts
}
