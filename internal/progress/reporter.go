package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// Options configures the progress reporter.
type Options struct {
	// Program is the program id being fetched (for display).
	Program string

	// ChunkSize is the configured chunk size (for display).
	ChunkSize int

	// Output is where to write progress output.
	// Default: os.Stderr
	Output io.Writer

	// Now returns the current time. Default: time.Now
	Now func() time.Time
}

// Reporter outputs human-readable progress information.
type Reporter struct {
	opts Options

	mu              sync.Mutex
	totalChunks     atomic.Int32
	completedChunks atomic.Int32
	failedChunks    atomic.Int32
	products        atomic.Int64
	startTime       time.Time
	stopped         bool
}

// NewReporter creates a new progress reporter.
func NewReporter(opts Options) *Reporter {
	if opts.Output == nil {
		opts.Output = os.Stderr
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Reporter{opts: opts}
}

// Start prints the header and starts the elapsed-time clock.
func (r *Reporter) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.startTime = r.opts.Now()
	fmt.Fprintf(r.opts.Output, "[templates] Fetching products for program %s\n", r.opts.Program)
}

// Stop prints the final status. It is safe to call more than once.
func (r *Reporter) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped {
		return
	}
	r.stopped = true
	r.printFinalStatus()
}

// Matched records how many observations matched and how many chunks they
// were split into.
func (r *Reporter) Matched(observations, chunks int) {
	r.totalChunks.Store(int32(chunks))

	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.opts.Output, "[templates] Found %d matching observations, %d chunks of up to %d\n",
		observations, chunks, r.opts.ChunkSize)
}

// ChunkStarted marks a chunk as in progress.
func (r *Reporter) ChunkStarted(index, observations int) {}

// ChunkCompleted marks a chunk as completed.
func (r *Reporter) ChunkCompleted(index, products int) {
	r.completedChunks.Add(1)
	r.products.Add(int64(products))

	r.mu.Lock()
	defer r.mu.Unlock()
	r.printProgress()
}

// ChunkFailed marks a chunk as failed.
func (r *Reporter) ChunkFailed(index int) {
	r.failedChunks.Add(1)

	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.opts.Output, "\n[templates] Chunk %d failed\n", index+1)
}

// printProgress outputs the current progress. Callers hold r.mu.
func (r *Reporter) printProgress() {
	fmt.Fprintf(r.opts.Output, "\r[templates] Chunks: %d/%d completed | Products: %d | Elapsed: %s    ",
		r.completedChunks.Load(),
		r.totalChunks.Load(),
		r.products.Load(),
		formatDuration(r.opts.Now().Sub(r.startTime)),
	)
}

// printFinalStatus outputs the final status. Callers hold r.mu.
func (r *Reporter) printFinalStatus() {
	if r.totalChunks.Load() == 0 {
		return
	}
	if r.completedChunks.Load() > 0 {
		fmt.Fprintln(r.opts.Output)
	}
	fmt.Fprintf(r.opts.Output, "[templates] Listed %d products from %d chunks in %s\n",
		r.products.Load(),
		r.completedChunks.Load(),
		formatDuration(r.opts.Now().Sub(r.startTime)),
	)
}

// formatBytes formats bytes as a human-readable string.
func formatBytes(b int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
		TB = GB * 1024
	)

	switch {
	case b >= TB:
		return fmt.Sprintf("%.2f TB", float64(b)/float64(TB))
	case b >= GB:
		return fmt.Sprintf("%.2f GB", float64(b)/float64(GB))
	case b >= MB:
		return fmt.Sprintf("%.2f MB", float64(b)/float64(MB))
	case b >= KB:
		return fmt.Sprintf("%.2f KB", float64(b)/float64(KB))
	default:
		return fmt.Sprintf("%d B", b)
	}
}

// formatDuration formats a duration as a human-readable string.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.0fs", d.Seconds())
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm %ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%dh %dm %ds", h, m, s)
}

// FormatBytes is exported for use by other packages.
func FormatBytes(b int64) string {
	return formatBytes(b)
}
