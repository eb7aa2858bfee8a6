package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// TransferOptions configures a Transfer reporter.
type TransferOptions struct {
	// Files is the number of files to be mirrored.
	Files int

	// Bytes is the expected total size, or 0 when unknown.
	Bytes int64

	// Output is where to write progress output.
	// Default: os.Stderr
	Output io.Writer

	// Now returns the current time. Default: time.Now
	Now func() time.Time
}

// Transfer reports progress of a file mirror run. It satisfies
// downloader.Observer.
type Transfer struct {
	opts TransferOptions

	mu         sync.Mutex
	downloaded atomic.Int32
	skipped    atomic.Int32
	failed     atomic.Int32
	bytes      atomic.Int64
	startTime  time.Time
	stopped    bool
}

// NewTransfer creates a new transfer reporter.
func NewTransfer(opts TransferOptions) *Transfer {
	if opts.Output == nil {
		opts.Output = os.Stderr
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Transfer{opts: opts}
}

// Start prints the header and starts the elapsed-time clock.
func (t *Transfer) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.startTime = t.opts.Now()
	if t.opts.Bytes > 0 {
		fmt.Fprintf(t.opts.Output, "[templates] Mirroring %d files (%s)\n", t.opts.Files, formatBytes(t.opts.Bytes))
		return
	}
	fmt.Fprintf(t.opts.Output, "[templates] Mirroring %d files\n", t.opts.Files)
}

// FileCompleted records a downloaded file of n bytes.
func (t *Transfer) FileCompleted(name string, n int64) {
	t.downloaded.Add(1)
	t.bytes.Add(n)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.printProgress()
}

// FileSkipped records a file already present in the bucket.
func (t *Transfer) FileSkipped(name string) {
	t.skipped.Add(1)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.printProgress()
}

// FileFailed records a file that could not be mirrored.
func (t *Transfer) FileFailed(name string) {
	t.failed.Add(1)

	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.opts.Output, "\n[templates] Failed: %s\n", name)
}

// Stop prints the final status. It is safe to call more than once.
func (t *Transfer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped {
		return
	}
	t.stopped = true

	elapsed := t.opts.Now().Sub(t.startTime)
	if t.downloaded.Load()+t.skipped.Load() > 0 {
		fmt.Fprintln(t.opts.Output)
	}
	fmt.Fprintf(t.opts.Output, "[templates] Mirrored %d files (%s), skipped %d, failed %d in %s\n",
		t.downloaded.Load(),
		formatBytes(t.bytes.Load()),
		t.skipped.Load(),
		t.failed.Load(),
		formatDuration(elapsed),
	)
}

// printProgress outputs the current progress. Callers hold t.mu.
func (t *Transfer) printProgress() {
	elapsed := t.opts.Now().Sub(t.startTime)
	done := t.downloaded.Load() + t.skipped.Load()

	var rate float64
	if elapsed > 0 {
		rate = float64(t.bytes.Load()) / elapsed.Seconds()
	}

	fmt.Fprintf(t.opts.Output, "\r[templates] Files: %d/%d | %s | %s/s | Elapsed: %s    ",
		done,
		t.opts.Files,
		formatBytes(t.bytes.Load()),
		formatBytes(int64(rate)),
		formatDuration(elapsed),
	)
}
