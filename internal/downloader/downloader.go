package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"sync"

	"go.uber.org/zap"
	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"

	archivehttp "github.com/JWST-Templates/Notebooks/internal/http"
	"github.com/JWST-Templates/Notebooks/internal/mast"
	"github.com/JWST-Templates/Notebooks/internal/metrics"
	"github.com/JWST-Templates/Notebooks/pkg/manifest"
)

// Options configures the downloader.
type Options struct {
	// Workers is the number of parallel download workers.
	// Default: 4
	Workers int

	// BaseURL is the archive root serving product files.
	// Default: https://mast.stsci.edu
	BaseURL string

	// Prefix is joined with each product filename to form its object key.
	Prefix string

	// HTTP is the transport. Set its token to fetch proprietary data.
	// Default: archivehttp.NewClient(archivehttp.DefaultOptions())
	HTTP *archivehttp.Client

	// Force re-downloads files that are already present.
	Force bool

	// MaxConsecutiveFailures is the number of failed files in a row
	// after which the circuit breaker trips and stops the run.
	// Default: 10
	MaxConsecutiveFailures int

	// Observer is notified as files finish. Optional.
	Observer Observer

	// Metrics records per-file outcomes. Optional.
	Metrics *metrics.Metrics

	// Logger receives per-file diagnostics. Default: zap.NewNop()
	Logger *zap.Logger
}

// Observer receives per-file progress. Calls may come from several
// goroutines at once.
type Observer interface {
	FileCompleted(name string, n int64)
	FileSkipped(name string)
	FileFailed(name string)
}

// FailedFile records a file that could not be mirrored.
type FailedFile struct {
	Filename string
	Error    error
}

// CircuitBreakerError is returned when too many consecutive files fail.
//
// Use errors.As to extract this error and inspect FailedFiles for details.
type CircuitBreakerError struct {
	ConsecutiveFailures int
	FailedFiles         []FailedFile
}

func (e *CircuitBreakerError) Error() string {
	return fmt.Sprintf("circuit breaker tripped: %d consecutive failures", e.ConsecutiveFailures)
}

var (
	// ErrIncomplete is returned when some files failed but the run finished.
	ErrIncomplete = errors.New("downloader: some files were not mirrored")

	// ErrSizeMismatch is returned when a download differs from the size
	// recorded in the manifest.
	ErrSizeMismatch = errors.New("downloader: size mismatch")
)

// Summary counts the outcome of a run.
type Summary struct {
	Downloaded int
	Skipped    int
	Failed     int
	Bytes      int64

	// Failures is sorted by filename.
	Failures []FailedFile
}

// ObjectKey returns the bucket key a product file is mirrored to.
func ObjectKey(prefix, filename string) string {
	if prefix == "" {
		return filename
	}
	return path.Join(prefix, filename)
}

// Download mirrors products into bucket. The returned summary is valid
// even when err is not nil.
func Download(ctx context.Context, bucket *blob.Bucket, products []manifest.Product, opts Options) (*Summary, error) {
	// Apply defaults
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.BaseURL == "" {
		opts.BaseURL = mast.DefaultBaseURL
	}
	if opts.HTTP == nil {
		opts.HTTP = archivehttp.NewClient(archivehttp.DefaultOptions())
	}
	if opts.MaxConsecutiveFailures <= 0 {
		opts.MaxConsecutiveFailures = 10
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	summary := &Summary{}

	// Circuit breaker state
	var (
		cbMu                  sync.Mutex
		consecutiveFailures   int
		circuitBreakerTripped bool
	)

	cbCtx, cbCancel := context.WithCancel(ctx)
	defer cbCancel()

	jobs := make(chan manifest.Product, opts.Workers)
	var wg sync.WaitGroup

	// Start workers
	for i := 0; i < opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for p := range jobs {
				if cbCtx.Err() != nil {
					return
				}

				n, skipped, err := mirrorFile(cbCtx, bucket, p, opts)
				if err != nil && cbCtx.Err() != nil {
					if ctx.Err() != nil {
						// Interrupted by the caller, not failed.
						return
					}
					// In flight when the breaker tripped; the file is still missing.
					cbMu.Lock()
					summary.Failed++
					summary.Failures = append(summary.Failures, FailedFile{Filename: p.Filename, Error: err})
					cbMu.Unlock()
					report(opts, p, n, skipped, err)
					return
				}

				cbMu.Lock()
				switch {
				case err != nil:
					consecutiveFailures++
					summary.Failed++
					summary.Failures = append(summary.Failures, FailedFile{Filename: p.Filename, Error: err})
					if consecutiveFailures >= opts.MaxConsecutiveFailures {
						circuitBreakerTripped = true
						cbCancel() // Stop all workers
					}
				case skipped:
					consecutiveFailures = 0
					summary.Skipped++
				default:
					consecutiveFailures = 0
					summary.Downloaded++
					summary.Bytes += n
				}
				cbMu.Unlock()

				report(opts, p, n, skipped, err)
			}
		}()
	}

	// Feed jobs to workers
	go func() {
		defer close(jobs)
		for _, p := range products {
			select {
			case jobs <- p:
			case <-cbCtx.Done():
				return
			}
		}
	}()

	wg.Wait()

	sort.Slice(summary.Failures, func(i, j int) bool {
		return summary.Failures[i].Filename < summary.Failures[j].Filename
	})

	if circuitBreakerTripped {
		return summary, &CircuitBreakerError{
			ConsecutiveFailures: consecutiveFailures,
			FailedFiles:         summary.Failures,
		}
	}
	if ctx.Err() != nil {
		return summary, ctx.Err()
	}
	if summary.Failed > 0 {
		return summary, fmt.Errorf("%w: %d of %d files failed", ErrIncomplete, summary.Failed, len(products))
	}
	return summary, nil
}

// mirrorFile copies one product into the bucket. It reports skipped when
// the object already exists with the recorded size.
func mirrorFile(ctx context.Context, bucket *blob.Bucket, p manifest.Product, opts Options) (int64, bool, error) {
	key := ObjectKey(opts.Prefix, p.Filename)

	if !opts.Force {
		attrs, err := bucket.Attributes(ctx, key)
		switch {
		case err == nil && (p.Size <= 0 || attrs.Size == p.Size):
			return 0, true, nil
		case err != nil && gcerrors.Code(err) != gcerrors.NotFound:
			return 0, false, fmt.Errorf("check %s: %w", key, err)
		}
	}

	body, err := opts.HTTP.Get(ctx, mast.FileURL(opts.BaseURL, p.DataURI))
	if err != nil {
		return 0, false, fmt.Errorf("download %s: %w", p.Filename, err)
	}
	defer body.Close()

	// Cancelling the writer's context before Close discards the object.
	wctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w, err := bucket.NewWriter(wctx, key, &blob.WriterOptions{
		Metadata: map[string]string{
			"data_uri": p.DataURI,
			"obs_id":   p.ObsID,
		},
	})
	if err != nil {
		return 0, false, fmt.Errorf("create %s: %w", key, err)
	}

	n, err := io.Copy(w, body)
	if err == nil && p.Size > 0 && n != p.Size {
		err = fmt.Errorf("%w: %s: expected %d bytes, got %d", ErrSizeMismatch, p.Filename, p.Size, n)
	}
	if err != nil {
		cancel()
		w.Close()
		return 0, false, fmt.Errorf("write %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return 0, false, fmt.Errorf("close %s: %w", key, err)
	}
	return n, false, nil
}

func report(opts Options, p manifest.Product, n int64, skipped bool, err error) {
	switch {
	case err != nil:
		opts.Logger.Warn("mirror failed", zap.String("file", p.Filename), zap.Error(err))
		opts.Metrics.AddMirrored("failed", 0)
		if opts.Observer != nil {
			opts.Observer.FileFailed(p.Filename)
		}
	case skipped:
		opts.Logger.Debug("already mirrored", zap.String("file", p.Filename))
		opts.Metrics.AddMirrored("skipped", 0)
		if opts.Observer != nil {
			opts.Observer.FileSkipped(p.Filename)
		}
	default:
		opts.Logger.Debug("mirrored", zap.String("file", p.Filename), zap.Int64("bytes", n))
		opts.Metrics.AddMirrored("downloaded", n)
		if opts.Observer != nil {
			opts.Observer.FileCompleted(p.Filename, n)
		}
	}
}
