package bulk

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JWST-Templates/Notebooks/internal/mast"
	"github.com/JWST-Templates/Notebooks/internal/metrics"
)

// DefaultChunkSize is the number of observations whose products are
// listed per archive request.
const DefaultChunkSize = 8

// Collection is the archive collection searched.
const Collection = "JWST"

// ObsModeAll disables the instrument sub-mode restriction.
const ObsModeAll = "all"

// ErrInvalidRequest is returned for requests that cannot be sent.
var ErrInvalidRequest = errors.New("bulk: invalid request")

// Archive is the subset of the archive client the fetcher uses.
type Archive interface {
	QueryObservations(ctx context.Context, crit mast.Criteria) ([]mast.Observation, error)
	ProductList(ctx context.Context, obs []mast.Observation) ([]mast.Product, error)
	Login(ctx context.Context, token string) error
	DownloadScript(ctx context.Context, products []mast.Product, f mast.Filter) (*mast.Script, error)
}

// Observer is notified as chunks are listed.
type Observer interface {
	Matched(observations, chunks int)
	ChunkStarted(index, observations int)
	ChunkCompleted(index, products int)
	ChunkFailed(index int)
}

// Request describes one bulk fetch.
type Request struct {
	ProgramID  string
	Instrument string
	DataKind   string // product sub-group, e.g. UNCAL, RATE, CAL, I2D
	ObsMode    string // instrument sub-mode, "" or "all" for any
	Token      string // optional archive token for non-public data
	ChunkSize  int    // default DefaultChunkSize
}

// Validate checks the request.
func (r Request) Validate() error {
	if strings.TrimSpace(r.ProgramID) == "" {
		return fmt.Errorf("%w: program id is required", ErrInvalidRequest)
	}
	if strings.TrimSpace(r.Instrument) == "" {
		return fmt.Errorf("%w: instrument is required", ErrInvalidRequest)
	}
	if r.ChunkSize < 0 {
		return fmt.Errorf("%w: chunk size must be positive", ErrInvalidRequest)
	}
	return nil
}

// Selector returns the instrument selector for the request: the
// instrument followed by "/MODE", or by "*" when no mode is set.
func (r Request) Selector() string {
	return InstrumentSelector(r.Instrument, r.ObsMode)
}

// Filter returns the product filter applied before manifest generation.
func (r Request) Filter() mast.Filter {
	return mast.Filter{
		ProductTypes: []string{mast.ProductTypeScience, mast.ProductTypeInfo},
		SubGroup:     r.DataKind,
	}
}

// InstrumentSelector combines an instrument and an optional sub-mode.
func InstrumentSelector(instrument, mode string) string {
	if mode == "" || mode == ObsModeAll {
		return instrument + "*"
	}
	return instrument + "/" + mode
}

// Result summarizes a fetch.
type Result struct {
	Observations   []mast.Observation
	Chunks         int
	ProductsListed int
	Products       []mast.Product // deduplicated by filename
	Manifest       *mast.Script   // nil when nothing matched
}

// Options configures a Fetcher.
type Options struct {
	// Logger receives progress and diagnostics. Default: zap.NewNop()
	Logger *zap.Logger

	// Observer is an optional chunk progress observer.
	Observer Observer

	// Metrics is optional.
	Metrics *metrics.Metrics
}

// Fetcher runs bulk fetches against an archive.
type Fetcher struct {
	archive Archive
	opts    Options
	logger  *zap.Logger
}

// NewFetcher creates a Fetcher.
func NewFetcher(archive Archive, opts Options) *Fetcher {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Fetcher{
		archive: archive,
		opts:    opts,
		logger:  opts.Logger,
	}
}

// Fetch queries every observation matching req, lists their products in
// chunks, deduplicates them by filename, and requests a download script
// for the SCIENCE and INFO products of the requested data kind.
//
// Zero matching observations, or zero products passing the filter, is
// not an error: the result has a nil Manifest.
func (f *Fetcher) Fetch(ctx context.Context, req Request) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.ChunkSize == 0 {
		req.ChunkSize = DefaultChunkSize
	}

	log := f.logger.With(
		zap.String("program", req.ProgramID),
		zap.String("instrument", req.Selector()),
		zap.String("data_kind", req.DataKind),
	)

	start := time.Now()
	obs, err := f.archive.QueryObservations(ctx, mast.Criteria{
		Collection: Collection,
		Instrument: req.Selector(),
		ProposalID: req.ProgramID,
	})
	f.opts.Metrics.ArchiveCall("query_observations", err)
	f.opts.Metrics.ObserveStage("query", time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("query observations: %w", err)
	}
	f.opts.Metrics.AddObservations(len(obs))

	res := &Result{Observations: obs}
	if len(obs) == 0 {
		log.Info("no matching observations")
		return res, nil
	}

	chunks := Partition(obs, req.ChunkSize)
	res.Chunks = len(chunks)
	log.Info("listing products",
		zap.Int("observations", len(obs)),
		zap.Int("chunks", len(chunks)),
		zap.Int("chunk_size", req.ChunkSize),
	)
	if f.opts.Observer != nil {
		f.opts.Observer.Matched(len(obs), len(chunks))
	}

	start = time.Now()
	var all []mast.Product
	for i, chunk := range chunks {
		if f.opts.Observer != nil {
			f.opts.Observer.ChunkStarted(i, len(chunk))
		}

		products, err := f.archive.ProductList(ctx, chunk)
		f.opts.Metrics.ArchiveCall("product_list", err)
		if err != nil {
			if f.opts.Observer != nil {
				f.opts.Observer.ChunkFailed(i)
			}
			return nil, fmt.Errorf("list products for chunk %d/%d: %w", i+1, len(chunks), err)
		}

		f.opts.Metrics.AddChunk(len(products))
		if f.opts.Observer != nil {
			f.opts.Observer.ChunkCompleted(i, len(products))
		}
		log.Debug("chunk listed", zap.Int("chunk", i), zap.Int("products", len(products)))
		all = append(all, products...)
	}
	f.opts.Metrics.ObserveStage("products", time.Since(start))

	res.ProductsListed = len(all)
	res.Products = DedupeByFilename(all)

	selected := req.Filter().Apply(res.Products)
	f.opts.Metrics.AddSelection(len(res.Products), len(selected))
	log.Info("products listed",
		zap.Int("listed", res.ProductsListed),
		zap.Int("unique", len(res.Products)),
		zap.Int("selected", len(selected)),
	)
	if len(selected) == 0 {
		log.Info("no products match the requested types and data kind")
		return res, nil
	}

	if req.Token != "" {
		err := f.archive.Login(ctx, req.Token)
		f.opts.Metrics.ArchiveCall("login", err)
		if err != nil {
			return nil, fmt.Errorf("login: %w", err)
		}
	}

	start = time.Now()
	script, err := f.archive.DownloadScript(ctx, res.Products, req.Filter())
	f.opts.Metrics.ArchiveCall("download_script", err)
	f.opts.Metrics.ObserveStage("manifest", time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("download script: %w", err)
	}
	res.Manifest = script

	f.opts.Metrics.Succeeded(time.Now())
	return res, nil
}

// Partition splits items into consecutive groups of at most size items,
// preserving order. size < 1 is treated as 1.
func Partition[T any](items []T, size int) [][]T {
	if size < 1 {
		size = 1
	}
	if len(items) == 0 {
		return nil
	}

	groups := make([][]T, 0, (len(items)+size-1)/size)
	for i := 0; i < len(items); i += size {
		end := i + size
		if end > len(items) {
			end = len(items)
		}
		groups = append(groups, items[i:end:end])
	}
	return groups
}

// DedupeByFilename keeps the first product seen for each filename,
// preserving order.
func DedupeByFilename(products []mast.Product) []mast.Product {
	seen := make(map[string]struct{}, len(products))
	out := make([]mast.Product, 0, len(products))
	for _, p := range products {
		if _, ok := seen[p.ProductFilename]; ok {
			continue
		}
		seen[p.ProductFilename] = struct{}{}
		out = append(out, p)
	}
	return out
}
