package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"

	"go.uber.org/zap"

	"github.com/JWST-Templates/Notebooks/internal/bulk"
	"github.com/JWST-Templates/Notebooks/internal/config"
	archivehttp "github.com/JWST-Templates/Notebooks/internal/http"
	"github.com/JWST-Templates/Notebooks/internal/logging"
	"github.com/JWST-Templates/Notebooks/internal/mast"
	"github.com/JWST-Templates/Notebooks/internal/metrics"
	"github.com/JWST-Templates/Notebooks/internal/progress"
	"github.com/JWST-Templates/Notebooks/internal/table"
	"github.com/JWST-Templates/Notebooks/pkg/manifest"
)

// runFetch lists every product of a program in chunks, requests a download
// script for the selected data kind, and stores it with its manifest.
func runFetch(args []string) int {
	fs := flag.NewFlagSet("fetch", flag.ContinueOnError)
	fs.SetOutput(stderr)

	obsMode := fs.String("obsmode", "", "Observing mode, e.g. image or ifu (default all)")
	token := fs.String("token", "", "MAST API token (default $MAST_API_TOKEN)")
	chunkSize := fs.Int("chunk_size", 0, "Observations per product list request, 1-99 (default 8)")
	bucket := fs.String("bucket", "", "Destination bucket URL (default file://.)")
	object := fs.String("object", "", "Destination object name (default the archive script name)")
	configFile := fs.String("config", "", "YAML configuration file")
	archiveURL := fs.String("archive-url", "", "Archive portal base URL")
	authURL := fs.String("auth-url", "", "Archive token info URL")
	showProgress := fs.Bool("progress", false, "Show progress output")
	arrowFile := fs.String("products-arrow", "", "Write the product list as an Arrow IPC stream to this file")
	metricsFile := fs.String("metrics-file", "", "Write Prometheus metrics in textfile format to this file")
	logLevel := fs.String("log-level", "", "Diagnostic log level (debug, info, warn, error)")

	fs.Usage = func() {
		fmt.Fprintln(stderr, `Usage: templates fetch <program_id> <instrument> <data_kind> [options]

Query all JWST observations of a program and instrument, list their products
in chunks, and store a download script for the SCIENCE and INFO products of
the given data kind (e.g. UNCAL, RATE, CAL, I2D), with a JSON manifest.

Options:`)
		fs.PrintDefaults()
	}

	positional, err := parseInterspersed(fs, args)
	if err != nil {
		return parseExit(err)
	}
	if len(positional) != 3 {
		fmt.Fprintln(stderr, "Error: <program_id>, <instrument>, and <data_kind> are required")
		fs.Usage()
		return ExitInvalidArgs
	}

	cfg := config.Default()
	if *configFile != "" {
		cfg, err = config.LoadFromFile(*configFile)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return ExitInvalidArgs
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}
	cfg = cfg.Merge(config.Config{
		ArchiveURL: *archiveURL,
		AuthURL:    *authURL,
		Token:      *token,
		ChunkSize:  *chunkSize,
		ObsMode:    *obsMode,
		Bucket:     *bucket,
		Progress:   *showProgress,
		Log:        config.LogConfig{Level: *logLevel},
	})
	// Merge ignores zero values; an explicit -chunk_size 0 must still be rejected.
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "chunk_size" {
			cfg.ChunkSize = *chunkSize
		}
	})
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}

	req := bulk.Request{
		ProgramID:  positional[0],
		Instrument: positional[1],
		DataKind:   positional[2],
		ObsMode:    cfg.ObsMode,
		Token:      cfg.Token,
		ChunkSize:  cfg.ChunkSize,
	}
	if err := req.Validate(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}

	logger, err := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}
	defer logger.Sync()

	ctx, cancel := signalContext(true)
	defer cancel()

	bkt, err := openBucket(ctx, cfg.Bucket)
	if err != nil {
		fmt.Fprintf(stderr, "Error opening bucket: %v\n", err)
		return ExitStorageError
	}
	defer bkt.Close()

	client := mast.NewClient(mast.Options{
		BaseURL:  cfg.ArchiveURL,
		AuthURL:  cfg.AuthURL,
		PageSize: cfg.PageSize,
		HTTP: archivehttp.NewClient(archivehttp.Options{
			MaxIdleConnsPerHost: 4,
			Timeout:             cfg.Timeout,
			RetryAttempts:       cfg.Retry.Attempts,
			RetryBackoff:        cfg.Retry.Backoff,
			RetryMaxBackoff:     cfg.Retry.MaxBackoff,
			UserAgent:           "jwst-templates/1.0",
		}),
		Logger: logger.Named("mast"),
	})

	m := metrics.New()
	opts := bulk.Options{
		Logger:  logger.Named("bulk"),
		Metrics: m,
	}

	var reporter *progress.Reporter
	if cfg.Progress {
		reporter = progress.NewReporter(progress.Options{
			Program:   req.ProgramID,
			ChunkSize: req.ChunkSize,
			Output:    stderr,
		})
		opts.Observer = reporter
		reporter.Start()
	}

	res, err := bulk.NewFetcher(client, opts).Fetch(ctx, req)
	if reporter != nil {
		reporter.Stop()
	}
	if *metricsFile != "" {
		if werr := m.WriteTextfile(*metricsFile); werr != nil {
			logger.Warn("write metrics textfile", zap.String("path", *metricsFile), zap.Error(werr))
		}
	}
	if err != nil {
		return fetchErrorExit(ctx, err)
	}

	if len(res.Observations) == 0 {
		fmt.Fprintf(stderr, "[templates] No %s observations of %s found for program %s\n",
			bulk.Collection, req.Selector(), req.ProgramID)
		return ExitSuccess
	}

	if *arrowFile != "" {
		if err := writeProductTable(*arrowFile, res.Products, req.Filter()); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return ExitGeneralError
		}
		fmt.Fprintf(stderr, "[templates] Product table: %s (%d rows)\n", *arrowFile, len(res.Products))
	}

	if res.Manifest == nil {
		fmt.Fprintf(stderr, "[templates] No SCIENCE or INFO products of kind %s among %d products\n",
			req.DataKind, len(res.Products))
		return ExitSuccess
	}

	name := *object
	if name == "" {
		name = res.Manifest.Name
	}
	rec, err := manifest.Write(ctx, bkt, name, res.Manifest.Body, newRecord(req, res),
		manifest.WithMetadata(map[string]string{
			"archive_url":     cfg.ArchiveURL,
			"products_listed": strconv.Itoa(res.ProductsListed),
		}),
	)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return ExitStorageError
	}

	fmt.Fprintf(stderr, "[templates] Script: %s/%s (%d products, %s)\n",
		cfg.Bucket, name, len(rec.Products), progress.FormatBytes(rec.ScriptSize))
	fmt.Fprintf(stderr, "[templates] Manifest: %s/%s\n", cfg.Bucket, manifest.RecordPath(name))

	return ExitSuccess
}

func fetchErrorExit(ctx context.Context, err error) int {
	if ctx.Err() != nil {
		fmt.Fprintln(stderr, "[templates] Fetch interrupted")
		return ExitGeneralError
	}
	fmt.Fprintf(stderr, "Error: %v\n", err)

	switch {
	case errors.Is(err, bulk.ErrInvalidRequest):
		return ExitInvalidArgs
	case errors.Is(err, archivehttp.ErrUnauthorized), errors.Is(err, archivehttp.ErrForbidden):
		fmt.Fprintln(stderr, "Check the MAST API token (-token or $MAST_API_TOKEN)")
	}
	// Every other fetch failure comes from the archive.
	return ExitArchiveNotAccess
}

func newRecord(req bulk.Request, res *bulk.Result) manifest.Record {
	products := make([]manifest.Product, len(res.Manifest.Products))
	for i, p := range res.Manifest.Products {
		products[i] = manifest.Product{
			ObsID:    p.ObsID,
			Filename: p.ProductFilename,
			Type:     p.ProductType,
			SubGroup: p.ProductSubGroupDescription,
			DataURI:  p.DataURI,
			Size:     p.Size,
		}
	}
	return manifest.Record{
		ProgramID:    req.ProgramID,
		Instrument:   req.Instrument,
		DataKind:     req.DataKind,
		ObsMode:      req.ObsMode,
		Observations: len(res.Observations),
		ChunkSize:    req.ChunkSize,
		Products:     products,
	}
}

func writeProductTable(path string, products []mast.Product, f mast.Filter) error {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create product table: %w", err)
	}
	if err := table.Write(out, table.Rows(products, f)); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
