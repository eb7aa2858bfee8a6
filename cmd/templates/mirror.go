package main

import (
	"errors"
	"flag"
	"fmt"

	"go.uber.org/zap"

	"github.com/JWST-Templates/Notebooks/internal/config"
	"github.com/JWST-Templates/Notebooks/internal/downloader"
	archivehttp "github.com/JWST-Templates/Notebooks/internal/http"
	"github.com/JWST-Templates/Notebooks/internal/logging"
	"github.com/JWST-Templates/Notebooks/internal/mast"
	"github.com/JWST-Templates/Notebooks/internal/metrics"
	"github.com/JWST-Templates/Notebooks/internal/progress"
	"github.com/JWST-Templates/Notebooks/pkg/manifest"
)

// runMirror downloads the products listed in a stored manifest into a bucket.
func runMirror(args []string) int {
	fs := flag.NewFlagSet("mirror", flag.ContinueOnError)
	fs.SetOutput(stderr)

	bucket := fs.String("bucket", "", "Bucket URL holding the script and manifest (required)")
	object := fs.String("object", "", "Script object name (required)")
	dest := fs.String("dest", "", "Destination bucket URL for product files (default -bucket)")
	prefix := fs.String("prefix", "MAST", "Object prefix for product files")
	workers := fs.Int("workers", 4, "Number of parallel downloads")
	force := fs.Bool("force", false, "Download files that are already present")
	token := fs.String("token", "", "MAST API token (default $MAST_API_TOKEN)")
	configFile := fs.String("config", "", "YAML configuration file")
	archiveURL := fs.String("archive-url", "", "Archive portal base URL")
	authURL := fs.String("auth-url", "", "Archive token info URL")
	showProgress := fs.Bool("progress", false, "Show progress output")
	metricsFile := fs.String("metrics-file", "", "Write Prometheus metrics in textfile format to this file")
	logLevel := fs.String("log-level", "", "Diagnostic log level (debug, info, warn, error)")

	fs.Usage = func() {
		fmt.Fprintln(stderr, `Usage: templates mirror [options]

Download every product listed in a stored manifest from the archive into a
bucket. Files already present with the recorded size are skipped, so an
interrupted mirror can be run again.

Options:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return parseExit(err)
	}

	if *bucket == "" || *object == "" {
		fmt.Fprintln(stderr, "Error: -bucket and -object are required")
		fs.Usage()
		return ExitInvalidArgs
	}
	if *workers <= 0 {
		fmt.Fprintln(stderr, "Error: -workers must be positive")
		return ExitInvalidArgs
	}
	if *dest == "" {
		*dest = *bucket
	}

	cfg := config.Default()
	var err error
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
		Bucket:     *dest,
		Progress:   *showProgress,
		Log:        config.LogConfig{Level: *logLevel},
	})
	if err := cfg.Validate(); err != nil {
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

	src, err := openBucket(ctx, *bucket)
	if err != nil {
		fmt.Fprintf(stderr, "Error opening bucket: %v\n", err)
		return ExitStorageError
	}
	defer src.Close()

	rec, err := manifest.Read(ctx, src, *object)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return ExitStorageError
	}

	dst := src
	if cfg.Bucket != *bucket {
		dst, err = openBucket(ctx, cfg.Bucket)
		if err != nil {
			fmt.Fprintf(stderr, "Error opening bucket: %v\n", err)
			return ExitStorageError
		}
		defer dst.Close()
	}

	httpClient := archivehttp.NewClient(archivehttp.Options{
		MaxIdleConnsPerHost: *workers,
		Timeout:             cfg.Timeout,
		RetryAttempts:       cfg.Retry.Attempts,
		RetryBackoff:        cfg.Retry.Backoff,
		RetryMaxBackoff:     cfg.Retry.MaxBackoff,
		UserAgent:           "jwst-templates/1.0",
	})
	if cfg.Token != "" {
		client := mast.NewClient(mast.Options{
			BaseURL: cfg.ArchiveURL,
			AuthURL: cfg.AuthURL,
			HTTP:    httpClient,
			Logger:  logger.Named("mast"),
		})
		if err := client.Login(ctx, cfg.Token); err != nil {
			return fetchErrorExit(ctx, err)
		}
	}

	m := metrics.New()
	opts := downloader.Options{
		Workers: *workers,
		BaseURL: cfg.ArchiveURL,
		Prefix:  *prefix,
		HTTP:    httpClient,
		Force:   *force,
		Metrics: m,
		Logger:  logger.Named("downloader"),
	}

	var reporter *progress.Transfer
	if cfg.Progress {
		var total int64
		for _, p := range rec.Products {
			total += p.Size
		}
		reporter = progress.NewTransfer(progress.TransferOptions{
			Files:  len(rec.Products),
			Bytes:  total,
			Output: stderr,
		})
		opts.Observer = reporter
		reporter.Start()
	}

	summary, err := downloader.Download(ctx, dst, rec.Products, opts)
	if reporter != nil {
		reporter.Stop()
	}
	if *metricsFile != "" {
		if werr := m.WriteTextfile(*metricsFile); werr != nil {
			logger.Warn("write metrics textfile", zap.String("path", *metricsFile), zap.Error(werr))
		}
	}

	if err != nil {
		if ctx.Err() != nil {
			fmt.Fprintln(stderr, "[templates] Mirror interrupted, run again to resume")
			return ExitGeneralError
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		for _, f := range summary.Failures {
			fmt.Fprintf(stderr, "  - %s: %v\n", f.Filename, f.Error)
		}
		var cbErr *downloader.CircuitBreakerError
		if errors.As(err, &cbErr) {
			fmt.Fprintln(stderr, "[templates] Stopped after repeated failures, run again to resume")
		}
		return ExitMirrorIncomplete
	}

	fmt.Fprintf(stderr, "[templates] Mirrored %d files (%s) to %s/%s, %d already present\n",
		summary.Downloaded, progress.FormatBytes(summary.Bytes), cfg.Bucket, *prefix, summary.Skipped)
	return ExitSuccess
}
