package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"
)

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(announce bool) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			if announce {
				fmt.Fprintln(stderr, "\n[templates] Received interrupt, shutting down...")
			}
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}

// openBucket opens a bucket URL. Relative file:// URLs such as the
// default file://. are resolved against the working directory.
func openBucket(ctx context.Context, bucketURL string) (*blob.Bucket, error) {
	if rest, ok := strings.CutPrefix(bucketURL, "file://"); ok && !strings.HasPrefix(rest, "/") {
		path, query, _ := strings.Cut(rest, "?")
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, err
		}
		bucketURL = "file://" + filepath.ToSlash(abs)
		if query != "" {
			bucketURL += "?" + query
		}
	}
	return blob.OpenBucket(ctx, bucketURL)
}

// parseExit maps a flag parse error to an exit code.
func parseExit(err error) int {
	if errors.Is(err, flag.ErrHelp) {
		return ExitSuccess
	}
	return ExitInvalidArgs
}

// parseInterspersed parses flags that may appear before, between or after
// positional arguments, returning the positional arguments in order.
func parseInterspersed(fs *flag.FlagSet, args []string) ([]string, error) {
	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		args = fs.Args()
		if len(args) == 0 {
			return positional, nil
		}
		positional = append(positional, args[0])
		args = args[1:]
	}
}
