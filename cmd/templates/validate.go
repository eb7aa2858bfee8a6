package main

import (
	"flag"
	"fmt"

	"github.com/JWST-Templates/Notebooks/pkg/manifest"
)

// runValidate checks that a stored script exists and matches the size and
// checksum recorded in its manifest.
func runValidate(args []string) int {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	fs.SetOutput(stderr)

	bucket := fs.String("bucket", "", "Bucket URL (required)")
	object := fs.String("object", "", "Script object name (required)")

	fs.Usage = func() {
		fmt.Fprintln(stderr, `Usage: templates validate [options]

Verify that a stored download script exists and matches the size and
SHA-256 recorded in its manifest.

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

	ctx, cancel := signalContext(false)
	defer cancel()

	bkt, err := openBucket(ctx, *bucket)
	if err != nil {
		fmt.Fprintf(stderr, "Error opening bucket: %v\n", err)
		return ExitStorageError
	}
	defer bkt.Close()

	result, err := manifest.Validate(ctx, bkt, *object)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return ExitStorageError
	}

	fmt.Fprintf(stdout, "Script: %s\n", *object)
	fmt.Fprintf(stdout, "Size: %d bytes\n", result.ScriptSize)
	fmt.Fprintf(stdout, "Products: %d\n", result.ProductCount)

	if result.Valid {
		fmt.Fprintln(stdout, "Status: VALID")
		return ExitSuccess
	}

	fmt.Fprintln(stdout, "Status: INVALID")
	if len(result.Errors) > 0 {
		fmt.Fprintln(stdout, "\nErrors:")
		for _, e := range result.Errors {
			fmt.Fprintf(stdout, "  - %s\n", e)
		}
	}

	return ExitValidationFailed
}
