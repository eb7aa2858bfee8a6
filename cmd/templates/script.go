package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/JWST-Templates/Notebooks/pkg/manifest"
)

// runScript copies a stored download script to stdout or a local file,
// optionally verifying it against its manifest checksum.
func runScript(args []string) int {
	fs := flag.NewFlagSet("script", flag.ContinueOnError)
	fs.SetOutput(stderr)

	bucket := fs.String("bucket", "", "Bucket URL (required)")
	object := fs.String("object", "", "Script object name (required)")
	output := fs.String("output", "", "Output file path (default stdout)")
	verify := fs.Bool("verify", true, "Verify the checksum while reading")

	fs.Usage = func() {
		fmt.Fprintln(stderr, `Usage: templates script [options]

Copy a stored download script to stdout or a local file. Run the saved
script with sh to download the products it lists.

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

	r, rec, err := manifest.Open(ctx, bkt, *object, manifest.WithVerifyChecksum(*verify))
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return ExitStorageError
	}
	defer r.Close()

	var w io.Writer = stdout
	var f *os.File
	if *output != "" {
		f, err = os.OpenFile(*output, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o755)
		if err != nil {
			fmt.Fprintf(stderr, "Error creating output file: %v\n", err)
			return ExitGeneralError
		}
		w = f
	}

	_, err = io.Copy(w, r)
	if f != nil {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		if errors.Is(err, manifest.ErrChecksumMismatch) {
			return ExitValidationFailed
		}
		return ExitStorageError
	}

	if *output != "" {
		fmt.Fprintf(stderr, "[templates] Wrote %s (%d products for program %s)\n",
			*output, len(rec.Products), rec.ProgramID)
	}
	return ExitSuccess
}
