package main

import (
	"bufio"
	"flag"
	"fmt"
	"strings"

	"github.com/JWST-Templates/Notebooks/pkg/manifest"
)

// runDelete removes a stored script and its manifest.
// By default prompts for confirmation unless -force is specified.
func runDelete(args []string) int {
	fs := flag.NewFlagSet("delete", flag.ContinueOnError)
	fs.SetOutput(stderr)

	bucket := fs.String("bucket", "", "Bucket URL (required)")
	object := fs.String("object", "", "Script object name (required)")
	force := fs.Bool("force", false, "Skip confirmation prompt")

	fs.Usage = func() {
		fmt.Fprintln(stderr, `Usage: templates delete [options]

Remove a stored download script and its manifest.

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

	if !*force {
		fmt.Fprintf(stdout, "Delete %s and its manifest from %s? [y/N]: ", *object, *bucket)
		response, _ := bufio.NewReader(stdin).ReadString('\n')
		response = strings.TrimSpace(strings.ToLower(response))
		if response != "y" && response != "yes" {
			fmt.Fprintln(stderr, "Cancelled")
			return ExitSuccess
		}
	}

	ctx, cancel := signalContext(false)
	defer cancel()

	bkt, err := openBucket(ctx, *bucket)
	if err != nil {
		fmt.Fprintf(stderr, "Error opening bucket: %v\n", err)
		return ExitStorageError
	}
	defer bkt.Close()

	if err := manifest.Delete(ctx, bkt, *object); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return ExitStorageError
	}

	fmt.Fprintf(stderr, "[templates] Deleted: %s/%s\n", *bucket, *object)
	return ExitSuccess
}
