// Package progress provides progress reporting for chunked product listing
// and for mirroring product files.
//
// This package outputs human-readable progress information to stderr,
// including chunks completed, product rows seen so far, and elapsed time.
// A Reporter satisfies bulk.Observer and a Transfer satisfies
// downloader.Observer.
//
// # Usage
//
//	reporter := progress.NewReporter(Options{
//	    Program: "1355",
//	    Output:  os.Stderr,
//	})
//
//	reporter.Start()
//	defer reporter.Stop()
//
// # Output Format
//
//	[templates] Fetching products for program 1355
//	[templates] Found 42 matching observations, 6 chunks of up to 8
//	[templates] Chunks: 3/6 completed | Products: 1210 | Elapsed: 4m 12s
//	[templates] Listed 2401 products from 6 chunks in 8m 3s
//
// A Transfer prints:
//
//	[templates] Mirroring 48 files (2.41 GB)
//	[templates] Files: 12/48 | 603.20 MB | 10.05 MB/s | Elapsed: 1m 0s
//	[templates] Mirrored 48 files (2.41 GB), skipped 0, failed 0 in 4m 5s
package progress
