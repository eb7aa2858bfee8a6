// Package downloader mirrors archive product files into cloud storage.
//
// It takes the product list recorded in a script manifest and fetches each
// file from the archive download endpoint, streaming it straight into a
// bucket object. A worker pool downloads files in parallel.
//
// # Usage
//
//	summary, err := downloader.Download(ctx, bucket, rec.Products, downloader.Options{
//	    BaseURL: mast.DefaultBaseURL,
//	    Prefix:  "MAST",
//	    Workers: 4,
//	})
//
// # Resume
//
// Files already present under the prefix with the recorded size are skipped,
// so an interrupted run can be repeated. Force re-downloads everything.
//
// # Circuit Breaker
//
// After MaxConsecutiveFailures failed files in a row the run stops and
// returns a *CircuitBreakerError. Files still downloading when it trips are
// cancelled and listed in FailedFiles alongside the failures that tripped
// it. Isolated failures do not stop the run;
// they are collected and returned wrapped in ErrIncomplete.
package downloader
