// Package bulk fetches download manifests for every product of a JWST
// program that matches an instrument and data kind.
//
// Listing products for many observations in a single archive request
// times out, so observations are split into consecutive chunks and each
// chunk's products are listed separately. The per-chunk lists are then
// concatenated and deduplicated by filename, since products such as
// guide-star files are shared between observations.
//
// # Usage
//
//	f := bulk.NewFetcher(archive, bulk.Options{Logger: logger})
//	res, err := f.Fetch(ctx, bulk.Request{
//	    ProgramID:  "1355",
//	    Instrument: "NIRCAM",
//	    DataKind:   "UNCAL",
//	    ChunkSize:  8,
//	})
//	// res.Manifest is nil when nothing matched.
//
// Chunks are listed one after another. Archive errors are returned to the
// caller without retry; transport-level retries live in internal/http.
package bulk
