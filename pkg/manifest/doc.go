// Package manifest persists bulk download manifests in cloud storage.
//
// A manifest is the download script returned by the archive plus a JSON
// record describing the request that produced it and the products the
// script fetches. Storage is agnostic via gocloud.dev/blob, so the same
// code writes to a local directory (file://), memory (mem://), S3 (s3://)
// or GCS (gs://).
//
// # Writing
//
// Use [Write] with the script bytes and a [Record] describing the request.
// Write fills in the record id, script size, SHA-256 and creation time.
//
// Options:
//   - [WithMetadata]: Caller-defined metadata stored in the record (optional)
//   - [WithClock]: Time source for CreatedAt (optional)
//
// # Reading
//
// Use [Read] to load the record and [Open] to stream the script. With
// [WithVerifyChecksum], the reader returned by Open fails with
// [ErrChecksumMismatch] at EOF if the script was modified.
//
// # Storage Layout
//
//	{bucket}/{object}                  (the download script)
//	{bucket}/{object}.manifest.json    (the record)
//
// # Record Format
//
//	{
//	  "id": "5d1c3a4e-...",
//	  "program_id": "1355",
//	  "instrument": "NIRCAM",
//	  "data_kind": "UNCAL",
//	  "obs_mode": "all",
//	  "observations": 42,
//	  "chunk_size": 8,
//	  "script": "mastDownload_20220808145528.sh",
//	  "script_size": 18231,
//	  "script_sha256": "...",
//	  "products": [
//	    {"obs_id": "87602009", "filename": "jw01355...uncal.fits", "type": "SCIENCE", ...},
//	    ...
//	  ],
//	  "created_at": "2022-08-08T14:55:28Z"
//	}
package manifest
