// Package config defines configuration structures for the templates CLI.
//
// Configuration can be provided via:
//   - Command-line flags
//   - Environment variables (TEMPLATES_ prefix, plus MAST_API_TOKEN)
//   - YAML configuration file
//
// Later sources override earlier ones: defaults, then file, then
// environment, then flags.
//
// # Example file
//
//	archive_url: https://mast.stsci.edu
//	chunk_size: 12
//	obs_mode: image
//	bucket: s3://templates-manifests?region=us-east-1
//	timeout: 15m
//	retry:
//	  attempts: 3
//	  backoff: 2s
//	log:
//	  level: info
//	  format: json
package config
