package manifest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"gocloud.dev/blob"
)

// ValidationResult contains the results of validating a stored manifest.
type ValidationResult struct {
	Valid        bool     // true if the script exists and matches its record
	ScriptSize   int64    // size from the record
	ProductCount int      // number of products in the record
	Errors       []string // detailed error messages
}

// Validate checks that the script recorded for object exists, has the
// recorded size and hashes to the recorded SHA-256.
//
// Returns an error if:
//   - The record doesn't exist (error wraps gcerrors.NotFound)
//   - The record JSON is malformed (encoding/json error)
//   - The script cannot be read (network/permission error)
//   - The context is cancelled
//
// A missing or modified script is NOT returned as an error. It is
// reported in the ValidationResult with Valid=false.
func Validate(ctx context.Context, bucket *blob.Bucket, object string) (*ValidationResult, error) {
	rec, err := Read(ctx, bucket, object)
	if err != nil {
		return nil, err
	}

	result := &ValidationResult{
		Valid:        true,
		ScriptSize:   rec.ScriptSize,
		ProductCount: len(rec.Products),
		Errors:       make([]string, 0),
	}

	attrs, err := bucket.Attributes(ctx, object)
	if err != nil {
		if IsNotFound(err) {
			result.Valid = false
			result.Errors = append(result.Errors, fmt.Sprintf("script missing: %s", object))
			return result, nil
		}
		return nil, fmt.Errorf("manifest: check script: %w", err)
	}

	if attrs.Size != rec.ScriptSize {
		result.Valid = false
		result.Errors = append(result.Errors,
			fmt.Sprintf("script size mismatch: expected %d, got %d", rec.ScriptSize, attrs.Size))
		return result, nil
	}

	r, err := bucket.NewReader(ctx, object, nil)
	if err != nil {
		return nil, fmt.Errorf("manifest: open script: %w", err)
	}
	defer r.Close()

	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return nil, fmt.Errorf("manifest: read script: %w", err)
	}
	if got := hex.EncodeToString(h.Sum(nil)); got != rec.ScriptSHA256 {
		result.Valid = false
		result.Errors = append(result.Errors,
			fmt.Sprintf("script checksum mismatch: expected %s, got %s", rec.ScriptSHA256, got))
	}

	return result, nil
}
