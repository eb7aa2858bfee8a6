package manifest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"hash"
	"io"
	"time"

	"github.com/google/uuid"
	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"
)

// Suffix is appended to the script object name to form the record name.
const Suffix = ".manifest.json"

// ErrChecksumMismatch is returned when a script does not hash to the
// checksum stored in its record.
var ErrChecksumMismatch = errors.New("manifest: checksum mismatch")

// ErrEmptyScript is returned by Write when there is nothing to store.
var ErrEmptyScript = errors.New("manifest: empty script")

// Record describes a stored download script.
type Record struct {
	ID           string            `json:"id"`
	ProgramID    string            `json:"program_id"`
	Instrument   string            `json:"instrument"`
	DataKind     string            `json:"data_kind"`
	ObsMode      string            `json:"obs_mode,omitempty"`
	Observations int               `json:"observations"`
	ChunkSize    int               `json:"chunk_size"`
	Script       string            `json:"script"`
	ScriptSize   int64             `json:"script_size"`
	ScriptSHA256 string            `json:"script_sha256"`
	Products     []Product         `json:"products"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}

// Product is one file fetched by the script.
type Product struct {
	ObsID    string `json:"obs_id"`
	Filename string `json:"filename"`
	Type     string `json:"type"`
	SubGroup string `json:"sub_group,omitempty"`
	DataURI  string `json:"data_uri"`
	Size     int64  `json:"size,omitempty"`
}

// Options configures manifest operations.
type Options struct {
	Metadata       map[string]string
	VerifyChecksum bool
	Now            func() time.Time
}

// Option is a functional option for configuring manifest operations.
type Option func(*Options)

// WithMetadata sets caller-defined metadata stored in the record.
func WithMetadata(metadata map[string]string) Option {
	return func(o *Options) {
		o.Metadata = metadata
	}
}

// WithVerifyChecksum enables checksum verification in Open.
func WithVerifyChecksum(verify bool) Option {
	return func(o *Options) {
		o.VerifyChecksum = verify
	}
}

// WithClock sets the time source used for CreatedAt.
func WithClock(now func() time.Time) Option {
	return func(o *Options) {
		o.Now = now
	}
}

func applyOptions(opts []Option) Options {
	o := Options{Now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// RecordPath returns the record object name for a script object.
func RecordPath(object string) string {
	return object + Suffix
}

// Write stores script at object and its record next to it. The record is
// written last, so a readable record implies a complete script.
//
// The returned record carries the generated id, size and checksum.
func Write(ctx context.Context, bucket *blob.Bucket, object string, script []byte, rec Record, opts ...Option) (*Record, error) {
	if len(script) == 0 {
		return nil, ErrEmptyScript
	}
	o := applyOptions(opts)

	sum := sha256.Sum256(script)
	rec.ID = uuid.NewString()
	rec.Script = object
	rec.ScriptSize = int64(len(script))
	rec.ScriptSHA256 = hex.EncodeToString(sum[:])
	rec.CreatedAt = o.Now().UTC()
	if o.Metadata != nil {
		rec.Metadata = o.Metadata
	}
	if rec.Products == nil {
		rec.Products = []Product{}
	}

	if err := writeObject(ctx, bucket, object, script, "text/x-shellscript"); err != nil {
		return nil, fmt.Errorf("manifest: write script: %w", err)
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("manifest: marshal record: %w", err)
	}
	if err := writeObject(ctx, bucket, RecordPath(object), data, "application/json"); err != nil {
		return nil, fmt.Errorf("manifest: write record: %w", err)
	}

	return &rec, nil
}

func writeObject(ctx context.Context, bucket *blob.Bucket, path string, data []byte, contentType string) error {
	w, err := bucket.NewWriter(ctx, path, &blob.WriterOptions{ContentType: contentType})
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

// Read loads the record stored for object.
//
// Returns an error if:
//   - The record doesn't exist (error wraps gcerrors.NotFound, see IsNotFound)
//   - The record JSON is malformed (encoding/json error)
//   - The context is cancelled
func Read(ctx context.Context, bucket *blob.Bucket, object string) (*Record, error) {
	data, err := bucket.ReadAll(ctx, RecordPath(object))
	if err != nil {
		return nil, fmt.Errorf("manifest: read record: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("manifest: unmarshal record: %w", err)
	}
	return &rec, nil
}

// Open streams the script stored at object.
func Open(ctx context.Context, bucket *blob.Bucket, object string, opts ...Option) (io.ReadCloser, *Record, error) {
	o := applyOptions(opts)

	rec, err := Read(ctx, bucket, object)
	if err != nil {
		return nil, nil, err
	}

	r, err := bucket.NewReader(ctx, object, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("manifest: open script: %w", err)
	}
	if !o.VerifyChecksum {
		return r, rec, nil
	}
	return &verifyingReader{
		r:        r,
		hash:     sha256.New(),
		expected: rec.ScriptSHA256,
	}, rec, nil
}

// verifyingReader hashes everything read and checks the sum at EOF.
type verifyingReader struct {
	r        io.ReadCloser
	hash     hash.Hash
	expected string
}

func (v *verifyingReader) Read(p []byte) (int, error) {
	n, err := v.r.Read(p)
	v.hash.Write(p[:n])
	if errors.Is(err, io.EOF) {
		if got := hex.EncodeToString(v.hash.Sum(nil)); got != v.expected {
			return n, fmt.Errorf("%w: expected %s, got %s", ErrChecksumMismatch, v.expected, got)
		}
	}
	return n, err
}

func (v *verifyingReader) Close() error {
	return v.r.Close()
}

// Delete removes a script and its record. A missing script is not an
// error; a missing record is.
func Delete(ctx context.Context, bucket *blob.Bucket, object string) error {
	if _, err := Read(ctx, bucket, object); err != nil {
		return err
	}
	if err := bucket.Delete(ctx, object); err != nil && !IsNotFound(err) {
		return fmt.Errorf("manifest: delete script: %w", err)
	}
	if err := bucket.Delete(ctx, RecordPath(object)); err != nil {
		return fmt.Errorf("manifest: delete record: %w", err)
	}
	return nil
}

// IsNotFound reports whether err indicates a missing object.
func IsNotFound(err error) bool {
	return gcerrors.Code(err) == gcerrors.NotFound
}
