package downloader

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/memblob"

	archivehttp "github.com/JWST-Templates/Notebooks/internal/http"
	"github.com/JWST-Templates/Notebooks/internal/mast/masttest"
	"github.com/JWST-Templates/Notebooks/pkg/manifest"
)

func testHTTP() *archivehttp.Client {
	return archivehttp.NewClient(archivehttp.Options{
		MaxIdleConnsPerHost: 4,
		Timeout:             10 * time.Second,
		RetryAttempts:       1,
		RetryBackoff:        time.Millisecond,
		RetryMaxBackoff:     time.Millisecond,
	})
}

// newArchive serves n product files of increasing size and returns the
// products as a manifest would record them.
func newArchive(t *testing.T, n int) (*masttest.Server, []manifest.Product) {
	t.Helper()

	srv := masttest.NewServer()
	t.Cleanup(srv.Close)

	var products []manifest.Product
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("jw01355001001_02101_%05d_nrcb1_uncal.fits", i+1)
		uri := "mast:JWST/product/" + name
		data := bytes.Repeat([]byte{byte('a' + i)}, 2880*(i+1))
		srv.Files[uri] = data
		products = append(products, manifest.Product{
			ObsID:    "87600001",
			Filename: name,
			Type:     "SCIENCE",
			SubGroup: "UNCAL",
			DataURI:  uri,
			Size:     int64(len(data)),
		})
	}
	return srv, products
}

func openBucket(t *testing.T) *blob.Bucket {
	t.Helper()
	bucket, err := blob.OpenBucket(context.Background(), "mem://")
	require.NoError(t, err)
	t.Cleanup(func() { bucket.Close() })
	return bucket
}

type recorder struct {
	mu        sync.Mutex
	completed map[string]int64
	skipped   []string
	failed    []string
}

func (r *recorder) FileCompleted(name string, n int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.completed == nil {
		r.completed = make(map[string]int64)
	}
	r.completed[name] = n
}

func (r *recorder) FileSkipped(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.skipped = append(r.skipped, name)
}

func (r *recorder) FileFailed(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed = append(r.failed, name)
}

func TestDownloadBasic(t *testing.T) {
	srv, products := newArchive(t, 5)
	bucket := openBucket(t)
	ctx := context.Background()
	rec := &recorder{}

	summary, err := Download(ctx, bucket, products, Options{
		BaseURL:  srv.URL,
		Prefix:   "MAST",
		Workers:  3,
		HTTP:     testHTTP(),
		Observer: rec,
	})
	require.NoError(t, err)

	assert.Equal(t, 5, summary.Downloaded)
	assert.Zero(t, summary.Skipped)
	assert.Zero(t, summary.Failed)
	assert.Equal(t, int64(2880*15), summary.Bytes)
	assert.Len(t, rec.completed, 5)

	for _, p := range products {
		key := ObjectKey("MAST", p.Filename)
		got, err := bucket.ReadAll(ctx, key)
		require.NoError(t, err, key)
		assert.Equal(t, srv.Files[p.DataURI], got, "%s: content", key)

		attrs, err := bucket.Attributes(ctx, key)
		require.NoError(t, err, key)
		assert.Equal(t, p.DataURI, attrs.Metadata["data_uri"], key)
	}
}

func TestDownloadResume(t *testing.T) {
	srv, products := newArchive(t, 3)
	bucket := openBucket(t)
	ctx := context.Background()

	// A complete earlier copy of the first file and a truncated second one.
	require.NoError(t, bucket.WriteAll(ctx, ObjectKey("MAST", products[0].Filename), srv.Files[products[0].DataURI], nil))
	require.NoError(t, bucket.WriteAll(ctx, ObjectKey("MAST", products[1].Filename), []byte("partial"), nil))

	summary, err := Download(ctx, bucket, products, Options{BaseURL: srv.URL, Prefix: "MAST", HTTP: testHTTP()})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 2, summary.Downloaded)
	for _, d := range srv.Downloads() {
		assert.NotEqual(t, products[0].DataURI, d.URI, "complete file was downloaded again")
	}

	got, err := bucket.ReadAll(ctx, ObjectKey("MAST", products[1].Filename))
	require.NoError(t, err)
	assert.Equal(t, srv.Files[products[1].DataURI], got, "truncated file replaced")

	// Force fetches everything again.
	before := len(srv.Downloads())
	summary, err = Download(ctx, bucket, products, Options{BaseURL: srv.URL, Prefix: "MAST", HTTP: testHTTP(), Force: true})
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Downloaded)
	assert.Equal(t, 3, len(srv.Downloads())-before)
}

func TestDownloadPartialFailure(t *testing.T) {
	srv, products := newArchive(t, 4)
	delete(srv.Files, products[2].DataURI)
	bucket := openBucket(t)
	ctx := context.Background()
	rec := &recorder{}

	summary, err := Download(ctx, bucket, products, Options{BaseURL: srv.URL, HTTP: testHTTP(), Observer: rec})
	require.ErrorIs(t, err, ErrIncomplete)
	assert.Equal(t, 3, summary.Downloaded)
	assert.Equal(t, 1, summary.Failed)
	require.Len(t, summary.Failures, 1)
	assert.Equal(t, products[2].Filename, summary.Failures[0].Filename)
	assert.ErrorIs(t, summary.Failures[0].Error, archivehttp.ErrNotFound)
	assert.Len(t, rec.failed, 1)

	exists, err := bucket.Exists(ctx, products[2].Filename)
	require.NoError(t, err)
	assert.False(t, exists, "failed file should not exist in the bucket")
}

func TestDownloadCircuitBreaker(t *testing.T) {
	srv, products := newArchive(t, 6)
	for uri := range srv.Files {
		delete(srv.Files, uri)
	}
	bucket := openBucket(t)

	_, err := Download(context.Background(), bucket, products, Options{
		BaseURL:                srv.URL,
		Workers:                1,
		HTTP:                   testHTTP(),
		MaxConsecutiveFailures: 2,
	})

	var cbErr *CircuitBreakerError
	require.ErrorAs(t, err, &cbErr)
	assert.Equal(t, 2, cbErr.ConsecutiveFailures)
	assert.Len(t, cbErr.FailedFiles, 2)
	assert.Len(t, srv.Downloads(), 2)
}

func TestDownloadCircuitBreakerInFlight(t *testing.T) {
	const (
		missing = "mast:JWST/product/a_uncal.fits"
		slow    = "mast:JWST/product/b_uncal.fits"
	)
	slowArrived := make(chan struct{})
	done := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("uri") {
		case slow:
			close(slowArrived)
			select {
			case <-r.Context().Done():
			case <-done:
			}
		default:
			<-slowArrived
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)
	t.Cleanup(func() { close(done) })

	products := []manifest.Product{
		{Filename: "a_uncal.fits", DataURI: missing, Size: 2880},
		{Filename: "b_uncal.fits", DataURI: slow, Size: 2880},
	}
	rec := &recorder{}

	summary, err := Download(context.Background(), openBucket(t), products, Options{
		BaseURL:                server.URL,
		Workers:                2,
		HTTP:                   testHTTP(),
		MaxConsecutiveFailures: 1,
		Observer:               rec,
	})

	var cbErr *CircuitBreakerError
	require.ErrorAs(t, err, &cbErr)
	require.Len(t, cbErr.FailedFiles, 2, "in-flight file reported")
	assert.Equal(t, "a_uncal.fits", cbErr.FailedFiles[0].Filename)
	assert.ErrorIs(t, cbErr.FailedFiles[0].Error, archivehttp.ErrNotFound)
	assert.Equal(t, "b_uncal.fits", cbErr.FailedFiles[1].Filename)
	assert.ErrorIs(t, cbErr.FailedFiles[1].Error, context.Canceled)
	assert.Equal(t, 2, summary.Failed)
	assert.Equal(t, 1, cbErr.ConsecutiveFailures)
	assert.Len(t, rec.failed, 2)
}

func TestDownloadSizeMismatch(t *testing.T) {
	srv, products := newArchive(t, 1)
	products[0].Size++
	bucket := openBucket(t)
	ctx := context.Background()

	summary, err := Download(ctx, bucket, products, Options{BaseURL: srv.URL, HTTP: testHTTP()})
	require.ErrorIs(t, err, ErrIncomplete)
	require.Len(t, summary.Failures, 1)
	assert.ErrorIs(t, summary.Failures[0].Error, ErrSizeMismatch)

	exists, err := bucket.Exists(ctx, products[0].Filename)
	require.NoError(t, err)
	assert.False(t, exists, "short file should have been discarded")
}

func TestDownloadToken(t *testing.T) {
	srv, products := newArchive(t, 2)
	bucket := openBucket(t)

	client := testHTTP()
	client.SetToken("tok")
	_, err := Download(context.Background(), bucket, products, Options{BaseURL: srv.URL, HTTP: client})
	require.NoError(t, err)
	for _, d := range srv.Downloads() {
		assert.Equal(t, "token tok", d.Authorization, d.URI)
	}
}

func TestDownloadCancelled(t *testing.T) {
	srv, products := newArchive(t, 3)
	bucket := openBucket(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := Download(ctx, bucket, products, Options{BaseURL: srv.URL, HTTP: testHTTP()})
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, summary.Downloaded)
	assert.Zero(t, summary.Failed)
}

func TestObjectKey(t *testing.T) {
	assert.Equal(t, "a.fits", ObjectKey("", "a.fits"))
	assert.Equal(t, "MAST/a.fits", ObjectKey("MAST/", "a.fits"))
}
