//go:build integration

package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JWST-Templates/Notebooks/internal/testutils"
	"github.com/JWST-Templates/Notebooks/pkg/manifest"
)

func TestCLIIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	t.Setenv("MAST_API_TOKEN", "")
	t.Setenv("TEMPLATES_TOKEN", "")

	// Start the archive
	t.Log("Starting fake archive...")
	archive := testutils.StartArchive(t, testutils.Program{
		ID:           "01355",
		Instrument:   "NIRCAM/IMAGE",
		Observations: 12,
	})
	archive.Token = "integration-token"

	// Start Minio
	t.Log("Starting Minio container...")
	minio := testutils.StartMinioContainer(t, ctx, "cli-test-bucket")
	defer func() {
		if err := minio.Close(ctx); err != nil {
			t.Logf("failed to terminate minio container: %v", err)
		}
	}()

	objectPath := "scripts/01355/uncal.sh"

	t.Run("fetch", func(t *testing.T) {
		_, errOut, exitCode := capture(t, "",
			"fetch", "01355", "NIRCAM", "UNCAL",
			"-archive-url", archive.URL,
			"-auth-url", archive.AuthURL(),
			"-token", "integration-token",
			"-chunk_size", "5",
			"-bucket", minio.BucketURL,
			"-object", objectPath,
		)
		require.Equal(t, ExitSuccess, exitCode, "fetch: %s", errOut)

		assert.Len(t, archive.ProductRequests(), 3, "product list requests")
		assert.Equal(t, []string{"integration-token"}, archive.AuthTokens())
	})

	t.Run("manifest", func(t *testing.T) {
		bucket, err := minio.OpenBucket(ctx)
		require.NoError(t, err)
		defer bucket.Close()

		rec, err := manifest.Read(ctx, bucket, objectPath)
		require.NoError(t, err)
		assert.Equal(t, 12, rec.Observations)
		assert.Len(t, rec.Products, 12)
		for _, p := range rec.Products {
			assert.Equal(t, "UNCAL", p.SubGroup, p.Filename)
		}
	})

	t.Run("validate", func(t *testing.T) {
		_, _, exitCode := capture(t, "", "validate",
			"-bucket", minio.BucketURL,
			"-object", objectPath,
		)
		require.Equal(t, ExitSuccess, exitCode, "validate")
	})

	t.Run("script_to_file", func(t *testing.T) {
		tmpFile := filepath.Join(t.TempDir(), "uncal.sh")

		_, _, exitCode := capture(t, "", "script",
			"-bucket", minio.BucketURL,
			"-object", objectPath,
			"-output", tmpFile,
		)
		require.Equal(t, ExitSuccess, exitCode, "script")

		got, err := os.ReadFile(tmpFile)
		require.NoError(t, err)
		stored := testutils.ReadObject(t, ctx, minio.BucketURL, objectPath)
		assert.Equal(t, string(stored), string(got), "script file matches stored object")
		assert.Equal(t, 12, strings.Count(string(got), "curl "), "curl lines")
	})

	t.Run("mirror", func(t *testing.T) {
		_, errOut, exitCode := capture(t, "", "mirror",
			"-bucket", minio.BucketURL,
			"-object", objectPath,
			"-prefix", "MAST/01355",
			"-archive-url", archive.URL,
			"-auth-url", archive.AuthURL(),
			"-token", "integration-token",
			"-workers", "4",
		)
		require.Equal(t, ExitSuccess, exitCode, "mirror: %s", errOut)

		data := testutils.ReadObject(t, ctx, minio.BucketURL, "MAST/01355/jw01355012001_02101_00001_nrcb1_uncal.fits")
		assert.Len(t, data, 12000)
		for _, d := range archive.Downloads() {
			assert.Equal(t, "token integration-token", d.Authorization, d.URI)
		}
	})

	t.Run("delete", func(t *testing.T) {
		_, _, exitCode := capture(t, "", "delete",
			"-bucket", minio.BucketURL,
			"-object", objectPath,
			"-force",
		)
		require.Equal(t, ExitSuccess, exitCode, "delete")

		_, _, exitCode = capture(t, "", "validate",
			"-bucket", minio.BucketURL,
			"-object", objectPath,
		)
		assert.Equal(t, ExitStorageError, exitCode, "validate after delete")
	})
}
