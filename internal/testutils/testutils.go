//go:build integration

// Package testutils provides shared test infrastructure for integration tests.
package testutils

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"gocloud.dev/blob"

	"github.com/JWST-Templates/Notebooks/internal/mast/masttest"
)

// Program describes a synthetic archive program.
type Program struct {
	ID           string
	Instrument   string
	Observations int
}

// StartArchive starts a fake archive serving p. Each observation has its
// own uncal and rate products plus an info association shared by every
// observation, so listings in different chunks overlap. Every product's
// file is served with its listed size.
func StartArchive(t *testing.T, p Program) *masttest.Server {
	t.Helper()

	srv := masttest.NewServer()
	t.Cleanup(srv.Close)

	shared := masttest.Product{
		ProductFilename:            fmt.Sprintf("jw%s-o001_20220808t145528_image3_00001_asn.json", p.ID),
		ProductType:                "INFO",
		ProductSubGroupDescription: "ASN",
		DataURI:                    fmt.Sprintf("mast:JWST/product/jw%s-o001_asn.json", p.ID),
	}
	srv.Files[shared.DataURI] = []byte(`{"asn_type": "image3"}`)

	for i := 1; i <= p.Observations; i++ {
		obsID := fmt.Sprintf("%d%04d", 8760, i)
		srv.Observations = append(srv.Observations, masttest.Observation{
			ObsID:          obsID,
			ObsCollection:  "JWST",
			ProposalID:     p.ID,
			InstrumentName: p.Instrument,
			ObsIDString:    fmt.Sprintf("jw%s%03d001_02101_00001", p.ID, i),
			TargetName:     "SGAS1723+34",
		})

		var products []masttest.Product
		for _, kind := range []string{"uncal", "rate"} {
			name := fmt.Sprintf("jw%s%03d001_02101_00001_nrcb1_%s.fits", p.ID, i, kind)
			products = append(products, masttest.Product{
				ObsID:                      obsID,
				ProductFilename:            name,
				ProductType:                "SCIENCE",
				ProductSubGroupDescription: strings.ToUpper(kind),
				DataURI:                    "mast:JWST/product/" + name,
				Size:                       int64(1000 * i),
			})
			srv.Files["mast:JWST/product/"+name] = bytes.Repeat([]byte{byte(i)}, 1000*i)
		}
		s := shared
		s.ObsID = obsID
		products = append(products, s)
		srv.Products[obsID] = products
	}

	return srv
}

// ReadObject reads a whole object or fails the test.
func ReadObject(t *testing.T, ctx context.Context, bucketURL, key string) []byte {
	t.Helper()

	bucket, err := blob.OpenBucket(ctx, bucketURL)
	require.NoError(t, err, "open bucket")
	defer bucket.Close()

	data, err := bucket.ReadAll(ctx, key)
	require.NoError(t, err, "read %s", key)
	return data
}

// MinioEnv contains connection information for a Minio test environment.
type MinioEnv struct {
	Container testcontainers.Container
	BucketURL string
	Endpoint  string
	AccessKey string
	SecretKey string
}

// Close terminates the Minio container.
func (e *MinioEnv) Close(ctx context.Context) error {
	if e.Container != nil {
		return e.Container.Terminate(ctx)
	}
	return nil
}

// OpenBucket opens a gocloud bucket connection to the Minio environment.
func (e *MinioEnv) OpenBucket(ctx context.Context) (*blob.Bucket, error) {
	return blob.OpenBucket(ctx, e.BucketURL)
}

// StartMinioContainer starts a Minio container with a pre-created bucket.
func StartMinioContainer(t *testing.T, ctx context.Context, bucketName string) *MinioEnv {
	t.Helper()

	const (
		accessKey = "minioadmin"
		secretKey = "minioadmin"
	)

	networkName := fmt.Sprintf("templates-minio-net-%d", time.Now().UnixNano())
	network, err := testcontainers.GenericNetwork(ctx, testcontainers.GenericNetworkRequest{
		NetworkRequest: testcontainers.NetworkRequest{
			Name: networkName,
		},
	})
	require.NoError(t, err, "create network")
	t.Cleanup(func() { network.Remove(ctx) })

	minioContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "minio/minio:latest",
			ExposedPorts: []string{"9000/tcp"},
			Networks:     []string{networkName},
			NetworkAliases: map[string][]string{
				networkName: {"minio"},
			},
			Env: map[string]string{
				"MINIO_ROOT_USER":     accessKey,
				"MINIO_ROOT_PASSWORD": secretKey,
			},
			Cmd:        []string{"server", "/data"},
			WaitingFor: wait.ForHTTP("/minio/health/ready").WithPort("9000"),
		},
		Started: true,
	})
	require.NoError(t, err, "start minio container")

	createBucket(t, ctx, networkName, accessKey, secretKey, bucketName)

	host, err := minioContainer.Host(ctx)
	require.NoError(t, err, "get container host")
	port, err := minioContainer.MappedPort(ctx, "9000")
	require.NoError(t, err, "get container port")
	endpoint := fmt.Sprintf("%s:%s", host, port.Port())

	// gocloud s3blob URL parameters for a path-style, plain HTTP endpoint
	bucketURL := fmt.Sprintf("s3://%s?endpoint=http://%s&use_path_style=true&disable_https=true&region=us-east-1",
		bucketName,
		endpoint,
	)

	t.Setenv("AWS_ACCESS_KEY_ID", accessKey)
	t.Setenv("AWS_SECRET_ACCESS_KEY", secretKey)

	return &MinioEnv{
		Container: minioContainer,
		BucketURL: bucketURL,
		Endpoint:  endpoint,
		AccessKey: accessKey,
		SecretKey: secretKey,
	}
}

// createBucket creates a bucket using a one-shot minio/mc container.
func createBucket(t *testing.T, ctx context.Context, networkName, accessKey, secretKey, bucketName string) {
	t.Helper()

	mcContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:      "minio/mc:latest",
			Networks:   []string{networkName},
			Entrypoint: []string{"/bin/sh", "-c"},
			Cmd: []string{
				fmt.Sprintf(
					"/usr/bin/mc alias set local http://minio:9000 %s %s && /usr/bin/mc mb local/%s; exit 0",
					accessKey, secretKey, bucketName,
				),
			},
			WaitingFor: wait.ForExit(),
		},
		Started: true,
	})
	require.NoError(t, err, "start mc container")
	defer mcContainer.Terminate(ctx)
}
