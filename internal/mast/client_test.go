package mast

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	archivehttp "github.com/JWST-Templates/Notebooks/internal/http"
	"github.com/JWST-Templates/Notebooks/internal/mast/masttest"
)

func newTestServer() *masttest.Server {
	srv := masttest.NewServer()
	srv.Observations = []masttest.Observation{
		{ObsID: "1001", ObsCollection: "JWST", ProposalID: "1355", InstrumentName: "NIRCAM/IMAGE", ObsIDString: "jw01355-o001"},
		{ObsID: "1002", ObsCollection: "JWST", ProposalID: "1355", InstrumentName: "NIRCAM/IMAGE", ObsIDString: "jw01355-o002"},
		{ObsID: "2001", ObsCollection: "JWST", ProposalID: "2736", InstrumentName: "NIRCAM/IMAGE"},
	}
	srv.Products["1001"] = []masttest.Product{
		{ObsID: "1001", ProductFilename: "a_uncal.fits", ProductType: "SCIENCE", ProductSubGroupDescription: "UNCAL", DataURI: "mast:JWST/product/a_uncal.fits", Size: 100},
		{ObsID: "1001", ProductFilename: "gs_uncal.fits", ProductType: "AUXILIARY", ProductSubGroupDescription: "UNCAL", DataURI: "mast:JWST/product/gs_uncal.fits"},
	}
	srv.Products["1002"] = []masttest.Product{
		{ObsID: "1002", ProductFilename: "b_rate.fits", ProductType: "SCIENCE", ProductSubGroupDescription: "RATE", DataURI: "mast:JWST/product/b_rate.fits"},
	}
	return srv
}

func newTestClient(srv *masttest.Server) *Client {
	httpOpts := archivehttp.DefaultOptions()
	httpOpts.RetryBackoff = time.Millisecond
	httpOpts.RetryMaxBackoff = time.Millisecond
	return NewClient(Options{
		BaseURL:      srv.URL,
		AuthURL:      srv.AuthURL(),
		PollInterval: time.Millisecond,
		HTTP:         archivehttp.NewClient(httpOpts),
		Now:          func() time.Time { return time.Date(2022, 8, 8, 14, 55, 28, 0, time.UTC) },
	})
}

func TestQueryObservations(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()

	client := newTestClient(srv)
	obs, err := client.QueryObservations(context.Background(), Criteria{
		Collection: "JWST",
		Instrument: "NIRCAM*",
		ProposalID: "1355",
	})
	require.NoError(t, err)
	require.Len(t, obs, 2)
	assert.Equal(t, "1001", obs[0].ObsID)
	assert.Equal(t, "jw01355-o002", obs[1].ObsIDString)

	reqs := srv.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "Mast.Caom.Filtered", reqs[0].Service)
	assert.Equal(t, "*", reqs[0].Params["columns"])
}

func TestBuildFilters(t *testing.T) {
	filters := buildFilters(Criteria{Collection: "JWST", Instrument: "NIRSPEC*", ProposalID: "1355"})
	require.Len(t, filters, 3)

	assert.Equal(t, filter{ParamName: "obs_collection", Values: []string{"JWST"}}, filters[0])
	assert.Equal(t, "instrument_name", filters[1].ParamName)
	assert.Empty(t, filters[1].Values)
	assert.Equal(t, "NIRSPEC%", filters[1].FreeText)
	assert.Equal(t, []string{"1355"}, filters[2].Values)

	exact := buildFilters(Criteria{Instrument: "NIRSPEC/IFU"})
	require.Len(t, exact, 1)
	assert.Equal(t, []string{"NIRSPEC/IFU"}, exact[0].Values)
	assert.Empty(t, exact[0].FreeText)
}

func TestQueryObservationsPaging(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()
	srv.PageSize = 1

	client := newTestClient(srv)
	obs, err := client.QueryObservations(context.Background(), Criteria{ProposalID: "1355"})
	require.NoError(t, err)
	assert.Len(t, obs, 2)
	assert.Len(t, srv.Requests(), 2)
}

func TestQueryObservationsExecuting(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()
	srv.ExecutingPolls = 2

	client := newTestClient(srv)
	obs, err := client.QueryObservations(context.Background(), Criteria{ProposalID: "1355"})
	require.NoError(t, err)
	assert.Len(t, obs, 2)
}

func TestQueryObservationsStillExecuting(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()
	srv.ExecutingPolls = 10

	client := newTestClient(srv)
	client.opts.MaxPolls = 3
	_, err := client.QueryObservations(context.Background(), Criteria{ProposalID: "1355"})
	assert.ErrorIs(t, err, ErrStillExecuting)
}

func TestServiceError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"ERROR","msg":"Incorrect filter","data":null}`))
	}))
	defer server.Close()

	client := NewClient(Options{BaseURL: server.URL})
	_, err := client.QueryObservations(context.Background(), Criteria{ProposalID: "x"})

	var se *ServiceError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "Mast.Caom.Filtered", se.Service)
	assert.Equal(t, "Incorrect filter", se.Msg)
}

func TestProductList(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()

	client := newTestClient(srv)
	products, err := client.ProductList(context.Background(), []Observation{{ObsID: "1001"}, {ObsID: "1002"}})
	require.NoError(t, err)
	require.Len(t, products, 3)
	assert.Equal(t, "a_uncal.fits", products[0].ProductFilename)
	assert.Equal(t, int64(100), products[0].Size)
	assert.Equal(t, "b_rate.fits", products[2].ProductFilename)

	assert.Equal(t, [][]string{{"1001", "1002"}}, srv.ProductRequests())
}

func TestProductListEmpty(t *testing.T) {
	client := NewClient(Options{BaseURL: "http://127.0.0.1:0"})
	products, err := client.ProductList(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, products)
}

func TestDecodeNumericIDs(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"COMPLETE","data":[{"obsID":87602009,"productFilename":"x.fits","size":"2880"}],"paging":{"page":1,"pagesFiltered":1}}`))
	}))
	defer server.Close()

	client := NewClient(Options{BaseURL: server.URL})
	products, err := client.ProductList(context.Background(), []Observation{{ObsID: "87602009"}})
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "87602009", products[0].ObsID)
	assert.Equal(t, int64(2880), products[0].Size)
}

func TestLogin(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()
	srv.Token = "good"

	client := newTestClient(srv)
	ctx := context.Background()

	err := client.Login(ctx, "bad")
	assert.ErrorIs(t, err, archivehttp.ErrUnauthorized)

	require.NoError(t, client.Login(ctx, "good"))

	_, err = client.QueryObservations(ctx, Criteria{ProposalID: "1355"})
	require.NoError(t, err)
	reqs := srv.Requests()
	assert.Equal(t, "token good", reqs[len(reqs)-1].Authorization)

	assert.Error(t, client.Login(ctx, ""))
}

func TestDownloadScript(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()

	client := newTestClient(srv)
	products := []Product{
		{ProductFilename: "a_uncal.fits", ProductType: "SCIENCE", ProductSubGroupDescription: "UNCAL", DataURI: "mast:JWST/product/a_uncal.fits"},
		{ProductFilename: "gs_uncal.fits", ProductType: "AUXILIARY", ProductSubGroupDescription: "UNCAL", DataURI: "mast:JWST/product/gs_uncal.fits"},
		{ProductFilename: "a_rate.fits", ProductType: "SCIENCE", ProductSubGroupDescription: "RATE", DataURI: "mast:JWST/product/a_rate.fits"},
		{ProductFilename: "a_asn.json", ProductType: "INFO", ProductSubGroupDescription: "UNCAL", DataURI: "mast:JWST/product/a_asn.json"},
	}

	script, err := client.DownloadScript(context.Background(), products, Filter{
		ProductTypes: []string{ProductTypeScience, ProductTypeInfo},
		SubGroup:     "UNCAL",
	})
	require.NoError(t, err)

	assert.Equal(t, "mastDownload_20220808145528.sh", script.Name)
	require.Len(t, script.Products, 2)
	assert.Equal(t, "a_uncal.fits", script.Products[0].ProductFilename)
	assert.Equal(t, "a_asn.json", script.Products[1].ProductFilename)
	assert.True(t, strings.HasPrefix(string(script.Body), "#!/bin/sh\n"))
	assert.Equal(t, 2, strings.Count(string(script.Body), "curl "))

	bundles := srv.Bundles()
	require.Len(t, bundles, 1)
	assert.Equal(t, "mastDownload_20220808145528", bundles[0].Filename)
	assert.Equal(t, []string{"SCIENCE", "INFO"}, bundles[0].ProductTypes)
	assert.Equal(t, 2, bundles[0].DescriptionCount)
}

func TestDownloadScriptNothingSelected(t *testing.T) {
	client := NewClient(Options{BaseURL: "http://127.0.0.1:0"})
	_, err := client.DownloadScript(context.Background(), []Product{{ProductType: "AUXILIARY"}}, Filter{ProductTypes: []string{"SCIENCE"}})
	assert.ErrorIs(t, err, ErrNoProducts)
}

func TestFilterMatch(t *testing.T) {
	f := Filter{ProductTypes: []string{"SCIENCE", "INFO"}, SubGroup: "CAL"}

	assert.True(t, f.Match(Product{ProductType: "SCIENCE", ProductSubGroupDescription: "CAL"}))
	assert.True(t, f.Match(Product{ProductType: "INFO", ProductSubGroupDescription: "CAL"}))
	assert.False(t, f.Match(Product{ProductType: "info", ProductSubGroupDescription: "cal"}), "case differs")
	assert.False(t, f.Match(Product{ProductType: "SCIENCE", ProductSubGroupDescription: "RATE"}))
	assert.False(t, f.Match(Product{ProductType: "PREVIEW", ProductSubGroupDescription: "CAL"}))
	assert.True(t, Filter{}.Match(Product{ProductType: "anything"}))
}

func TestFileURL(t *testing.T) {
	assert.Equal(t,
		"https://mast.stsci.edu/api/v0.1/Download/file?uri=mast%3AJWST%2Fproduct%2Fa_uncal.fits",
		FileURL("", "mast:JWST/product/a_uncal.fits"))
	assert.Equal(t,
		"http://127.0.0.1:8080/api/v0.1/Download/file?uri=x.fits",
		FileURL("http://127.0.0.1:8080/", "x.fits"))
}
