package mast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	archivehttp "github.com/JWST-Templates/Notebooks/internal/http"
)

// Default endpoints.
const (
	DefaultBaseURL = "https://mast.stsci.edu"
	DefaultAuthURL = "https://auth.mast.stsci.edu/token_info"

	invokePath = "/api/v0/invoke"
	bundlePath = "/api/v0.1/Download/bundle.sh"
	filePath   = "/api/v0.1/Download/file"

	serviceFiltered = "Mast.Caom.Filtered"
	serviceProducts = "Mast.Caom.Products"
)

// ErrNoProducts is returned by DownloadScript when the filter leaves
// nothing to download.
var ErrNoProducts = errors.New("mast: no products to download")

// ErrStillExecuting is returned when the archive keeps answering
// EXECUTING past the poll limit.
var ErrStillExecuting = errors.New("mast: request still executing")

// Options configures the archive client.
type Options struct {
	// BaseURL is the archive portal root.
	// Default: https://mast.stsci.edu
	BaseURL string

	// AuthURL is the token info endpoint used by Login.
	// Default: https://auth.mast.stsci.edu/token_info
	AuthURL string

	// PageSize is the number of rows requested per page.
	// Default: 50000
	PageSize int

	// PollInterval is the wait between polls of an EXECUTING request.
	// Default: 1s
	PollInterval time.Duration

	// MaxPolls bounds the number of polls of an EXECUTING request.
	// Default: 600
	MaxPolls int

	// ServiceTimeout is the server-side timeout sent with each request, in seconds.
	// Default: 600
	ServiceTimeout int

	// HTTP is the transport. Default: archivehttp.NewClient(archivehttp.DefaultOptions())
	HTTP *archivehttp.Client

	// Logger receives request diagnostics. Default: zap.NewNop()
	Logger *zap.Logger

	// Now is used to stamp script names. Default: time.Now
	Now func() time.Time
}

// Client talks to the MAST Portal API.
type Client struct {
	opts   Options
	http   *archivehttp.Client
	logger *zap.Logger
}

// NewClient creates a new archive client, applying defaults to zero options.
func NewClient(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	if opts.AuthURL == "" {
		opts.AuthURL = DefaultAuthURL
	}
	if opts.PageSize <= 0 {
		opts.PageSize = 50000
	}
	if opts.PollInterval == 0 {
		opts.PollInterval = time.Second
	}
	if opts.MaxPolls <= 0 {
		opts.MaxPolls = 600
	}
	if opts.ServiceTimeout <= 0 {
		opts.ServiceTimeout = 600
	}
	if opts.HTTP == nil {
		opts.HTTP = archivehttp.NewClient(archivehttp.DefaultOptions())
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Client{
		opts:   opts,
		http:   opts.HTTP,
		logger: opts.Logger,
	}
}

// QueryObservations returns every observation matching c.
func (c *Client) QueryObservations(ctx context.Context, crit Criteria) ([]Observation, error) {
	params := map[string]any{
		"columns": "*",
		"filters": buildFilters(crit),
	}

	var rows []rawObservation
	if err := c.invokeAll(ctx, serviceFiltered, params, func(data json.RawMessage) error {
		var page []rawObservation
		if err := json.Unmarshal(data, &page); err != nil {
			return fmt.Errorf("decode observations: %w", err)
		}
		rows = append(rows, page...)
		return nil
	}); err != nil {
		return nil, err
	}

	obs := make([]Observation, len(rows))
	for i, r := range rows {
		obs[i] = r.observation()
	}
	return obs, nil
}

// ProductList returns the products associated with obs, in archive order.
func (c *Client) ProductList(ctx context.Context, obs []Observation) ([]Product, error) {
	if len(obs) == 0 {
		return nil, nil
	}

	ids := make([]string, len(obs))
	for i, o := range obs {
		ids[i] = o.ObsID
	}
	params := map[string]any{"obsid": strings.Join(ids, ",")}

	var rows []rawProduct
	if err := c.invokeAll(ctx, serviceProducts, params, func(data json.RawMessage) error {
		var page []rawProduct
		if err := json.Unmarshal(data, &page); err != nil {
			return fmt.Errorf("decode products: %w", err)
		}
		rows = append(rows, page...)
		return nil
	}); err != nil {
		return nil, err
	}

	products := make([]Product, len(rows))
	for i, r := range rows {
		products[i] = r.product()
	}
	return products, nil
}

// tokenInfo is the subset of the token info response we log.
type tokenInfo struct {
	EZID     string `json:"ezid"`
	Username string `json:"username"`
}

// Login validates token against the auth service and attaches it to
// subsequent requests.
func (c *Client) Login(ctx context.Context, token string) error {
	if token == "" {
		return errors.New("mast: empty token")
	}

	body, err := c.http.GetWithToken(ctx, c.opts.AuthURL, token)
	if err != nil {
		return fmt.Errorf("mast: login: %w", err)
	}
	defer body.Close()

	var info tokenInfo
	if err := json.NewDecoder(body).Decode(&info); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("mast: login: decode token info: %w", err)
	}

	c.http.SetToken(token)
	c.logger.Info("authenticated with archive",
		zap.String("ezid", info.EZID),
		zap.String("username", info.Username),
	)
	return nil
}

// DownloadScript requests a curl script for the products passing f.
func (c *Client) DownloadScript(ctx context.Context, products []Product, f Filter) (*Script, error) {
	selected := f.Apply(products)
	if len(selected) == 0 {
		return nil, ErrNoProducts
	}

	name := "mastDownload_" + c.opts.Now().UTC().Format("20060102150405")

	uris := make([]string, len(selected))
	form := url.Values{}
	form.Set("filename", name)
	form.Set("extension", "curl")
	for i, p := range selected {
		uris[i] = p.DataURI
		form.Add("descriptionList", p.Description)
		form.Add("productTypeList", p.ProductType)
	}
	form.Set("urlList", strings.Join(uris, ","))

	c.logger.Debug("requesting download script",
		zap.String("name", name),
		zap.Int("products", len(selected)),
	)

	body, err := c.http.PostForm(ctx, c.opts.BaseURL+bundlePath, form)
	if err != nil {
		return nil, fmt.Errorf("mast: bundle: %w", err)
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("mast: bundle: read script: %w", err)
	}

	return &Script{
		Name:     name + ".sh",
		Body:     data,
		Products: selected,
	}, nil
}

// FileURL returns the download URL of one product under the archive root.
func FileURL(baseURL, dataURI string) string {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return strings.TrimRight(baseURL, "/") + filePath + "?uri=" + url.QueryEscape(dataURI)
}

// invokeAll runs a service request page by page, handing each page's
// data to fn.
func (c *Client) invokeAll(ctx context.Context, service string, params map[string]any, fn func(json.RawMessage) error) error {
	for page := 1; ; page++ {
		resp, err := c.invoke(ctx, request{
			Service:           service,
			Params:            params,
			Format:            "json",
			PageSize:          c.opts.PageSize,
			Page:              page,
			RemoveNullColumns: true,
			Timeout:           c.opts.ServiceTimeout,
		})
		if err != nil {
			return err
		}

		if len(resp.Data) > 0 {
			if err := fn(resp.Data); err != nil {
				return err
			}
		}

		if page >= resp.Paging.PagesFiltered {
			return nil
		}
	}
}

// invoke posts one request, polling while the archive reports EXECUTING.
func (c *Client) invoke(ctx context.Context, req request) (*response, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("mast: encode request: %w", err)
	}
	form := url.Values{"request": {string(payload)}}

	for poll := 0; ; poll++ {
		start := time.Now()
		body, err := c.http.PostForm(ctx, c.opts.BaseURL+invokePath, form)
		if err != nil {
			return nil, fmt.Errorf("mast: %s: %w", req.Service, err)
		}

		var resp response
		err = json.NewDecoder(body).Decode(&resp)
		body.Close()
		if err != nil {
			return nil, fmt.Errorf("mast: %s: decode response: %w", req.Service, err)
		}

		c.logger.Debug("archive response",
			zap.String("service", req.Service),
			zap.Int("page", req.Page),
			zap.String("status", resp.Status),
			zap.Int("rows", resp.Paging.Rows),
			zap.Duration("elapsed", time.Since(start)),
		)

		switch resp.Status {
		case statusExecuting:
			if poll+1 >= c.opts.MaxPolls {
				return nil, fmt.Errorf("%w: %s after %d polls", ErrStillExecuting, req.Service, poll+1)
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.opts.PollInterval):
			}
			continue
		case statusError:
			return nil, &ServiceError{Service: req.Service, Msg: resp.Msg}
		}

		return &resp, nil
	}
}

// buildFilters turns criteria into Mast.Caom.Filtered filters. Values
// holding wildcards become freeText filters with SQL '%' wildcards.
func buildFilters(crit Criteria) []filter {
	var filters []filter
	add := func(name, value string) {
		if value == "" {
			return
		}
		if strings.ContainsAny(value, "*%") {
			filters = append(filters, filter{
				ParamName: name,
				Values:    []string{},
				FreeText:  strings.ReplaceAll(value, "*", "%"),
			})
			return
		}
		filters = append(filters, filter{ParamName: name, Values: []string{value}})
	}

	add("obs_collection", crit.Collection)
	add("instrument_name", crit.Instrument)
	add("proposal_id", crit.ProposalID)
	return filters
}
