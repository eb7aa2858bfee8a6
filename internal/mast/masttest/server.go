// Package masttest provides an in-process fake of the MAST Portal API
// for tests.
package masttest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
)

// Observation is a row served by Mast.Caom.Filtered.
type Observation struct {
	ObsID          string `json:"obsid"`
	ObsCollection  string `json:"obs_collection"`
	ProposalID     string `json:"proposal_id"`
	InstrumentName string `json:"instrument_name"`
	ObsIDString    string `json:"obs_id"`
	TargetName     string `json:"target_name"`
}

// Product is a row served by Mast.Caom.Products.
type Product struct {
	ObsID                      string `json:"obsID"`
	ProductFilename            string `json:"productFilename"`
	ProductType                string `json:"productType"`
	ProductSubGroupDescription string `json:"productSubGroupDescription"`
	DataURI                    string `json:"dataURI"`
	Description                string `json:"description"`
	Size                       int64  `json:"size"`
}

// Server is a fake archive. Fields may be set before the first request.
type Server struct {
	*httptest.Server

	// Observations are returned for every filtered query whose
	// proposal_id filter matches.
	Observations []Observation

	// Products maps an obsid to its products.
	Products map[string][]Product

	// Files maps a data URI to the bytes served by the file download
	// endpoint. Unknown URIs answer 404.
	Files map[string][]byte

	// Token, when set, is the only token accepted by the auth endpoint.
	Token string

	// PageSize overrides the page size requested by clients.
	PageSize int

	// ExecutingPolls makes each invoke answer EXECUTING this many times
	// before completing.
	ExecutingPolls int

	mu         sync.Mutex
	requests   []Request
	bundles    []Bundle
	authTokens []string
	downloads  []Download
	executing  map[string]int
}

// Request is a recorded invoke request.
type Request struct {
	Service       string
	Params        map[string]any
	Page          int
	Authorization string
}

// Bundle is a recorded bundle request.
type Bundle struct {
	Filename         string
	URLs             []string
	ProductTypes     []string
	DescriptionCount int
	Authorization    string
}

// Download is a recorded file download request.
type Download struct {
	URI           string
	Authorization string
}

// NewServer starts a fake archive.
func NewServer() *Server {
	s := &Server{
		Products:  make(map[string][]Product),
		Files:     make(map[string][]byte),
		executing: make(map[string]int),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v0/invoke", s.handleInvoke)
	mux.HandleFunc("/api/v0.1/Download/bundle.sh", s.handleBundle)
	mux.HandleFunc("/api/v0.1/Download/file", s.handleFile)
	mux.HandleFunc("/token_info", s.handleAuth)
	s.Server = httptest.NewServer(mux)
	return s
}

// AuthURL returns the token info endpoint of the fake.
func (s *Server) AuthURL() string {
	return s.URL + "/token_info"
}

// Requests returns the invoke requests received so far.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// Bundles returns the bundle requests received so far.
func (s *Server) Bundles() []Bundle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Bundle(nil), s.bundles...)
}

// AuthTokens returns the tokens presented to the auth endpoint.
func (s *Server) AuthTokens() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.authTokens...)
}

// Downloads returns the file download requests received so far.
func (s *Server) Downloads() []Download {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Download(nil), s.downloads...)
}

// ProductRequests returns the obsid lists of each Mast.Caom.Products call.
func (s *Server) ProductRequests() [][]string {
	var out [][]string
	for _, r := range s.Requests() {
		if r.Service != "Mast.Caom.Products" || r.Page != 1 {
			continue
		}
		ids, _ := r.Params["obsid"].(string)
		out = append(out, strings.Split(ids, ","))
	}
	return out
}

type invokeRequest struct {
	Service  string         `json:"service"`
	Params   map[string]any `json:"params"`
	PageSize int            `json:"pagesize"`
	Page     int            `json:"page"`
}

func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var req invokeRequest
	if err := json.Unmarshal([]byte(r.PostForm.Get("request")), &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	key := r.PostForm.Get("request")
	if s.executing[key] < s.ExecutingPolls {
		s.executing[key]++
		s.mu.Unlock()
		writeJSON(w, map[string]any{"status": "EXECUTING", "msg": "", "data": []any{}})
		return
	}
	s.requests = append(s.requests, Request{
		Service:       req.Service,
		Params:        req.Params,
		Page:          req.Page,
		Authorization: r.Header.Get("Authorization"),
	})
	s.mu.Unlock()

	var rows []any
	switch req.Service {
	case "Mast.Caom.Filtered":
		for _, o := range s.Observations {
			if matchesFilters(o, req.Params["filters"]) {
				rows = append(rows, o)
			}
		}
	case "Mast.Caom.Products":
		ids, _ := req.Params["obsid"].(string)
		for _, id := range strings.Split(ids, ",") {
			for _, p := range s.Products[id] {
				rows = append(rows, p)
			}
		}
	default:
		writeJSON(w, map[string]any{"status": "ERROR", "msg": "unknown service " + req.Service})
		return
	}

	pageSize := req.PageSize
	if s.PageSize > 0 {
		pageSize = s.PageSize
	}
	if pageSize <= 0 {
		pageSize = len(rows) + 1
	}
	page := req.Page
	if page <= 0 {
		page = 1
	}
	pages := (len(rows) + pageSize - 1) / pageSize
	if pages == 0 {
		pages = 1
	}
	start := (page - 1) * pageSize
	end := start + pageSize
	if start > len(rows) {
		start = len(rows)
	}
	if end > len(rows) {
		end = len(rows)
	}
	data := rows[start:end]
	if data == nil {
		data = []any{}
	}

	writeJSON(w, map[string]any{
		"status": "COMPLETE",
		"msg":    "",
		"data":   data,
		"paging": map[string]any{
			"page":          page,
			"pageSize":      pageSize,
			"pagesFiltered": pages,
			"rows":          len(data),
			"rowsFiltered":  len(rows),
			"rowsTotal":     len(rows),
		},
	})
}

func (s *Server) handleBundle(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var urls []string
	if list := r.PostForm.Get("urlList"); list != "" {
		urls = strings.Split(list, ",")
	}

	s.mu.Lock()
	s.bundles = append(s.bundles, Bundle{
		Filename:         r.PostForm.Get("filename"),
		URLs:             urls,
		ProductTypes:     r.PostForm["productTypeList"],
		DescriptionCount: len(r.PostForm["descriptionList"]),
		Authorization:    r.Header.Get("Authorization"),
	})
	s.mu.Unlock()

	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprintln(w, "#!/bin/sh")
	for _, u := range urls {
		name := u[strings.LastIndex(u, "/")+1:]
		fmt.Fprintf(w, "curl --globoff --location-trusted -f --progress-bar --create-dirs $CURL_FLAGS --output 'MAST/%s' 'https://mast.stsci.edu/api/v0.1/Download/file/?uri=%s'\n", name, u)
	}
}

func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	uri := r.URL.Query().Get("uri")

	s.mu.Lock()
	s.downloads = append(s.downloads, Download{URI: uri, Authorization: r.Header.Get("Authorization")})
	data, ok := s.Files[uri]
	s.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Write(data)
}

func (s *Server) handleAuth(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "token ")

	s.mu.Lock()
	s.authTokens = append(s.authTokens, token)
	s.mu.Unlock()

	if s.Token != "" && token != s.Token {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	writeJSON(w, map[string]any{"ezid": "templates", "username": "templates@example.org"})
}

// matchesFilters applies proposal_id filters; other filters are accepted.
func matchesFilters(o Observation, raw any) bool {
	filters, _ := raw.([]any)
	for _, f := range filters {
		m, _ := f.(map[string]any)
		if m["paramName"] != "proposal_id" {
			continue
		}
		values, _ := m["values"].([]any)
		found := false
		for _, v := range values {
			if v == o.ProposalID {
				found = true
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
