package mast

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
)

// Product types and sub-groups used by the JWST pipeline.
const (
	ProductTypeScience   = "SCIENCE"
	ProductTypeInfo      = "INFO"
	ProductTypeAuxiliary = "AUXILIARY"
	ProductTypePreview   = "PREVIEW"
)

// Observation is one archived observation row.
type Observation struct {
	ObsID          string `json:"obsid"`
	ObsCollection  string `json:"obs_collection"`
	ProposalID     string `json:"proposal_id"`
	InstrumentName string `json:"instrument_name"`
	ObsIDString    string `json:"obs_id"`
	TargetName     string `json:"target_name"`
}

// Product is one downloadable data file.
type Product struct {
	ObsID                      string `json:"obsID"`
	ProductFilename            string `json:"productFilename"`
	ProductType                string `json:"productType"`
	ProductSubGroupDescription string `json:"productSubGroupDescription"`
	DataURI                    string `json:"dataURI"`
	Description                string `json:"description"`
	Size                       int64  `json:"size"`
}

// Criteria selects observations.
type Criteria struct {
	Collection string
	Instrument string // may contain '*' wildcards
	ProposalID string
}

// Filter restricts a product list before script generation.
// Empty fields match everything. Values compare exactly, as the
// archive reports them.
type Filter struct {
	ProductTypes []string
	SubGroup     string
}

// Match reports whether p passes the filter.
func (f Filter) Match(p Product) bool {
	if len(f.ProductTypes) > 0 && !slices.Contains(f.ProductTypes, p.ProductType) {
		return false
	}
	if f.SubGroup != "" && f.SubGroup != p.ProductSubGroupDescription {
		return false
	}
	return true
}

// Apply returns the products that pass the filter, in order.
func (f Filter) Apply(products []Product) []Product {
	var out []Product
	for _, p := range products {
		if f.Match(p) {
			out = append(out, p)
		}
	}
	return out
}

// Script is a generated download script.
type Script struct {
	Name     string
	Body     []byte
	Products []Product
}

// ServiceError is returned when the archive answers with status ERROR.
type ServiceError struct {
	Service string
	Msg     string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("mast: %s: %s", e.Service, e.Msg)
}

// request is the JSON payload of an invoke call.
type request struct {
	Service           string         `json:"service"`
	Params            map[string]any `json:"params"`
	Format            string         `json:"format"`
	PageSize          int            `json:"pagesize"`
	Page              int            `json:"page"`
	RemoveNullColumns bool           `json:"removenullcolumns"`
	Timeout           int            `json:"timeout"`
}

// filter is one entry of Mast.Caom.Filtered "filters".
type filter struct {
	ParamName string   `json:"paramName"`
	Values    []string `json:"values"`
	FreeText  string   `json:"freeText,omitempty"`
}

type paging struct {
	Page          int `json:"page"`
	PageSize      int `json:"pageSize"`
	PagesFiltered int `json:"pagesFiltered"`
	Rows          int `json:"rows"`
	RowsFiltered  int `json:"rowsFiltered"`
	RowsTotal     int `json:"rowsTotal"`
}

type response struct {
	Status string          `json:"status"`
	Msg    string          `json:"msg"`
	Data   json.RawMessage `json:"data"`
	Paging paging          `json:"paging"`
}

// Response statuses.
const (
	statusComplete  = "COMPLETE"
	statusExecuting = "EXECUTING"
	statusError     = "ERROR"
)

// rawObservation and rawProduct tolerate ids and sizes sent as either
// numbers or strings.
type rawObservation struct {
	ObsID          flexString `json:"obsid"`
	ObsCollection  string     `json:"obs_collection"`
	ProposalID     flexString `json:"proposal_id"`
	InstrumentName string     `json:"instrument_name"`
	ObsIDString    string     `json:"obs_id"`
	TargetName     string     `json:"target_name"`
}

type rawProduct struct {
	ObsID                      flexString `json:"obsID"`
	ProductFilename            string     `json:"productFilename"`
	ProductType                string     `json:"productType"`
	ProductSubGroupDescription string     `json:"productSubGroupDescription"`
	DataURI                    string     `json:"dataURI"`
	Description                string     `json:"description"`
	Size                       flexString `json:"size"`
}

type flexString string

func (s *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*s = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = flexString(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*s = flexString(n.String())
	return nil
}

func (r rawObservation) observation() Observation {
	return Observation{
		ObsID:          string(r.ObsID),
		ObsCollection:  r.ObsCollection,
		ProposalID:     string(r.ProposalID),
		InstrumentName: r.InstrumentName,
		ObsIDString:    r.ObsIDString,
		TargetName:     r.TargetName,
	}
}

func (r rawProduct) product() Product {
	var size int64
	if f, err := strconv.ParseFloat(string(r.Size), 64); err == nil {
		size = int64(f)
	}
	return Product{
		ObsID:                      string(r.ObsID),
		ProductFilename:            r.ProductFilename,
		ProductType:                r.ProductType,
		ProductSubGroupDescription: r.ProductSubGroupDescription,
		DataURI:                    r.DataURI,
		Description:                r.Description,
		Size:                       size,
	}
}
