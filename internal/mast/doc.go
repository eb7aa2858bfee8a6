// Package mast is a client for the MAST Portal API, the archive that
// serves JWST data products.
//
// It covers the four capabilities the bulk fetcher needs: criteria-based
// observation search (Mast.Caom.Filtered), product listing for a set of
// observations (Mast.Caom.Products), token login, and generation of a curl
// download script for a product list (the bundle endpoint).
//
// Requests go through internal/http, which retries server errors. This
// package re-polls responses whose status is EXECUTING and follows result
// pages; everything else is returned to the caller as-is.
package mast
