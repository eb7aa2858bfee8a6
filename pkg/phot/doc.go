// Package phot provides photometric constants for JWST imaging: filter
// central wavelengths, filter bandwidths, detector pixel scales, and the
// conversion of summed surface brightness to flux density.
//
// Every table is immutable. Each is exposed three ways:
//
//	phot.FilterWavelengths()          // the Table
//	phot.AllFilterWavelengths()       // a copy of every entry
//	phot.WavelengthForFilter("F200W") // one entry, with ok=false if absent
//
// Table.Lookup mirrors the variable-arity form used in notebooks: no keys
// returns everything, one key returns at most one entry, and more than one
// key fails with ErrInvalidArgument.
//
// Bandwidths come from jwst_filters.txt, embedded at build time. An
// alternate table in the same format can be parsed with ParseFilterTable.
package phot
