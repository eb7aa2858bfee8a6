package phot

import (
	"errors"
	"fmt"
	"maps"
	"slices"
)

// ErrInvalidArgument is returned by Lookup when called with more than one key.
var ErrInvalidArgument = errors.New("phot: number of arguments must be 0 or 1")

// Table is an immutable name to value mapping.
type Table[V any] struct {
	entries map[string]V
}

// NewTable copies entries into a new Table.
func NewTable[V any](entries map[string]V) Table[V] {
	return Table[V]{entries: maps.Clone(entries)}
}

// All returns a copy of every entry.
func (t Table[V]) All() map[string]V {
	out := maps.Clone(t.entries)
	if out == nil {
		out = map[string]V{}
	}
	return out
}

// Get returns the value for name.
func (t Table[V]) Get(name string) (V, bool) {
	v, ok := t.entries[name]
	return v, ok
}

// Names returns the keys in sorted order.
func (t Table[V]) Names() []string {
	return slices.Sorted(maps.Keys(t.entries))
}

// Len returns the number of entries.
func (t Table[V]) Len() int {
	return len(t.entries)
}

// Lookup returns every entry for no keys, the single matching entry (or an
// empty map if unknown) for one key, and ErrInvalidArgument otherwise.
func (t Table[V]) Lookup(keys ...string) (map[string]V, error) {
	switch len(keys) {
	case 0:
		return t.All(), nil
	case 1:
		out := map[string]V{}
		if v, ok := t.entries[keys[0]]; ok {
			out[keys[0]] = v
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: got %d", ErrInvalidArgument, len(keys))
	}
}
