// Package jwst extracts pointing and timing metadata from JWST FITS
// product headers.
package jwst

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/astrogo/fitsio"
)

// Header keywords read by FromHeader.
const (
	KeyTargetRA  = "TARG_RA"
	KeyTargetDec = "TARG_DEC"
	KeyDateBeg   = "DATE-BEG"
)

// ErrMissingKeyword is returned when a required header card is absent.
var ErrMissingKeyword = errors.New("jwst: missing header keyword")

// ErrInvalidTimestamp is returned when a timestamp cannot be parsed.
var ErrInvalidTimestamp = errors.New("jwst: invalid timestamp")

// Pointing is the target position and observation day of a product.
type Pointing struct {
	RA        float64 // degrees
	Dec       float64 // degrees
	DayOfYear int     // 1-366, UTC
}

// FromFile reads the primary header of the FITS file at path.
func FromFile(path string) (Pointing, error) {
	r, err := os.Open(path)
	if err != nil {
		return Pointing{}, fmt.Errorf("jwst: %w", err)
	}
	defer r.Close()

	f, err := fitsio.Open(r)
	if err != nil {
		return Pointing{}, fmt.Errorf("jwst: open %s: %w", path, err)
	}
	defer f.Close()

	if len(f.HDUs()) == 0 {
		return Pointing{}, fmt.Errorf("jwst: %s has no HDUs", path)
	}
	return FromHeader(f.HDU(0).Header())
}

// FromHeader extracts the pointing from an already opened header.
func FromHeader(hdr *fitsio.Header) (Pointing, error) {
	ra, err := floatCard(hdr, KeyTargetRA)
	if err != nil {
		return Pointing{}, err
	}
	dec, err := floatCard(hdr, KeyTargetDec)
	if err != nil {
		return Pointing{}, err
	}

	card := hdr.Get(KeyDateBeg)
	if card == nil {
		return Pointing{}, fmt.Errorf("%w: %s", ErrMissingKeyword, KeyDateBeg)
	}
	stamp, ok := card.Value.(string)
	if !ok {
		return Pointing{}, fmt.Errorf("jwst: %s is %T, want string", KeyDateBeg, card.Value)
	}
	day, err := DayOfYear(stamp)
	if err != nil {
		return Pointing{}, err
	}

	return Pointing{RA: ra, Dec: dec, DayOfYear: day}, nil
}

func floatCard(hdr *fitsio.Header, key string) (float64, error) {
	card := hdr.Get(key)
	if card == nil {
		return 0, fmt.Errorf("%w: %s", ErrMissingKeyword, key)
	}
	switch v := card.Value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("jwst: parse %s: %w", key, err)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("jwst: %s is %T, want number", key, card.Value)
	}
}

// Accepted timestamp layouts. Fractional seconds are accepted by
// time.Parse after the seconds field without being named here.
var layouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// DayOfYear returns the UTC ordinal day of an ISO-8601 timestamp, so
// 2022-01-07T00:00:00 is 7 and 2024-12-31T23:59:59 is 366.
func DayOfYear(stamp string) (int, error) {
	stamp = strings.TrimSpace(stamp)
	for _, layout := range layouts {
		t, err := time.Parse(layout, stamp)
		if err == nil {
			return t.UTC().YearDay(), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidTimestamp, stamp)
}
