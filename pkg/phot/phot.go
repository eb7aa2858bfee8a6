package phot

import (
	"bufio"
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
)

// MJySrToJyPerSqArcsec converts MJy/sr to Jy/arcsec².
const MJySrToJyPerSqArcsec = 2.35044e-5

// ErrUnknownDetector is returned by CalToJy for a detector with no pixel scale.
var ErrUnknownDetector = errors.New("phot: unknown detector")

// Pivot wavelengths in microns, NIRCam and MIRI imaging (JDox, 3/2022).
var filterWavelengths = NewTable(map[string]float64{
	"F070W":  0.704,
	"F090W":  0.902,
	"F115W":  1.154,
	"F150W":  1.501,
	"F150W2": 1.659,
	"F200W":  1.989,
	"F212N":  2.121,
	"F250M":  2.503,
	"F277W":  2.762,
	"F300M":  2.989,
	"F322W2": 3.232,
	"F356W":  3.568,
	"F410M":  4.082,
	"F430M":  4.281,
	"F444W":  4.408,
	"F480M":  4.874,
	"F560W":  5.6,
	"F770W":  7.7,
	"F1000W": 10.0,
	"F1130W": 11.3,
	"F1280W": 12.8,
	"F1500W": 15.0,
	"F1800W": 18.0,
	"F2100W": 21.0,
	"F2550W": 25.5,
})

// Pixel scales in arcsec/pixel. NIRSpec is not included.
var pixelScales = NewTable(map[string]float64{
	"nrc_sw":      0.031,
	"nrc_lw":      0.063,
	"niriss":      0.0656,
	"fgs":         0.0656,
	"miri_imager": 0.11,
})

//go:embed jwst_filters.txt
var filterTable []byte

var (
	widthsOnce sync.Once
	widths     Table[float64]
	widthsErr  error
)

// FilterWavelengths returns the filter pivot wavelength table, in microns.
func FilterWavelengths() Table[float64] { return filterWavelengths }

// AllFilterWavelengths returns every filter pivot wavelength.
func AllFilterWavelengths() map[string]float64 { return filterWavelengths.All() }

// WavelengthForFilter returns the pivot wavelength of filter.
func WavelengthForFilter(filter string) (float64, bool) { return filterWavelengths.Get(filter) }

// FilterWidths returns the embedded filter bandwidth table, in microns.
// It panics if the embedded table is malformed.
func FilterWidths() Table[float64] {
	widthsOnce.Do(func() {
		widths, widthsErr = ParseFilterTable(bytes.NewReader(filterTable))
	})
	if widthsErr != nil {
		panic(widthsErr)
	}
	return widths
}

// AllFilterWidths returns every filter bandwidth.
func AllFilterWidths() map[string]float64 { return FilterWidths().All() }

// WidthForFilter returns the bandwidth of filter.
func WidthForFilter(filter string) (float64, bool) { return FilterWidths().Get(filter) }

// PixelScales returns the detector pixel scale table, in arcsec/pixel.
func PixelScales() Table[float64] { return pixelScales }

// AllPixelScales returns every detector pixel scale.
func AllPixelScales() map[string]float64 { return pixelScales.All() }

// PixelScale returns the pixel scale of detector.
func PixelScale(detector string) (float64, bool) { return pixelScales.Get(detector) }

// CalToJy converts a surface brightness in MJy/sr summed over pixels of
// detector, as measured on _cal images, to a flux density in Jy.
func CalToJy(fnu float64, detector string) (float64, error) {
	scale, ok := pixelScales.Get(detector)
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownDetector, detector)
	}
	return fnu * MJySrToJyPerSqArcsec * scale * scale, nil
}

// ParseFilterTable reads a whitespace-delimited filter table. Lines
// starting with # are comments. The first non-comment line is a header
// that must name the filtname and width columns; other columns are ignored.
func ParseFilterTable(r io.Reader) (Table[float64], error) {
	sc := bufio.NewScanner(r)
	nameCol, widthCol := -1, -1
	entries := make(map[string]float64)

	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if i := strings.IndexByte(text, '#'); i >= 0 {
			text = strings.TrimSpace(text[:i])
		}
		if text == "" {
			continue
		}
		fields := strings.Fields(text)

		if nameCol < 0 {
			for i, f := range fields {
				switch f {
				case "filtname":
					nameCol = i
				case "width":
					widthCol = i
				}
			}
			if nameCol < 0 || widthCol < 0 {
				return Table[float64]{}, fmt.Errorf("phot: filter table line %d: header must name filtname and width", line)
			}
			continue
		}

		if len(fields) <= nameCol || len(fields) <= widthCol {
			return Table[float64]{}, fmt.Errorf("phot: filter table line %d: expected at least %d columns", line, max(nameCol, widthCol)+1)
		}
		w, err := strconv.ParseFloat(fields[widthCol], 64)
		if err != nil {
			return Table[float64]{}, fmt.Errorf("phot: filter table line %d: %w", line, err)
		}
		entries[fields[nameCol]] = w
	}
	if err := sc.Err(); err != nil {
		return Table[float64]{}, fmt.Errorf("phot: read filter table: %w", err)
	}
	if nameCol < 0 {
		return Table[float64]{}, errors.New("phot: filter table has no header")
	}

	return NewTable(entries), nil
}
