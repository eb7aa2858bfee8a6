package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/JWST-Templates/Notebooks/internal/config"
	"github.com/JWST-Templates/Notebooks/pkg/phot"
)

// runPhot looks up photometric constants or converts a summed surface
// brightness to Jy.
func runPhot(args []string) int {
	fs := flag.NewFlagSet("phot", flag.ContinueOnError)
	fs.SetOutput(stderr)

	filterTable := fs.String("filter-table", "", "Filter width table (default embedded jwst_filters.txt)")

	fs.Usage = func() {
		fmt.Fprintln(stderr, `Usage: templates phot [options] <table> [KEY]
       templates phot tojy <value> <detector>

Tables:
  wave      Filter pivot wavelengths (micron)
  width     Filter bandwidths (micron)
  pixscale  Detector pixel scales (arcsec/pixel)

tojy converts a surface brightness in MJy/sr summed over pixels of the
detector to a flux density in Jy.

Options:`)
		fs.PrintDefaults()
	}

	positional, err := parseInterspersed(fs, args)
	if err != nil {
		return parseExit(err)
	}
	if len(positional) == 0 {
		fs.Usage()
		return ExitInvalidArgs
	}

	if positional[0] == "tojy" {
		return photToJy(positional[1:])
	}

	var t phot.Table[float64]
	switch positional[0] {
	case "wave":
		t = phot.FilterWavelengths()
	case "width":
		t, err = widthTable(*filterTable)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return ExitGeneralError
		}
	case "pixscale":
		t = phot.PixelScales()
	default:
		fmt.Fprintf(stderr, "Unknown table: %s\n", positional[0])
		fs.Usage()
		return ExitInvalidArgs
	}

	entries, err := t.Lookup(positional[1:]...)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}
	if len(entries) == 0 && len(positional) == 2 {
		fmt.Fprintf(stderr, "[templates] No %s entry for %s\n", positional[0], positional[1])
		return ExitGeneralError
	}

	tw := tabwriter.NewWriter(stdout, 0, 8, 2, ' ', 0)
	for _, name := range phot.NewTable(entries).Names() {
		fmt.Fprintf(tw, "%s\t%s\n", name, strconv.FormatFloat(entries[name], 'g', -1, 64))
	}
	tw.Flush()
	return ExitSuccess
}

// widthTable returns the filter width table named by path, the
// TEMPLATES_FILTER_TABLE environment variable, or the embedded table.
func widthTable(path string) (phot.Table[float64], error) {
	if path == "" {
		cfg := config.Default()
		if err := cfg.LoadFromEnv(); err != nil {
			return phot.Table[float64]{}, err
		}
		path = cfg.FilterTable
	}
	if path == "" {
		return phot.FilterWidths(), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return phot.Table[float64]{}, err
	}
	defer f.Close()
	return phot.ParseFilterTable(f)
}

func photToJy(args []string) int {
	if len(args) != 2 {
		fmt.Fprintln(stderr, "Error: tojy takes <value> and <detector>")
		return ExitInvalidArgs
	}
	fnu, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		fmt.Fprintf(stderr, "Error: invalid value %q: %v\n", args[0], err)
		return ExitInvalidArgs
	}

	jy, err := phot.CalToJy(fnu, args[1])
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		if errors.Is(err, phot.ErrUnknownDetector) {
			return ExitInvalidArgs
		}
		return ExitGeneralError
	}

	fmt.Fprintln(stdout, strconv.FormatFloat(jy, 'g', -1, 64))
	return ExitSuccess
}
