package main

import (
	"flag"
	"fmt"
	"text/tabwriter"

	"github.com/JWST-Templates/Notebooks/pkg/jwst"
)

// runCoords prints TARG_RA, TARG_DEC and the day of year of DATE-BEG for
// each FITS file given.
func runCoords(args []string) int {
	fs := flag.NewFlagSet("coords", flag.ContinueOnError)
	fs.SetOutput(stderr)

	fs.Usage = func() {
		fmt.Fprintln(stderr, `Usage: templates coords <file.fits>...

Print the target RA and Dec (degrees) and the UTC day of year of the
exposure start from the primary header of each file.`)
	}

	if err := fs.Parse(args); err != nil {
		return parseExit(err)
	}
	if fs.NArg() == 0 {
		fmt.Fprintln(stderr, "Error: at least one FITS file is required")
		fs.Usage()
		return ExitInvalidArgs
	}

	tw := tabwriter.NewWriter(stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "FILE\tRA\tDEC\tDOY")

	code := ExitSuccess
	for _, path := range fs.Args() {
		p, err := jwst.FromFile(path)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			code = ExitGeneralError
			continue
		}
		fmt.Fprintf(tw, "%s\t%.6f\t%.6f\t%d\n", path, p.RA, p.Dec, p.DayOfYear)
	}
	tw.Flush()

	return code
}
