package main

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/JWST-Templates/Notebooks/pkg/targets"
)

// runTargets lists the program targets with their redshifts.
func runTargets(args []string) int {
	if len(args) > 0 {
		fmt.Fprintln(stderr, "Usage: templates targets")
		return ExitInvalidArgs
	}

	z := targets.Redshifts()
	tw := tabwriter.NewWriter(stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "TARGET\tZ")
	for _, name := range targets.Names() {
		fmt.Fprintf(tw, "%s\t%s\n", name, strconv.FormatFloat(z[name], 'f', -1, 64))
	}
	tw.Flush()
	return ExitSuccess
}
