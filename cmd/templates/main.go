package main

import (
	"fmt"
	"io"
	"os"
)

// Exit codes
const (
	ExitSuccess          = 0
	ExitGeneralError     = 1
	ExitInvalidArgs      = 2
	ExitArchiveNotAccess = 3
	ExitMirrorIncomplete = 4
	ExitStorageError     = 5
	ExitValidationFailed = 7
)

// Command output goes to stdout; status lines and errors go to stderr.
var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
	stdin  io.Reader = os.Stdin
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return ExitInvalidArgs
	}

	command := args[0]
	cmdArgs := args[1:]

	switch command {
	case "fetch":
		return runFetch(cmdArgs)
	case "validate":
		return runValidate(cmdArgs)
	case "script":
		return runScript(cmdArgs)
	case "mirror":
		return runMirror(cmdArgs)
	case "delete":
		return runDelete(cmdArgs)
	case "coords":
		return runCoords(cmdArgs)
	case "phot":
		return runPhot(cmdArgs)
	case "targets":
		return runTargets(cmdArgs)
	case "help", "-h", "--help":
		printUsage()
		return ExitSuccess
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", command)
		printUsage()
		return ExitInvalidArgs
	}
}

func printUsage() {
	fmt.Fprintln(stderr, `Usage: templates <command> [options]

Commands:
  fetch     Build a download script for a JWST program and store it with its manifest
  validate  Verify a stored script against its manifest
  script    Print or save a stored download script
  mirror    Download the products listed in a stored manifest into a bucket
  delete    Remove a stored script and its manifest
  coords    Print target coordinates and day of year from FITS headers
  phot      Look up filter wavelengths, widths, pixel scales, or convert to Jy
  targets   List TEMPLATES targets and their redshifts

Run 'templates <command> -h' for command-specific help.`)
}
