package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
)

var (
	exit             = os.Exit
	stderr io.Writer = os.Stderr
)

// ExitOnError ends a command after a fatal error. flag.ErrHelp exits with
// status 0 because usage was already printed; any other error is written to
// stderr and exits with status 1. A nil error returns normally.
func ExitOnError(err error) {
	if err == nil {
		return
	}
	if errors.Is(err, flag.ErrHelp) {
		exit(0)
		return
	}
	fmt.Fprintf(stderr, "Error: %v\n", err)
	exit(1)
}
