package main

import (
	"fmt"

	"github.com/any-hub/any-hub/internal/version"
)

// printVersion prints the injected version and commit info.
func printVersion() {
	fmt.Fprintln(stdOut, version.Full())
}
