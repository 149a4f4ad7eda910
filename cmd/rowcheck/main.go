// Command rowcheck validates a JSON array of rows against a schema
// document and exits non-zero when any non-deleted row is invalid.
package main

import (
	"errors"
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if !errors.Is(err, errInvalidRows) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}
