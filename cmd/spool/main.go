package main

import (
	"context"
	"errors"
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		// Ctrl-C during serve or logs -f is a normal exit, not a failure
		// worth printing.
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, "spool:", err)
		}
		os.Exit(1)
	}
}
