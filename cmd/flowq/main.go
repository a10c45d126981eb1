package main

import (
	"context"
	"errors"
	"fmt"
	"os"
)

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			if jsonRequested(cmd) {
				_ = writeJSONError(os.Stdout, err)
			} else {
				fmt.Fprintln(os.Stderr, describeError(err))
			}
		}
		os.Exit(1)
	}
}
