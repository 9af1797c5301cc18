package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"webpconv/models"
)

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(exitCode(err))
	}
}

// exitCode is 2 for requests rejected before any work, 1 otherwise.
func exitCode(err error) int {
	var ve *models.ValidationError
	if errors.As(err, &ve) {
		return 2
	}
	return 1
}
