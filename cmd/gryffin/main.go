// Copyright (c) 2025 Gryffin Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

// Gryffin is an autonomous build-and-fix engine: it plans a project
// from a prompt, executes the plan task by task, and keeps fixing
// until the result actually runs.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil && !errors.Is(err, context.Canceled) {
		os.Exit(1)
	}
}
