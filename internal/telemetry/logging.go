// Copyright (c) 2025 Gryffin Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package telemetry

import (
	"log/slog"
	"os"
	"strings"
)

// SetupLogging installs the default slog handler. The level is taken from
// GRYFFIN_LOG_LEVEL (debug, info, warn, error); info when unset.
func SetupLogging() *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(os.Getenv("GRYFFIN_LOG_LEVEL")) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
