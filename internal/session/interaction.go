// Copyright (c) 2025 Gryffin Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package session

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// InteractionLogFile is the append-only record of user decision points
const InteractionLogFile = "gryffin_conversation.log"

// InteractionLog appends user decisions to gryffin_conversation.log in the
// target directory. Logging failures never interrupt execution.
type InteractionLog struct {
	targetDir string
}

// NewInteractionLog creates a logger bound to the project directory
func NewInteractionLog(targetDir string) *InteractionLog {
	return &InteractionLog{targetDir: targetDir}
}

// LogInteraction records one decision point with timestamp, context,
// choice, and any free-text instructions
func (l *InteractionLog) LogInteraction(context, choice, instructions string) {
	var b strings.Builder
	fmt.Fprintf(&b, "\n[%s]\n", time.Now().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "Context: %s\n", context)
	fmt.Fprintf(&b, "User Choice: %s\n", choice)
	if instructions != "" {
		fmt.Fprintf(&b, "Additional Instructions: %s\n", instructions)
	}
	b.WriteString(strings.Repeat("-", 80) + "\n")

	path := filepath.Join(l.targetDir, InteractionLogFile)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		slog.Warn("failed to log interaction", "path", path, "error", err)
		return
	}
	defer f.Close()

	if _, err := f.WriteString(b.String()); err != nil {
		slog.Warn("failed to write interaction entry", "path", path, "error", err)
	}
}
