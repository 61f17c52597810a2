// Copyright (c) 2025 Gryffin Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package executor

import (
	"encoding/json"
	"fmt"
	"strings"

	"gryffin/internal/insight"
	"gryffin/internal/planner"
	"gryffin/internal/session"
	"gryffin/internal/snapshot"
)

// Context is the execution state shared between the orchestrator and
// the task executor. It is exclusively owned by that pair and never
// accessed concurrently.
type Context struct {
	TargetDir      string
	Architecture   map[string]any
	Tasks          []planner.Task
	CompletedTasks []string
	Snapshot       *snapshot.Tree
	ReadmeContent  string
	Insight        *insight.CodebaseInsight
	Tracker        *session.Tracker
}

// RefreshSnapshot re-walks the target tree so subsequent tasks see the
// current file set. A failed walk keeps the previous snapshot.
func (c *Context) RefreshSnapshot() {
	if tree, err := snapshot.Take(c.TargetDir); err == nil {
		c.Snapshot = tree
	}
}

// ProjectContext renders the shared framing every collaborator call
// references: architecture, progress so far, and a file-tree excerpt.
func (c *Context) ProjectContext() string {
	var b strings.Builder

	if len(c.Architecture) > 0 {
		arch, _ := json.MarshalIndent(c.Architecture, "", "  ")
		fmt.Fprintf(&b, "## Architecture\n%s\n\n", arch)
	}
	if c.Insight != nil {
		fmt.Fprintf(&b, "## Existing Codebase\n%s\n", c.Insight.Summary())
	}
	if len(c.CompletedTasks) > 0 {
		fmt.Fprintf(&b, "## Completed Tasks\n")
		for _, title := range c.CompletedTasks {
			fmt.Fprintf(&b, "- %s\n", title)
		}
		b.WriteString("\n")
	}
	if c.Snapshot != nil {
		fmt.Fprintf(&b, "## Project Files\n")
		limit := len(c.Snapshot.Files)
		if limit > 100 {
			limit = 100
		}
		for _, f := range c.Snapshot.Files[:limit] {
			fmt.Fprintf(&b, "- %s\n", f)
		}
	}
	return b.String()
}
