// Copyright (c) 2025 Gryffin Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package executor

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"gryffin/internal/snapshot"
)

// checkErrors runs a language-appropriate syntax check over the files
// just applied. On failure it asks the advisor for corrected content
// (the file's full content is the "previous attempt"), writes it if it
// differs, re-checks, and rolls back to the original when the check
// still fails. Node projects additionally get one project-level lint
// pass. Returns whether everything passed plus the remaining error
// outputs.
func (e *Executor) checkErrors(ctx context.Context, ec *Context, paths []string) (bool, []string) {
	var remaining []string

	for _, rel := range paths {
		cmd := syntaxCheckCommand(rel)
		if cmd == "" {
			continue
		}

		res, err := e.runner.RunTimeout(ctx, cmd, ec.TargetDir, checkTimeout)
		if err == nil && res.Ok() {
			continue
		}
		errOutput := res.Output
		if err != nil {
			errOutput = err.Error()
		}
		e.console.Warnf("Syntax check failed for %s", rel)

		abs := filepath.Join(ec.TargetDir, rel)
		original, readErr := os.ReadFile(abs)
		if readErr != nil {
			remaining = append(remaining, errOutput)
			continue
		}

		suggestion := e.advisor.Advise(ctx, errOutput, "Syntax check failed for file: "+rel, string(original), 1)
		solution := suggestion.Solution
		if suggestion.NeedsHuman || strings.TrimSpace(solution) == "" || solution == string(original) {
			remaining = append(remaining, errOutput)
			continue
		}

		if writeErr := os.WriteFile(abs, []byte(solution), 0o644); writeErr != nil {
			remaining = append(remaining, errOutput)
			continue
		}
		recheck, recheckErr := e.runner.RunTimeout(ctx, cmd, ec.TargetDir, checkTimeout)
		if recheckErr == nil && recheck.Ok() {
			ec.Tracker.TrackModified(rel)
			e.console.Successf("Auto-fixed %s", rel)
			continue
		}

		// The suggested content did not check out either; restore.
		os.WriteFile(abs, original, 0o644)
		remaining = append(remaining, errOutput)
	}

	if snapshot.DetectProjectType(ec.TargetDir) == snapshot.ProjectNode {
		if lintErr := e.runLint(ctx, ec); lintErr != "" {
			e.console.Warnf("Linting errors found")
			remaining = append(remaining, lintErr)
		}
	}

	return len(remaining) == 0, remaining
}

// runLint runs the project's npm lint script, when one is declared.
// Projects without a lint script skip this silently; lint problems are
// reported but never auto-fixed.
func (e *Executor) runLint(ctx context.Context, ec *Context) string {
	data, err := os.ReadFile(filepath.Join(ec.TargetDir, "package.json"))
	if err != nil {
		return ""
	}
	var pkg struct {
		Scripts map[string]string `json:"scripts"`
	}
	if json.Unmarshal(data, &pkg) != nil || pkg.Scripts["lint"] == "" {
		return ""
	}

	res, err := e.runner.RunTimeout(ctx, "npm run lint", ec.TargetDir, checkTimeout)
	if err != nil {
		return ""
	}
	if strings.Contains(strings.ToLower(res.Output), "error") {
		return "Linting errors found:\n" + res.Output
	}
	return ""
}

// syntaxCheckCommand returns the per-file check for a path, or ""
// when the file type has no cheap static check.
func syntaxCheckCommand(rel string) string {
	switch filepath.Ext(rel) {
	case ".py":
		return "python -m py_compile " + shellQuote(rel)
	case ".js":
		return "node --check " + shellQuote(rel)
	default:
		return ""
	}
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
