// Copyright (c) 2025 Gryffin Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package executor

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"gryffin/internal/codegen"
	"gryffin/internal/debugger"
)

// applyChangeSet writes a change set into the target tree and returns
// the relative paths actually written. Paths the session tracker owns
// are overwritten silently; anything else that already exists needs
// the user's confirmation first. Merge instructions the user supplies
// are advisory only, no automatic merge is performed.
func (e *Executor) applyChangeSet(ec *Context, cs codegen.ChangeSet) []string {
	var applied []string

	write := func(rel, content string) {
		rel = filepath.FromSlash(rel)
		abs := filepath.Join(ec.TargetDir, rel)
		existed := fileExists(abs)

		if existed && !ec.Tracker.Owns(rel) && !e.autoRun {
			ok, instructions := e.console.Confirm("overwrite "+rel,
				"File "+rel+" already exists and was not created this session. Overwrite? (y/n, optionally add merge notes after a comma)")
			if !ok {
				e.console.Warnf("Skipped %s", rel)
				return
			}
			if instructions != "" {
				e.console.Printf("Merge notes (advisory): %s", instructions)
			}
		}

		if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
			e.console.Failf("Could not create directory for %s: %v", rel, err)
			return
		}
		if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
			e.console.Failf("Could not write %s: %v", rel, err)
			return
		}
		if existed {
			ec.Tracker.TrackModified(rel)
		} else {
			ec.Tracker.TrackCreated(rel)
		}
		applied = append(applied, rel)
	}

	for _, fc := range cs.Files {
		write(fc.Path, fc.Content)
	}
	for _, tf := range cs.Tests {
		write(tf.Path, tf.Content)
	}

	e.console.Printf("Applied %d file(s)", len(applied))
	return applied
}

// applyFix applies a debug patch set in fixed order: deletions first,
// then creations, then modifications, then commands, so dependent
// files exist before any command references them.
func (e *Executor) applyFix(ctx context.Context, ec *Context, fix debugger.Fix) {
	for _, rel := range fix.FilesToDelete {
		abs := filepath.Join(ec.TargetDir, filepath.FromSlash(rel))
		if err := os.Remove(abs); err != nil && !os.IsNotExist(err) {
			slog.Debug("could not delete file from fix", "path", rel, "error", err)
		}
	}

	writeFix := func(rel, content string) {
		rel = filepath.FromSlash(rel)
		abs := filepath.Join(ec.TargetDir, rel)
		existed := fileExists(abs)
		if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
			slog.Debug("could not create directory from fix", "path", rel, "error", err)
			return
		}
		if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
			slog.Debug("could not write file from fix", "path", rel, "error", err)
			return
		}
		if existed {
			ec.Tracker.TrackModified(rel)
		} else {
			ec.Tracker.TrackCreated(rel)
		}
	}

	for _, fc := range fix.FilesToCreate {
		writeFix(fc.Path, fc.Content)
	}
	for _, fc := range fix.FilesToModify {
		writeFix(fc.Path, fc.Content)
	}

	for _, cmd := range fix.CommandsToRun {
		res, err := e.runner.RunTimeout(ctx, cmd, ec.TargetDir, commandTimeout)
		if err != nil || !res.Ok() {
			slog.Debug("fix command failed", "command", cmd)
		}
	}
}

// firstTouchedFile names the file a fix most plausibly repaired, for
// the error-log entry.
func firstTouchedFile(fix debugger.Fix) string {
	if len(fix.FilesToModify) > 0 {
		return fix.FilesToModify[0].Path
	}
	if len(fix.FilesToCreate) > 0 {
		return fix.FilesToCreate[0].Path
	}
	return ""
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
