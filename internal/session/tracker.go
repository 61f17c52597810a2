// Copyright (c) 2025 Gryffin Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

// Package session tracks everything the engine itself did during one run:
// files it created or modified, errors it fixed, and user decisions. The
// tracker decides whether a write may silently overwrite a file (the engine
// owns it) or must be confirmed (it existed before the run).
package session

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// ErrorFix records one auto-fixed error for end-of-run reporting
type ErrorFix struct {
	Timestamp string
	Error     string
	Fix       string
	File      string
}

const maxLoggedErrorLen = 500

// Tracker is the per-run registry of engine-made changes. It is constructed
// once, reset at the start of each run, and passed by reference through the
// execution context; there is no package-level instance.
type Tracker struct {
	runID    string
	created  map[string]struct{}
	modified map[string]struct{}
	errorLog []ErrorFix
}

// NewTracker creates an empty tracker
func NewTracker() *Tracker {
	t := &Tracker{}
	t.Reset()
	return t
}

// Reset clears all tracked state for a new run
func (t *Tracker) Reset() {
	t.runID = uuid.NewString()
	t.created = make(map[string]struct{})
	t.modified = make(map[string]struct{})
	t.errorLog = nil
}

// RunID identifies the current run
func (t *Tracker) RunID() string {
	return t.runID
}

// TrackCreated records a file the engine created
func (t *Tracker) TrackCreated(path string) {
	t.created[path] = struct{}{}
}

// TrackModified records a file the engine modified
func (t *Tracker) TrackModified(path string) {
	t.modified[path] = struct{}{}
}

// Owns reports whether the engine created or modified the file this run.
// Owned files are overwritten without prompting.
func (t *Tracker) Owns(path string) bool {
	if _, ok := t.created[path]; ok {
		return true
	}
	_, ok := t.modified[path]
	return ok
}

// LogErrorFix appends a fixed error to the run's error log
func (t *Tracker) LogErrorFix(errMsg, fix, file string) {
	if len(errMsg) > maxLoggedErrorLen {
		errMsg = errMsg[:maxLoggedErrorLen]
	}
	t.errorLog = append(t.errorLog, ErrorFix{
		Timestamp: time.Now().Format("15:04:05"),
		Error:     errMsg,
		Fix:       fix,
		File:      file,
	})
}

// ErrorLog returns all errors fixed during this run, in order
func (t *Tracker) ErrorLog() []ErrorFix {
	out := make([]ErrorFix, len(t.errorLog))
	copy(out, t.errorLog)
	return out
}

// TouchedFiles returns the sorted paths of all files created or
// modified this run. Paths both created and modified appear once.
func (t *Tracker) TouchedFiles() []string {
	seen := make(map[string]struct{}, len(t.created)+len(t.modified))
	for p := range t.created {
		seen[p] = struct{}{}
	}
	for p := range t.modified {
		seen[p] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
