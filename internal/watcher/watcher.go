// Copyright (c) 2025 Gryffin Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

// Package watcher monitors a prompt.txt journal and invokes a handler
// whenever a new, distinct prompt is appended. Editors replace files
// rather than append to them, so the watch is on the parent directory
// and events are filtered down to the journal itself.
package watcher

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// Handler receives each newly observed prompt.
type Handler func(ctx context.Context, prompt string)

// Watcher tails a prompt journal for new entries.
type Watcher struct {
	promptPath string
	handler    Handler
	fsw        *fsnotify.Watcher

	lastPrompt string
}

// New creates a watcher for promptPath. The parent directory must
// exist; the journal itself may not yet.
func New(promptPath string, handler Handler) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(filepath.Dir(promptPath)); err != nil {
		fsw.Close()
		return nil, err
	}
	return &Watcher{
		promptPath: promptPath,
		handler:    handler,
		fsw:        fsw,
	}, nil
}

// Close releases the underlying file watcher.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

// Watch blocks until ctx is cancelled, invoking the handler once per
// new distinct prompt. Repeats of the current prompt are ignored.
func (w *Watcher) Watch(ctx context.Context) error {
	// Seed with the current last entry so a pre-existing journal does
	// not fire on the first write event.
	w.lastPrompt = LatestPrompt(w.promptPath)

	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if event.Name != w.promptPath {
				continue
			}
			if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) {
				continue
			}
			prompt := LatestPrompt(w.promptPath)
			if prompt == "" || prompt == w.lastPrompt {
				continue
			}
			w.lastPrompt = prompt
			w.handler(ctx, prompt)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			slog.Warn("prompt watcher error", "error", err)

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// LatestPrompt returns the newest prompt in the journal: the last
// non-blank line, with its bracketed timestamp prefix stripped. A
// missing or empty journal yields "".
func LatestPrompt(promptPath string) string {
	data, err := os.ReadFile(promptPath)
	if err != nil {
		return ""
	}

	last := ""
	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) != "" {
			last = line
		}
	}
	return ExtractPromptLine(last)
}

// ExtractPromptLine strips the "[timestamp] " prefix from one journal
// line. Lines without a prefix pass through trimmed.
func ExtractPromptLine(line string) string {
	stripped := strings.TrimSpace(line)
	if stripped == "" {
		return ""
	}
	if strings.HasPrefix(stripped, "[") {
		if idx := strings.Index(stripped, "]"); idx >= 0 {
			return strings.TrimSpace(stripped[idx+1:])
		}
	}
	return stripped
}
