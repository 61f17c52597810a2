// Copyright (c) 2025 Gryffin Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

// Package prompter captures the user's build prompt and records it in
// the target directory's prompt.txt journal. Each entry is one line,
// prefixed with a UTC timestamp in brackets, so the journal doubles as
// a history of everything the project was asked to become.
package prompter

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gryffin/internal/console"
)

// PromptFile is the journal file name inside the target directory.
const PromptFile = "prompt.txt"

// ErrNoPrompt is returned when input is exhausted before a non-empty
// prompt was entered.
var ErrNoPrompt = errors.New("no prompt provided")

// Entry is one captured prompt.
type Entry struct {
	Prompt     string
	Timestamp  string
	PromptPath string
}

// Take asks for a prompt until a non-empty one is entered, then
// appends it to prompt.txt under targetDir.
func Take(con *console.Console, targetDir string) (Entry, error) {
	prompt := ""
	for prompt == "" {
		line, ok := con.ReadLine("what are we building today?: ")
		if !ok {
			return Entry{}, ErrNoPrompt
		}
		prompt = line
	}
	return Record(prompt, targetDir)
}

// Record appends an already-captured prompt to the journal.
func Record(prompt string, targetDir string) (Entry, error) {
	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return Entry{}, fmt.Errorf("creating %s: %w", targetDir, err)
	}

	timestamp := time.Now().UTC().Format("2006-01-02T15:04:05Z")
	promptPath := filepath.Join(targetDir, PromptFile)

	f, err := os.OpenFile(promptPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return Entry{}, fmt.Errorf("opening %s: %w", promptPath, err)
	}
	defer f.Close()

	if _, err := fmt.Fprintf(f, "[%s] %s\n", timestamp, prompt); err != nil {
		return Entry{}, fmt.Errorf("writing %s: %w", promptPath, err)
	}

	return Entry{Prompt: prompt, Timestamp: timestamp, PromptPath: promptPath}, nil
}
