// Copyright (c) 2025 Gryffin Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

// Package codegen bridges to the code-generation collaborator. A task
// description plus project context goes in; a change set of full file
// contents and companion tests comes out. Applying the change set is
// the executor's job.
package codegen

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"gryffin/internal/llm"
)

// FileChange is one file to write, with its complete new content.
type FileChange struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// TestFile is a companion test for the generated change.
type TestFile struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// ChangeSet is everything the collaborator proposes for one task.
type ChangeSet struct {
	Files       []FileChange `json:"files"`
	Tests       []TestFile   `json:"tests"`
	Explanation string       `json:"explanation"`
}

// Empty reports whether the change set carries no work at all.
func (c ChangeSet) Empty() bool {
	return len(c.Files) == 0 && len(c.Tests) == 0
}

// Paths returns every file path touched by the change set, files first.
func (c ChangeSet) Paths() []string {
	paths := make([]string, 0, len(c.Files)+len(c.Tests))
	for _, f := range c.Files {
		paths = append(paths, f.Path)
	}
	for _, tf := range c.Tests {
		paths = append(paths, tf.Path)
	}
	return paths
}

const systemPrompt = "You are an expert software engineer generating production-quality code. " +
	"You write complete, working files with proper imports and error handling. " +
	"Every change ships with tests. Return only valid JSON."

// Generator asks the code-generation collaborator for change sets.
type Generator struct {
	gen llm.Generator
}

// New creates a generator over the given transport.
func New(gen llm.Generator) *Generator {
	return &Generator{gen: gen}
}

// Generate requests a change set for one task. The returned error is
// non-nil only when the collaborator is unreachable or returns
// something unusable; there is no silent fallback here because an
// empty change set would stall the task, not advance it.
func (g *Generator) Generate(ctx context.Context, taskTitle, taskDetails, projectContext, readme string) (ChangeSet, error) {
	if readme == "" {
		readme = "No README available"
	}

	userPrompt := fmt.Sprintf(`Implement the following task in the existing project.

## Task
%s

## Task Details
%s

## Project Context
%s

## Project README
%s

## Requirements
- Return COMPLETE file contents, never diffs or snippets
- Preserve existing conventions visible in the project context
- Include at least one test file exercising the new behavior
- Use relative paths from the project root

Return JSON with:
- files: array of {"path": "relative/path", "content": "full file content"}
- tests: array of {"path": "relative/path", "content": "full test file content"}
- explanation: short summary of the change`,
		taskTitle, taskDetails, projectContext, readme)

	raw, err := g.gen.GenerateJSON(ctx, systemPrompt, userPrompt)
	if err != nil {
		return ChangeSet{}, fmt.Errorf("generating code for %q: %w", taskTitle, err)
	}

	var cs ChangeSet
	if err := json.Unmarshal(raw, &cs); err != nil {
		return ChangeSet{}, fmt.Errorf("parsing change set for %q: %w", taskTitle, err)
	}
	cs.sanitize()
	if cs.Empty() {
		return ChangeSet{}, fmt.Errorf("collaborator returned an empty change set for %q", taskTitle)
	}
	slog.Debug("change set generated", "task", taskTitle, "files", len(cs.Files), "tests", len(cs.Tests))
	return cs, nil
}

// sanitize drops entries with empty or absolute paths and normalizes
// path separators.
func (c *ChangeSet) sanitize() {
	c.Files = cleanChanges(c.Files)
	tests := make([]TestFile, 0, len(c.Tests))
	for _, tf := range c.Tests {
		if p, ok := cleanPath(tf.Path); ok {
			tf.Path = p
			tests = append(tests, tf)
		}
	}
	c.Tests = tests
}

func cleanChanges(files []FileChange) []FileChange {
	out := make([]FileChange, 0, len(files))
	for _, f := range files {
		if p, ok := cleanPath(f.Path); ok {
			f.Path = p
			out = append(out, f)
		}
	}
	return out
}

func cleanPath(p string) (string, bool) {
	p = strings.TrimSpace(p)
	if p == "" || strings.HasPrefix(p, "/") || strings.Contains(p, "..") {
		return "", false
	}
	return strings.ReplaceAll(p, "\\", "/"), true
}
