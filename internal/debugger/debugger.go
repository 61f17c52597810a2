// Copyright (c) 2025 Gryffin Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

// Package debugger bridges to the dedicated debugging collaborator: given
// a test-failure log and a file-tree snapshot it returns a multi-file
// patch set. The bridge performs no file I/O on the apply side; the
// executor owns applying the fix.
package debugger

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"gryffin/internal/advisor"
	"gryffin/internal/llm"
)

// FileContent is one file in a patch set
type FileContent struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// Fix is the debugging collaborator's patch set. When NeedsHuman is true
// the file and command lists may be empty; Explanation and
// HumanInstructions are then the authoritative fields.
type Fix struct {
	FilesToCreate     []FileContent `json:"files_to_create"`
	FilesToModify     []FileContent `json:"files_to_modify"`
	FilesToDelete     []string      `json:"files_to_delete"`
	CommandsToRun     []string      `json:"commands_to_run"`
	Explanation       string        `json:"explanation"`
	Confidence        string        `json:"confidence"`
	NeedsHuman        bool          `json:"needs_human"`
	HumanInstructions string        `json:"human_instructions,omitempty"`
}

const systemPrompt = "You are a world-class debugging agent who ALWAYS provides autonomous fixes. " +
	"You analyze test failures deeply and generate complete, working solutions. " +
	"Return only valid JSON with all required fields."

// Bridge consults the debugging collaborator
type Bridge struct {
	gen llm.Generator
}

// New creates a bridge over the given transport
func New(gen llm.Generator) *Bridge {
	return &Bridge{gen: gen}
}

// Analyze asks the debugging collaborator for a fix to a test failure.
// Transport failures and malformed responses yield the canonical
// low-confidence needs-human fallback; Analyze never returns an error.
func (b *Bridge) Analyze(ctx context.Context, errorLog string, tree *FileTree, readme, contextDesc string) Fix {
	structure, _ := json.Marshal(truncateList(tree.Structure, 100))
	contents, _ := json.Marshal(tree.Files)
	if len(contents) > 10000 {
		contents = contents[:10000]
	}
	if readme == "" {
		readme = "No README available"
	}

	userPrompt := fmt.Sprintf(`You are a senior debugging agent analyzing a test failure.

## Context
%s

## Project README
%s

## File Tree Structure
%s

## Relevant File Contents
%s

## Test Failure Output
%s

## Your Task
Analyze this test failure and provide a COMPLETE, AUTONOMOUS fix.

CRITICAL RULES:
- If tests fail because of missing setup files, create them
- If files are in wrong locations, provide the correct file structure
- If external APIs are called in tests, mock them properly
- If dependencies are missing, include the install command
- Only flag needs_human=true if truly impossible to fix (requires credentials, manual setup, etc.)

Return JSON with:
- files_to_create: array of {"path": "relative/path", "content": "full file content"}
- files_to_modify: array of {"path": "relative/path", "content": "new full content"}
- files_to_delete: array of file paths to delete
- commands_to_run: array of shell commands to execute (in order)
- explanation: what was wrong and how you fixed it
- confidence: "high"/"medium"/"low"
- needs_human: true only if impossible to fix autonomously
- human_instructions: (only if needs_human=true) step-by-step instructions`,
		contextDesc, readme, structure, contents, fenced(truncate(errorLog, 3000)))

	raw, err := b.gen.GenerateJSON(ctx, systemPrompt, userPrompt)
	if err != nil {
		slog.Debug("debugging collaborator unavailable", "error", err)
		return fallbackFix()
	}

	var fix Fix
	if err := json.Unmarshal(raw, &fix); err != nil {
		slog.Debug("debugging collaborator returned malformed response", "error", err)
		return fallbackFix()
	}
	if fix.Confidence == "" {
		fix.Confidence = advisor.ConfidenceLow
	}
	if fix.Explanation == "" {
		fix.Explanation = "Unknown fix"
	}
	return fix
}

func fallbackFix() Fix {
	return Fix{
		Explanation:       "Could not generate debug fix",
		Confidence:        advisor.ConfidenceLow,
		NeedsHuman:        true,
		HumanInstructions: "Please manually review the test failures.",
	}
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

func truncateList(items []string, n int) []string {
	if len(items) > n {
		return items[:n]
	}
	return items
}

func fenced(s string) string {
	return "```\n" + s + "\n```"
}
