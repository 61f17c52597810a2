// Copyright (c) 2025 Gryffin Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

// Package advisor asks the fix-advisor collaborator for a corrected
// command or file content after a failure. The advisor is stateless; the
// caller bounds total attempts.
package advisor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"gryffin/internal/llm"
)

// Confidence levels reported by collaborators
const (
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceLow    = "low"
)

// Suggestion is a structured fix from the advisor collaborator
type Suggestion struct {
	Solution          string `json:"solution"`
	Explanation       string `json:"explanation"`
	Confidence        string `json:"confidence"`
	NeedsHuman        bool   `json:"needs_human"`
	HumanInstructions string `json:"human_instructions,omitempty"`
}

const systemPrompt = "You are a senior debugging engineer who ALWAYS tries to fix errors autonomously. " +
	"Only escalate to humans as an absolute last resort. Return only valid JSON with solution, " +
	"explanation, confidence, needs_human (default false), and optionally human_instructions."

// Advisor consults the fix-advisor collaborator
type Advisor struct {
	gen llm.Generator
}

// New creates an advisor over the given transport
func New(gen llm.Generator) *Advisor {
	return &Advisor{gen: gen}
}

// Advise analyzes an error and returns a structured fix suggestion. A
// transport failure or malformed response yields the canonical
// needs-human fallback; Advise never returns an error.
func (a *Advisor) Advise(ctx context.Context, errMsg, contextDesc, previousAttempt string, retryCount int) Suggestion {
	userPrompt := fmt.Sprintf(`An error occurred while %s.

Previous attempt:
%s

Error message:
%s

Retry count: %d

IMPORTANT: Your goal is to FIX THIS ERROR AUTONOMOUSLY. Only flag needs_human=true if it is IMPOSSIBLE to fix without human intervention (e.g., requires external credentials, manual API setup, physical access).

For common errors you CAN and SHOULD fix:
- Missing files/directories: create them
- Missing project structure: initialize it with the proper commands
- Missing dependencies: install them
- Wrong directory: cd to the correct directory or create it
- Configuration issues: generate proper config
- Missing environment variables: create .env with placeholders

Analyze this error and provide an AUTONOMOUS fix. Return JSON with:
- solution: the corrected code/command(s) to try, multiple commands may be joined with &&
- explanation: brief explanation of what went wrong and how the fix addresses it
- confidence: "high", "medium", or "low"
- needs_human: true ONLY if truly impossible to fix autonomously (default: false)
- human_instructions: (only if needs_human=true) step-by-step instructions for the human`,
		contextDesc, fenced(previousAttempt), fenced(errMsg), retryCount)

	raw, err := a.gen.GenerateJSON(ctx, systemPrompt, userPrompt)
	if err != nil {
		slog.Debug("advisor collaborator unavailable", "error", err)
		return fallbackSuggestion()
	}

	var s Suggestion
	if err := json.Unmarshal(raw, &s); err != nil {
		slog.Debug("advisor returned malformed response", "error", err)
		return fallbackSuggestion()
	}
	if s.Confidence == "" {
		s.Confidence = ConfidenceLow
	}
	return s
}

// fallbackSuggestion is the canonical response when the collaborator
// fails or returns garbage
func fallbackSuggestion() Suggestion {
	return Suggestion{
		Explanation:       "Could not generate auto-fix",
		Confidence:        ConfidenceLow,
		NeedsHuman:        true,
		HumanInstructions: "Please review the error manually and fix the issue.",
	}
}

func fenced(s string) string {
	return "```\n" + s + "\n```"
}
