// Copyright (c) 2025 Gryffin Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

// Package planner turns a user prompt into the two planning artifacts
// the execution engine consumes: architecture.json and majortasks.json.
// Generation goes through the planning collaborator with static
// fallbacks so a plan always exists, even offline.
package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gryffin/internal/console"
	"gryffin/internal/insight"
	"gryffin/internal/llm"
)

// Artifact file names, written into the target directory.
const (
	ArchitectureFile = "architecture.json"
	TasksFile        = "majortasks.json"
)

// Task is one major unit of work. Immutable after load.
type Task struct {
	Title              string   `json:"title"`
	Description        string   `json:"description"`
	Owners             []string `json:"owners"`
	Dependencies       []string `json:"dependencies"`
	AcceptanceCriteria []string `json:"acceptance_criteria"`
}

// taskList matches the majortasks.json envelope.
type taskList struct {
	MajorTasks []Task `json:"major_tasks"`
}

// ErrCancelled is returned when the user cancels the plan review.
var ErrCancelled = errors.New("planning cancelled by user")

// LoadTasks reads majortasks.json and rejects duplicate titles, since
// titles key the completed-task ledger downstream.
func LoadTasks(path string) ([]Task, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading task list: %w", err)
	}
	var tl taskList
	if err := json.Unmarshal(data, &tl); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
	}
	seen := make(map[string]bool, len(tl.MajorTasks))
	for _, task := range tl.MajorTasks {
		if task.Title == "" {
			return nil, fmt.Errorf("%s contains a task with no title", filepath.Base(path))
		}
		if seen[task.Title] {
			return nil, fmt.Errorf("duplicate task title %q", task.Title)
		}
		seen[task.Title] = true
	}
	return tl.MajorTasks, nil
}

// LoadArchitecture reads architecture.json as a free-form document.
func LoadArchitecture(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading architecture: %w", err)
	}
	var arch map[string]any
	if err := json.Unmarshal(data, &arch); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
	}
	return arch, nil
}

const (
	architectureSystem = "You are a senior software architect. Return a JSON object only. " +
		"Use keys: app_name, overview, components, data_flow, tech_stack, risks, assumptions."
	tasksSystem = "You are a technical program manager. Return a JSON object only. " +
		"Use keys: major_tasks (array of objects with title, description, owners, dependencies, acceptance_criteria)."
)

// Planner generates and reviews planning artifacts.
type Planner struct {
	gen     llm.Generator
	console *console.Console
}

// New creates a planner over the given transport.
func New(gen llm.Generator, con *console.Console) *Planner {
	return &Planner{gen: gen, console: con}
}

// Plan generates both artifacts for prompt and writes them into
// targetDir. In interactive mode the user reviews the plan and may
// feed back changes, looping regeneration until approval or
// cancellation.
func (p *Planner) Plan(ctx context.Context, prompt, targetDir string, interactive bool, ci *insight.CodebaseInsight) error {
	current := prompt
	for {
		arch := p.generateArchitecture(ctx, current, ci)
		tasks := p.generateTasks(ctx, current, ci)

		if err := writeJSON(filepath.Join(targetDir, ArchitectureFile), arch); err != nil {
			return err
		}
		if err := writeJSON(filepath.Join(targetDir, TasksFile), tasks); err != nil {
			return err
		}

		if !interactive {
			return nil
		}

		approved, feedback := p.review(arch, tasks)
		if approved {
			return nil
		}
		if feedback == "" {
			return ErrCancelled
		}
		current = current + "\n\nUser feedback: " + feedback
		p.console.Printf("Regenerating with your feedback...")
	}
}

func (p *Planner) generateArchitecture(ctx context.Context, prompt string, ci *insight.CodebaseInsight) map[string]any {
	raw, err := p.gen.GenerateJSON(ctx, architectureSystem, augmentPrompt(prompt, ci))
	if err == nil {
		var arch map[string]any
		if json.Unmarshal(raw, &arch) == nil && len(arch) > 0 {
			return arch
		}
	}
	p.console.Warnf("Planning collaborator unavailable, using fallback architecture")
	return fallbackArchitecture(prompt)
}

func (p *Planner) generateTasks(ctx context.Context, prompt string, ci *insight.CodebaseInsight) map[string]any {
	raw, err := p.gen.GenerateJSON(ctx, tasksSystem, augmentPrompt(prompt, ci))
	if err == nil {
		var tasks map[string]any
		if json.Unmarshal(raw, &tasks) == nil && tasks["major_tasks"] != nil {
			return tasks
		}
	}
	p.console.Warnf("Planning collaborator unavailable, using fallback task list")
	return fallbackTasks(prompt)
}

// augmentPrompt frames the request with existing-codebase context so
// the collaborator extends rather than replaces.
func augmentPrompt(prompt string, ci *insight.CodebaseInsight) string {
	if ci == nil {
		return prompt
	}
	return fmt.Sprintf(`# EXISTING CODEBASE CONTEXT

This project already has existing code. You MUST build upon it, not replace it.

%s
Recommendations for extending:
- How to extend: %s
- Patterns to follow: %s
- Integration points: %s

# USER REQUEST
%s

# YOUR TASK
Generate output that EXTENDS the existing codebase. Use the same tech stack, follow existing patterns, and integrate with existing functionality. Do NOT suggest replacing or removing existing code.`,
		ci.Summary(),
		ci.Recommendations.HowToExtend,
		ci.Recommendations.PatternsToFollow,
		ci.Recommendations.IntegrationPoints,
		prompt)
}

// review prints the plan and blocks on approval. Returns approved, or
// not-approved with feedback; empty feedback means cancel.
func (p *Planner) review(arch, tasks map[string]any) (bool, string) {
	p.console.Banner("ARCHITECTURE REVIEW")
	p.console.Printf("App Name: %v", arch["app_name"])
	p.console.Printf("Overview: %v", arch["overview"])
	if ts, ok := arch["tech_stack"]; ok {
		pretty, _ := json.MarshalIndent(ts, "", "  ")
		p.console.Printf("Tech Stack: %s", pretty)
	}

	p.console.Banner("MAJOR TASKS")
	if list, ok := tasks["major_tasks"].([]any); ok {
		for i, item := range list {
			task, _ := item.(map[string]any)
			p.console.Printf("%d. %v", i+1, task["title"])
			if desc, ok := task["description"].(string); ok && desc != "" {
				p.console.Printf("   %s", desc)
			}
		}
	}

	choice, instructions := p.console.Ask("plan review",
		"Choose: (approve) and start execution, (change) with feedback, (cancel)")
	switch choice {
	case "approve", "a", "1", "y", "yes":
		return true, ""
	case "change", "c", "2":
		feedback := strings.TrimSpace(instructions)
		if feedback == "" {
			_, feedback = p.console.Ask("plan feedback", "What changes would you like?")
		}
		return false, feedback
	default:
		return false, ""
	}
}

func fallbackArchitecture(prompt string) map[string]any {
	return map[string]any{
		"app_name": "New Gryffin App",
		"overview": prompt,
		"components": []map[string]any{
			{"name": "frontend", "responsibility": "User interface for the MVP."},
			{"name": "backend", "responsibility": "API and business logic."},
			{"name": "data", "responsibility": "Persistence and storage."},
		},
		"data_flow": "User input -> API -> storage -> response.",
		"tech_stack": map[string]any{
			"frontend": "TBD",
			"backend":  "TBD",
			"data":     "TBD",
		},
		"risks":       []string{"Requirements unclear", "Scope creep"},
		"assumptions": []string{"Single-tenant MVP", "Small team"},
	}
}

func fallbackTasks(prompt string) map[string]any {
	return map[string]any{
		"major_tasks": []map[string]any{
			{
				"title":               "Define MVP scope",
				"description":         "Clarify success criteria and scope for: " + prompt,
				"owners":              []string{"product"},
				"dependencies":        []string{},
				"acceptance_criteria": []string{"One-page scope doc approved"},
			},
			{
				"title":               "Design architecture",
				"description":         "Pick stack, define services, and data model.",
				"owners":              []string{"engineering"},
				"dependencies":        []string{"Define MVP scope"},
				"acceptance_criteria": []string{"Architecture approved"},
			},
			{
				"title":               "Build MVP",
				"description":         "Implement core user flow end-to-end.",
				"owners":              []string{"engineering"},
				"dependencies":        []string{"Design architecture"},
				"acceptance_criteria": []string{"MVP runs locally"},
			},
		},
	}
}

// writeJSON writes payload with two-space indentation and a trailing
// newline. Map keys marshal in sorted order.
func writeJSON(path string, payload any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(path), err)
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
