// Copyright (c) 2025 Gryffin Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package orchestrator

import (
	"context"
	"strings"

	"gryffin/internal/telemetry"
)

var (
	backendKeywords  = []string{"backend", "django", "api", "server", "runserver", "manage.py", "migrate"}
	frontendKeywords = []string{"frontend", "react", "web", "ui", "client", "npm", "vite", "next"}
)

// RunAction performs a quick run/verify pass driven by a free-form
// prompt, without regenerating plans. The prompt's wording selects
// which side of the project to exercise; a prompt naming neither side
// exercises both. Returns whether verification succeeded.
func (o *Orchestrator) RunAction(ctx context.Context, prompt, targetDir string) bool {
	ctx, span := telemetry.StartSpan(ctx, "orchestrator.action")
	defer span.End()

	o.console.Banner("ACTION MODE")
	o.console.Printf("Prompt: %s", prompt)

	runBackend, runFrontend := inferRunTargets(prompt)
	ok, instructions := o.verifyProject(ctx, targetDir, map[string]any{}, runBackend, runFrontend)

	if ok {
		o.console.Successf("Action complete")
	} else {
		o.console.Warnf("Action finished with warnings")
	}
	if instructions != "" {
		o.console.Printf("Run commands:\n%s", instructions)
	}
	return ok
}

// inferRunTargets reads the prompt for backend/frontend intent.
func inferRunTargets(prompt string) (backend, frontend bool) {
	text := strings.ToLower(prompt)
	for _, k := range backendKeywords {
		if strings.Contains(text, k) {
			backend = true
			break
		}
	}
	for _, k := range frontendKeywords {
		if strings.Contains(text, k) {
			frontend = true
			break
		}
	}
	if !backend && !frontend {
		return true, true
	}
	return backend, frontend
}
