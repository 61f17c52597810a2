// Copyright (c) 2025 Gryffin Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime"
	"strings"

	"gryffin/internal/snapshot"
)

const setupSystem = "You are a senior DevOps engineer creating setup scripts. " +
	"CRITICAL: Use OS-appropriate package managers (macOS=brew, Linux=apt/yum). " +
	"Check if tools exist before installing. " +
	"Return only valid JSON with a setup_commands array."

type setupPlan struct {
	SetupCommands []string `json:"setup_commands"`
}

// setupEnvironment asks the collaborator for a provisioning command
// sequence, confirms it with the user, and executes it through the
// retrying command runner. Returns false when the user declines or a
// command ultimately fails.
func (o *Orchestrator) setupEnvironment(ctx context.Context, env *snapshot.EnvInfo, targetDir string, arch map[string]any, readme string) bool {
	o.console.Printf("Setting up environment...")

	prompt := o.setupPrompt(env, targetDir, arch, readme)
	plan, ok := o.generateSetupPlan(ctx, prompt)
	if !ok {
		o.console.Warnf("Could not generate a setup plan; continuing without provisioning")
		return true
	}

	o.console.Printf("Setup plan: %d commands", len(plan.SetupCommands))
	for i, cmd := range plan.SetupCommands {
		o.console.Printf("  %d. %s", i+1, cmd)
	}

	if !o.cfg.Execution.AutoRun {
		accepted, instructions := o.console.Confirm("environment setup approval",
			"Proceed with setup? (y/n, optionally add instructions like 'y, but also install redis')")
		if instructions != "" {
			o.console.Printf("Adding to setup: %s", instructions)
			updated, ok := o.generateSetupPlan(ctx, prompt+"\n\nAdditional user requirements: "+instructions)
			if ok {
				plan = updated
				o.console.Printf("Updated setup plan: %d commands", len(plan.SetupCommands))
				for i, cmd := range plan.SetupCommands {
					o.console.Printf("  %d. %s", i+1, cmd)
				}
			}
		}
		if !accepted {
			o.console.Warnf("Environment setup declined")
			return false
		}
	}

	for _, cmd := range plan.SetupCommands {
		if !o.runner.RunWithRetry(ctx, cmd, targetDir, "environment setup: "+cmd) {
			return false
		}
	}
	o.console.Successf("Environment setup complete")
	return true
}

func (o *Orchestrator) generateSetupPlan(ctx context.Context, prompt string) (setupPlan, bool) {
	raw, err := o.gen.GenerateJSON(ctx, setupSystem, prompt)
	if err != nil {
		return setupPlan{}, false
	}
	var plan setupPlan
	if json.Unmarshal(raw, &plan) != nil || len(plan.SetupCommands) == 0 {
		return setupPlan{}, false
	}
	return plan, true
}

func (o *Orchestrator) setupPrompt(env *snapshot.EnvInfo, targetDir string, arch map[string]any, readme string) string {
	archJSON, _ := json.MarshalIndent(arch, "", "  ")
	if len(readme) > 3000 {
		readme = readme[:3000]
	}

	var contextSection strings.Builder
	if readme != "" {
		fmt.Fprintf(&contextSection, "## PROJECT README (MUST FOLLOW THIS)\n%s\n", readme)
	}
	if o.insight != nil {
		fmt.Fprintf(&contextSection, `## EXISTING CODEBASE ANALYSIS (MUST RESPECT THIS)
%s
CRITICAL: Only install dependencies that are compatible with the existing tech stack.
Do NOT install conflicting versions or alternative frameworks.
`, o.insight.Summary())
	}

	return fmt.Sprintf(`Given this project architecture:
%s

%s

And these detected setup needs:
%s

Project type: %s
Current directory: %s
Operating System: %s

CRITICAL OS-SPECIFIC REQUIREMENTS:
- macOS (darwin): Use 'brew' for packages, NOT apt/apt-get/yum
- Linux: Use apt/apt-get/yum based on distro
- ALWAYS check if tools are already installed before trying to install them

Generate COMPLETE setup commands including:

1. PROJECT INITIALIZATION (if needed):
   - For Django: create project structure with django-admin startproject
   - For Node: npm init or create-react-app/create-next-app
   - For Flask: create basic app structure

2. DEPENDENCIES: install required packages, ONLY what the architecture and README call for

3. CONFIGURATION: create .env and any required config files

4. DATABASE: run migrations ONLY AFTER the project structure exists

IMPORTANT:
- CHECK if tools exist first using 'which' or 'command -v' before installing
- Commands must be in the correct order (check existence, install if missing, initialize, configure)
- For Django, ALWAYS create the project structure BEFORE running manage.py commands

Return JSON with key 'setup_commands' (array of shell commands to run in sequence).`,
		archJSON, contextSection.String(), strings.Join(env.NeedsSetup, ", "),
		env.ProjectType, targetDir, runtime.GOOS)
}
