// Copyright (c) 2025 Gryffin Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/bitfield/script"

	"gryffin/internal/snapshot"
)

// generateReadme synthesizes README.md from the architecture and the
// current tree and writes it into targetDir. The README is the shared
// framing every collaborator call references, so it is regenerated at
// the start of each run. Returns the content.
func (o *Orchestrator) generateReadme(ctx context.Context, arch map[string]any, targetDir string, tree *snapshot.Tree) string {
	o.console.Printf("Generating README.md...")

	var b strings.Builder

	appName := stringOr(arch["app_name"], "Project")
	fmt.Fprintf(&b, "# %s\n\n", appName)
	b.WriteString("> Generated by Gryffin - AI-powered development tool\n\n")
	fmt.Fprintf(&b, "## Overview\n\n%s\n\n", stringOr(arch["overview"], "No overview available."))

	b.WriteString("## What This App IS\n\n")
	writeComponents(&b, arch["components"])

	b.WriteString("\n## What This App IS NOT\n\n")
	if assumptions, ok := arch["assumptions"].([]any); ok && len(assumptions) > 0 {
		for _, a := range assumptions {
			fmt.Fprintf(&b, "- Not designed for scenarios outside: %v\n", a)
		}
	} else {
		b.WriteString("- Not a production-ready application (MVP/prototype stage)\n")
		b.WriteString("- Not fully tested in all environments\n")
	}

	b.WriteString("\n## File Structure\n\n```\n")
	fmt.Fprintf(&b, "%s/\n", appName)
	limit := len(tree.Files)
	if limit > 30 {
		limit = 30
	}
	for _, f := range tree.Files[:limit] {
		fmt.Fprintf(&b, "├── %s\n", f)
	}
	b.WriteString("```\n\n")

	b.WriteString("## System Configuration\n\n")
	fmt.Fprintf(&b, "- **Operating System**: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	for tool, version := range detectToolVersions() {
		fmt.Fprintf(&b, "- **%s**: %s\n", tool, version)
	}

	b.WriteString("\n## Tech Stack\n\n")
	writeTechStack(&b, arch["tech_stack"])

	b.WriteString("\n## Data Flow\n\n")
	switch flow := arch["data_flow"].(type) {
	case string:
		fmt.Fprintf(&b, "%s\n", flow)
	case map[string]any:
		keys := make([]string, 0, len(flow))
		for k := range flow {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "%s. %v\n", k, flow[k])
		}
	}

	if risks, ok := arch["risks"].([]any); ok && len(risks) > 0 {
		b.WriteString("\n## Known Risks & Limitations\n\n")
		for _, r := range risks {
			fmt.Fprintf(&b, "- %v\n", r)
		}
	}

	if o.insight != nil {
		fmt.Fprintf(&b, "\n## Existing Codebase\n\n%s\n", o.insight.Summary())
	}

	content := b.String()
	path := filepath.Join(targetDir, "README.md")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		o.console.Warnf("Could not write README.md: %v", err)
	} else {
		o.tracker.TrackCreated("README.md")
	}
	return content
}

func writeComponents(b *strings.Builder, components any) {
	switch comps := components.(type) {
	case map[string]any:
		keys := make([]string, 0, len(comps))
		for k := range comps {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, name := range keys {
			fmt.Fprintf(b, "- **%s**: %v\n", titleCase(name), comps[name])
		}
	case []any:
		for _, item := range comps {
			if m, ok := item.(map[string]any); ok {
				fmt.Fprintf(b, "- **%v**: %v\n", m["name"], m["responsibility"])
			} else {
				fmt.Fprintf(b, "- %v\n", item)
			}
		}
	}
}

func writeTechStack(b *strings.Builder, stack any) {
	m, ok := stack.(map[string]any)
	if !ok {
		return
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, component := range keys {
		fmt.Fprintf(b, "### %s\n\n", titleCase(component))
		if details, ok := m[component].(map[string]any); ok {
			if fw, ok := details["framework"]; ok {
				fmt.Fprintf(b, "- **Framework**: %v\n", fw)
			}
			if libs, ok := details["libraries"].([]any); ok && len(libs) > 0 {
				b.WriteString("- **Libraries**:\n")
				for _, lib := range libs {
					fmt.Fprintf(b, "  - %v\n", lib)
				}
			}
		} else {
			fmt.Fprintf(b, "- %v\n", m[component])
		}
		b.WriteString("\n")
	}
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func stringOr(v any, fallback string) string {
	if s, ok := v.(string); ok && s != "" {
		return s
	}
	return fallback
}

// detectToolVersions shells out for the versions of tools the target
// project is likely to depend on. Missing tools are simply omitted.
func detectToolVersions() map[string]string {
	versions := make(map[string]string)
	checks := map[string]string{
		"Node.js": "node --version",
		"Python":  "python --version",
	}
	for tool, cmd := range checks {
		out, err := script.Exec(cmd).String()
		if err == nil && strings.TrimSpace(out) != "" {
			versions[tool] = strings.TrimSpace(out)
		}
	}
	return versions
}

// appendQuickStart inserts a Quick Start section into README.md with
// the discovered run commands. Idempotent: a README that already has
// one is left alone.
func (o *Orchestrator) appendQuickStart(targetDir, instructions string) {
	path := filepath.Join(targetDir, "README.md")
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	current := string(data)
	if strings.Contains(current, "## Quick Start") {
		return
	}

	quickStart := fmt.Sprintf("\n## Quick Start\n\nTo run this project:\n\n%s\n\n---\n", instructions)

	// Insert before the first section heading after the title.
	lines := strings.Split(current, "\n")
	insertIdx := len(lines)
	for i, line := range lines {
		if strings.HasPrefix(line, "## ") {
			insertIdx = i
			break
		}
	}
	updated := strings.Join(lines[:insertIdx], "\n") + quickStart + strings.Join(lines[insertIdx:], "\n")
	if err := os.WriteFile(path, []byte(updated), 0o644); err == nil {
		o.console.Successf("README.md updated with Quick Start instructions")
	}
}
