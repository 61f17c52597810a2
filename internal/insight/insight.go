// Copyright (c) 2025 Gryffin Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

// Package insight analyzes an existing codebase before planning so
// generated work extends what is already there instead of replacing
// it. The whole (bounded) codebase is shipped to the analysis
// collaborator in one request.
package insight

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"gryffin/internal/llm"
)

const (
	// maxFileSize skips individual files above 5MB; maxTotalSize caps
	// the whole collection at 50MB so the analysis prompt stays
	// bounded on large repositories.
	maxFileSize  = 5 * 1024 * 1024
	maxTotalSize = 50 * 1024 * 1024
)

var ignoreParts = map[string]bool{
	"node_modules": true,
	"__pycache__":  true,
	"venv":         true,
	"env":          true,
	"dist":         true,
	"build":        true,
	".git":         true,
}

// Recommendations guide how new work should integrate with the
// existing code.
type Recommendations struct {
	HowToExtend       string `json:"how_to_extend"`
	PatternsToFollow  string `json:"patterns_to_follow"`
	IntegrationPoints string `json:"integration_points"`
}

// CodebaseInsight is the collaborator's structured read of an existing
// project.
type CodebaseInsight struct {
	ProjectType           string          `json:"project_type"`
	ExistingApps          []string        `json:"existing_apps"`
	TechStack             map[string]any  `json:"tech_stack"`
	ArchitectureSummary   string          `json:"architecture_summary"`
	ExistingFunctionality []string        `json:"existing_functionality"`
	Recommendations       Recommendations `json:"recommendations"`
}

// Summary renders the insight as plain text for embedding in prompts
// and the synthesized README.
func (ci *CodebaseInsight) Summary() string {
	if ci == nil {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Project Type: %s\n", ci.ProjectType)
	fmt.Fprintf(&b, "Architecture: %s\n", ci.ArchitectureSummary)
	if len(ci.ExistingApps) > 0 {
		fmt.Fprintf(&b, "Existing Apps/Modules: %s\n", strings.Join(ci.ExistingApps, ", "))
	}
	if len(ci.ExistingFunctionality) > 0 {
		b.WriteString("Existing Functionality:\n")
		limit := len(ci.ExistingFunctionality)
		if limit > 10 {
			limit = 10
		}
		for _, fn := range ci.ExistingFunctionality[:limit] {
			fmt.Fprintf(&b, "- %s\n", fn)
		}
	}
	return b.String()
}

// CollectFiles gathers readable text files under targetDir, honoring
// the per-file and total size caps. Binary files and ignored
// directories are skipped. The returned map is relative path →
// content.
func CollectFiles(targetDir string) (map[string]string, error) {
	files := make(map[string]string)
	totalSize := int64(0)
	skipped := 0

	err := filepath.WalkDir(targetDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		rel, relErr := filepath.Rel(targetDir, path)
		if relErr != nil || rel == "." {
			return nil
		}
		name := d.Name()
		if d.IsDir() {
			if ignoreParts[name] || (strings.HasPrefix(name, ".") && name != ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") && name != ".gitignore" && name != ".env.example" {
			return nil
		}
		info, infoErr := d.Info()
		if infoErr != nil {
			return nil
		}
		if info.Size() > maxFileSize || totalSize+info.Size() > maxTotalSize {
			skipped++
			return nil
		}
		data, readErr := os.ReadFile(path)
		if readErr != nil || !utf8.Valid(data) {
			skipped++
			return nil
		}
		files[filepath.ToSlash(rel)] = string(data)
		totalSize += info.Size()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", targetDir, err)
	}

	slog.Info("codebase scanned", "files", len(files), "bytes", totalSize, "skipped", skipped)
	return files, nil
}

const systemPrompt = "You are an expert code analyst. Analyze the provided codebase and " +
	"return comprehensive structured insights as a single JSON object."

// Analyze ships the collected files to the analysis collaborator and
// parses its structured response. Returns an error when the
// collaborator is unreachable or the response is unusable; callers
// treat insight as optional.
func Analyze(ctx context.Context, gen llm.Generator, files map[string]string) (*CodebaseInsight, error) {
	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var b strings.Builder
	for _, p := range paths {
		fmt.Fprintf(&b, "=== FILE: %s ===\n%s\n\n", p, files[p])
	}

	userPrompt := fmt.Sprintf(`Analyze this entire codebase and provide comprehensive insights.

# CODEBASE CONTENTS

%s

# YOUR TASK

Return JSON with:
- project_type: e.g. "Django Python Backend", "React Frontend", "Full-stack Node.js"
- existing_apps: list of existing apps/modules/components
- tech_stack: object mapping concern to technology
- architecture_summary: 2-3 sentence overview of how the system is structured
- existing_functionality: list of features already implemented
- recommendations: {"how_to_extend": ..., "patterns_to_follow": ..., "integration_points": ...}`,
		b.String())

	raw, err := gen.GenerateJSON(ctx, systemPrompt, userPrompt)
	if err != nil {
		return nil, fmt.Errorf("analyzing codebase: %w", err)
	}

	var ci CodebaseInsight
	if err := json.Unmarshal(raw, &ci); err != nil {
		return nil, fmt.Errorf("parsing codebase insight: %w", err)
	}
	return &ci, nil
}
