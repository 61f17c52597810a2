// Copyright (c) 2025 Gryffin Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

// Package snapshot captures the target project's file tree and detects its
// runtime environment. A fresh snapshot is taken after every completed task
// so later tasks see the files earlier tasks created.
package snapshot

import (
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Key files that identify project type and setup needs
var keyFilePatterns = []string{
	"package.json",
	"requirements.txt",
	"Pipfile",
	"pyproject.toml",
	".env",
	".env.example",
	"Dockerfile",
	"docker-compose.yml",
	"README.md",
	"Makefile",
	"go.mod",
	"manage.py",
}

// ignorePatterns are matched against slash-separated relative paths
var ignorePatterns = []string{
	"**/node_modules/**",
	"**/__pycache__/**",
	"**/venv/**",
	"**/env/**",
	"**/dist/**",
	"**/build/**",
	"node_modules/**",
	"__pycache__/**",
	"venv/**",
	"env/**",
	"dist/**",
	"build/**",
}

// Tree is a point-in-time snapshot of the project file tree
type Tree struct {
	Files       []string
	Directories []string
	// KeyFiles maps a key file name (e.g. "package.json") to its first
	// relative path found in the tree
	KeyFiles map[string]string
}

// HasKeyFile reports whether a key file was found anywhere in the tree
func (t *Tree) HasKeyFile(name string) bool {
	_, ok := t.KeyFiles[name]
	return ok
}

// Take walks the target directory and records files, directories, and key
// files, skipping dot-paths and dependency/build directories.
func Take(targetDir string) (*Tree, error) {
	tree := &Tree{KeyFiles: make(map[string]string)}

	err := filepath.WalkDir(targetDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // Unreadable entries are skipped, not fatal
		}
		if path == targetDir {
			return nil
		}

		rel, relErr := filepath.Rel(targetDir, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if ignored(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			tree.Directories = append(tree.Directories, rel)
			return nil
		}

		tree.Files = append(tree.Files, rel)
		name := d.Name()
		for _, key := range keyFilePatterns {
			if name == key {
				if _, seen := tree.KeyFiles[key]; !seen {
					tree.KeyFiles[key] = rel
				}
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tree, nil
}

// ignored reports whether a relative path sits under an ignored or hidden
// directory. Dot-prefixed components are hidden except a handful of
// meaningful project files.
func ignored(rel string) bool {
	for _, part := range strings.Split(rel, "/") {
		if strings.HasPrefix(part, ".") && part != ".env" && part != ".env.example" && part != ".gitignore" {
			return true
		}
	}
	for _, pattern := range ignorePatterns {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
		// A directory entry itself (no trailing content) also matches
		if ok, _ := doublestar.Match(strings.TrimSuffix(pattern, "/**"), rel); ok {
			return true
		}
	}
	return false
}
