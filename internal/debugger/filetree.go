// Copyright (c) 2025 Gryffin Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package debugger

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const (
	maxTreeFiles      = 50
	maxFileContentLen = 5000
)

// relevantSuffixes limits file-content capture to source and config
// files the debugging collaborator can act on.
var relevantSuffixes = []string{
	".py", ".js", ".jsx", ".ts", ".tsx",
	".json", ".yaml", ".yml", ".ini", ".cfg", ".toml",
	".go", ".mod",
}

var skipDirs = map[string]bool{
	"node_modules": true,
	"__pycache__":  true,
	"venv":         true,
	"env":          true,
	"dist":         true,
	"build":        true,
	".git":         true,
}

// FileTree is a bounded snapshot of the target project handed to the
// debugging collaborator: relative paths plus truncated contents of
// source and config files.
type FileTree struct {
	Structure []string
	Files     map[string]string
}

// CollectFileTree walks targetDir and captures up to maxTreeFiles
// relevant files, each truncated to maxFileContentLen bytes. Walk
// errors on individual entries are skipped rather than fatal.
func CollectFileTree(targetDir string) *FileTree {
	tree := &FileTree{Files: make(map[string]string)}

	filepath.WalkDir(targetDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		rel, relErr := filepath.Rel(targetDir, path)
		if relErr != nil || rel == "." {
			return nil
		}
		if d.IsDir() {
			if skipDirs[d.Name()] || strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			tree.Structure = append(tree.Structure, rel+"/")
			return nil
		}
		tree.Structure = append(tree.Structure, rel)
		if len(tree.Files) >= maxTreeFiles || !relevantFile(rel) {
			return nil
		}
		data, readErr := os.ReadFile(path)
		if readErr != nil {
			return nil
		}
		if len(data) > maxFileContentLen {
			data = data[:maxFileContentLen]
		}
		tree.Files[filepath.ToSlash(rel)] = string(data)
		return nil
	})

	return tree
}

func relevantFile(rel string) bool {
	for _, suffix := range relevantSuffixes {
		if strings.HasSuffix(rel, suffix) {
			return true
		}
	}
	return false
}
