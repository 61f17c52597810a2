// Copyright (c) 2025 Gryffin Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package snapshot

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/docker/docker/client"
)

// Project types detected from the snapshot
const (
	ProjectNode    = "node"
	ProjectPython  = "python"
	ProjectGo      = "go"
	ProjectUnknown = ""
)

// EnvInfo describes the detected runtime environment. Computed once per
// run and read-only afterward.
type EnvInfo struct {
	ProjectType          string
	HasEnvFile           bool
	NeedsSetup           []string
	DetectedDependencies []string
}

// dockerPing checks daemon reachability; replaced in tests
var dockerPing = func(ctx context.Context) error {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return err
	}
	defer cli.Close()

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err = cli.Ping(pingCtx)
	return err
}

// DetectEnv derives environment information from a file-tree snapshot
func DetectEnv(ctx context.Context, tree *Tree, targetDir string) *EnvInfo {
	info := &EnvInfo{}

	if tree.HasKeyFile("package.json") {
		info.ProjectType = ProjectNode
		info.DetectedDependencies = append(info.DetectedDependencies, "npm/yarn")
		if !dirExists(filepath.Join(targetDir, "node_modules")) {
			info.NeedsSetup = append(info.NeedsSetup, "npm install")
		}
	}

	if tree.HasKeyFile("requirements.txt") || tree.HasKeyFile("pyproject.toml") || tree.HasKeyFile("Pipfile") {
		info.ProjectType = ProjectPython
		info.DetectedDependencies = append(info.DetectedDependencies, "pip/poetry")
		if !anyDirExists(targetDir, "venv", "env", ".venv") {
			info.NeedsSetup = append(info.NeedsSetup, "python virtual environment")
		}
	}

	if info.ProjectType == ProjectUnknown && tree.HasKeyFile("go.mod") {
		info.ProjectType = ProjectGo
		info.DetectedDependencies = append(info.DetectedDependencies, "go modules")
	}

	switch {
	case tree.HasKeyFile(".env"):
		info.HasEnvFile = true
	case tree.HasKeyFile(".env.example"):
		info.NeedsSetup = append(info.NeedsSetup, "copy .env.example to .env")
	default:
		info.NeedsSetup = append(info.NeedsSetup, "create .env file")
	}

	if tree.HasKeyFile("Dockerfile") || tree.HasKeyFile("docker-compose.yml") {
		info.DetectedDependencies = append(info.DetectedDependencies, "docker")
		if err := dockerPing(ctx); err != nil {
			slog.Warn("docker artifacts present but daemon unreachable", "error", err)
			info.NeedsSetup = append(info.NeedsSetup, "start docker daemon")
		}
	}

	return info
}

// DetectProjectType is the quick variant used between tasks
func DetectProjectType(targetDir string) string {
	if fileExists(filepath.Join(targetDir, "package.json")) {
		return ProjectNode
	}
	if fileExists(filepath.Join(targetDir, "requirements.txt")) || fileExists(filepath.Join(targetDir, "pyproject.toml")) {
		return ProjectPython
	}
	if fileExists(filepath.Join(targetDir, "go.mod")) {
		return ProjectGo
	}
	return ProjectUnknown
}

func fileExists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && !st.IsDir()
}

func dirExists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && st.IsDir()
}

func anyDirExists(base string, names ...string) bool {
	for _, n := range names {
		if dirExists(filepath.Join(base, n)) {
			return true
		}
	}
	return false
}
