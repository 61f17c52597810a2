// Copyright (c) 2025 Gryffin Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/otel/trace"

	"gryffin/internal/probe"
	"gryffin/internal/telemetry"
)

var verifySkipDirs = map[string]bool{
	"node_modules": true,
	"__pycache__":  true,
	"venv":         true,
	"env":          true,
	".venv":        true,
	"dist":         true,
	"build":        true,
	".git":         true,
}

// verifyProject checks the finished project actually runs: Django
// system checks and migrations, Node install/build, then smoke probes
// of each runnable target. Returns overall success plus numbered run
// instructions for the README.
func (o *Orchestrator) verifyProject(ctx context.Context, targetDir string, arch map[string]any, runBackend, runFrontend bool) (bool, string) {
	o.console.Banner("VERIFYING PROJECT IS RUNNABLE")

	var djangoDirs, nodeDirs []string
	if runBackend {
		djangoDirs = findProjectDirs(targetDir, "manage.py")
	}
	if runFrontend {
		nodeDirs = findProjectDirs(targetDir, "package.json")
	}

	var runCommands []string
	addCommand := func(dir, cmd string) {
		rel, err := filepath.Rel(targetDir, dir)
		if err == nil && rel != "." {
			cmd = "cd " + rel + "\n  " + cmd
		}
		runCommands = append(runCommands, cmd)
	}

	for _, dir := range djangoDirs {
		if o.runner.RunWithRetry(ctx, "python manage.py check", dir, "running Django system checks") {
			o.console.Successf("Django project check passed (%s)", dir)
		}
		addCommand(dir, "python manage.py runserver")
	}

	for _, dir := range nodeDirs {
		scripts := npmScripts(dir)
		if !dirExists(filepath.Join(dir, "node_modules")) {
			addCommand(dir, "npm install")
		}
		if scripts["dev"] != "" {
			addCommand(dir, "npm run dev")
		} else if scripts["start"] != "" {
			addCommand(dir, "npm start")
		}
	}

	if len(djangoDirs) == 0 && len(nodeDirs) == 0 {
		if len(findProjectDirs(targetDir, "app.py")) > 0 {
			runCommands = append(runCommands, "flask run")
		}
	}

	if fileExists(filepath.Join(targetDir, "requirements.txt")) &&
		!anyDirExists(targetDir, "venv", "env", ".venv") {
		runCommands = append([]string{
			"python -m venv venv && source venv/bin/activate && pip install -r requirements.txt",
		}, runCommands...)
	}

	if len(runCommands) == 0 {
		runCommands = fallbackRunCommands(arch)
	}
	if len(runCommands) == 0 {
		o.console.Warnf("Could not auto-detect run commands")
		return false, "Please refer to the README.md for run instructions"
	}

	instructions := formatInstructions(runCommands)

	ok := true
	if o.cfg.Execution.AutoRun {
		o.console.Printf("Auto-running detected dev commands...")
		ok = o.autoVerify(ctx, targetDir, djangoDirs, nodeDirs)
		if ok {
			o.console.Successf("Auto-run verification succeeded")
		} else {
			o.console.Warnf("Auto-run verification had failures; see logs above")
		}
	}
	return ok, instructions
}

// probeServer runs one server probe under a span recording the start
// command and the verdict it produced.
func (o *Orchestrator) probeServer(ctx context.Context, p probe.Prober, command, dir string) probe.Result {
	ctx, span := telemetry.StartSpan(ctx, "orchestrator.probe",
		trace.WithAttributes(telemetry.AttrCommand.String(command)))
	defer span.End()

	res := p.Probe(ctx, command, dir)
	span.SetAttributes(telemetry.AttrVerdict.String(res.Verdict.String()))
	return res
}

// autoVerify migrates, installs, builds, and smoke-probes each
// runnable target.
func (o *Orchestrator) autoVerify(ctx context.Context, targetDir string, djangoDirs, nodeDirs []string) bool {
	ok := true

	for _, dir := range djangoDirs {
		if !o.runner.RunWithRetry(ctx, "python manage.py migrate", dir, "running Django migrations") {
			ok = false
			continue
		}
		res := o.probeServer(ctx, o.backend, "python manage.py runserver", dir)
		if !res.Ok() && strings.Contains(strings.ToLower(res.Output), "port is already in use") {
			o.console.Printf("Django server already running; continuing.")
			res.Verdict = probe.Healthy
		}
		ok = ok && res.Ok()
		if res.Ok() && o.cfg.Execution.PersistServers {
			o.startPersistent("python manage.py runserver", dir, "django-runserver")
		}
	}

	for _, dir := range nodeDirs {
		if !dirExists(filepath.Join(dir, "node_modules")) {
			if !o.runner.RunWithRetry(ctx, "npm install", dir, "installing node dependencies") {
				ok = false
				continue
			}
		}

		scripts := npmScripts(dir)
		if scripts["build"] != "" {
			ok = o.runFrontendBuild(ctx, "npm run build", dir) && ok
		} else if scripts["lint"] != "" {
			ok = o.runFrontendBuild(ctx, "npm run lint", dir) && ok
		}

		startCmd := ""
		name := ""
		if scripts["dev"] != "" {
			startCmd, name = "npm run dev", "npm-dev"
		} else if scripts["start"] != "" {
			startCmd, name = "npm start", "npm-start"
		}
		if startCmd == "" {
			continue
		}

		o.console.Printf("Running: %s (%s)", startCmd, dir)
		res := o.probeServer(ctx, o.frontend, startCmd, dir)
		if !res.Ok() {
			// One fingerprint-driven repair pass, then re-probe once.
			if o.fixFrontendErrors(ctx, res.Output, dir) {
				res = o.probeServer(ctx, o.frontend, startCmd, dir)
			}
		}
		ok = ok && res.Ok()
		if res.Ok() && o.cfg.Execution.PersistServers {
			o.startPersistent(startCmd, dir, name)
		}
	}
	return ok
}

// runFrontendBuild runs a build or lint, auto-fixes resolvable errors
// once, and retries.
func (o *Orchestrator) runFrontendBuild(ctx context.Context, cmd, dir string) bool {
	res, err := o.runner.RunTimeout(ctx, cmd, dir, 300*time.Second)
	if err == nil && res.Ok() {
		return true
	}
	if o.fixFrontendErrors(ctx, res.Output, dir) {
		retry, retryErr := o.runner.RunTimeout(ctx, cmd, dir, 300*time.Second)
		return retryErr == nil && retry.Ok()
	}
	return false
}

var resolveErrPattern = regexp.MustCompile(`Can't resolve '([^']+)' in '([^']+)'`)

// fixFrontendErrors repairs the two common webpack resolution
// failures: a missing local file (created empty) and a missing
// dependency (npm installed). Reports whether anything was fixed.
func (o *Orchestrator) fixFrontendErrors(ctx context.Context, errorOutput, dir string) bool {
	if errorOutput == "" {
		return false
	}

	fixedAny := false
	for _, match := range resolveErrPattern.FindAllStringSubmatch(errorOutput, -1) {
		module, baseDir := match[1], match[2]
		if strings.HasPrefix(module, ".") {
			missing := filepath.Join(baseDir, module)
			if filepath.Ext(missing) == "" {
				missing += ".js"
			}
			if !fileExists(missing) {
				if os.MkdirAll(filepath.Dir(missing), 0o755) == nil &&
					os.WriteFile(missing, nil, 0o644) == nil {
					o.console.Successf("Created missing file: %s", missing)
					fixedAny = true
				}
			}
		} else {
			if o.runner.RunWithRetry(ctx, "npm install "+module, dir,
				"installing missing frontend dependency: "+module) {
				fixedAny = true
			}
		}
	}
	return fixedAny
}

// startPersistent launches a dev server detached from the engine, with
// output appended under .gryffin_logs. The process is deliberately not
// waited on.
func (o *Orchestrator) startPersistent(command, dir, name string) {
	logDir := filepath.Join(dir, ".gryffin_logs")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		o.console.Warnf("Could not create log directory: %v", err)
		return
	}
	logPath := filepath.Join(logDir, name+".log")
	logFile, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		o.console.Warnf("Could not open %s: %v", logPath, err)
		return
	}
	fmt.Fprintf(logFile, "\n[%s] START %s\n", time.Now().Format(time.RFC3339), command)

	cmd := exec.Command("sh", "-c", command)
	cmd.Dir = dir
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Start(); err != nil {
		o.console.Warnf("Could not start %s: %v", name, err)
		logFile.Close()
		return
	}
	logFile.Close()
	go cmd.Wait()
	o.console.Successf("Started %s. Logs: %s", name, logPath)
}

// findProjectDirs returns every directory under targetDir (including
// targetDir itself) containing marker, skipping dependency and build
// trees.
func findProjectDirs(targetDir, marker string) []string {
	var dirs []string
	filepath.WalkDir(targetDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if path != targetDir && (verifySkipDirs[d.Name()] || strings.HasPrefix(d.Name(), ".")) {
			return filepath.SkipDir
		}
		if fileExists(filepath.Join(path, marker)) {
			dirs = append(dirs, path)
		}
		return nil
	})
	return dirs
}

func npmScripts(dir string) map[string]string {
	data, err := os.ReadFile(filepath.Join(dir, "package.json"))
	if err != nil {
		return nil
	}
	var pkg struct {
		Scripts map[string]string `json:"scripts"`
	}
	if json.Unmarshal(data, &pkg) != nil {
		return nil
	}
	return pkg.Scripts
}

func fallbackRunCommands(arch map[string]any) []string {
	framework := ""
	if stack, ok := arch["tech_stack"].(map[string]any); ok {
		switch backend := stack["backend"].(type) {
		case map[string]any:
			framework, _ = backend["framework"].(string)
		case string:
			framework = backend
		}
	}
	switch {
	case strings.Contains(strings.ToLower(framework), "django"):
		return []string{"python manage.py runserver"}
	case strings.Contains(strings.ToLower(framework), "flask"):
		return []string{"flask run"}
	case strings.Contains(strings.ToLower(framework), "fastapi"):
		return []string{"uvicorn main:app --reload"}
	case strings.Contains(strings.ToLower(framework), "next"):
		return []string{"npm run dev"}
	case strings.Contains(strings.ToLower(framework), "node"),
		strings.Contains(strings.ToLower(framework), "express"):
		return []string{"npm start"}
	}
	return nil
}

func formatInstructions(commands []string) string {
	var b strings.Builder
	for i, cmd := range commands {
		fmt.Fprintf(&b, "  %d. %s\n", i+1, cmd)
	}
	return strings.TrimRight(b.String(), "\n")
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func anyDirExists(base string, names ...string) bool {
	for _, name := range names {
		if dirExists(filepath.Join(base, name)) {
			return true
		}
	}
	return false
}
