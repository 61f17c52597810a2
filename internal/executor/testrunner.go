// Copyright (c) 2025 Gryffin Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package executor

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"

	"gryffin/internal/debugger"
	"gryffin/internal/telemetry"
)

// TestResult is the outcome of one test invocation. Never merged
// across invocations; each retry produces a fresh value.
type TestResult struct {
	Passed bool
	Output string
	Errors []string
}

// DetectTestCommands infers test commands from marker files in dir.
// No user input is consulted.
func DetectTestCommands(dir string) []string {
	var cmds []string

	if hasPytestMarkers(dir) {
		cmds = append(cmds, "python -m pytest -v --tb=short")
	}
	if hasNpmTestScript(dir) {
		cmds = append(cmds, "npm test")
	}
	if fileExists(filepath.Join(dir, "go.mod")) {
		cmds = append(cmds, "go test ./...")
	}
	return cmds
}

func hasPytestMarkers(dir string) bool {
	for _, marker := range []string{"pytest.ini", "setup.cfg", "conftest.py"} {
		if fileExists(filepath.Join(dir, marker)) {
			return true
		}
	}
	if matches, _ := filepath.Glob(filepath.Join(dir, "test_*.py")); len(matches) > 0 {
		return true
	}
	if matches, _ := filepath.Glob(filepath.Join(dir, "tests", "test_*.py")); len(matches) > 0 {
		return true
	}
	return false
}

func hasNpmTestScript(dir string) bool {
	data, err := os.ReadFile(filepath.Join(dir, "package.json"))
	if err != nil {
		return false
	}
	var pkg struct {
		Scripts map[string]string `json:"scripts"`
	}
	if json.Unmarshal(data, &pkg) != nil {
		return false
	}
	return pkg.Scripts["test"] != ""
}

// RunTests runs every detected test command through the auto-fix loop.
// A project with no detected test commands passes trivially.
func (e *Executor) RunTests(ctx context.Context, ec *Context) TestResult {
	ctx, span := telemetry.StartSpan(ctx, "executor.tests")
	defer span.End()

	result := e.runTests(ctx, ec)
	span.SetAttributes(telemetry.AttrTestPassed.Bool(result.Passed))
	return result
}

func (e *Executor) runTests(ctx context.Context, ec *Context) TestResult {
	cmds := DetectTestCommands(ec.TargetDir)
	if len(cmds) == 0 {
		return TestResult{Passed: true, Output: "no test commands detected"}
	}

	for _, cmd := range cmds {
		result := e.runTestCommand(ctx, ec, cmd)
		if !result.Passed {
			return result
		}
	}
	return TestResult{Passed: true}
}

// runTestCommand runs one test command with the bounded auto-fix loop:
// on failure, ask the debugging collaborator for a patch, apply it,
// retry. Only the fix that actually made the suite pass lands in the
// session error log. A needs-human signal stops the loop immediately,
// whatever attempts remain.
func (e *Executor) runTestCommand(ctx context.Context, ec *Context, cmd string) TestResult {
	lastPrefix := ""
	stuckCount := 0
	var lastFix *debugger.Fix
	lastErr := ""

	for attempt := 1; attempt <= maxFixAttempts; attempt++ {
		res, err := e.runner.RunTimeout(ctx, cmd, ec.TargetDir, testTimeout)
		if err == nil && res.Ok() {
			if lastFix != nil {
				ec.Tracker.LogErrorFix(lastErr, lastFix.Explanation, firstTouchedFile(*lastFix))
				e.console.Successf("Tests pass after auto-fix (attempt %d)", attempt)
			}
			return TestResult{Passed: true, Output: res.Output}
		}

		errOutput := res.Output
		if err != nil {
			errOutput = err.Error()
		}
		e.console.Warnf("Tests failed (attempt %d/%d): %s", attempt, maxFixAttempts, cmd)

		prefix := errPrefix(errOutput)
		if prefix == lastPrefix {
			stuckCount++
		} else {
			stuckCount = 1
			lastPrefix = prefix
		}

		contextDesc := "Test failure for command: " + cmd
		if stuckCount >= stuckThreshold {
			contextDesc += "\n\nIMPORTANT: The same failure has occurred " +
				strconv.Itoa(stuckCount) +
				" times in a row. The previous patches did not work. Take a COMPLETELY DIFFERENT approach."
		}

		tree := debugger.CollectFileTree(ec.TargetDir)
		fix := e.debugger.Analyze(ctx, errOutput, tree, ec.ReadmeContent, contextDesc)

		if fix.NeedsHuman {
			e.console.Failf("Debugging collaborator needs human input: %s", fix.Explanation)
			if fix.HumanInstructions != "" {
				e.console.Printf("Instructions: %s", fix.HumanInstructions)
			}
			return TestResult{
				Passed: false,
				Output: errOutput,
				Errors: []string{fix.Explanation, fix.HumanInstructions},
			}
		}

		e.applyFix(ctx, ec, fix)
		lastFix = &fix
		lastErr = errOutput
	}

	return TestResult{
		Passed: false,
		Output: lastErr,
		Errors: []string{"auto-fix attempts exhausted for: " + cmd},
	}
}

func errPrefix(s string) string {
	if len(s) > stuckPrefixLen {
		return s[:stuckPrefixLen]
	}
	return s
}
