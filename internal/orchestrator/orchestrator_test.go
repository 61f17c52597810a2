// Copyright (c) 2025 Gryffin Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gryffin/internal/config"
	"gryffin/internal/console"
	"gryffin/internal/executor"
	"gryffin/internal/planner"
	"gryffin/internal/probe"
	"gryffin/internal/runner"
	"gryffin/internal/session"
)

type fakeGenerator struct {
	response string
	err      error
}

func (f *fakeGenerator) GenerateJSON(context.Context, string, string) (json.RawMessage, error) {
	if f.err != nil {
		return nil, f.err
	}
	return json.RawMessage(f.response), nil
}

type fakeExecutor struct {
	outcomes []executor.Outcome
	titles   []string
}

func (f *fakeExecutor) ExecuteTask(_ context.Context, ec *executor.Context, task planner.Task, _ int) executor.Outcome {
	f.titles = append(f.titles, task.Title)
	outcome := executor.OutcomeDone
	if len(f.outcomes) > 0 {
		outcome = f.outcomes[0]
		f.outcomes = f.outcomes[1:]
	}
	if outcome == executor.OutcomeDone {
		ec.CompletedTasks = append(ec.CompletedTasks, task.Title)
	}
	return outcome
}

type fakeRunner struct {
	retryCalls []string
	retryOK    bool
}

func (f *fakeRunner) Run(context.Context, string, string) (runner.Result, error) {
	return runner.Result{}, nil
}

func (f *fakeRunner) RunTimeout(context.Context, string, string, time.Duration) (runner.Result, error) {
	return runner.Result{}, nil
}

func (f *fakeRunner) RunWithRetry(_ context.Context, command, _, _ string) bool {
	f.retryCalls = append(f.retryCalls, command)
	return f.retryOK
}

type fakeProber struct {
	result probe.Result
	calls  []string
}

func (f *fakeProber) Probe(_ context.Context, command, _ string) probe.Result {
	f.calls = append(f.calls, command)
	return f.result
}

func testOrchestrator(t *testing.T, d Deps, input string) *Orchestrator {
	t.Helper()
	if d.Generator == nil {
		d.Generator = &fakeGenerator{err: errors.New("offline")}
	}
	if d.Executor == nil {
		d.Executor = &fakeExecutor{}
	}
	if d.Runner == nil {
		d.Runner = &fakeRunner{retryOK: true}
	}
	if d.Console == nil {
		d.Console = console.NewWithStreams(strings.NewReader(input), &bytes.Buffer{})
	}
	if d.Tracker == nil {
		d.Tracker = session.NewTracker()
	}
	if d.Backend == nil {
		d.Backend = &fakeProber{result: probe.Result{Verdict: probe.Healthy}}
	}
	if d.Frontend == nil {
		d.Frontend = &fakeProber{result: probe.Result{Verdict: probe.Healthy}}
	}
	if d.Config == nil {
		d.Config = config.DefaultConfig()
	}
	return New(d)
}

func writeArtifacts(t *testing.T, dir string, tasks string) {
	t.Helper()
	arch := `{"app_name": "demo", "overview": "a demo app", "tech_stack": {"backend": "Flask"}}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, planner.ArchitectureFile), []byte(arch), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, planner.TasksFile), []byte(tasks), 0o644))
	// A present .env keeps environment provisioning out of the run.
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("KEY=value\n"), 0o644))
}

func TestOrderTasksByDependency(t *testing.T) {
	o := testOrchestrator(t, Deps{}, "")
	tasks := []planner.Task{
		{Title: "deploy", Dependencies: []string{"build"}},
		{Title: "build", Dependencies: []string{"scope"}},
		{Title: "scope"},
	}

	ordered := o.orderTasks(tasks)

	titles := make([]string, len(ordered))
	for i, task := range ordered {
		titles[i] = task.Title
	}
	assert.Equal(t, []string{"scope", "build", "deploy"}, titles)
}

func TestOrderTasksCycleFallsBackToListOrder(t *testing.T) {
	o := testOrchestrator(t, Deps{}, "")
	tasks := []planner.Task{
		{Title: "a", Dependencies: []string{"b"}},
		{Title: "b", Dependencies: []string{"a"}},
	}

	ordered := o.orderTasks(tasks)

	require.Len(t, ordered, 2)
	assert.Equal(t, "a", ordered[0].Title)
	assert.Equal(t, "b", ordered[1].Title)
}

func TestOrderTasksKeepsDisconnectedTasks(t *testing.T) {
	o := testOrchestrator(t, Deps{}, "")
	tasks := []planner.Task{
		{Title: "standalone"},
		{Title: "second", Dependencies: []string{"first"}},
		{Title: "first"},
	}

	ordered := o.orderTasks(tasks)

	titles := make([]string, len(ordered))
	for i, task := range ordered {
		titles[i] = task.Title
	}
	assert.Equal(t, []string{"standalone", "first", "second"}, titles)
	assert.Len(t, ordered, 3)
}

func TestRunExecutesTasksAndWritesReadme(t *testing.T) {
	dir := t.TempDir()
	writeArtifacts(t, dir, `{"major_tasks": [
		{"title": "Build API", "dependencies": ["Design schema"]},
		{"title": "Design schema", "dependencies": []}
	]}`)

	exec := &fakeExecutor{}
	o := testOrchestrator(t, Deps{Executor: exec}, "")

	require.NoError(t, o.Run(context.Background(), dir))

	assert.Equal(t, []string{"Design schema", "Build API"}, exec.titles)

	readme, err := os.ReadFile(filepath.Join(dir, "README.md"))
	require.NoError(t, err)
	assert.Contains(t, string(readme), "# demo")
	assert.Contains(t, string(readme), "## Quick Start")
}

func TestPrintSummariesListsModifiedFilesSorted(t *testing.T) {
	tr := session.NewTracker()
	tr.TrackCreated("views.py")
	tr.TrackModified("app.py")
	tr.TrackModified("settings.py")

	var out bytes.Buffer
	o := testOrchestrator(t, Deps{
		Tracker: tr,
		Console: console.NewWithStreams(strings.NewReader(""), &out),
	}, "")

	o.printSummaries(&executor.Context{Tracker: tr})

	assert.Contains(t, out.String(), "Files created/modified (3 total):")
	assert.Contains(t, out.String(),
		"  - app.py\n  - settings.py\n  - views.py\n")
}

func TestRunStopsOnFailedTask(t *testing.T) {
	dir := t.TempDir()
	writeArtifacts(t, dir, `{"major_tasks": [
		{"title": "first"},
		{"title": "second"}
	]}`)

	exec := &fakeExecutor{outcomes: []executor.Outcome{executor.OutcomeFailed}}
	o := testOrchestrator(t, Deps{Executor: exec}, "")

	err := o.Run(context.Background(), dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "first")
	assert.Equal(t, []string{"first"}, exec.titles, "second task must not run")
}

func TestRunSkippedTaskContinues(t *testing.T) {
	dir := t.TempDir()
	writeArtifacts(t, dir, `{"major_tasks": [
		{"title": "first"},
		{"title": "second"}
	]}`)

	exec := &fakeExecutor{outcomes: []executor.Outcome{executor.OutcomeSkipped, executor.OutcomeDone}}
	o := testOrchestrator(t, Deps{Executor: exec}, "")

	require.NoError(t, o.Run(context.Background(), dir))
	assert.Equal(t, []string{"first", "second"}, exec.titles)
}

func TestRunSetupDeclinedStopsRun(t *testing.T) {
	dir := t.TempDir()
	arch := `{"app_name": "demo"}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, planner.ArchitectureFile), []byte(arch), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, planner.TasksFile), []byte(`{"major_tasks": []}`), 0o644))
	// No .env: environment detection will want one.

	gen := &fakeGenerator{response: `{"setup_commands": ["touch .env"]}`}
	cfg := config.DefaultConfig()
	cfg.Execution.AutoRun = false
	o := testOrchestrator(t, Deps{Generator: gen, Config: cfg}, "n\n")

	err := o.Run(context.Background(), dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "environment setup failed")
}

func TestSetupRunsGeneratedCommands(t *testing.T) {
	dir := t.TempDir()
	arch := `{"app_name": "demo"}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, planner.ArchitectureFile), []byte(arch), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, planner.TasksFile), []byte(`{"major_tasks": []}`), 0o644))

	gen := &fakeGenerator{response: `{"setup_commands": ["touch .env", "pip install -r requirements.txt"]}`}
	run := &fakeRunner{retryOK: true}
	o := testOrchestrator(t, Deps{Generator: gen, Runner: run}, "")

	require.NoError(t, o.Run(context.Background(), dir))
	assert.Contains(t, run.retryCalls, "touch .env")
	assert.Contains(t, run.retryCalls, "pip install -r requirements.txt")
}

func TestVerifyProjectDjango(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "manage.py"), []byte("#!/usr/bin/env python"), 0o644))

	run := &fakeRunner{retryOK: true}
	backend := &fakeProber{result: probe.Result{Verdict: probe.Healthy}}
	o := testOrchestrator(t, Deps{Runner: run, Backend: backend}, "")

	ok, instructions := o.verifyProject(context.Background(), dir, map[string]any{}, true, true)

	assert.True(t, ok)
	assert.Contains(t, run.retryCalls, "python manage.py check")
	assert.Contains(t, run.retryCalls, "python manage.py migrate")
	assert.Equal(t, []string{"python manage.py runserver"}, backend.calls)
	assert.Contains(t, instructions, "python manage.py runserver")
}

func TestVerifyProjectCrashedProbeFails(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "manage.py"), []byte("#!/usr/bin/env python"), 0o644))

	backend := &fakeProber{result: probe.Result{Verdict: probe.Crashed, Output: "Traceback"}}
	o := testOrchestrator(t, Deps{Backend: backend}, "")

	ok, _ := o.verifyProject(context.Background(), dir, map[string]any{}, true, true)
	assert.False(t, ok)
}

func TestInferRunTargets(t *testing.T) {
	tests := []struct {
		prompt   string
		backend  bool
		frontend bool
	}{
		{"start the django backend", true, false},
		{"run the react frontend", false, true},
		{"restart the api and the web ui", true, true},
		{"just run it", true, true},
	}
	for _, tt := range tests {
		backend, frontend := inferRunTargets(tt.prompt)
		assert.Equal(t, tt.backend, backend, tt.prompt)
		assert.Equal(t, tt.frontend, frontend, tt.prompt)
	}
}

func TestRunActionSkipsFilteredSide(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "manage.py"), []byte("#!/usr/bin/env python"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "package.json"),
		[]byte(`{"scripts": {"start": "node index.js"}}`), 0o644))

	backend := &fakeProber{result: probe.Result{Verdict: probe.Healthy}}
	frontend := &fakeProber{result: probe.Result{Verdict: probe.Healthy}}
	o := testOrchestrator(t, Deps{Backend: backend, Frontend: frontend}, "")

	ok := o.RunAction(context.Background(), "start the backend server", dir)

	assert.True(t, ok)
	assert.NotEmpty(t, backend.calls)
	assert.Empty(t, frontend.calls, "frontend must be skipped for a backend prompt")
}

func TestFixFrontendErrorsCreatesMissingLocalFile(t *testing.T) {
	dir := t.TempDir()
	srcDir := filepath.Join(dir, "src")
	require.NoError(t, os.MkdirAll(srcDir, 0o755))

	run := &fakeRunner{retryOK: true}
	o := testOrchestrator(t, Deps{Runner: run}, "")

	output := "Module not found: Error: Can't resolve './App.css' in '" + srcDir + "'\n" +
		"Module not found: Error: Can't resolve 'axios' in '" + srcDir + "'"
	fixed := o.fixFrontendErrors(context.Background(), output, dir)

	assert.True(t, fixed)
	assert.FileExists(t, filepath.Join(srcDir, "App.css"))
	assert.Contains(t, run.retryCalls, "npm install axios")
}

func TestAppendQuickStartIdempotent(t *testing.T) {
	dir := t.TempDir()
	readme := "# demo\n\n## Overview\n\nstuff\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte(readme), 0o644))

	o := testOrchestrator(t, Deps{}, "")
	o.appendQuickStart(dir, "  1. flask run")
	o.appendQuickStart(dir, "  1. flask run")

	data, err := os.ReadFile(filepath.Join(dir, "README.md"))
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(data), "## Quick Start"))
	assert.Contains(t, string(data), "flask run")
	// Quick Start lands before the first existing section.
	assert.Less(t, strings.Index(string(data), "## Quick Start"), strings.Index(string(data), "## Overview"))
}
