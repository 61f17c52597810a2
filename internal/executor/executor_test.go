// Copyright (c) 2025 Gryffin Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package executor

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gryffin/internal/advisor"
	"gryffin/internal/codegen"
	"gryffin/internal/console"
	"gryffin/internal/debugger"
	"gryffin/internal/planner"
	"gryffin/internal/runner"
	"gryffin/internal/session"
)

type fakeRunner struct {
	// results queues per-command outcomes; the last entry repeats
	// once the queue drains.
	results map[string][]runner.Result
	calls   []string
}

func (f *fakeRunner) RunTimeout(_ context.Context, command, dir string, _ time.Duration) (runner.Result, error) {
	f.calls = append(f.calls, command)
	if q, ok := f.results[command]; ok && len(q) > 0 {
		r := q[0]
		if len(q) > 1 {
			f.results[command] = q[1:]
		}
		return r, nil
	}
	return runner.Result{ExitCode: 0}, nil
}

func (f *fakeRunner) Run(ctx context.Context, command, dir string) (runner.Result, error) {
	return f.RunTimeout(ctx, command, dir, 0)
}

func (f *fakeRunner) RunWithRetry(context.Context, string, string, string) bool {
	return true
}

func (f *fakeRunner) countCalls(command string) int {
	n := 0
	for _, c := range f.calls {
		if c == command {
			n++
		}
	}
	return n
}

type fakeCodeGen struct {
	changeSet codegen.ChangeSet
	err       error
	details   []string
}

func (f *fakeCodeGen) Generate(_ context.Context, _, taskDetails, _, _ string) (codegen.ChangeSet, error) {
	f.details = append(f.details, taskDetails)
	return f.changeSet, f.err
}

type fakeDebugger struct {
	fixes    []debugger.Fix
	contexts []string
	calls    int
}

func (f *fakeDebugger) Analyze(_ context.Context, _ string, _ *debugger.FileTree, _, contextDesc string) debugger.Fix {
	f.calls++
	f.contexts = append(f.contexts, contextDesc)
	if len(f.fixes) == 0 {
		return debugger.Fix{Explanation: "noop"}
	}
	fix := f.fixes[0]
	if len(f.fixes) > 1 {
		f.fixes = f.fixes[1:]
	}
	return fix
}

type fakeAdvisor struct {
	suggestion advisor.Suggestion
}

func (f *fakeAdvisor) Advise(context.Context, string, string, string, int) advisor.Suggestion {
	return f.suggestion
}

func newExecutor(t *testing.T, gen CodeGenerator, dbg DebugAnalyzer, adv FixAdvisor, run CommandRunner, input string, autoRun bool) *Executor {
	t.Helper()
	if dbg == nil {
		dbg = &fakeDebugger{}
	}
	if adv == nil {
		adv = &fakeAdvisor{}
	}
	if run == nil {
		run = &fakeRunner{}
	}
	return New(Deps{
		CodeGen:  gen,
		Debugger: dbg,
		Advisor:  adv,
		Runner:   run,
		Console:  console.NewWithStreams(strings.NewReader(input), &bytes.Buffer{}),
		AutoRun:  autoRun,
	})
}

func newContext(t *testing.T) *Context {
	t.Helper()
	ec := &Context{TargetDir: t.TempDir(), Tracker: session.NewTracker()}
	ec.RefreshSnapshot()
	return ec
}

func sampleTask() planner.Task {
	return planner.Task{Title: "Add greeting", Description: "Print a greeting"}
}

func TestExecuteTaskHappyPathAutoRun(t *testing.T) {
	gen := &fakeCodeGen{changeSet: codegen.ChangeSet{
		Files:       []codegen.FileChange{{Path: "greeting.txt", Content: "hello"}},
		Explanation: "adds greeting",
	}}
	e := newExecutor(t, gen, nil, nil, nil, "", true)
	ec := newContext(t)

	outcome := e.ExecuteTask(context.Background(), ec, sampleTask(), 1)

	assert.Equal(t, OutcomeDone, outcome)
	assert.FileExists(t, filepath.Join(ec.TargetDir, "greeting.txt"))
	assert.Equal(t, []string{"Add greeting"}, ec.CompletedTasks)
	assert.True(t, ec.Tracker.Owns("greeting.txt"))
	assert.Empty(t, ec.Tracker.ErrorLog(), "green first run leaves the error log empty")
	assert.Contains(t, ec.Snapshot.Files, "greeting.txt", "snapshot refreshed after completion")
}

func TestExecuteTaskApprovalSkip(t *testing.T) {
	gen := &fakeCodeGen{changeSet: codegen.ChangeSet{
		Files: []codegen.FileChange{{Path: "greeting.txt", Content: "hello"}},
	}}
	e := newExecutor(t, gen, nil, nil, nil, "skip\n", false)
	ec := newContext(t)

	outcome := e.ExecuteTask(context.Background(), ec, sampleTask(), 1)

	assert.Equal(t, OutcomeSkipped, outcome)
	assert.NoFileExists(t, filepath.Join(ec.TargetDir, "greeting.txt"))
	assert.Empty(t, ec.CompletedTasks)
}

func TestExecuteTaskApprovalCancelFails(t *testing.T) {
	gen := &fakeCodeGen{changeSet: codegen.ChangeSet{
		Files: []codegen.FileChange{{Path: "greeting.txt", Content: "hello"}},
	}}
	e := newExecutor(t, gen, nil, nil, nil, "cancel\n", false)
	ec := newContext(t)

	outcome := e.ExecuteTask(context.Background(), ec, sampleTask(), 1)
	assert.Equal(t, OutcomeFailed, outcome)
}

func TestExecuteTaskModifyRegenerates(t *testing.T) {
	gen := &fakeCodeGen{changeSet: codegen.ChangeSet{
		Files: []codegen.FileChange{{Path: "greeting.txt", Content: "hello"}},
	}}
	e := newExecutor(t, gen, nil, nil, nil, "modify, use French\napprove\n", false)
	ec := newContext(t)

	outcome := e.ExecuteTask(context.Background(), ec, sampleTask(), 1)

	assert.Equal(t, OutcomeDone, outcome)
	require.Len(t, gen.details, 2)
	assert.NotContains(t, gen.details[0], "use French")
	assert.Contains(t, gen.details[1], "use French")
}

func TestApplyPromptsBeforeOverwritingForeignFile(t *testing.T) {
	ec := newContext(t)
	existing := filepath.Join(ec.TargetDir, "greeting.txt")
	require.NoError(t, os.WriteFile(existing, []byte("original"), 0o644))

	gen := &fakeCodeGen{changeSet: codegen.ChangeSet{
		Files: []codegen.FileChange{{Path: "greeting.txt", Content: "replaced"}},
	}}
	// Approve the change set, then decline the overwrite.
	e := newExecutor(t, gen, nil, nil, nil, "approve\nn\n", false)

	outcome := e.ExecuteTask(context.Background(), ec, sampleTask(), 1)

	assert.Equal(t, OutcomeDone, outcome)
	data, err := os.ReadFile(existing)
	require.NoError(t, err)
	assert.Equal(t, "original", string(data), "declined overwrite must not touch the file")
}

func TestApplyOverwritesOwnPathsSilently(t *testing.T) {
	ec := newContext(t)
	existing := filepath.Join(ec.TargetDir, "greeting.txt")
	require.NoError(t, os.WriteFile(existing, []byte("v1"), 0o644))
	ec.Tracker.TrackCreated("greeting.txt")

	gen := &fakeCodeGen{changeSet: codegen.ChangeSet{
		Files: []codegen.FileChange{{Path: "greeting.txt", Content: "v2"}},
	}}
	// Only the approval prompt is answered; a second prompt would
	// exhaust input and abort the apply.
	e := newExecutor(t, gen, nil, nil, nil, "approve\n", false)

	outcome := e.ExecuteTask(context.Background(), ec, sampleTask(), 1)

	assert.Equal(t, OutcomeDone, outcome)
	data, err := os.ReadFile(existing)
	require.NoError(t, err)
	assert.Equal(t, "v2", string(data))
}

func TestExecuteTaskIntegrationRollbackFailsTask(t *testing.T) {
	ec := newContext(t)
	ec.CompletedTasks = []string{"Earlier task"}
	withPytestMarker(t, ec)

	// Task tests pass; the integration pass against earlier work fails.
	run := &fakeRunner{results: map[string][]runner.Result{
		pytestCmd: {
			{ExitCode: 0, Output: "2 passed"},
			{ExitCode: 1, Output: "E integration broken"},
		},
	}}
	gen := &fakeCodeGen{changeSet: codegen.ChangeSet{
		Files: []codegen.FileChange{{Path: "greeting.txt", Content: "hello"}},
	}}
	e := newExecutor(t, gen, nil, nil, run, "rollback\n", true)

	outcome := e.ExecuteTask(context.Background(), ec, sampleTask(), 2)

	assert.Equal(t, OutcomeFailed, outcome)
	assert.Equal(t, []string{"Earlier task"}, ec.CompletedTasks,
		"a rolled-back task must not be recorded as completed")
}

const pytestCmd = "python -m pytest -v --tb=short"

func withPytestMarker(t *testing.T, ec *Context) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(ec.TargetDir, "pytest.ini"), []byte("[pytest]\n"), 0o644))
}

func TestRunTestsFixLoopLogsOnlyWinningFix(t *testing.T) {
	ec := newContext(t)
	withPytestMarker(t, ec)

	run := &fakeRunner{results: map[string][]runner.Result{
		pytestCmd: {
			{ExitCode: 1, Output: "E assert 1 == 2"},
			{ExitCode: 1, Output: "E assert 1 == 2"},
			{ExitCode: 0, Output: "2 passed"},
		},
	}}
	dbg := &fakeDebugger{fixes: []debugger.Fix{
		{FilesToCreate: []debugger.FileContent{{Path: "conftest.py", Content: "import pytest"}}, Explanation: "add conftest"},
	}}
	e := newExecutor(t, &fakeCodeGen{}, dbg, nil, run, "", true)

	result := e.RunTests(context.Background(), ec)

	assert.True(t, result.Passed)
	assert.Equal(t, 2, dbg.calls)
	assert.FileExists(t, filepath.Join(ec.TargetDir, "conftest.py"))

	log := ec.Tracker.ErrorLog()
	require.Len(t, log, 1, "only the fix that made the suite pass is logged")
	assert.Equal(t, "add conftest", log[0].Fix)
}

func TestRunTestsNeedsHumanStopsImmediately(t *testing.T) {
	ec := newContext(t)
	withPytestMarker(t, ec)

	run := &fakeRunner{results: map[string][]runner.Result{
		pytestCmd: {{ExitCode: 1, Output: "E ImportError"}},
	}}
	dbg := &fakeDebugger{fixes: []debugger.Fix{
		{NeedsHuman: true, Explanation: "needs credentials", HumanInstructions: "set DATABASE_URL"},
	}}
	e := newExecutor(t, &fakeCodeGen{}, dbg, nil, run, "", true)

	result := e.RunTests(context.Background(), ec)

	assert.False(t, result.Passed)
	assert.Equal(t, 1, run.countCalls(pytestCmd), "no further test runs after needs-human")
	assert.Equal(t, 1, dbg.calls)
	assert.Contains(t, result.Errors, "needs credentials")
}

func TestRunTestsHonorsFixAttemptCeiling(t *testing.T) {
	ec := newContext(t)
	withPytestMarker(t, ec)

	run := &fakeRunner{results: map[string][]runner.Result{
		pytestCmd: {{ExitCode: 1, Output: "E forever broken"}},
	}}
	e := newExecutor(t, &fakeCodeGen{}, &fakeDebugger{}, nil, run, "", true)

	result := e.RunTests(context.Background(), ec)

	assert.False(t, result.Passed)
	assert.Equal(t, maxFixAttempts, run.countCalls(pytestCmd))
	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[0], "exhausted")
}

func TestRunTestsStuckDetectionAnnotatesContext(t *testing.T) {
	ec := newContext(t)
	withPytestMarker(t, ec)

	run := &fakeRunner{results: map[string][]runner.Result{
		pytestCmd: {{ExitCode: 1, Output: "E identical failure"}},
	}}
	dbg := &fakeDebugger{}
	e := newExecutor(t, &fakeCodeGen{}, dbg, nil, run, "", true)

	e.RunTests(context.Background(), ec)

	require.GreaterOrEqual(t, len(dbg.contexts), stuckThreshold)
	assert.NotContains(t, dbg.contexts[0], "COMPLETELY DIFFERENT")
	assert.NotContains(t, dbg.contexts[1], "COMPLETELY DIFFERENT")
	assert.Contains(t, dbg.contexts[stuckThreshold-1], "COMPLETELY DIFFERENT")
}

func TestRunTestsNoCommandsPassesTrivially(t *testing.T) {
	ec := newContext(t)
	e := newExecutor(t, &fakeCodeGen{}, nil, nil, &fakeRunner{}, "", true)

	result := e.RunTests(context.Background(), ec)
	assert.True(t, result.Passed)
}

func TestCheckErrorsAdvisorFix(t *testing.T) {
	ec := newContext(t)
	rel := "app.py"
	abs := filepath.Join(ec.TargetDir, rel)
	require.NoError(t, os.WriteFile(abs, []byte("def broken(:"), 0o644))

	cmd := syntaxCheckCommand(rel)
	run := &fakeRunner{results: map[string][]runner.Result{
		cmd: {
			{ExitCode: 1, Output: "SyntaxError: invalid syntax"},
			{ExitCode: 0},
		},
	}}
	adv := &fakeAdvisor{suggestion: advisor.Suggestion{Solution: "def fixed(): pass", Confidence: advisor.ConfidenceHigh}}
	e := newExecutor(t, &fakeCodeGen{}, nil, adv, run, "", true)

	allFixed, remaining := e.checkErrors(context.Background(), ec, []string{rel})

	assert.True(t, allFixed)
	assert.Empty(t, remaining)
	data, err := os.ReadFile(abs)
	require.NoError(t, err)
	assert.Equal(t, "def fixed(): pass", string(data))
	assert.True(t, ec.Tracker.Owns(rel))
}

func TestCheckErrorsRollsBackFailedFix(t *testing.T) {
	ec := newContext(t)
	rel := "app.py"
	abs := filepath.Join(ec.TargetDir, rel)
	original := "def broken(:"
	require.NoError(t, os.WriteFile(abs, []byte(original), 0o644))

	cmd := syntaxCheckCommand(rel)
	run := &fakeRunner{results: map[string][]runner.Result{
		cmd: {{ExitCode: 1, Output: "SyntaxError: invalid syntax"}},
	}}
	adv := &fakeAdvisor{suggestion: advisor.Suggestion{Solution: "still broken("}}
	e := newExecutor(t, &fakeCodeGen{}, nil, adv, run, "", true)

	allFixed, remaining := e.checkErrors(context.Background(), ec, []string{rel})

	assert.False(t, allFixed)
	require.Len(t, remaining, 1)
	data, err := os.ReadFile(abs)
	require.NoError(t, err)
	assert.Equal(t, original, string(data), "failed fix must be rolled back")
}

func TestCheckErrorsRunsNodeLintScript(t *testing.T) {
	ec := newContext(t)
	pkg := `{"scripts": {"lint": "eslint ."}}`
	require.NoError(t, os.WriteFile(filepath.Join(ec.TargetDir, "package.json"), []byte(pkg), 0o644))

	run := &fakeRunner{results: map[string][]runner.Result{
		"npm run lint": {{ExitCode: 1, Output: "1:1 error 'x' is not defined"}},
	}}
	e := newExecutor(t, &fakeCodeGen{}, nil, nil, run, "", true)

	allFixed, remaining := e.checkErrors(context.Background(), ec, nil)

	assert.False(t, allFixed)
	require.Len(t, remaining, 1)
	assert.Contains(t, remaining[0], "Linting errors found")
	assert.Equal(t, 1, run.countCalls("npm run lint"))
}

func TestCheckErrorsSkipsLintWithoutScript(t *testing.T) {
	ec := newContext(t)
	pkg := `{"scripts": {"start": "node index.js"}}`
	require.NoError(t, os.WriteFile(filepath.Join(ec.TargetDir, "package.json"), []byte(pkg), 0o644))

	run := &fakeRunner{}
	e := newExecutor(t, &fakeCodeGen{}, nil, nil, run, "", true)

	allFixed, remaining := e.checkErrors(context.Background(), ec, nil)

	assert.True(t, allFixed)
	assert.Empty(t, remaining)
	assert.Zero(t, run.countCalls("npm run lint"))
}

func TestDetectTestCommands(t *testing.T) {
	dir := t.TempDir()
	assert.Empty(t, DetectTestCommands(dir))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "pytest.ini"), []byte("[pytest]"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "package.json"), []byte(`{"scripts": {"test": "jest"}}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "go.mod"), []byte("module demo"), 0o644))

	cmds := DetectTestCommands(dir)
	assert.Equal(t, []string{pytestCmd, "npm test", "go test ./..."}, cmds)
}

func TestApplyFixOrderDeleteCreateModifyCommands(t *testing.T) {
	ec := newContext(t)
	stale := filepath.Join(ec.TargetDir, "stale.py")
	require.NoError(t, os.WriteFile(stale, []byte("old"), 0o644))
	existing := filepath.Join(ec.TargetDir, "app.py")
	require.NoError(t, os.WriteFile(existing, []byte("v1"), 0o644))

	run := &fakeRunner{}
	e := newExecutor(t, &fakeCodeGen{}, nil, nil, run, "", true)

	e.applyFix(context.Background(), ec, debugger.Fix{
		FilesToDelete: []string{"stale.py"},
		FilesToCreate: []debugger.FileContent{{Path: "pkg/new.py", Content: "new"}},
		FilesToModify: []debugger.FileContent{{Path: "app.py", Content: "v2"}},
		CommandsToRun: []string{"pip install mock"},
	})

	assert.NoFileExists(t, stale)
	assert.FileExists(t, filepath.Join(ec.TargetDir, "pkg", "new.py"))
	data, err := os.ReadFile(existing)
	require.NoError(t, err)
	assert.Equal(t, "v2", string(data))
	assert.Equal(t, []string{"pip install mock"}, run.calls)
	assert.True(t, ec.Tracker.Owns("pkg/new.py"))
}
