// Copyright (c) 2025 Gryffin Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

// Package executor drives one task at a time through the build loop:
// generate a change set, apply it, statically check it, run the test
// suite with auto-fix, run cross-task integration checks, and record
// completion. Every gate is an explicit user decision point; the whole
// machine is a bounded loop, never recursion.
package executor

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"gryffin/internal/advisor"
	"gryffin/internal/codegen"
	"gryffin/internal/console"
	"gryffin/internal/debugger"
	"gryffin/internal/planner"
	"gryffin/internal/runner"
)

// state is the task executor's position in the build loop.
type state int

const (
	stateGenerating state = iota
	stateAwaitingApproval
	stateApplying
	stateCheckingErrors
	stateTesting
	stateIntegrationTesting
	stateDone
)

// Outcome is the terminal result of running one task.
type Outcome int

const (
	// OutcomeDone means the task completed and was recorded.
	OutcomeDone Outcome = iota
	// OutcomeSkipped means the user skipped the task; treated as
	// success for sequencing purposes.
	OutcomeSkipped
	// OutcomeFailed stops the run at this task.
	OutcomeFailed
	// OutcomeAborted means the user terminated the whole task list.
	OutcomeAborted
)

const (
	// maxTaskIterations bounds retry-whole-task loops per task.
	maxTaskIterations = 15
	// maxFixAttempts bounds the test auto-fix loop, mirroring the
	// command runner's ceiling.
	maxFixAttempts = 15

	stuckPrefixLen = 300
	stuckThreshold = 3

	checkTimeout   = 60 * time.Second
	commandTimeout = 60 * time.Second
	testTimeout    = 300 * time.Second
)

// CodeGenerator produces change sets for tasks.
type CodeGenerator interface {
	Generate(ctx context.Context, taskTitle, taskDetails, projectContext, readme string) (codegen.ChangeSet, error)
}

// DebugAnalyzer produces patch sets for test failures.
type DebugAnalyzer interface {
	Analyze(ctx context.Context, errorLog string, tree *debugger.FileTree, readme, contextDesc string) debugger.Fix
}

// FixAdvisor produces command/content level fix suggestions.
type FixAdvisor interface {
	Advise(ctx context.Context, errMsg, contextDesc, previousAttempt string, retryCount int) advisor.Suggestion
}

// CommandRunner executes shell commands. Satisfied by *runner.Runner.
type CommandRunner interface {
	Run(ctx context.Context, command, dir string) (runner.Result, error)
	RunTimeout(ctx context.Context, command, dir string, timeout time.Duration) (runner.Result, error)
	RunWithRetry(ctx context.Context, command, dir, contextDesc string) bool
}

// Deps wires the executor's collaborators.
type Deps struct {
	CodeGen  CodeGenerator
	Debugger DebugAnalyzer
	Advisor  FixAdvisor
	Runner   CommandRunner
	Console  *console.Console
	// AutoRun approves change sets and overwrites without prompting.
	// Failure gates still block on the user.
	AutoRun bool
}

// Executor runs the per-task state machine.
type Executor struct {
	codegen  CodeGenerator
	debugger DebugAnalyzer
	advisor  FixAdvisor
	runner   CommandRunner
	console  *console.Console
	autoRun  bool
}

// New creates an executor from its dependency set.
func New(d Deps) *Executor {
	return &Executor{
		codegen:  d.CodeGen,
		debugger: d.Debugger,
		advisor:  d.Advisor,
		runner:   d.Runner,
		console:  d.Console,
		autoRun:  d.AutoRun,
	}
}

// ExecuteTask drives task through the state machine until a terminal
// outcome. index is 1-based and used only for reporting.
func (e *Executor) ExecuteTask(ctx context.Context, ec *Context, task planner.Task, index int) Outcome {
	e.console.Banner(task.Title)

	st := stateGenerating
	iterations := 0
	extra := ""
	var cs codegen.ChangeSet
	var applied []string

	for {
		switch st {
		case stateGenerating:
			iterations++
			if iterations > maxTaskIterations {
				e.console.Failf("Task %d exceeded %d generation attempts", index, maxTaskIterations)
				return OutcomeFailed
			}
			var err error
			cs, err = e.codegen.Generate(ctx, task.Title, taskDetails(task, extra), ec.ProjectContext(), ec.ReadmeContent)
			if err != nil {
				e.console.Failf("Code generation failed: %v", err)
				choice, _ := e.console.Ask("generation failure", "Choose: (retry) generation, (skip) task, (abort) run")
				switch choice {
				case "retry", "r":
					continue
				case "skip", "s":
					return OutcomeSkipped
				default:
					return OutcomeAborted
				}
			}
			st = stateAwaitingApproval

		case stateAwaitingApproval:
			if e.autoRun {
				st = stateApplying
				continue
			}
			e.presentChangeSet(cs)
			choice, instructions := e.console.Ask("change approval",
				"Choose: (approve), (modify) with instructions, (skip) task, (cancel) task")
			switch choice {
			case "approve", "a", "y", "yes":
				st = stateApplying
			case "modify", "m":
				if instructions == "" {
					_, instructions = e.console.Ask("modification details", "Describe the changes you want")
				}
				if extra != "" {
					extra += "\n"
				}
				extra += instructions
				st = stateGenerating
			case "skip", "s":
				return OutcomeSkipped
			default:
				return OutcomeFailed
			}

		case stateApplying:
			applied = e.applyChangeSet(ec, cs)
			st = stateCheckingErrors

		case stateCheckingErrors:
			allFixed, remaining := e.checkErrors(ctx, ec, applied)
			if allFixed {
				st = stateTesting
				continue
			}
			e.console.Failf("Unresolved errors after auto-fix:")
			for _, msg := range remaining {
				e.console.Printf("  %s", firstLine(msg))
			}
			choice, _ := e.console.Ask("unresolved errors",
				"Choose: (fixed) I resolved them manually, (retry) whole task, (skip) task, (abort) run")
			switch choice {
			case "fixed", "f":
				st = stateTesting
			case "retry", "r":
				st = stateGenerating
			case "skip", "s":
				return OutcomeSkipped
			default:
				return OutcomeAborted
			}

		case stateTesting:
			result := e.RunTests(ctx, ec)
			if result.Passed {
				st = stateIntegrationTesting
				continue
			}
			e.console.Failf("Tests still failing after auto-fix loop")
			for _, msg := range result.Errors {
				e.console.Printf("  %s", msg)
			}
			choice, _ := e.console.Ask("test failure",
				"Choose: (rerun) tests, (retry) whole task, (skip) task, (abort) run")
			switch choice {
			case "rerun":
				continue
			case "retry", "r":
				st = stateGenerating
			case "skip", "s":
				return OutcomeSkipped
			default:
				return OutcomeAborted
			}

		case stateIntegrationTesting:
			if len(ec.CompletedTasks) == 0 {
				st = stateDone
				continue
			}
			result := e.RunTests(ctx, ec)
			if result.Passed {
				st = stateDone
				continue
			}
			e.console.Failf("Integration check failed against previously completed tasks")
			choice, _ := e.console.Ask("integration failure",
				"Choose: (retry) whole task, (manual) fix then rerun, (rollback), (proceed) despite failure")
			switch choice {
			case "retry", "r":
				st = stateGenerating
			case "manual", "m":
				e.console.Ask("manual fix", "Press enter when your manual fix is in place")
				continue
			case "rollback":
				// Files stay as applied; the user reverts manually and
				// the task counts as failed.
				e.console.Warnf("Rollback not yet implemented. Please revert changes manually.")
				return OutcomeFailed
			default:
				st = stateDone
			}

		case stateDone:
			ec.CompletedTasks = append(ec.CompletedTasks, task.Title)
			ec.RefreshSnapshot()
			e.console.Successf("Task %d complete: %s", index, task.Title)
			slog.Info("task complete", "index", index, "title", task.Title)
			return OutcomeDone
		}
	}
}

func (e *Executor) presentChangeSet(cs codegen.ChangeSet) {
	e.console.Printf("Proposed changes: %s", cs.Explanation)
	for _, p := range cs.Paths() {
		e.console.Printf("  - %s", p)
	}
}

func taskDetails(task planner.Task, extra string) string {
	var b strings.Builder
	b.WriteString(task.Description)
	if len(task.AcceptanceCriteria) > 0 {
		b.WriteString("\n\nAcceptance criteria:\n")
		for _, c := range task.AcceptanceCriteria {
			b.WriteString("- " + c + "\n")
		}
	}
	if extra != "" {
		b.WriteString("\nAdditional instructions: " + extra)
	}
	return b.String()
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}
