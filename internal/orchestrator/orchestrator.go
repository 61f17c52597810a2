// Copyright (c) 2025 Gryffin Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

// Package orchestrator sequences a full run: load the planning
// artifacts, synthesize shared project context, provision the
// environment, execute every task in dependency order, then verify the
// project actually runs.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/gammazero/toposort"
	"go.opentelemetry.io/otel/trace"

	"gryffin/internal/config"
	"gryffin/internal/console"
	"gryffin/internal/executor"
	"gryffin/internal/insight"
	"gryffin/internal/llm"
	"gryffin/internal/planner"
	"gryffin/internal/probe"
	"gryffin/internal/session"
	"gryffin/internal/snapshot"
	"gryffin/internal/telemetry"
)

// TaskExecutor runs one task to a terminal outcome. Satisfied by
// *executor.Executor.
type TaskExecutor interface {
	ExecuteTask(ctx context.Context, ec *executor.Context, task planner.Task, index int) executor.Outcome
}

// Deps wires the orchestrator's collaborators.
type Deps struct {
	Generator llm.Generator
	Executor  TaskExecutor
	Runner    executor.CommandRunner
	Console   *console.Console
	Tracker   *session.Tracker
	Backend   probe.Prober
	Frontend  probe.Prober
	Config    *config.Config
	Insight   *insight.CodebaseInsight
}

// Orchestrator drives the end-to-end run.
type Orchestrator struct {
	gen      llm.Generator
	exec     TaskExecutor
	runner   executor.CommandRunner
	console  *console.Console
	tracker  *session.Tracker
	backend  probe.Prober
	frontend probe.Prober
	cfg      *config.Config
	insight  *insight.CodebaseInsight
}

// New creates an orchestrator from its dependency set.
func New(d Deps) *Orchestrator {
	return &Orchestrator{
		gen:      d.Generator,
		exec:     d.Executor,
		runner:   d.Runner,
		console:  d.Console,
		tracker:  d.Tracker,
		backend:  d.Backend,
		frontend: d.Frontend,
		cfg:      d.Config,
		insight:  d.Insight,
	}
}

// Run executes the whole pipeline against targetDir. It returns an
// error when loading fails, setup fails, or a task stops the run;
// verification failures are reported but do not error.
func (o *Orchestrator) Run(ctx context.Context, targetDir string) error {
	ctx, span := telemetry.StartSpan(ctx, "orchestrator.run")
	defer span.End()
	span.SetAttributes(telemetry.AttrTargetDir.String(targetDir))

	o.console.Banner("STARTING EXECUTION PHASE")
	o.tracker.Reset()

	arch, err := planner.LoadArchitecture(filepath.Join(targetDir, planner.ArchitectureFile))
	if err != nil {
		telemetry.RecordError(ctx, err)
		return err
	}
	tasks, err := planner.LoadTasks(filepath.Join(targetDir, planner.TasksFile))
	if err != nil {
		telemetry.RecordError(ctx, err)
		return err
	}
	ordered := o.orderTasks(tasks)

	tree, err := snapshot.Take(targetDir)
	if err != nil {
		err = fmt.Errorf("snapshotting %s: %w", targetDir, err)
		telemetry.RecordError(ctx, err)
		return err
	}

	readme := o.generateReadme(ctx, arch, targetDir, tree)

	env := snapshot.DetectEnv(ctx, tree, targetDir)
	if len(env.NeedsSetup) > 0 {
		if !o.setupEnvironment(ctx, env, targetDir, arch, readme) {
			return errors.New("environment setup failed; set up manually and retry")
		}
	}

	ec := &executor.Context{
		TargetDir:     targetDir,
		Architecture:  arch,
		Tasks:         ordered,
		Snapshot:      tree,
		ReadmeContent: readme,
		Insight:       o.insight,
		Tracker:       o.tracker,
	}

	o.console.Printf("Total tasks to execute: %d", len(ordered))
	for i, task := range ordered {
		taskCtx, taskSpan := telemetry.StartSpan(ctx, "task",
			trace.WithAttributes(telemetry.AttrTaskTitle.String(task.Title), telemetry.AttrTaskIndex.Int(i+1)))
		outcome := o.exec.ExecuteTask(taskCtx, ec, task, i+1)
		taskSpan.End()

		switch outcome {
		case executor.OutcomeDone, executor.OutcomeSkipped:
		default:
			err := fmt.Errorf("execution stopped at task %d (%s)", i+1, task.Title)
			telemetry.RecordError(ctx, err)
			return err
		}
	}

	o.console.Banner("ALL TASKS COMPLETED")
	o.printSummaries(ec)

	ok, instructions := o.verifyProject(ctx, targetDir, arch, true, true)
	o.appendQuickStart(targetDir, instructions)

	if ok {
		o.console.Successf("Project appears runnable!")
		o.console.Printf("To run the project:\n%s", instructions)
	} else {
		o.console.Warnf("Project run verification failed")
		o.console.Printf("Suggested run commands:\n%s", instructions)
	}
	return nil
}

// orderTasks sorts by declared dependencies. Tasks outside the
// dependency graph keep their list position at the front; a cycle
// falls back to list order with a warning.
func (o *Orchestrator) orderTasks(tasks []planner.Task) []planner.Task {
	byTitle := make(map[string]planner.Task, len(tasks))
	for _, t := range tasks {
		byTitle[t.Title] = t
	}

	edges := make([]toposort.Edge, 0)
	for _, t := range tasks {
		for _, dep := range t.Dependencies {
			if _, known := byTitle[dep]; known {
				edges = append(edges, toposort.Edge{dep, t.Title})
			}
		}
	}
	if len(edges) == 0 {
		return tasks
	}

	sorted, err := toposort.Toposort(edges)
	if err != nil {
		o.console.Warnf("Dependency cycle detected; executing tasks in list order")
		return tasks
	}

	inSorted := make(map[string]bool, len(sorted))
	for _, node := range sorted {
		inSorted[node.(string)] = true
	}

	ordered := make([]planner.Task, 0, len(tasks))
	// Disconnected tasks first, in list order.
	for _, t := range tasks {
		if !inSorted[t.Title] {
			ordered = append(ordered, t)
		}
	}
	for _, node := range sorted {
		if t, ok := byTitle[node.(string)]; ok {
			ordered = append(ordered, t)
		}
	}
	return ordered
}

func (o *Orchestrator) printSummaries(ec *executor.Context) {
	o.console.Printf("Completed tasks:")
	for i, title := range ec.CompletedTasks {
		o.console.Printf("  %d. %s", i+1, title)
	}

	errorLog := o.tracker.ErrorLog()
	if len(errorLog) > 0 {
		o.console.Printf("Errors fixed during execution (%d total):", len(errorLog))
		shown := errorLog
		if len(shown) > 10 {
			shown = shown[len(shown)-10:]
		}
		for i, fix := range shown {
			o.console.Printf("  %d. [%s] %s", i+1, fix.Timestamp, truncate(fix.Fix, 80))
		}
	}

	touched := o.tracker.TouchedFiles()
	if len(touched) > 0 {
		o.console.Printf("Files created/modified (%d total):", len(touched))
		limit := len(touched)
		if limit > 15 {
			limit = 15
		}
		for _, f := range touched[:limit] {
			o.console.Printf("  - %s", f)
		}
		if len(touched) > 15 {
			o.console.Printf("  ... and %d more files", len(touched)-15)
		}
	}
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
