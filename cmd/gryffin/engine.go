// Copyright (c) 2025 Gryffin Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package main

import (
	"context"
	"log/slog"

	"gryffin/internal/advisor"
	"gryffin/internal/codegen"
	"gryffin/internal/config"
	"gryffin/internal/console"
	"gryffin/internal/debugger"
	"gryffin/internal/executor"
	"gryffin/internal/insight"
	"gryffin/internal/llm"
	"gryffin/internal/orchestrator"
	"gryffin/internal/planner"
	"gryffin/internal/probe"
	"gryffin/internal/runner"
	"gryffin/internal/session"
	"gryffin/internal/telemetry"
)

// engine bundles the fully wired collaborator graph for one target
// directory.
type engine struct {
	cfg      *config.Config
	client   *llm.Client
	console  *console.Console
	tracker  *session.Tracker
	planner  *planner.Planner
	orch     *orchestrator.Orchestrator
	insight  *insight.CodebaseInsight
	shutdown func(context.Context)
}

// buildEngine wires every component against targetDir. When the
// directory already holds code, an insight pass runs first so planning
// and execution respect the existing stack.
func buildEngine(ctx context.Context, targetDir string) (*engine, error) {
	cfg, err := loadConfig(targetDir)
	if err != nil {
		return nil, err
	}

	telemetry.SetupLogging()

	shutdown := func(context.Context) {}
	if cfg.Telemetry.Enabled {
		tp, err := telemetry.NewTracerProvider(ctx, &telemetry.Config{
			ServiceName:    "gryffin",
			ServiceVersion: version,
			CollectorURL:   cfg.Telemetry.CollectorURL,
			EnableConsole:  cfg.Telemetry.Console,
		})
		if err != nil {
			slog.Warn("telemetry disabled", "error", err)
		} else {
			shutdown = func(ctx context.Context) {
				if err := tp.Shutdown(ctx); err != nil {
					slog.Warn("telemetry shutdown", "error", err)
				}
			}
		}
	}

	client := llm.NewClient(cfg.Model.Default)

	con := console.New()
	con.AttachLogger(session.NewInteractionLog(targetDir))

	ci := analyzeCodebase(ctx, client, con, targetDir)

	tracker := session.NewTracker()
	adv := advisor.New(client)
	run := runner.New(adv, con, cfg.BuildTimeout())

	exec := executor.New(executor.Deps{
		CodeGen:  codegen.New(client),
		Debugger: debugger.New(client),
		Advisor:  adv,
		Runner:   run,
		Console:  con,
		AutoRun:  cfg.Execution.AutoRun,
	})

	orch := orchestrator.New(orchestrator.Deps{
		Generator: client,
		Executor:  exec,
		Runner:    run,
		Console:   con,
		Tracker:   tracker,
		Backend:   probe.NewBlocking(),
		Frontend:  probe.NewStreaming(),
		Config:    cfg,
		Insight:   ci,
	})

	return &engine{
		cfg:      cfg,
		client:   client,
		console:  con,
		tracker:  tracker,
		planner:  planner.New(client, con),
		orch:     orch,
		insight:  ci,
		shutdown: shutdown,
	}, nil
}

// analyzeCodebase profiles an existing codebase so plans build on it
// instead of over it. Empty directories and collaborator failures
// yield nil: a fresh build.
func analyzeCodebase(ctx context.Context, gen llm.Generator, con *console.Console, targetDir string) *insight.CodebaseInsight {
	files, err := insight.CollectFiles(targetDir)
	if err != nil || len(files) == 0 {
		return nil
	}

	con.Printf("Analyzing existing codebase (%d files)...", len(files))
	ci, err := insight.Analyze(ctx, gen, files)
	if err != nil {
		slog.Warn("codebase analysis failed", "error", err)
		return nil
	}
	con.Successf("Codebase analysis complete")
	return ci
}
