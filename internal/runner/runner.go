// Copyright (c) 2025 Gryffin Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

// Package runner executes shell commands with fixed timeouts and wraps
// them in a bounded auto-fix retry loop. Commands run in their own
// process group so a timeout kills the whole tree, not just the shell.
package runner

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/otel/trace"

	"gryffin/internal/advisor"
	"gryffin/internal/console"
	"gryffin/internal/telemetry"
)

const (
	// maxAttempts bounds the retry loop. Deliberately high: each
	// attempt is cheap relative to a human context switch, but
	// bounded so the loop always terminates.
	maxAttempts = 15

	// stuckPrefixLen and stuckThreshold drive stuck detection: when
	// the first stuckPrefixLen bytes of consecutive error outputs are
	// byte-identical stuckThreshold times in a row, the advisor is
	// told to abandon the current approach.
	stuckPrefixLen = 300
	stuckThreshold = 3

	killGracePeriod = 3 * time.Second
)

// Result captures one command invocation.
type Result struct {
	Output   string
	ExitCode int
	TimedOut bool
}

// Ok reports whether the command exited zero within its deadline.
func (r Result) Ok() bool {
	return r.ExitCode == 0 && !r.TimedOut
}

// Advisor is the slice of the auto-fix advisor the runner needs.
type Advisor interface {
	Advise(ctx context.Context, errMsg, contextDesc, previousAttempt string, retryCount int) advisor.Suggestion
}

// Runner executes commands and drives the auto-fix retry loop.
type Runner struct {
	advisor Advisor
	console *console.Console
	timeout time.Duration
}

// New creates a runner. timeout applies to every plain Run call; the
// retry wrapper uses it per attempt.
func New(adv Advisor, con *console.Console, timeout time.Duration) *Runner {
	return &Runner{advisor: adv, console: con, timeout: timeout}
}

// Run executes command under sh -c in dir with the runner's timeout.
// Stdout and stderr are interleaved into Result.Output. The spawned
// process group is killed on timeout, so Run never leaves children
// behind. The error is non-nil only when the command could not be
// started at all.
func (r *Runner) Run(ctx context.Context, command, dir string) (Result, error) {
	return r.runWithTimeout(ctx, command, dir, r.timeout)
}

// RunTimeout is Run with an explicit deadline, for callers whose
// commands carry their own fixed limit.
func (r *Runner) RunTimeout(ctx context.Context, command, dir string, timeout time.Duration) (Result, error) {
	return r.runWithTimeout(ctx, command, dir, timeout)
}

func (r *Runner) runWithTimeout(ctx context.Context, command, dir string, timeout time.Duration) (Result, error) {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, "sh", "-c", command)
	cmd.Dir = dir
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		// Negative pid signals the whole process group.
		syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)
		return nil
	}
	cmd.WaitDelay = killGracePeriod

	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	if err := cmd.Start(); err != nil {
		return Result{}, fmt.Errorf("starting %q: %w", command, err)
	}
	err := cmd.Wait()

	res := Result{Output: buf.String(), TimedOut: cctx.Err() == context.DeadlineExceeded}
	if err != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
		if res.ExitCode == 0 {
			res.ExitCode = -1
		}
	}
	return res, nil
}

// RunWithRetry executes command and, on failure, consults the auto-fix
// advisor, swaps in its suggested command, and tries again, up to the
// attempt ceiling. It returns true on the first successful attempt and
// false when attempts are exhausted or the user aborts. It never
// returns an error: subprocess and advisor failures count as another
// failed attempt.
func (r *Runner) RunWithRetry(ctx context.Context, command, dir, contextDesc string) bool {
	ctx, span := telemetry.StartSpan(ctx, "runner.retry",
		trace.WithAttributes(telemetry.AttrCommand.String(command)))
	defer span.End()

	current := command
	lastPrefix := ""
	stuckCount := 0

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		span.SetAttributes(telemetry.AttrAttempt.Int(attempt))
		res, err := r.runWithTimeout(ctx, current, dir, r.timeout)
		if err == nil && res.Ok() {
			if attempt > 1 {
				r.console.Successf("Command succeeded on attempt %d", attempt)
			}
			return true
		}

		errOutput := res.Output
		if err != nil {
			errOutput = err.Error()
		}
		if res.TimedOut {
			errOutput = fmt.Sprintf("command timed out after %s\n%s", r.timeout, errOutput)
		}
		slog.Debug("command failed", "command", current, "attempt", attempt, "exit_code", res.ExitCode)

		prefix := errPrefix(errOutput)
		if prefix == lastPrefix {
			stuckCount++
		} else {
			stuckCount = 1
			lastPrefix = prefix
		}

		adviceContext := contextDesc
		if stuckCount >= stuckThreshold {
			adviceContext += "\n\nIMPORTANT: The same error has occurred " +
				fmt.Sprint(stuckCount) +
				" times in a row. The previous fixes did not work. Take a COMPLETELY DIFFERENT approach."
		}

		suggestion := r.advisor.Advise(ctx, errOutput, adviceContext, current, attempt)

		if suggestion.NeedsHuman {
			choice := r.askHuman(current, errOutput, suggestion)
			switch choice {
			case "retry":
				current = command
				lastPrefix = ""
				stuckCount = 0
				continue
			case "skip":
				r.console.Warnf("Skipping step: %s", contextDesc)
				return true
			default:
				return false
			}
		}

		if strings.TrimSpace(suggestion.Solution) != "" {
			current = suggestion.Solution
			r.console.Printf("Retrying with: %s", current)
		}
	}

	r.console.Failf("Giving up after %d attempts: %s", maxAttempts, command)
	return false
}

// askHuman presents the advisor's escalation and blocks on the
// three-way choice. There is no timeout on human decisions.
func (r *Runner) askHuman(command, errOutput string, s advisor.Suggestion) string {
	r.console.Failf("Command failed and the advisor needs human input: %s", command)
	r.console.Printf("Explanation: %s", s.Explanation)
	if s.HumanInstructions != "" {
		r.console.Printf("Instructions: %s", s.HumanInstructions)
	}
	r.console.Printf("Last error output:\n%s", tail(errOutput, 1000))

	choice, _ := r.console.Ask("command failure", "Choose: (retry) original command, (skip) this step, (abort) the run")
	switch choice {
	case "retry", "r":
		return "retry"
	case "skip", "s":
		return "skip"
	default:
		return "abort"
	}
}

func errPrefix(s string) string {
	if len(s) > stuckPrefixLen {
		return s[:stuckPrefixLen]
	}
	return s
}

func tail(s string, n int) string {
	if len(s) > n {
		return s[len(s)-n:]
	}
	return s
}
