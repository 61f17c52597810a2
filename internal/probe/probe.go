// Copyright (c) 2025 Gryffin Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

// Package probe smoke-tests long-running processes: start a dev server,
// decide within a deadline whether it is healthy, and always terminate
// it before returning. The probe never leaks a running process,
// whatever the outcome.
package probe

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"syscall"
	"time"
)

// Verdict classifies the probed process.
type Verdict int

const (
	// Healthy means the process either exited cleanly or was still
	// running at the deadline (a server still listening is working).
	Healthy Verdict = iota
	// Crashed means the process exited non-zero before the deadline.
	Crashed
	// CompileError means output matched a compile-failure fingerprint.
	CompileError
)

func (v Verdict) String() string {
	switch v {
	case Healthy:
		return "healthy"
	case Crashed:
		return "crashed"
	case CompileError:
		return "compile error"
	default:
		return "unknown"
	}
}

// Result is the outcome of one probe.
type Result struct {
	Verdict Verdict
	Output  string
	Reason  string
}

// Ok reports whether the probed process is considered healthy.
func (r Result) Ok() bool {
	return r.Verdict == Healthy
}

// Prober starts a process and decides within a deadline whether it is
// healthy. Implementations guarantee the process is terminated before
// Probe returns.
type Prober interface {
	Probe(ctx context.Context, command, dir string) Result
}

const (
	blockingDeadline  = 8 * time.Second
	streamingDeadline = 20 * time.Second
	livenessPoll      = 500 * time.Millisecond
	killGracePeriod   = 3 * time.Second
)

// compileFingerprints mark frontend build failures that are detectable
// within the first seconds of output, letting the streaming probe exit
// early instead of waiting out the full deadline.
var compileFingerprints = []string{
	"module not found",
	"can't resolve",
	"cannot resolve",
	"error in",
	"failed to compile",
	"syntaxerror",
}

// process wraps a started command so both probe variants share one
// lifecycle: a single Wait consumer and a terminate that escalates
// from SIGTERM to SIGKILL on the whole process group.
type process struct {
	cmd    *exec.Cmd
	waitCh chan error
}

func start(cmd *exec.Cmd) (*process, error) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	p := &process{cmd: cmd, waitCh: make(chan error, 1)}
	go func() { p.waitCh <- cmd.Wait() }()
	return p, nil
}

// exited reports completion without blocking. The wait error is pushed
// back so later callers still observe it.
func (p *process) exited() (bool, error) {
	select {
	case err := <-p.waitCh:
		p.waitCh <- err
		return true, err
	default:
		return false, nil
	}
}

// terminate sends SIGTERM to the process group, waits out the grace
// period, then SIGKILLs. Safe to call after the process has exited.
func (p *process) terminate() {
	if done, _ := p.exited(); done {
		return
	}
	pgid := -p.cmd.Process.Pid
	syscall.Kill(pgid, syscall.SIGTERM)
	select {
	case err := <-p.waitCh:
		p.waitCh <- err
	case <-time.After(killGracePeriod):
		syscall.Kill(pgid, syscall.SIGKILL)
		err := <-p.waitCh
		p.waitCh <- err
	}
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

// Blocking is the probe variant for backend and API servers: poll
// liveness on a short interval up to the deadline.
type Blocking struct {
	deadline time.Duration
	poll     time.Duration
}

// NewBlocking returns the blocking probe with its fixed deadlines.
func NewBlocking() *Blocking {
	return &Blocking{deadline: blockingDeadline, poll: livenessPoll}
}

// Probe starts command in dir and watches it for the deadline.
func (b *Blocking) Probe(ctx context.Context, command, dir string) Result {
	cmd := exec.Command("sh", "-c", command)
	cmd.Dir = dir
	var out strings.Builder
	cmd.Stdout = &out
	cmd.Stderr = &out

	p, err := start(cmd)
	if err != nil {
		return Result{Verdict: Crashed, Reason: fmt.Sprintf("failed to start: %v", err)}
	}
	defer p.terminate()

	deadline := time.After(b.deadline)
	ticker := time.NewTicker(b.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return Result{Verdict: Healthy, Output: out.String(), Reason: "probe cancelled"}
		case <-deadline:
			// Still running at the deadline: a live server is a
			// working server.
			return Result{Verdict: Healthy, Output: out.String(), Reason: "alive at deadline"}
		case <-ticker.C:
			done, waitErr := p.exited()
			if !done {
				continue
			}
			if code := exitCode(waitErr); code != 0 {
				return Result{
					Verdict: Crashed,
					Output:  out.String(),
					Reason:  fmt.Sprintf("exited with code %d", code),
				}
			}
			return Result{Verdict: Healthy, Output: out.String(), Reason: "exited cleanly"}
		}
	}
}

// Streaming is the probe variant for frontend dev servers: collect
// stdout and stderr lines as they arrive and fail fast on compile
// error fingerprints.
type Streaming struct {
	deadline time.Duration
}

// NewStreaming returns the streaming probe with its fixed deadline.
func NewStreaming() *Streaming {
	return &Streaming{deadline: streamingDeadline}
}

// Probe starts command in dir and scans its output until the deadline.
func (s *Streaming) Probe(ctx context.Context, command, dir string) Result {
	cmd := exec.Command("sh", "-c", command)
	cmd.Dir = dir

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Result{Verdict: Crashed, Reason: fmt.Sprintf("failed to pipe stdout: %v", err)}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return Result{Verdict: Crashed, Reason: fmt.Sprintf("failed to pipe stderr: %v", err)}
	}

	p, err := start(cmd)
	if err != nil {
		return Result{Verdict: Crashed, Reason: fmt.Sprintf("failed to start: %v", err)}
	}
	defer p.terminate()

	lines := make(chan string, 64)
	stop := make(chan struct{})
	defer close(stop)
	go scanLines(stdout, lines, stop)
	go scanLines(stderr, lines, stop)

	var collected []string
	deadline := time.After(s.deadline)
	ticker := time.NewTicker(livenessPoll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return Result{
				Verdict: Healthy,
				Output:  strings.Join(collected, "\n"),
				Reason:  "probe cancelled",
			}
		case line := <-lines:
			collected = append(collected, line)
			if fp := matchFingerprint(line); fp != "" {
				return Result{
					Verdict: CompileError,
					Output:  strings.Join(collected, "\n"),
					Reason:  fmt.Sprintf("output matched %q", fp),
				}
			}
		case <-ticker.C:
			// Fast path for immediate crashes so a dead server does
			// not consume the whole deadline.
			done, waitErr := p.exited()
			if !done {
				continue
			}
			if code := exitCode(waitErr); code != 0 {
				if fp := drain(lines, &collected); fp != "" {
					return Result{
						Verdict: CompileError,
						Output:  strings.Join(collected, "\n"),
						Reason:  fmt.Sprintf("output matched %q", fp),
					}
				}
				return Result{
					Verdict: Crashed,
					Output:  strings.Join(collected, "\n"),
					Reason:  fmt.Sprintf("exited with code %d", code),
				}
			}
		case <-deadline:
			output := strings.Join(collected, "\n")
			if compiledWithErrors(output) {
				return Result{Verdict: CompileError, Output: output, Reason: "compiled with errors"}
			}
			if done, waitErr := p.exited(); done {
				if code := exitCode(waitErr); code != 0 {
					return Result{
						Verdict: Crashed,
						Output:  output,
						Reason:  fmt.Sprintf("exited with code %d", code),
					}
				}
			}
			slog.Debug("streaming probe healthy", "lines", len(collected))
			return Result{Verdict: Healthy, Output: output, Reason: "no compile errors before deadline"}
		}
	}
}

func scanLines(r io.Reader, out chan<- string, stop <-chan struct{}) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 512*1024)
	for scanner.Scan() {
		select {
		case out <- scanner.Text():
		case <-stop:
			return
		}
	}
}

// drain empties any lines still buffered in the channel and reports
// the first fingerprint found among them.
func drain(lines <-chan string, collected *[]string) string {
	match := ""
	for {
		select {
		case line := <-lines:
			*collected = append(*collected, line)
			if match == "" {
				match = matchFingerprint(line)
			}
		default:
			return match
		}
	}
}

func matchFingerprint(line string) string {
	lower := strings.ToLower(line)
	for _, fp := range compileFingerprints {
		if strings.Contains(lower, fp) {
			return fp
		}
	}
	return ""
}

// compiledWithErrors catches webpack-style summaries that report
// failure without tripping a line fingerprint.
func compiledWithErrors(output string) bool {
	lower := strings.ToLower(output)
	return strings.Contains(lower, "compiled with") && strings.Contains(lower, "error")
}
