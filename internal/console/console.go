// Copyright (c) 2025 Gryffin Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

// Package console handles every blocking "ask the user" point in the
// engine. Input follows the "choice, extra instructions" convention: text
// after the first comma is treated as free-form guidance for the engine.
package console

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	bannerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212")).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true)

	warnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

// InteractionLogger records user decision points. The session package
// provides the implementation backed by gryffin_conversation.log.
type InteractionLogger interface {
	LogInteraction(context, choice, instructions string)
}

// Console prompts the user and parses responses
type Console struct {
	in     *bufio.Reader
	out    io.Writer
	logger InteractionLogger
}

// New creates a console reading stdin and writing stdout
func New() *Console {
	return &Console{
		in:  bufio.NewReader(os.Stdin),
		out: os.Stdout,
	}
}

// NewWithStreams creates a console over explicit streams, used by tests
// to script user decisions.
func NewWithStreams(in io.Reader, out io.Writer) *Console {
	return &Console{
		in:  bufio.NewReader(in),
		out: out,
	}
}

// AttachLogger wires an interaction logger; every Ask is recorded through it
func (c *Console) AttachLogger(logger InteractionLogger) {
	c.logger = logger
}

// Ask presents a prompt and returns the lowered choice plus any additional
// instructions the user appended after a comma. context describes the
// decision point for the interaction log.
func (c *Console) Ask(context, prompt string) (string, string) {
	fmt.Fprintf(c.out, "\n%s\n", prompt)
	fmt.Fprint(c.out, "\n> ")

	line, err := c.in.ReadString('\n')
	if err != nil && line == "" {
		// Closed stdin counts as an abort at every gate.
		return "", ""
	}
	line = strings.TrimSpace(line)

	choice := line
	instructions := ""
	if idx := strings.Index(line, ","); idx >= 0 {
		choice = strings.TrimSpace(line[:idx])
		instructions = strings.TrimSpace(line[idx+1:])
	}
	choice = strings.ToLower(choice)

	if c.logger != nil && context != "" {
		c.logger.LogInteraction(context, choice, instructions)
	}
	return choice, instructions
}

// Confirm asks a yes/no question and reports whether the user accepted.
// The second return value carries any additional instructions.
func (c *Console) Confirm(context, prompt string) (bool, string) {
	choice, instructions := c.Ask(context, prompt)
	return choice == "y" || choice == "yes", instructions
}

// ReadLine reads one raw line of input, trimmed but otherwise verbatim.
// ok is false once input is exhausted.
func (c *Console) ReadLine(question string) (string, bool) {
	fmt.Fprint(c.out, question)
	line, err := c.in.ReadString('\n')
	if err != nil && line == "" {
		return "", false
	}
	return strings.TrimSpace(line), true
}

// Banner prints a prominent section header
func (c *Console) Banner(title string) {
	fmt.Fprintf(c.out, "\n%s\n", bannerStyle.Render(title))
}

// Printf writes one newline-terminated progress line
func (c *Console) Printf(format string, args ...any) {
	fmt.Fprintln(c.out, fmt.Sprintf(format, args...))
}

// Successf writes a success line
func (c *Console) Successf(format string, args ...any) {
	fmt.Fprintln(c.out, okStyle.Render("✓ "+fmt.Sprintf(format, args...)))
}

// Warnf writes a warning line
func (c *Console) Warnf(format string, args ...any) {
	fmt.Fprintln(c.out, warnStyle.Render("⚠ "+fmt.Sprintf(format, args...)))
}

// Failf writes a failure line
func (c *Console) Failf(format string, args ...any) {
	fmt.Fprintln(c.out, failStyle.Render("✗ "+fmt.Sprintf(format, args...)))
}
