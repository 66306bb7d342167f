// Package tool runs external command-line programs (scanners, test runners,
// git) on behalf of analyzers.
package tool

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"slices"
	"strings"
)

// ErrNotInstalled is returned when the program is not on PATH.
var ErrNotInstalled = errors.New("tool not installed")

// stderrTail bounds how much stderr an ExitError carries.
const stderrTail = 2048

// Command describes one invocation.
type Command struct {
	Name string
	Args []string
	Dir  string
	// Env is appended to the inherited environment.
	Env []string
	// OKCodes lists exit codes treated as success besides 0. Scanners such
	// as npm audit exit 1 when they find something.
	OKCodes []int
}

func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Output is the captured result of a successful invocation.
type Output struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// ExitError reports a non-accepted exit code.
type ExitError struct {
	Command  string
	ExitCode int
	Stderr   string
}

func (e *ExitError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("%s exited with code %d", e.Command, e.ExitCode)
	}
	return fmt.Sprintf("%s exited with code %d: %s", e.Command, e.ExitCode, e.Stderr)
}

// Available reports whether name resolves on PATH.
func Available(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

// Run executes cmd and waits for it. The process is killed when ctx ends, in
// which case ctx.Err() is returned.
func Run(ctx context.Context, cmd Command) (*Output, error) {
	path, err := exec.LookPath(cmd.Name)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cmd.Name, ErrNotInstalled)
	}

	c := exec.CommandContext(ctx, path, cmd.Args...)
	c.Dir = cmd.Dir
	if len(cmd.Env) > 0 {
		c.Env = append(c.Environ(), cmd.Env...)
	}
	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	runErr := c.Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}

	out := &Output{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	if runErr == nil {
		return out, nil
	}

	var exitErr *exec.ExitError
	if !errors.As(runErr, &exitErr) {
		return nil, fmt.Errorf("run %s: %w", cmd.Name, runErr)
	}
	out.ExitCode = exitErr.ExitCode()
	if slices.Contains(cmd.OKCodes, out.ExitCode) {
		return out, nil
	}
	return out, &ExitError{
		Command:  cmd.String(),
		ExitCode: out.ExitCode,
		Stderr:   tail(stderr.String(), stderrTail),
	}
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
