// Package run abstracts external tool execution. Every invocation of
// nginx, systemctl, mysql, and the user-management binaries goes through
// a Runner so adapters can be tested without touching the host, and so no
// call site ever builds a shell string.
package run

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Runner executes external tools with argument lists.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (string, error)
	// RunInput feeds stdin to the tool. Used for chpasswd so passwords
	// never appear in argv or the process table.
	RunInput(ctx context.Context, stdin string, name string, args ...string) (string, error)
}

// ToolError reports a nonzero exit or failed start of an external tool.
// Stderr is kept for the audit log; it is never shown verbatim to an
// unauthenticated caller.
type ToolError struct {
	Tool   string
	Args   []string
	Stderr string
	Err    error
}

func (e *ToolError) Error() string {
	msg := fmt.Sprintf("%s failed: %v", e.Tool, e.Err)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

func (e *ToolError) Unwrap() error { return e.Err }

// AsToolError unwraps err into a *ToolError if one is present.
func AsToolError(err error) (*ToolError, bool) {
	var te *ToolError
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}

// ExecRunner runs tools via os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	return execute(ctx, "", name, args...)
}

func (ExecRunner) RunInput(ctx context.Context, stdin string, name string, args ...string) (string, error) {
	return execute(ctx, stdin, name, args...)
}

func execute(ctx context.Context, stdin, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return stdout.String(), &ToolError{
			Tool:   name,
			Args:   args,
			Stderr: stderr.String(),
			Err:    err,
		}
	}
	return stdout.String(), nil
}
