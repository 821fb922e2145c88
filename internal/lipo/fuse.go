package lipo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"go.uber.org/zap"
)

// DefaultTool is the fusion command looked up in PATH.
const DefaultTool = "lipo"

var ErrFusion = errors.New("lipo: fusion failed")

// Runner runs an external command.
type Runner interface {
	Run(ctx context.Context, argv []string) error
}

// ToolError is returned when the fusion command fails.
type ToolError struct {
	Argv   []string
	Output string
	Err    error
}

func (e *ToolError) Error() string {
	msg := fmt.Sprintf("%s: %v", strings.Join(e.Argv, " "), e.Err)
	if out := strings.TrimSpace(e.Output); out != "" {
		msg += ": " + out
	}
	return msg
}

func (e *ToolError) Unwrap() error { return e.Err }

func (e *ToolError) Is(target error) bool { return target == ErrFusion }

// ExecRunner runs commands with os/exec.
type ExecRunner struct {
	Log *zap.Logger
}

func (r *ExecRunner) Run(ctx context.Context, argv []string) error {
	if len(argv) == 0 {
		return errors.New("empty command")
	}

	log := r.Log
	if log == nil {
		log = zap.NewNop()
	}

	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdout = &out
	cmd.Stderr = &out

	log.Debug("run", zap.Strings("argv", argv))
	if err := cmd.Run(); err != nil {
		log.Error("command failed", zap.Strings("argv", argv), zap.Error(err))
		return &ToolError{Argv: argv, Output: out.String(), Err: err}
	}
	return nil
}

// Fuser combines single-architecture binaries into one fat binary.
type Fuser struct {
	Tool   string
	Runner Runner
}

// Fuse writes the fusion of srcs to dst.
func (f *Fuser) Fuse(ctx context.Context, dst string, srcs []string) error {
	tool := f.Tool
	if tool == "" {
		tool = DefaultTool
	}
	argv := append([]string{tool, "-create", "-output", dst}, srcs...)

	if err := f.Runner.Run(ctx, argv); err != nil {
		var toolErr *ToolError
		if errors.As(err, &toolErr) {
			return toolErr
		}
		return &ToolError{Argv: argv, Err: err}
	}
	return nil
}
