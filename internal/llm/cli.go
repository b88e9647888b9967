package llm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// DefaultCommand is the collaborator executable used when none is configured.
const DefaultCommand = "claude"

// CLI runs a local command per completion: the prompt goes to stdin and the
// completion is read from stdout.
type CLI struct {
	command string
	args    []string
}

// NewCLI creates a subprocess completer. An empty command means DefaultCommand
// with --print; a non-empty model adds --model.
func NewCLI(command string, args []string, model string) *CLI {
	if command == "" {
		command = DefaultCommand
		if len(args) == 0 {
			args = []string{"--print"}
		}
	}
	args = append([]string(nil), args...)
	if model != "" {
		args = append(args, "--model", model)
	}
	return &CLI{command: command, args: args}
}

// Complete runs the command under ctx. The process is killed when ctx ends;
// a deadline expiry is reported as ErrTimeout.
func (c *CLI) Complete(ctx context.Context, prompt string) (string, error) {
	cmd := exec.CommandContext(ctx, c.command, c.args...)
	cmd.Stdin = strings.NewReader(prompt)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	// Children of a killed process may keep the pipes open.
	cmd.WaitDelay = time.Second

	err := cmd.Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return "", ErrTimeout
		}
		return "", ctxErr
	}
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		slog.Debug("completion command failed", "command", c.command, "error", err, "stderr", msg)
		if msg != "" {
			return "", fmt.Errorf("%s: %w: %s", c.command, err, msg)
		}
		return "", fmt.Errorf("%s: %w", c.command, err)
	}

	out := strings.TrimSpace(stdout.String())
	if out == "" {
		return "", ErrEmpty
	}
	return out, nil
}

// Ping checks that the command can be found.
func (c *CLI) Ping(context.Context) error {
	if _, err := exec.LookPath(c.command); err != nil {
		return fmt.Errorf("completion command: %w", err)
	}
	return nil
}
