package agent

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// maxOutput bounds how much command output is kept for step messages.
const maxOutput = 512

// Executor runs one step script.
type Executor interface {
	Run(ctx context.Context, script string) (string, error)
}

// Shell runs scripts with "<shell> -c".
type Shell struct {
	Path    string
	Workdir string
}

// NewShell creates a shell executor.
func NewShell(path, workdir string) *Shell {
	if path == "" {
		path = "/bin/bash"
	}
	return &Shell{Path: path, Workdir: workdir}
}

// Run executes script and returns the tail of its combined output. A non-zero
// exit status is an error carrying that tail.
func (s *Shell) Run(ctx context.Context, script string) (string, error) {
	cmd := exec.CommandContext(ctx, s.Path, "-c", script)
	cmd.Dir = s.Workdir
	cmd.WaitDelay = 5 * time.Second

	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	err := cmd.Run()
	out := tail(buf.String(), maxOutput)
	if err != nil {
		if ctx.Err() != nil {
			return out, fmt.Errorf("command interrupted: %w", ctx.Err())
		}
		if out != "" {
			return out, fmt.Errorf("%w: %s", err, out)
		}
		return out, err
	}
	return out, nil
}

// tail returns the last n bytes of s, trimmed, starting at a line boundary
// when one is available.
func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	s = s[len(s)-n:]
	if i := strings.IndexByte(s, '\n'); i >= 0 && i < len(s)-1 {
		s = s[i+1:]
	}
	return s
}
