// Package youtube adapts the external tools and endpoints castchunk depends
// on: yt-dlp for search and downloads, whisper for transcription, and the
// public results page and channel feed as alternative search backends.
package youtube

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// CommandRunner executes an external program and returns its stdout.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct {
	Logger *slog.Logger
}

// stderrTail bounds how much stderr is kept in an error message.
const stderrTail = 2048

// Run executes name with args. On failure the error carries the tail of
// stderr, which is where yt-dlp and whisper report problems.
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	if r.Logger != nil {
		r.Logger.Debug("exec", slog.String("cmd", name), slog.String("args", strings.Join(args, " ")))
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if len(msg) > stderrTail {
			msg = msg[len(msg)-stderrTail:]
		}
		if msg != "" {
			return stdout.Bytes(), fmt.Errorf("%s: %w: %s", name, err, msg)
		}
		return stdout.Bytes(), fmt.Errorf("%s: %w", name, err)
	}
	return stdout.Bytes(), nil
}
