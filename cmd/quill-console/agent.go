// ABOUTME: Agent subprocess transport speaking JSON lines over stdio
// ABOUTME: Submits prompts on stdin and pumps session updates from stdout

package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"

	"github.com/2389/quill-console/internal/config"
	"github.com/2389/quill-console/internal/protocol"
	"github.com/2389/quill-console/internal/session"
)

// maxUpdateSize bounds one update line; image payloads can get large.
const maxUpdateSize = 16 * 1024 * 1024

// agent owns the spawned agent process and its stdio pipes. It implements
// session.Submitter by writing one prompt JSON line per submission.
type agent struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	logger *slog.Logger

	mu    sync.Mutex
	stdin io.WriteCloser
}

// startAgent spawns the configured agent command with its stderr passed
// through. The process is bound to ctx and killed on cancellation.
func startAgent(ctx context.Context, cfg config.AgentConfig, logger *slog.Logger) (*agent, error) {
	cmd := exec.CommandContext(ctx, cfg.Command, cfg.Args...)
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("opening stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("opening stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %s: %w", cfg.Command, err)
	}

	logger = logger.With("component", "agent")
	logger.Info("agent started", "command", cfg.Command, "pid", cmd.Process.Pid)

	return &agent{
		cmd:    cmd,
		stdin:  stdin,
		stdout: stdout,
		logger: logger,
	}, nil
}

// Submit implements session.Submitter. A successful pipe write counts as an
// accepted submission; the agent reports progress through the update stream.
func (a *agent) Submit(_ context.Context, req *session.SubmitRequest) (*session.SubmitResult, error) {
	data, err := json.Marshal(protocol.Prompt{
		SessionID: req.SessionID,
		Content:   req.AgentContent,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding prompt: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if _, err := a.stdin.Write(append(data, '\n')); err != nil {
		return nil, fmt.Errorf("writing to agent: %w", err)
	}
	return &session.SubmitResult{Success: true}, nil
}

// pump reads update lines from the agent's stdout and folds them into the
// controller until the stream ends or ctx is cancelled. Unknown update kinds
// are logged and skipped so newer agents stay usable.
func (a *agent) pump(ctx context.Context, ctrl *session.Controller) {
	scanner := bufio.NewScanner(a.stdout)
	scanner.Buffer(make([]byte, 64*1024), maxUpdateSize)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		update, err := protocol.ParseUpdate(line)
		if err != nil {
			if errors.Is(err, protocol.ErrUnknownUpdate) {
				a.logger.Warn("skipping unknown update", "error", err)
			} else {
				a.logger.Warn("malformed update", "error", err)
			}
			continue
		}

		if err := ctrl.HandleUpdate(update); err != nil {
			a.logger.Warn("applying update", "kind", update.Kind, "error", err)
		}
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		a.logger.Error("agent stream failed", "error", err)
		return
	}
	a.logger.Info("agent stream closed")
}

// Close shuts the stdin pipe and waits for the process to exit.
func (a *agent) Close() error {
	a.mu.Lock()
	a.stdin.Close()
	a.mu.Unlock()

	if err := a.cmd.Wait(); err != nil {
		// Expected when the context kills the process on shutdown.
		a.logger.Debug("agent exited", "error", err)
	}
	return nil
}
