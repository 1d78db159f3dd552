package render

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/alnah/go-texrender/internal/process"
)

// waitDelay bounds how long Wait blocks on a killed child's output pipes.
const waitDelay = 2 * time.Second

// CommandRunner abstracts command execution to enable testing without real subprocesses.
type CommandRunner interface {
	Run(ctx context.Context, stdin []byte, name string, args ...string) (stdout string, stderr string, err error)
}

// ExecRunner implements CommandRunner using os/exec. The child runs in its own
// process group, and the whole group is killed when ctx is done so helper
// processes spawned by the renderer do not outlive the batch.
type ExecRunner struct{}

func (r *ExecRunner) Run(ctx context.Context, stdin []byte, name string, args ...string) (string, string, error) {
	cmd := exec.CommandContext(ctx, name, args...) // #nosec G204 -- command comes from trusted configuration
	process.SetProcessGroup(cmd)
	cmd.Cancel = func() error {
		process.KillProcessGroup(cmd.Process.Pid)
		return cmd.Process.Kill()
	}
	cmd.WaitDelay = waitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdin = bytes.NewReader(stdin)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return "", "", fmt.Errorf("starting command: %w", err)
	}
	err := cmd.Wait()
	return stdout.String(), stderr.String(), err
}

// ExecRenderer renders a batch by running one external process. The process
// receives the staging directory as its last argument and the JSON payload on
// stdin, and prints a JSON result array on stdout.
type ExecRenderer struct {
	Command []string
	Runner  CommandRunner
}

// NewExecRenderer creates an ExecRenderer with a real command runner.
func NewExecRenderer(command ...string) *ExecRenderer {
	return &ExecRenderer{Command: command, Runner: &ExecRunner{}}
}

// RenderBatch implements BatchRenderer.
func (r *ExecRenderer) RenderBatch(ctx context.Context, stageDir string, reqs []Request) ([]Result, error) {
	if len(r.Command) == 0 || r.Command[0] == "" {
		return nil, ErrNoCommand
	}

	payload, err := json.Marshal(newPayload(reqs))
	if err != nil {
		return nil, fmt.Errorf("encoding payload: %w", err)
	}

	args := append(append([]string{}, r.Command[1:]...), stageDir)
	stdout, stderr, err := r.Runner.Run(ctx, payload, r.Command[0], args...)
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", ErrTimeout, ctxErr)
		}
		return nil, ctxErr
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrRenderFailed, strings.TrimSpace(stderr), err)
	}

	return decodeResults(stdout)
}

// decodeResults parses the renderer's stdout. Anything other than a JSON
// array of results is malformed.
func decodeResults(stdout string) ([]Result, error) {
	data := strings.TrimSpace(stdout)
	if data == "" {
		return nil, fmt.Errorf("%w: empty output", ErrMalformedOutput)
	}
	var results []Result
	if err := json.Unmarshal([]byte(data), &results); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	return results, nil
}
