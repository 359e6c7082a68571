package judge

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/okral/overseer/internal/config"
)

// CLIJudge spawns an external CLI model process (claude, gemini, etc.)
// and passes the prompt as the final argument.
type CLIJudge struct {
	tier    string
	cfg     config.Judge
	timeout time.Duration
}

// NewCLIJudge creates a judge that spawns CLI processes.
func NewCLIJudge(tier string, cfg config.Judge, timeout time.Duration) *CLIJudge {
	return &CLIJudge{tier: tier, cfg: cfg, timeout: timeout}
}

func (j *CLIJudge) Tier() string { return j.tier }

// Evaluate spawns the CLI with the prompt appended as the last argument
// and captures stdout. The context deadline bounds the whole call; a
// timeout is reported as an error so the caller's fallback kicks in.
func (j *CLIJudge) Evaluate(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()

	args := make([]string, len(j.cfg.Args))
	copy(args, j.cfg.Args)
	args = append(args, req.Prompt)

	timeout := j.timeout
	if req.TimeoutSec > 0 {
		timeout = time.Duration(req.TimeoutSec) * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, j.cfg.Cmd, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	duration := time.Since(start).Seconds()

	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("judge %s timed out after %ds", j.tier, int(timeout.Seconds()))
		}
		stderrStr := strings.TrimSpace(stderr.String())
		if stderrStr != "" {
			return nil, fmt.Errorf("judge %s failed: %s", j.tier, stderrStr)
		}
		return nil, fmt.Errorf("judge %s failed: %w", j.tier, err)
	}

	return &Response{Output: stdout.String(), Duration: duration}, nil
}

// CLIAvailable checks if the CLI command exists in PATH.
func CLIAvailable(cmd string) bool {
	_, err := exec.LookPath(cmd)
	return err == nil
}
