package health

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"
)

// maxOutput bounds the command output kept in a result message
const maxOutput = 100

// ExecChecker runs a local command, typically an out-of-band management
// tool such as ipmitool. Exit code 0 is success.
type ExecChecker struct {
	// Command is the command to execute (e.g., ["ipmitool", "-I", "lanplus", ...])
	Command []string

	// Timeout is the command execution timeout (default: 10 seconds)
	Timeout time.Duration

	// Env is appended to the inherited environment, e.g. IPMI_PASSWORD so
	// that secrets stay out of the process arguments
	Env []string
}

// NewExecChecker creates a new exec checker
func NewExecChecker(command []string) *ExecChecker {
	return &ExecChecker{
		Command: command,
		Timeout: 10 * time.Second,
	}
}

// Check runs the command
func (e *ExecChecker) Check(ctx context.Context) Result {
	start := time.Now()

	if len(e.Command) == 0 {
		return failed(start, "no command specified")
	}

	execCtx, cancel := context.WithTimeout(ctx, e.Timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, e.Command[0], e.Command[1:]...)
	if len(e.Env) > 0 {
		cmd.Env = append(os.Environ(), e.Env...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	// Only the tool name goes into the message
	message := fmt.Sprintf("command %s", e.Command[0])
	if err := cmd.Run(); err != nil {
		message = fmt.Sprintf("%s: %v", message, err)
		if stderr.Len() > 0 {
			message = fmt.Sprintf("%s: %s", message, truncate(stderr.String()))
		}
		return failed(start, message)
	}

	if stdout.Len() > 0 {
		message = fmt.Sprintf("%s: %s", message, truncate(stdout.String()))
	}
	return succeeded(start, message)
}

// Type returns the probe type
func (e *ExecChecker) Type() CheckType {
	return CheckTypeExec
}

// WithTimeout sets the execution timeout
func (e *ExecChecker) WithTimeout(timeout time.Duration) *ExecChecker {
	e.Timeout = timeout
	return e
}

// WithEnv adds KEY=value entries to the command environment
func (e *ExecChecker) WithEnv(env ...string) *ExecChecker {
	e.Env = append(e.Env, env...)
	return e
}

func truncate(s string) string {
	s = string(bytes.TrimSpace([]byte(s)))
	if len(s) > maxOutput {
		return s[:maxOutput] + "..."
	}
	return s
}
