// Package executor invokes the external AI coding tool and captures its
// execution log for the result parser.
package executor

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/claudechain/claudechain/internal/domain"
	"github.com/claudechain/claudechain/internal/pipeline"
)

// ClaudeExecutor runs tasks through the claude CLI in non-interactive
// mode, streaming JSON output that doubles as the execution log.
type ClaudeExecutor struct {
	Binary string    // defaults to "claude"
	Log    io.Writer // optional live echo of executor output
}

var _ pipeline.TaskExecutor = (*ClaudeExecutor)(nil)

// Execute runs one task and returns the raw execution log. The log is
// returned even when the process exits non-zero so the parser can still
// extract an error message from it.
func (e *ClaudeExecutor) Execute(ctx context.Context, req pipeline.TaskRequest) ([]byte, error) {
	cmd := e.buildCommand(ctx, req)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	cmd.Stderr = e.Log

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %s: %w", e.binary(), err)
	}

	var buf bytes.Buffer
	scanner := bufio.NewScanner(stdout)
	// Stream-json lines can be long
	sbuf := make([]byte, 0, 64*1024)
	scanner.Buffer(sbuf, 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		buf.WriteString(line)
		buf.WriteByte('\n')
		if e.Log != nil {
			fmt.Fprintln(e.Log, line)
		}
	}

	waitErr := cmd.Wait()
	if scanErr := scanner.Err(); scanErr != nil && waitErr == nil {
		waitErr = scanErr
	}
	// A non-zero exit with a result record in the log is still parseable
	return buf.Bytes(), waitErr
}

func (e *ClaudeExecutor) binary() string {
	if e.Binary != "" {
		return e.Binary
	}
	return "claude"
}

func (e *ClaudeExecutor) buildCommand(ctx context.Context, req pipeline.TaskRequest) *exec.Cmd {
	args := []string{
		"--print",                        // Non-interactive mode
		"--verbose",                      // Required for stream-json output
		"--dangerously-skip-permissions", // Skip permission prompts
		"--output-format", "stream-json", // Stream output as JSON
	}
	if req.Model != "" {
		args = append(args, "--model", req.Model)
	}
	args = append(args, "-p", BuildPrompt(req))

	cmd := exec.CommandContext(ctx, e.binary(), args...)
	cmd.Dir = req.WorkingDir
	return cmd
}

// BuildPrompt assembles the task prompt, including the structured output
// contract the result parser expects.
func BuildPrompt(req pipeline.TaskRequest) string {
	var b strings.Builder

	switch req.Kind {
	case domain.TaskSummary:
		fmt.Fprintf(&b, "Generate a pull request summary for project %q.\n\n", req.Project)
		fmt.Fprintf(&b, "Task that was completed: %s\n\n", req.Task)
		b.WriteString("Review the current diff against the base branch and describe the changes.\n\n")
		b.WriteString("When finished, output a single JSON object with fields: ")
		b.WriteString(`"success" (boolean), "summary_content" (markdown string), and on failure "error_message" (string).`)
	default:
		fmt.Fprintf(&b, "You are working on project %q.\n\n", req.Project)
		fmt.Fprintf(&b, "Complete this task: %s\n\n", req.Task)
		b.WriteString("Make the necessary code changes in the current repository.\n\n")
		b.WriteString("When finished, output a single JSON object with fields: ")
		b.WriteString(`"success" (boolean), "summary" (string), and on failure "error_message" (string).`)
	}

	return b.String()
}
