// Package hooks runs the optional pre-action and post-action scripts a
// project may ship. Scripts are discovered by convention only; a missing
// script is success, a failing script gates the rest of the pipeline.
package hooks

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/claudechain/claudechain/internal/domain"
)

// Script names tried in order within the project directory. The .sh
// suffix matches what setup scaffolding generates; the bare name is
// accepted for hand-written hooks.
var scriptNames = map[domain.HookStage][]string{
	domain.HookPreAction:  {"pre-action.sh", "pre-action"},
	domain.HookPostAction: {"post-action.sh", "post-action"},
}

// Runner executes hook scripts as subprocesses
type Runner struct {
	// Stdout, when set, receives streamed script output in addition to
	// the captured result. The action log wants output live.
	Stdout io.Writer
}

// Find returns the path of the hook script for a stage, or "" if the
// project does not provide one.
func Find(projectDir string, stage domain.HookStage) string {
	for _, name := range scriptNames[stage] {
		p := filepath.Join(projectDir, name)
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p
		}
	}
	return ""
}

// Run executes the script at scriptPath with workingDir as its working
// directory, capturing both output streams in full. A nonexistent path
// is success with empty output. The subprocess blocks until exit;
// cancellation comes from ctx.
func (r *Runner) Run(ctx context.Context, scriptPath, workingDir string) (domain.ActionResult, error) {
	if scriptPath == "" {
		return domain.ActionResult{Success: true}, nil
	}

	info, err := os.Stat(scriptPath)
	if err != nil {
		if os.IsNotExist(err) {
			return domain.ActionResult{Success: true}, nil
		}
		return domain.ActionResult{}, fmt.Errorf("checking script %s: %w", scriptPath, err)
	}

	if info.Mode()&0111 == 0 {
		if err := os.Chmod(scriptPath, info.Mode()|0755); err != nil {
			return domain.ActionResult{}, fmt.Errorf("making %s executable: %w", scriptPath, err)
		}
	}

	abs, err := filepath.Abs(scriptPath)
	if err != nil {
		return domain.ActionResult{}, err
	}

	cmd := exec.CommandContext(ctx, abs)
	cmd.Dir = workingDir

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return domain.ActionResult{}, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return domain.ActionResult{}, err
	}

	if err := cmd.Start(); err != nil {
		return domain.ActionResult{}, fmt.Errorf("starting %s: %w", scriptPath, err)
	}

	var outBuf, errBuf strings.Builder
	var wg sync.WaitGroup
	wg.Add(2)
	go r.capture(stdout, &outBuf, &wg)
	go r.capture(stderr, &errBuf, &wg)
	wg.Wait()

	result := domain.ActionResult{
		Stdout: outBuf.String(),
		Stderr: errBuf.String(),
	}

	if err := cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		return result, fmt.Errorf("waiting for %s: %w", scriptPath, err)
	}

	result.Success = true
	return result, nil
}

// RunStage locates and runs the hook for a stage in one step
func (r *Runner) RunStage(ctx context.Context, projectDir, workingDir string, stage domain.HookStage) (domain.ActionResult, error) {
	return r.Run(ctx, Find(projectDir, stage), workingDir)
}

func (r *Runner) capture(src io.Reader, dst *strings.Builder, wg *sync.WaitGroup) {
	defer wg.Done()
	scanner := bufio.NewScanner(src)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		dst.WriteString(line)
		dst.WriteByte('\n')
		if r.Stdout != nil {
			fmt.Fprintln(r.Stdout, line)
		}
	}
}
