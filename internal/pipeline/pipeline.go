// Package pipeline orchestrates one run: resolve the trigger context,
// run the pre-action hook, execute the external task, parse its result,
// run the post-action hook, finalize the pull request, and notify.
// Stages run strictly in sequence; any gating failure stops everything
// downstream.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/claudechain/claudechain/internal/config"
	"github.com/claudechain/claudechain/internal/domain"
	"github.com/claudechain/claudechain/internal/execlog"
	"github.com/claudechain/claudechain/internal/hooks"
	"github.com/claudechain/claudechain/internal/notify"
	"github.com/claudechain/claudechain/internal/project"
)

// ErrRunFailed is returned when a run failed for any gating reason.
// The CLI maps it to a non-zero exit code, which is the hosting
// pipeline's signal to stop subsequent steps.
var ErrRunFailed = errors.New("run failed")

// TaskRequest describes one external task execution
type TaskRequest struct {
	Project    string
	Task       string
	WorkingDir string
	Model      string
	Kind       domain.TaskKind
}

// TaskExecutor runs the external AI coding task and returns its JSON
// execution log. The invocation itself is outside this package's scope.
type TaskExecutor interface {
	Execute(ctx context.Context, req TaskRequest) ([]byte, error)
}

// Finalizer turns a successful run into a pull request. PR creation
// mechanics live outside this package.
type Finalizer interface {
	CreatePR(ctx context.Context, run *domain.Run, outcome domain.ExecutionOutcome) (notify.PRInfo, error)
}

// RunStore is the subset of run persistence the pipeline needs
type RunStore interface {
	SaveRun(run *domain.Run) error
	RecordNotification(runID, kind string, delivered bool, errMsg string) error
}

// Pipeline wires the stages of one run together
type Pipeline struct {
	Config     *config.Config
	Hooks      *hooks.Runner
	Executor   TaskExecutor
	Finalizer  Finalizer
	Dispatcher *notify.Dispatcher
	Store      RunStore // optional
	RunURL     string   // link back to the hosting run, for error notifications
	Log        io.Writer
}

// Run executes the full pipeline for a resolved event context.
// The returned run always reflects the terminal state; err wraps
// ErrRunFailed when the hosting pipeline should treat the step as failed.
func (p *Pipeline) Run(ctx context.Context, evt *domain.EventContext) (*domain.Run, error) {
	run := &domain.Run{
		ID:          uuid.NewString(),
		ProjectName: evt.ProjectName,
		BaseBranch:  evt.ResolvedBaseBranch,
		TriggerRef:  evt.TriggerRef,
		EventName:   evt.EventName,
		Status:      domain.RunPending,
	}

	if evt.Skip {
		run.Status = domain.RunSkipped
		run.ErrorMessage = evt.SkipReason
		p.persist(run)
		p.logf("Skipping run: %s", evt.SkipReason)
		return run, nil
	}

	proj, err := project.Load(p.Config.General.ProjectPath, evt.ProjectName)
	if err != nil {
		return p.fail(run, fmt.Sprintf("loading project: %v", err))
	}

	// Project frontmatter may override the derived branch, but never an
	// explicit default_base_branch input.
	if p.Config.General.DefaultBaseBranch == "" && proj.Config.BaseBranch != "" {
		run.BaseBranch = proj.Config.BaseBranch
	}

	task := proj.NextTask(nil)
	if task == nil {
		run.Status = domain.RunSkipped
		run.ErrorMessage = "no available tasks in spec.md"
		p.persist(run)
		p.logf("Skipping run: no available tasks for %s", proj.Name)
		return run, nil
	}
	run.Task = task.Description
	run.TaskIndex = task.Index

	now := time.Now()
	run.StartedAt = &now
	run.Status = domain.RunRunning
	p.persist(run)

	p.logf("=== ClaudeChain run %s ===", run.ID)
	p.logf("Project: %s | Task %d: %s | Base branch: %s",
		run.ProjectName, run.TaskIndex, run.Task, run.BaseBranch)

	workDir := p.Config.General.WorkingDirectory

	// Pre-action gates the task execution
	pre, err := p.Hooks.RunStage(ctx, proj.Dir, workDir, domain.HookPreAction)
	if err != nil {
		return p.failAndNotify(run, fmt.Sprintf("pre-action: %v", err))
	}
	if !pre.Success {
		return p.failAndNotify(run, hookFailureMessage(domain.HookPreAction, pre))
	}

	logData, err := p.Executor.Execute(ctx, TaskRequest{
		Project:    run.ProjectName,
		Task:       run.Task,
		WorkingDir: workDir,
		Model:      p.Config.Executor.Model,
		Kind:       domain.TaskMain,
	})
	if err != nil {
		return p.failAndNotify(run, fmt.Sprintf("task execution: %v", err))
	}

	outcome := execlog.Parse(logData, domain.TaskMain)
	run.TokensInput = outcome.Cost.InputTokens
	run.TokensOutput = outcome.Cost.OutputTokens
	run.CostUSD = outcome.Cost.TotalCostUSD

	// A failed task skips post-action and PR creation entirely
	if !outcome.Success {
		return p.failAndNotify(run, outcome.ErrorMessage)
	}
	p.logf("Task succeeded: %s", outcome.Summary)

	post, err := p.Hooks.RunStage(ctx, proj.Dir, workDir, domain.HookPostAction)
	if err != nil {
		return p.failAndNotify(run, fmt.Sprintf("post-action: %v", err))
	}
	if !post.Success {
		return p.failAndNotify(run, hookFailureMessage(domain.HookPostAction, post))
	}

	var pr notify.PRInfo
	if p.Finalizer != nil {
		pr, err = p.Finalizer.CreatePR(ctx, run, outcome)
		if err != nil {
			return p.failAndNotify(run, fmt.Sprintf("creating PR: %v", err))
		}
		run.PRNumber = pr.Number
		run.PRURL = pr.URL
	}

	if err := proj.MarkComplete(run.Task); err != nil {
		p.logf("Warning: could not mark task complete: %v", err)
	}

	finished := time.Now()
	run.FinishedAt = &finished
	run.Status = domain.RunCompleted
	p.persist(run)

	if p.Dispatcher != nil && pr.URL != "" {
		err := p.Dispatcher.NotifySuccess(run, pr)
		p.recordNotification(run.ID, "success", err)
	}

	return run, nil
}

// fail marks the run failed and returns the gating error
func (p *Pipeline) fail(run *domain.Run, msg string) (*domain.Run, error) {
	finished := time.Now()
	run.FinishedAt = &finished
	run.Status = domain.RunFailed
	run.ErrorMessage = msg
	p.persist(run)
	p.logf("Run failed: %s", msg)
	return run, fmt.Errorf("%w: %s", ErrRunFailed, msg)
}

// failAndNotify is fail plus the operator-facing error notification
func (p *Pipeline) failAndNotify(run *domain.Run, msg string) (*domain.Run, error) {
	run, err := p.fail(run, msg)
	if p.Dispatcher != nil {
		nerr := p.Dispatcher.NotifyError(run, msg, p.RunURL)
		p.recordNotification(run.ID, "error", nerr)
	}
	return run, err
}

func hookFailureMessage(stage domain.HookStage, result domain.ActionResult) string {
	msg := fmt.Sprintf("%s script exited %d", stage, result.ExitCode)
	if result.Stderr != "" {
		msg += ": " + lastLine(result.Stderr)
	}
	return msg
}

func lastLine(s string) string {
	lines := []byte(s)
	end := len(lines)
	for end > 0 && lines[end-1] == '\n' {
		end--
	}
	start := end
	for start > 0 && lines[start-1] != '\n' {
		start--
	}
	return string(lines[start:end])
}

func (p *Pipeline) persist(run *domain.Run) {
	if p.Store == nil {
		return
	}
	if err := p.Store.SaveRun(run); err != nil {
		p.logf("Warning: failed to persist run %s: %v", run.ID, err)
	}
}

func (p *Pipeline) recordNotification(runID, kind string, sendErr error) {
	if p.Store == nil {
		return
	}
	msg := ""
	if sendErr != nil {
		msg = sendErr.Error()
		p.logf("Warning: %s notification failed: %v", kind, sendErr)
	}
	if err := p.Store.RecordNotification(runID, kind, sendErr == nil, msg); err != nil {
		p.logf("Warning: failed to record notification: %v", err)
	}
}

func (p *Pipeline) logf(format string, args ...interface{}) {
	if p.Log == nil {
		return
	}
	fmt.Fprintf(p.Log, format+"\n", args...)
}
