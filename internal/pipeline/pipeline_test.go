package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/claudechain/claudechain/internal/config"
	"github.com/claudechain/claudechain/internal/domain"
	"github.com/claudechain/claudechain/internal/hooks"
	"github.com/claudechain/claudechain/internal/notify"
)

const successLog = `[{"type": "result",
	"structured_output": {"success": true, "summary": "done"},
	"total_cost_usd": 0.1,
	"usage": {"input_tokens": 100, "output_tokens": 50}}]`

const failureLog = `[{"type": "result",
	"structured_output": {"success": false, "error_message": "could not complete task"}}]`

type fakeExecutor struct {
	log      string
	err      error
	executed bool
}

func (f *fakeExecutor) Execute(ctx context.Context, req TaskRequest) ([]byte, error) {
	f.executed = true
	if f.err != nil {
		return nil, f.err
	}
	return []byte(f.log), nil
}

type fakeFinalizer struct {
	created bool
	pr      notify.PRInfo
}

func (f *fakeFinalizer) CreatePR(ctx context.Context, run *domain.Run, outcome domain.ExecutionOutcome) (notify.PRInfo, error) {
	f.created = true
	return f.pr, nil
}

type recordingNotifier struct {
	sent []notify.Notification
}

func (r *recordingNotifier) Send(n notify.Notification) error {
	r.sent = append(r.sent, n)
	return nil
}

// testProject creates a project dir with a spec.md and optional hooks
func testProject(t *testing.T, preScript, postScript string) *config.Config {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, "my-project")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}

	spec := "- [x] Bootstrap\n- [ ] Refactor auth\n- [ ] Add tests\n"
	if err := os.WriteFile(filepath.Join(dir, "spec.md"), []byte(spec), 0644); err != nil {
		t.Fatal(err)
	}
	if preScript != "" {
		if err := os.WriteFile(filepath.Join(dir, "pre-action.sh"), []byte("#!/bin/sh\n"+preScript), 0755); err != nil {
			t.Fatal(err)
		}
	}
	if postScript != "" {
		if err := os.WriteFile(filepath.Join(dir, "post-action.sh"), []byte("#!/bin/sh\n"+postScript), 0755); err != nil {
			t.Fatal(err)
		}
	}

	cfg := config.Default()
	cfg.General.ProjectPath = root
	cfg.General.WorkingDirectory = t.TempDir()
	return cfg
}

func testEvent() *domain.EventContext {
	return &domain.EventContext{
		EventName:          "push",
		ProjectName:        "my-project",
		TriggerRef:         "main",
		ResolvedBaseBranch: "main",
	}
}

func TestRun_Success(t *testing.T) {
	cfg := testProject(t, "echo pre ok\n", "echo post ok\n")
	exec := &fakeExecutor{log: successLog}
	fin := &fakeFinalizer{pr: notify.PRInfo{Number: 7, URL: "https://github.com/o/r/pull/7"}}
	rec := &recordingNotifier{}

	p := &Pipeline{
		Config:     cfg,
		Hooks:      &hooks.Runner{},
		Executor:   exec,
		Finalizer:  fin,
		Dispatcher: notify.NewDispatcher(rec),
	}

	run, err := p.Run(context.Background(), testEvent())
	if err != nil {
		t.Fatal(err)
	}

	if run.Status != domain.RunCompleted {
		t.Errorf("Status = %q, want completed", run.Status)
	}
	if run.Task != "Refactor auth" {
		t.Errorf("Task = %q, want Refactor auth (first unchecked)", run.Task)
	}
	if !fin.created {
		t.Error("PR should be created on success")
	}
	if run.PRNumber != 7 {
		t.Errorf("PRNumber = %d, want 7", run.PRNumber)
	}
	if run.CostUSD != 0.1 || run.TokensInput != 100 {
		t.Errorf("usage = $%v in=%d, want 0.1/100", run.CostUSD, run.TokensInput)
	}
	if len(rec.sent) != 1 || rec.sent[0].Type != notify.NotifySuccess {
		t.Errorf("notifications = %+v, want one success", rec.sent)
	}

	// Task checked off in spec.md
	data, _ := os.ReadFile(filepath.Join(cfg.General.ProjectPath, "my-project", "spec.md"))
	if !strings.Contains(string(data), "- [x] Refactor auth") {
		t.Errorf("task not checked off:\n%s", data)
	}
}

func TestRun_PreActionFailureGatesEverything(t *testing.T) {
	cfg := testProject(t, "echo bad env >&2\nexit 1\n", "echo post\n")
	exec := &fakeExecutor{log: successLog}
	fin := &fakeFinalizer{}
	rec := &recordingNotifier{}

	p := &Pipeline{
		Config:     cfg,
		Hooks:      &hooks.Runner{},
		Executor:   exec,
		Finalizer:  fin,
		Dispatcher: notify.NewDispatcher(rec),
	}

	run, err := p.Run(context.Background(), testEvent())
	if !errors.Is(err, ErrRunFailed) {
		t.Fatalf("err = %v, want ErrRunFailed", err)
	}

	if exec.executed {
		t.Error("external task must not run after pre-action failure")
	}
	if fin.created {
		t.Error("no PR after pre-action failure")
	}
	if run.Status != domain.RunFailed {
		t.Errorf("Status = %q, want failed", run.Status)
	}
	if !strings.Contains(run.ErrorMessage, "pre-action script exited 1") {
		t.Errorf("ErrorMessage = %q", run.ErrorMessage)
	}
	if len(rec.sent) != 1 || rec.sent[0].Type != notify.NotifyError {
		t.Errorf("notifications = %+v, want one error", rec.sent)
	}
}

func TestRun_TaskFailureSkipsPostAndPR(t *testing.T) {
	postMarker := filepath.Join(t.TempDir(), "post-ran")
	cfg := testProject(t, "", "touch "+postMarker+"\n")
	exec := &fakeExecutor{log: failureLog}
	fin := &fakeFinalizer{}
	rec := &recordingNotifier{}

	p := &Pipeline{
		Config:     cfg,
		Hooks:      &hooks.Runner{},
		Executor:   exec,
		Finalizer:  fin,
		Dispatcher: notify.NewDispatcher(rec),
		RunURL:     "https://github.com/o/r/actions/runs/9",
	}

	run, err := p.Run(context.Background(), testEvent())
	if !errors.Is(err, ErrRunFailed) {
		t.Fatalf("err = %v, want ErrRunFailed", err)
	}

	if _, statErr := os.Stat(postMarker); statErr == nil {
		t.Error("post-action must not run after task failure")
	}
	if fin.created {
		t.Error("no PR after task failure")
	}
	if run.ErrorMessage != "could not complete task" {
		t.Errorf("ErrorMessage = %q", run.ErrorMessage)
	}
	if len(rec.sent) != 1 {
		t.Fatalf("notifications = %d, want 1", len(rec.sent))
	}
	if !strings.Contains(rec.sent[0].Message, "view logs") {
		t.Errorf("error notification should carry the run link: %q", rec.sent[0].Message)
	}
}

func TestRun_MalformedLogIsFailure(t *testing.T) {
	cfg := testProject(t, "", "")
	exec := &fakeExecutor{log: "total garbage"}
	fin := &fakeFinalizer{}

	p := &Pipeline{Config: cfg, Hooks: &hooks.Runner{}, Executor: exec, Finalizer: fin}

	run, err := p.Run(context.Background(), testEvent())
	if !errors.Is(err, ErrRunFailed) {
		t.Fatalf("err = %v, want ErrRunFailed", err)
	}
	if run.ErrorMessage == "" {
		t.Error("malformed log should yield a non-empty error message")
	}
	if fin.created {
		t.Error("no PR for malformed log")
	}
}

func TestRun_PostActionFailure(t *testing.T) {
	cfg := testProject(t, "", "exit 2\n")
	exec := &fakeExecutor{log: successLog}
	fin := &fakeFinalizer{}

	p := &Pipeline{Config: cfg, Hooks: &hooks.Runner{}, Executor: exec, Finalizer: fin}

	run, err := p.Run(context.Background(), testEvent())
	if !errors.Is(err, ErrRunFailed) {
		t.Fatalf("err = %v, want ErrRunFailed", err)
	}
	if fin.created {
		t.Error("no PR after post-action failure")
	}
	if !strings.Contains(run.ErrorMessage, "post-action script exited 2") {
		t.Errorf("ErrorMessage = %q", run.ErrorMessage)
	}
}

func TestRun_SkippedEvent(t *testing.T) {
	cfg := testProject(t, "", "")
	exec := &fakeExecutor{log: successLog}

	p := &Pipeline{Config: cfg, Hooks: &hooks.Runner{}, Executor: exec}

	evt := testEvent()
	evt.Skip = true
	evt.SkipReason = "PR was closed but not merged"

	run, err := p.Run(context.Background(), evt)
	if err != nil {
		t.Fatalf("skip is not a failure: %v", err)
	}
	if run.Status != domain.RunSkipped {
		t.Errorf("Status = %q, want skipped", run.Status)
	}
	if exec.executed {
		t.Error("task must not run for a skipped event")
	}
}

func TestRun_NoAvailableTasks(t *testing.T) {
	cfg := testProject(t, "", "")
	specPath := filepath.Join(cfg.General.ProjectPath, "my-project", "spec.md")
	if err := os.WriteFile(specPath, []byte("- [x] Done already\n"), 0644); err != nil {
		t.Fatal(err)
	}

	exec := &fakeExecutor{log: successLog}
	p := &Pipeline{Config: cfg, Hooks: &hooks.Runner{}, Executor: exec}

	run, err := p.Run(context.Background(), testEvent())
	if err != nil {
		t.Fatalf("empty backlog is not a failure: %v", err)
	}
	if run.Status != domain.RunSkipped {
		t.Errorf("Status = %q, want skipped", run.Status)
	}
	if exec.executed {
		t.Error("task must not run when nothing is pending")
	}
}

func TestRun_FrontmatterBranchOverride(t *testing.T) {
	cfg := testProject(t, "", "")
	specPath := filepath.Join(cfg.General.ProjectPath, "my-project", "spec.md")
	spec := "---\nbase_branch: develop\n---\n- [ ] Task one\n"
	if err := os.WriteFile(specPath, []byte(spec), 0644); err != nil {
		t.Fatal(err)
	}

	p := &Pipeline{Config: cfg, Hooks: &hooks.Runner{}, Executor: &fakeExecutor{log: successLog}}

	run, err := p.Run(context.Background(), testEvent())
	if err != nil {
		t.Fatal(err)
	}
	if run.BaseBranch != "develop" {
		t.Errorf("BaseBranch = %q, want develop (frontmatter override)", run.BaseBranch)
	}

	// Explicit input wins over frontmatter
	if err := os.WriteFile(specPath, []byte(spec), 0644); err != nil {
		t.Fatal(err)
	}
	cfg.General.DefaultBaseBranch = "release"
	run2, err := p.Run(context.Background(), testEvent())
	if err != nil {
		t.Fatal(err)
	}
	if run2.BaseBranch != "main" {
		// Resolved branch comes from the event context; frontmatter must
		// not touch it when an explicit default exists
		t.Errorf("BaseBranch = %q, want main (event-resolved, no override)", run2.BaseBranch)
	}
}

func TestRun_ExecutorError(t *testing.T) {
	cfg := testProject(t, "", "")
	exec := &fakeExecutor{err: errors.New("claude not found in PATH")}

	p := &Pipeline{Config: cfg, Hooks: &hooks.Runner{}, Executor: exec}

	run, err := p.Run(context.Background(), testEvent())
	if !errors.Is(err, ErrRunFailed) {
		t.Fatalf("err = %v, want ErrRunFailed", err)
	}
	if !strings.Contains(run.ErrorMessage, "claude not found") {
		t.Errorf("ErrorMessage = %q", run.ErrorMessage)
	}
}
