package project

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleSpec = `---
base_branch: develop
pr_label: claudechain
---
# My Project

## Tasks

- [x] Set up the repository
- [ ] Refactor the auth module
- [ ] Add integration tests

Some trailing prose.
`

func writeProject(t *testing.T, spec string) (string, string) {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, "my-project")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, SpecFileName), []byte(spec), 0644); err != nil {
		t.Fatal(err)
	}
	return root, dir
}

func TestLoad(t *testing.T) {
	root, _ := writeProject(t, sampleSpec)

	p, err := Load(root, "my-project")
	if err != nil {
		t.Fatal(err)
	}

	if p.Config.BaseBranch != "develop" {
		t.Errorf("BaseBranch = %q, want develop", p.Config.BaseBranch)
	}
	if p.Config.PRLabel != "claudechain" {
		t.Errorf("PRLabel = %q, want claudechain", p.Config.PRLabel)
	}
	if len(p.Tasks) != 3 {
		t.Fatalf("task count = %d, want 3", len(p.Tasks))
	}
	if !p.Tasks[0].Done {
		t.Error("first task should be done")
	}
	if p.Tasks[1].Description != "Refactor the auth module" {
		t.Errorf("second task = %q", p.Tasks[1].Description)
	}
	if p.Tasks[1].Index != 2 {
		t.Errorf("second task index = %d, want 2", p.Tasks[1].Index)
	}
}

func TestLoad_NoFrontmatter(t *testing.T) {
	root, _ := writeProject(t, "- [ ] Only task\n")

	p, err := Load(root, "my-project")
	if err != nil {
		t.Fatal(err)
	}
	if p.Config.BaseBranch != "" {
		t.Errorf("BaseBranch = %q, want empty", p.Config.BaseBranch)
	}
	if len(p.Tasks) != 1 {
		t.Errorf("task count = %d, want 1", len(p.Tasks))
	}
}

func TestLoad_MissingSpec(t *testing.T) {
	if _, err := Load(t.TempDir(), "nope"); err == nil {
		t.Fatal("expected error for missing spec.md")
	}
}

func TestNextTask(t *testing.T) {
	root, _ := writeProject(t, sampleSpec)
	p, err := Load(root, "my-project")
	if err != nil {
		t.Fatal(err)
	}

	next := p.NextTask(nil)
	if next == nil || next.Description != "Refactor the auth module" {
		t.Fatalf("NextTask = %+v, want the auth task", next)
	}

	skipped := p.NextTask(map[int]struct{}{2: {}})
	if skipped == nil || skipped.Description != "Add integration tests" {
		t.Fatalf("NextTask with skip = %+v, want the tests task", skipped)
	}

	none := p.NextTask(map[int]struct{}{2: {}, 3: {}})
	if none != nil {
		t.Errorf("NextTask = %+v, want nil when everything is skipped", none)
	}
}

func TestMarkComplete(t *testing.T) {
	root, dir := writeProject(t, sampleSpec)
	p, err := Load(root, "my-project")
	if err != nil {
		t.Fatal(err)
	}

	if err := p.MarkComplete("Refactor the auth module"); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(dir, SpecFileName))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "- [x] Refactor the auth module") {
		t.Errorf("task not checked off:\n%s", data)
	}
	if !strings.Contains(string(data), "- [ ] Add integration tests") {
		t.Errorf("other tasks should be untouched:\n%s", data)
	}

	if err := p.MarkComplete("Refactor the auth module"); err == nil {
		t.Error("marking an already-complete task should error")
	}
}

func TestTaskID(t *testing.T) {
	tests := []struct {
		task string
		want string
	}{
		{"Refactor the auth module", "refactor-the-auth-module"},
		{"Fix bug #42 (urgent!)", "fix-bug-42-urgent"},
		{"  padded  ", "padded"},
		{"A very long task description that keeps going and going", "a-very-long-task-description-t"},
		{"Tidy up---", "tidy-up"},
	}

	for _, tt := range tests {
		if got := TaskID(tt.task, 30); got != tt.want {
			t.Errorf("TaskID(%q) = %q, want %q", tt.task, got, tt.want)
		}
	}
}
