// Package project reads a ClaudeChain project directory: the spec.md
// task list that drives runs and the optional frontmatter configuration
// at its top.
package project

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// SpecFileName is the task list file every project carries
const SpecFileName = "spec.md"

// Task is one checkbox entry from spec.md
type Task struct {
	Index       int // 1-based position in the spec
	Description string
	Done        bool
}

// Project is a loaded project directory
type Project struct {
	Name   string
	Dir    string
	Config *SpecConfig
	Tasks  []Task
}

// Load reads the project at <projectPath>/<name>
func Load(projectPath, name string) (*Project, error) {
	dir := filepath.Join(projectPath, name)
	specPath := filepath.Join(dir, SpecFileName)

	content, err := os.ReadFile(specPath)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", specPath, err)
	}

	cfg, body, err := ParseSpecConfig(content)
	if err != nil {
		return nil, fmt.Errorf("parsing %s frontmatter: %w", specPath, err)
	}

	return &Project{
		Name:   name,
		Dir:    dir,
		Config: cfg,
		Tasks:  parseTasks(body),
	}, nil
}

var (
	uncheckedRe = regexp.MustCompile(`^\s*- \[ \] (.+)$`)
	checkedRe   = regexp.MustCompile(`^\s*- \[[xX]\] (.+)$`)
)

func parseTasks(body []byte) []Task {
	var tasks []Task
	index := 1
	scanner := bufio.NewScanner(strings.NewReader(string(body)))
	for scanner.Scan() {
		line := scanner.Text()
		if m := uncheckedRe.FindStringSubmatch(line); m != nil {
			tasks = append(tasks, Task{Index: index, Description: strings.TrimSpace(m[1])})
			index++
		} else if m := checkedRe.FindStringSubmatch(line); m != nil {
			tasks = append(tasks, Task{Index: index, Description: strings.TrimSpace(m[1]), Done: true})
			index++
		}
	}
	return tasks
}

// NextTask returns the first unchecked task whose index is not in skip,
// or nil when no task is available.
func (p *Project) NextTask(skip map[int]struct{}) *Task {
	for i := range p.Tasks {
		t := &p.Tasks[i]
		if t.Done {
			continue
		}
		if _, skipped := skip[t.Index]; skipped {
			continue
		}
		return t
	}
	return nil
}

// MarkComplete checks off a task in spec.md by its description
func (p *Project) MarkComplete(task string) error {
	specPath := filepath.Join(p.Dir, SpecFileName)
	content, err := os.ReadFile(specPath)
	if err != nil {
		return fmt.Errorf("reading %s: %w", specPath, err)
	}

	pattern := regexp.MustCompile(`(?m)^(\s*)- \[ \] ` + regexp.QuoteMeta(task) + `\s*$`)
	loc := pattern.FindIndex(content)
	if loc == nil {
		return fmt.Errorf("task not found or already complete: %q", task)
	}

	updated := pattern.ReplaceAll(content, []byte("${1}- [x] "+task))
	if err := os.WriteFile(specPath, updated, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", specPath, err)
	}

	for i := range p.Tasks {
		if p.Tasks[i].Description == task {
			p.Tasks[i].Done = true
			break
		}
	}
	return nil
}

var taskIDRe = regexp.MustCompile(`[^a-z0-9]+`)

// TaskID derives a branch-safe identifier from a task description:
// lowercase, runs of non-alphanumerics collapsed to dashes, truncated.
func TaskID(task string, maxLength int) string {
	id := taskIDRe.ReplaceAllString(strings.ToLower(task), "-")
	id = strings.Trim(id, "-")
	if len(id) > maxLength {
		id = strings.TrimRight(id[:maxLength], "-")
	}
	return id
}
