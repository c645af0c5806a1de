// Package event resolves the trigger context for a run from the GitHub
// event payload and the action's configuration inputs.
//
// Base branch precedence is deliberately centralized here: an explicit
// default_base_branch input always wins, then the ref derived from the
// event, then the fixed fallback. Earlier revisions attempted derivation
// even when an explicit value existed, which sent workflow_dispatch runs
// to the wrong branch.
package event

import (
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"github.com/claudechain/claudechain/internal/domain"
)

// ChangedFilesFunc compares two refs and returns the changed file paths.
// Injected so the resolver itself never talks to the GitHub API.
type ChangedFilesFunc func(base, head string) ([]string, error)

// Input carries everything the resolver needs for one run
type Input struct {
	EventName         string
	EventJSON         []byte
	ProjectName       string // override from workflow_dispatch input
	DefaultBaseBranch string // explicit configuration, wins over derivation
	ProjectPath       string // directory containing project subdirectories
	ChangedFiles      ChangedFilesFunc
}

// payload is the subset of the GitHub event JSON the resolver reads
type payload struct {
	Ref    string `json:"ref"` // refs/heads/<branch> for push and workflow_dispatch
	Before string `json:"before"`
	After  string `json:"after"`

	PullRequest *struct {
		Number int  `json:"number"`
		Merged bool `json:"merged"`
		Head   struct {
			Ref string `json:"ref"`
		} `json:"head"`
		Base struct {
			Ref string `json:"ref"`
		} `json:"base"`
	} `json:"pull_request"`
}

// Resolve produces the EventContext for a run. Skip outcomes are returned
// with ctx.Skip set, not as errors; only unsupported events and a missing
// workflow_dispatch project name are errors.
func Resolve(in Input) (*domain.EventContext, error) {
	var p payload
	if len(in.EventJSON) > 0 {
		// Malformed payloads degrade to derivation failure, which is
		// recoverable; they never abort resolution.
		_ = json.Unmarshal(in.EventJSON, &p)
	}

	ctx := &domain.EventContext{EventName: in.EventName}

	switch in.EventName {
	case "workflow_dispatch":
		if in.ProjectName == "" {
			return nil, fmt.Errorf("workflow_dispatch requires a project name input")
		}
		ctx.ProjectName = in.ProjectName
		ctx.TriggerRef = refName(p.Ref)

	case "pull_request":
		if p.PullRequest == nil || !p.PullRequest.Merged {
			ctx.Skip = true
			ctx.SkipReason = "PR was closed but not merged"
			return ctx, nil
		}
		ctx.MergedPRNumber = p.PullRequest.Number
		ctx.MergeTargetBranch = p.PullRequest.Base.Ref
		// The merged changes live on the branch the PR merged into
		ctx.TriggerRef = p.PullRequest.Base.Ref

		ctx.ProjectName = detectProject(in, p.PullRequest.Base.Ref, p.PullRequest.Head.Ref)
		if ctx.ProjectName == "" {
			ctx.Skip = true
			ctx.SkipReason = "No spec.md changes detected"
			return ctx, nil
		}

	case "push":
		ctx.TriggerRef = refName(p.Ref)
		ctx.ProjectName = detectProject(in, p.Before, p.After)
		if ctx.ProjectName == "" {
			ctx.Skip = true
			ctx.SkipReason = "No spec.md changes detected"
			return ctx, nil
		}

	default:
		return nil, fmt.Errorf("unsupported event type: %q", in.EventName)
	}

	if ctx.TriggerRef == "" {
		ctx.Skip = true
		ctx.SkipReason = "Could not determine checkout ref from event"
		return ctx, nil
	}

	ctx.ResolvedBaseBranch = resolveBaseBranch(in.DefaultBaseBranch, ctx.TriggerRef)
	return ctx, nil
}

// resolveBaseBranch applies the precedence rule: explicit configuration,
// then the event-derived ref, then the fixed fallback. Never empty.
func resolveBaseBranch(explicit, derived string) string {
	if explicit != "" {
		return explicit
	}
	if derived != "" {
		return derived
	}
	return domain.DefaultBaseBranch
}

// refName strips the refs/heads/ prefix from a full git ref
func refName(ref string) string {
	return strings.TrimPrefix(ref, "refs/heads/")
}

// detectProject finds the project whose spec.md changed between two refs.
// When several projects changed, the first is taken. Comparison failures
// (e.g. the head branch was deleted after merge) resolve to no project.
func detectProject(in Input, base, head string) string {
	if in.ChangedFiles == nil || base == "" || head == "" {
		return ""
	}
	files, err := in.ChangedFiles(base, head)
	if err != nil {
		return ""
	}
	projects := ProjectsFromChangedFiles(in.ProjectPath, files)
	if len(projects) == 0 {
		return ""
	}
	return projects[0]
}

// ProjectsFromChangedFiles returns project names whose spec.md appears in
// the changed file list, in first-seen order.
func ProjectsFromChangedFiles(projectPath string, files []string) []string {
	prefix := strings.TrimSuffix(projectPath, "/") + "/"
	seen := make(map[string]struct{})
	var projects []string
	for _, f := range files {
		if !strings.HasPrefix(f, prefix) || path.Base(f) != "spec.md" {
			continue
		}
		rel := strings.TrimPrefix(f, prefix)
		parts := strings.Split(rel, "/")
		if len(parts) != 2 {
			continue // only direct children hold projects
		}
		name := parts[0]
		if _, ok := seen[name]; !ok {
			seen[name] = struct{}{}
			projects = append(projects, name)
		}
	}
	return projects
}
