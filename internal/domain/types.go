package domain

// RunStatus represents the execution state of a pipeline run
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunSkipped   RunStatus = "skipped"
)

// HookStage identifies which hook script a result belongs to
type HookStage string

const (
	HookPreAction  HookStage = "pre-action"
	HookPostAction HookStage = "post-action"
)

// TaskKind distinguishes the two Claude Code result schemas
type TaskKind string

const (
	TaskMain    TaskKind = "main"
	TaskSummary TaskKind = "summary"
)

// DefaultBaseBranch is the ultimate fallback when no branch can be
// resolved from configuration or the triggering event.
const DefaultBaseBranch = "main"

// EventContext is the resolved trigger context for one run.
// Immutable after resolution.
type EventContext struct {
	EventName          string
	ProjectName        string
	TriggerRef         string // ref to check out
	ResolvedBaseBranch string // never empty after resolution
	MergeTargetBranch  string // set for pull_request events
	MergedPRNumber     int    // set for pull_request events

	// Skip indicates the run should not proceed (e.g. PR closed without
	// merging). Not an error condition.
	Skip       bool
	SkipReason string
}

// ActionResult is the outcome of one hook script invocation
type ActionResult struct {
	Success  bool
	Stdout   string
	Stderr   string
	ExitCode int
}

// ExecutionOutcome is the terminal state of one external task execution,
// parsed from the executor's JSON log
type ExecutionOutcome struct {
	Success      bool
	ErrorMessage string
	Summary      string
	Cost         CostBreakdown
}

// ModelUsage holds per-model token and cost figures
type ModelUsage struct {
	Model        string  `json:"model"`
	CostUSD      float64 `json:"cost"`
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
}

// CostBreakdown aggregates cost data from an execution log
type CostBreakdown struct {
	TotalCostUSD float64
	InputTokens  int
	OutputTokens int
	PerModel     []ModelUsage
}
