package domain

import "time"

// Run represents a single pipeline execution
type Run struct {
	ID           string
	ProjectName  string
	Task         string
	TaskIndex    int
	BaseBranch   string
	TriggerRef   string
	EventName    string
	Status       RunStatus
	ErrorMessage string
	StartedAt    *time.Time
	FinishedAt   *time.Time
	TokensInput  int
	TokensOutput int
	CostUSD      float64
	PRNumber     int
	PRURL        string
}

// Duration returns how long the run took, or how long it has been
// running if it has not finished.
func (r *Run) Duration() time.Duration {
	if r.StartedAt == nil {
		return 0
	}
	if r.FinishedAt != nil {
		return r.FinishedAt.Sub(*r.StartedAt)
	}
	return time.Since(*r.StartedAt)
}

// Terminal reports whether the run has reached a final state
func (r *Run) Terminal() bool {
	switch r.Status {
	case RunCompleted, RunFailed, RunSkipped:
		return true
	}
	return false
}
