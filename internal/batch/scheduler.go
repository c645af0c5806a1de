package batch

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler decides when scheduled project runs are due
type Scheduler struct {
	entries  map[string]ScheduleEntry
	parser   cron.Parser
	lastRun  map[string]time.Time
	running  map[string]bool
	mu       sync.RWMutex
	stopChan chan struct{}
}

// NewScheduler creates a new run scheduler
func NewScheduler(entries []ScheduleEntry) (*Scheduler, error) {
	s := &Scheduler{
		entries:  make(map[string]ScheduleEntry),
		parser:   cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		lastRun:  make(map[string]time.Time),
		running:  make(map[string]bool),
		stopChan: make(chan struct{}),
	}

	for _, e := range entries {
		if err := e.Validate(); err != nil {
			return nil, err
		}
		s.entries[e.Project] = e
	}

	return s, nil
}

// ParseCron parses a cron expression
func ParseCron(expr string) (cron.Schedule, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	return parser.Parse(expr)
}

// NextRun returns the next scheduled run time for a project
func (s *Scheduler) NextRun(project string) time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[project]
	if !ok {
		return time.Time{}
	}

	sched, err := s.parser.Parse(e.Cron)
	if err != nil {
		return time.Time{}
	}

	return sched.Next(time.Now())
}

// ShouldRun returns true if a project's scheduled run is due
func (s *Scheduler) ShouldRun(project string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[project]
	if !ok {
		return false
	}

	if s.running[project] {
		return false
	}

	sched, err := s.parser.Parse(e.Cron)
	if err != nil {
		return false
	}

	lastRun := s.lastRun[project]
	if lastRun.IsZero() {
		lastRun = time.Now().Add(-24 * time.Hour)
	}

	nextRun := sched.Next(lastRun)
	return time.Now().After(nextRun)
}

// MarkRunning marks a project's scheduled run as in flight
func (s *Scheduler) MarkRunning(project string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running[project] = true
}

// MarkComplete marks a project's scheduled run as finished
func (s *Scheduler) MarkComplete(project string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running[project] = false
	s.lastRun[project] = time.Now()
}

// GetEntry returns the schedule entry for a project
func (s *Scheduler) GetEntry(project string) (ScheduleEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[project]
	return e, ok
}

// ListProjects returns all scheduled project names
func (s *Scheduler) ListProjects() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	projects := make([]string, 0, len(s.entries))
	for name := range s.entries {
		projects = append(projects, name)
	}
	return projects
}

// DueProjects returns the projects whose schedule is due right now
func (s *Scheduler) DueProjects() []string {
	var due []string
	for _, p := range s.ListProjects() {
		if s.ShouldRun(p) {
			due = append(due, p)
		}
	}
	return due
}

// Poll invokes runFn for each due project until Stop is called.
// runFn runs synchronously; a long run delays the next poll tick.
func (s *Scheduler) Poll(interval time.Duration, runFn func(project string, entry ScheduleEntry)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			for _, project := range s.DueProjects() {
				e, _ := s.GetEntry(project)
				s.MarkRunning(project)
				runFn(project, e)
				s.MarkComplete(project)
			}
		}
	}
}

// Stop terminates a running Poll loop
func (s *Scheduler) Stop() {
	close(s.stopChan)
}

// Describe returns a human-readable schedule summary
func (s *Scheduler) Describe(project string) string {
	e, ok := s.GetEntry(project)
	if !ok {
		return fmt.Sprintf("%s: not scheduled", project)
	}
	return fmt.Sprintf("%s: %s (next %s)", project, e.Cron, s.NextRun(project).Format(time.RFC3339))
}
