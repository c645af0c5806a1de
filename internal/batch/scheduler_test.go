package batch

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestScheduleEntry_Validate(t *testing.T) {
	e := ScheduleEntry{Project: "alpha", Cron: "0 9 * * 1-5"}
	if err := e.Validate(); err != nil {
		t.Fatal(err)
	}
	if e.MaxTasks != 1 {
		t.Errorf("MaxTasks default = %d, want 1", e.MaxTasks)
	}
	if e.MaxDuration != 4*time.Hour {
		t.Errorf("MaxDuration default = %v, want 4h", e.MaxDuration)
	}
}

func TestScheduleEntry_ValidateErrors(t *testing.T) {
	tests := []struct {
		name  string
		entry ScheduleEntry
	}{
		{"missing project", ScheduleEntry{Cron: "* * * * *"}},
		{"missing cron", ScheduleEntry{Project: "alpha"}},
		{"bad cron", ScheduleEntry{Project: "alpha", Cron: "not a cron"}},
	}

	for _, tt := range tests {
		if err := tt.entry.Validate(); err == nil {
			t.Errorf("%s: expected error", tt.name)
		}
	}
}

func TestLoadScheduleConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "schedule.toml")

	content := `
[[schedule]]
project = "alpha"
cron = "0 9 * * *"
max_tasks = 3

[[schedule]]
project = "beta"
cron = "30 18 * * 5"
notify_on_complete = true
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadScheduleConfig(path)
	if err != nil {
		t.Fatal(err)
	}

	if len(cfg.Schedules) != 2 {
		t.Fatalf("schedule count = %d, want 2", len(cfg.Schedules))
	}
	if cfg.Schedules[0].MaxTasks != 3 {
		t.Errorf("MaxTasks = %d, want 3", cfg.Schedules[0].MaxTasks)
	}
	if !cfg.Schedules[1].NotifyOnComplete {
		t.Error("NotifyOnComplete should be true for beta")
	}
}

func TestLoadScheduleConfig_Missing(t *testing.T) {
	cfg, err := LoadScheduleConfig(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.Schedules) != 0 {
		t.Errorf("missing file should give empty config")
	}
}

func TestScheduler_ShouldRun(t *testing.T) {
	s, err := NewScheduler([]ScheduleEntry{
		{Project: "alpha", Cron: "* * * * *"}, // every minute
	})
	if err != nil {
		t.Fatal(err)
	}

	// Never run, last-run window defaults to 24h back, so it's due
	if !s.ShouldRun("alpha") {
		t.Error("alpha should be due")
	}

	s.MarkRunning("alpha")
	if s.ShouldRun("alpha") {
		t.Error("running project must not be due")
	}

	s.MarkComplete("alpha")
	if s.ShouldRun("alpha") {
		t.Error("just-completed project must wait for the next window")
	}

	if s.ShouldRun("unknown") {
		t.Error("unknown project must not be due")
	}
}

func TestScheduler_NextRun(t *testing.T) {
	s, err := NewScheduler([]ScheduleEntry{
		{Project: "alpha", Cron: "0 9 * * *"},
	})
	if err != nil {
		t.Fatal(err)
	}

	next := s.NextRun("alpha")
	if next.IsZero() {
		t.Fatal("NextRun should not be zero")
	}
	if next.Hour() != 9 || next.Minute() != 0 {
		t.Errorf("next run = %v, want 09:00", next)
	}

	if !s.NextRun("unknown").IsZero() {
		t.Error("unknown project should give zero time")
	}
}

func TestScheduler_DueProjects(t *testing.T) {
	s, err := NewScheduler([]ScheduleEntry{
		{Project: "alpha", Cron: "* * * * *"},
		{Project: "beta", Cron: "* * * * *"},
	})
	if err != nil {
		t.Fatal(err)
	}

	s.MarkRunning("beta")

	due := s.DueProjects()
	if len(due) != 1 || due[0] != "alpha" {
		t.Errorf("due = %v, want [alpha]", due)
	}
}
