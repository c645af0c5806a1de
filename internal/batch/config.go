package batch

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// ScheduleEntry represents one scheduled project run configuration
type ScheduleEntry struct {
	Project          string        `toml:"project"`
	Cron             string        `toml:"cron"`
	MaxTasks         int           `toml:"max_tasks"`
	MaxDuration      time.Duration `toml:"max_duration"`
	NotifyOnComplete bool          `toml:"notify_on_complete"`
}

// ScheduleConfig holds all scheduled run configurations
type ScheduleConfig struct {
	Schedules []ScheduleEntry `toml:"schedule"`
}

// Validate checks if the entry is valid
func (e *ScheduleEntry) Validate() error {
	if e.Project == "" {
		return fmt.Errorf("schedule project is required")
	}
	if e.Cron == "" {
		return fmt.Errorf("cron expression is required")
	}
	if _, err := ParseCron(e.Cron); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}
	if e.MaxTasks <= 0 {
		e.MaxTasks = 1 // Default: one task per window
	}
	if e.MaxDuration <= 0 {
		e.MaxDuration = 4 * time.Hour // Default
	}
	return nil
}

// LoadScheduleConfig loads schedule configuration from a TOML file
func LoadScheduleConfig(path string) (*ScheduleConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &ScheduleConfig{}, nil
		}
		return nil, err
	}

	var cfg ScheduleConfig
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Validate all entries
	for i := range cfg.Schedules {
		if err := cfg.Schedules[i].Validate(); err != nil {
			return nil, fmt.Errorf("schedule %d: %w", i, err)
		}
	}

	return &cfg, nil
}
