package notify

import (
	"fmt"
	"strings"

	"github.com/claudechain/claudechain/internal/domain"
)

// NotificationType represents the type of notification
type NotificationType int

const (
	NotifyInfo NotificationType = iota
	NotifySuccess
	NotifyWarning
	NotifyError
)

// Notification represents a notification to be sent
type Notification struct {
	Title   string
	Message string
	Type    NotificationType
	Project string // Optional project reference
	PRURL   string // Optional PR URL
}

// Notifier is the interface for sending notifications
type Notifier interface {
	Send(n Notification) error
}

// MultiNotifier sends to multiple notifiers
type MultiNotifier struct {
	notifiers []Notifier
}

// NewMultiNotifier creates a notifier that sends to all provided notifiers
func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	return &MultiNotifier{notifiers: notifiers}
}

// Send sends the notification to all notifiers
func (m *MultiNotifier) Send(n Notification) error {
	var lastErr error
	for _, notifier := range m.notifiers {
		if err := notifier.Send(n); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// NoopNotifier does nothing (for testing or disabled notifications)
type NoopNotifier struct{}

func (NoopNotifier) Send(n Notification) error { return nil }

// Dispatcher builds and sends the run-level notifications
type Dispatcher struct {
	notifier Notifier
}

// NewDispatcher creates a Dispatcher. A nil notifier disables dispatch.
func NewDispatcher(notifier Notifier) *Dispatcher {
	if notifier == nil {
		notifier = NoopNotifier{}
	}
	return &Dispatcher{notifier: notifier}
}

// PRInfo describes the pull request a successful run produced
type PRInfo struct {
	Number int
	URL    string
}

// NotifySuccess announces a completed run and its PR
func (d *Dispatcher) NotifySuccess(run *domain.Run, pr PRInfo) error {
	return d.notifier.Send(Notification{
		Title:   "🎉 New PR Created",
		Message: FormatPRNotification(run, pr),
		Type:    NotifySuccess,
		Project: run.ProjectName,
		PRURL:   pr.URL,
	})
}

// NotifyError announces a failed run with enough context to triage
// without opening the logs: project, task, raw error, and the run link.
func (d *Dispatcher) NotifyError(run *domain.Run, errorMessage, runURL string) error {
	return d.notifier.Send(Notification{
		Title:   "❌ Run Failed",
		Message: FormatErrorNotification(run, errorMessage, runURL),
		Type:    NotifyError,
		Project: run.ProjectName,
	})
}

// FormatPRNotification formats the success message in Slack mrkdwn
func FormatPRNotification(run *domain.Run, pr PRInfo) string {
	lines := []string{
		fmt.Sprintf("*PR:* <%s|#%d>", pr.URL, pr.Number),
		fmt.Sprintf("*Project:* `%s`", run.ProjectName),
		fmt.Sprintf("*Task:* %s", run.Task),
	}
	if run.CostUSD > 0 {
		lines = append(lines,
			"",
			"*💰 Cost:*",
			"```",
			fmt.Sprintf("Total:          $%.6f", run.CostUSD),
			fmt.Sprintf("Tokens:         in %d | out %d", run.TokensInput, run.TokensOutput),
			"```",
		)
	}
	return strings.Join(lines, "\n")
}

// FormatErrorNotification formats the failure message in Slack mrkdwn
func FormatErrorNotification(run *domain.Run, errorMessage, runURL string) string {
	lines := []string{
		fmt.Sprintf("*Project:* `%s`", run.ProjectName),
		fmt.Sprintf("*Task:* %s", run.Task),
		fmt.Sprintf("*Error:* %s", errorMessage),
	}
	if runURL != "" {
		lines = append(lines, fmt.Sprintf("*Run:* <%s|view logs>", runURL))
	}
	return strings.Join(lines, "\n")
}
