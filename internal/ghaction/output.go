// Package ghaction writes GitHub Actions workflow commands and step
// outputs. Outputs go to the file named by GITHUB_OUTPUT; annotations are
// printed as workflow commands on stdout.
package ghaction

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
)

// Helper writes step outputs and annotations for the hosting workflow
type Helper struct {
	outputPath  string
	summaryPath string
	stdout      io.Writer
}

// New creates a Helper bound to the runner-provided environment
func New() *Helper {
	return &Helper{
		outputPath:  os.Getenv("GITHUB_OUTPUT"),
		summaryPath: os.Getenv("GITHUB_STEP_SUMMARY"),
		stdout:      os.Stdout,
	}
}

// NewWithPaths creates a Helper with explicit file paths, for tests
func NewWithPaths(outputPath, summaryPath string, stdout io.Writer) *Helper {
	return &Helper{outputPath: outputPath, summaryPath: summaryPath, stdout: stdout}
}

// WriteOutput appends a step output. Multiline values use the heredoc
// delimiter syntax so newlines survive.
func (h *Helper) WriteOutput(name, value string) error {
	if h.outputPath == "" {
		// Not running under the actions runner; echo for visibility
		fmt.Fprintf(h.stdout, "[output] %s=%s\n", name, value)
		return nil
	}

	f, err := os.OpenFile(h.outputPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("opening GITHUB_OUTPUT: %w", err)
	}
	defer f.Close()

	if strings.Contains(value, "\n") {
		delim := "ghadelim_" + uuid.NewString()
		_, err = fmt.Fprintf(f, "%s<<%s\n%s\n%s\n", name, delim, value, delim)
	} else {
		_, err = fmt.Fprintf(f, "%s=%s\n", name, value)
	}
	return err
}

// SetError emits an error annotation
func (h *Helper) SetError(msg string) {
	fmt.Fprintf(h.stdout, "::error::%s\n", escapeData(msg))
}

// SetNotice emits a notice annotation
func (h *Helper) SetNotice(msg string) {
	fmt.Fprintf(h.stdout, "::notice::%s\n", escapeData(msg))
}

// SetWarning emits a warning annotation
func (h *Helper) SetWarning(msg string) {
	fmt.Fprintf(h.stdout, "::warning::%s\n", escapeData(msg))
}

// AppendSummary appends markdown to the job's step summary
func (h *Helper) AppendSummary(markdown string) error {
	if h.summaryPath == "" {
		return nil
	}
	f, err := os.OpenFile(h.summaryPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("opening GITHUB_STEP_SUMMARY: %w", err)
	}
	defer f.Close()
	_, err = fmt.Fprintln(f, markdown)
	return err
}

// escapeData escapes message data per the workflow command format
func escapeData(s string) string {
	s = strings.ReplaceAll(s, "%", "%25")
	s = strings.ReplaceAll(s, "\r", "%0D")
	s = strings.ReplaceAll(s, "\n", "%0A")
	return s
}
