// Package execlog extracts the terminal outcome of an external task
// execution from the executor's JSON log. Malformed input is a failure
// outcome, never an error: the orchestrator must not crash on whatever
// the upstream tool emitted.
package execlog

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"sort"
	"strings"

	"github.com/claudechain/claudechain/internal/domain"
)

// structuredOutput is the schema the executor is asked to produce.
// Main task runs fill summary; PR-summary runs fill summary_content.
type structuredOutput struct {
	Success        *bool  `json:"success"`
	ErrorMessage   string `json:"error_message"`
	Summary        string `json:"summary"`
	SummaryContent string `json:"summary_content"`
}

// record is the subset of an execution log record the parser reads
type record struct {
	Type             string          `json:"type"`
	Subtype          string          `json:"subtype"`
	IsError          bool            `json:"is_error"`
	Result           string          `json:"result"`
	StructuredOutput json.RawMessage `json:"structured_output"`
	TotalCostUSD     float64         `json:"total_cost_usd"`
	Usage            struct {
		InputTokens  int      `json:"input_tokens"`
		OutputTokens int      `json:"output_tokens"`
		TotalCostUSD *float64 `json:"total_cost_usd"`
	} `json:"usage"`
	ModelUsage map[string]struct {
		InputTokens  int     `json:"inputTokens"`
		OutputTokens int     `json:"outputTokens"`
		CostUSD      float64 `json:"costUSD"`
	} `json:"modelUsage"`
}

// Parse reads an execution log and returns the outcome of the run.
// Both a JSON array of records and line-delimited JSON are accepted;
// the executor emits either depending on its output-format flag.
func Parse(data []byte, kind domain.TaskKind) domain.ExecutionOutcome {
	records := decode(data)
	if len(records) == 0 {
		return failure("execution log is empty or malformed")
	}

	// Exactly one terminal record is expected, emitted last. Zero or
	// several mean the log is not trustworthy, which is a failure.
	var result *record
	var terminal int
	for i := range records {
		if records[i].Type == "result" {
			result = &records[i]
			terminal++
		}
	}
	if result == nil {
		return failure("execution log contains no result record")
	}
	if terminal > 1 {
		return failure("execution log contains multiple result records")
	}

	outcome := domain.ExecutionOutcome{Cost: extractCost(result)}

	out, ok := decodeStructuredOutput(result)
	if !ok || out.Success == nil {
		if result.IsError {
			msg := strings.TrimSpace(result.Result)
			if msg == "" {
				msg = "task execution failed: " + result.Subtype
			}
			outcome.ErrorMessage = msg
			return outcome
		}
		outcome.ErrorMessage = "result record has no structured output"
		return outcome
	}

	outcome.Success = *out.Success
	outcome.ErrorMessage = out.ErrorMessage
	switch kind {
	case domain.TaskSummary:
		outcome.Summary = out.SummaryContent
	default:
		outcome.Summary = out.Summary
	}

	if !outcome.Success && outcome.ErrorMessage == "" {
		outcome.ErrorMessage = "task reported failure without an error message"
	}
	return outcome
}

// ParseFile reads and parses an execution log file
func ParseFile(path string, kind domain.TaskKind) domain.ExecutionOutcome {
	data, err := os.ReadFile(path)
	if err != nil {
		return failure("reading execution log: " + err.Error())
	}
	return Parse(data, kind)
}

// decode accepts a JSON array or JSONL and returns the records in order
func decode(data []byte) []record {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil
	}

	if trimmed[0] == '[' {
		var records []record
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return nil
		}
		return records
	}

	var records []record
	scanner := bufio.NewScanner(bytes.NewReader(trimmed))
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 4*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var rec record
		if err := json.Unmarshal(line, &rec); err != nil {
			continue // tolerate interleaved non-JSON lines
		}
		records = append(records, rec)
	}
	return records
}

// decodeStructuredOutput pulls the schema-conforming output from a result
// record. Newer executors put it in structured_output; older ones embed a
// JSON object in the result string.
func decodeStructuredOutput(r *record) (structuredOutput, bool) {
	var out structuredOutput

	if len(r.StructuredOutput) > 0 {
		if err := json.Unmarshal(r.StructuredOutput, &out); err == nil && out.Success != nil {
			return out, true
		}
	}

	text := strings.TrimSpace(r.Result)
	if strings.HasPrefix(text, "{") {
		if err := json.Unmarshal([]byte(text), &out); err == nil && out.Success != nil {
			return out, true
		}
	}

	return structuredOutput{}, false
}

// extractCost reads cost and token usage from a result record
func extractCost(r *record) domain.CostBreakdown {
	cost := domain.CostBreakdown{
		TotalCostUSD: r.TotalCostUSD,
		InputTokens:  r.Usage.InputTokens,
		OutputTokens: r.Usage.OutputTokens,
	}
	if cost.TotalCostUSD == 0 && r.Usage.TotalCostUSD != nil {
		cost.TotalCostUSD = *r.Usage.TotalCostUSD
	}

	for model, u := range r.ModelUsage {
		cost.PerModel = append(cost.PerModel, domain.ModelUsage{
			Model:        model,
			CostUSD:      u.CostUSD,
			InputTokens:  u.InputTokens,
			OutputTokens: u.OutputTokens,
		})
	}
	sort.Slice(cost.PerModel, func(i, j int) bool {
		return cost.PerModel[i].Model < cost.PerModel[j].Model
	})

	return cost
}

func failure(msg string) domain.ExecutionOutcome {
	return domain.ExecutionOutcome{Success: false, ErrorMessage: msg}
}
