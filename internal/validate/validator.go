// Package validate is the quality gate between snapshot creation and merge.
// It consumes run statistics and the accepted record set, and reports
// pass/fail with reasons. Whether a failed validation may be overridden is
// policy that lives with the caller, not here.
package validate

import (
	"fmt"
	"sort"

	"github.com/corpusforge/corpus/internal/config"
	"github.com/corpusforge/corpus/internal/dedup"
	"github.com/corpusforge/corpus/internal/record"
)

// Result is the validator's verdict. Errors fail the run; warnings do not.
type Result struct {
	Passed   bool           `json:"passed"`
	Errors   []string       `json:"errors,omitempty"`
	Warnings []string       `json:"warnings,omitempty"`
	Stats    map[string]any `json:"stats,omitempty"`
}

// Check validates a snapshot's accepted records and dedup statistics against
// the configured thresholds.
func Check(records []*record.Record, stats dedup.Stats, cfg config.ValidationConfig) *Result {
	result := &Result{
		Passed: true,
		Stats:  make(map[string]any),
	}

	if len(records) < cfg.MinRecords {
		result.fail(fmt.Sprintf("too few records: %d < minimum %d", len(records), cfg.MinRecords))
	}

	ratio := stats.DuplicateRatio()
	result.Stats["duplicate_ratio"] = ratio
	if cfg.MaxDuplicateRatio > 0 && ratio > cfg.MaxDuplicateRatio {
		result.fail(fmt.Sprintf("duplicate ratio %.2f exceeds maximum %.2f", ratio, cfg.MaxDuplicateRatio))
	}

	checkRecords(records, result)
	checkLengths(records, cfg, result)
	checkSources(records, result)

	return result
}

// checkRecords flags structurally broken records. These should have been
// filtered upstream; their presence here is an error.
func checkRecords(records []*record.Record, result *Result) {
	for i, r := range records {
		if r.Text == "" {
			result.fail(fmt.Sprintf("record %d (%s): empty text", i, r.ID))
		}
		if r.Source == "" {
			result.warn(fmt.Sprintf("record %d (%s): missing source label", i, r.ID))
		}
	}
}

// checkLengths warns when the average answer length drifts outside the
// configured window.
func checkLengths(records []*record.Record, cfg config.ValidationConfig, result *Result) {
	if len(records) == 0 {
		return
	}

	total, minLen, maxLen := 0, -1, 0
	for _, r := range records {
		n := len(r.Text)
		total += n
		if minLen < 0 || n < minLen {
			minLen = n
		}
		if n > maxLen {
			maxLen = n
		}
	}

	avg := total / len(records)
	result.Stats["avg_text_length"] = avg
	result.Stats["min_text_length"] = minLen
	result.Stats["max_text_length"] = maxLen

	if cfg.MinAvgTextLength > 0 && avg < cfg.MinAvgTextLength {
		result.warn(fmt.Sprintf("average text length %d below threshold %d", avg, cfg.MinAvgTextLength))
	}
	if cfg.MaxAvgTextLength > 0 && avg > cfg.MaxAvgTextLength {
		result.warn(fmt.Sprintf("average text length %d above threshold %d", avg, cfg.MaxAvgTextLength))
	}
}

// checkSources records source diversity statistics.
func checkSources(records []*record.Record, result *Result) {
	seen := make(map[string]struct{})
	for _, r := range records {
		if r.Source != "" {
			seen[r.Source] = struct{}{}
		}
	}

	sources := make([]string, 0, len(seen))
	for s := range seen {
		sources = append(sources, s)
	}
	sort.Strings(sources)

	result.Stats["unique_sources"] = len(sources)
	result.Stats["sources"] = sources
}

func (r *Result) fail(reason string) {
	r.Passed = false
	r.Errors = append(r.Errors, reason)
}

func (r *Result) warn(reason string) {
	r.Warnings = append(r.Warnings, reason)
}
