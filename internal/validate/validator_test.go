package validate

import (
	"strings"
	"testing"

	"github.com/corpusforge/corpus/internal/config"
	"github.com/corpusforge/corpus/internal/dedup"
	"github.com/corpusforge/corpus/internal/record"
)

func testValidationConfig() config.ValidationConfig {
	return config.ValidationConfig{
		MinRecords:        2,
		MaxDuplicateRatio: 0.5,
		MinAvgTextLength:  10,
		MaxAvgTextLength:  1000,
	}
}

func goodRecords(n int) []*record.Record {
	records := make([]*record.Record, n)
	for i := range records {
		records[i] = &record.Record{
			ID:     record.ContentID(uint64(i + 1)),
			Source: "so",
			Text:   strings.Repeat("answer text ", 5),
		}
	}
	return records
}

func TestCheckPasses(t *testing.T) {
	records := goodRecords(3)
	stats := dedup.Stats{Total: 4, Accepted: 3, ExactRejects: 1}

	result := Check(records, stats, testValidationConfig())
	if !result.Passed {
		t.Errorf("expected pass, errors: %v", result.Errors)
	}
	if result.Stats["duplicate_ratio"] != 0.25 {
		t.Errorf("duplicate_ratio = %v", result.Stats["duplicate_ratio"])
	}
	if result.Stats["unique_sources"] != 1 {
		t.Errorf("unique_sources = %v", result.Stats["unique_sources"])
	}
}

func TestCheckTooFewRecords(t *testing.T) {
	result := Check(goodRecords(1), dedup.Stats{Total: 1, Accepted: 1}, testValidationConfig())
	if result.Passed {
		t.Error("expected failure for too few records")
	}
	if len(result.Errors) == 0 {
		t.Error("no error reasons recorded")
	}
}

func TestCheckDuplicateRatioCeiling(t *testing.T) {
	// 8 of 10 candidates rejected: the batch is mostly noise.
	stats := dedup.Stats{Total: 10, ExactRejects: 5, NearRejects: 3, Accepted: 2}
	result := Check(goodRecords(2), stats, testValidationConfig())
	if result.Passed {
		t.Error("expected failure for duplicate ratio above ceiling")
	}
}

func TestCheckEmptyTextFails(t *testing.T) {
	records := goodRecords(2)
	records[1].Text = ""
	result := Check(records, dedup.Stats{Total: 2, Accepted: 2}, testValidationConfig())
	if result.Passed {
		t.Error("expected failure for empty text")
	}
}

func TestCheckMissingSourceWarns(t *testing.T) {
	records := goodRecords(2)
	records[0].Source = ""
	result := Check(records, dedup.Stats{Total: 2, Accepted: 2}, testValidationConfig())
	if !result.Passed {
		t.Errorf("missing source should warn, not fail: %v", result.Errors)
	}
	if len(result.Warnings) == 0 {
		t.Error("expected a warning for missing source")
	}
}

func TestCheckLengthWarnings(t *testing.T) {
	records := goodRecords(2)
	records[0].Text = "short"
	records[1].Text = "also"
	result := Check(records, dedup.Stats{Total: 2, Accepted: 2}, testValidationConfig())
	if !result.Passed {
		t.Errorf("length drift should warn, not fail: %v", result.Errors)
	}
	if len(result.Warnings) == 0 {
		t.Error("expected a warning for short average length")
	}
	if result.Stats["min_text_length"] != 4 {
		t.Errorf("min_text_length = %v", result.Stats["min_text_length"])
	}
	if result.Stats["max_text_length"] != 5 {
		t.Errorf("max_text_length = %v", result.Stats["max_text_length"])
	}
}

func TestCheckZeroConfigSkipsThresholds(t *testing.T) {
	// Unset thresholds disable their checks.
	stats := dedup.Stats{Total: 10, ExactRejects: 9, Accepted: 1}
	result := Check(goodRecords(1), stats, config.ValidationConfig{})
	if !result.Passed {
		t.Errorf("expected pass with zero config, errors: %v", result.Errors)
	}
}
