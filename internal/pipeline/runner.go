// Package pipeline orchestrates one dedup-and-snapshot run: fingerprint the
// candidate batch, deduplicate it against the accumulated history, seal the
// survivors into a snapshot, validate, and optionally merge.
package pipeline

import (
	"context"
	"crypto/rand"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/corpusforge/corpus/internal/config"
	"github.com/corpusforge/corpus/internal/dataset"
	"github.com/corpusforge/corpus/internal/dedup"
	"github.com/corpusforge/corpus/internal/errors"
	"github.com/corpusforge/corpus/internal/merge"
	"github.com/corpusforge/corpus/internal/record"
	"github.com/corpusforge/corpus/internal/snapshot"
	"github.com/corpusforge/corpus/internal/validate"
)

// Options controls a pipeline run.
type Options struct {
	// DryRun computes everything but persists nothing and consumes no
	// version number.
	DryRun bool

	// AutoMerge merges the sealed snapshot into the cumulative dataset when
	// validation passes.
	AutoMerge bool

	// SkipValidation bypasses the validator entirely.
	SkipValidation bool

	// Force proceeds to merge despite a failed validation. Policy decision
	// made by the caller; the default refuses.
	Force bool

	// Description overrides the generated snapshot description.
	Description string
}

// RunResult carries the statistics of one run. On failure, FailedStage names
// the stage that aborted and the statistics gathered up to that point are
// retained.
type RunResult struct {
	RunID        string             `json:"run_id"`
	Candidates   int                `json:"candidates"`
	SkippedInput []string           `json:"skipped_input,omitempty"`
	Dedup        dedup.Stats        `json:"dedup"`
	Ratio        float64            `json:"duplicate_ratio"`
	DryRun       bool               `json:"dry_run,omitempty"`
	Snapshot     *snapshot.Snapshot `json:"snapshot,omitempty"`
	Validation   *validate.Result   `json:"validation,omitempty"`
	Merge        *merge.Result      `json:"merge,omitempty"`
	FailedStage  string             `json:"failed_stage,omitempty"`
}

// Run executes one pipeline run over a candidate batch.
//
// Processing order is deterministic and documented: candidates are grouped
// by source label, sources are visited in sorted order, and each source's
// emission order is preserved. Given identical input and configuration, two
// runs produce identical decisions and byte-identical snapshot record files.
func Run(ctx context.Context, db *sql.DB, mgr *snapshot.Manager, cfg *config.Config, inputs []record.InputRecord, opts Options) (*RunResult, error) {
	result := &RunResult{
		RunID:  newRunID(),
		DryRun: opts.DryRun,
	}

	ordered := orderBySource(inputs)
	result.Candidates = len(ordered)

	exact, history, err := dataset.LoadHistory(ctx, db, cfg.Dedup)
	if err != nil {
		result.FailedStage = "load_history"
		return result, err
	}

	fp := dedup.NewFingerprinter(cfg.Dedup)
	dd := dedup.New(cfg.Dedup, exact, history)

	var accepted []*record.Record
	for i, in := range ordered {
		select {
		case <-ctx.Done():
			result.FailedStage = "dedup"
			return result, errors.NewCancelled("pipeline run")
		default:
		}

		if in.Text == "" || in.Source == "" {
			result.SkippedInput = append(result.SkippedInput,
				fmt.Sprintf("candidate %d: missing text or source", i))
			continue
		}

		exactFP, sig := fp.Fingerprint(in.Text)
		rec := &record.Record{
			ID:          record.ContentID(exactFP),
			Source:      in.Source,
			Text:        in.Text,
			Fingerprint: exactFP,
			Signature:   sig,
			Payload:     in.Payload,
		}

		decision, err := dd.Decide(rec)
		if err != nil {
			result.Dedup = dd.Stats()
			result.FailedStage = "dedup"
			return result, err
		}
		if decision.Kind == dedup.Accept {
			accepted = append(accepted, rec)
		}
	}

	result.Dedup = dd.Stats()
	result.Ratio = result.Dedup.DuplicateRatio()

	if len(accepted) == 0 {
		// Nothing novel; no snapshot to seal.
		return result, nil
	}

	sealOpts := snapshot.SealOptions{Description: opts.Description}
	if sealOpts.Description == "" {
		sealOpts.Description = fmt.Sprintf("run %s: %d records", result.RunID, len(accepted))
	}

	if opts.DryRun {
		snap, err := mgr.DryRun(accepted, sealOpts)
		if err != nil {
			result.FailedStage = "snapshot"
			return result, err
		}
		result.Snapshot = snap
	} else {
		snap, err := mgr.Seal(accepted, sealOpts)
		if err != nil {
			result.FailedStage = "snapshot"
			return result, err
		}
		result.Snapshot = snap
	}

	if !opts.SkipValidation {
		result.Validation = validate.Check(accepted, result.Dedup, cfg.Validation)
		if !result.Validation.Passed && !opts.Force {
			result.FailedStage = "validation"
			return result, errors.NewValidationFailed(result.Validation.Errors)
		}
	}

	if opts.AutoMerge && !opts.DryRun {
		mergeResult, err := merge.Merge(ctx, db, cfg.Dedup, result.Snapshot.Version, accepted)
		if err != nil {
			result.FailedStage = "merge"
			return result, err
		}
		result.Merge = mergeResult
	}

	return result, nil
}

// orderBySource groups candidates by source label, visits sources in sorted
// order, and preserves emission order within each source.
func orderBySource(inputs []record.InputRecord) []record.InputRecord {
	bySource := make(map[string][]record.InputRecord)
	for _, in := range inputs {
		bySource[in.Source] = append(bySource[in.Source], in)
	}

	sources := make([]string, 0, len(bySource))
	for s := range bySource {
		sources = append(sources, s)
	}
	sort.Strings(sources)

	ordered := make([]record.InputRecord, 0, len(inputs))
	for _, s := range sources {
		ordered = append(ordered, bySource[s]...)
	}
	return ordered
}

// newRunID generates a ULID identifying this run in logs and descriptions.
func newRunID() string {
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(time.Now()), entropy)
	if err != nil {
		return "run-unknown"
	}
	return id.String()
}
