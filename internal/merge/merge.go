// Package merge folds a sealed snapshot into the cumulative dataset.
package merge

import (
	"context"
	"database/sql"

	"github.com/corpusforge/corpus/internal/config"
	"github.com/corpusforge/corpus/internal/dataset"
	"github.com/corpusforge/corpus/internal/dedup"
	"github.com/corpusforge/corpus/internal/errors"
	"github.com/corpusforge/corpus/internal/record"
)

// Result reports the outcome of one merge.
type Result struct {
	Version       int `json:"version"`
	Merged        int `json:"merged"`
	RejectedExact int `json:"rejected_exact"`
	RejectedNear  int `json:"rejected_near"`
}

// Merge folds a snapshot's records into the cumulative dataset.
//
// The merge log is consulted first: re-invoking merge on an already-merged
// version is an ALREADY_MERGED error, never a silent double-append. The
// snapshot's records are then deduplicated a second time against the current
// dataset, which may have grown since the snapshot was sealed. Survivors are
// appended and the version logged in one transaction; a version contributing
// zero new records is still logged as consumed.
//
// Snapshot record files do not carry signatures, so they are recomputed here
// under the current dedup configuration, matching the history index built
// from the dataset.
func Merge(ctx context.Context, db *sql.DB, cfg config.DedupConfig, version int, records []*record.Record) (*Result, error) {
	merged, err := dataset.IsMerged(db, version)
	if err != nil {
		return nil, err
	}
	if merged {
		return nil, errors.NewAlreadyMerged(version)
	}

	exact, history, err := dataset.LoadHistory(ctx, db, cfg)
	if err != nil {
		return nil, err
	}

	fp := dedup.NewFingerprinter(cfg)
	dd := dedup.New(cfg, exact, history)

	var survivors []*record.Record
	for _, r := range records {
		select {
		case <-ctx.Done():
			return nil, errors.NewCancelled("merge")
		default:
		}

		if len(r.Signature) == 0 {
			_, r.Signature = fp.Fingerprint(r.Text)
		}

		decision, err := dd.Decide(r)
		if err != nil {
			return nil, err
		}
		if decision.Kind == dedup.Accept {
			survivors = append(survivors, r)
		}
	}

	stats := dd.Stats()
	rejected := stats.ExactRejects + stats.NearRejects

	if err := dataset.ApplyMerge(ctx, db, version, survivors, rejected); err != nil {
		return nil, err
	}

	return &Result{
		Version:       version,
		Merged:        len(survivors),
		RejectedExact: stats.ExactRejects,
		RejectedNear:  stats.NearRejects,
	}, nil
}
