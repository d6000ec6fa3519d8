package dedup

import (
	"github.com/corpusforge/corpus/internal/config"
	"github.com/corpusforge/corpus/internal/record"
)

// DecisionKind classifies the outcome of a dedup decision.
type DecisionKind string

const (
	Accept      DecisionKind = "accept"
	RejectExact DecisionKind = "reject_exact"
	RejectNear  DecisionKind = "reject_near"
)

// Decision is the per-record accept/reject outcome. Duplicate detection is
// data, not control flow: only structural failures surface as errors.
type Decision struct {
	Kind       DecisionKind `json:"kind"`
	MatchID    string       `json:"match_id,omitempty"`
	Similarity float64      `json:"similarity,omitempty"`
}

// Stats accumulates per-run dedup counters; these feed the validator.
type Stats struct {
	Total        int `json:"total"`
	ExactRejects int `json:"exact_rejects"`
	NearRejects  int `json:"near_rejects"`
	Accepted     int `json:"accepted"`
}

// DuplicateRatio returns the fraction of candidates rejected as duplicates.
func (s Stats) DuplicateRatio() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.ExactRejects+s.NearRejects) / float64(s.Total)
}

// Deduplicator decides, per candidate record, whether it is genuinely novel
// with respect to the accumulated history and the records accepted earlier in
// the current batch. Decisions are a deterministic function of processing
// order: the first occurrence wins.
//
// Must be driven single-threaded: each decision mutates the exact-fingerprint
// set and the batch index that the next decision reads.
type Deduplicator struct {
	threshold float64

	exact   map[uint64]string // fingerprint -> record id, history + accepted this batch
	history *Index
	batch   *Index

	stats Stats
}

// New creates a deduplicator over existing history state. The exact set and
// history index come from the cumulative dataset (empty for a fresh corpus);
// the batch index starts empty.
func New(cfg config.DedupConfig, exact map[uint64]string, history *Index) *Deduplicator {
	if exact == nil {
		exact = make(map[uint64]string)
	}
	if history == nil {
		history = NewIndex(cfg)
	}
	return &Deduplicator{
		threshold: cfg.SimilarityThreshold,
		exact:     exact,
		history:   history,
		batch:     NewIndex(cfg),
	}
}

// Decide classifies a fingerprinted record, in order:
//
//  1. Exact fingerprint already seen (history or earlier in batch) -> RejectExact.
//  2. Non-sentinel signature with an indexed candidate whose estimated
//     Jaccard similarity meets the threshold -> RejectNear with the best match.
//  3. Otherwise Accept: the record is added to the exact set and batch index
//     so later records in the same batch see it.
//
// Errors are structural (signature/configuration mismatch) and fatal.
func (d *Deduplicator) Decide(rec *record.Record) (Decision, error) {
	d.stats.Total++

	if matchID, ok := d.exact[rec.Fingerprint]; ok {
		d.stats.ExactRejects++
		return Decision{Kind: RejectExact, MatchID: matchID, Similarity: 1}, nil
	}

	if len(rec.Signature) > 0 {
		match, sim, err := d.bestNearMatch(rec.Signature)
		if err != nil {
			return Decision{}, err
		}
		if match != "" {
			d.stats.NearRejects++
			return Decision{Kind: RejectNear, MatchID: match, Similarity: sim}, nil
		}
	}

	d.exact[rec.Fingerprint] = rec.ID
	if len(rec.Signature) > 0 {
		if err := d.batch.Add(rec.ID, rec.Signature); err != nil {
			return Decision{}, err
		}
	}
	d.stats.Accepted++
	return Decision{Kind: Accept}, nil
}

// bestNearMatch verifies LSH candidates from the history and batch indexes
// and returns the most similar one at or above the threshold. Candidates are
// scanned in sorted id order so ties resolve deterministically.
func (d *Deduplicator) bestNearMatch(sig []uint64) (string, float64, error) {
	var bestID string
	var bestSim float64

	for _, idx := range []*Index{d.history, d.batch} {
		candidates, err := idx.Candidates(sig)
		if err != nil {
			return "", 0, err
		}
		for _, id := range candidates {
			candSig, ok := idx.Signature(id)
			if !ok {
				continue
			}
			sim := EstimateJaccard(sig, candSig)
			if sim >= d.threshold && sim > bestSim {
				bestID = id
				bestSim = sim
			}
		}
	}

	return bestID, bestSim, nil
}

// Stats returns the counters accumulated so far.
func (d *Deduplicator) Stats() Stats {
	return d.stats
}
