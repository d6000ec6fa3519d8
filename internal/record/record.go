package record

import (
	"encoding/json"
	"fmt"
)

// InputRecord is a candidate record as emitted by an upstream collaborator
// (scraper, converter). Payload carries the original structured message
// payload and is passed through the pipeline unchanged.
type InputRecord struct {
	Source  string          `json:"source"`
	Text    string          `json:"text"`
	Payload json.RawMessage `json:"-"`
}

// Record is a fingerprinted candidate. Immutable once created: it is either
// discarded as a duplicate or attached to a snapshot.
//
// Signature is nil for records too short to shingle (the sentinel case);
// such records still participate in exact deduplication.
type Record struct {
	ID          string
	Source      string
	Text        string
	Fingerprint uint64
	Signature   []uint64
	Payload     json.RawMessage
}

// ContentID derives the record id from the exact fingerprint. Content-addressed
// ids keep snapshot record files byte-identical across runs with identical
// input, and cannot collide inside the cumulative dataset (which is unique by
// fingerprint).
func ContentID(fingerprint uint64) string {
	return fmt.Sprintf("%016x", fingerprint)
}
