package record

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// ExportRecord is the JSONL wire form of a Record, used for snapshot record
// files and training exports. The fingerprint is serialized as fixed-width
// hex: JSON numbers cannot carry a full 64-bit value losslessly.
type ExportRecord struct {
	ID          string          `json:"id"`
	Source      string          `json:"source"`
	Text        string          `json:"text"`
	Fingerprint string          `json:"fingerprint"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

// ToExportRecord converts a Record to its wire form.
func ToExportRecord(r *Record) ExportRecord {
	return ExportRecord{
		ID:          r.ID,
		Source:      r.Source,
		Text:        r.Text,
		Fingerprint: fmt.Sprintf("%016x", r.Fingerprint),
		Payload:     r.Payload,
	}
}

// FromExportRecord converts a wire record back to a Record. The near
// signature is not persisted in record files; callers needing it recompute
// it from the text under the current configuration.
func FromExportRecord(e ExportRecord) (*Record, error) {
	fp, err := strconv.ParseUint(e.Fingerprint, 16, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid fingerprint %q: %w", e.Fingerprint, err)
	}
	return &Record{
		ID:          e.ID,
		Source:      e.Source,
		Text:        e.Text,
		Fingerprint: fp,
		Payload:     e.Payload,
	}, nil
}
