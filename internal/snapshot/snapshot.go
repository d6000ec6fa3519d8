package snapshot

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/corpusforge/corpus/internal/record"
)

// RecordsFileName is the per-version records file.
const RecordsFileName = "records.jsonl"

// Snapshot is the metadata of one sealed, immutable pipeline output. A sealed
// snapshot's record set never changes; corrections require a new version.
type Snapshot struct {
	Version         int            `json:"version"`
	CreatedAt       time.Time      `json:"created_at"`
	Description     string         `json:"description,omitempty"`
	RecordCount     int            `json:"record_count"`
	SourceBreakdown map[string]int `json:"source_breakdown"`
	ParentVersion   int            `json:"parent_version,omitempty"`
	RecordsFile     string         `json:"records_file"`
}

// Label returns the directory label for the snapshot's version.
func (s *Snapshot) Label() string {
	return VersionLabel(s.Version)
}

// VersionLabel formats a version id as its directory label, e.g. v007.
func VersionLabel(version int) string {
	return fmt.Sprintf("v%03d", version)
}

// ParseVersion parses either a bare number ("7") or a label ("v007").
func ParseVersion(s string) (int, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(s), "v")
	v, err := strconv.Atoi(trimmed)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("invalid version %q", s)
	}
	return v, nil
}

// Breakdown counts records per source label.
func Breakdown(records []*record.Record) map[string]int {
	counts := make(map[string]int)
	for _, r := range records {
		counts[r.Source]++
	}
	return counts
}
