package snapshot

import (
	"bufio"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/corpusforge/corpus/internal/errors"
	"github.com/corpusforge/corpus/internal/record"
)

// Manager allocates version ids and persists immutable snapshot directories
// under <base>/versions/vNNN. Snapshots are written to a temporary directory
// and renamed into place, so a partially written snapshot is never visible
// and an interrupted run can retry at the same version id.
type Manager struct {
	baseDir      string
	versionsDir  string
	manifestPath string
}

// SealOptions carries optional snapshot metadata.
type SealOptions struct {
	Description string
}

// NewManager creates a manager rooted at baseDir, creating the versions
// directory if needed.
func NewManager(baseDir string) (*Manager, error) {
	versionsDir := filepath.Join(baseDir, "versions")
	if err := os.MkdirAll(versionsDir, 0700); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to create versions directory: %w", err))
	}
	return &Manager{
		baseDir:      baseDir,
		versionsDir:  versionsDir,
		manifestPath: filepath.Join(baseDir, "manifest.json"),
	}, nil
}

// Seal assigns the next version id to the accepted records and durably
// persists them. Fails with VERSION_CONFLICT if the version directory already
// exists; never overwrites.
func (mgr *Manager) Seal(records []*record.Record, opts SealOptions) (*Snapshot, error) {
	man, err := mgr.loadManifest()
	if err != nil {
		return nil, err
	}

	version, err := mgr.nextVersion(man)
	if err != nil {
		return nil, err
	}

	finalDir := filepath.Join(mgr.versionsDir, VersionLabel(version))
	if _, err := os.Stat(finalDir); err == nil {
		return nil, errors.NewVersionConflict(version)
	}

	snap := mgr.describe(version, man.Current, records, opts)

	if err := mgr.writeVersionDir(snap, records, finalDir); err != nil {
		return nil, err
	}

	man.Versions = append(man.Versions, snap)
	man.Current = version
	if err := mgr.saveManifest(man); err != nil {
		return nil, err
	}

	return snap, nil
}

// DryRun computes the would-be snapshot without allocating a version id or
// writing anything. Running it twice must not consume version numbers.
func (mgr *Manager) DryRun(records []*record.Record, opts SealOptions) (*Snapshot, error) {
	man, err := mgr.loadManifest()
	if err != nil {
		return nil, err
	}
	version, err := mgr.nextVersion(man)
	if err != nil {
		return nil, err
	}
	return mgr.describe(version, man.Current, records, opts), nil
}

// describe builds the snapshot metadata for a record set.
func (mgr *Manager) describe(version, parent int, records []*record.Record, opts SealOptions) *Snapshot {
	return &Snapshot{
		Version:         version,
		CreatedAt:       time.Now().UTC(),
		Description:     opts.Description,
		RecordCount:     len(records),
		SourceBreakdown: Breakdown(records),
		ParentVersion:   parent,
		RecordsFile:     RecordsFileName,
	}
}

// writeVersionDir persists records.jsonl and version_info.json into a temp
// directory and renames it to finalDir. On any failure the temp directory is
// removed and nothing is visible at finalDir.
func (mgr *Manager) writeVersionDir(snap *Snapshot, records []*record.Record, finalDir string) error {
	randBytes := make([]byte, 8)
	if _, err := rand.Read(randBytes); err != nil {
		return errors.NewInternal(err)
	}
	tmpDir := filepath.Join(mgr.versionsDir, ".tmp-"+snap.Label()+"-"+hex.EncodeToString(randBytes))

	if err := os.MkdirAll(tmpDir, 0700); err != nil {
		return errors.NewVersionWriteFailed(snap.Version, err)
	}

	success := false
	defer func() {
		if !success {
			os.RemoveAll(tmpDir)
		}
	}()

	if err := writeRecordsFile(filepath.Join(tmpDir, snap.RecordsFile), records); err != nil {
		return errors.NewVersionWriteFailed(snap.Version, err)
	}

	meta, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return errors.NewInternal(err)
	}
	if err := writeFileAtomic(filepath.Join(tmpDir, "version_info.json"), append(meta, '\n')); err != nil {
		return errors.NewVersionWriteFailed(snap.Version, err)
	}

	if err := os.Rename(tmpDir, finalDir); err != nil {
		return errors.NewVersionWriteFailed(snap.Version, err)
	}
	success = true
	return nil
}

// writeRecordsFile writes one export record per line and fsyncs before close.
func writeRecordsFile(path string, records []*record.Record) error {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0600)
	if err != nil {
		return err
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	for _, r := range records {
		line, err := json.Marshal(record.ToExportRecord(r))
		if err != nil {
			return err
		}
		if _, err := w.Write(line); err != nil {
			return err
		}
		if err := w.WriteByte('\n'); err != nil {
			return err
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return file.Sync()
}

// LoadMeta reads a version's metadata.
func (mgr *Manager) LoadMeta(version int) (*Snapshot, error) {
	path := filepath.Join(mgr.versionsDir, VersionLabel(version), "version_info.json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFound(VersionLabel(version))
		}
		return nil, errors.NewInternal(err)
	}
	snap := &Snapshot{}
	if err := json.Unmarshal(data, snap); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("corrupt version_info for %s: %w", VersionLabel(version), err))
	}
	return snap, nil
}

// Load reads a version's metadata and records.
func (mgr *Manager) Load(version int) (*Snapshot, []*record.Record, error) {
	snap, err := mgr.LoadMeta(version)
	if err != nil {
		return nil, nil, err
	}

	path := filepath.Join(mgr.versionsDir, snap.Label(), snap.RecordsFile)
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, errors.NewInternal(err)
	}
	defer file.Close()

	var records []*record.Record
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var exp record.ExportRecord
		if err := json.Unmarshal(line, &exp); err != nil {
			return nil, nil, errors.NewInternal(fmt.Errorf("corrupt record in %s: %w", snap.Label(), err))
		}
		rec, err := record.FromExportRecord(exp)
		if err != nil {
			return nil, nil, errors.NewInternal(err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, errors.NewInternal(err)
	}

	return snap, records, nil
}

// List returns all versions in manifest (merge) order.
func (mgr *Manager) List() ([]*Snapshot, error) {
	man, err := mgr.loadManifest()
	if err != nil {
		return nil, err
	}
	return man.Versions, nil
}

// Current returns the current version id, 0 when none.
func (mgr *Manager) Current() (int, error) {
	man, err := mgr.loadManifest()
	if err != nil {
		return 0, err
	}
	return man.Current, nil
}

// Rollback points the manifest's current version at an earlier snapshot.
// The snapshot itself is untouched; rollback is a manifest-level operation.
func (mgr *Manager) Rollback(version int) error {
	man, err := mgr.loadManifest()
	if err != nil {
		return err
	}
	if man.find(version) == nil {
		return errors.NewNotFound(VersionLabel(version))
	}
	man.Current = version
	return mgr.saveManifest(man)
}

// Delete removes a non-current version directory and its manifest entry.
func (mgr *Manager) Delete(version int) error {
	man, err := mgr.loadManifest()
	if err != nil {
		return err
	}
	if man.find(version) == nil {
		return errors.NewNotFound(VersionLabel(version))
	}
	if man.Current == version {
		return errors.NewInvalidInput("cannot delete the current version; rollback first")
	}

	if err := os.RemoveAll(filepath.Join(mgr.versionsDir, VersionLabel(version))); err != nil {
		return errors.NewInternal(err)
	}

	kept := man.Versions[:0]
	for _, s := range man.Versions {
		if s.Version != version {
			kept = append(kept, s)
		}
	}
	man.Versions = kept
	return mgr.saveManifest(man)
}

// DiffResult compares two versions.
type DiffResult struct {
	VersionA       string   `json:"version_a"`
	VersionB       string   `json:"version_b"`
	RecordsA       int      `json:"records_a"`
	RecordsB       int      `json:"records_b"`
	Delta          int      `json:"delta"`
	NewSources     []string `json:"new_sources"`
	RemovedSources []string `json:"removed_sources"`
}

// Diff compares record counts and source sets of two versions.
func (mgr *Manager) Diff(a, b int) (*DiffResult, error) {
	metaA, err := mgr.LoadMeta(a)
	if err != nil {
		return nil, err
	}
	metaB, err := mgr.LoadMeta(b)
	if err != nil {
		return nil, err
	}

	return &DiffResult{
		VersionA:       metaA.Label(),
		VersionB:       metaB.Label(),
		RecordsA:       metaA.RecordCount,
		RecordsB:       metaB.RecordCount,
		Delta:          metaB.RecordCount - metaA.RecordCount,
		NewSources:     sourceDiff(metaB.SourceBreakdown, metaA.SourceBreakdown),
		RemovedSources: sourceDiff(metaA.SourceBreakdown, metaB.SourceBreakdown),
	}, nil
}

// sourceDiff returns sources in a but not in b, sorted.
func sourceDiff(a, b map[string]int) []string {
	diff := []string{}
	for src := range a {
		if _, ok := b[src]; !ok {
			diff = append(diff, src)
		}
	}
	sort.Strings(diff)
	return diff
}
