package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/corpusforge/corpus/internal/errors"
)

// Manifest tracks all sealed versions and the current one. Persisted at
// <base>/manifest.json; always rewritten atomically.
type Manifest struct {
	Versions []*Snapshot `json:"versions"`
	Current  int         `json:"current,omitempty"`
}

// find returns the manifest entry for a version, or nil.
func (m *Manifest) find(version int) *Snapshot {
	for _, s := range m.Versions {
		if s.Version == version {
			return s
		}
	}
	return nil
}

// loadManifest reads the manifest, returning an empty one when the file does
// not exist yet.
func (mgr *Manager) loadManifest() (*Manifest, error) {
	data, err := os.ReadFile(mgr.manifestPath)
	if err != nil {
		if os.IsNotExist(err) {
			return &Manifest{}, nil
		}
		return nil, errors.NewInternal(fmt.Errorf("failed to read manifest: %w", err))
	}

	man := &Manifest{}
	if err := json.Unmarshal(data, man); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to parse manifest: %w", err))
	}
	return man, nil
}

// saveManifest rewrites the manifest atomically.
func (mgr *Manager) saveManifest(man *Manifest) error {
	data, err := json.MarshalIndent(man, "", "  ")
	if err != nil {
		return errors.NewInternal(err)
	}
	if err := writeFileAtomic(mgr.manifestPath, append(data, '\n')); err != nil {
		return errors.NewInternal(fmt.Errorf("failed to write manifest: %w", err))
	}
	return nil
}

// nextVersion allocates the next version id: one past the highest version
// recorded in the manifest or present on disk. Scanning the directory as well
// guards against a manifest left stale by a crash after a snapshot rename.
func (mgr *Manager) nextVersion(man *Manifest) (int, error) {
	max := 0
	for _, s := range man.Versions {
		if s.Version > max {
			max = s.Version
		}
	}

	entries, err := os.ReadDir(mgr.versionsDir)
	if err != nil && !os.IsNotExist(err) {
		return 0, errors.NewInternal(fmt.Errorf("failed to scan versions directory: %w", err))
	}
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), "v") {
			continue
		}
		v, perr := ParseVersion(e.Name())
		if perr != nil {
			continue
		}
		if v > max {
			max = v
		}
	}

	return max + 1, nil
}

// writeFileAtomic writes data to path via a temp file in the same directory,
// fsyncs, then renames into place. Either the full file is durably visible or
// the previous state is preserved.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}

	success := false
	defer func() {
		if !success {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return err
	}
	success = true
	return nil
}
