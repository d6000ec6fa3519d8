package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BaseDir = "/tmp/corpus-test"
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
	if cfg.Dedup.Bands*cfg.Dedup.RowsPerBand != cfg.Dedup.NumPermutations {
		t.Error("default band layout does not cover the signature")
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Dedup.NumPermutations != 128 {
		t.Errorf("NumPermutations = %d, want default 128", cfg.Dedup.NumPermutations)
	}
	if cfg.BaseDir == "" {
		t.Error("BaseDir not defaulted")
	}
}

func TestLoadOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
base_dir: ` + dir + `
dedup:
  similarity_threshold: 0.9
  minhash_num_perm: 64
  lsh_bands: 16
  lsh_rows_per_band: 4
validation:
  min_records: 3
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BaseDir != dir {
		t.Errorf("BaseDir = %q", cfg.BaseDir)
	}
	if cfg.Dedup.SimilarityThreshold != 0.9 {
		t.Errorf("SimilarityThreshold = %v", cfg.Dedup.SimilarityThreshold)
	}
	if cfg.Dedup.NumPermutations != 64 || cfg.Dedup.Bands != 16 {
		t.Errorf("dedup overlay not applied: %+v", cfg.Dedup)
	}
	// Untouched keys keep defaults.
	if cfg.Dedup.ShingleSize != 5 {
		t.Errorf("ShingleSize = %d, want default 5", cfg.Dedup.ShingleSize)
	}
	if cfg.Validation.MinRecords != 3 {
		t.Errorf("MinRecords = %d", cfg.Validation.MinRecords)
	}
}

func TestLoadRejectsInconsistentBandLayout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
dedup:
  lsh_bands: 10
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	// 10 bands * 4 rows != 128 permutations.
	if _, err := Load(path); err == nil {
		t.Error("expected error for inconsistent band layout")
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("{{not yaml"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected error for malformed yaml")
	}
}

func TestValidateThreshold(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Dedup.SimilarityThreshold = 1.5
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for threshold > 1")
	}
	cfg.Dedup.SimilarityThreshold = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for threshold 0")
	}
}

func TestMergeOverlayPrecedence(t *testing.T) {
	base := DefaultConfig()
	overlay := &Config{TrainingPath: "/data/train.jsonl"}
	overlay.Dedup.MinTokens = 20

	merged := Merge(base, overlay)
	if merged.TrainingPath != "/data/train.jsonl" {
		t.Errorf("TrainingPath = %q", merged.TrainingPath)
	}
	if merged.Dedup.MinTokens != 20 {
		t.Errorf("MinTokens = %d", merged.Dedup.MinTokens)
	}
	if merged.Dedup.NumPermutations != base.Dedup.NumPermutations {
		t.Error("zero overlay value clobbered base")
	}
	// Base untouched.
	if base.TrainingPath != "" {
		t.Error("Merge mutated base config")
	}
}
