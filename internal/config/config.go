package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DedupConfig holds the tunable deduplication parameters. The band/row split
// controls the precision/recall trade-off: more rows per band means fewer
// false positives but more false negatives.
type DedupConfig struct {
	// ShingleSize is the token n-gram window used for similarity estimation.
	ShingleSize int `yaml:"shingle_size"`

	// NumPermutations is the MinHash signature length. Must equal Bands*RowsPerBand.
	NumPermutations int `yaml:"minhash_num_perm"`

	// Bands is the number of LSH bands each signature is partitioned into.
	Bands int `yaml:"lsh_bands"`

	// RowsPerBand is the number of signature positions per band.
	RowsPerBand int `yaml:"lsh_rows_per_band"`

	// SimilarityThreshold is the estimated Jaccard similarity at or above
	// which a candidate is rejected as a near-duplicate.
	SimilarityThreshold float64 `yaml:"similarity_threshold"`

	// MinTokens is the minimum normalized token count for a record to be
	// eligible for near-duplicate indexing. Shorter records still get an
	// exact fingerprint.
	MinTokens int `yaml:"min_signature_tokens"`
}

// ValidationConfig holds thresholds consumed by the validator.
type ValidationConfig struct {
	// MinRecords is the minimum accepted record count for a snapshot to pass.
	MinRecords int `yaml:"min_records"`

	// MaxDuplicateRatio fails the run when more than this fraction of
	// candidates were rejected as duplicates.
	MaxDuplicateRatio float64 `yaml:"max_duplicate_ratio"`

	// MinAvgTextLength and MaxAvgTextLength bound the average answer length
	// in characters.
	MinAvgTextLength int `yaml:"min_avg_text_length"`
	MaxAvgTextLength int `yaml:"max_avg_text_length"`
}

// Config holds application configuration.
type Config struct {
	// BaseDir is the pipeline state directory (snapshot versions, dataset
	// database). Defaults to ~/.corpus.
	BaseDir string `yaml:"base_dir"`

	// TrainingPath is the destination for exported training data (train.jsonl).
	TrainingPath string `yaml:"training_data_path"`

	Dedup      DedupConfig      `yaml:"dedup"`
	Validation ValidationConfig `yaml:"validation"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Dedup: DedupConfig{
			ShingleSize:         5,
			NumPermutations:     128,
			Bands:               32,
			RowsPerBand:         4,
			SimilarityThreshold: 0.8,
			MinTokens:           10,
		},
		Validation: ValidationConfig{
			MinRecords:        10,
			MaxDuplicateRatio: 0.95,
			MinAvgTextLength:  200,
			MaxAvgTextLength:  5000,
		},
	}
}

// Load loads configuration from path. Returns the default configuration when
// path is empty or the file does not exist. BaseDir falls back to ~/.corpus.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		} else {
			overlay := &Config{}
			if err := yaml.Unmarshal(data, overlay); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
			cfg = Merge(cfg, overlay)
		}
	}

	if cfg.BaseDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("could not determine home directory: %w", err)
		}
		cfg.BaseDir = filepath.Join(homeDir, ".corpus")
	}

	return cfg, cfg.Validate()
}

// Merge combines base and overlay configs. Overlay values win when non-zero.
func Merge(base, overlay *Config) *Config {
	result := *base

	if overlay.BaseDir != "" {
		result.BaseDir = overlay.BaseDir
	}
	if overlay.TrainingPath != "" {
		result.TrainingPath = overlay.TrainingPath
	}

	d := &result.Dedup
	o := overlay.Dedup
	if o.ShingleSize > 0 {
		d.ShingleSize = o.ShingleSize
	}
	if o.NumPermutations > 0 {
		d.NumPermutations = o.NumPermutations
	}
	if o.Bands > 0 {
		d.Bands = o.Bands
	}
	if o.RowsPerBand > 0 {
		d.RowsPerBand = o.RowsPerBand
	}
	if o.SimilarityThreshold > 0 {
		d.SimilarityThreshold = o.SimilarityThreshold
	}
	if o.MinTokens > 0 {
		d.MinTokens = o.MinTokens
	}

	v := &result.Validation
	ov := overlay.Validation
	if ov.MinRecords > 0 {
		v.MinRecords = ov.MinRecords
	}
	if ov.MaxDuplicateRatio > 0 {
		v.MaxDuplicateRatio = ov.MaxDuplicateRatio
	}
	if ov.MinAvgTextLength > 0 {
		v.MinAvgTextLength = ov.MinAvgTextLength
	}
	if ov.MaxAvgTextLength > 0 {
		v.MaxAvgTextLength = ov.MaxAvgTextLength
	}

	return &result
}

// Validate checks internal consistency of the dedup parameters.
func (c *Config) Validate() error {
	d := c.Dedup
	if d.ShingleSize <= 0 {
		return fmt.Errorf("shingle_size must be positive, got %d", d.ShingleSize)
	}
	if d.NumPermutations <= 0 {
		return fmt.Errorf("minhash_num_perm must be positive, got %d", d.NumPermutations)
	}
	if d.Bands <= 0 || d.RowsPerBand <= 0 {
		return fmt.Errorf("lsh_bands and lsh_rows_per_band must be positive, got %d and %d", d.Bands, d.RowsPerBand)
	}
	if d.Bands*d.RowsPerBand != d.NumPermutations {
		return fmt.Errorf("lsh_bands * lsh_rows_per_band must equal minhash_num_perm: %d * %d != %d",
			d.Bands, d.RowsPerBand, d.NumPermutations)
	}
	if d.SimilarityThreshold <= 0 || d.SimilarityThreshold > 1 {
		return fmt.Errorf("similarity_threshold must be in (0, 1], got %g", d.SimilarityThreshold)
	}
	return nil
}
