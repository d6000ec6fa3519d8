package dedup

import (
	"github.com/cespare/xxhash/v2"

	"github.com/corpusforge/corpus/internal/config"
	"github.com/corpusforge/corpus/internal/record"
)

// baseSeed anchors the MinHash permutation seeds. Fixed so that signatures
// are reproducible across runs and comparable across the history and the
// current batch.
const baseSeed uint64 = 0x6c7e_6f72_6567_7573

// Fingerprinter computes the exact fingerprint and near signature for record
// text. Pure function of the input text and the configured parameters; safe
// for concurrent use.
type Fingerprinter struct {
	shingleSize int
	minTokens   int
	seeds       []uint64
}

// NewFingerprinter creates a fingerprinter with deterministic permutation
// seeds derived from cfg.NumPermutations.
func NewFingerprinter(cfg config.DedupConfig) *Fingerprinter {
	seeds := make([]uint64, cfg.NumPermutations)
	for i := range seeds {
		seeds[i] = splitmix64(baseSeed + uint64(i))
	}

	minTokens := cfg.MinTokens
	if minTokens < cfg.ShingleSize {
		minTokens = cfg.ShingleSize
	}

	return &Fingerprinter{
		shingleSize: cfg.ShingleSize,
		minTokens:   minTokens,
		seeds:       seeds,
	}
}

// Fingerprint normalizes text and returns its exact fingerprint and MinHash
// signature. The signature is nil (sentinel) when the normalized text has
// fewer tokens than the configured minimum; such records are excluded from
// near-duplicate indexing but still carry an exact fingerprint.
func (f *Fingerprinter) Fingerprint(text string) (uint64, []uint64) {
	normalized := record.Normalize(text)
	exact := xxhash.Sum64String(normalized)

	tokens := record.Tokens(normalized)
	if len(tokens) < f.minTokens {
		return exact, nil
	}

	shingles := record.ShingleHashes(tokens, f.shingleSize)
	if len(shingles) == 0 {
		return exact, nil
	}

	return exact, f.minhash(shingles)
}

// minhash computes, for each seeded permutation, the minimum mixed hash over
// the shingle set. The agreement rate between two signatures estimates the
// Jaccard similarity of the underlying shingle sets.
func (f *Fingerprinter) minhash(shingles []uint64) []uint64 {
	sig := make([]uint64, len(f.seeds))
	for i := range sig {
		sig[i] = ^uint64(0)
	}

	for _, h := range shingles {
		for i, seed := range f.seeds {
			mixed := splitmix64(h ^ seed)
			if mixed < sig[i] {
				sig[i] = mixed
			}
		}
	}

	return sig
}

// EstimateJaccard returns the fraction of signature positions on which the
// two signatures agree, an unbiased estimate of Jaccard similarity. Returns 0
// when either signature is sentinel or the lengths differ.
func EstimateJaccard(a, b []uint64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	matches := 0
	for i := range a {
		if a[i] == b[i] {
			matches++
		}
	}
	return float64(matches) / float64(len(a))
}

// splitmix64 is the SplitMix64 finalizer, used both to derive permutation
// seeds and to mix shingle hashes per permutation.
func splitmix64(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}
