package dedup

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/cespare/xxhash/v2"

	"github.com/corpusforge/corpus/internal/config"
	"github.com/corpusforge/corpus/internal/errors"
)

// Index is a locality-sensitive index over MinHash signatures. Each signature
// is partitioned into bands of rowsPerBand positions; a record is inserted
// into one bucket per band, so two records are candidate-similar iff they
// share at least one bucket. Candidates are a superset of true near
// duplicates and must be verified by signature agreement downstream.
//
// Insertion is incremental: a query sees exactly the records added before it,
// which is what makes first-occurrence-wins dedup deterministic.
//
// Not safe for concurrent use; callers serialize dedup decisions.
type Index struct {
	bands       int
	rowsPerBand int
	buckets     []map[uint64][]string // per-band: band hash -> record ids, insertion order
	signatures  map[string][]uint64
}

// NewIndex creates an empty index for signatures of length
// cfg.Bands * cfg.RowsPerBand.
func NewIndex(cfg config.DedupConfig) *Index {
	buckets := make([]map[uint64][]string, cfg.Bands)
	for i := range buckets {
		buckets[i] = make(map[uint64][]string)
	}
	return &Index{
		bands:       cfg.Bands,
		rowsPerBand: cfg.RowsPerBand,
		buckets:     buckets,
		signatures:  make(map[string][]uint64),
	}
}

// Add inserts a record's signature, occupying exactly one bucket per band.
// Sentinel (empty) signatures are rejected; callers exclude them from
// indexing. A signature whose length does not match the configured
// bands*rows is an INDEX_INCONSISTENT error: it means the signature was
// computed under a different configuration, and proceeding would silently
// degrade dedup guarantees.
func (x *Index) Add(id string, sig []uint64) error {
	if err := x.checkSignature(sig); err != nil {
		return err
	}

	x.signatures[id] = sig
	for band := 0; band < x.bands; band++ {
		key := x.hashBand(sig, band)
		x.buckets[band][key] = append(x.buckets[band][key], id)
	}
	return nil
}

// Candidates returns the ids of all records sharing at least one bucket with
// sig, in sorted order so downstream verification is order-stable.
func (x *Index) Candidates(sig []uint64) ([]string, error) {
	if err := x.checkSignature(sig); err != nil {
		return nil, err
	}

	set := make(map[string]struct{})
	for band := 0; band < x.bands; band++ {
		key := x.hashBand(sig, band)
		for _, id := range x.buckets[band][key] {
			set[id] = struct{}{}
		}
	}

	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Signature returns the stored signature for a record id.
func (x *Index) Signature(id string) ([]uint64, bool) {
	sig, ok := x.signatures[id]
	return sig, ok
}

// Len returns the number of indexed records.
func (x *Index) Len() int {
	return len(x.signatures)
}

func (x *Index) checkSignature(sig []uint64) error {
	expected := x.bands * x.rowsPerBand
	if len(sig) != expected {
		return errors.NewIndexInconsistent(fmt.Sprintf(
			"signature length %d does not match configured %d bands x %d rows = %d",
			len(sig), x.bands, x.rowsPerBand, expected))
	}
	return nil
}

// hashBand hashes the band's contiguous slice of the signature to a bucket key.
func (x *Index) hashBand(sig []uint64, band int) uint64 {
	start := band * x.rowsPerBand
	var d xxhash.Digest
	d.Reset()

	var b [8]byte
	for _, v := range sig[start : start+x.rowsPerBand] {
		binary.LittleEndian.PutUint64(b[:], v)
		_, _ = d.Write(b[:])
	}
	return d.Sum64()
}
