package dataset

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"github.com/corpusforge/corpus/internal/config"
	"github.com/corpusforge/corpus/internal/dedup"
	"github.com/corpusforge/corpus/internal/errors"
	"github.com/corpusforge/corpus/internal/record"
)

// MergeLogEntry is one row of the merge log, in merge order.
type MergeLogEntry struct {
	Version         int       `json:"version"`
	MergedAt        time.Time `json:"merged_at"`
	NewRecords      int       `json:"new_records"`
	RejectedRecords int       `json:"rejected_records"`
}

// IsMerged reports whether a snapshot version already appears in the merge
// log. Consulted before any merge decision.
func IsMerged(db *sql.DB, version int) (bool, error) {
	var n int
	err := db.QueryRow("SELECT COUNT(*) FROM merged_versions WHERE version = ?", version).Scan(&n)
	if err != nil {
		return false, errors.NewInternal(err)
	}
	return n > 0, nil
}

// MergeLog returns all merged versions in merge order.
func MergeLog(db *sql.DB) ([]MergeLogEntry, error) {
	rows, err := db.Query("SELECT version, merged_at, new_records, rejected_records FROM merged_versions ORDER BY merged_at, version")
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	var log []MergeLogEntry
	for rows.Next() {
		var e MergeLogEntry
		var mergedAt int64
		if err := rows.Scan(&e.Version, &mergedAt, &e.NewRecords, &e.RejectedRecords); err != nil {
			return nil, errors.NewInternal(err)
		}
		e.MergedAt = time.Unix(mergedAt, 0).UTC()
		log = append(log, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return log, nil
}

// LoadHistory streams the cumulative dataset's fingerprints and signatures
// into a fresh exact-fingerprint set and LSH index for a new dedup pass.
// Signatures persisted under a different configuration surface as a fatal
// INDEX_INCONSISTENT error.
func LoadHistory(ctx context.Context, db *sql.DB, cfg config.DedupConfig) (map[uint64]string, *dedup.Index, error) {
	exact := make(map[uint64]string)
	index := dedup.NewIndex(cfg)

	rows, err := db.QueryContext(ctx, "SELECT id, fingerprint, signature FROM records ORDER BY rowid")
	if err != nil {
		return nil, nil, errors.NewInternal(err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var fp int64
		var sigBlob []byte
		if err := rows.Scan(&id, &fp, &sigBlob); err != nil {
			return nil, nil, errors.NewInternal(err)
		}

		exact[uint64(fp)] = id
		if len(sigBlob) == 0 {
			continue // sentinel: excluded from near-duplicate indexing
		}
		if err := index.Add(id, decodeSignature(sigBlob)); err != nil {
			return nil, nil, err
		}
	}
	if err := rows.Err(); err != nil {
		return nil, nil, errors.NewInternal(err)
	}

	return exact, index, nil
}

// ApplyMerge appends the surviving records and logs the merged version in a
// single transaction. The version is logged even when no records survive, so
// a snapshot that contributes nothing is still marked consumed.
func ApplyMerge(ctx context.Context, db *sql.DB, version int, records []*record.Record, rejected int) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewInternal(err)
	}
	defer tx.Rollback()

	now := time.Now().Unix()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO records (id, source, text, payload, fingerprint, signature, merged_version, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return errors.NewInternal(err)
	}
	defer stmt.Close()

	for _, r := range records {
		var payload any
		if len(r.Payload) > 0 {
			payload = string(r.Payload)
		}
		_, err := stmt.ExecContext(ctx, r.ID, r.Source, r.Text, payload,
			int64(r.Fingerprint), encodeSignature(r.Signature), version, now)
		if err != nil {
			return errors.NewInternal(fmt.Errorf("failed to append record %s: %w", r.ID, err))
		}
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO merged_versions (version, merged_at, new_records, rejected_records) VALUES (?, ?, ?, ?)",
		version, now, len(records), rejected)
	if err != nil {
		return errors.NewInternal(fmt.Errorf("failed to log merge of v%03d: %w", version, err))
	}

	if err := tx.Commit(); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// Count returns the total number of records in the cumulative dataset.
func Count(db *sql.DB) (int, error) {
	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM records").Scan(&n); err != nil {
		return 0, errors.NewInternal(err)
	}
	return n, nil
}

// SourceCounts returns the per-source record breakdown of the dataset.
func SourceCounts(db *sql.DB) (map[string]int, error) {
	rows, err := db.Query("SELECT source, COUNT(*) FROM records GROUP BY source")
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var source string
		var n int
		if err := rows.Scan(&source, &n); err != nil {
			return nil, errors.NewInternal(err)
		}
		counts[source] = n
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return counts, nil
}

// encodeSignature packs a signature as little-endian uint64s. Returns nil for
// sentinel signatures, stored as NULL.
func encodeSignature(sig []uint64) []byte {
	if len(sig) == 0 {
		return nil
	}
	buf := make([]byte, 8*len(sig))
	for i, v := range sig {
		binary.LittleEndian.PutUint64(buf[i*8:], v)
	}
	return buf
}

// decodeSignature unpacks an encoded signature.
func decodeSignature(buf []byte) []uint64 {
	sig := make([]uint64, len(buf)/8)
	for i := range sig {
		sig[i] = binary.LittleEndian.Uint64(buf[i*8:])
	}
	return sig
}

// scanRecord reads one record row, shared by streaming readers.
func scanRecord(rows *sql.Rows) (*record.Record, error) {
	var r record.Record
	var fp int64
	var payload sql.NullString
	var sigBlob []byte
	if err := rows.Scan(&r.ID, &r.Source, &r.Text, &payload, &fp, &sigBlob); err != nil {
		return nil, err
	}
	r.Fingerprint = uint64(fp)
	r.Signature = decodeSignature(sigBlob)
	if payload.Valid {
		r.Payload = json.RawMessage(payload.String)
	}
	return &r, nil
}
