package dataset

import (
	"bufio"
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/corpusforge/corpus/internal/errors"
	"github.com/corpusforge/corpus/internal/record"
)

// ExportTrainingOutput contains the result of a training export.
type ExportTrainingOutput struct {
	Path  string `json:"path"`
	Count int    `json:"count"`
}

// ExportTraining writes the cumulative dataset as a JSONL training file, one
// record per line in dataset order. The file is written to a temporary
// sibling and renamed into place, preserving any existing file on failure.
func ExportTraining(ctx context.Context, db *sql.DB, path string) (*ExportTrainingOutput, error) {
	if path == "" {
		return nil, errors.NewInvalidInput("training export path is required")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to create export directory: %w", err))
	}

	randBytes := make([]byte, 8)
	if _, err := rand.Read(randBytes); err != nil {
		return nil, errors.NewInternal(err)
	}
	tempPath := path + "." + hex.EncodeToString(randBytes) + ".tmp"

	file, err := os.OpenFile(tempPath, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0600)
	if err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to create export file: %w", err))
	}

	success := false
	defer func() {
		if file != nil {
			file.Close()
		}
		if !success {
			os.Remove(tempPath)
		}
	}()

	rows, err := db.QueryContext(ctx,
		"SELECT id, source, text, payload, fingerprint, signature FROM records ORDER BY rowid")
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	w := bufio.NewWriter(file)
	count := 0
	for rows.Next() {
		select {
		case <-ctx.Done():
			return nil, errors.NewCancelled("export")
		default:
		}

		r, err := scanRecord(rows)
		if err != nil {
			return nil, errors.NewInternal(err)
		}

		line, err := json.Marshal(record.ToExportRecord(r))
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		if _, err := w.Write(line); err != nil {
			return nil, errors.NewInternal(err)
		}
		if err := w.WriteByte('\n'); err != nil {
			return nil, errors.NewInternal(err)
		}
		count++
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}

	if err := w.Flush(); err != nil {
		return nil, errors.NewInternal(err)
	}
	if err := file.Sync(); err != nil {
		return nil, errors.NewInternal(err)
	}
	if err := file.Close(); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to close export file: %w", err))
	}
	file = nil

	if err := os.Rename(tempPath, path); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to finalize export: %w", err))
	}

	success = true
	return &ExportTrainingOutput{Path: path, Count: count}, nil
}
