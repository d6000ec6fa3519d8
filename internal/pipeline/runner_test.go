package pipeline

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/corpusforge/corpus/internal/config"
	"github.com/corpusforge/corpus/internal/dataset"
	"github.com/corpusforge/corpus/internal/dedup"
	"github.com/corpusforge/corpus/internal/errors"
	"github.com/corpusforge/corpus/internal/record"
	"github.com/corpusforge/corpus/internal/snapshot"
)

func testConfig() *config.Config {
	return &config.Config{
		Dedup: config.DedupConfig{
			ShingleSize:         3,
			NumPermutations:     128,
			Bands:               32,
			RowsPerBand:         4,
			SimilarityThreshold: 0.8,
			MinTokens:           3,
		},
		Validation: config.ValidationConfig{
			MinRecords:        1,
			MaxDuplicateRatio: 0.99,
		},
	}
}

func testEnv(t *testing.T) (*sql.DB, *snapshot.Manager) {
	t.Helper()
	dir := t.TempDir()
	db, err := dataset.Init(dir)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	mgr, err := snapshot.NewManager(dir)
	require.NoError(t, err)
	return db, mgr
}

func input(source, text string) record.InputRecord {
	return record.InputRecord{Source: source, Text: text}
}

func longText(n int) string {
	tokens := make([]string, n)
	for i := range tokens {
		tokens[i] = fmt.Sprintf("word%d", i)
	}
	return strings.Join(tokens, " ")
}

func TestRunSealsSnapshot(t *testing.T) {
	db, mgr := testEnv(t)
	cfg := testConfig()
	ctx := context.Background()

	inputs := []record.InputRecord{
		input("so", "an answer about index selection in relational planners"),
		input("reddit", "a different answer about goroutine leak detection tooling"),
	}

	result, err := Run(ctx, db, mgr, cfg, inputs, Options{Description: "test batch"})
	require.NoError(t, err)
	require.Equal(t, 2, result.Candidates)
	require.Equal(t, 2, result.Dedup.Accepted)
	require.Equal(t, "", result.FailedStage)
	require.NotEmpty(t, result.RunID)

	require.NotNil(t, result.Snapshot)
	require.Equal(t, 1, result.Snapshot.Version)
	require.Equal(t, "test batch", result.Snapshot.Description)

	require.NotNil(t, result.Validation)
	require.True(t, result.Validation.Passed)

	// Not merged without AutoMerge.
	require.Nil(t, result.Merge)
	count, err := dataset.Count(db)
	require.NoError(t, err)
	require.Equal(t, 0, count)

	_, records, err := mgr.Load(1)
	require.NoError(t, err)
	require.Len(t, records, 2)
}

func TestRunOrdersBySource(t *testing.T) {
	db, mgr := testEnv(t)
	cfg := testConfig()

	inputs := []record.InputRecord{
		input("zeta", "answer from the later source about connection pooling"),
		input("alpha", "first answer from the earlier source about retry budgets"),
		input("alpha", "second answer from the earlier source about jitter strategy"),
	}

	result, err := Run(context.Background(), db, mgr, cfg, inputs, Options{})
	require.NoError(t, err)

	_, records, err := mgr.Load(result.Snapshot.Version)
	require.NoError(t, err)
	require.Len(t, records, 3)
	// Sources visited in sorted order, emission order preserved within each.
	require.Equal(t, "alpha", records[0].Source)
	require.Contains(t, records[0].Text, "first answer")
	require.Equal(t, "alpha", records[1].Source)
	require.Contains(t, records[1].Text, "second answer")
	require.Equal(t, "zeta", records[2].Source)
}

func TestRunDeduplicatesWithinBatch(t *testing.T) {
	db, mgr := testEnv(t)
	cfg := testConfig()

	text := longText(50)
	inputs := []record.InputRecord{
		input("so", text),
		input("reddit", text),
	}

	result, err := Run(context.Background(), db, mgr, cfg, inputs, Options{})
	require.NoError(t, err)
	require.Equal(t, 1, result.Dedup.Accepted)
	require.Equal(t, 1, result.Dedup.ExactRejects)
	require.Equal(t, 0.5, result.Ratio)
	require.Equal(t, 1, result.Snapshot.RecordCount)
}

func TestRunZeroAcceptedSealsNothing(t *testing.T) {
	db, mgr := testEnv(t)
	cfg := testConfig()
	ctx := context.Background()

	// The whole batch already lives in the cumulative dataset.
	text := longText(50)
	fp := dedup.NewFingerprinter(cfg.Dedup)
	exact, sig := fp.Fingerprint(text)
	existing := &record.Record{
		ID: record.ContentID(exact), Source: "so", Text: text,
		Fingerprint: exact, Signature: sig,
	}
	require.NoError(t, dataset.ApplyMerge(ctx, db, 1, []*record.Record{existing}, 0))

	result, err := Run(ctx, db, mgr, cfg, []record.InputRecord{input("so", text)}, Options{})
	require.NoError(t, err)
	require.Equal(t, 1, result.Dedup.ExactRejects)
	require.Equal(t, 0, result.Dedup.Accepted)
	require.Nil(t, result.Snapshot)

	versions, err := mgr.List()
	require.NoError(t, err)
	require.Empty(t, versions)
}

func TestRunDryRun(t *testing.T) {
	db, mgr := testEnv(t)
	cfg := testConfig()

	inputs := []record.InputRecord{input("so", longText(30))}

	result, err := Run(context.Background(), db, mgr, cfg, inputs, Options{DryRun: true})
	require.NoError(t, err)
	require.True(t, result.DryRun)
	require.NotNil(t, result.Snapshot)
	require.Equal(t, 1, result.Snapshot.Version)

	// Nothing persisted, no version consumed.
	versions, err := mgr.List()
	require.NoError(t, err)
	require.Empty(t, versions)

	again, err := Run(context.Background(), db, mgr, cfg, inputs, Options{DryRun: true})
	require.NoError(t, err)
	require.Equal(t, 1, again.Snapshot.Version)
}

func TestRunAutoMerge(t *testing.T) {
	db, mgr := testEnv(t)
	cfg := testConfig()

	inputs := []record.InputRecord{
		input("so", longText(30)),
		input("so", "a second unrelated answer about systemd unit dependency cycles"),
	}

	result, err := Run(context.Background(), db, mgr, cfg, inputs, Options{AutoMerge: true})
	require.NoError(t, err)
	require.NotNil(t, result.Merge)
	require.Equal(t, result.Snapshot.Version, result.Merge.Version)
	require.Equal(t, 2, result.Merge.Merged)

	count, err := dataset.Count(db)
	require.NoError(t, err)
	require.Equal(t, 2, count)

	merged, err := dataset.IsMerged(db, result.Snapshot.Version)
	require.NoError(t, err)
	require.True(t, merged)
}

func TestRunValidationFailure(t *testing.T) {
	db, mgr := testEnv(t)
	cfg := testConfig()
	cfg.Validation.MinRecords = 10

	inputs := []record.InputRecord{input("so", longText(30))}

	result, err := Run(context.Background(), db, mgr, cfg, inputs, Options{AutoMerge: true})
	require.True(t, errors.Is(err, errors.ErrValidationFailed), "got %v", err)
	require.Equal(t, "validation", result.FailedStage)
	require.NotNil(t, result.Validation)
	require.False(t, result.Validation.Passed)

	// The snapshot is sealed but not merged.
	versions, listErr := mgr.List()
	require.NoError(t, listErr)
	require.Len(t, versions, 1)
	count, countErr := dataset.Count(db)
	require.NoError(t, countErr)
	require.Equal(t, 0, count)
}

func TestRunValidationForce(t *testing.T) {
	db, mgr := testEnv(t)
	cfg := testConfig()
	cfg.Validation.MinRecords = 10

	inputs := []record.InputRecord{input("so", longText(30))}

	result, err := Run(context.Background(), db, mgr, cfg, inputs, Options{AutoMerge: true, Force: true})
	require.NoError(t, err)
	require.False(t, result.Validation.Passed)
	require.NotNil(t, result.Merge)

	count, err := dataset.Count(db)
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestRunSkipsBlankInputs(t *testing.T) {
	db, mgr := testEnv(t)
	cfg := testConfig()

	inputs := []record.InputRecord{
		input("so", longText(30)),
		input("", "text without a source label"),
		input("so", ""),
	}

	result, err := Run(context.Background(), db, mgr, cfg, inputs, Options{})
	require.NoError(t, err)
	require.Equal(t, 1, result.Dedup.Total)
	require.Len(t, result.SkippedInput, 2)
}

func TestRunCancelled(t *testing.T) {
	db, mgr := testEnv(t)
	cfg := testConfig()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Run(ctx, db, mgr, cfg, []record.InputRecord{input("so", longText(30))}, Options{})
	require.Error(t, err)
}
