package main

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/corpusforge/corpus/internal/config"
	"github.com/corpusforge/corpus/internal/dataset"
	"github.com/corpusforge/corpus/internal/dedup"
	"github.com/corpusforge/corpus/internal/errors"
	"github.com/corpusforge/corpus/internal/merge"
	"github.com/corpusforge/corpus/internal/pipeline"
	"github.com/corpusforge/corpus/internal/snapshot"
	"github.com/corpusforge/corpus/internal/validate"
)

// newCLIApp creates the CLI application with all commands.
func newCLIApp(db *sql.DB, mgr *snapshot.Manager, cfg *config.Config) *cli.App {
	app := &cli.App{
		Name:    "corpus",
		Usage:   "Deduplicated, versioned training corpus pipeline",
		Version: Version,
		Commands: []*cli.Command{
			processCmd(db, mgr, cfg),
			mergeCmd(db, mgr, cfg),
			versionsCmd(mgr),
			statusCmd(db, mgr),
			diffCmd(mgr),
			rollbackCmd(mgr),
			deleteVersionCmd(mgr),
			exportCmd(db, cfg),
			validateCmd(mgr, cfg),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// processCmd runs the dedup pipeline over a candidate batch.
func processCmd(db *sql.DB, mgr *snapshot.Manager, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "process",
		Usage: "Deduplicate a candidate batch and seal a snapshot (reads JSONL from --input or stdin)",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "input", Aliases: []string{"i"}, Usage: "Candidate JSONL file (default: stdin)"},
			&cli.StringFlag{Name: "description", Aliases: []string{"d"}, Usage: "Snapshot description"},
			&cli.BoolFlag{Name: "dry-run", Usage: "Compute statistics without persisting a snapshot"},
			&cli.BoolFlag{Name: "auto-merge", Usage: "Merge the snapshot into the dataset when validation passes"},
			&cli.BoolFlag{Name: "skip-validation", Usage: "Skip the validation gate"},
			&cli.BoolFlag{Name: "force", Usage: "Proceed despite validation failure"},
		},
		Action: func(c *cli.Context) error {
			in := os.Stdin
			if path := c.String("input"); path != "" {
				file, err := os.Open(path)
				if err != nil {
					return outputError(errors.NewInvalidInput(fmt.Sprintf("cannot open input: %v", err)))
				}
				defer file.Close()
				in = file
			}

			inputs, skipped, err := pipeline.ReadCandidates(in)
			if err != nil {
				return outputError(errors.NewInternal(err))
			}

			opts := pipeline.Options{
				DryRun:         c.Bool("dry-run"),
				AutoMerge:      c.Bool("auto-merge"),
				SkipValidation: c.Bool("skip-validation"),
				Force:          c.Bool("force"),
				Description:    c.String("description"),
			}

			result, err := pipeline.Run(c.Context, db, mgr, cfg, inputs, opts)
			if result != nil {
				result.SkippedInput = append(skipped, result.SkippedInput...)
			}
			if err != nil {
				// Report the statistics gathered up to the failed stage.
				_ = outputJSON(result)
				return outputError(err)
			}

			return outputJSON(result)
		},
	}
}

// mergeCmd merges a sealed snapshot into the cumulative dataset.
func mergeCmd(db *sql.DB, mgr *snapshot.Manager, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:      "merge",
		Usage:     "Merge a snapshot version into the cumulative dataset",
		ArgsUsage: "<version>",
		Action: func(c *cli.Context) error {
			version, err := versionArg(c, mgr)
			if err != nil {
				return outputError(err)
			}

			_, records, err := mgr.Load(version)
			if err != nil {
				return outputError(err)
			}

			result, err := merge.Merge(c.Context, db, cfg.Dedup, version, records)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(result)
		},
	}
}

// versionsCmd lists sealed snapshot versions.
func versionsCmd(mgr *snapshot.Manager) *cli.Command {
	return &cli.Command{
		Name:  "versions",
		Usage: "List snapshot versions",
		Action: func(c *cli.Context) error {
			versions, err := mgr.List()
			if err != nil {
				return outputError(err)
			}
			current, err := mgr.Current()
			if err != nil {
				return outputError(err)
			}
			return outputJSON(map[string]any{
				"versions": versions,
				"current":  current,
			})
		},
	}
}

// statusCmd reports the state of the cumulative dataset and merge log.
func statusCmd(db *sql.DB, mgr *snapshot.Manager) *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show cumulative dataset and merge log status",
		Action: func(c *cli.Context) error {
			count, err := dataset.Count(db)
			if err != nil {
				return outputError(err)
			}
			sources, err := dataset.SourceCounts(db)
			if err != nil {
				return outputError(err)
			}
			log, err := dataset.MergeLog(db)
			if err != nil {
				return outputError(err)
			}
			current, err := mgr.Current()
			if err != nil {
				return outputError(err)
			}
			return outputJSON(map[string]any{
				"record_count":    count,
				"sources":         sources,
				"merge_log":       log,
				"current_version": current,
			})
		},
	}
}

// diffCmd compares two snapshot versions.
func diffCmd(mgr *snapshot.Manager) *cli.Command {
	return &cli.Command{
		Name:      "diff",
		Usage:     "Compare two snapshot versions",
		ArgsUsage: "<version-a> <version-b>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 2 {
				return outputError(errors.NewInvalidInput("diff requires two versions"))
			}
			a, err := snapshot.ParseVersion(c.Args().Get(0))
			if err != nil {
				return outputError(errors.NewInvalidInput(err.Error()))
			}
			b, err := snapshot.ParseVersion(c.Args().Get(1))
			if err != nil {
				return outputError(errors.NewInvalidInput(err.Error()))
			}
			result, err := mgr.Diff(a, b)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(result)
		},
	}
}

// rollbackCmd points the current version at an earlier snapshot.
func rollbackCmd(mgr *snapshot.Manager) *cli.Command {
	return &cli.Command{
		Name:      "rollback",
		Usage:     "Set the current version to an earlier snapshot",
		ArgsUsage: "<version>",
		Action: func(c *cli.Context) error {
			version, err := versionArg(c, mgr)
			if err != nil {
				return outputError(err)
			}
			if err := mgr.Rollback(version); err != nil {
				return outputError(err)
			}
			return outputJSON(map[string]any{"current": version})
		},
	}
}

// deleteVersionCmd removes a non-current snapshot version.
func deleteVersionCmd(mgr *snapshot.Manager) *cli.Command {
	return &cli.Command{
		Name:      "delete-version",
		Usage:     "Delete a non-current snapshot version",
		ArgsUsage: "<version>",
		Action: func(c *cli.Context) error {
			version, err := versionArg(c, mgr)
			if err != nil {
				return outputError(err)
			}
			if err := mgr.Delete(version); err != nil {
				return outputError(err)
			}
			return outputJSON(map[string]any{"deleted": version})
		},
	}
}

// exportCmd writes the cumulative dataset as a training JSONL file.
func exportCmd(db *sql.DB, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Export the cumulative dataset as a training JSONL file",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Usage: "Destination file (default: training_data_path from config)"},
		},
		Action: func(c *cli.Context) error {
			path := c.String("path")
			if path == "" {
				path = cfg.TrainingPath
			}
			output, err := dataset.ExportTraining(c.Context, db, path)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// validateCmd re-runs the validator over a sealed snapshot.
func validateCmd(mgr *snapshot.Manager, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Usage:     "Validate a sealed snapshot's records",
		ArgsUsage: "<version>",
		Action: func(c *cli.Context) error {
			version, err := versionArg(c, mgr)
			if err != nil {
				return outputError(err)
			}
			_, records, err := mgr.Load(version)
			if err != nil {
				return outputError(err)
			}
			// Dedup statistics are a property of the sealing run; a
			// standalone validation sees only the accepted set.
			stats := dedup.Stats{Total: len(records), Accepted: len(records)}
			return outputJSON(validate.Check(records, stats, cfg.Validation))
		},
	}
}

// versionArg parses the single version argument, defaulting to the current
// version when omitted.
func versionArg(c *cli.Context, mgr *snapshot.Manager) (int, error) {
	if c.NArg() > 0 {
		v, err := snapshot.ParseVersion(c.Args().First())
		if err != nil {
			return 0, errors.NewInvalidInput(err.Error())
		}
		return v, nil
	}
	current, err := mgr.Current()
	if err != nil {
		return 0, err
	}
	if current == 0 {
		return 0, errors.NewInvalidInput("no version specified and no current version")
	}
	return current, nil
}

// outputJSON marshals a value as indented JSON to stdout.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	if pErr, ok := err.(*errors.PipelineError); ok {
		return cli.Exit(fmt.Sprintf("[%s] %s", pErr.Code, pErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}
