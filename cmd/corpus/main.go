package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/corpusforge/corpus/internal/config"
	"github.com/corpusforge/corpus/internal/dataset"
	"github.com/corpusforge/corpus/internal/snapshot"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// isHelpOrVersion returns true if the user is requesting help or version info.
func isHelpOrVersion() bool {
	if len(os.Args) < 2 {
		return true
	}
	arg := os.Args[1]
	return arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" || arg == "help"
}

// configPath resolves the config file location: $CORPUS_CONFIG, or
// ~/.corpus/config.yaml when unset.
func configPath() string {
	if p := os.Getenv("CORPUS_CONFIG"); p != "" {
		return p
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(homeDir, ".corpus", "config.yaml")
}

func main() {
	// Handle --help/--version before state init (no database needed).
	if isHelpOrVersion() {
		app := newCLIApp(nil, nil, nil)
		if err := app.Run(os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	cfg, err := config.Load(configPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to load config: %v\n", err)
		os.Exit(1)
	}

	db, err := dataset.Init(cfg.BaseDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to initialize dataset: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	mgr, err := snapshot.NewManager(cfg.BaseDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to initialize snapshot manager: %v\n", err)
		os.Exit(1)
	}

	app := newCLIApp(db, mgr, cfg)
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
