// Package cmd implements the CLI commands for smeecher: building a snapshot
// from the scraper's relational database, querying it (stats, search,
// graph, clusters, playbook, necessity), and an interactive shell.
package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pable/smeecher/internal/config"
	"github.com/pable/smeecher/internal/engine"
	"github.com/pable/smeecher/internal/report"
	"github.com/pable/smeecher/internal/snapshot"
)

// dbPath is the relational ingest database path, set via --db.
var dbPath string

// snapPath is the engine's binary snapshot path, set via --snapshot.
var snapPath string

// configPath is an optional YAML tuning-config path, set via --config.
var configPath string

// silent suppresses verbose metric explanations when true, set via --silent.
var silent bool

// rootCmd is the top-level cobra command for the smeecher CLI.
var rootCmd = &cobra.Command{
	Use:   "smeecher",
	Short: "TFT comp analytics engine",
	Long:  "Build and query an in-memory analytics engine over a TFT match database: token search, comp graphs, archetype clustering, playbooks, and item-necessity estimation.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		report.Verbose = !silent
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	defaultDB := filepath.Join(mustUserHome(), ".smeecher", "matches.db")
	defaultSnap := filepath.Join(mustUserHome(), ".smeecher", "engine.smee")

	rootCmd.PersistentFlags().StringVar(&dbPath, "db", defaultDB, "path to the relational match database")
	rootCmd.PersistentFlags().StringVar(&snapPath, "snapshot", defaultSnap, "path to the engine's binary snapshot")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to an optional YAML tuning config")
	rootCmd.PersistentFlags().BoolVarP(&silent, "silent", "s", false, "hide metric explanations before each table")

	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(graphCmd)
	rootCmd.AddCommand(clustersCmd)
	rootCmd.AddCommand(playbookCmd)
	rootCmd.AddCommand(necessityCmd)
	rootCmd.AddCommand(unitItemsCmd)
	rootCmd.AddCommand(unitBuildCmd)
	rootCmd.AddCommand(shellCmd)
	rootCmd.AddCommand(sqlCmd)
}

// mustUserHome returns the current user's home directory, falling back to "."
// if it cannot be determined.
func mustUserHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}

// loadConfig loads the tuning config from --config, or the pinned defaults
// when no path was given.
func loadConfig() (config.Config, error) {
	return config.Load(configPath)
}

// loadEngine loads the engine snapshot written by `smeecher build`.
func loadEngine() (*engine.Engine, error) {
	eng, err := snapshot.Load(snapPath)
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s (run `smeecher build` first): %w", snapPath, err)
	}
	return eng, nil
}
