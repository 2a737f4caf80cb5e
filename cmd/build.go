package cmd

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/pable/smeecher/internal/causal"
	"github.com/pable/smeecher/internal/engine"
	"github.com/pable/smeecher/internal/snapshot"
	"github.com/pable/smeecher/internal/storage"
)

var buildTFTSet int

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Ingest the match database and write a fresh engine snapshot",
	Long: `Reads finished matches from the relational database (--db), tokenizes every
player-match into the engine's in-memory indexes, precomputes the item-necessity
cache, and writes the result to the binary snapshot (--snapshot).`,
	Args: cobra.NoArgs,
	RunE: runBuild,
}

func init() {
	buildCmd.Flags().IntVar(&buildTFTSet, "tft-set", 0, "TFT set number to build (0 = use config default)")
}

func runBuild(cmd *cobra.Command, args []string) error {
	log := zerolog.New(zerolog.NewConsoleWriter()).With().Timestamp().Logger()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	setNumber := buildTFTSet
	if setNumber == 0 {
		setNumber = cfg.TFTSetNumber
	}

	log.Info().Str("db", dbPath).Int("tft_set", setNumber).Msg("opening match database")
	db, err := storage.Open(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	start := time.Now()
	summary, err := db.Summary(setNumber)
	if err != nil {
		return err
	}
	log.Info().Int("matches", summary.Matches).Int("players", summary.Players).Msg("database summary")

	rows, err := storage.ReadMatchRows(db, setNumber)
	if err != nil {
		return err
	}
	log.Info().Int("rows", len(rows)).Dur("elapsed", time.Since(start)).Msg("read match rows")

	tokenizeStart := time.Now()
	eng := engine.Build(rows)
	stats := eng.StatsSummary()
	log.Info().
		Int("matches", stats.TotalMatches).
		Int("tokens", stats.TotalTokens).
		Dur("elapsed", time.Since(tokenizeStart)).
		Msg("tokenized engine")

	precomputeStart := time.Now()
	causal.BuildNecessityCache(eng, cfg.CausalConfig())
	log.Info().Dur("elapsed", time.Since(precomputeStart)).Msg("precomputed item-necessity cache")

	if err := snapshot.Save(eng, snapPath); err != nil {
		return err
	}
	log.Info().Str("snapshot", snapPath).Dur("total", time.Since(start)).Msg("wrote snapshot")
	return nil
}
