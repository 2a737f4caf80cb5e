package cmd

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pable/smeecher/internal/causal"
	"github.com/pable/smeecher/internal/cluster"
	"github.com/pable/smeecher/internal/engine"
	"github.com/pable/smeecher/internal/filter"
	"github.com/pable/smeecher/internal/playbook"
	"github.com/pable/smeecher/internal/report"
	"github.com/pable/smeecher/internal/taxonomy"
	"github.com/pable/smeecher/internal/token"
	"github.com/pable/smeecher/internal/unitbuild"
)

// clusterRuns memoizes cluster computations across commands in one
// process; the shell is the main beneficiary, where the same filter is
// typically clustered and then drilled into.
var clusterRuns = cluster.NewCache()

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print the engine's cheap match/token stats",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := loadEngine()
		if err != nil {
			return err
		}
		report.PrintStats(os.Stdout, eng.StatsSummary())
		return nil
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search known tokens by substring (units, items, traits, ...)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := loadEngine()
		if err != nil {
			return err
		}
		hits := eng.Search(args[0])
		report.PrintSearch(os.Stdout, hits, func(tok string) string { return labelByToken(eng, tok) })
		return nil
	},
}

var (
	graphTopK       int
	graphMinSample  int
	graphSort       string
	graphTypes      string
	graphItemTypes  string
	graphItemPrefix string
)

var graphCmd = &cobra.Command{
	Use:   "graph <tokens>",
	Short: "Score candidate tokens against a filter's base (e.g. \"U:Ashe,T:Sniper\")",
	Long: `Parses the comma-separated token filter (prefix a token with "-" to exclude
it), generates namespace-appropriate candidates, and scores each one's average
placement against the base.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := loadEngine()
		if err != nil {
			return err
		}
		mode := filter.SortMode(graphSort)
		mask := filter.Mask{
			Types:        parseTokenKinds(graphTypes),
			ItemTypes:    parseItemTypes(graphItemTypes),
			ItemPrefixes: splitCSV(graphItemPrefix),
		}
		nodes, edges := filter.Graph(eng.Index, eng.Arrays.Placement, func(tok string) string { return labelByToken(eng, tok) }, args[0], mask, mode, graphTopK, graphMinSample)
		report.PrintGraph(os.Stdout, nodes, edges)
		return nil
	},
}

// parseTokenKinds parses a comma-separated namespace mask (unit, item,
// trait, equipped) into token kinds; unrecognized names are skipped.
func parseTokenKinds(raw string) []token.Kind {
	var out []token.Kind
	for _, s := range splitCSV(raw) {
		switch s {
		case "unit":
			out = append(out, token.Unit)
		case "item":
			out = append(out, token.Item)
		case "trait":
			out = append(out, token.Trait)
		case "equipped":
			out = append(out, token.Equipped)
		}
	}
	return out
}

// parseItemTypes parses a comma-separated list of item-type
// names into taxonomy.ItemType values; unrecognized names are skipped.
func parseItemTypes(raw string) []taxonomy.ItemType {
	var out []taxonomy.ItemType
	for _, s := range splitCSV(raw) {
		switch taxonomy.ItemType(s) {
		case taxonomy.Component, taxonomy.Full, taxonomy.Artifact, taxonomy.Emblem, taxonomy.Radiant:
			out = append(out, taxonomy.ItemType(s))
		}
	}
	return out
}

func splitCSV(raw string) []string {
	var out []string
	for _, s := range strings.Split(raw, ",") {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func init() {
	graphCmd.Flags().IntVar(&graphTopK, "top", 30, "max candidates to show")
	graphCmd.Flags().IntVar(&graphMinSample, "min-sample", 20, "minimum with-group sample size")
	graphCmd.Flags().StringVar(&graphSort, "sort", "impact", "impact|helpful|harmful")
	graphCmd.Flags().StringVar(&graphTypes, "types", "", "restrict candidates to these namespaces (comma-separated): unit,item,trait,equipped")
	graphCmd.Flags().StringVar(&graphItemTypes, "item-types", "", "restrict item candidates to these types (comma-separated): component,full,artifact,emblem,radiant")
	graphCmd.Flags().StringVar(&graphItemPrefix, "item-prefixes", "", "restrict item candidates to these set prefixes (comma-separated)")
}

var (
	clusterK        int
	clusterID       int
	clusterMinToken int
)

var clustersCmd = &cobra.Command{
	Use:   "clusters <tokens>",
	Short: "Cluster the filtered base into archetype comps",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := loadEngine()
		if err != nil {
			return err
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		p := cfg.ClusterParams()
		if clusterK > 0 {
			p.NClusters = clusterK
		}
		if clusterMinToken > 0 {
			p.MinTokenFreq = clusterMinToken
		}
		r := clusterRuns.Compute(eng, args[0], p)
		if clusterID >= 0 {
			for _, c := range r.Clusters {
				if c.ID == clusterID {
					report.PrintClusterDetail(os.Stdout, c)
					return nil
				}
			}
			return fmt.Errorf("no cluster with id %d", clusterID)
		}
		report.PrintClusters(os.Stdout, r)
		return nil
	},
}

func init() {
	clustersCmd.Flags().IntVar(&clusterK, "n-clusters", 0, "override the configured cluster count")
	clustersCmd.Flags().IntVar(&clusterMinToken, "min-token-freq", 0, "override the configured min token frequency")
	clustersCmd.Flags().IntVar(&clusterID, "id", -1, "drill into a single cluster id instead of listing all")
}

var (
	playbookK     int
	playbookID    int
	playbookWhole bool
)

// playbookCmd covers both playbook surfaces: cluster-playbook (cluster
// the base and report on one cluster, by id or — if --id is omitted — the
// biggest one) and token-playbook (--whole: skip clustering and treat the
// entire filtered base itself as the "cluster").
var playbookCmd = &cobra.Command{
	Use:   "playbook <tokens>",
	Short: "Drivers/killers for a cluster (--id), the biggest cluster, or the whole filter (--whole)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := loadEngine()
		if err != nil {
			return err
		}
		include, exclude := filter.ParseTokens(args[0])
		baseIDs := eng.Index.Filter(include, exclude).ToArray()

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		p := cfg.ClusterParams()

		if playbookWhole {
			seed := cluster.SelectFeatures(eng.Index, p)
			candidates := playbook.CandidateTokens(eng, seed, nil, 0, 0)
			pr := playbook.Compute(eng, baseIDs, candidates)
			report.PrintPlaybook(os.Stdout, pr)
			return nil
		}

		if playbookK > 0 {
			p.NClusters = playbookK
		}
		r := clusterRuns.Compute(eng, args[0], p)
		if r.Warning != "" || len(r.Clusters) == 0 {
			fmt.Fprintln(os.Stdout, r.Warning)
			return nil
		}

		var target cluster.Cluster
		if playbookID >= 0 {
			found := false
			for _, c := range r.Clusters {
				if c.ID == playbookID {
					target, found = c, true
					break
				}
			}
			if !found {
				return fmt.Errorf("no cluster with id %d", playbookID)
			}
		} else {
			// Largest cluster by membership is the comp worth a playbook.
			target = r.Clusters[0]
			for _, c := range r.Clusters[1:] {
				if c.Size > target.Size {
					target = c
				}
			}
		}

		members := target.MemberPMIDs(baseIDs)
		topUnits := make([]string, 0, len(target.TopUnits))
		for _, u := range target.TopUnits {
			if parsed, ok := token.Parse(u.Token); ok && parsed.Kind == token.Unit {
				topUnits = append(topUnits, parsed.Unit)
			}
		}
		candidates := playbook.CandidateTokens(eng, target.SignatureTokens, topUnits, 5, 3)
		pr := playbook.Compute(eng, members, candidates)
		report.PrintPlaybook(os.Stdout, pr)
		return nil
	},
}

func init() {
	playbookCmd.Flags().IntVar(&playbookK, "n-clusters", 0, "override the configured cluster count")
	playbookCmd.Flags().IntVar(&playbookID, "id", -1, "drill into a specific cluster id instead of the biggest one")
	playbookCmd.Flags().BoolVar(&playbookWhole, "whole", false, "treat the entire filtered base as one cluster (token_playbook, no k-means)")
}

var necessityOutcome string

var necessityCmd = &cobra.Command{
	Use:   "necessity <unit> <item> [tokens]",
	Short: "Full on-demand AIPW estimate of item's marginal effect on unit",
	Args:  cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := loadEngine()
		if err != nil {
			return err
		}
		unit, item := args[0], args[1]
		rawFilter := ""
		if len(args) == 3 {
			rawFilter = args[2]
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		outcome := causal.ParseOutcome(necessityOutcome)
		res, scopeMinStar := causal.ItemNecessity(eng, unit, item, rawFilter, outcome, 25, cfg.CausalConfig())
		report.PrintNecessity(os.Stdout, unit, item, res, scopeMinStar)
		return nil
	},
}

func init() {
	necessityCmd.Flags().StringVar(&necessityOutcome, "outcome", "top4", "top4|win|placement|rank_score")
}

func init() {
	unitItemsCmd.Flags().StringVar(&unitItemsTokens, "tokens", "", "additional filter tokens (comma-separated); bypasses the precomputed cache")
}

var unitItemsTokens string

var unitItemsCmd = &cobra.Command{
	Use:   "unit-items <unit>",
	Short: "Rank every item ever equipped on unit by necessity (cache-served where possible)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := loadEngine()
		if err != nil {
			return err
		}
		unit := args[0]
		results := rankUnitItems(eng, unit, unitItemsTokens)
		if len(results) == 0 {
			fmt.Fprintf(os.Stdout, "no recorded items for %s\n", unit)
			return nil
		}
		report.PrintFastApprox(os.Stdout, unit, results)
		return nil
	},
}

var (
	unitBuildSlots      int
	unitBuildMinSample  int
	unitBuildFilter     string
	unitBuildItemTypes  string
	unitBuildItemPrefix string
)

var unitBuildCmd = &cobra.Command{
	Use:   "unit-build <unit>",
	Short: "Beam-search the strongest 1-3 item builds for a unit",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := loadEngine()
		if err != nil {
			return err
		}
		unit := args[0]
		mask := filter.Mask{
			ItemTypes:    parseItemTypes(unitBuildItemTypes),
			ItemPrefixes: splitCSV(unitBuildItemPrefix),
		}
		r := unitbuild.Compute(eng, unit, unitBuildFilter, unitBuildMinSample, unitBuildSlots, mask)
		report.PrintUnitBuild(os.Stdout, r)
		return nil
	},
}

func init() {
	unitBuildCmd.Flags().IntVar(&unitBuildSlots, "slots", 3, "number of item slots to fill (1-3)")
	unitBuildCmd.Flags().IntVar(&unitBuildMinSample, "min-sample", 10, "minimum sample size for a build to be kept")
	unitBuildCmd.Flags().StringVar(&unitBuildFilter, "tokens", "", "additional filter tokens (comma-separated); E:<unit>|<item> tokens here lock that item in")
	unitBuildCmd.Flags().StringVar(&unitBuildItemTypes, "item-types", "", "restrict candidate items to these types (comma-separated): component,full,artifact,emblem,radiant")
	unitBuildCmd.Flags().StringVar(&unitBuildItemPrefix, "item-prefixes", "", "restrict candidate items to these set prefixes (comma-separated)")
}

// rankUnitItems ranks every item ever equipped on unit. With no extra
// filter tokens, each item is served from the build-time necessity cache
// when available; any filter bypasses the cache (its estimates hold only
// for the unfiltered, auto-scoped context) and everything falls through to
// the cluster-adjusted fast approximation. Shared between the unit-items
// command and the shell.
func rankUnitItems(eng *engine.Engine, unit, rawFilter string) []causal.FastApproxResult {
	items := itemsForUnit(eng, unit)
	if len(items) == 0 {
		return nil
	}
	include, exclude := filter.ParseTokens(rawFilter)
	unfiltered := len(include) == 0 && len(exclude) == 0

	var out []causal.FastApproxResult
	var uncached []string
	for _, item := range items {
		if unfiltered {
			if id, ok := eng.Index.Lookup(token.EquippedTok(unit, item).String()); ok {
				if e := eng.Necessity.Get(id); e.Set {
					out = append(out, causal.FastApproxResult{
						Unit: unit, Item: item, Ok: true,
						Tau: float64(e.Tau), SE: float64(e.Se),
						CILow: float64(e.CiLo), CIHigh: float64(e.CiHi),
						FracTrimmed: float64(e.FracTrimmed),
					})
					continue
				}
			}
		}
		uncached = append(uncached, item)
	}

	if len(uncached) > 0 {
		base := eng.Index.Filter(append(include, token.UnitTok(unit).String()), exclude)
		sc := causal.BuildStrata(eng, base, unit, 25, 1)
		for _, item := range uncached {
			out = append(out, sc.Candidate(unit, item, causal.OutcomeTop4))
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Item < out[j].Item })
	return out
}

// labelByToken adapts the engine's id-keyed Label lookup to the
// token-string-keyed labelOf callback report/filter expect.
func labelByToken(eng *engine.Engine, tok string) string {
	id, ok := eng.Index.Lookup(tok)
	if !ok {
		return tok
	}
	return eng.Label(id)
}

// itemsForUnit lists every item ever seen equipped on unit, derived from
// the engine's own Equipped-token vocabulary rather than a fixed item list.
func itemsForUnit(eng *engine.Engine, unit string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, tok := range eng.Index.IDToToken {
		parsed, ok := token.Parse(tok)
		if !ok || parsed.Kind != token.Equipped || parsed.Unit != unit {
			continue
		}
		if !seen[parsed.Item] {
			seen[parsed.Item] = true
			out = append(out, parsed.Item)
		}
	}
	return out
}
