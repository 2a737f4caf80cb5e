// Package report formats and prints engine query results as terminal
// tables using tablewriter: a printSection header (title + optional
// verbose explanation) followed by a right-aligned numeric table.
package report

import (
	"fmt"
	"io"
	"math"
	"os"
	"sort"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/pable/smeecher/internal/bitmapidx"
	"github.com/pable/smeecher/internal/causal"
	"github.com/pable/smeecher/internal/cluster"
	"github.com/pable/smeecher/internal/engine"
	"github.com/pable/smeecher/internal/filter"
	"github.com/pable/smeecher/internal/playbook"
	"github.com/pable/smeecher/internal/unitbuild"
)

// Verbose controls whether metric explanations are printed before each table.
// It defaults to true; the root command sets it to false when --silent/-s is passed.
var Verbose = true

// printSection prints a bold section title and, when Verbose is true, a one-line
// explanation of the columns that follow.
func printSection(w io.Writer, title, desc string) {
	fmt.Fprintf(w, "\n--- %s ---\n", title)
	if Verbose {
		fmt.Fprintf(w, "%s\n", desc)
	}
}

func rightTable(w io.Writer) *tablewriter.Table {
	return tablewriter.NewTable(w, tablewriter.WithConfig(tablewriter.Config{
		Row:    tw.CellConfig{Alignment: tw.CellAlignment{Global: tw.AlignRight}},
		Header: tw.CellConfig{Alignment: tw.CellAlignment{Global: tw.AlignCenter}},
	}))
}

// PrintStats prints the engine's cheap stats() summary.
func PrintStats(w io.Writer, s engine.Stats) {
	printSection(w, "Engine Stats", "Total matches ingested and token counts per namespace.")
	table := rightTable(w)
	table.Header("MATCHES", "TOKENS", "UNIT", "ITEM", "EQUIPPED", "TRAIT")
	table.Append(
		fmt.Sprintf("%d", s.TotalMatches),
		fmt.Sprintf("%d", s.TotalTokens),
		fmt.Sprintf("%d", s.UnitTokens),
		fmt.Sprintf("%d", s.ItemTokens),
		fmt.Sprintf("%d", s.EquippedTokens),
		fmt.Sprintf("%d", s.TraitTokens),
	)
	table.Render()
}

// PrintSearch prints search() hits in the order the engine ranked them.
func PrintSearch(w io.Writer, tokens []string, labelOf func(string) string) {
	printSection(w, "Search Results", "Up to 20 tokens matching the query, ranked by bitmap cardinality.")
	if len(tokens) == 0 {
		fmt.Fprintln(w, color.New(color.Faint).Sprint("(no matches)"))
		return
	}
	table := tablewriter.NewTable(w, tablewriter.WithConfig(tablewriter.Config{
		Row:    tw.CellConfig{Alignment: tw.CellAlignment{Global: tw.AlignLeft}},
		Header: tw.CellConfig{Alignment: tw.CellAlignment{Global: tw.AlignLeft}},
	}))
	table.Header("TOKEN", "LABEL")
	for _, tok := range tokens {
		table.Append(tok, labelOf(tok))
	}
	table.Render()
}

// PrintGraph prints graph() results: candidate tokens scored
// against the current filter's base, sorted per the requested mode.
func PrintGraph(w io.Writer, nodes []filter.Node, edges []bitmapidx.ScoreResult) {
	printSection(w, "Graph",
		"DELTA=avg placement with the candidate minus the base average (negative = better)\n"+
			"N_WITH/N_BASE=sample sizes behind each row")
	if len(edges) == 0 {
		fmt.Fprintln(w, color.New(color.Faint).Sprint("(no candidates met min_sample)"))
		return
	}
	table := rightTable(w)
	table.Header("TOKEN", "LABEL", "DELTA", "AVG_WITH", "AVG_BASE", "N_WITH", "N_BASE")
	for i, e := range edges {
		label := ""
		if i < len(nodes) {
			label = nodes[i].Label
		}
		table.Append(e.Token, label, signedFloat(e.Delta), fmt.Sprintf("%.2f", e.AvgWith),
			fmt.Sprintf("%.2f", e.AvgBase), fmt.Sprintf("%d", e.NWith), fmt.Sprintf("%d", e.NBase))
	}
	table.Render()
}

// PrintClusters prints a clusters() result: a one-line base
// summary plus one row per archetype cluster, sorted the way the engine
// already sorted them (avg placement asc, size desc).
func PrintClusters(w io.Writer, r cluster.Result) {
	desc := fmt.Sprintf("tokens=%v  n=%d  avg=%.2f  win=%.1f%%  top4=%.1f%%",
		r.Tokens, r.BaseN, r.BaseAvg, r.BaseRates.WinRate*100, r.BaseRates.Top4Rate*100)
	if r.RunID != "" {
		desc += "  run=" + r.RunID[:12]
	}
	printSection(w, "Base", desc)
	if r.Warning != "" {
		fmt.Fprintln(w, color.New(color.FgYellow).Sprint(r.Warning))
		return
	}

	printSection(w, "Archetype Clusters",
		"AVG=mean placement in the cluster  DELTA=vs base average  SHARE=fraction of base\n"+
			"SIGNATURE=signature tokens by cluster frequency/lift")
	table := rightTable(w)
	table.Header("ID", "SIZE", "SHARE", "AVG", "DELTA", "WIN%", "TOP4%", "SIGNATURE")
	for _, c := range r.Clusters {
		table.Append(
			fmt.Sprintf("%d", c.ID),
			fmt.Sprintf("%d", c.Size),
			fmt.Sprintf("%.1f%%", c.Share*100),
			fmt.Sprintf("%.2f", c.AvgPlacement),
			signedFloat(c.DeltaVsBase),
			fmt.Sprintf("%.1f%%", c.Rates.WinRate*100),
			fmt.Sprintf("%.1f%%", c.Rates.Top4Rate*100),
			joinSignature(c.SignatureTokens),
		)
	}
	table.Render()
}

// PrintClusterDetail prints one cluster's defining units and top tokens per
// namespace, for a client drilling into a single cluster id.
func PrintClusterDetail(w io.Writer, c cluster.Cluster) {
	printSection(w, fmt.Sprintf("Cluster %d Detail", c.ID),
		"LIFT=cluster frequency divided by base frequency (>1 means over-represented here)")
	table := rightTable(w)
	table.Header("NAMESPACE", "TOKEN", "CLUSTER%", "BASE%", "LIFT")
	rows := append(append(append([]cluster.FeatureSummary{}, c.DefiningUnits...), c.TopTraits...), c.TopItems...)
	for _, f := range rows {
		lift := "—"
		if f.HasLift {
			lift = fmt.Sprintf("%.2fx", f.Lift)
		}
		table.Append(namespaceOf(f.Token), f.Token, fmt.Sprintf("%.1f%%", f.Pct*100), fmt.Sprintf("%.1f%%", f.BasePct*100), lift)
	}
	table.Render()
}

// PrintPlaybook prints cluster_playbook()/token_playbook() drivers, killers,
// and the comp-view trait/item breakdown.
func PrintPlaybook(w io.Writer, r playbook.Result) {
	printSection(w, "Drivers",
		"Candidate tokens ranked by within-cluster win-rate delta (with-group minus without-group, EB-shrunk toward the cluster baseline).")
	printPlaybookRows(w, r.Drivers)

	printSection(w, "Killers", "Same candidates, worst win-rate delta first.")
	printPlaybookRows(w, r.Killers)

	if len(r.Traits) > 0 {
		printSection(w, "Trait Tier Distribution", "Inferred P(active tier = k) per top trait.")
		table := rightTable(w)
		header := []any{"TRAIT"}
		maxTier := 0
		for _, t := range r.Traits {
			for k := range t.TierProb {
				if k > maxTier {
					maxTier = k
				}
			}
		}
		for k := 1; k <= maxTier; k++ {
			header = append(header, fmt.Sprintf("T%d", k))
		}
		table.Header(header...)
		for _, t := range r.Traits {
			row := []any{t.Trait}
			for k := 1; k <= maxTier; k++ {
				if p, ok := t.TierProb[k]; ok {
					row = append(row, fmt.Sprintf("%.0f%%", p*100))
				} else {
					row = append(row, "—")
				}
			}
			table.Append(row...)
		}
		table.Render()
	}

	if len(r.Items) > 0 {
		printSection(w, "Item Holders", "Best-fit unit(s) for each top item, by in-cluster equip rate.")
		table := rightTable(w)
		table.Header("ITEM", "UNIT", "PCT")
		for _, item := range r.Items {
			for i, u := range item.Units {
				label := item.Item
				if i > 0 {
					label = ""
				}
				table.Append(label, u.Unit, fmt.Sprintf("%.1f%%", u.Pct*100))
			}
		}
		table.Render()
	}
}

func printPlaybookRows(w io.Writer, rows []playbook.Row) {
	if len(rows) == 0 {
		fmt.Fprintln(w, color.New(color.Faint).Sprint("(no candidates)"))
		return
	}
	table := rightTable(w)
	table.Header("TOKEN", "PCT_IN_CLUSTER", "N_WITH", "N_WITHOUT", "DELTA_WIN", "DELTA_TOP4", "DELTA_AVG")
	top := rows
	if len(top) > 20 {
		top = top[:20]
	}
	for _, r := range top {
		table.Append(r.Token, fmt.Sprintf("%.1f%%", r.PctInCluster*100), fmt.Sprintf("%d", r.NWith),
			fmt.Sprintf("%d", r.NWithout), signedFloat(r.DeltaWin), signedFloat(r.DeltaTop4), signedFloat(r.DeltaAvg))
	}
	table.Render()
}

// PrintNecessity prints a single item_necessity() result: either a point
// estimate with overlap diagnostics, or an overlap-failure explanation.
func PrintNecessity(w io.Writer, unit, item string, res causal.Result, scopeMinStar uint8) {
	scope := "none"
	if scopeMinStar > 0 {
		scope = fmt.Sprintf("%d★+", scopeMinStar)
	}
	printSection(w, fmt.Sprintf("Necessity: %s + %s", unit, item),
		fmt.Sprintf("AIPW treatment-effect estimate  scope=%s", scope))

	if !res.Ok {
		d := res.Failure
		fmt.Fprintln(w, color.New(color.FgYellow).Sprint("Overlap failure — insufficient identifiability for this context."))
		table := rightTable(w)
		table.Header("N", "N_USED", "N_TREATED_USED", "N_CONTROL_USED", "FRAC_TRIMMED", "E_P01", "E_P99")
		table.Append(fmt.Sprintf("%d", d.N), fmt.Sprintf("%d", d.NUsed), fmt.Sprintf("%d", d.NTreatedUsed),
			fmt.Sprintf("%d", d.NControlUsed), fmt.Sprintf("%.2f", d.FracTrimmed), fmt.Sprintf("%.3f", d.EP01), fmt.Sprintf("%.3f", d.EP99))
		table.Render()
		for _, warn := range d.Warnings {
			fmt.Fprintln(w, color.New(color.FgYellow).Sprint("  "+warn))
		}
		return
	}

	e := res.Value
	table := rightTable(w)
	table.Header("TAU", "CI95_LOW", "CI95_HIGH", "SE", "P_VALUE", "N_TREATED", "N_CONTROL", "N_USED")
	table.Append(signedFloat(e.Tau), fmt.Sprintf("%.4f", e.CILow), fmt.Sprintf("%.4f", e.CIHigh),
		fmt.Sprintf("%.4f", e.SE), fmt.Sprintf("%.4f", e.PValue), fmt.Sprintf("%d", e.NTreated),
		fmt.Sprintf("%d", e.NControl), fmt.Sprintf("%d", e.NUsed))
	table.Render()
	if e.HasRiskRatio {
		fmt.Fprintf(w, "risk ratio=%.3f  E-value=%.3f\n", e.RiskRatio, e.EValue)
	}
	for _, warn := range e.Warnings {
		fmt.Fprintln(w, color.New(color.FgYellow).Sprint("  "+warn))
	}
}

// PrintFastApprox prints unit_items()'s item ranking: rows served from the
// precomputed necessity cache alongside cluster-adjusted fast-approximation
// rows for the items the cache could not serve.
func PrintFastApprox(w io.Writer, unit string, results []causal.FastApproxResult) {
	printSection(w, fmt.Sprintf("Items for %s", unit),
		"ΔTop4 per item: the precomputed AIPW estimate where cached, else a cluster-adjusted stratified approximation.")
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Ok != results[j].Ok {
			return results[i].Ok
		}
		return results[i].Tau > results[j].Tau
	})
	table := rightTable(w)
	table.Header("ITEM", "TAU", "CI95_LOW", "CI95_HIGH", "FRAC_TRIMMED", "OK")
	for _, r := range results {
		ok := "yes"
		if !r.Ok {
			ok = "no"
		}
		tau, lo, hi := "—", "—", "—"
		if r.Ok {
			tau, lo, hi = signedFloat(r.Tau), fmt.Sprintf("%.4f", r.CILow), fmt.Sprintf("%.4f", r.CIHigh)
		}
		table.Append(r.Item, tau, lo, hi, fmt.Sprintf("%.2f", r.FracTrimmed), ok)
	}
	table.Render()
}

// PrintUnitBuild prints the unit_build() beam search result:
// the base sample the builds are judged against, then each build's item
// slots and its final average placement/delta vs base.
func PrintUnitBuild(w io.Writer, r unitbuild.Result) {
	printSection(w, fmt.Sprintf("Builds for %s", r.Unit),
		"Beam search over item combinations; ranked by item count desc, then avg placement asc.")
	fmt.Fprintf(w, "base: n=%d avg_placement=%.3f\n", r.BaseN, r.BaseAvg)
	if len(r.Builds) == 0 {
		fmt.Fprintln(w, "no builds (sample too small or no candidate items)")
		return
	}
	table := rightTable(w)
	table.Header("BUILD#", "ITEMS", "AVG_PLACEMENT", "DELTA", "N")
	for i, b := range r.Builds {
		items := ""
		for j, it := range b.Items {
			if j > 0 {
				items += " + "
			}
			items += it.Item
		}
		table.Append(fmt.Sprintf("%d", i+1), items, fmt.Sprintf("%.3f", b.FinalAvg), signedFloat(b.TotalDelta), fmt.Sprintf("%d", b.FinalN))
	}
	table.Render()
}

func signedFloat(f float64) string {
	if math.IsNaN(f) {
		return "—"
	}
	if f >= 0 {
		return fmt.Sprintf("+%.3f", f)
	}
	return fmt.Sprintf("%.3f", f)
}

func joinSignature(tokens []string) string {
	if len(tokens) == 0 {
		return "—"
	}
	out := tokens[0]
	for _, t := range tokens[1:] {
		out += ", " + t
	}
	return out
}

func namespaceOf(tok string) string {
	if len(tok) == 0 {
		return "?"
	}
	switch tok[0] {
	case 'U':
		return "unit"
	case 'I':
		return "item"
	case 'E':
		return "equipped"
	case 'T':
		return "trait"
	default:
		return "?"
	}
}

// Stdout wrappers for the common case of printing straight to the
// terminal.

func PrintStatsStdout(s engine.Stats)                                     { PrintStats(os.Stdout, s) }
func PrintClustersStdout(r cluster.Result)                                { PrintClusters(os.Stdout, r) }
func PrintPlaybookStdout(r playbook.Result)                               { PrintPlaybook(os.Stdout, r) }
