package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/pable/smeecher/internal/causal"
	"github.com/pable/smeecher/internal/engine"
	"github.com/pable/smeecher/internal/filter"
	"github.com/pable/smeecher/internal/playbook"
	"github.com/pable/smeecher/internal/report"
	"github.com/pable/smeecher/internal/token"
	"github.com/pable/smeecher/internal/unitbuild"
)

var errInterrupt = errors.New("interrupt")

var (
	cPrompt   = color.New(color.FgCyan, color.Bold)
	cMuted    = color.New(color.Faint)
	cError    = color.New(color.FgRed, color.Bold)
	cWarn     = color.New(color.FgYellow)
	cCmd      = color.New(color.FgYellow, color.Bold)
	cGreeting = color.New(color.Bold)
)

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Start an interactive REPL session against a snapshot",
	Long:  "Open a persistent session against the engine snapshot. Type 'help' for available commands.",
	Args:  cobra.NoArgs,
	RunE:  runShell,
}

func runShell(_ *cobra.Command, _ []string) error {
	eng, err := loadEngine()
	if err != nil {
		return err
	}

	cGreeting.Println("smeecher shell")
	cMuted.Println("type 'help' or 'exit'")
	fmt.Println()

	fd := int(os.Stdin.Fd())
	isTTY := term.IsTerminal(fd)

	var history []string
	var scanner *bufio.Scanner
	if !isTTY {
		scanner = bufio.NewScanner(os.Stdin)
	}

	for {
		var line string
		if isTTY {
			line, err = readLine(history)
			if errors.Is(err, io.EOF) {
				fmt.Println()
				break
			}
			if err != nil { // Ctrl+C: redraw prompt and continue
				continue
			}
		} else {
			cPrompt.Print("smeecher")
			cMuted.Print("> ")
			if !scanner.Scan() {
				fmt.Println()
				break
			}
			line = strings.TrimSpace(scanner.Text())
		}

		if line == "" {
			continue
		}

		if isTTY && (len(history) == 0 || history[len(history)-1] != line) {
			history = append(history, line)
		}

		tokens := strings.Fields(line)
		cmdName, args := tokens[0], tokens[1:]

		switch cmdName {
		case "exit", "quit":
			return nil
		case "help":
			shellHelp()
		case "stats":
			report.PrintStats(os.Stdout, eng.StatsSummary())
		case "search":
			if len(args) == 0 {
				cError.Fprintln(os.Stderr, "usage: search <query>")
				continue
			}
			report.PrintSearch(os.Stdout, eng.Search(strings.Join(args, " ")), func(tok string) string { return labelByToken(eng, tok) })
		case "graph":
			shellGraph(eng, args)
		case "clusters":
			shellClusters(eng, args)
		case "playbook":
			shellPlaybook(eng, args)
		case "necessity":
			shellNecessity(eng, args)
		case "unit-items":
			shellUnitItems(eng, args)
		case "unit-build":
			shellUnitBuild(eng, args)
		default:
			cWarn.Fprintf(os.Stderr, "unknown command %q — type 'help'\n", cmdName)
		}
	}
	return nil
}

// readLine prints the prompt and reads one line in raw terminal mode,
// supporting up/down arrow history navigation within the current session.
// Returns ("", io.EOF) on Ctrl+D or closed input, ("", errInterrupt) on Ctrl+C.
func readLine(hist []string) (string, error) {
	fd := int(os.Stdin.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return "", fmt.Errorf("raw mode: %w", err)
	}
	defer term.Restore(fd, oldState) //nolint:errcheck

	var buf []byte
	histIdx := len(hist) // start past the end — the "new line" position
	var savedLine string // line saved before navigating into history

	redraw := func() {
		os.Stdout.WriteString("\r\x1b[K") // carriage-return + erase to EOL
		cPrompt.Fprint(os.Stdout, "smeecher")
		cMuted.Fprint(os.Stdout, "> ")
		os.Stdout.Write(buf)
	}
	redraw()

	b := make([]byte, 1)
	for {
		if _, err := os.Stdin.Read(b); err != nil {
			os.Stdout.WriteString("\r\n")
			return "", io.EOF
		}
		switch b[0] {
		case 3: // Ctrl+C
			os.Stdout.WriteString("\r\n")
			return "", errInterrupt
		case 4: // Ctrl+D — EOF only on empty line (bash behaviour)
			if len(buf) == 0 {
				os.Stdout.WriteString("\r\n")
				return "", io.EOF
			}
		case 13, 10: // Enter (CR or LF)
			line := strings.TrimSpace(string(buf))
			os.Stdout.WriteString("\r\n")
			return line, nil
		case 127, 8: // Backspace / DEL
			if len(buf) > 0 {
				_, size := utf8.DecodeLastRune(buf)
				buf = buf[:len(buf)-size]
				redraw()
			}
		case 27: // ESC — read the rest of the CSI sequence
			seq := make([]byte, 2)
			if _, err := os.Stdin.Read(seq[:1]); err != nil || seq[0] != '[' {
				continue
			}
			if _, err := os.Stdin.Read(seq[1:]); err != nil {
				continue
			}
			switch seq[1] {
			case 'A': // Up arrow
				if histIdx == len(hist) {
					savedLine = string(buf)
				}
				if histIdx > 0 {
					histIdx--
					buf = []byte(hist[histIdx])
					redraw()
				}
			case 'B': // Down arrow
				if histIdx < len(hist) {
					histIdx++
					if histIdx == len(hist) {
						buf = []byte(savedLine)
					} else {
						buf = []byte(hist[histIdx])
					}
					redraw()
				}
			}
		default:
			if b[0] >= 32 { // printable ASCII, plus raw UTF-8 bytes
				buf = append(buf, b[0])
				redraw()
			}
		}
	}
}

func shellHelp() {
	fmt.Println()
	type entry struct{ cmd, desc string }
	rows := []entry{
		{"stats", "engine match/token summary"},
		{"search <query>", "substring search over known tokens"},
		{"graph <tokens>", "score candidates against a filter, e.g. graph U:Ashe,T:Sniper"},
		{"clusters <tokens>", "archetype clustering of the filtered base (no per-cluster drill-down here)"},
		{"playbook <tokens>", "drivers/killers for the filter's biggest cluster"},
		{"necessity <unit> <item> [tokens]", "on-demand AIPW necessity estimate"},
		{"unit-items <unit> [tokens]", "rank every item ever carried by unit"},
		{"unit-build <unit>", "beam-search the strongest 1-3 item builds for unit"},
		{"help", "show this message"},
		{"exit / quit", "close the session"},
	}
	for _, r := range rows {
		fmt.Print("  ")
		cCmd.Print(r.cmd)
		fmt.Printf("  —  %s\n", r.desc)
	}
	fmt.Println()
}

func shellGraph(eng *engine.Engine, args []string) {
	if len(args) == 0 {
		cError.Fprintln(os.Stderr, "usage: graph <tokens>")
		return
	}
	nodes, edges := filter.Graph(eng.Index, eng.Arrays.Placement, func(tok string) string { return labelByToken(eng, tok) }, strings.Join(args, " "), filter.Mask{}, filter.SortImpact, 30, 20)
	report.PrintGraph(os.Stdout, nodes, edges)
}

func shellClusters(eng *engine.Engine, args []string) {
	if len(args) == 0 {
		cError.Fprintln(os.Stderr, "usage: clusters <tokens>")
		return
	}
	cfg, err := loadConfig()
	if err != nil {
		cError.Fprintf(os.Stderr, "error: %v\n", err)
		return
	}
	r := clusterRuns.Compute(eng, strings.Join(args, " "), cfg.ClusterParams())
	report.PrintClusters(os.Stdout, r)
}

func shellPlaybook(eng *engine.Engine, args []string) {
	if len(args) == 0 {
		cError.Fprintln(os.Stderr, "usage: playbook <tokens>")
		return
	}
	rawFilter := strings.Join(args, " ")
	cfg, err := loadConfig()
	if err != nil {
		cError.Fprintf(os.Stderr, "error: %v\n", err)
		return
	}
	r := clusterRuns.Compute(eng, rawFilter, cfg.ClusterParams())
	if r.Warning != "" || len(r.Clusters) == 0 {
		fmt.Fprintln(os.Stdout, r.Warning)
		return
	}
	best := r.Clusters[0]
	for _, c := range r.Clusters[1:] {
		if c.Size > best.Size {
			best = c
		}
	}
	include, exclude := filter.ParseTokens(rawFilter)
	baseIDs := eng.Index.Filter(include, exclude).ToArray()
	members := best.MemberPMIDs(baseIDs)

	var topUnits []string
	for _, u := range best.TopUnits {
		if parsed, ok := token.Parse(u.Token); ok && parsed.Kind == token.Unit {
			topUnits = append(topUnits, parsed.Unit)
		}
	}
	candidates := playbook.CandidateTokens(eng, best.SignatureTokens, topUnits, 5, 3)
	pr := playbook.Compute(eng, members, candidates)
	report.PrintPlaybook(os.Stdout, pr)
}

func shellNecessity(eng *engine.Engine, args []string) {
	if len(args) < 2 {
		cError.Fprintln(os.Stderr, "usage: necessity <unit> <item> [tokens]")
		return
	}
	unit, item := args[0], args[1]
	rawFilter := ""
	if len(args) > 2 {
		rawFilter = strings.Join(args[2:], " ")
	}
	cfg, err := loadConfig()
	if err != nil {
		cError.Fprintf(os.Stderr, "error: %v\n", err)
		return
	}
	res, scopeMinStar := causal.ItemNecessity(eng, unit, item, rawFilter, causal.OutcomeTop4, 25, cfg.CausalConfig())
	report.PrintNecessity(os.Stdout, unit, item, res, scopeMinStar)
}

func shellUnitItems(eng *engine.Engine, args []string) {
	if len(args) == 0 {
		cError.Fprintln(os.Stderr, "usage: unit-items <unit>")
		return
	}
	unit := args[0]
	rawFilter := ""
	if len(args) > 1 {
		rawFilter = strings.Join(args[1:], " ")
	}
	results := rankUnitItems(eng, unit, rawFilter)
	if len(results) == 0 {
		fmt.Fprintf(os.Stdout, "no recorded items for %s\n", unit)
		return
	}
	report.PrintFastApprox(os.Stdout, unit, results)
}

func shellUnitBuild(eng *engine.Engine, args []string) {
	if len(args) == 0 {
		cError.Fprintln(os.Stderr, "usage: unit-build <unit>")
		return
	}
	unit := args[0]
	rawFilter := ""
	if len(args) > 1 {
		rawFilter = strings.Join(args[1:], " ")
	}
	r := unitbuild.Compute(eng, unit, rawFilter, 10, 3, filter.Mask{})
	report.PrintUnitBuild(os.Stdout, r)
}
