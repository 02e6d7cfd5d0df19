// Package report renders the end-of-run summary: human console output,
// optional per-device detail, and machine JSON.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/luxops/luxfleet/pkg/models"
)

// ANSI color codes for terminal output
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
)

// PrintConsoleReport writes the run summary to stdout. With all == true it
// also prints every device outcome, value or failure trace included.
func PrintConsoleReport(rep models.Report, outcomes []models.Outcome, all bool) {
	fmt.Println()
	fmt.Printf("%s%s⛏  FLEET RUN SUMMARY%s\n\n", colorBold, colorCyan, colorReset)

	if rep.Command != "" {
		fmt.Printf("  %-14s %s\n", "Command:", rep.Command)
	}
	fmt.Printf("  %-14s %d\n", "Devices:", rep.Total)
	fmt.Printf("  %-14s %s%d%s\n", "Succeeded:", colorGreen, rep.OkCount, colorReset)
	fmt.Printf("  %-14s %s%d%s\n", "Timed out:", colorYellow, rep.TimeoutCount, colorReset)
	fmt.Printf("  %-14s %s%d%s\n", "Failed:", colorRed, rep.ErrCount, colorReset)
	fmt.Printf("  %-14s %.1f%%\n", "Success rate:", rep.SuccessRate)
	fmt.Printf("  %-14s %s\n", "Duration:", fmtDuration(rep.Duration))
	if rep.Batches > 1 {
		fmt.Printf("  %-14s %d\n", "Batches:", rep.Batches)
	}
	if rep.Aborted {
		fmt.Printf("  %s%-14s %s%s\n", colorRed, "Aborted:", rep.AbortReason, colorReset)
	}

	if rep.OkCount > 0 {
		fmt.Println()
		fmt.Printf("  %sLatency%s  p50 %s  p90 %s  p99 %s  max %s\n", colorBold, colorReset,
			fmtDuration(rep.P50), fmtDuration(rep.P90), fmtDuration(rep.P99), fmtDuration(rep.Max))
	}

	if len(rep.Errors) > 0 {
		fmt.Println()
		fmt.Printf("  %sError breakdown%s\n", colorBold, colorReset)
		for _, line := range sortedErrors(rep.Errors) {
			fmt.Printf("    %s\n", line)
		}
	}

	if all {
		fmt.Println()
		fmt.Printf("  %sPer-device results%s\n", colorBold, colorReset)
		for _, o := range outcomes {
			printOutcome(o)
		}
	}
	fmt.Println()
}

func printOutcome(o models.Outcome) {
	switch o.Kind {
	case models.OutcomeOk:
		fmt.Printf("  %s✔%s %s\n", colorGreen, colorReset, o.Address)
		if o.Value != nil {
			pretty, err := json.MarshalIndent(o.Value, "  | ", "  ")
			if err == nil {
				fmt.Printf("  | %s\n", pretty)
			}
		}
	case models.OutcomeTimeout:
		fmt.Printf("  %s✘%s %s: %s\n", colorYellow, colorReset, o.Address, o.Brief)
	default:
		fmt.Printf("  %s✘%s %s: %s\n", colorRed, colorReset, o.Address, o.Brief)
		if o.Trace != "" && o.Trace != o.Brief+"\n" {
			fmt.Printf("%s%s%s", colorDim, indent(o.Trace, "  | "), colorReset)
		}
	}
}

// Output is the machine-readable shape emitted by --json.
type Output struct {
	Report  models.Report  `json:"report"`
	Results map[string]any `json:"results"`
	Failed  map[string]any `json:"failed,omitempty"`
}

// BuildOutput folds outcomes into a JSON document keyed by device address.
func BuildOutput(rep models.Report, outcomes []models.Outcome) Output {
	out := Output{
		Report:  rep,
		Results: make(map[string]any, len(outcomes)),
		Failed:  make(map[string]any),
	}
	for _, o := range outcomes {
		key := o.Address.String()
		if o.Ok() {
			out.Results[key] = o.Value
		} else {
			out.Failed[key] = map[string]any{
				"kind":  o.Kind.String(),
				"brief": o.Brief,
			}
		}
	}
	if len(out.Failed) == 0 {
		out.Failed = nil
	}
	return out
}

// WriteJSON emits the machine output, indented for humans piping to a file.
func WriteJSON(w io.Writer, rep models.Report, outcomes []models.Outcome) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(BuildOutput(rep, outcomes))
}

// SaveJSON writes the machine output to path.
func SaveJSON(path string, rep models.Report, outcomes []models.Outcome) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report file '%s': %w", path, err)
	}
	if err := WriteJSON(f, rep, outcomes); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return f.Close()
}

func sortedErrors(errs map[string]int) []string {
	type pair struct {
		msg   string
		count int
	}
	pairs := make([]pair, 0, len(errs))
	for msg, count := range errs {
		pairs = append(pairs, pair{msg, count})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].count != pairs[j].count {
			return pairs[i].count > pairs[j].count
		}
		return pairs[i].msg < pairs[j].msg
	})

	lines := make([]string, 0, len(pairs))
	for _, p := range pairs {
		msg := p.msg
		if len(msg) > 70 {
			msg = msg[:67] + "..."
		}
		lines = append(lines, fmt.Sprintf("%4d× %s", p.count, msg))
	}
	return lines
}

func fmtDuration(d time.Duration) string {
	if d < time.Millisecond {
		return d.String()
	}
	if d < time.Second {
		return fmt.Sprintf("%.2fms", float64(d)/float64(time.Millisecond))
	}
	return fmt.Sprintf("%.2fs", d.Seconds())
}

func indent(txt, pre string) string {
	if txt == "" {
		return ""
	}
	trimmed := strings.TrimRight(txt, "\n")
	return pre + strings.ReplaceAll(trimmed, "\n", "\n"+pre) + "\n"
}
