// Package probe runs a single command against a single device with detailed
// step-by-step output. Used as the --dry-run path before a broadcast
// touches the whole fleet.
package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/luxops/luxfleet/internal/rexec"
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

// Run executes one verbose iteration of cmd against addr.
func Run(ctx context.Context, client *rexec.Client, addr models.Address, cmd string, parameters any) error {
	fmt.Println()
	fmt.Printf("%s%s🛠  PROBE MODE (single device) 🛠%s\n", colorBold, colorCyan, colorReset)
	fmt.Printf("%sRunning %s against %s...%s\n\n", colorDim, cmd, addr, colorReset)

	// 1. Catalog lookup
	entry, known := rexec.Lookup(cmd)
	if known {
		fmt.Printf("%s▸ catalog:%s %s\n", colorBold, colorReset, entry.Description)
		if entry.LogonRequired {
			fmt.Printf("%s▸ session:%s required — a logon/logoff pair wraps the call\n", colorBold, colorReset)
		} else {
			fmt.Printf("%s▸ session:%s not required\n", colorBold, colorReset)
		}
	} else {
		fmt.Printf("%s▸ catalog:%s %sunknown command, assuming no session%s\n", colorBold, colorReset, colorYellow, colorReset)
	}

	// 2. Parameter normalization
	params, err := rexec.ParamsToList(parameters)
	if err != nil {
		return err
	}
	if len(params) > 0 {
		fmt.Printf("%s▸ parameter:%s %q\n", colorBold, colorReset, rexec.JoinParams(params))
	} else {
		fmt.Printf("%s▸ parameter:%s (none)\n", colorBold, colorReset)
	}

	cfg := client.Config()
	fmt.Printf("%s▸ tuning:%s timeout %s, retries %d, retry delay %s\n\n",
		colorBold, colorReset, cfg.Timeout, cfg.Retries, cfg.RetryDelay)

	// 3. Execute
	start := time.Now()
	reply, err := client.Rexec(ctx, addr.Host, addr.Port, cmd, parameters)
	latency := time.Since(start)
	if err != nil {
		fmt.Printf("%s✘ failed after %s:%s %v\n", colorRed, latency.Round(time.Millisecond), colorReset, err)
		return err
	}
	fmt.Printf("%s✔ replied in %s%s\n\n", colorGreen, latency.Round(time.Millisecond), colorReset)

	// 4. Envelope
	if first, ok := reply.First(); ok {
		statusColor := colorGreen
		if first.Status == "E" {
			statusColor = colorRed
		}
		fmt.Printf("%s▸ STATUS[0]:%s %s%s%s Code=%d Msg=%q\n",
			colorBold, colorReset, statusColor, first.Status, colorReset, first.Code, first.Msg)
	} else {
		fmt.Printf("%s▸ STATUS:%s %smissing%s\n", colorBold, colorReset, colorRed, colorReset)
	}
	if err := rexec.Validate(reply); err != nil {
		fmt.Printf("%s✘ envelope invalid:%s %v\n", colorRed, colorReset, err)
		return err
	}

	// 5. Full reply
	m, err := reply.Map()
	if err != nil {
		return err
	}
	pretty, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	fmt.Printf("\n%s▸ reply:%s\n%s\n", colorBold, colorReset, pretty)
	return nil
}
