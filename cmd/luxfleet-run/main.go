// luxfleet-run evaluates a built-in per-device routine across the fleet and
// collects the results. Routines are statically linked job descriptors; the
// runner itself only sees a callable.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/luxops/luxfleet/internal/fleet"
	"github.com/luxops/luxfleet/internal/ips"
	"github.com/luxops/luxfleet/internal/miner"
	"github.com/luxops/luxfleet/internal/report"
	"github.com/luxops/luxfleet/internal/rexec"
	"github.com/luxops/luxfleet/internal/stats"
	"github.com/luxops/luxfleet/pkg/models"
)

// routine is one selectable job descriptor.
type routine struct {
	description string
	call        fleet.Call
}

func routines(client *rexec.Client) map[string]routine {
	return map[string]routine{
		"version": {
			description: "firmware and API versions",
			call: func(ctx context.Context, host string, port int) (any, error) {
				v, err := miner.GetVersion(ctx, client, host, port)
				if err != nil {
					return nil, err
				}
				return v.Value(), nil
			},
		},
		"state": {
			description: "config, profiles, version, groups, pools, atm, autotuner",
			call: func(ctx context.Context, host string, port int) (any, error) {
				return miner.GetState(ctx, client, host, port)
			},
		},
		"profiles": {
			description: "tuning profiles keyed by name",
			call: func(ctx context.Context, host string, port int) (any, error) {
				profiles, err := miner.GetProfiles(ctx, client, host, port)
				if err != nil {
					return nil, err
				}
				out := make(map[string]any, len(profiles))
				for name, p := range profiles {
					out[name] = p.Value()
				}
				return out, nil
			},
		},
		"devs": {
			description: "hash board status keyed by ASC index",
			call: func(ctx context.Context, host string, port int) (any, error) {
				devs, err := miner.GetDevs(ctx, client, host, port)
				if err != nil {
					return nil, err
				}
				out := make(map[int64]any, len(devs))
				for asc, dev := range devs {
					out[asc] = dev.Value()
				}
				return out, nil
			},
		},
		"boards": {
			description: "board details with per-chip health data",
			call: func(ctx context.Context, host string, port int) (any, error) {
				boards, err := miner.GetBoards(ctx, client, host, port)
				if err != nil {
					return nil, err
				}
				out := make(map[int64]any, len(boards))
				for bid, board := range boards {
					chips := make([]any, 0, len(board.Chips))
					for _, chip := range board.Chips {
						chips = append(chips, chip.Value())
					}
					out[bid] = map[string]any{"board": board.Board.Value(), "chips": chips}
				}
				return out, nil
			},
		},
		"atm": {
			description: "advanced thermal management status",
			call: func(ctx context.Context, host string, port int) (any, error) {
				atm, err := miner.GetATM(ctx, client, host, port)
				if err != nil {
					return nil, err
				}
				return atm.Value(), nil
			},
		},
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		ranges      stringList
		ipfile      string
		port        int
		routineName string
		listOnly    bool
		batch       int
		timeout     float64
		retries     int
		retryDelay  float64
		showAll     bool
		jsonOut     bool
		verbose     bool
		quiet       bool
	)

	flag.Var(&ranges, "range", "Address expression (repeatable); @file reads a CSV/YAML file")
	flag.StringVar(&ipfile, "ipfile", "", "CSV or YAML file with miner addresses")
	flag.IntVar(&port, "port", 4028, "API port for miners without an explicit one")
	flag.StringVar(&routineName, "routine", "", "Built-in routine to run on every device")
	flag.BoolVar(&listOnly, "list", false, "Just display the devices the routine would run on")
	flag.IntVar(&batch, "batch", 0, "Limit parallel executions")
	flag.Float64Var(&timeout, "timeout", 3, "Timeout for each command in seconds")
	flag.IntVar(&retries, "retries", 0, "Maximum number of retries for each command")
	flag.Float64Var(&retryDelay, "retries-delay", 1, "Delay in seconds between retries")
	flag.BoolVar(&showAll, "all", false, "Show full per-device output")
	flag.BoolVar(&jsonOut, "json", false, "Machine readable JSON output")
	flag.BoolVar(&verbose, "v", false, "Increase log verbosity")
	flag.BoolVar(&quiet, "q", false, "Decrease log verbosity")
	flag.Parse()

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	if quiet {
		level = slog.LevelWarn
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	client := rexec.New(rexec.Config{
		Timeout:    time.Duration(timeout * float64(time.Second)),
		Retries:    retries,
		RetryDelay: time.Duration(retryDelay * float64(time.Second)),
	})
	available := routines(client)

	job, ok := available[routineName]
	if !ok {
		names := make([]string, 0, len(available))
		for name := range available {
			names = append(names, name)
		}
		sort.Strings(names)
		if routineName != "" {
			fmt.Printf("❌ unknown routine %q\n\n", routineName)
		}
		fmt.Println("Available routines:")
		for _, name := range names {
			fmt.Printf("  %-10s %s\n", name, available[name].description)
		}
		os.Exit(2)
	}

	addrs, err := resolveAddrs(ranges, ipfile, port)
	if err != nil {
		fmt.Printf("❌ %v\n", err)
		os.Exit(2)
	}

	if listOnly {
		for _, addr := range addrs {
			fmt.Println(addr)
		}
		return
	}

	slog.Info("starting routine", "routine", routineName, "devices", len(addrs), "batch", batch)

	monitor := stats.NewMonitor()
	outcomes := fleet.Launch(ctx, addrs, job.call, fleet.Options{
		Batch:     batch,
		OnOutcome: monitor.Add,
		Progress: func(done int) {
			monitor.BatchDone(done)
			total, _, _, _ := monitor.Counts()
			slog.Info("processed", "done", total, "of", len(addrs))
		},
	})

	for _, o := range outcomes {
		switch o.Kind {
		case models.OutcomeTimeout:
			slog.Warn("failed connection", "address", o.Address.String(), "brief", o.Brief)
		case models.OutcomeErr:
			slog.Warn("routine error", "address", o.Address.String(), "brief", o.Brief)
		}
	}

	rep := monitor.Snapshot()
	rep.Command = routineName
	if jsonOut {
		if err := report.WriteJSON(os.Stdout, rep, outcomes); err != nil {
			fmt.Fprintf(os.Stderr, "failed to encode output: %v\n", err)
			os.Exit(1)
		}
		return
	}
	report.PrintConsoleReport(rep, outcomes, showAll)
}

// stringList collects repeatable flags.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }
func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func resolveAddrs(ranges []string, ipfile string, port int) ([]models.Address, error) {
	var addrs []models.Address
	for _, expr := range ranges {
		expr = strings.TrimSpace(expr)
		if expr == "" {
			continue
		}
		var (
			batch []models.Address
			err   error
		)
		if strings.HasPrefix(expr, "@") {
			batch, err = ips.LoadFile(strings.TrimPrefix(expr, "@"), port)
		} else {
			batch, err = ips.IterRanges(expr, port)
		}
		if err != nil {
			return nil, err
		}
		addrs = append(addrs, batch...)
	}
	if ipfile != "" {
		batch, err := ips.LoadFile(ipfile, port)
		if err != nil {
			return nil, err
		}
		addrs = append(addrs, batch...)
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("no devices selected (use --range or --ipfile)")
	}
	for i := range addrs {
		if addrs[i].Port == 0 {
			addrs[i].Port = port
		}
	}
	return addrs, nil
}
