package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/luxops/luxfleet/internal/fleet"
	"github.com/luxops/luxfleet/internal/ips"
	"github.com/luxops/luxfleet/internal/probe"
	"github.com/luxops/luxfleet/internal/report"
	"github.com/luxops/luxfleet/internal/rexec"
	"github.com/luxops/luxfleet/internal/stats"
	"github.com/luxops/luxfleet/internal/template"
	"github.com/luxops/luxfleet/internal/tui"
	"github.com/luxops/luxfleet/pkg/config"
	"github.com/luxops/luxfleet/pkg/models"
	"github.com/mattn/go-isatty"
)

// stringList collects repeatable flags (--range, --params).
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }
func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func main() {
	// Panic recovery - prevent crashes
	defer func() {
		if r := recover(); r != nil {
			fmt.Printf("\n❌ Fatal error: %v\n", r)
			os.Exit(1)
		}
	}()

	// Handle interrupt signals (Ctrl+C, SIGTERM): cancel the run, let
	// outstanding jobs unwind and release their sessions.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		configPath string
		ranges     stringList
		params     stringList
		ipfile     string
		rangeStart string
		rangeEnd   string
		port       int
		cmdName    string
		batch      int
		batchDelay float64
		rateLimit  float64
		stopIf     string
		timeout    float64
		retries    int
		retryDelay float64
		showAll    bool
		jsonOut    bool
		dryRun     bool
		liveView   bool
		verbose    bool
		quiet      bool
	)

	flag.StringVar(&configPath, "c", "", "Path to YAML configuration file")
	flag.Var(&ranges, "range", "Address expression (repeatable); @file reads a CSV/YAML file")
	flag.StringVar(&ipfile, "ipfile", "", "CSV or YAML file with miner addresses")
	flag.StringVar(&rangeStart, "range_start", "", "IP start range (legacy)")
	flag.StringVar(&rangeEnd, "range_end", "", "IP end range (legacy)")
	flag.IntVar(&port, "port", 0, "API port for miners without an explicit one (default 4028)")
	flag.StringVar(&cmdName, "cmd", "", "Command to execute on the fleet")
	flag.Var(&params, "params", "Command parameter (repeatable); all positional or all k=v")
	flag.IntVar(&batch, "batch", 0, "Devices contacted concurrently per batch (0 = all at once)")
	flag.Float64Var(&batchDelay, "batch-delay", 0, "Seconds to wait between batches")
	flag.Float64Var(&rateLimit, "rate", 0, "Cap on job starts per second (0 = unlimited)")
	flag.StringVar(&stopIf, "stop-if", "", "Abort condition, e.g. 'errors > 25%'")
	flag.Float64Var(&timeout, "timeout", 0, "Timeout for each command in seconds")
	flag.IntVar(&retries, "retries", -1, "Maximum number of retries for each command")
	flag.Float64Var(&retryDelay, "retries-delay", 0, "Delay in seconds between retries")
	flag.BoolVar(&showAll, "all", false, "Show full per-device output")
	flag.BoolVar(&jsonOut, "json", false, "Machine readable JSON output")
	flag.BoolVar(&dryRun, "dry-run", false, "Probe the first device verbosely instead of broadcasting")
	flag.BoolVar(&liveView, "progress", false, "Live progress dashboard")
	flag.BoolVar(&verbose, "v", false, "Increase log verbosity")
	flag.BoolVar(&quiet, "q", false, "Decrease log verbosity")
	flag.Parse()

	setupLogging(verbose, quiet)

	// 1. Load from Config File if provided
	cfg := config.Defaults()
	if configPath != "" {
		loadedCfg, err := config.LoadConfig(configPath)
		if err != nil {
			fmt.Printf("Error loading config file: %v\n", err)
			os.Exit(2)
		}
		cfg = loadedCfg
	}

	// 2. Override with Flags (Precedence: Flag > File)
	if cmdName != "" {
		cfg.Cmd = cmdName
	}
	if len(params) > 0 {
		cfg.Params = params
	}
	if len(ranges) > 0 {
		cfg.Ranges = append(cfg.Ranges, ranges...)
	}
	if rangeStart != "" && rangeEnd != "" {
		cfg.Ranges = append(cfg.Ranges, rangeStart+"-"+rangeEnd)
	}
	if ipfile != "" {
		cfg.IPFile = ipfile
	}
	if port > 0 {
		cfg.Port = port
	}
	if batch > 0 {
		cfg.Batch = batch
	}
	if batchDelay > 0 {
		cfg.BatchDelay = secondsToDuration(batchDelay)
	}
	if rateLimit > 0 {
		cfg.Rate = rateLimit
	}
	if stopIf != "" {
		cfg.StopIf = stopIf
	}
	if timeout > 0 {
		cfg.Timeout = secondsToDuration(timeout)
	}
	if retries >= 0 {
		cfg.Retries = retries
	}
	if retryDelay > 0 {
		cfg.RetryDelay = secondsToDuration(retryDelay)
	}

	// 3. No command and a terminal: fall into the interactive builder.
	interactive := cfg.Cmd == "" && isatty.IsTerminal(os.Stdout.Fd()) && !jsonOut
	if !interactive {
		if err := config.Validate(cfg); err != nil {
			fmt.Printf("Configuration Error: %v\n", err)
			os.Exit(2)
		}
	}

	rexec.SetDefault(rexec.Config{
		Timeout:    cfg.Timeout,
		Retries:    cfg.Retries,
		RetryDelay: cfg.RetryDelay,
	})

	// 4. Dry run probes the first device only.
	if dryRun {
		addrs, _, err := resolveFleet(cfg)
		if err != nil {
			fmt.Printf("❌ %v\n", err)
			os.Exit(2)
		}
		vp := template.NewVariableProcessor()
		session := template.DeviceSession(addrs[0].Host, addrs[0].Port, 0)
		expanded := make([]string, len(cfg.Params))
		for i, p := range cfg.Params {
			expanded[i] = vp.Process(p, session)
		}
		if err := probe.Run(ctx, rexec.Default(), addrs[0], cfg.Cmd, paramsValue(expanded)); err != nil {
			os.Exit(1)
		}
		return
	}

	// 5. Interactive or live dashboard paths run under bubbletea.
	if interactive || liveView {
		p := tea.NewProgram(tui.NewModel(cfg, resolveFleet, !interactive))
		m, err := p.Run()
		if err != nil {
			fmt.Printf("Error running program: %v\n", err)
			os.Exit(1)
		}
		if finalModel, ok := m.(tui.MainModel); ok {
			if finalModel.Err() != nil {
				fmt.Printf("❌ %v\n", finalModel.Err())
				os.Exit(2)
			}
			outcomes := finalModel.Outcomes()
			if len(outcomes) > 0 {
				emit(finalModel.Report(), outcomes, jsonOut, showAll)
			}
		}
		return
	}

	// 6. Headless broadcast.
	addrs, call, err := resolveFleet(cfg)
	if err != nil {
		fmt.Printf("❌ %v\n", err)
		os.Exit(2)
	}
	slog.Info("starting fleet run", "cmd", cfg.Cmd, "devices", len(addrs), "batch", cfg.Batch)

	monitor := stats.NewMonitor()
	outcomes := fleet.Launch(ctx, addrs, call, fleet.Options{
		Batch:      cfg.Batch,
		BatchDelay: cfg.BatchDelay,
		Rate:       cfg.Rate,
		Abort:      cfg.AbortRule(),
		OnOutcome:  monitor.Add,
		Progress: func(done int) {
			monitor.BatchDone(done)
			total, ok, timeouts, errs := monitor.Counts()
			slog.Info("batch done", "done", total, "of", len(addrs), "ok", ok, "timeout", timeouts, "error", errs)
		},
	})

	rep := monitor.Snapshot()
	rep.Command = cfg.Cmd
	if reason := fleet.AbortedReason(outcomes); reason != "" {
		rep.Aborted = true
		rep.AbortReason = reason
	}
	emit(rep, outcomes, jsonOut, showAll)
}

// resolveFleet expands the configured selection into concrete addresses and
// builds the per-device routine the runner evaluates.
func resolveFleet(cfg *config.Config) ([]models.Address, fleet.Call, error) {
	var addrs []models.Address
	for _, expr := range cfg.Ranges {
		expr = strings.TrimSpace(expr)
		if expr == "" {
			continue
		}
		var (
			batch []models.Address
			err   error
		)
		if strings.HasPrefix(expr, "@") {
			batch, err = ips.LoadFile(strings.TrimPrefix(expr, "@"), cfg.Port)
		} else {
			batch, err = ips.IterRanges(expr, cfg.Port)
		}
		if err != nil {
			return nil, nil, err
		}
		addrs = append(addrs, batch...)
	}
	if cfg.IPFile != "" {
		batch, err := ips.LoadFile(cfg.IPFile, cfg.Port)
		if err != nil {
			return nil, nil, err
		}
		addrs = append(addrs, batch...)
	}
	if len(addrs) == 0 {
		return nil, nil, fmt.Errorf("no devices selected (use --range or --ipfile)")
	}
	for i := range addrs {
		if addrs[i].Port == 0 {
			addrs[i].Port = cfg.Port
		}
	}

	// Params compile once; placeholders expand per device.
	vp := template.NewVariableProcessor()
	compiled := make([]*template.Compiled, len(cfg.Params))
	static := true
	for i, p := range cfg.Params {
		compiled[i] = template.Compile(p)
		if compiled[i].HasVars() {
			static = false
		}
	}

	client := rexec.Default()
	cmd := cfg.Cmd
	baseParams := cfg.Params

	call := func(ctx context.Context, host string, port int) (any, error) {
		params := baseParams
		if !static {
			session := template.DeviceSession(host, port, 0)
			params = make([]string, len(compiled))
			for i, ct := range compiled {
				params[i] = ct.Execute(vp, session)
			}
		}
		reply, err := client.Rexec(ctx, host, port, cmd, paramsValue(params))
		if err != nil {
			return nil, err
		}
		if err := rexec.Validate(reply); err != nil {
			return nil, err
		}
		return reply.Map()
	}
	return addrs, call, nil
}

// paramsValue hands the executor nil for an empty list so the request
// carries no parameter key at all.
func paramsValue(params []string) any {
	if len(params) == 0 {
		return nil
	}
	return params
}

func emit(rep models.Report, outcomes []models.Outcome, jsonOut, showAll bool) {
	if jsonOut {
		if err := report.WriteJSON(os.Stdout, rep, outcomes); err != nil {
			fmt.Fprintf(os.Stderr, "failed to encode output: %v\n", err)
			os.Exit(1)
		}
		return
	}
	report.PrintConsoleReport(rep, outcomes, showAll)
}

func setupLogging(verbose, quiet bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	if quiet {
		level = slog.LevelWarn
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
