// Command topsalign aligns the subswath frames of a catalog of Sentinel-1
// TOPS acquisitions onto a common super-master geometry and stitches each
// acquisition into one image (mode 2), or builds the baseline table and
// plots for the catalog (mode 1).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/banshee-data/topsalign/internal/config"
	"github.com/banshee-data/topsalign/internal/db"
	"github.com/banshee-data/topsalign/internal/exttool"
	"github.com/banshee-data/topsalign/internal/monitoring"
	"github.com/banshee-data/topsalign/internal/observability"
	"github.com/banshee-data/topsalign/internal/pipeline"
	"github.com/banshee-data/topsalign/internal/version"
)

// Exit codes
const (
	exitOK           = 0
	exitUsage        = 1
	exitMissingInput = 2
	exitProcessing   = 3
)

// ErrUsage reports a malformed command line.
var ErrUsage = errors.New("usage: topsalign [flags] <catalog> <dem> <mode>")

const usageText = `usage: topsalign [flags] <catalog> <dem> <mode>

  catalog  acquisition list, one line per acquisition:
           image1:image2:...:orbit
           the first image of the first line is the super-master
  dem      DEM grid (dem.grd)
  mode     1 = baseline table and plots
           2 = align subswaths and stitch every acquisition

flags:
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

type cliFlags struct {
	configPath  string
	dbPath      string
	metricsFile string
	traceFile   string
	workdir     string
	onError     string
	workers     int
	dryRun      bool
	verbose     bool
	showVersion bool
}

func parseFlags(args []string, stderr io.Writer) (*cliFlags, []string, error) {
	f := &cliFlags{}
	fs := flag.NewFlagSet("topsalign", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprint(stderr, usageText)
		fs.PrintDefaults()
	}
	fs.StringVar(&f.configPath, "config", "", "JSON configuration file (defaults apply for omitted keys)")
	fs.StringVar(&f.dbPath, "db", "", "SQLite run ledger (disabled when empty)")
	fs.StringVar(&f.metricsFile, "metrics-file", "", "write Prometheus metrics to this file after the run")
	fs.StringVar(&f.traceFile, "trace-file", "", "write stage trace spans to this file")
	fs.StringVar(&f.workdir, "workdir", ".", "directory holding the raw data and receiving products")
	fs.StringVar(&f.onError, "on-error", "", "line error policy: fail or skip (overrides config)")
	fs.IntVar(&f.workers, "workers", 0, "lines processed concurrently after the super-master line (overrides config)")
	fs.BoolVar(&f.dryRun, "dry-run", false, "check inputs and print the plan without running any tool")
	fs.BoolVar(&f.verbose, "v", false, "verbose logging")
	fs.BoolVar(&f.showVersion, "version", false, "print version and exit")

	if err := fs.Parse(args); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrUsage, err)
	}
	if f.showVersion {
		return f, nil, nil
	}
	if fs.NArg() != 3 {
		fs.Usage()
		return nil, nil, ErrUsage
	}
	return f, fs.Args(), nil
}

// buildOptions merges the config file, flags and positional arguments.
func buildOptions(f *cliFlags, args []string) (pipeline.Options, *config.Config, error) {
	cfg := config.Empty()
	if f.configPath != "" {
		loaded, err := config.Load(f.configPath)
		if err != nil {
			return pipeline.Options{}, nil, fmt.Errorf("%w: %v", ErrUsage, err)
		}
		cfg = loaded
	}

	workdir, err := filepath.Abs(f.workdir)
	if err != nil {
		return pipeline.Options{}, nil, fmt.Errorf("resolve workdir: %w", err)
	}
	opts := cfg.Options(workdir)
	if opts.Catalog, err = filepath.Abs(args[0]); err != nil {
		return pipeline.Options{}, nil, fmt.Errorf("resolve catalog: %w", err)
	}
	if opts.DEM, err = filepath.Abs(args[1]); err != nil {
		return pipeline.Options{}, nil, fmt.Errorf("resolve DEM: %w", err)
	}
	if opts.Mode, err = pipeline.ParseMode(args[2]); err != nil {
		return pipeline.Options{}, nil, fmt.Errorf("%w: %v", ErrUsage, err)
	}
	if f.onError != "" {
		if opts.OnError, err = pipeline.ParseErrorPolicy(f.onError); err != nil {
			return pipeline.Options{}, nil, fmt.Errorf("%w: %v", ErrUsage, err)
		}
	}
	if f.workers > 0 {
		opts.Workers = f.workers
	}
	if err := opts.Validate(); err != nil {
		return pipeline.Options{}, nil, fmt.Errorf("%w: %v", ErrUsage, err)
	}
	return opts, cfg, nil
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, ErrUsage):
		return exitUsage
	case errors.Is(err, pipeline.ErrMissingInput):
		return exitMissingInput
	default:
		return exitProcessing
	}
}

func run(args []string, stdout, stderr io.Writer) int {
	logger := log.New(stderr, "", log.LstdFlags)
	monitoring.SetLogger(logger.Printf)

	f, rest, err := parseFlags(args, stderr)
	if err != nil {
		return exitCode(err)
	}
	if f.showVersion {
		fmt.Fprintln(stdout, version.String())
		return exitOK
	}
	monitoring.SetVerbose(f.verbose)

	opts, cfg, err := buildOptions(f, rest)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitCode(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = execute(ctx, f, opts, cfg, stdout)
	if err != nil {
		monitoring.Logf("topsalign: %v", err)
	}
	return exitCode(err)
}

func execute(ctx context.Context, f *cliFlags, opts pipeline.Options, cfg *config.Config, stdout io.Writer) (err error) {
	executor := exttool.NewExecutor(cfg.GetTools())
	executor.SetLogger(monitoring.DebugLogger{})

	p, err := pipeline.New(opts, executor)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUsage, err)
	}

	if f.dryRun {
		plan, err := p.Plan()
		if err != nil {
			return err
		}
		_, err = plan.WriteTo(stdout)
		return err
	}

	reg := prometheus.NewRegistry()
	collector, err := observability.NewCollector(reg)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}
	tp, shutdown, err := observability.InitTracing(ctx, observability.TracingConfig{File: f.traceFile})
	if err != nil {
		return err
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdown)

	rec := observability.NewRecorder(collector, tp)
	p.Observer = rec
	executor.Observe = rec.ObserveTool

	if f.dbPath != "" {
		ledger, oerr := db.Open(f.dbPath)
		if oerr != nil {
			return fmt.Errorf("open run ledger: %w", oerr)
		}
		defer ledger.Close()

		runRec, serr := ledger.StartRun(ctx, p.Clock, opts.Mode, opts.Catalog, opts.Workdir)
		if serr != nil {
			return serr
		}
		monitoring.Logf("run %s recorded in %s", runRec.ID, f.dbPath)
		p.Ledger = runRec
		defer func() {
			if ferr := runRec.Finish(context.Background(), err); ferr != nil {
				monitoring.Logf("ledger: %v", ferr)
			}
		}()
	}

	report, err := p.Run(ctx)
	if f.metricsFile != "" {
		if werr := collector.WriteFile(f.metricsFile); werr != nil {
			monitoring.Logf("metrics: %v", werr)
		}
	}
	if report != nil {
		printSummary(stdout, report)
	}
	if err != nil {
		return err
	}
	if failed := report.Failed(); len(failed) > 0 {
		return fmt.Errorf("%d of %d lines did not complete", len(failed), len(report.Lines))
	}
	return nil
}

func printSummary(w io.Writer, r *pipeline.Report) {
	for _, l := range r.Lines {
		if l.Err != nil {
			fmt.Fprintf(w, "line %d %s: %s (%v)\n", l.Index, l.Stem, l.Status, l.Err)
			continue
		}
		fmt.Fprintf(w, "line %d %s: %s in %s\n", l.Index, l.Stem, l.Status, l.Duration.Round(time.Millisecond))
	}
	if r.Baseline != nil {
		fmt.Fprintf(w, "baseline: %s %s %s\n", r.Baseline.Table, r.Baseline.PNG, r.Baseline.HTML)
	}
}
