// Command labelctl labels one symbol over one range and prints a summary.
//
// With -input it labels a JSON array of candles from a file instead of
// reading ClickHouse.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"

	"MarketLabel/internal/di"
	"MarketLabel/internal/domain/models"
	domsvc "MarketLabel/internal/domain/service"
	"MarketLabel/internal/usecase"
	"MarketLabel/pkg/config"
	applogger "MarketLabel/pkg/logger"
	"MarketLabel/pkg/util"
)

func main() {
	_ = godotenv.Load()
	os.Exit(run(os.Args[1:], os.Stdout))
}

// run returns the process exit code: 0 on success, 1 on failure, 2 on bad usage.
func run(args []string, stdout io.Writer) int {
	fs := flag.NewFlagSet("labelctl", flag.ContinueOnError)
	var (
		configPath = fs.String("config", "config/config.yaml", "config file path")
		symbol     = fs.String("symbol", "", "symbol to label (required)")
		tf         = fs.String("tf", "", "timeframe: 1s, 1m or 5m (defaults to labeling.timeframe)")
		from       = fs.String("from", "", "range start, RFC3339 or unix time (defaults to to - lookback)")
		to         = fs.String("to", "", "range end, RFC3339 or unix time (defaults to now)")
		persist    = fs.Bool("persist", false, "store labels and publish the run event")
		input      = fs.String("input", "", "label candles from this JSON file instead of ClickHouse")
		debug      = fs.Bool("debug", false, "print segment diagnostics (with -input)")
		timeout    = fs.Duration("timeout", 5*time.Minute, "overall deadline")
	)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *symbol == "" {
		fs.Usage()
		return 2
	}

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Printf("config load failed: %v", err)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var res *models.LabelRun
	if *input != "" {
		res, err = computeFile(ctx, cfg, *input, *symbol, *tf, *debug)
	} else {
		res, err = runStored(ctx, cfg, *symbol, *tf, *from, *to, *persist)
	}
	if err != nil {
		log.Printf("label run failed: %v", err)
		return 1
	}
	printSummary(stdout, res)
	return 0
}

func runStored(ctx context.Context, cfg *config.Config, symbol, tf, from, to string, persist bool) (*models.LabelRun, error) {
	p := domsvc.RunParams{Symbol: symbol, Timeframe: tf, Persist: persist}
	var ok bool
	if from != "" {
		if p.From, ok = util.ParseTime(from); !ok {
			return nil, fmt.Errorf("cannot parse -from %q", from)
		}
	}
	if to != "" {
		if p.To, ok = util.ParseTime(to); !ok {
			return nil, fmt.Errorf("cannot parse -to %q", to)
		}
	}

	labeler, cleanup, err := di.InitializeLabeler(cfg)
	if err != nil {
		return nil, err
	}
	defer cleanup()
	return labeler.Run(ctx, p)
}

func computeFile(ctx context.Context, cfg *config.Config, path, symbol, tf string, debug bool) (*models.LabelRun, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var candles []models.Candle
	if err := json.Unmarshal(b, &candles); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	l, err := applogger.New(&applogger.Config{Level: cfg.Log.Level, Format: "console", Output: "stderr"})
	if err != nil {
		return nil, err
	}
	labeler, err := usecase.NewLabeler(cfg.Labeling, nil, nil, nil, nil, nil, l)
	if err != nil {
		return nil, err
	}
	return labeler.Compute(ctx, symbol, tf, candles, debug)
}

func printSummary(w io.Writer, run *models.LabelRun) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "run\t%s\n", run.RunID)
	fmt.Fprintf(tw, "symbol\t%s %s\n", run.Symbol, run.Timeframe)
	fmt.Fprintf(tw, "range\t%s .. %s\n", run.From.Format(time.RFC3339), run.To.Format(time.RFC3339))
	fmt.Fprintf(tw, "bars\t%d\n", run.Stats.Bars)
	fmt.Fprintf(tw, "rise/fall/flat\t%d/%d/%d\n", run.Stats.Rise, run.Stats.Fall, run.Stats.Flat)
	fmt.Fprintf(tw, "volume candidates\t%d (%d without reference)\n", run.Stats.Candidates, run.Stats.SkippedNoReference)
	fmt.Fprintf(tw, "anomaly intervals\t%d covering %d bars\n", run.Stats.Intervals, run.Stats.AnomalyBars)
	_ = tw.Flush()

	for _, iv := range run.Intervals {
		fmt.Fprintf(w, "  %s .. %s\n", iv.Start.Format(time.RFC3339), iv.End.Format(time.RFC3339))
	}
	if d := run.Diagnostics; d != nil {
		fmt.Fprintln(w, "segments:")
		for _, s := range d.Segments {
			fmt.Fprintf(w, "  [%d, %d] %s\n", s.Start, s.End, s.Label)
		}
		for _, s := range d.Flats {
			fmt.Fprintf(w, "  flat [%d, %d]\n", s.Start, s.End)
		}
	}
}
