package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/orgenrich/internal/batch"
	"github.com/sells-group/orgenrich/internal/config"
	"github.com/sells-group/orgenrich/internal/cost"
	"github.com/sells-group/orgenrich/internal/dataset"
)

var (
	enrichInput         string
	enrichOutput        string
	enrichCheckpoint    string
	enrichMapping       string
	enrichResume        bool
	enrichNoStaff       bool
	enrichFlushEvery    int
	enrichFlushInterval time.Duration
	enrichLimit         int
)

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Enrich an input file of organizations",
	Long:  "Reads JSON, CSV or XLSX records, enriches each with ProPublica filings and website staff, and writes a checkpointed JSON snapshot. Interrupted runs continue with --resume.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := applyEnrichFlags(cmd, cfg); err != nil {
			return err
		}
		if err := cfg.Validate("enrich"); err != nil {
			return err
		}

		input, err := loadInput(cfg)
		if err != nil {
			return err
		}

		env, err := initEnv(ctx, cfg)
		if err != nil {
			return err
		}
		defer func() {
			if err := env.Close(context.WithoutCancel(ctx)); err != nil {
				zap.L().Error("close cache", zap.Error(err))
			}
		}()

		driver := batch.NewDriver(env.Enricher, batch.Options{
			OutputPath:      cfg.Output.Path,
			CheckpointPath:  cfg.Output.CheckpointPath,
			FlushEvery:      cfg.Batch.FlushEvery,
			FlushInterval:   cfg.Batch.FlushInterval(),
			Resume:          cfg.Batch.Resume,
			EnrichmentKey:   cfg.Output.EnrichmentKey,
			Cache:           env.Cache,
			Metrics:         env.Metrics,
			MetricsTextfile: cfg.Metrics.Textfile,
		})

		summary, runErr := driver.Run(ctx, input)
		hits, misses := env.Cache.Stats()
		printSummary(cmd.OutOrStdout(), summary, hits, misses)
		if env.Spend != nil {
			printSpend(cmd.OutOrStdout(), env.Spend.Totals())
		}

		if errors.Is(runErr, batch.ErrInterrupted) {
			return eris.New("enrich: interrupted; re-run with --resume to continue")
		}
		return runErr
	},
}

func init() {
	f := enrichCmd.Flags()
	f.StringVar(&enrichInput, "input", "", "input file (.json, .csv or .xlsx)")
	f.StringVar(&enrichOutput, "output", "", "output snapshot path (.json)")
	f.StringVar(&enrichCheckpoint, "checkpoint", "", "checkpoint path (default <output>.checkpoint.json)")
	f.StringVar(&enrichMapping, "mapping", "", "YAML column mapping file")
	f.BoolVar(&enrichResume, "resume", false, "continue from the checkpoint")
	f.BoolVar(&enrichNoStaff, "no-staff", false, "skip website staff extraction")
	f.IntVar(&enrichFlushEvery, "flush-every", 0, "flush after this many records (default from config)")
	f.DurationVar(&enrichFlushInterval, "flush-interval", 0, "flush at least this often, in whole seconds (default from config)")
	f.IntVar(&enrichLimit, "limit", 0, "process only the first N records")
	rootCmd.AddCommand(enrichCmd)
}

// applyEnrichFlags overrides config with flags the user set explicitly.
func applyEnrichFlags(cmd *cobra.Command, c *config.Config) error {
	f := cmd.Flags()
	if f.Changed("input") {
		c.Input.Path = enrichInput
	}
	if f.Changed("output") {
		c.Output.Path = enrichOutput
	}
	if f.Changed("checkpoint") {
		c.Output.CheckpointPath = enrichCheckpoint
	}
	if f.Changed("mapping") {
		c.Input.Mapping = enrichMapping
	}
	if f.Changed("resume") {
		c.Batch.Resume = enrichResume
	}
	if f.Changed("no-staff") {
		c.Staff.Enabled = !enrichNoStaff
	}
	if f.Changed("flush-every") {
		c.Batch.FlushEvery = enrichFlushEvery
	}
	if f.Changed("flush-interval") {
		if enrichFlushInterval < time.Second || enrichFlushInterval%time.Second != 0 {
			return eris.Errorf("enrich: --flush-interval must be a whole number of seconds, got %s", enrichFlushInterval)
		}
		c.Batch.FlushIntervalSecs = int(enrichFlushInterval / time.Second)
	}
	if f.Changed("limit") {
		c.Input.Limit = enrichLimit
	}
	return nil
}

// loadInput reads the input file and logs records that cannot be matched.
// Invalid records are kept so output indexes stay aligned with input.
func loadInput(c *config.Config) (*dataset.Dataset, error) {
	opts := dataset.Options{Limit: c.Input.Limit}
	if c.Input.Mapping != "" {
		m, err := dataset.LoadMapping(c.Input.Mapping)
		if err != nil {
			return nil, err
		}
		opts.Mapping = m
	}

	ds, err := dataset.Load(c.Input.Path, opts)
	if err != nil {
		return nil, err
	}
	zap.L().Info("input loaded",
		zap.String("path", ds.Path),
		zap.String("format", ds.Format),
		zap.Int("records", len(ds.Records)),
		zap.String("sha256", ds.SHA256),
	)

	if !c.Input.Validate {
		return ds, nil
	}
	v, err := dataset.NewValidator(c.Input.NameFields, c.Input.EINField)
	if err != nil {
		return nil, err
	}
	issues, err := v.Validate(ds.Records)
	if err != nil {
		return nil, err
	}
	for _, is := range issues {
		zap.L().Warn("record has no usable identity", zap.Int("index", is.Index), zap.String("detail", is.Message))
	}
	return ds, nil
}

func printSummary(w io.Writer, s batch.Summary, hits, misses int) {
	_, _ = fmt.Fprintf(w, "run %s: %s\n", s.RunID, s.State)
	_, _ = fmt.Fprintf(w, "  processed     %d/%d (resumed at %d)\n", s.Processed, s.Total, s.Resumed)
	_, _ = fmt.Fprintf(w, "  enriched      %d\n", s.Enriched)
	_, _ = fmt.Fprintf(w, "  not found     %d\n", s.NotFound)
	_, _ = fmt.Fprintf(w, "  no identity   %d\n", s.NoIdentity)
	_, _ = fmt.Fprintf(w, "  rate limited  %d\n", s.RateLimited)
	_, _ = fmt.Fprintf(w, "  network error %d\n", s.NetworkError)
	_, _ = fmt.Fprintf(w, "  error         %d\n", s.Errored)
	_, _ = fmt.Fprintf(w, "  cache         %d hits, %d misses\n", hits, misses)
	if s.Duration > 0 {
		_, _ = fmt.Fprintf(w, "  duration      %s\n", s.Duration.Round(time.Millisecond))
	}
}

func printSpend(w io.Writer, t cost.Totals) {
	_, _ = fmt.Fprintf(w, "  llm calls     %d (%d in, %d out, %d cached tokens)\n",
		t.Calls, t.InputTokens, t.OutputTokens, t.CacheReadTokens)
	_, _ = fmt.Fprintf(w, "  llm spend     $%.4f\n", t.USD)
}
