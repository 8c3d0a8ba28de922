package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/sells-group/orgenrich/internal/batch"
)

var (
	statusOutput     string
	statusCheckpoint string
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show checkpoint progress for an output snapshot",
	Long:  "Reads the checkpoint and snapshot for an enrich run and prints progress and per-status record counts.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("output") {
			cfg.Output.Path = statusOutput
		}
		if cmd.Flags().Changed("checkpoint") {
			cfg.Output.CheckpointPath = statusCheckpoint
		}
		if err := cfg.Validate("status"); err != nil {
			return err
		}

		cpPath := cfg.Output.CheckpointPath
		if cpPath == "" {
			cpPath = batch.DefaultCheckpointPath(cfg.Output.Path)
		}
		cp, err := batch.LoadCheckpoint(cpPath)
		if err != nil {
			return err
		}
		records, err := batch.ReadSnapshot(cfg.Output.Path)
		if err != nil {
			return err
		}
		if cp != nil && len(records) > cp.Processed {
			records = records[:cp.Processed]
		}

		formatStatus(cmd.OutOrStdout(), cp, batch.Summarize(records, cfg.Output.EnrichmentKey))
		return nil
	},
}

func init() {
	statusCmd.Flags().StringVar(&statusOutput, "output", "", "output snapshot path")
	statusCmd.Flags().StringVar(&statusCheckpoint, "checkpoint", "", "checkpoint path (default <output>.checkpoint.json)")
	rootCmd.AddCommand(statusCmd)
}

// formatStatus writes checkpoint progress and snapshot counts to out.
func formatStatus(out io.Writer, cp *batch.Checkpoint, s batch.Summary) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	if cp == nil {
		_, _ = fmt.Fprintln(w, "CHECKPOINT\tnone (not started)")
	} else {
		pct := 0.0
		if cp.Total > 0 {
			pct = float64(cp.Processed) / float64(cp.Total) * 100
		}
		_, _ = fmt.Fprintf(w, "PROCESSED\t%d/%d (%.1f%%)\n", cp.Processed, cp.Total, pct)
		_, _ = fmt.Fprintf(w, "RUN\t%s\n", cp.RunID)
		if !cp.UpdatedAt.IsZero() {
			_, _ = fmt.Fprintf(w, "UPDATED\t%s\n", cp.UpdatedAt.Local().Format(time.DateTime))
		}
		if cp.Total > 0 && cp.Processed == cp.Total {
			_, _ = fmt.Fprintln(w, "STATE\tcomplete")
		} else {
			_, _ = fmt.Fprintln(w, "STATE\tresumable")
		}
	}
	_, _ = fmt.Fprintf(w, "ENRICHED\t%d\n", s.Enriched)
	_, _ = fmt.Fprintf(w, "NOT_FOUND\t%d\n", s.NotFound)
	_, _ = fmt.Fprintf(w, "NO_IDENTITY\t%d\n", s.NoIdentity)
	_, _ = fmt.Fprintf(w, "RATE_LIMITED\t%d\n", s.RateLimited)
	_, _ = fmt.Fprintf(w, "NETWORK_ERROR\t%d\n", s.NetworkError)
	_, _ = fmt.Fprintf(w, "ERROR\t%d\n", s.Errored)
	_ = w.Flush()
}
