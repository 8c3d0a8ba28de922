package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/orgenrich/internal/cache"
)

var cacheClearOp string

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear the lookup cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show the number of cached lookups",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("cache"); err != nil {
			return err
		}
		ctx := cmd.Context()

		store, err := cache.OpenStore(ctx, cfg.Cache.StoreConfig())
		if err != nil {
			return err
		}
		defer store.Close() //nolint:errcheck

		n, err := store.Len(ctx)
		if err != nil {
			return eris.Wrap(err, "cache stats")
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "driver   %s\nlocation %s\nentries  %d\n",
			cfg.Cache.Driver, cacheLocation(), n)
		return nil
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete cached lookups",
	Long:  "Deletes every cached lookup, or only those of one operation with --op (e.g. propublica.search, propublica.org, staff.extract).",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("cache"); err != nil {
			return err
		}
		ctx := cmd.Context()

		store, err := cache.OpenStore(ctx, cfg.Cache.StoreConfig())
		if err != nil {
			return err
		}

		prefix := ""
		if cacheClearOp != "" {
			prefix = cache.Key{Op: cacheClearOp}.String()
		}
		n, err := store.Clear(ctx, prefix)
		if err != nil {
			_ = store.Close()
			return eris.Wrap(err, "cache clear")
		}
		// File stores persist on flush.
		if err := store.Flush(ctx); err != nil {
			_ = store.Close()
			return eris.Wrap(err, "cache clear: flush")
		}
		if err := store.Close(); err != nil {
			return eris.Wrap(err, "cache clear: close")
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "removed %d entries\n", n)
		return nil
	},
}

func init() {
	cacheClearCmd.Flags().StringVar(&cacheClearOp, "op", "", "only clear entries of this operation")
	cacheCmd.AddCommand(cacheStatsCmd, cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)
}

func cacheLocation() string {
	switch cfg.Cache.Driver {
	case cache.DriverPostgres:
		return "postgres"
	case cache.DriverRedis:
		return cfg.Cache.RedisAddr + " (prefix " + cfg.Cache.KeyPrefix + ")"
	default:
		return cfg.Cache.Path
	}
}
