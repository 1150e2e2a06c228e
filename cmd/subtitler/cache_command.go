package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"subtitler/internal/transcriptcache"
)

func newCacheCommand(ctx *commandContext) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and manage the transcript cache",
	}

	cacheCmd.AddCommand(newCacheStatsCommand(ctx))
	cacheCmd.AddCommand(newCacheClearCommand(ctx))

	return cacheCmd
}

func newCacheStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show transcript cache usage",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, warn, err := openCache(ctx)
			if warn != "" {
				fmt.Fprintln(cmd.OutOrStdout(), warn)
			}
			if err != nil || store == nil {
				return err
			}
			defer store.Close()

			stats, err := store.Stats(cmd.Context())
			if err != nil {
				return err
			}
			const stampLayout = "2006-01-02 15:04"
			oldest, newest := "-", "-"
			if !stats.Oldest.IsZero() {
				oldest = stats.Oldest.Local().Format(stampLayout)
				newest = stats.Newest.Local().Format(stampLayout)
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Field", "Value"},
				[][]string{
					{"Path", stats.Path},
					{"Entries", fmt.Sprint(stats.Entries)},
					{"Sources", fmt.Sprint(stats.Sources)},
					{"Size", humanBytes(stats.Bytes)},
					{"Oldest", oldest},
					{"Newest", newest},
				},
				nil,
			))
			return nil
		},
	}
}

func newCacheClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every cached transcript",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, warn, err := openCache(ctx)
			if warn != "" {
				fmt.Fprintln(cmd.OutOrStdout(), warn)
			}
			if err != nil || store == nil {
				return err
			}
			defer store.Close()

			removed, err := store.Clear(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d cached transcripts\n", removed)
			return nil
		},
	}
}

// openCache opens the configured store. A disabled cache that has never been
// written returns a warning and no store.
func openCache(ctx *commandContext) (*transcriptcache.Store, string, error) {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return nil, "", fmt.Errorf("load configuration: %w", err)
	}
	warn := ""
	if !cfg.Cache.Enabled {
		if _, err := os.Stat(cfg.Cache.Path); errors.Is(err, os.ErrNotExist) {
			return nil, "Transcript cache is disabled (set cache.enabled = true)", nil
		}
		warn = "Transcript cache is disabled; showing existing database"
	}
	store, err := transcriptcache.Open(cfg.Cache.Path)
	if err != nil {
		return nil, warn, fmt.Errorf("open transcript cache: %w", err)
	}
	return store, warn, nil
}
