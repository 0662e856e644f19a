package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/binref/symfind/internal/config"
	"github.com/binref/symfind/internal/store"
)

// cacheCmd creates the cache management command tree.
func cacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the local symbol cache",
	}

	cmd.AddCommand(cacheStatsCmd())
	cmd.AddCommand(cacheListCmd())
	cmd.AddCommand(cacheClearCmd())
	cmd.AddCommand(cachePathCmd())

	return cmd
}

func cacheStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:          "stats",
		Short:        "Show cache entry count and total size",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withJournal(cmd, func(j *store.Journal) error {
				count, size, err := j.Stats()
				if err != nil {
					return err
				}

				fmt.Printf("%d entries, %d bytes\n", count, size)
				return nil
			})
		},
	}
}

func cacheListCmd() *cobra.Command {
	return &cobra.Command{
		Use:          "list",
		Short:        "List cached entries",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withJournal(cmd, func(j *store.Journal) error {
				entries, err := j.Entries()
				if err != nil {
					return err
				}

				for _, e := range entries {
					fmt.Printf("%s\t%d\t%s\n", e.Key, e.Size, e.StoredAt.Format("2006-01-02 15:04:05"))
				}
				return nil
			})
		},
	}
}

func cacheClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:          "clear",
		Short:        "Remove all cached files and journal entries",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.NewLoader().Load(cmd)
			if err != nil {
				return err
			}

			if err := os.RemoveAll(cfg.SymbolCache); err != nil {
				return fmt.Errorf("failed to remove cache: %w", err)
			}

			fmt.Printf("Cleared %s\n", cfg.SymbolCache)
			return nil
		},
	}
}

func cachePathCmd() *cobra.Command {
	return &cobra.Command{
		Use:          "path",
		Short:        "Print the cache directory path",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.NewLoader().Load(cmd)
			if err != nil {
				return err
			}

			fmt.Println(cfg.SymbolCache)
			return nil
		},
	}
}

func withJournal(cmd *cobra.Command, fn func(*store.Journal) error) error {
	cfg, err := config.NewLoader().Load(cmd)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.SymbolCache, 0o755); err != nil {
		return err
	}

	journal, err := store.OpenJournal(cfg.SymbolCache)
	if err != nil {
		return err
	}
	defer journal.Close()

	return fn(journal)
}
