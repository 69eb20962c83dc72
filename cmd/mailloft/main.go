// Command mailloft is the maintenance CLI for the mail storage engine:
// storage statistics, retention cleanup and attachment deduplication.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mailloft/mailloft/internal/blobstore"
	"github.com/mailloft/mailloft/internal/cache"
	"github.com/mailloft/mailloft/internal/config"
	"github.com/mailloft/mailloft/internal/index"
	"github.com/mailloft/mailloft/internal/logging"
	"github.com/mailloft/mailloft/internal/store"
)

var configFile string

func main() {
	root := &cobra.Command{
		Use:           "mailloft",
		Short:         "Maintenance tooling for the mailloft storage engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "path to config file")

	root.AddCommand(statsCmd(), cleanupCmd(), dedupeCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// openStorage loads config and wires the full storage stack.
func openStorage() (*config.Config, *store.Storage, func(), error) {
	var cfg *config.Config
	var err error
	if configFile != "" {
		cfg, err = config.NewConfigFromFile(configFile)
	} else {
		cfg, err = config.NewConfig()
	}
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := logging.NewLogger(cfg.LoggingConfig())
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}

	ix, err := index.Open(cfg.DatabaseFile, logger)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to open index: %w", err)
	}

	blobs, err := blobstore.New(cfg.DataDir, logger)
	if err != nil {
		ix.Close()
		return nil, nil, nil, fmt.Errorf("failed to open blob store: %w", err)
	}

	attachmentCache := cache.New(cfg.Cache.MaxEntries, cfg.Cache.MaxCostBytes)
	storage := store.New(ix, blobs, attachmentCache, logger)

	closeAll := func() {
		if err := ix.Close(); err != nil {
			logger.Warn("failed to close index", zap.Error(err))
		}
		_ = logger.Sync()
	}
	return cfg, storage, closeAll, nil
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print storage statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, storage, closeAll, err := openStorage()
			if err != nil {
				return err
			}
			defer closeAll()

			stats, err := storage.Stats(context.Background())
			if err != nil {
				return err
			}
			fmt.Printf("Total size:     %d bytes\n", stats.TotalBytes)
			fmt.Printf("Files:          %d\n", stats.FileCount)
			fmt.Printf("Accounts:       %d\n", stats.AccountCount)
			fmt.Printf("Cache capacity: %d bytes\n", stats.CacheCapacity)
			return nil
		},
	}
}

func cleanupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Run the retention sweeps (age, orphan, size)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, storage, closeAll, err := openStorage()
			if err != nil {
				return err
			}
			defer closeAll()

			report, err := storage.RunCleanup(context.Background(), cfg.CleanupPolicy())
			if err != nil {
				return err
			}
			fmt.Printf("Removed %d files (age: %d, orphan: %d, size: %d)\n",
				report.TotalFiles(), report.AgeFiles, report.OrphanFiles, report.SizeFiles)
			return nil
		},
	}
}

func dedupeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dedupe",
		Short: "Collapse duplicate attachment rows by checksum",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, storage, closeAll, err := openStorage()
			if err != nil {
				return err
			}
			defer closeAll()

			removed, err := storage.Deduplicate(context.Background())
			if err != nil {
				return err
			}
			fmt.Printf("Removed %d duplicate attachment rows\n", removed)
			return nil
		},
	}
}
