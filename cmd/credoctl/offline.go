package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"credo/config"
	"credo/integrations/exports"
	"credo/native/lending"
	"credo/storage"
	"credo/storage/ledger"
)

// openLedger opens the LevelDB ledger under dataDir. It refuses to create a
// fresh database so a mistyped path fails loudly.
func openLedger(dataDir string) (*storage.LevelDB, *ledger.Store, error) {
	path := filepath.Join(dataDir, "ledger")
	if _, err := os.Stat(path); err != nil {
		return nil, nil, fmt.Errorf("ledger not found under %s: %w", dataDir, err)
	}
	db, err := storage.NewLevelDB(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open ledger: %w", err)
	}
	return db, ledger.New(db), nil
}

func exportCommand() *cobra.Command {
	c := &cobra.Command{
		Use:   "export",
		Short: "Write CSV and Parquet position reports from a stopped node's data dir",
		Long: "Loads the ledger offline and values positions with the seed prices from --config. " +
			"Stop credod first; LevelDB allows a single process.",
		Args: cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			flags := c.Flags()
			dataDir, err := flags.GetString("data-dir")
			if err != nil {
				return err
			}
			out, err := flags.GetString("out")
			if err != nil {
				return err
			}
			cfgPath, err := flags.GetString("config")
			if err != nil {
				return err
			}
			if dataDir == "" {
				return errors.New("--data-dir required")
			}

			cfg := config.Default()
			if cfgPath != "" {
				if _, err := os.Stat(cfgPath); err != nil {
					return fmt.Errorf("config: %w", err)
				}
				if cfg, err = config.Load(cfgPath); err != nil {
					return err
				}
			}
			market, err := cfg.Market()
			if err != nil {
				return err
			}
			db, store, err := openLedger(dataDir)
			if err != nil {
				return err
			}
			defer db.Close()

			pool := lending.NewPool(market.Registry, market.Oracle, market.Model)
			pool.SetStore(store)
			if err := pool.Load(c.Context()); err != nil {
				return err
			}
			rows, err := exports.CollectPositions(c.Context(), pool, market.Registry)
			if err != nil {
				return err
			}
			name := "positions-" + time.Now().UTC().Format("20060102T150405Z")
			csvPath, parquetPath, err := exports.WriteReport(out, name, rows)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.OutOrStdout(), "wrote %d rows to %s and %s\n", len(rows), csvPath, parquetPath)
			return nil
		},
	}
	c.Flags().String("data-dir", "", "credod data directory (required)")
	c.Flags().String("out", "./reports", "output directory")
	c.Flags().String("config", "", "credod config supplying assets and seed prices; defaults when empty")
	return c
}

func digestCommand() *cobra.Command {
	c := &cobra.Command{
		Use:   "digest",
		Short: "Print the BLAKE3 digest of the persisted ledger state",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			dataDir, err := c.Flags().GetString("data-dir")
			if err != nil {
				return err
			}
			if dataDir == "" {
				return errors.New("--data-dir required")
			}
			db, store, err := openLedger(dataDir)
			if err != nil {
				return err
			}
			defer db.Close()
			sum, err := store.Digest()
			if err != nil {
				return err
			}
			fmt.Fprintln(c.OutOrStdout(), hex.EncodeToString(sum[:]))
			return nil
		},
	}
	c.Flags().String("data-dir", "", "credod data directory (required)")
	return c
}
