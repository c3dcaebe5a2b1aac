package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var (
	flagConfig  string
	flagDebug   bool
	flagLogFile string
)

func main() {
	root := &cobra.Command{
		Use:           "poolwatch",
		Short:         "CKPool log/ledger ingester with a per-wallet status view",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			configureLogging(flagLogFile, true, flagDebug)
		},
	}
	root.PersistentFlags().StringVar(&flagConfig, "config", "", "path to config.toml")
	root.PersistentFlags().StringVar(&flagLogFile, "log-file", "", "append program logs to this file")
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "enable debug logging")

	root.AddCommand(newIngestCmd(), newIngestLedgerCmd(), newRewardsCmd(), newStatusCmd(), newSampleCmd())

	err := root.Execute()
	logger.Stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newIngestCmd() *cobra.Command {
	var dbPath, logPath string
	var fromBytes int64
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest a ckpool log file into the state database",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStateStore(dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			timeout := time.Duration(defaultWorkerTimeoutSeconds) * time.Second
			if cfg, ok := maybeLoadConfig(); ok {
				timeout = cfg.WorkerTimeout()
			}
			n, err := store.IngestLog(logPath, fromBytes, timeout)
			if err != nil {
				return err
			}
			fmt.Printf("Ingested %d records from %s\n", n, logPath)
			if cursor, ok, err := getMeta(store.db, cursorKey(logPath)); err == nil && ok {
				fmt.Printf("Cursor now at byte: %s\n", cursor)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "state database path")
	cmd.Flags().StringVar(&logPath, "log", "", "ckpool log file")
	cmd.Flags().Int64Var(&fromBytes, "from-bytes", 0, "byte offset to start from (0 resumes the saved cursor)")
	_ = cmd.MarkFlagRequired("db")
	_ = cmd.MarkFlagRequired("log")
	return cmd
}

func newIngestLedgerCmd() *cobra.Command {
	var dbPath, path string
	cmd := &cobra.Command{
		Use:   "ingest-ledger",
		Short: "Ingest a blocks/rewards ledger (CSV, JSON, or JSONL)",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStateStore(dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			n, err := store.IngestLedger(path)
			if err != nil {
				return err
			}
			fmt.Printf("Ingested %d block entries from %s\n", n, path)
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "state database path")
	cmd.Flags().StringVar(&path, "path", "", "ledger file")
	_ = cmd.MarkFlagRequired("db")
	_ = cmd.MarkFlagRequired("path")
	return cmd
}

func newRewardsCmd() *cobra.Command {
	var dbPath, address string
	cmd := &cobra.Command{
		Use:   "rewards",
		Short: "List block rewards credited to a wallet",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStateStore(dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			rewards, err := store.WalletRewards(address)
			if err != nil {
				return err
			}
			data, err := fastJSONMarshal(rewards)
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "state database path")
	cmd.Flags().StringVar(&address, "address", "", "wallet address")
	_ = cmd.MarkFlagRequired("db")
	_ = cmd.MarkFlagRequired("address")
	return cmd
}

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print the current snapshot as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			if flagConfig == "" {
				return errors.New("--config is required")
			}
			cfg, err := loadConfig(flagConfig)
			if err != nil {
				return err
			}
			store, err := openStateStore(cfg.coinDBPath("default", CoinConfig{DBPath: cfg.DBPath}))
			if err != nil {
				return err
			}
			defer store.Close()

			view := newPoolView(store, cfg.LogPath, cfg.StatusURL, cfg.WorkerTimeout())
			data, err := fastJSONMarshal(view.Snapshot())
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		},
	}
	return cmd
}

func newSampleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sample",
		Short: "Run the always-on sampler for all configured coins",
		RunE: func(cmd *cobra.Command, args []string) error {
			if flagConfig == "" {
				return errors.New("--config is required")
			}
			cfg, err := loadConfig(flagConfig)
			if err != nil {
				return err
			}
			if cfg.LogFile != "" || cfg.Debug {
				configureLogging(cfg.LogFile, true, cfg.Debug || flagDebug)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runSampler(ctx, cfg)
		},
	}
	return cmd
}

// maybeLoadConfig loads the --config file when one was given; one-shot
// commands fall back to built-in defaults without it.
func maybeLoadConfig() (Config, bool) {
	if flagConfig == "" {
		return Config{}, false
	}
	cfg, err := loadConfig(flagConfig)
	if err != nil {
		logger.Warn("config load failed, using defaults", "path", flagConfig, "error", err)
		return Config{}, false
	}
	return cfg, true
}
