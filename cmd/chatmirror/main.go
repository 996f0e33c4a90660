package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/chatmirror/chatmirror/internal/backfill"
	"github.com/chatmirror/chatmirror/internal/chatlog"
	"github.com/chatmirror/chatmirror/internal/config"
	"github.com/chatmirror/chatmirror/internal/ingest"
	"github.com/chatmirror/chatmirror/internal/logger"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

func main() {
	root := &cobra.Command{
		Use:   "chatmirror",
		Short: "Webhook chat ingestion and conversation history service",
	}

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP service",
		Run: func(cmd *cobra.Command, args []string) {
			runServe()
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "backfill",
		Short: "Run one historical import against the configured upstream and print the report",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBackfill(cmd.Context())
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(Version)
		},
	})

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runBackfill(ctx context.Context) error {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger.Init(cfg.Log.Level, cfg.Log.Format)

	store := chatlog.NewStore()
	ingestService := ingest.NewService(logger.L, store)
	backfillService := backfill.NewService(logger.L, cfg.Upstream, store, ingestService)

	report, err := backfillService.Run(ctx)
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
