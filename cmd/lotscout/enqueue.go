package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/angus/lotscout/internal/ingest"
)

var enqueueCmd = &cobra.Command{
	Use:   "enqueue <source> <external-run-id>",
	Short: "Queue an ingestion job",
	Args:  cobra.ExactArgs(2),
	RunE:  runEnqueue,
}

func init() {
	rootCmd.AddCommand(enqueueCmd)
}

func runEnqueue(cmd *cobra.Command, args []string) error {
	source, externalRunID := args[0], args[1]
	if _, err := ingest.NewAdapter(source); err != nil {
		return fmt.Errorf("unknown source %q (registered: %v)", source, ingest.RegisteredSources())
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	database, err := openDB(context.Background(), cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	job, err := database.EnqueueJob(context.Background(), source, externalRunID)
	if err != nil {
		return err
	}
	cmd.Printf("queued job %s for %s run %s\n", job.ID, job.Source, job.ExternalRunID)
	return nil
}
