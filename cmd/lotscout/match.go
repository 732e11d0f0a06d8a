package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/angus/lotscout/internal/alert"
	"github.com/angus/lotscout/internal/audit"
	"github.com/angus/lotscout/internal/matching"
)

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Run one matching pass",
	Long: `Evaluate every active fingerprint against every matchable listing,
replace the stored match set, and dispatch buy alerts.`,
	RunE: runMatch,
}

func init() {
	rootCmd.AddCommand(matchCmd)
}

func runMatch(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := newLogger()

	ctx := context.Background()
	database, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	dispatcher := alert.NewDispatcher(cfg.AlertWebhookURL, log)
	engine := matching.NewEngine(database, log).WithAlerter(dispatcher)
	trail := audit.NewTrail(database, log)

	res, err := engine.Run(ctx)
	if err != nil {
		trail.Record(ctx, "matching", false, map[string]any{"error": err.Error()})
		return err
	}
	trail.Record(ctx, "matching", true, res)
	dispatcher.Flush()

	cmd.Printf("matched %d pairs (%d precision, %d advisory, %d probable), %d winner flags\n",
		res.Matches, res.Precision, res.Advisory, res.Probable, res.WinnerFlags)
	return nil
}
