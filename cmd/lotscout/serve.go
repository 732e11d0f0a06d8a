package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/angus/lotscout/internal/config"
	"github.com/angus/lotscout/internal/ingest"
	"github.com/angus/lotscout/internal/matching"
	"github.com/angus/lotscout/internal/refdata"
	"github.com/angus/lotscout/internal/server"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Start the HTTP server exposing job management, the stub-ingest
webhook for out-of-process scrapers, and the ranked match feed.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if servePort != 0 {
		cfg.Port = servePort
	}
	log := newLogger()

	ctx := context.Background()
	database, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	ref, err := refdata.Load(cfg.RefDataPath)
	if err != nil {
		return err
	}

	jwtConfig, err := config.NewJWTConfig()
	if err != nil {
		return fmt.Errorf("failed to create JWT config: %w", err)
	}

	engine := matching.NewEngine(database, log)
	srv := server.New(cfg, database, engine, server.NewJWTService(jwtConfig), log).
		WithEnricher(&ingest.RefEnricher{Ref: ref})
	return srv.Start()
}
