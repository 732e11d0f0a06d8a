package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/angus/lotscout/internal/audit"
	"github.com/angus/lotscout/internal/db"
	"github.com/angus/lotscout/internal/ingest"
	"github.com/angus/lotscout/internal/lease"
	"github.com/angus/lotscout/internal/refdata"
)

var (
	workerSource   string
	workerOnce     bool
	workerInterval time.Duration
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the ingestion worker loop",
	Long: `Claim queued and resumable ingestion jobs under a TTL lease and
execute them within the configured wall-clock budget. Many workers may run
concurrently; the lease guarantees each job has one active claimant.`,
	RunE: runWorker,
}

func init() {
	workerCmd.Flags().StringVar(&workerSource, "source", "", "Only claim jobs for this source")
	workerCmd.Flags().BoolVar(&workerOnce, "once", false, "Drain claimable jobs and exit")
	workerCmd.Flags().DurationVar(&workerInterval, "interval", 15*time.Second, "Poll interval between claim attempts")
	rootCmd.AddCommand(workerCmd)
}

func runWorker(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := newLogger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	database, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	ref, err := refdata.Load(cfg.RefDataPath)
	if err != nil {
		return err
	}

	manager := lease.NewManager(database, time.Duration(cfg.LeaseTTLSeconds)*time.Second, log)
	executor := ingest.NewExecutor(database, database, cfg.PageSize, cfg.MaxAttempts, log).
		WithEnricher(&ingest.RefEnricher{Ref: ref})
	trail := audit.NewTrail(database, log)
	budget := time.Duration(cfg.BudgetSeconds) * time.Second

	log.Info().Str("source", workerSource).Dur("budget", budget).Msg("worker starting")

	ticker := time.NewTicker(workerInterval)
	defer ticker.Stop()

	for {
		drainJobs(ctx, manager, executor, database, trail, budget, log)
		if workerOnce {
			return nil
		}
		select {
		case <-ctx.Done():
			log.Info().Msg("worker stopping")
			return nil
		case <-ticker.C:
		}
	}
}

// drainJobs claims and executes jobs until nothing is claimable or the
// context is cancelled.
func drainJobs(ctx context.Context, manager *lease.Manager, executor *ingest.Executor,
	database *db.DB, trail *audit.Trail, budget time.Duration, log zerolog.Logger) {
	for ctx.Err() == nil {
		leased, ok, err := manager.TryClaim(ctx, workerSource)
		if err != nil {
			log.Error().Err(err).Msg("claim failed")
			return
		}
		if !ok {
			return
		}

		job := leased.Job
		runName := "ingest:" + job.Source
		adapter, err := ingest.NewAdapter(job.Source)
		if err != nil {
			// A job for an unregistered source can never make progress.
			if failErr := database.FailJob(ctx, job.ID, leased.Token, err.Error()); failErr != nil {
				log.Error().Err(failErr).Msg("failed to fail job")
			}
			trail.Record(ctx, runName, false, map[string]any{"job_id": job.ID, "error": err.Error()})
			continue
		}

		res, err := executor.Run(ctx, leased, adapter, budget)
		detail := map[string]any{
			"job_id":       job.ID,
			"cursor":       res.Cursor,
			"fetched":      res.Fetched,
			"upserted":     res.Upserted,
			"map_rejects":  res.MapRejects,
			"sink_rejects": res.SinkRejects,
			"terminal":     res.Terminal,
		}
		if err != nil {
			detail["error"] = err.Error()
			log.Error().Err(err).Str("job_id", job.ID.String()).Msg("invocation failed")
		}
		trail.Record(ctx, runName, err == nil, detail)
	}
}
