package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"gamelearn/adapters/excel"
	"gamelearn/adapters/postgres"
	"gamelearn/app"
	"gamelearn/domain/experiment"
	"gamelearn/domain/model"
	"gamelearn/internal"
	"gamelearn/internal/config"
	"gamelearn/internal/testkit"
	"gamelearn/ui"
)

// Entry point for the all-in-one server: load the trial table, run the
// full analysis batch, optionally persist the artifacts, then serve the
// results API. The cobra CLI under cmd/cli offers the same pipeline as
// separate commands.
func main() {
	godotenv.Load()
	logger := internal.DefaultLogger

	cfg, err := config.Load()
	if err != nil {
		logger.Error("configuration: %v", err)
		os.Exit(1)
	}

	ctx := context.Background()
	records, err := loadRecords(ctx, cfg)
	if err != nil {
		logger.Error("load trials: %v", err)
		os.Exit(1)
	}
	logger.Info("loaded %d trial records, %d subjects", len(records), len(records.Subjects()))

	svc := app.NewAnalysisService(logger, cfg.Analysis.Parallelism)
	rep, err := svc.Run(ctx, records, app.DefaultOutcomes())
	if err != nil {
		logger.Error("analysis: %v", err)
		os.Exit(1)
	}
	aggregates := app.DescriptiveTables(records, app.DefaultOutcomes())

	if cfg.Database.URL != "" {
		if err := persistRun(ctx, cfg.Database.URL, rep, aggregates); err != nil {
			logger.Error("persist: %v", err)
			os.Exit(1)
		}
		logger.Info("run %s persisted", rep.RunID)
	}

	server := ui.NewServer(rep, aggregates, logger)
	if err := server.ListenAndServe(cfg.Server.Port); err != nil {
		logger.Error("server: %v", err)
		os.Exit(1)
	}
}

func loadRecords(ctx context.Context, cfg *config.Config) (experiment.Sample, error) {
	if cfg.Data.TrialFile == "" {
		if cfg.Analysis.Seed != 0 {
			return testkit.Generate(testkit.DefaultParams(cfg.Analysis.Seed)), nil
		}
		return nil, fmt.Errorf("TRIAL_FILE is not set")
	}
	return excel.NewReader(cfg.Data.TrialFile).ReadTrials(ctx)
}

func persistRun(ctx context.Context, url string, rep *app.AnalysisReport, aggregates []model.AggregateTable) error {
	repo, err := postgres.Connect(ctx, url)
	if err != nil {
		return err
	}
	defer repo.Close()

	if err := repo.EnsureSchema(ctx); err != nil {
		return err
	}
	return app.Persist(ctx, repo, rep, aggregates)
}
