package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"gamelearn/adapters/excel"
	"gamelearn/adapters/postgres"
	"gamelearn/app"
	"gamelearn/domain/experiment"
	"gamelearn/domain/model"
	"gamelearn/internal"
	"gamelearn/internal/config"
	"gamelearn/internal/report"
	"gamelearn/internal/testkit"
	"gamelearn/ports"
	"gamelearn/ui"
)

func main() {
	godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "gamelearn",
		Short: "Mixed-model analysis pipeline for the gamified learning experiment",
	}

	rootCmd.AddCommand(
		newAnalyzeCmd(),
		newAggregateCmd(),
		newServeCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newAnalyzeCmd() *cobra.Command {
	var file string
	var demoSeed int64
	var jsonOut bool
	var reportFile string
	var persist bool

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Fit every outcome model and run the standard counterfactual queries",
		Long: `Load the trial table, fit the mixed model for every outcome in the
catalog and evaluate the standard gamified/group/order questions.

Example: gamelearn analyze --file trials.xlsx --report report.md`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			records, err := loadRecords(cmd.Context(), cfg, file, demoSeed)
			if err != nil {
				return err
			}

			svc := app.NewAnalysisService(internal.DefaultLogger, cfg.Analysis.Parallelism)
			rep, err := svc.Run(cmd.Context(), records, app.DefaultOutcomes())
			if err != nil {
				return err
			}
			aggregates := app.DescriptiveTables(records, app.DefaultOutcomes())

			if persist && cfg.Database.URL != "" {
				if err := persistRun(cmd.Context(), cfg.Database.URL, rep, aggregates); err != nil {
					return err
				}
			}
			if reportFile != "" {
				md := report.BuildMarkdown(rep, aggregates)
				if err := os.WriteFile(reportFile, []byte(md), 0644); err != nil {
					return fmt.Errorf("write report: %w", err)
				}
			}
			if jsonOut {
				return json.NewEncoder(os.Stdout).Encode(rep)
			}
			printSummary(rep)
			return nil
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "Trial file (.xlsx or .csv); overrides TRIAL_FILE")
	cmd.Flags().Int64Var(&demoSeed, "demo-seed", 0, "Generate a synthetic dataset with this seed instead of reading a file")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit the full report as JSON")
	cmd.Flags().StringVar(&reportFile, "report", "", "Write the markdown report to this file")
	cmd.Flags().BoolVar(&persist, "persist", false, "Persist results to DATABASE_URL")

	return cmd
}

func newAggregateCmd() *cobra.Command {
	var file string
	var demoSeed int64

	cmd := &cobra.Command{
		Use:   "aggregate",
		Short: "Print descriptive condition-level tables without fitting models",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			records, err := loadRecords(cmd.Context(), cfg, file, demoSeed)
			if err != nil {
				return err
			}
			tables := app.DescriptiveTables(records, app.DefaultOutcomes())
			return json.NewEncoder(os.Stdout).Encode(tables)
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "Trial file (.xlsx or .csv); overrides TRIAL_FILE")
	cmd.Flags().Int64Var(&demoSeed, "demo-seed", 0, "Generate a synthetic dataset with this seed instead of reading a file")

	return cmd
}

func newServeCmd() *cobra.Command {
	var file string
	var demoSeed int64

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the analysis and serve the results API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			records, err := loadRecords(cmd.Context(), cfg, file, demoSeed)
			if err != nil {
				return err
			}
			svc := app.NewAnalysisService(internal.DefaultLogger, cfg.Analysis.Parallelism)
			rep, err := svc.Run(cmd.Context(), records, app.DefaultOutcomes())
			if err != nil {
				return err
			}
			aggregates := app.DescriptiveTables(records, app.DefaultOutcomes())
			server := ui.NewServer(rep, aggregates, internal.DefaultLogger)
			return server.ListenAndServe(cfg.Server.Port)
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "Trial file (.xlsx or .csv); overrides TRIAL_FILE")
	cmd.Flags().Int64Var(&demoSeed, "demo-seed", 0, "Generate a synthetic dataset with this seed instead of reading a file")

	return cmd
}

func loadRecords(ctx context.Context, cfg *config.Config, file string, demoSeed int64) (experiment.Sample, error) {
	if demoSeed != 0 {
		return testkit.Generate(testkit.DefaultParams(demoSeed)), nil
	}
	if file == "" {
		file = cfg.Data.TrialFile
	}
	if file == "" {
		return nil, fmt.Errorf("no trial file configured; pass --file, set TRIAL_FILE, or use --demo-seed")
	}
	var source ports.TrialSource = excel.NewReader(file)
	return source.ReadTrials(ctx)
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

func printSummary(rep *app.AnalysisReport) {
	fmt.Printf("Run %s\n\n", rep.RunID)
	for _, res := range rep.Results {
		if res.Failed() {
			fmt.Printf("%-24s FAILED  %s\n", res.Key, res.ErrMessage)
			continue
		}
		status := "ok"
		if len(res.Model.Warnings) > 0 {
			status = fmt.Sprintf("warnings %v", res.Model.Warnings)
		}
		fmt.Printf("%-24s %-8s n=%d subjects=%d (%d ms)\n",
			res.Key, status, res.Model.SampleSize, res.Model.Subjects, res.RuntimeMs)
		for _, c := range res.Model.Coefficients {
			fmt.Printf("    %-32s %9.4f  (SE %.4f, p %.4f)\n", c.Name, c.Estimate, c.StdErr, c.PValue)
		}
	}
}
