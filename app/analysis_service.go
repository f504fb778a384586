package app

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"gamelearn/domain/core"
	"gamelearn/domain/experiment"
	"gamelearn/domain/model"
	"gamelearn/internal"
	"gamelearn/internal/mixedmodel"
	"gamelearn/internal/predict"
	"gamelearn/ports"
)

// OutcomeResult is the complete output of one outcome variable's
// pipeline: the fitted model and its standard counterfactual queries, or
// the fatal error that aborted this outcome. A failed outcome never
// aborts the rest of the batch.
type OutcomeResult struct {
	Key         core.OutcomeKey         `json:"key"`
	Model       *model.FittedModel      `json:"model,omitempty"`
	Predictions []model.PredictionTable `json:"predictions,omitempty"`
	Err         error                   `json:"-"`
	ErrMessage  string                  `json:"error,omitempty"`
	RuntimeMs   int64                   `json:"runtime_ms"`
}

// Failed reports whether the outcome's pipeline aborted
func (r OutcomeResult) Failed() bool {
	return r.Err != nil
}

// AnalysisReport collects every outcome's result for one analysis run
type AnalysisReport struct {
	RunID     core.RunID      `json:"run_id"`
	Results   []OutcomeResult `json:"results"`
	CreatedAt core.Timestamp  `json:"created_at"`
}

// Result looks up one outcome's result by key
func (rep *AnalysisReport) Result(key core.OutcomeKey) (*OutcomeResult, bool) {
	for i := range rep.Results {
		if rep.Results[i].Key == key {
			return &rep.Results[i], true
		}
	}
	return nil, false
}

// AnalysisService runs the per-outcome pipeline (design encoding, model
// fit, counterfactual queries) over a catalog of outcome variables. The
// outcomes share no mutable state and run in parallel.
type AnalysisService struct {
	logger      *internal.Logger
	parallelism int
}

// NewAnalysisService creates an analysis service
func NewAnalysisService(logger *internal.Logger, parallelism int) *AnalysisService {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	if parallelism < 1 {
		parallelism = 1
	}
	return &AnalysisService{logger: logger, parallelism: parallelism}
}

// Run executes the full batch. Fatal errors abort only their own
// outcome and are reported in its result; warnings stay attached to the
// fitted models. The returned error covers batch-level problems only.
func (s *AnalysisService) Run(ctx context.Context, records experiment.Sample, outcomes []OutcomeSpec) (*AnalysisReport, error) {
	report := &AnalysisReport{
		RunID:     core.NewRunID(),
		Results:   make([]OutcomeResult, len(outcomes)),
		CreatedAt: core.Now(),
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallelism)
	for i, spec := range outcomes {
		i, spec := i, spec
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				report.Results[i] = OutcomeResult{Key: spec.Key, Err: err, ErrMessage: err.Error()}
				return nil
			}
			report.Results[i] = s.runOutcome(spec, records)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, r := range report.Results {
		if r.Failed() {
			s.logger.Warn("outcome %s failed: %v", r.Key, r.Err)
			continue
		}
		if len(r.Model.Warnings) > 0 {
			s.logger.Warn("outcome %s fit with warnings: %v", r.Key, r.Model.Warnings)
		} else {
			s.logger.Info("outcome %s fit (%d rows, %d subjects)", r.Key, r.Model.SampleSize, r.Model.Subjects)
		}
	}
	return report, nil
}

func (s *AnalysisService) runOutcome(spec OutcomeSpec, records experiment.Sample) OutcomeResult {
	start := time.Now()
	result := OutcomeResult{Key: spec.Key}

	sample := spec.Select(records)
	fitted, err := mixedmodel.Fit(sample, spec.FitConfig())
	if err != nil {
		result.Err = err
		result.ErrMessage = err.Error()
		result.RuntimeMs = time.Since(start).Milliseconds()
		return result
	}
	result.Model = fitted

	tables, err := StandardQueries(fitted)
	if err != nil {
		result.Err = err
		result.ErrMessage = err.Error()
		result.RuntimeMs = time.Since(start).Milliseconds()
		return result
	}
	result.Predictions = tables
	result.RuntimeMs = time.Since(start).Milliseconds()
	return result
}

// Persist stores every artifact of a run: each fitted model, its
// prediction tables, and the descriptive aggregates. Failed outcomes
// have nothing to store and are skipped.
func Persist(ctx context.Context, repo ports.ResultRepository, rep *AnalysisReport, aggregates []model.AggregateTable) error {
	for _, res := range rep.Results {
		if res.Failed() {
			continue
		}
		if err := repo.SaveModel(ctx, rep.RunID, res.Model); err != nil {
			return err
		}
		for i := range res.Predictions {
			if err := repo.SavePredictions(ctx, rep.RunID, &res.Predictions[i]); err != nil {
				return err
			}
		}
	}
	for _, t := range aggregates {
		if err := repo.SaveAggregates(ctx, rep.RunID, t); err != nil {
			return err
		}
	}
	return nil
}

// StandardQueries runs the analysis's stock counterfactual questions
// against a fitted model: the gamified effect at the grand mean of the
// counterbalancing factors, plus its modification by group and by
// order. Reduced models get the corresponding group/order questions.
func StandardQueries(m *model.FittedModel) ([]model.PredictionTable, error) {
	var queries []predict.Query
	if m.Formula.Reduced {
		group, err := predict.Levels(m, experiment.FactorGroup)
		if err != nil {
			return nil, err
		}
		order, err := predict.Levels(m, experiment.FactorOrder)
		if err != nil {
			return nil, err
		}
		queries = []predict.Query{
			{
				Name:  "group",
				Fixed: map[experiment.Factor]float64{experiment.FactorOrder: predict.Average},
				Sweep: map[experiment.Factor][]float64{experiment.FactorGroup: group},
			},
			{
				Name:  "order",
				Fixed: map[experiment.Factor]float64{experiment.FactorGroup: predict.Average},
				Sweep: map[experiment.Factor][]float64{experiment.FactorOrder: order},
			},
			{
				Name:  "group_by_order",
				Fixed: map[experiment.Factor]float64{},
				Sweep: map[experiment.Factor][]float64{experiment.FactorGroup: group, experiment.FactorOrder: order},
			},
		}
	} else {
		gamified, err := predict.Levels(m, experiment.FactorGamified)
		if err != nil {
			return nil, err
		}
		group, err := predict.Levels(m, experiment.FactorGroup)
		if err != nil {
			return nil, err
		}
		order, err := predict.Levels(m, experiment.FactorOrder)
		if err != nil {
			return nil, err
		}
		queries = []predict.Query{
			{
				Name: "gamified",
				Fixed: map[experiment.Factor]float64{
					experiment.FactorGroup: predict.Average,
					experiment.FactorOrder: predict.Average,
				},
				Sweep: map[experiment.Factor][]float64{experiment.FactorGamified: gamified},
			},
			{
				Name:  "gamified_by_group",
				Fixed: map[experiment.Factor]float64{experiment.FactorOrder: predict.Average},
				Sweep: map[experiment.Factor][]float64{experiment.FactorGamified: gamified, experiment.FactorGroup: group},
			},
			{
				Name:  "gamified_by_order",
				Fixed: map[experiment.Factor]float64{experiment.FactorGroup: predict.Average},
				Sweep: map[experiment.Factor][]float64{experiment.FactorGamified: gamified, experiment.FactorOrder: order},
			},
		}
	}

	tables := make([]model.PredictionTable, 0, len(queries))
	for _, q := range queries {
		t, err := predict.Predict(m, q)
		if err != nil {
			return nil, err
		}
		tables = append(tables, *t)
	}
	return tables, nil
}
