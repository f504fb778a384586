package ports

import (
	"context"

	"gamelearn/domain/core"
	"gamelearn/domain/model"
)

// ResultRepository persists the output tables of an analysis run:
// fitted models with their coefficient tables, counterfactual
// prediction tables, and descriptive aggregate tables
type ResultRepository interface {
	SaveModel(ctx context.Context, runID core.RunID, m *model.FittedModel) error
	SavePredictions(ctx context.Context, runID core.RunID, t *model.PredictionTable) error
	SaveAggregates(ctx context.Context, runID core.RunID, t model.AggregateTable) error
}
