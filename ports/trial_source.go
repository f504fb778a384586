package ports

import (
	"context"

	"gamelearn/domain/experiment"
)

// TrialSource loads the trial-level records of one experiment session.
// Implementations own file formats and deserialization; the pipeline
// only sees immutable records.
type TrialSource interface {
	ReadTrials(ctx context.Context) (experiment.Sample, error)
}
