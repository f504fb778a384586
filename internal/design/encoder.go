// Package design encodes categorical experiment-design factors into
// centered numeric covariates. A two-level factor is coded {0,1} in
// lexicographic label order and shifted by the sample mean of that
// coding, so the covariate sums to zero over the modeling sample. The
// centering origin is retained on the fitted model and reused for every
// prediction query against it.
package design

import (
	"gamelearn/domain/core"
	"gamelearn/domain/experiment"
	"gamelearn/domain/model"
)

// Encode computes a centered covariate for one design factor over the
// full analysis sample of a model fit. It fails with a design encoding
// error unless exactly two distinct levels are observed.
func Encode(sample experiment.Sample, f experiment.Factor) (model.CenteredCovariate, error) {
	levels := sample.FactorLevels(f)
	if len(levels) != 2 {
		return model.CenteredCovariate{}, core.NewDesignEncodingError(string(f), len(levels))
	}

	// Mean of the 0/1 coding over the whole sample. Partially-crossed
	// designs make this differ from 0.5, which is the point of centering
	// on the sample rather than on the design.
	count1 := 0
	for _, r := range sample {
		if r.FactorLabel(f) == levels[1] {
			count1++
		}
	}
	origin := float64(count1) / float64(len(sample))

	return model.CenteredCovariate{
		Factor: f,
		Level0: levels[0],
		Level1: levels[1],
		Origin: origin,
	}, nil
}

// EncodeAll computes centered covariates for a set of factors over the
// same sample, producing the centering artifact attached to a fitted
// model
func EncodeAll(sample experiment.Sample, factors ...experiment.Factor) (model.Centering, error) {
	centers := make(model.Centering, len(factors))
	for _, f := range factors {
		c, err := Encode(sample, f)
		if err != nil {
			return nil, err
		}
		centers[f] = c
	}
	return centers, nil
}

// Column materializes the centered covariate values for every record in
// the sample, in sample order
func Column(sample experiment.Sample, c model.CenteredCovariate) ([]float64, error) {
	out := make([]float64, len(sample))
	for i, r := range sample {
		v, err := c.Value(r.FactorLabel(c.Factor))
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
