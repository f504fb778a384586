// Package predict evaluates population-level counterfactual predictions
// over grids of design-factor levels. Every "is condition A different
// from condition B, holding other factors at the grand mean" question is
// answered by a different fixed/swept partition of the same covariates
// against the same fitted model, never by a new modeling routine.
package predict

import (
	"fmt"
	"sort"

	"gamelearn/domain/core"
	"gamelearn/domain/experiment"
	"gamelearn/domain/model"
)

// Query is a partial assignment of a fitted model's centered covariates.
// Fixed pins a covariate to one centered value; Sweep enumerates the
// centered values to cross. Every factor referenced by the model's
// formula must appear in exactly one of the two.
type Query struct {
	Name  string
	Fixed map[experiment.Factor]float64
	Sweep map[experiment.Factor][]float64
}

// Levels returns the two centered values a model's training sample
// observed for a factor, suitable for sweeping
func Levels(m *model.FittedModel, f experiment.Factor) ([]float64, error) {
	c, ok := m.Centers[f]
	if !ok {
		return nil, fmt.Errorf("%w: %q", core.ErrUnknownCovariate, f)
	}
	l := c.Levels()
	return []float64{l[0], l[1]}, nil
}

// Average is the centered value representing the grand mean of a factor
const Average = 0.0

// Predict evaluates the marginal expected response at every point of the
// Cartesian product of the swept covariates against the fixed ones. The
// linear predictor uses fixed effects only (random effects at zero) and
// the family's inverse link maps each value back to the original
// outcome scale.
func Predict(m *model.FittedModel, q Query) (*model.PredictionTable, error) {
	factors := m.Formula.Factors()
	if err := validate(factors, q); err != nil {
		return nil, err
	}

	// Deterministic sweep order regardless of map iteration
	swept := make([]experiment.Factor, 0, len(q.Sweep))
	for f := range q.Sweep {
		swept = append(swept, f)
	}
	sort.Slice(swept, func(i, j int) bool { return swept[i] < swept[j] })

	table := &model.PredictionTable{Outcome: m.Outcome, Query: q.Name}
	point := make(map[experiment.Factor]float64, len(factors))
	for f, v := range q.Fixed {
		point[f] = v
	}

	var walk func(depth int) error
	walk = func(depth int) error {
		if depth == len(swept) {
			eta, err := m.LinearPredictor(point)
			if err != nil {
				return err
			}
			row := model.PredictionRow{
				Point:    make(map[experiment.Factor]float64, len(point)),
				Response: m.InverseLink(eta),
			}
			for f, v := range point {
				row.Point[f] = v
			}
			table.Rows = append(table.Rows, row)
			return nil
		}
		f := swept[depth]
		for _, v := range q.Sweep[f] {
			point[f] = v
			if err := walk(depth + 1); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(0); err != nil {
		return nil, err
	}
	return table, nil
}

func validate(factors []experiment.Factor, q Query) error {
	inFormula := make(map[experiment.Factor]bool, len(factors))
	for _, f := range factors {
		inFormula[f] = true
	}
	for f := range q.Fixed {
		if !inFormula[f] {
			return fmt.Errorf("%w: %q", core.ErrUnknownCovariate, f)
		}
		if _, also := q.Sweep[f]; also {
			return fmt.Errorf("%w: %q", core.ErrConflictingAssign, f)
		}
	}
	for f, levels := range q.Sweep {
		if !inFormula[f] {
			return fmt.Errorf("%w: %q", core.ErrUnknownCovariate, f)
		}
		if len(levels) == 0 {
			return fmt.Errorf("%w: empty sweep for %q", core.ErrIncompleteGrid, f)
		}
	}
	for _, f := range factors {
		_, fixed := q.Fixed[f]
		_, swept := q.Sweep[f]
		if !fixed && !swept {
			return fmt.Errorf("%w: %q", core.ErrIncompleteGrid, f)
		}
	}
	return nil
}
