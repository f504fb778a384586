package mixedmodel

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"gamelearn/domain/core"
	"gamelearn/domain/experiment"
	"gamelearn/domain/model"
)

// fixedMatrix builds the n x p fixed-effect design matrix: an intercept
// column followed by one column per formula term, each the product of
// the centered covariates the term references
func fixedMatrix(sample experiment.Sample, formula model.FormulaSpec, centers model.Centering) (*mat.Dense, error) {
	n := len(sample)
	p := 1 + len(formula.Terms)
	x := mat.NewDense(n, p, nil)

	for i, r := range sample {
		x.Set(i, 0, 1)
		for j, t := range formula.Terms {
			prod := 1.0
			for _, f := range t {
				c, ok := centers[f]
				if !ok {
					return nil, core.NewDesignEncodingError(string(f), 0)
				}
				v, err := c.Value(r.FactorLabel(f))
				if err != nil {
					return nil, err
				}
				prod *= v
			}
			x.Set(i, j+1, prod)
		}
	}
	return x, nil
}

// grouping is one random-intercept grouping factor resolved against the
// sample: a level index per row plus level bookkeeping
type grouping struct {
	name   string
	levels []string
	index  []int // row -> level position
}

func subjectGrouping(sample experiment.Sample) grouping {
	return buildGrouping(sample, "subject", func(r experiment.TrialRecord) string {
		return r.Subject.String()
	})
}

func itemGrouping(sample experiment.Sample) grouping {
	return buildGrouping(sample, "item", func(r experiment.TrialRecord) string {
		return r.Item.String()
	})
}

func buildGrouping(sample experiment.Sample, name string, key func(experiment.TrialRecord) string) grouping {
	g := grouping{name: name, index: make([]int, len(sample))}
	pos := make(map[string]int)
	for i, r := range sample {
		k := key(r)
		p, ok := pos[k]
		if !ok {
			p = len(g.levels)
			pos[k] = p
			g.levels = append(g.levels, k)
		}
		g.index[i] = p
	}
	return g
}

// hasReplication reports whether at least one level of the grouping
// factor contributes more than one observation
func (g grouping) hasReplication() bool {
	counts := make([]int, len(g.levels))
	for _, p := range g.index {
		counts[p]++
		if counts[p] > 1 {
			return true
		}
	}
	return false
}

// scaledRandomDesign builds the combined random-effects design with the
// column block of each grouping scaled by the square root of its
// variance ratio theta_k. Returns nil when every ratio is effectively
// zero.
func scaledRandomDesign(n int, groups []grouping, theta []float64) *mat.Dense {
	q := 0
	for _, g := range groups {
		q += len(g.levels)
	}
	if q == 0 {
		return nil
	}
	zs := mat.NewDense(n, q, nil)
	offset := 0
	for k, g := range groups {
		s := math.Sqrt(theta[k])
		for i, p := range g.index {
			zs.Set(i, offset+p, s)
		}
		offset += len(g.levels)
	}
	return zs
}
