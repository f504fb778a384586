// Package aggregate collapses trial-level observations into grouped
// mean and standard-error summaries. Missing values (NaN) are excluded
// from the computation, never treated as zero, and output ordering is
// lexicographic by key tuple so downstream consumption is reproducible.
//
// The same contract serves nested two-stage aggregation: Reduce
// collapses each key tuple to a single per-group statistic (e.g. a
// per-subject median), and the reduced rows feed a second Aggregate
// call after the inner key is dropped.
package aggregate

import (
	"math"
	"sort"

	"github.com/montanaflynn/stats"

	"gamelearn/domain/core"
	"gamelearn/domain/model"
)

// Statistic selects the collapsing statistic used by Reduce
type Statistic string

const (
	StatMean   Statistic = "mean"
	StatMedian Statistic = "median"
)

// Observation is one input row: an ordered grouping key tuple and a
// value. NaN marks a missing value.
type Observation struct {
	Keys  []string
	Value float64
}

// Cell is one aggregate statistic: mean, standard error and count of the
// non-missing values sharing a key tuple. StdErr is NaN when Count < 2.
type Cell struct {
	Keys   []string
	Mean   float64
	StdErr float64
	Count  int
}

// Result is the output of one aggregator invocation
type Result struct {
	Cells    []Cell
	Warnings []model.WarningCode
}

// Aggregate produces one Cell per observed key combination. It fails
// only when no non-missing value exists in the whole input.
func Aggregate(obs []Observation) (*Result, error) {
	groups, order := groupValues(obs)
	if len(order) == 0 {
		return nil, core.ErrNoObservations
	}

	res := &Result{}
	undefined := false
	for _, k := range order {
		values := groups[k]
		if len(values) == 0 {
			// Every value in the cell was missing
			continue
		}
		mean, _ := stats.Mean(values)
		se := math.NaN()
		if len(values) >= 2 {
			sd, _ := stats.StandardDeviationSample(values)
			se = sd / math.Sqrt(float64(len(values)))
		} else {
			undefined = true
		}
		res.Cells = append(res.Cells, Cell{
			Keys:   splitKey(k),
			Mean:   mean,
			StdErr: se,
			Count:  len(values),
		})
	}
	if len(res.Cells) == 0 {
		return nil, core.ErrNoObservations
	}
	if undefined {
		res.Warnings = append(res.Warnings, model.WarningUndefinedStatistic)
	}
	return res, nil
}

// Reduce collapses each key tuple to a single observation using the
// given statistic. The output has exactly one row per observed key
// combination, in lexicographic order, and feeds a second aggregation
// stage under the same contract.
func Reduce(obs []Observation, stat Statistic) ([]Observation, error) {
	groups, order := groupValues(obs)
	if len(order) == 0 {
		return nil, core.ErrNoObservations
	}

	var out []Observation
	for _, k := range order {
		values := groups[k]
		if len(values) == 0 {
			continue
		}
		var v float64
		switch stat {
		case StatMedian:
			v, _ = stats.Median(values)
		default:
			v, _ = stats.Mean(values)
		}
		out = append(out, Observation{Keys: splitKey(k), Value: v})
	}
	if len(out) == 0 {
		return nil, core.ErrNoObservations
	}
	return out, nil
}

// DropLastKey removes the innermost grouping key from every observation,
// preparing first-stage output for the second stage of a nested
// aggregation
func DropLastKey(obs []Observation) []Observation {
	out := make([]Observation, len(obs))
	for i, o := range obs {
		if len(o.Keys) == 0 {
			out[i] = o
			continue
		}
		keys := make([]string, len(o.Keys)-1)
		copy(keys, o.Keys[:len(o.Keys)-1])
		out[i] = Observation{Keys: keys, Value: o.Value}
	}
	return out
}

// Table converts a Result into the output table handed to
// reporting/plotting
func Table(outcome core.OutcomeKey, keyNames []string, res *Result) model.AggregateTable {
	t := model.AggregateTable{
		Outcome:  outcome,
		KeyNames: keyNames,
		Warnings: res.Warnings,
	}
	for _, c := range res.Cells {
		t.Rows = append(t.Rows, model.AggregateRow{
			Keys:   c.Keys,
			Mean:   c.Mean,
			StdErr: c.StdErr,
			Count:  c.Count,
		})
	}
	return t
}

// keySep cannot occur in key labels read from tabular data
const keySep = "\x1f"

func groupValues(obs []Observation) (map[string][]float64, []string) {
	groups := make(map[string][]float64)
	var order []string
	for _, o := range obs {
		k := joinKey(o.Keys)
		if _, ok := groups[k]; !ok {
			groups[k] = nil
			order = append(order, k)
		}
		if !math.IsNaN(o.Value) {
			groups[k] = append(groups[k], o.Value)
		}
	}
	sort.Strings(order)
	return groups, order
}

func joinKey(keys []string) string {
	out := ""
	for i, k := range keys {
		if i > 0 {
			out += keySep
		}
		out += k
	}
	return out
}

func splitKey(k string) []string {
	if k == "" {
		return []string{}
	}
	var out []string
	start := 0
	for i := 0; i < len(k); i++ {
		if k[i] == keySep[0] {
			out = append(out, k[start:i])
			start = i + 1
		}
	}
	return append(out, k[start:])
}
