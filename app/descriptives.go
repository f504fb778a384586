package app

import (
	"math"

	"gamelearn/domain/experiment"
	"gamelearn/domain/model"
	"gamelearn/internal/aggregate"
)

// KeySelector names one grouping dimension of a descriptive table and
// extracts its label from a record
type KeySelector struct {
	Name  string
	Value func(experiment.TrialRecord) string
}

// FactorKey groups by a design factor's label
func FactorKey(f experiment.Factor) KeySelector {
	return KeySelector{
		Name:  string(f),
		Value: func(r experiment.TrialRecord) string { return r.FactorLabel(f) },
	}
}

// SubjectKey groups by subject id, used as the inner key of nested
// two-stage aggregations
func SubjectKey() KeySelector {
	return KeySelector{
		Name:  "subject",
		Value: func(r experiment.TrialRecord) string { return string(r.Subject) },
	}
}

// ConditionKeys is the standard grouping for condition-level summaries
func ConditionKeys() []KeySelector {
	return []KeySelector{
		FactorKey(experiment.FactorGamified),
		FactorKey(experiment.FactorGroup),
		FactorKey(experiment.FactorOrder),
	}
}

// Observations converts selected records to aggregator input. Missing
// responses become NaN so the aggregator excludes them without
// shifting cell counts for other records.
func Observations(records experiment.Sample, keys []KeySelector, response func(experiment.TrialRecord) (float64, bool)) []aggregate.Observation {
	obs := make([]aggregate.Observation, 0, len(records))
	for _, r := range records {
		tuple := make([]string, len(keys))
		for i, k := range keys {
			tuple[i] = k.Value(r)
		}
		v, ok := response(r)
		if !ok {
			v = math.NaN()
		}
		obs = append(obs, aggregate.Observation{Keys: tuple, Value: v})
	}
	return obs
}

// Descriptives produces the condition-level mean and standard-error
// table for one outcome
func Descriptives(records experiment.Sample, spec OutcomeSpec) (model.AggregateTable, error) {
	keys := ConditionKeys()
	obs := Observations(spec.Select(records), keys, spec.Response)
	res, err := aggregate.Aggregate(obs)
	if err != nil {
		return model.AggregateTable{}, err
	}
	return aggregate.Table(spec.Key, keyNames(keys), res), nil
}

// SubjectMedianDescriptives produces a condition-level table of
// per-subject medians: each subject is first collapsed to one median
// per condition cell, then the medians are averaged across subjects.
// This is the standard summary for response times, where trial-level
// skew would otherwise dominate the cell means.
func SubjectMedianDescriptives(records experiment.Sample, spec OutcomeSpec) (model.AggregateTable, error) {
	keys := append(ConditionKeys(), SubjectKey())
	obs := Observations(spec.Select(records), keys, spec.Response)
	perSubject, err := aggregate.Reduce(obs, aggregate.StatMedian)
	if err != nil {
		return model.AggregateTable{}, err
	}
	res, err := aggregate.Aggregate(aggregate.DropLastKey(perSubject))
	if err != nil {
		return model.AggregateTable{}, err
	}
	return aggregate.Table(spec.Key, keyNames(keys[:len(keys)-1]), res), nil
}

// DescriptiveTables builds the descriptive summary for every outcome in
// the catalog. Response-time outcomes get the nested per-subject-median
// treatment; everything else is a flat condition-level aggregate.
func DescriptiveTables(records experiment.Sample, outcomes []OutcomeSpec) []model.AggregateTable {
	var tables []model.AggregateTable
	for _, spec := range outcomes {
		var (
			t   model.AggregateTable
			err error
		)
		if spec.Family == model.FamilyLogLinear {
			t, err = SubjectMedianDescriptives(records, spec)
		} else {
			t, err = Descriptives(records, spec)
		}
		if err != nil {
			// An outcome with no observations contributes no table
			continue
		}
		tables = append(tables, t)
	}
	return tables
}

func keyNames(keys []KeySelector) []string {
	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = k.Name
	}
	return names
}
