package aggregate

import (
	"math"
	"reflect"
	"testing"

	"gamelearn/domain/core"
	"gamelearn/domain/model"
)

func obs(value float64, keys ...string) Observation {
	return Observation{Keys: keys, Value: value}
}

// TestAggregate_MeanAndStandardError checks the cell statistics against
// hand-computed values
func TestAggregate_MeanAndStandardError(t *testing.T) {
	res, err := Aggregate([]Observation{
		obs(1, "game"), obs(2, "game"), obs(3, "game"), obs(4, "game"),
	})
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}
	if len(res.Cells) != 1 {
		t.Fatalf("got %d cells, want 1", len(res.Cells))
	}
	c := res.Cells[0]
	if c.Mean != 2.5 {
		t.Errorf("mean = %g, want 2.5", c.Mean)
	}
	// sample sd of 1..4 is sqrt(5/3)
	want := math.Sqrt(5.0/3.0) / 2
	if math.Abs(c.StdErr-want) > 1e-12 {
		t.Errorf("stderr = %g, want %g", c.StdErr, want)
	}
	if c.Count != 4 {
		t.Errorf("count = %d, want 4", c.Count)
	}
}

// TestAggregate_MissingValuesExcluded verifies NaN input neither
// contributes to the mean nor inflates the count
func TestAggregate_MissingValuesExcluded(t *testing.T) {
	res, err := Aggregate([]Observation{
		obs(10, "a"), obs(math.NaN(), "a"), obs(20, "a"),
	})
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}
	c := res.Cells[0]
	if c.Mean != 15 || c.Count != 2 {
		t.Errorf("got mean=%g count=%d, want mean=15 count=2", c.Mean, c.Count)
	}
}

// TestAggregate_SingletonCellHasNaNStdErr verifies a single-value cell
// reports NaN (not zero) and attaches the undefined-statistic warning
func TestAggregate_SingletonCellHasNaNStdErr(t *testing.T) {
	res, err := Aggregate([]Observation{obs(7, "a"), obs(1, "b"), obs(2, "b")})
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}
	var singleton *Cell
	for i := range res.Cells {
		if res.Cells[i].Count == 1 {
			singleton = &res.Cells[i]
		}
	}
	if singleton == nil {
		t.Fatal("no singleton cell found")
	}
	if !math.IsNaN(singleton.StdErr) {
		t.Errorf("singleton stderr = %g, want NaN", singleton.StdErr)
	}
	found := false
	for _, w := range res.Warnings {
		if w == model.WarningUndefinedStatistic {
			found = true
		}
	}
	if !found {
		t.Errorf("warnings = %v, want UNDEFINED_STATISTIC", res.Warnings)
	}
}

// TestAggregate_AllMissingFails verifies an input with no usable value
// is a fatal error, not an empty table
func TestAggregate_AllMissingFails(t *testing.T) {
	_, err := Aggregate([]Observation{obs(math.NaN(), "a"), obs(math.NaN(), "b")})
	if !core.IsInsufficientDataError(err) {
		t.Errorf("got %v, want insufficient data error", err)
	}
	if _, err := Aggregate(nil); !core.IsInsufficientDataError(err) {
		t.Errorf("empty input: got %v, want insufficient data error", err)
	}
}

// TestAggregate_DeterministicOrdering verifies output rows are sorted
// by key tuple regardless of input order
func TestAggregate_DeterministicOrdering(t *testing.T) {
	input := []Observation{
		obs(1, "true", "B"), obs(2, "false", "B"),
		obs(3, "true", "A"), obs(4, "false", "A"),
	}
	res, err := Aggregate(input)
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}
	var got [][]string
	for _, c := range res.Cells {
		got = append(got, c.Keys)
	}
	want := [][]string{
		{"false", "A"}, {"false", "B"}, {"true", "A"}, {"true", "B"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("cell order = %v, want %v", got, want)
	}
}

// TestAggregate_Idempotent verifies aggregating one-value-per-cell
// output reproduces the same keys and means
func TestAggregate_Idempotent(t *testing.T) {
	first, err := Aggregate([]Observation{
		obs(1, "a"), obs(3, "a"), obs(10, "b"), obs(20, "b"),
	})
	if err != nil {
		t.Fatalf("first pass failed: %v", err)
	}

	var second []Observation
	for _, c := range first.Cells {
		second = append(second, Observation{Keys: c.Keys, Value: c.Mean})
	}
	res, err := Aggregate(second)
	if err != nil {
		t.Fatalf("second pass failed: %v", err)
	}
	if len(res.Cells) != len(first.Cells) {
		t.Fatalf("cell count changed: %d -> %d", len(first.Cells), len(res.Cells))
	}
	for i := range res.Cells {
		if !reflect.DeepEqual(res.Cells[i].Keys, first.Cells[i].Keys) {
			t.Errorf("keys changed: %v -> %v", first.Cells[i].Keys, res.Cells[i].Keys)
		}
		if res.Cells[i].Mean != first.Cells[i].Mean {
			t.Errorf("mean changed: %g -> %g", first.Cells[i].Mean, res.Cells[i].Mean)
		}
	}
}

// TestNestedAggregation collapses trials to per-subject medians, drops
// the subject key and aggregates the medians across subjects
func TestNestedAggregation(t *testing.T) {
	input := []Observation{
		// subject S1 in condition "game": median 200
		obs(100, "game", "S1"), obs(200, "game", "S1"), obs(900, "game", "S1"),
		// subject S2 in condition "game": median 400
		obs(300, "game", "S2"), obs(400, "game", "S2"), obs(500, "game", "S2"),
	}
	medians, err := Reduce(input, StatMedian)
	if err != nil {
		t.Fatalf("Reduce failed: %v", err)
	}
	if len(medians) != 2 {
		t.Fatalf("got %d per-subject rows, want 2", len(medians))
	}

	res, err := Aggregate(DropLastKey(medians))
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}
	if len(res.Cells) != 1 {
		t.Fatalf("got %d cells, want 1", len(res.Cells))
	}
	c := res.Cells[0]
	if c.Mean != 300 {
		t.Errorf("mean of medians = %g, want 300", c.Mean)
	}
	if c.Count != 2 {
		t.Errorf("count = %d, want 2 subjects", c.Count)
	}
}

func TestTable_CarriesWarnings(t *testing.T) {
	res, err := Aggregate([]Observation{obs(1, "a")})
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}
	table := Table(core.OutcomeKey("practice_rt"), []string{"condition"}, res)
	if len(table.Warnings) == 0 {
		t.Error("warning lost in table conversion")
	}
	if len(table.Rows) != 1 || table.KeyNames[0] != "condition" {
		t.Errorf("unexpected table shape: %+v", table)
	}
}
