package model

import (
	"encoding/json"
	"math"
	"strings"
	"testing"
)

// An undefined statistic must encode as null, not break the encoder
func TestCoefficient_JSONRoundTripWithNaN(t *testing.T) {
	in := Coefficient{Name: "gamified_c", Estimate: 0.42, StdErr: math.NaN(), ZValue: math.NaN(), PValue: math.NaN()}
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if !strings.Contains(string(data), `"std_err":null`) {
		t.Errorf("NaN stderr not encoded as null: %s", data)
	}

	var out Coefficient
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if out.Name != in.Name || out.Estimate != in.Estimate {
		t.Errorf("round trip changed values: %+v", out)
	}
	if !math.IsNaN(out.StdErr) || !math.IsNaN(out.ZValue) || !math.IsNaN(out.PValue) {
		t.Errorf("null did not decode back to NaN: %+v", out)
	}
}

func TestAggregateTable_MarshalsWithNaNCells(t *testing.T) {
	table := AggregateTable{
		Outcome:  "enjoyment",
		KeyNames: []string{"gamified"},
		Rows: []AggregateRow{
			{Keys: []string{"false"}, Mean: 4.2, StdErr: 0.3, Count: 10},
			{Keys: []string{"true"}, Mean: 5.0, StdErr: math.NaN(), Count: 1},
		},
		Warnings: []WarningCode{WarningUndefinedStatistic},
	}
	data, err := json.Marshal(table)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	s := string(data)
	if !strings.Contains(s, `"std_err":0.3`) || !strings.Contains(s, `"std_err":null`) {
		t.Errorf("mixed defined/undefined stderr not encoded: %s", s)
	}
	if !strings.Contains(s, "UNDEFINED_STATISTIC") {
		t.Errorf("warning lost: %s", s)
	}
}

// The fitted model as a whole must survive the encoder even when a
// coefficient's inference is undefined
func TestFittedModel_MarshalsWithUndefinedInference(t *testing.T) {
	m := FittedModel{
		Outcome: "practice_rt",
		Family:  FamilyLogLinear,
		Formula: FullFormula(),
		Coefficients: []Coefficient{
			{Name: "(Intercept)", Estimate: 7.2, StdErr: 0.1, ZValue: 72, PValue: 0},
			{Name: "gamified_c", Estimate: -0.1, StdErr: math.NaN(), ZValue: math.NaN(), PValue: math.NaN()},
		},
		Warnings: []WarningCode{WarningSingularFit},
	}
	if _, err := json.Marshal(m); err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
}
