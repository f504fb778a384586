package design

import (
	"math"
	"testing"

	"gamelearn/domain/core"
	"gamelearn/domain/experiment"
)

func twoConditionSample(gamifiedTrue, gamifiedFalse int) experiment.Sample {
	var s experiment.Sample
	for i := 0; i < gamifiedTrue; i++ {
		s = append(s, experiment.TrialRecord{Subject: "S1", Gamified: true, Group: "A"})
	}
	for i := 0; i < gamifiedFalse; i++ {
		s = append(s, experiment.TrialRecord{Subject: "S2", Gamified: false, Group: "B"})
	}
	return s
}

// TestEncode_CenteredColumnSumsToZero verifies the defining property of
// the coding: the covariate sums to zero over the modeling sample, even
// when the design is unbalanced
func TestEncode_CenteredColumnSumsToZero(t *testing.T) {
	for _, counts := range [][2]int{{5, 5}, {7, 3}, {1, 9}} {
		sample := twoConditionSample(counts[0], counts[1])
		c, err := Encode(sample, experiment.FactorGamified)
		if err != nil {
			t.Fatalf("Encode failed for counts %v: %v", counts, err)
		}
		col, err := Column(sample, c)
		if err != nil {
			t.Fatalf("Column failed: %v", err)
		}
		sum := 0.0
		for _, v := range col {
			sum += v
		}
		if math.Abs(sum) > 1e-12 {
			t.Errorf("counts %v: column sum = %g, want 0", counts, sum)
		}
	}
}

// TestEncode_LexicographicReference verifies levels are assigned in
// lexicographic label order: "false" is the reference level of a
// boolean factor
func TestEncode_LexicographicReference(t *testing.T) {
	sample := twoConditionSample(4, 6)
	c, err := Encode(sample, experiment.FactorGamified)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if c.Level0 != "false" || c.Level1 != "true" {
		t.Errorf("levels = (%q, %q), want (false, true)", c.Level0, c.Level1)
	}
	// 4 of 10 records carry level 1
	if math.Abs(c.Origin-0.4) > 1e-12 {
		t.Errorf("origin = %g, want 0.4", c.Origin)
	}
	levels := c.Levels()
	if levels[0] >= levels[1] {
		t.Errorf("centered levels out of order: %v", levels)
	}
}

// TestEncode_WrongLevelCountFails verifies a factor with one or more
// than two observed levels is a fatal design encoding error
func TestEncode_WrongLevelCountFails(t *testing.T) {
	oneLevel := experiment.Sample{
		{Subject: "S1", Gamified: true},
		{Subject: "S2", Gamified: true},
	}
	if _, err := Encode(oneLevel, experiment.FactorGamified); !core.IsDesignEncodingError(err) {
		t.Errorf("one observed level: got %v, want design encoding error", err)
	}

	threeLevels := experiment.Sample{
		{Subject: "S1", Group: "A"},
		{Subject: "S2", Group: "B"},
		{Subject: "S3", Group: "C"},
	}
	if _, err := Encode(threeLevels, experiment.FactorGroup); !core.IsDesignEncodingError(err) {
		t.Errorf("three observed levels: got %v, want design encoding error", err)
	}
}

// TestEncode_ValueRejectsUnknownLabel verifies prediction-time lookups
// against a stored covariate reject labels the training sample never saw
func TestEncode_ValueRejectsUnknownLabel(t *testing.T) {
	sample := twoConditionSample(5, 5)
	c, err := Encode(sample, experiment.FactorGroup)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if _, err := c.Value("C"); !core.IsDesignEncodingError(err) {
		t.Errorf("unknown label: got %v, want design encoding error", err)
	}
}

func TestEncodeAll_OneCovariatePerFactor(t *testing.T) {
	sample := twoConditionSample(5, 5)
	centers, err := EncodeAll(sample, experiment.FactorGamified, experiment.FactorGroup)
	if err != nil {
		t.Fatalf("EncodeAll failed: %v", err)
	}
	if len(centers) != 2 {
		t.Fatalf("got %d covariates, want 2", len(centers))
	}
	for _, f := range []experiment.Factor{experiment.FactorGamified, experiment.FactorGroup} {
		if _, ok := centers[f]; !ok {
			t.Errorf("missing covariate for %q", f)
		}
	}
}
