package model

import (
	"errors"
	"math"
	"testing"

	"gamelearn/domain/core"
	"gamelearn/domain/experiment"
)

func TestTerm_Name(t *testing.T) {
	cases := []struct {
		term Term
		want string
	}{
		{Term{experiment.FactorGamified}, "gamified_c"},
		{Term{experiment.FactorGamified, experiment.FactorGroup}, "gamified_c:group_c"},
		{Term{experiment.FactorGamified, experiment.FactorGroup, experiment.FactorOrder}, "gamified_c:group_c:order_c"},
	}
	for _, tc := range cases {
		if got := tc.term.Name(); got != tc.want {
			t.Errorf("Name() = %q, want %q", got, tc.want)
		}
	}
}

func TestFormulaSpec_Factors(t *testing.T) {
	full := FullFormula()
	if full.Reduced {
		t.Error("full formula marked reduced")
	}
	factors := full.Factors()
	if len(factors) != 3 || factors[0] != experiment.FactorGamified {
		t.Errorf("full formula factors = %v", factors)
	}

	reduced := ReducedFormula()
	if !reduced.Reduced {
		t.Error("reduced formula not marked")
	}
	for _, f := range reduced.Factors() {
		if f == experiment.FactorGamified {
			t.Error("reduced formula references the gamified factor")
		}
	}
}

func TestCenteredCovariate_Value(t *testing.T) {
	c := CenteredCovariate{Factor: experiment.FactorGroup, Level0: "A", Level1: "B", Origin: 0.4}
	v0, err := c.Value("A")
	if err != nil || v0 != -0.4 {
		t.Errorf("Value(A) = %g, %v", v0, err)
	}
	v1, err := c.Value("B")
	if err != nil || math.Abs(v1-0.6) > 1e-15 {
		t.Errorf("Value(B) = %g, %v", v1, err)
	}
	if _, err := c.Value("C"); !core.IsDesignEncodingError(err) {
		t.Errorf("Value(C) error = %v", err)
	}
	// The two levels are one unit apart whatever the origin
	l := c.Levels()
	if math.Abs((l[1]-l[0])-1) > 1e-15 {
		t.Errorf("level spread = %g, want 1", l[1]-l[0])
	}
}

func TestFittedModel_LinearPredictor(t *testing.T) {
	m := &FittedModel{
		Formula: FullFormula(),
		Coefficients: []Coefficient{
			{Name: "(Intercept)", Estimate: 2},
			{Name: "gamified_c", Estimate: 1},
			{Name: "gamified_c:group_c", Estimate: 4},
			{Name: "gamified_c:order_c", Estimate: 0},
			{Name: "gamified_c:group_c:order_c", Estimate: 0},
		},
	}
	eta, err := m.LinearPredictor(map[experiment.Factor]float64{
		experiment.FactorGamified: 0.5,
		experiment.FactorGroup:    0.5,
		experiment.FactorOrder:    0,
	})
	if err != nil {
		t.Fatalf("LinearPredictor failed: %v", err)
	}
	// 2 + 1*0.5 + 4*(0.5*0.5)
	if math.Abs(eta-3.5) > 1e-15 {
		t.Errorf("eta = %g, want 3.5", eta)
	}

	_, err = m.LinearPredictor(map[experiment.Factor]float64{experiment.FactorGamified: 0.5})
	if !errors.Is(err, core.ErrIncompleteGrid) {
		t.Errorf("partial point: got %v, want incomplete grid error", err)
	}
}

func TestFittedModel_InverseLink(t *testing.T) {
	id := &FittedModel{Family: FamilyIdentity}
	if id.InverseLink(3) != 3 {
		t.Error("identity link changed the value")
	}
	lg := &FittedModel{Family: FamilyLogLinear}
	if math.Abs(lg.InverseLink(0)-1) > 1e-15 {
		t.Error("exp(0) != 1")
	}
	bin := &FittedModel{Family: FamilyBinomialLogit}
	if math.Abs(bin.InverseLink(0)-0.5) > 1e-15 {
		t.Error("logistic(0) != 0.5")
	}
}

func TestFittedModel_HasWarning(t *testing.T) {
	m := &FittedModel{Warnings: []WarningCode{WarningNonConvergence}}
	if !m.HasWarning(WarningNonConvergence) || m.HasWarning(WarningSingularFit) {
		t.Errorf("warning lookup wrong: %v", m.Warnings)
	}
}
