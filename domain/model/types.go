package model

import (
	"fmt"
	"math"
	"strings"

	"gamelearn/domain/core"
	"gamelearn/domain/experiment"
)

// ============================================================================
// MODEL DESCRIPTION (closed, checkable at construction time)
// ============================================================================

// Family selects the response distribution and link function
type Family string

const (
	// FamilyIdentity fits a linear mixed model on the raw response
	FamilyIdentity Family = "identity"
	// FamilyLogLinear fits a linear mixed model on the natural log of a
	// strictly positive response; predictions are exponentiated back
	FamilyLogLinear Family = "log_linear"
	// FamilyBinomialLogit fits a binomial mixed model with a logit link
	FamilyBinomialLogit Family = "binomial_logit"
)

// Valid reports whether f is one of the supported families
func (f Family) Valid() bool {
	switch f {
	case FamilyIdentity, FamilyLogLinear, FamilyBinomialLogit:
		return true
	}
	return false
}

// Term is a product of centered covariates forming one fixed-effect
// column. A single-factor term is a main effect, a multi-factor term an
// interaction.
type Term []experiment.Factor

// Name returns the column label for the term, e.g. "gamified_c:group_c"
func (t Term) Name() string {
	parts := make([]string, len(t))
	for i, f := range t {
		parts[i] = string(f) + "_c"
	}
	return strings.Join(parts, ":")
}

// FormulaSpec is a structured description of the fixed-effect part of a
// model. The intercept is implicit. Reduced marks the degenerate case
// where the outcome was observed under only one gamified level and the
// gamified term and its interactions were dropped.
type FormulaSpec struct {
	Terms   []Term `json:"terms"`
	Reduced bool   `json:"reduced"`
}

// FullFormula is the design-mandated fixed structure: the within-subject
// gamified effect plus its modification by the between-subject group and
// order factors. Group and order enter only through interactions with
// gamified because the design cannot cleanly estimate their main effects.
func FullFormula() FormulaSpec {
	return FormulaSpec{
		Terms: []Term{
			{experiment.FactorGamified},
			{experiment.FactorGamified, experiment.FactorGroup},
			{experiment.FactorGamified, experiment.FactorOrder},
			{experiment.FactorGamified, experiment.FactorGroup, experiment.FactorOrder},
		},
	}
}

// ReducedFormula is the fallback for outcomes observed under a single
// gamified level: group, order and their interaction are fit directly.
func ReducedFormula() FormulaSpec {
	return FormulaSpec{
		Terms: []Term{
			{experiment.FactorGroup},
			{experiment.FactorOrder},
			{experiment.FactorGroup, experiment.FactorOrder},
		},
		Reduced: true,
	}
}

// Factors returns the distinct factors referenced by the formula, in
// first-appearance order
func (s FormulaSpec) Factors() []experiment.Factor {
	seen := make(map[experiment.Factor]bool)
	var out []experiment.Factor
	for _, t := range s.Terms {
		for _, f := range t {
			if !seen[f] {
				seen[f] = true
				out = append(out, f)
			}
		}
	}
	return out
}

// RandomSpec describes the random-intercept structure. The subject
// intercept is always present; the item intercept is added for
// trial-level outcomes only.
type RandomSpec struct {
	SubjectIntercept bool `json:"subject_intercept"`
	ItemIntercept    bool `json:"item_intercept"`
}

// ============================================================================
// CENTERED COVARIATES
// ============================================================================

// CenteredCovariate is the numeric transform of a two-level design
// factor: levels mapped to {0,1} in lexicographic label order, then
// shifted by the sample mean of that coding. The origin is computed once
// per model-fitting sample and reused for every prediction against the
// fitted model.
type CenteredCovariate struct {
	Factor experiment.Factor `json:"factor"`
	Level0 string            `json:"level0"`
	Level1 string            `json:"level1"`
	Origin float64           `json:"origin"`
}

// Value returns the centered value for a raw factor label
func (c CenteredCovariate) Value(label string) (float64, error) {
	switch label {
	case c.Level0:
		return -c.Origin, nil
	case c.Level1:
		return 1 - c.Origin, nil
	}
	return 0, fmt.Errorf("%w: label %q for factor %q", core.ErrDesignEncoding, label, c.Factor)
}

// Levels returns the two centered values observed in the training
// sample, level 0 first
func (c CenteredCovariate) Levels() [2]float64 {
	return [2]float64{-c.Origin, 1 - c.Origin}
}

// Centering is the set of centered covariates attached to a fitted model
type Centering map[experiment.Factor]CenteredCovariate

// ============================================================================
// WARNINGS
// ============================================================================

// WarningCode represents structured non-fatal warning types. Warnings
// attach to artifacts and must propagate into any report derived from
// them.
type WarningCode string

const (
	WarningNonConvergence     WarningCode = "NON_CONVERGENCE"     // optimizer stopped short; estimates unreliable
	WarningSingularFit        WarningCode = "SINGULAR_FIT"        // a random-effect variance at its boundary
	WarningUndefinedStatistic WarningCode = "UNDEFINED_STATISTIC" // standard error undefined (count < 2)
)

// ============================================================================
// FITTED MODEL
// ============================================================================

// Coefficient is one row of a fixed-effect coefficient table
type Coefficient struct {
	Name     string  `json:"name"`
	Estimate float64 `json:"estimate"`
	StdErr   float64 `json:"std_err"`
	ZValue   float64 `json:"z_value"`
	PValue   float64 `json:"p_value"`
}

// VarianceComponent is one estimated random-effect or residual variance
type VarianceComponent struct {
	Name     string  `json:"name"` // "subject", "item" or "residual"
	Variance float64 `json:"variance"`
}

// FittedModel associates an outcome with its family, formula, centering
// origins and estimates. Immutable once fit; one per outcome variable
// per analysis pass.
type FittedModel struct {
	Outcome      core.OutcomeKey     `json:"outcome"`
	Family       Family              `json:"family"`
	Formula      FormulaSpec         `json:"formula"`
	Random       RandomSpec          `json:"random"`
	Centers      Centering           `json:"centers"`
	Coefficients []Coefficient       `json:"coefficients"` // intercept first, then formula terms in order
	VarComps     []VarianceComponent `json:"variance_components"`
	Warnings     []WarningCode       `json:"warnings,omitempty"`
	Converged    bool                `json:"converged"`
	SampleSize   int                 `json:"sample_size"`
	Subjects     int                 `json:"subjects"`
	FittedAt     core.Timestamp      `json:"fitted_at"`
}

// Coefficient looks up a coefficient row by name
func (m *FittedModel) Coefficient(name string) (Coefficient, bool) {
	for _, c := range m.Coefficients {
		if c.Name == name {
			return c, true
		}
	}
	return Coefficient{}, false
}

// LinearPredictor evaluates the fixed-effect linear predictor at a
// fully-specified assignment of centered covariates, with all random
// effects held at zero. The point must assign every factor the formula
// references.
func (m *FittedModel) LinearPredictor(point map[experiment.Factor]float64) (float64, error) {
	eta := m.Coefficients[0].Estimate // intercept
	for i, t := range m.Formula.Terms {
		prod := 1.0
		for _, f := range t {
			v, ok := point[f]
			if !ok {
				return 0, fmt.Errorf("%w: %q", core.ErrIncompleteGrid, f)
			}
			prod *= v
		}
		eta += m.Coefficients[i+1].Estimate * prod
	}
	return eta, nil
}

// InverseLink maps a linear predictor back to the original outcome scale
func (m *FittedModel) InverseLink(eta float64) float64 {
	switch m.Family {
	case FamilyLogLinear:
		return math.Exp(eta)
	case FamilyBinomialLogit:
		return 1 / (1 + math.Exp(-eta))
	}
	return eta
}

// HasWarning reports whether the model carries a specific warning
func (m *FittedModel) HasWarning(code WarningCode) bool {
	for _, w := range m.Warnings {
		if w == code {
			return true
		}
	}
	return false
}

// ============================================================================
// OUTPUT TABLES (the sole interface to reporting/plotting)
// ============================================================================

// PredictionRow pairs one grid point with its predicted response on the
// original outcome scale
type PredictionRow struct {
	Point    map[experiment.Factor]float64 `json:"point"`
	Response float64                       `json:"response"`
}

// PredictionTable is the result of one counterfactual query against a
// fitted model
type PredictionTable struct {
	Outcome core.OutcomeKey `json:"outcome"`
	Query   string          `json:"query"`
	Rows    []PredictionRow `json:"rows"`
}

// AggregateRow is one grouped descriptive statistic. StdErr is NaN, not
// zero, when fewer than two non-missing values contributed.
type AggregateRow struct {
	Keys   []string `json:"keys"`
	Mean   float64  `json:"mean"`
	StdErr float64  `json:"std_err"`
	Count  int      `json:"count"`
}

// AggregateTable is the output of one aggregator invocation
type AggregateTable struct {
	Outcome  core.OutcomeKey `json:"outcome"`
	KeyNames []string        `json:"key_names"`
	Rows     []AggregateRow  `json:"rows"`
	Warnings []WarningCode   `json:"warnings,omitempty"`
}
