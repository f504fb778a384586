// Package mixedmodel fits mixed-effects models for the experiment's
// outcome variables. One engine serves every outcome: the caller picks a
// response accessor, a family and a random-intercept spec, and the
// engine handles design encoding, the fixed-formula structure and its
// degenerate reduction, estimation, and Wald inference.
package mixedmodel

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"gamelearn/domain/core"
	"gamelearn/domain/experiment"
	"gamelearn/domain/model"
	"gamelearn/internal/design"
)

// Config describes one model fit. Each outcome variable of the analysis
// is a Config value, never a separate code path.
type Config struct {
	Outcome  core.OutcomeKey
	Family   model.Family
	Random   model.RandomSpec
	Response func(experiment.TrialRecord) (float64, bool)
}

// Fit fits one mixed model over the full analysis sample of an outcome.
//
// The fixed structure is response ~ gamified + gamified:group_c +
// gamified:order_c + gamified:group_c:order_c over centered covariates,
// reduced to group + order + group:order when the sample contains a
// single observed gamified level. Fatal problems (malformed factor
// levels, insufficient data) return an error and no model;
// non-convergence and singular random-effect variances return the model
// with warnings attached.
func Fit(sample experiment.Sample, cfg Config) (*model.FittedModel, error) {
	if !cfg.Family.Valid() {
		return nil, fmt.Errorf("unsupported model family %q", cfg.Family)
	}
	if cfg.Response == nil {
		return nil, fmt.Errorf("outcome %q: no response accessor", cfg.Outcome)
	}
	if !cfg.Random.SubjectIntercept {
		return nil, fmt.Errorf("outcome %q: models require a per-subject random intercept", cfg.Outcome)
	}

	rows, y := modelingRows(sample, cfg)
	if len(rows) == 0 {
		return nil, fmt.Errorf("outcome %q: %w", cfg.Outcome, core.ErrNoObservations)
	}
	if len(rows.Subjects()) < 2 {
		return nil, fmt.Errorf("outcome %q: %w", cfg.Outcome, core.ErrTooFewSubjects)
	}

	groups := []grouping{subjectGrouping(rows)}
	if cfg.Random.ItemIntercept {
		groups = append(groups, itemGrouping(rows))
	}
	for _, g := range groups {
		if len(g.levels) < 2 || !g.hasReplication() {
			return nil, fmt.Errorf("outcome %q: grouping %q: %w", cfg.Outcome, g.name, core.ErrNoReplication)
		}
	}

	// The degenerate case: an outcome observed under only one gamified
	// level cannot carry the gamified term or its interactions
	formula := model.FullFormula()
	if len(rows.FactorLevels(experiment.FactorGamified)) < 2 {
		formula = model.ReducedFormula()
	}

	centers, err := design.EncodeAll(rows, formula.Factors()...)
	if err != nil {
		return nil, fmt.Errorf("outcome %q: %w", cfg.Outcome, err)
	}

	x, err := fixedMatrix(rows, formula, centers)
	if err != nil {
		return nil, fmt.Errorf("outcome %q: %w", cfg.Outcome, err)
	}
	n, p := x.Dims()
	if n <= p {
		return nil, core.NewInsufficientDataError(cfg.Outcome.String(), fmt.Sprintf("%d rows for %d fixed effects", n, p))
	}

	fitted := &model.FittedModel{
		Outcome:    cfg.Outcome,
		Family:     cfg.Family,
		Formula:    formula,
		Random:     cfg.Random,
		Centers:    centers,
		SampleSize: n,
		Subjects:   len(rows.Subjects()),
		FittedAt:   core.Now(),
	}

	switch cfg.Family {
	case model.FamilyBinomialLogit:
		err = fitBinomial(fitted, x, y, groups)
	default:
		err = fitGaussian(fitted, x, y, groups)
	}
	if err != nil {
		return nil, fmt.Errorf("outcome %q: %w", cfg.Outcome, err)
	}
	return fitted, nil
}

// modelingRows filters the sample to rows with an observed, usable
// response and returns them alongside the (possibly transformed)
// response vector. Non-positive values under the log family are treated
// as missing, never forced through the transform.
func modelingRows(sample experiment.Sample, cfg Config) (experiment.Sample, []float64) {
	var rows experiment.Sample
	var y []float64
	for _, r := range sample {
		v, ok := cfg.Response(r)
		if !ok || math.IsNaN(v) {
			continue
		}
		if cfg.Family == model.FamilyLogLinear {
			if v <= 0 {
				continue
			}
			v = math.Log(v)
		}
		rows = append(rows, r)
		y = append(y, v)
	}
	return rows, y
}

func fitGaussian(fitted *model.FittedModel, x *mat.Dense, y []float64, groups []grouping) error {
	yVec := mat.NewVecDense(len(y), y)
	lf, err := fitLMM(x, yVec, groups)
	if err != nil {
		return err
	}

	fitted.Converged = lf.converged
	if !lf.converged {
		fitted.Warnings = append(fitted.Warnings, model.WarningNonConvergence)
	}
	if boundaryTheta(lf.theta) || lf.sigma2 <= s2Floor {
		fitted.Warnings = append(fitted.Warnings, model.WarningSingularFit)
	}

	for k, g := range groups {
		fitted.VarComps = append(fitted.VarComps, model.VarianceComponent{
			Name:     g.name,
			Variance: lf.theta[k] * lf.sigma2,
		})
	}
	fitted.VarComps = append(fitted.VarComps, model.VarianceComponent{
		Name:     "residual",
		Variance: lf.sigma2,
	})

	fitted.Coefficients = waldTable(fitted.Formula, lf.res, lf.sigma2)
	return nil
}

func fitBinomial(fitted *model.FittedModel, x *mat.Dense, y []float64, groups []grouping) error {
	pf, err := fitPQL(x, y, groups)
	if err != nil {
		return err
	}

	fitted.Converged = pf.converged
	if !pf.converged {
		fitted.Warnings = append(fitted.Warnings, model.WarningNonConvergence)
	}
	if boundaryTheta(pf.theta) {
		fitted.Warnings = append(fitted.Warnings, model.WarningSingularFit)
	}

	// PQL works on the logit scale with dispersion fixed at one, so the
	// ratios are the variances
	for k, g := range groups {
		fitted.VarComps = append(fitted.VarComps, model.VarianceComponent{
			Name:     g.name,
			Variance: pf.theta[k],
		})
	}

	fitted.Coefficients = waldTable(fitted.Formula, pf.res, 1)
	return nil
}

// waldTable assembles the coefficient table: estimates, standard errors
// from the scaled GLS covariance, z statistics and two-sided normal
// p-values
func waldTable(formula model.FormulaSpec, res *glsResult, dispersion float64) []model.Coefficient {
	names := []string{"(Intercept)"}
	for _, t := range formula.Terms {
		names = append(names, t.Name())
	}

	norm := distuv.Normal{Mu: 0, Sigma: 1}
	out := make([]model.Coefficient, len(names))
	for i, name := range names {
		est := res.beta.AtVec(i)
		se := math.Sqrt(dispersion * res.ainv.At(i, i))
		z := math.NaN()
		pv := math.NaN()
		if se > 0 && !math.IsNaN(se) {
			z = est / se
			pv = 2 * norm.Survival(math.Abs(z))
		}
		out[i] = model.Coefficient{Name: name, Estimate: est, StdErr: se, ZValue: z, PValue: pv}
	}
	return out
}
