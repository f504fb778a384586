package mixedmodel

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

const (
	// thetaFloor is the boundary below which a variance ratio is
	// reported as a singular fit
	thetaFloor = 1e-4
	// phi (log variance ratio) is clamped to keep the profiled
	// deviance finite at the boundary
	phiMin = -12.0
	phiMax = 12.0
	// s2Floor guards the profiled residual variance when the response
	// is (near) perfectly explained
	s2Floor = 1e-12
)

// lmmFit is the solution of a linear mixed model by profiled REML
type lmmFit struct {
	res       *glsResult
	theta     []float64 // variance ratios, one per random grouping
	sigma2    float64   // residual variance
	converged bool
}

// fitLMM maximizes the REML criterion over the variance ratios of the
// random intercepts, with the fixed effects and residual variance
// profiled out, then solves the final GLS problem at the optimum
func fitLMM(x *mat.Dense, y *mat.VecDense, groups []grouping) (*lmmFit, error) {
	n, p := x.Dims()
	ones := make([]float64, n)
	for i := range ones {
		ones[i] = 1
	}

	objective := func(theta []float64) float64 {
		zs := scaledRandomDesign(n, groups, theta)
		res, err := glsFit(x, y, ones, zs)
		if err != nil {
			return math.Inf(1)
		}
		s2 := res.quad / float64(n-p)
		if s2 < s2Floor {
			s2 = s2Floor
		}
		return res.logdetV + res.logdetA + float64(n-p)*(1+math.Log(2*math.Pi*s2))
	}

	theta, converged := minimizeTheta(len(groups), objective)

	zs := scaledRandomDesign(n, groups, theta)
	res, err := glsFit(x, y, ones, zs)
	if err != nil {
		return nil, err
	}
	s2 := res.quad / float64(n-p)
	if s2 < s2Floor {
		s2 = s2Floor
	}
	return &lmmFit{res: res, theta: theta, sigma2: s2, converged: converged}, nil
}

// minimizeTheta runs a Nelder-Mead search over the log variance ratios.
// The returned flag is false when the optimizer stopped short of
// convergence; estimates at the best point visited are still usable but
// must be surfaced with a non-convergence warning.
func minimizeTheta(nRE int, objective func(theta []float64) float64) ([]float64, bool) {
	problem := optimize.Problem{
		Func: func(phi []float64) float64 {
			return objective(thetaFromPhi(phi))
		},
	}
	init := make([]float64, nRE)

	settings := &optimize.Settings{FuncEvaluations: 2000}
	result, err := optimize.Minimize(problem, init, settings, &optimize.NelderMead{})
	if result == nil {
		// Optimizer could not evaluate at all; fall back to unit ratios
		return thetaFromPhi(init), false
	}

	converged := err == nil
	switch result.Status {
	case optimize.Success, optimize.FunctionConvergence, optimize.FunctionThreshold,
		optimize.GradientThreshold, optimize.StepConvergence, optimize.MethodConverge:
	default:
		converged = false
	}
	return thetaFromPhi(result.X), converged
}

func thetaFromPhi(phi []float64) []float64 {
	theta := make([]float64, len(phi))
	for i, v := range phi {
		if v < phiMin {
			v = phiMin
		}
		if v > phiMax {
			v = phiMax
		}
		theta[i] = math.Exp(v)
	}
	return theta
}

// boundaryTheta reports whether any variance ratio collapsed to the
// boundary of its parameter space
func boundaryTheta(theta []float64) bool {
	for _, t := range theta {
		if t < thetaFloor {
			return true
		}
	}
	return false
}
