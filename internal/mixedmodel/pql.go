package mixedmodel

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

const (
	pqlMaxIter = 25
	pqlTol     = 1e-6
	muClamp    = 1e-6
)

// pqlFit is the solution of a binomial-logit mixed model by penalized
// quasi-likelihood: iteratively reweighted working responses fit with
// the weighted LMM machinery, dispersion fixed at one
type pqlFit struct {
	res       *glsResult
	theta     []float64
	converged bool
}

// fitPQL fits a binomial-logit mixed model. y must contain 0/1 values.
func fitPQL(x *mat.Dense, y []float64, groups []grouping) (*pqlFit, error) {
	n, p := x.Dims()

	// Working state: linear predictor initialized from shrunken
	// observed proportions
	eta := make([]float64, n)
	for i, v := range y {
		mu := (v + 0.5) / 2
		eta[i] = math.Log(mu / (1 - mu))
	}

	var (
		fit       *pqlFit
		prevBeta  []float64
		theta     = make([]float64, len(groups))
		converged = false
	)
	for i := range theta {
		theta[i] = 1
	}

	for iter := 0; iter < pqlMaxIter; iter++ {
		// IRLS weights and working response at the current eta
		weights := make([]float64, n) // residual variances 1/w
		work := mat.NewVecDense(n, nil)
		for i := range y {
			mu := 1 / (1 + math.Exp(-eta[i]))
			if mu < muClamp {
				mu = muClamp
			}
			if mu > 1-muClamp {
				mu = 1 - muClamp
			}
			w := mu * (1 - mu)
			weights[i] = 1 / w
			work.SetVec(i, eta[i]+(y[i]-mu)/w)
		}

		// Quasi-REML over the variance ratios with dispersion fixed at 1
		objective := func(th []float64) float64 {
			zs := scaledRandomDesign(n, groups, th)
			res, err := glsFit(x, work, weights, zs)
			if err != nil {
				return math.Inf(1)
			}
			return res.logdetV + res.logdetA + res.quad
		}
		var thetaOK bool
		theta, thetaOK = minimizeTheta(len(groups), objective)

		zs := scaledRandomDesign(n, groups, theta)
		res, err := glsFit(x, work, weights, zs)
		if err != nil {
			return nil, err
		}
		fit = &pqlFit{res: res, theta: theta}

		// Update eta = X beta + Zs u with u = Zs' V^-1 r
		for i := 0; i < n; i++ {
			v := 0.0
			for j := 0; j < p; j++ {
				v += x.At(i, j) * res.beta.AtVec(j)
			}
			eta[i] = v
		}
		if zs != nil {
			var u mat.VecDense
			u.MulVec(zs.T(), res.vinvResid)
			var ranef mat.VecDense
			ranef.MulVec(zs, &u)
			for i := 0; i < n; i++ {
				eta[i] += ranef.AtVec(i)
			}
		}

		if prevBeta != nil {
			delta := 0.0
			for j := 0; j < p; j++ {
				d := math.Abs(res.beta.AtVec(j) - prevBeta[j])
				if d > delta {
					delta = d
				}
			}
			if delta < pqlTol && thetaOK {
				converged = true
				break
			}
		}
		prevBeta = make([]float64, p)
		for j := 0; j < p; j++ {
			prevBeta[j] = res.beta.AtVec(j)
		}
	}

	fit.converged = converged
	return fit, nil
}
