package mixedmodel

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// covSolver solves systems in the marginal covariance
//
//	V = D + Zs Zs'
//
// where D is diagonal and Zs is the random-effects design with columns
// scaled by the square roots of the variance ratios. The Woodbury
// identity keeps every solve at O(n q^2) for q total random levels
// instead of factoring the n x n matrix directly.
type covSolver struct {
	n      int
	dinv   []float64
	zs     *mat.Dense
	chol   mat.Cholesky
	logdet float64 // log|V|
}

func newCovSolver(d []float64, zs *mat.Dense) (*covSolver, error) {
	n := len(d)
	s := &covSolver{n: n, dinv: make([]float64, n), zs: zs}

	logdetD := 0.0
	for i, di := range d {
		if di <= 0 || math.IsNaN(di) {
			return nil, fmt.Errorf("non-positive residual weight at row %d", i)
		}
		s.dinv[i] = 1 / di
		logdetD += math.Log(di)
	}

	if zs == nil {
		s.logdet = logdetD
		return s, nil
	}

	_, q := zs.Dims()
	// M = I_q + Zs' D^-1 Zs
	m := mat.NewSymDense(q, nil)
	for a := 0; a < q; a++ {
		for b := a; b < q; b++ {
			sum := 0.0
			for i := 0; i < n; i++ {
				sum += zs.At(i, a) * s.dinv[i] * zs.At(i, b)
			}
			if a == b {
				sum += 1
			}
			m.SetSym(a, b, sum)
		}
	}
	if ok := s.chol.Factorize(m); !ok {
		return nil, fmt.Errorf("covariance capacitance matrix is not positive definite")
	}
	s.logdet = logdetD + s.chol.LogDet()
	return s, nil
}

// solve computes V^-1 B into dst
func (s *covSolver) solve(dst *mat.Dense, b mat.Matrix) error {
	n, m := b.Dims()
	if n != s.n {
		return fmt.Errorf("dimension mismatch: covariance is %d, rhs has %d rows", s.n, n)
	}

	dinvB := mat.NewDense(n, m, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < m; j++ {
			dinvB.Set(i, j, s.dinv[i]*b.At(i, j))
		}
	}
	if s.zs == nil {
		dst.CloneFrom(dinvB)
		return nil
	}

	var t mat.Dense
	t.Mul(s.zs.T(), dinvB)
	var u mat.Dense
	if err := s.chol.SolveTo(&u, &t); err != nil {
		return err
	}
	var zu mat.Dense
	zu.Mul(s.zs, &u)
	dst.CloneFrom(dinvB)
	for i := 0; i < n; i++ {
		for j := 0; j < m; j++ {
			dst.Set(i, j, dst.At(i, j)-s.dinv[i]*zu.At(i, j))
		}
	}
	return nil
}

// glsResult holds the generalized-least-squares solution for one value
// of the variance parameters
type glsResult struct {
	beta      *mat.VecDense // fixed-effect estimates
	ainv      *mat.SymDense // (X' V^-1 X)^-1
	quad      float64       // r' V^-1 r
	logdetV   float64
	logdetA   float64
	vinvResid *mat.VecDense // V^-1 (y - X beta), for BLUPs
}

// glsFit solves the generalized least squares problem for fixed V
func glsFit(x *mat.Dense, y *mat.VecDense, d []float64, zs *mat.Dense) (*glsResult, error) {
	n, p := x.Dims()

	solver, err := newCovSolver(d, zs)
	if err != nil {
		return nil, err
	}

	var vinvX mat.Dense
	if err := solver.solve(&vinvX, x); err != nil {
		return nil, err
	}
	yMat := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		yMat.Set(i, 0, y.AtVec(i))
	}
	var vinvY mat.Dense
	if err := solver.solve(&vinvY, yMat); err != nil {
		return nil, err
	}

	// A = X' V^-1 X, c = X' V^-1 y
	a := mat.NewSymDense(p, nil)
	for i := 0; i < p; i++ {
		for j := i; j < p; j++ {
			sum := 0.0
			for k := 0; k < n; k++ {
				sum += x.At(k, i) * vinvX.At(k, j)
			}
			a.SetSym(i, j, sum)
		}
	}
	c := mat.NewVecDense(p, nil)
	for i := 0; i < p; i++ {
		sum := 0.0
		for k := 0; k < n; k++ {
			sum += x.At(k, i) * vinvY.At(k, 0)
		}
		c.SetVec(i, sum)
	}

	var cholA mat.Cholesky
	if ok := cholA.Factorize(a); !ok {
		return nil, fmt.Errorf("fixed-effect normal equations are singular")
	}
	beta := mat.NewVecDense(p, nil)
	if err := cholA.SolveVecTo(beta, c); err != nil {
		return nil, err
	}
	var ainv mat.SymDense
	if err := cholA.InverseTo(&ainv); err != nil {
		return nil, err
	}

	// r = y - X beta and its V^-1 image
	resid := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		fit := 0.0
		for j := 0; j < p; j++ {
			fit += x.At(i, j) * beta.AtVec(j)
		}
		resid.Set(i, 0, y.AtVec(i)-fit)
	}
	var vinvR mat.Dense
	if err := solver.solve(&vinvR, resid); err != nil {
		return nil, err
	}
	quad := 0.0
	vinvResid := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		quad += resid.At(i, 0) * vinvR.At(i, 0)
		vinvResid.SetVec(i, vinvR.At(i, 0))
	}

	res := &glsResult{
		beta:      beta,
		ainv:      &ainv,
		quad:      quad,
		logdetV:   solver.logdet,
		logdetA:   cholA.LogDet(),
		vinvResid: vinvResid,
	}
	return res, nil
}
