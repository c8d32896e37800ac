// Package alignment estimates transforms between two images from landmark
// correspondences.
package alignment

import (
	"fmt"
	"math"
	"strings"

	"piescope/internal/fault"
	"piescope/internal/points"
	"piescope/pkg/geometry"

	"gonum.org/v1/gonum/mat"
)

// MinPoints is the smallest point set an estimate is attempted on.
const MinPoints = 3

// DefaultMaxCondition is the largest accepted 2-norm condition number of the
// normalised point matrix.
const DefaultMaxCondition = 1e8

// Model selects the family of transforms fitted to the landmarks.
type Model int

const (
	ModelAffine Model = iota // full 6 degree-of-freedom affine
	ModelRigid               // rotation + translation
)

func (m Model) String() string {
	switch m {
	case ModelAffine:
		return "affine"
	case ModelRigid:
		return "rigid"
	default:
		return "unknown"
	}
}

// ParseModel parses a model name as used in configuration files.
func ParseModel(s string) (Model, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "affine":
		return ModelAffine, nil
	case "rigid":
		return ModelRigid, nil
	default:
		return ModelAffine, fmt.Errorf("unknown transform model %q", s)
	}
}

// Estimate holds an estimated transform and its fit quality.
type Estimate struct {
	Transform Transform
	Model     Model
	Condition float64   // condition number of the normalised point matrix
	Residuals []float64 // per-point residual distance, in point order
	RMSError  float64
	MaxError  float64
}

// Estimator fits a transform mapping image A points onto image B points.
// It is deterministic: the same points in the same order always give the
// same coefficients.
type Estimator struct {
	Model        Model
	MaxCondition float64
}

// NewEstimator returns an affine estimator with the default conditioning limit.
func NewEstimator() *Estimator {
	return &Estimator{Model: ModelAffine, MaxCondition: DefaultMaxCondition}
}

// Estimate fits the configured model to the point set. The returned transform
// maps image A to image B.
func (e *Estimator) Estimate(ps points.Set) (*Estimate, error) {
	n := len(ps)
	if n < MinPoints {
		return nil, &fault.Error{
			Kind:   fault.KindInsufficientPoints,
			Op:     "estimate",
			Detail: fmt.Sprintf("need at least %d points, got %d", MinPoints, n),
			Points: n,
		}
	}

	src := ps.Sources()
	dst := ps.Targets()

	var (
		m    geometry.AffineTransform
		cond float64
		err  error
	)
	switch e.Model {
	case ModelRigid:
		m, err = computeRigidLeastSquares(src, dst)
	default:
		maxCond := e.MaxCondition
		if maxCond <= 0 {
			maxCond = DefaultMaxCondition
		}
		m, cond, err = computeAffineLeastSquares(src, dst, maxCond)
	}
	if err != nil {
		return nil, err
	}

	est := &Estimate{
		Transform: NewTransform(m, geometry.AToB),
		Model:     e.Model,
		Condition: cond,
		Residuals: make([]float64, n),
	}
	var sumSq float64
	for i := range src {
		r := m.Apply(src[i]).Distance(dst[i])
		est.Residuals[i] = r
		sumSq += r * r
		est.MaxError = math.Max(est.MaxError, r)
	}
	est.RMSError = math.Sqrt(sumSq / float64(n))
	return est, nil
}

// normalization returns the centroid and the inverse RMS radius of the points.
// The scale is zero when all points coincide.
func normalization(pts []geometry.Point2D) (geometry.Point2D, float64) {
	c := geometry.Centroid(pts)
	var sum float64
	for _, p := range pts {
		d := p.Sub(c)
		sum += d.X*d.X + d.Y*d.Y
	}
	rms := math.Sqrt(sum / float64(len(pts)))
	if rms == 0 || math.IsNaN(rms) || math.IsInf(rms, 0) {
		return c, 0
	}
	return c, 1 / rms
}

// computeAffineLeastSquares computes an affine transform using least squares.
// Source coordinates are centred and scaled before solving so the
// conditioning check is independent of image size and position.
func computeAffineLeastSquares(src, dst []geometry.Point2D, maxCond float64) (geometry.AffineTransform, float64, error) {
	n := len(src)

	c, s := normalization(src)
	if s == 0 {
		return geometry.AffineTransform{}, math.Inf(1), &fault.Error{
			Kind:      fault.KindDegenerateConfiguration,
			Op:        "estimate",
			Detail:    "all source points coincide",
			Points:    n,
			Condition: math.Inf(1),
		}
	}

	// Rank check on the n x 3 matrix [x y 1]; the 2n x 6 design matrix has
	// the same singular values, each twice.
	P := mat.NewDense(n, 3, nil)
	for i, p := range src {
		P.Set(i, 0, (p.X-c.X)*s)
		P.Set(i, 1, (p.Y-c.Y)*s)
		P.Set(i, 2, 1)
	}
	cond := mat.Cond(P, 2)
	if math.IsNaN(cond) || math.IsInf(cond, 0) || cond > maxCond {
		return geometry.AffineTransform{}, cond, &fault.Error{
			Kind:      fault.KindDegenerateConfiguration,
			Op:        "estimate",
			Detail:    "source points are collinear or ill-conditioned",
			Points:    n,
			Condition: cond,
		}
	}

	// Build overdetermined system
	A := mat.NewDense(n*2, 6, nil)
	B := mat.NewVecDense(n*2, nil)

	for i := 0; i < n; i++ {
		x, y := P.At(i, 0), P.At(i, 1)
		xp, yp := dst[i].X, dst[i].Y

		// x' = a*x + b*y + tx
		A.Set(i*2, 0, x)
		A.Set(i*2, 1, y)
		A.Set(i*2, 2, 1)
		B.SetVec(i*2, xp)

		// y' = c*x + d*y + ty
		A.Set(i*2+1, 3, x)
		A.Set(i*2+1, 4, y)
		A.Set(i*2+1, 5, 1)
		B.SetVec(i*2+1, yp)
	}

	// Solve using QR decomposition
	var qr mat.QR
	qr.Factorize(A)

	var params mat.VecDense
	if err := qr.SolveVecTo(&params, false, B); err != nil {
		return geometry.AffineTransform{}, cond, &fault.Error{
			Kind:      fault.KindDegenerateConfiguration,
			Op:        "estimate",
			Points:    n,
			Condition: cond,
			Err:       err,
		}
	}

	// Undo the normalisation: x_n = s*(x - c)
	a := params.AtVec(0) * s
	b := params.AtVec(1) * s
	cc := params.AtVec(3) * s
	d := params.AtVec(4) * s
	return geometry.AffineTransform{
		A:  a,
		B:  b,
		TX: params.AtVec(2) - a*c.X - b*c.Y,
		C:  cc,
		D:  d,
		TY: params.AtVec(5) - cc*c.X - d*c.Y,
	}, cond, nil
}

// ExactFit computes the affine transform mapping exactly 3 source points onto
// 3 destination points. Collinear sources fail with DegenerateConfiguration.
func ExactFit(src, dst [3]geometry.Point2D) (geometry.AffineTransform, error) {
	if geometry.TriangleArea(src[0], src[1], src[2]) == 0 {
		return geometry.AffineTransform{}, &fault.Error{
			Kind:   fault.KindDegenerateConfiguration,
			Op:     "exact fit",
			Detail: "source points are collinear",
			Points: 3,
		}
	}

	// Build matrix equation: [x', y'] = [a, b, tx; c, d, ty] * [x, y, 1]
	A := mat.NewDense(6, 6, nil)
	B := mat.NewVecDense(6, nil)

	for i := 0; i < 3; i++ {
		x, y := src[i].X, src[i].Y
		xp, yp := dst[i].X, dst[i].Y

		A.Set(i*2, 0, x)
		A.Set(i*2, 1, y)
		A.Set(i*2, 2, 1)
		B.SetVec(i*2, xp)

		A.Set(i*2+1, 3, x)
		A.Set(i*2+1, 4, y)
		A.Set(i*2+1, 5, 1)
		B.SetVec(i*2+1, yp)
	}

	var params mat.VecDense
	if err := params.SolveVec(A, B); err != nil {
		return geometry.AffineTransform{}, &fault.Error{
			Kind:   fault.KindDegenerateConfiguration,
			Op:     "exact fit",
			Points: 3,
			Err:    err,
		}
	}

	return geometry.AffineTransform{
		A:  params.AtVec(0),
		B:  params.AtVec(1),
		TX: params.AtVec(2),
		C:  params.AtVec(3),
		D:  params.AtVec(4),
		TY: params.AtVec(5),
	}, nil
}

// computeRigidLeastSquares computes the best rigid transform (rotation + translation)
// from N point pairs.
func computeRigidLeastSquares(src, dst []geometry.Point2D) (geometry.AffineTransform, error) {
	n := len(src)

	srcC := geometry.Centroid(src)
	dstC := geometry.Centroid(dst)
	if _, s := normalization(src); s == 0 {
		return geometry.AffineTransform{}, &fault.Error{
			Kind:   fault.KindDegenerateConfiguration,
			Op:     "estimate",
			Detail: "all source points coincide",
			Points: n,
		}
	}

	// Compute rotation using the cross/dot product method
	var dotSum, crossSum float64
	for i := range src {
		sx, sy := src[i].X-srcC.X, src[i].Y-srcC.Y
		dx, dy := dst[i].X-dstC.X, dst[i].Y-dstC.Y
		dotSum += sx*dx + sy*dy
		crossSum += sx*dy - sy*dx
	}

	theta := math.Atan2(crossSum, dotSum)
	cosT := math.Cos(theta)
	sinT := math.Sin(theta)

	// Translation
	tx := dstC.X - (cosT*srcC.X - sinT*srcC.Y)
	ty := dstC.Y - (sinT*srcC.X + cosT*srcC.Y)

	return geometry.AffineTransform{
		A: cosT, B: -sinT, TX: tx,
		C: sinT, D: cosT, TY: ty,
	}, nil
}
