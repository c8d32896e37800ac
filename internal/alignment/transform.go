package alignment

import (
	"fmt"

	"piescope/internal/fault"
	"piescope/pkg/geometry"
)

// Transform is an estimated mapping between the two images of a correlation.
// It is immutable; re-estimation produces a new Transform.
type Transform struct {
	Matrix      geometry.AffineTransform
	Orientation geometry.Orientation
}

// NewTransform wraps a matrix with an orientation.
func NewTransform(m geometry.AffineTransform, o geometry.Orientation) Transform {
	return Transform{Matrix: m, Orientation: o}
}

// Apply maps a point through the transform.
func (t Transform) Apply(p geometry.Point2D) geometry.Point2D {
	return t.Matrix.Apply(p)
}

// Homogeneous returns the 3x3 matrix with last row exactly [0 0 1].
func (t Transform) Homogeneous() [3][3]float64 {
	return t.Matrix.Homogeneous()
}

// Inverse returns the analytic inverse with the orientation reversed.
func (t Transform) Inverse() (Transform, error) {
	inv, ok := t.Matrix.Inverse()
	if !ok {
		return Transform{}, &fault.Error{
			Kind:   fault.KindDegenerateConfiguration,
			Op:     "invert transform",
			Detail: fmt.Sprintf("determinant %.3g", t.Matrix.Determinant()),
		}
	}
	return Transform{Matrix: inv, Orientation: t.Orientation.Reverse()}, nil
}

// Compose returns t applied after other. Orientations chain when they agree or
// one side is unset; mixed orientations yield an unset orientation.
func (t Transform) Compose(other Transform) Transform {
	o := geometry.OrientationUnset
	switch {
	case other.Orientation == geometry.OrientationUnset:
		o = t.Orientation
	case t.Orientation == geometry.OrientationUnset:
		o = other.Orientation
	case t.Orientation == other.Orientation:
		o = t.Orientation
	}
	return Transform{Matrix: t.Matrix.Compose(other.Matrix), Orientation: o}
}

func (t Transform) String() string {
	m := t.Matrix
	return fmt.Sprintf("%s [%.6g %.6g %.6g; %.6g %.6g %.6g]", t.Orientation,
		m.A, m.B, m.TX, m.C, m.D, m.TY)
}

// CalculateAlignmentError calculates the mean alignment error after transformation.
func CalculateAlignmentError(srcPoints, dstPoints []geometry.Point2D, transform geometry.AffineTransform) float64 {
	if len(srcPoints) != len(dstPoints) || len(srcPoints) == 0 {
		return -1
	}

	var totalError float64
	for i := range srcPoints {
		transformed := transform.Apply(srcPoints[i])
		totalError += transformed.Distance(dstPoints[i])
	}

	return totalError / float64(len(srcPoints))
}

// SumSquaredResidual returns the sum of squared Euclidean residuals of the
// transform over all point pairs.
func SumSquaredResidual(srcPoints, dstPoints []geometry.Point2D, transform geometry.AffineTransform) float64 {
	var sum float64
	for i := range srcPoints {
		d := transform.Apply(srcPoints[i]).Sub(dstPoints[i])
		sum += d.X*d.X + d.Y*d.Y
	}
	return sum
}
