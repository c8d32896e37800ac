package alignment

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"piescope/internal/fault"
	"piescope/internal/points"
	"piescope/pkg/geometry"
)

func buildSet(t *testing.T, src []geometry.Point2D, tr geometry.AffineTransform) points.Set {
	t.Helper()
	s := points.NewStore()
	for _, p := range src {
		q := tr.Apply(p)
		_, err := s.Add(p.X, p.Y, q.X, q.Y)
		require.NoError(t, err)
	}
	return s.List()
}

func assertTransformNear(t *testing.T, want, got geometry.AffineTransform, relTol float64) {
	t.Helper()
	w := [6]float64{want.A, want.B, want.TX, want.C, want.D, want.TY}
	g := [6]float64{got.A, got.B, got.TX, got.C, got.D, got.TY}
	for i := range w {
		tol := relTol * math.Max(1, math.Abs(w[i]))
		assert.InDelta(t, w[i], g[i], tol, "coefficient %d", i)
	}
}

func TestEstimate_PureTranslation(t *testing.T) {
	s := points.NewStore()
	_, _ = s.Add(0, 0, 5, 5)
	_, _ = s.Add(10, 0, 15, 5)
	_, _ = s.Add(0, 10, 5, 15)

	est, err := NewEstimator().Estimate(s.List())
	require.NoError(t, err)

	h := est.Transform.Homogeneous()
	want := [3][3]float64{{1, 0, 5}, {0, 1, 5}, {0, 0, 1}}
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			assert.InDelta(t, want[r][c], h[r][c], 1e-9, "h[%d][%d]", r, c)
		}
	}
	assert.Equal(t, [3]float64{0, 0, 1}, h[2], "last row is exact")
	assert.Equal(t, geometry.AToB, est.Transform.Orientation)
	assert.InDelta(t, 0, est.RMSError, 1e-9)
}

func TestEstimate_RecoversKnownAffineFromThreePoints(t *testing.T) {
	known := geometry.AffineTransform{A: 1.7, B: -0.4, TX: 120.5, C: 0.25, D: 2.3, TY: -33}
	src := []geometry.Point2D{{X: 12, Y: 40}, {X: 900, Y: 75}, {X: 300, Y: 1020}}

	est, err := NewEstimator().Estimate(buildSet(t, src, known))
	require.NoError(t, err)
	assertTransformNear(t, known, est.Transform.Matrix, 1e-9)
}

func TestEstimate_LeastSquaresBeatsAnyExactSubset(t *testing.T) {
	known := geometry.AffineTransform{A: 0.5, B: 0.1, TX: 40, C: -0.05, D: 0.45, TY: 12}
	src := []geometry.Point2D{
		{X: 10, Y: 10}, {X: 500, Y: 30}, {X: 60, Y: 480}, {X: 470, Y: 460}, {X: 250, Y: 240}, {X: 120, Y: 330},
	}

	rng := rand.New(rand.NewSource(7))
	s := points.NewStore()
	for _, p := range src {
		q := known.Apply(p)
		_, err := s.Add(p.X, p.Y, q.X+rng.NormFloat64()*0.8, q.Y+rng.NormFloat64()*0.8)
		require.NoError(t, err)
	}
	set := s.List()
	a, b := set.Sources(), set.Targets()

	est, err := NewEstimator().Estimate(set)
	require.NoError(t, err)
	full := SumSquaredResidual(a, b, est.Transform.Matrix)

	for i := 0; i < len(a); i++ {
		for j := i + 1; j < len(a); j++ {
			for k := j + 1; k < len(a); k++ {
				exact, err := ExactFit(
					[3]geometry.Point2D{a[i], a[j], a[k]},
					[3]geometry.Point2D{b[i], b[j], b[k]},
				)
				require.NoError(t, err)
				subset := SumSquaredResidual(a, b, exact)
				assert.LessOrEqual(t, full, subset+1e-9, "subset %d,%d,%d", i, j, k)
			}
		}
	}
}

func TestEstimate_CollinearIsDegenerate(t *testing.T) {
	cases := map[string][]geometry.Point2D{
		"diagonal":   {{X: 0, Y: 0}, {X: 1, Y: 1}, {X: 2, Y: 2}},
		"horizontal": {{X: 0, Y: 5}, {X: 10, Y: 5}, {X: 20, Y: 5}},
		"four":       {{X: 0, Y: 0}, {X: 3, Y: 6}, {X: 5, Y: 10}, {X: 9, Y: 18}},
		"coincident": {{X: 4, Y: 4}, {X: 4, Y: 4}, {X: 4, Y: 4}},
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewEstimator().Estimate(buildSet(t, src, geometry.Translation(1, 1)))
			require.Error(t, err)
			assert.ErrorIs(t, err, fault.ErrDegenerate)

			var fe *fault.Error
			require.ErrorAs(t, err, &fe)
			assert.Equal(t, len(src), fe.Points)
			assert.True(t, fe.Condition > DefaultMaxCondition || math.IsInf(fe.Condition, 1))
		})
	}
}

func TestEstimate_FewerThanThreePoints(t *testing.T) {
	for n := 0; n < 3; n++ {
		src := []geometry.Point2D{{X: 0, Y: 0}, {X: 10, Y: 0}}[:n]
		_, err := NewEstimator().Estimate(buildSet(t, src, geometry.Identity()))
		require.Error(t, err)
		assert.ErrorIs(t, err, fault.ErrInsufficientPoints)
	}
}

func TestEstimate_IsDeterministic(t *testing.T) {
	known := geometry.AffineTransform{A: 1.01, B: 0.02, TX: 3.3, C: -0.03, D: 0.98, TY: -7.1}
	src := []geometry.Point2D{{X: 1.5, Y: 2}, {X: 800.25, Y: 13}, {X: 17, Y: 611}, {X: 400, Y: 399.5}}
	set := buildSet(t, src, known)
	set[3].BX += 0.37

	first, err := NewEstimator().Estimate(set)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := NewEstimator().Estimate(set)
		require.NoError(t, err)
		assert.Equal(t, first.Transform.Matrix, again.Transform.Matrix)
	}
}

func TestEstimate_RigidModel(t *testing.T) {
	known := geometry.Translation(20, -4).Compose(geometry.Rotation(0.3))
	src := []geometry.Point2D{{X: 0, Y: 0}, {X: 100, Y: 0}, {X: 0, Y: 50}, {X: 70, Y: 80}}

	e := &Estimator{Model: ModelRigid}
	est, err := e.Estimate(buildSet(t, src, known))
	require.NoError(t, err)
	assertTransformNear(t, known, est.Transform.Matrix, 1e-9)
	assert.Equal(t, ModelRigid, est.Model)
}

func TestEstimate_ResidualsReported(t *testing.T) {
	s := points.NewStore()
	_, _ = s.Add(0, 0, 0, 0)
	_, _ = s.Add(10, 0, 10, 0)
	_, _ = s.Add(0, 10, 0, 10)
	_, _ = s.Add(10, 10, 10, 12)

	est, err := NewEstimator().Estimate(s.List())
	require.NoError(t, err)
	require.Len(t, est.Residuals, 4)
	assert.Greater(t, est.RMSError, 0.0)
	assert.GreaterOrEqual(t, est.MaxError, est.RMSError)
	assert.Greater(t, est.Condition, 0.0)
}

func TestExactFit_Collinear(t *testing.T) {
	_, err := ExactFit(
		[3]geometry.Point2D{{X: 0, Y: 0}, {X: 1, Y: 1}, {X: 2, Y: 2}},
		[3]geometry.Point2D{{X: 0, Y: 0}, {X: 1, Y: 1}, {X: 2, Y: 2}},
	)
	assert.ErrorIs(t, err, fault.ErrDegenerate)
}

func TestParseModel(t *testing.T) {
	m, err := ParseModel("Rigid")
	require.NoError(t, err)
	assert.Equal(t, ModelRigid, m)

	m, err = ParseModel("")
	require.NoError(t, err)
	assert.Equal(t, ModelAffine, m)

	_, err = ParseModel("projective")
	assert.Error(t, err)
}

func TestTransform_InverseReversesOrientation(t *testing.T) {
	tr := NewTransform(geometry.Translation(5, 5), geometry.AToB)

	inv, err := tr.Inverse()
	require.NoError(t, err)
	assert.Equal(t, geometry.BToA, inv.Orientation)
	assert.Equal(t, geometry.Point2D{X: 0, Y: 0}, inv.Apply(geometry.Point2D{X: 5, Y: 5}))

	_, err = NewTransform(geometry.Scale(0, 0), geometry.AToB).Inverse()
	assert.ErrorIs(t, err, fault.ErrDegenerate)
}

func TestTransform_ComposeOrientation(t *testing.T) {
	coarse := NewTransform(geometry.Translation(1, 0), geometry.AToB)
	fine := NewTransform(geometry.Translation(0, 1), geometry.AToB)
	assert.Equal(t, geometry.AToB, fine.Compose(coarse).Orientation)

	inv, err := coarse.Inverse()
	require.NoError(t, err)
	assert.Equal(t, geometry.OrientationUnset, inv.Compose(fine).Orientation)
	assert.Equal(t, geometry.AToB, fine.Compose(NewTransform(geometry.Identity(), geometry.OrientationUnset)).Orientation)
}

func TestCalculateAlignmentError(t *testing.T) {
	src := []geometry.Point2D{{X: 0, Y: 0}, {X: 1, Y: 0}}
	dst := []geometry.Point2D{{X: 3, Y: 4}, {X: 1, Y: 0}}
	assert.Equal(t, 2.5, CalculateAlignmentError(src, dst, geometry.Identity()))
	assert.Equal(t, -1.0, CalculateAlignmentError(nil, nil, geometry.Identity()))
}
