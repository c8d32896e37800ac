// Package session drives one correlation workflow: landmark edits trigger
// re-estimation, and a successful estimate is resampled and overlaid.
//
// A Session is owned by a single caller and is not safe for concurrent use.
package session

import (
	"errors"
	"fmt"
	"image/color"
	"log/slog"
	"math"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"piescope/internal/alignment"
	"piescope/internal/config"
	"piescope/internal/fault"
	"piescope/internal/image"
	"piescope/internal/overlay"
	"piescope/internal/points"
	"piescope/internal/report"
	"piescope/internal/resample"
	"piescope/internal/version"
	"piescope/pkg/colorutil"
	"piescope/pkg/geometry"
)

// State is the registration state derived from the point set and the last
// estimation attempt.
type State int

const (
	StateEmpty           State = iota // no points
	StateUnderdetermined              // 1-2 points
	StateReady                        // last estimate succeeded
	StateFailed                       // last estimate failed
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateUnderdetermined:
		return "underdetermined"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result is the output of a successful registration.
type Result struct {
	Estimate *alignment.Estimate
	Points   points.Set
	Warped   *image.Image // source resampled into the reference frame
	Overlay  *image.Image // reference blended with Warped

	// Coverage is the fraction of the reference frame covered by the
	// warped source.
	Coverage float64

	// Spread is the area of the landmarks' convex hull in the reference
	// frame as a fraction of the frame. Small values mean the transform is
	// extrapolated over most of the image.
	Spread float64
}

// Transform is the estimated source-to-reference transform.
func (r *Result) Transform() alignment.Transform {
	return r.Estimate.Transform
}

// Session holds the images, points and latest result of one correlation.
type Session struct {
	id        string
	source    *image.Image
	reference *image.Image

	cfg          config.Config
	store        *points.Store
	estimator    *alignment.Estimator
	warpOpts     resample.Options
	mode         overlay.Mode
	tint         *color.RGBA
	transparency float64

	state   State
	result  *Result
	lastErr error

	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the logger; the session id is attached to every record.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithClock overrides the time source used for report timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// New creates an empty session registering source (image A) onto reference
// (image B).
func New(source, reference *image.Image, cfg config.Config, opts ...Option) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	est, err := cfg.Estimator()
	if err != nil {
		return nil, err
	}
	if err := reference.Validate(); err != nil {
		return nil, fmt.Errorf("reference image: %w", err)
	}
	warpOpts, err := cfg.WarpOptions(reference.Width, reference.Height)
	if err != nil {
		return nil, err
	}
	mode, err := cfg.BlendMode()
	if err != nil {
		return nil, err
	}

	s := &Session{
		id:           uuid.NewString(),
		reference:    reference,
		cfg:          cfg,
		store:        points.NewStore(),
		estimator:    est,
		warpOpts:     warpOpts,
		mode:         mode,
		transparency: cfg.Overlay.Transparency,
		logger:       slog.Default(),
		now:          time.Now,
	}
	if cfg.Overlay.Tint != "" {
		c, err := colorutil.Parse(cfg.Overlay.Tint)
		if err != nil {
			return nil, err
		}
		s.tint = &c
	}
	for _, o := range opts {
		o(s)
	}
	s.logger = s.logger.With("session", s.id)

	if err := s.checkSource(source); err != nil {
		return nil, err
	}
	s.source = source
	return s, nil
}

// checkSource rejects a source that could never be warped or blended with
// the reference.
func (s *Session) checkSource(src *image.Image) error {
	if err := src.Validate(); err != nil {
		return fmt.Errorf("source image: %w", err)
	}
	if !s.warpOpts.Multichannel && src.Dims() > 2 {
		return &fault.Error{
			Kind:   fault.KindDimensionMismatch,
			Op:     "session",
			Detail: fmt.Sprintf("source has %d channels but multichannel resampling is disabled", src.Channels),
		}
	}
	ch := src.Channels
	if s.tint != nil && src.Planar() {
		ch = 3
	}
	if ch != s.reference.Channels && ch != 1 && s.reference.Channels != 1 {
		return &fault.Error{
			Kind:   fault.KindShapeMismatch,
			Op:     "session",
			Detail: fmt.Sprintf("source has %d channels, reference %d", ch, s.reference.Channels),
		}
	}
	return nil
}

// ID returns the session identifier used in logs.
func (s *Session) ID() string { return s.id }

// State returns the current registration state.
func (s *Session) State() State { return s.state }

// Points returns the landmark points in insertion order.
func (s *Session) Points() points.Set { return s.store.List() }

// CurrentResult returns the latest successful result, or nil when the
// session is not Ready.
func (s *Session) CurrentResult() *Result { return s.result }

// LastError returns why the session is not Ready: InsufficientPoints when
// underdetermined, the estimation failure when Failed, nil otherwise.
func (s *Session) LastError() error { return s.lastErr }

// Source returns image A.
func (s *Session) Source() *image.Image { return s.source }

// Reference returns image B.
func (s *Session) Reference() *image.Image { return s.reference }

// Config returns the settings the session was created with.
func (s *Session) Config() config.Config { return s.cfg }

// AddPointPair adds a landmark at (ax, ay) in the source and (bx, by) in the
// reference and re-estimates. Invalid coordinates leave the session unchanged.
// With fewer than three points the result is nil, the state Underdetermined
// and the error matches fault.ErrInsufficientPoints.
func (s *Session) AddPointPair(ax, ay, bx, by float64) (int, *Result, error) {
	id, err := s.store.Add(ax, ay, bx, by)
	if err != nil {
		s.logger.Warn("rejected point", "error", err)
		return 0, s.result, err
	}
	s.logger.Debug("added point", "id", id, "points", s.store.Count())
	res, err := s.refresh()
	return id, res, err
}

// RemovePoint removes the landmark with the given id and re-estimates. An
// unknown id is a no-op that returns false and the unchanged result, however
// often it is repeated.
func (s *Session) RemovePoint(id int) (bool, *Result, error) {
	if !s.store.Remove(id) {
		s.logger.Debug("remove of unknown point ignored", "id", id)
		return false, s.result, nil
	}
	s.logger.Debug("removed point", "id", id, "points", s.store.Count())
	res, err := s.refresh()
	return true, res, err
}

// LoadPoints replaces all landmarks, keeping their ids, and re-estimates once.
func (s *Session) LoadPoints(ps points.Set) (*Result, error) {
	if err := s.store.Load(ps); err != nil {
		return s.result, err
	}
	return s.refresh()
}

// Reset clears all points and results.
func (s *Session) Reset() {
	s.store.Reset()
	s.state = StateEmpty
	s.result = nil
	s.lastErr = nil
}

// SetSource replaces image A, e.g. with a fresh acquisition, and re-runs the
// pipeline against the existing points.
func (s *Session) SetSource(src *image.Image) (*Result, error) {
	if err := s.checkSource(src); err != nil {
		return s.result, err
	}
	s.source = src
	return s.refresh()
}

// SetTransparency changes the overlay weight of the warped source and
// recomposes the current result without re-estimating.
// The weight is kept only when it is valid and the overlay recomposes.
func (s *Session) SetTransparency(t float64) (*Result, error) {
	if math.IsNaN(t) || t < 0 || t > 1 {
		return s.result, fmt.Errorf("session: transparency %v outside [0, 1]", t)
	}
	if s.result == nil {
		s.transparency = t
		return nil, nil
	}
	ov, err := s.composeWith(s.result.Warped, t)
	if err != nil {
		return s.result, err
	}
	s.transparency = t
	res := *s.result
	res.Overlay = ov
	s.result = &res
	return s.result, nil
}

// refresh re-estimates from the current points and updates the state.
func (s *Session) refresh() (*Result, error) {
	ps := s.store.List()
	if len(ps) == 0 {
		s.state = StateEmpty
		s.result = nil
		s.lastErr = nil
		return nil, nil
	}

	est, err := s.estimator.Estimate(ps)
	if errors.Is(err, fault.ErrInsufficientPoints) {
		s.state = StateUnderdetermined
		s.result = nil
		s.lastErr = err
		return nil, err
	}
	if err != nil {
		return nil, s.fail(err, len(ps))
	}

	warped, err := resample.Warp(s.source, est.Transform, s.warpOpts)
	if err != nil {
		return nil, s.fail(err, len(ps))
	}
	ov, err := s.compose(warped)
	if err != nil {
		return nil, s.fail(err, len(ps))
	}

	frame := geometry.RectPolygon(float64(s.reference.Width), float64(s.reference.Height))
	footprint := geometry.RectPolygon(float64(s.source.Width), float64(s.source.Height)).
		Transform(est.Transform.Matrix)

	s.state = StateReady
	s.lastErr = nil
	s.result = &Result{
		Estimate: est,
		Points:   ps,
		Warped:   warped,
		Overlay:  ov,
		Coverage: footprint.ClipConvex(frame).Area() / frame.Area(),
		Spread:   geometry.ConvexHull(ps.Targets()).Area() / frame.Area(),
	}
	s.logger.Info("registration updated",
		"points", len(ps),
		"rms_error", est.RMSError,
		"max_error", est.MaxError,
		"condition", est.Condition,
		"coverage", s.result.Coverage,
		"spread", s.result.Spread,
	)
	return s.result, nil
}

func (s *Session) fail(err error, n int) error {
	s.state = StateFailed
	s.result = nil
	s.lastErr = err
	s.logger.Warn("registration failed", "points", n, "kind", fault.KindOf(err), "error", err)
	return err
}

// compose blends the reference with the warped source.
func (s *Session) compose(warped *image.Image) (*image.Image, error) {
	return s.composeWith(warped, s.transparency)
}

func (s *Session) composeWith(warped *image.Image, t float64) (*image.Image, error) {
	layer := warped
	if s.tint != nil && warped.Planar() {
		c, err := overlay.Colorize(warped, *s.tint)
		if err != nil {
			return nil, err
		}
		layer = c
	}
	return overlay.BlendMode(s.reference, layer, t, s.mode)
}

// ExportReport writes the report for the current result.
func (s *Session) ExportReport(path string) (string, error) {
	if s.result == nil {
		return "", s.notReady("export report")
	}
	return s.ExportReportFor(path, s.result.Transform(), s.result.Points)
}

// ExportReportFor writes a report for an explicit transform and point set.
// The file is renamed with a "(N)" suffix rather than overwriting.
func (s *Session) ExportReportFor(path string, t alignment.Transform, ps points.Set) (string, error) {
	r := report.Report{
		Title:   s.cfg.Output.ReportTitle,
		Version: version.Version,
		Time:    s.now(),
		Matrix:  t.Matrix,
		Points:  ps,
	}
	written, err := report.Write(path, r)
	if err != nil {
		s.logger.Error("report export failed", "path", path, "error", err)
		return "", err
	}
	s.logger.Info("report exported", "path", written, "points", len(ps))
	return written, nil
}

// Saved lists the files written by SaveResult.
type Saved struct {
	Warped    string
	Overlay   string
	Annotated string // empty unless annotation is enabled
	Report    string
}

// SaveResult writes the warped source, the overlay and the report into dir
// (the configured output directory when empty). Existing files are never
// overwritten.
func (s *Session) SaveResult(dir, base string) (Saved, error) {
	if s.result == nil {
		return Saved{}, s.notReady("save result")
	}
	if dir == "" {
		dir = s.cfg.Output.Dir
	}
	if base == "" {
		base = "correlation"
	}

	var out Saved
	var err error
	if out.Warped, err = image.SaveTIFF(filepath.Join(dir, base+"_aligned.tif"), s.result.Warped); err != nil {
		return out, err
	}
	if out.Overlay, err = image.SaveTIFF(filepath.Join(dir, base+"_overlay.tif"), s.result.Overlay); err != nil {
		return out, err
	}
	if s.cfg.Output.Annotate {
		marked, err := overlay.Annotate(s.result.Overlay, s.markers(), overlay.DefaultMarkerOptions())
		if err != nil {
			return out, err
		}
		if out.Annotated, err = image.SaveGoTIFF(filepath.Join(dir, base+"_landmarks.tif"), marked); err != nil {
			return out, err
		}
	}
	if out.Report, err = s.ExportReport(filepath.Join(dir, base+"_report.txt")); err != nil {
		return out, err
	}
	s.logger.Info("result saved", "aligned", out.Warped, "overlay", out.Overlay, "report", out.Report)
	return out, nil
}

// markers places every landmark at its reference image location.
func (s *Session) markers() []overlay.Marker {
	ms := make([]overlay.Marker, len(s.result.Points))
	for i, p := range s.result.Points {
		ms[i] = overlay.Marker{ID: p.ID, At: p.B()}
	}
	return ms
}

func (s *Session) notReady(op string) error {
	if s.lastErr != nil {
		return &fault.Error{Kind: fault.KindOf(s.lastErr), Op: op, Detail: "no registration result", Err: s.lastErr}
	}
	n := s.store.Count()
	return &fault.Error{
		Kind:   fault.KindInsufficientPoints,
		Op:     op,
		Detail: fmt.Sprintf("need at least %d points, got %d", alignment.MinPoints, n),
		Points: n,
	}
}
