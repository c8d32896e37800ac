package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"piescope/internal/config"
	"piescope/internal/fault"
	"piescope/internal/image"
	"piescope/internal/points"
	"piescope/internal/project"
	"piescope/internal/session"
)

var (
	registerSource       string
	registerReference    string
	registerPoints       string
	registerProject      string
	registerOut          string
	registerName         string
	registerTransparency float64
	registerInterp       string

	registerCmd = &cobra.Command{
		Use:   "register",
		Short: "Estimate the transform from landmarks and save the aligned overlay",
		Long: `Register estimates the affine transform mapping the source image onto the
reference image from paired landmarks, resamples the source into the reference
frame, blends the two and writes the aligned image, the overlay and a
transformation report. Existing files are never overwritten.

Either --project, or --source, --reference and --points must be given.`,
		Args: cobra.NoArgs,
		RunE: runRegister,
	}
)

func init() {
	f := registerCmd.Flags()
	f.StringVarP(&registerSource, "source", "s", "", "image A, resampled into the reference frame")
	f.StringVarP(&registerReference, "reference", "r", "", "image B, the reference frame")
	f.StringVarP(&registerPoints, "points", "p", "", "YAML or JSON list of point pairs")
	f.StringVar(&registerProject, "project", "", "correlation project ("+project.Extension+")")
	f.StringVarP(&registerOut, "out", "o", "", "output directory (default from config)")
	f.StringVarP(&registerName, "name", "n", "correlation", "base name of the output files")
	f.Float64VarP(&registerTransparency, "transparency", "t", 0, "overlay weight of the aligned source, 0..1")
	f.StringVar(&registerInterp, "interpolation", "", "bilinear, nearest or opencv")
}

func runRegister(cmd *cobra.Command, args []string) error {
	var (
		s    *session.Session
		proj *project.File
		c    = cfg
		err  error
	)
	if registerProject != "" {
		if proj, err = project.Load(registerProject); err != nil {
			return err
		}
		c = proj.Apply(c)
	}
	if c, err = registerConfig(cmd, c); err != nil {
		return err
	}
	if proj != nil {
		s, err = proj.Restore(registerProject, c)
	} else {
		s, err = openSession(c, registerSource, registerReference, registerPoints)
	}
	if s == nil {
		return err
	}
	if err != nil {
		return fmt.Errorf("registration failed (state %s): %w", s.State(), err)
	}
	if s.State() != session.StateReady {
		return fmt.Errorf("registration not possible (state %s): %w", s.State(), s.LastError())
	}

	saved, err := s.SaveResult(registerOut, registerName)
	if err != nil {
		return err
	}
	if proj != nil {
		proj.Capture(s)
		if err := proj.Save(registerProject); err != nil {
			return err
		}
	}

	printResult(cmd.OutOrStdout(), s.CurrentResult())
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "aligned:   %s\noverlay:   %s\n", saved.Warped, saved.Overlay)
	if saved.Annotated != "" {
		fmt.Fprintf(out, "landmarks: %s\n", saved.Annotated)
	}
	fmt.Fprintf(out, "report:    %s\n", saved.Report)
	return nil
}

// registerConfig applies the command line overrides on top of c, which
// already carries the config file and any project settings.
func registerConfig(cmd *cobra.Command, c config.Config) (config.Config, error) {
	if cmd.Flags().Changed("transparency") {
		c.Overlay.Transparency = registerTransparency
	}
	if registerInterp != "" {
		c.Resample.Interpolation = registerInterp
	}
	return c, c.Validate()
}

// openSession loads both images and the point file. A non-nil session is
// returned whenever the images loaded, even if the points did not register.
func openSession(c config.Config, sourcePath, referencePath, pointsPath string) (*session.Session, error) {
	if sourcePath == "" || referencePath == "" || pointsPath == "" {
		return nil, errors.New("--source, --reference and --points are required without --project")
	}
	src, err := image.Load(sourcePath, c.Adjust)
	if err != nil {
		return nil, err
	}
	ref, err := image.Load(referencePath, c.Adjust)
	if err != nil {
		return nil, err
	}
	slog.Debug("images loaded",
		"source", src.Path, "source_modality", src.Modality,
		"reference", ref.Path, "reference_modality", ref.Modality)

	ps, err := points.LoadFile(pointsPath)
	if err != nil {
		return nil, err
	}
	if err := checkBounds(ps, src, ref); err != nil {
		return nil, err
	}
	s, err := session.New(src.Image, ref.Image, c)
	if err != nil {
		return nil, err
	}
	_, err = s.LoadPoints(ps)
	return s, err
}

// checkBounds rejects landmarks picked outside the image they belong to.
func checkBounds(ps points.Set, src, ref *image.Layer) error {
	for _, p := range ps {
		if !src.ContainsPixel(p.AX, p.AY) {
			return fault.New(fault.KindInvalidCoordinate, "check landmarks",
				"point %d at (%g, %g) lies outside source %s (%dx%d)", p.ID, p.AX, p.AY, src.Path, src.Width(), src.Height())
		}
		if !ref.ContainsPixel(p.BX, p.BY) {
			return fault.New(fault.KindInvalidCoordinate, "check landmarks",
				"point %d at (%g, %g) lies outside reference %s (%dx%d)", p.ID, p.BX, p.BY, ref.Path, ref.Width(), ref.Height())
		}
	}
	return nil
}

func printResult(w io.Writer, res *session.Result) {
	est := res.Estimate
	fmt.Fprintf(w, "model: %s, points: %d, rms error: %.4g px, max error: %.4g px\n",
		est.Model, len(res.Points), est.RMSError, est.MaxError)
	for _, row := range res.Transform().Homogeneous() {
		fmt.Fprintf(w, "  %12.6f %12.6f %12.6f\n", row[0], row[1], row[2])
	}
	fmt.Fprintf(w, "coverage: %.1f%% of reference, landmark spread: %.1f%%\n", 100*res.Coverage, 100*res.Spread)
}
