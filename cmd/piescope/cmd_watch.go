package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"piescope/internal/capture"
	"piescope/internal/image"
	"piescope/internal/points"
	"piescope/internal/session"
)

var (
	watchDir       string
	watchReference string
	watchPoints    string
	watchOut       string

	watchCmd = &cobra.Command{
		Use:   "watch",
		Short: "Register every new acquisition written into a directory",
		Long: `Watch waits for acquisitions to be written into --dir and registers each
completed frame onto the reference image with the given landmarks. Results are
saved under --out named after the capture.`,
		Args: cobra.NoArgs,
		RunE: runWatch,
	}
)

func init() {
	f := watchCmd.Flags()
	f.StringVarP(&watchDir, "dir", "d", "", "directory the acquisition software writes to")
	f.StringVarP(&watchReference, "reference", "r", "", "reference image")
	f.StringVarP(&watchPoints, "points", "p", "", "YAML or JSON list of point pairs")
	f.StringVarP(&watchOut, "out", "o", "", "output directory (default from config)")
	_ = watchCmd.MarkFlagRequired("dir")
	_ = watchCmd.MarkFlagRequired("reference")
	_ = watchCmd.MarkFlagRequired("points")
}

func runWatch(cmd *cobra.Command, args []string) error {
	ref, err := image.Load(watchReference, cfg.Adjust)
	if err != nil {
		return err
	}
	ps, err := points.LoadFile(watchPoints)
	if err != nil {
		return err
	}
	out := watchOut
	if out == "" {
		out = cfg.Output.Dir
	}
	if sameDir(out, watchDir) {
		return errors.New("--out must differ from --dir, results would be picked up as captures")
	}

	opts := capture.DefaultOptions()
	opts.QuietPeriod = cfg.Capture.QuietPeriod
	opts.Adjust = cfg.Adjust
	w, err := capture.NewWatcher(watchDir, opts)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() { errc <- w.Run(ctx) }()
	slog.Info("waiting for captures", "dir", watchDir, "reference", watchReference, "points", len(ps))

	var s *session.Session
	for c := range w.Captures() {
		if c.Err != nil {
			continue
		}
		if err := checkBounds(ps, c.Layer, ref); err != nil {
			slog.Error("landmarks do not fit capture", "path", c.Path, "error", err)
			continue
		}
		if s == nil {
			s, err = session.New(c.Layer.Image, ref.Image, cfg)
			if err != nil {
				slog.Error("capture does not match reference", "path", c.Path, "error", err)
				s = nil
				continue
			}
			if _, err := s.LoadPoints(ps); err != nil {
				stop()
				<-errc
				return fmt.Errorf("landmarks do not register: %w", err)
			}
		} else if _, err := s.SetSource(c.Layer.Image); err != nil {
			slog.Error("registration failed", "path", c.Path, "error", err)
			continue
		}

		base := strings.TrimSuffix(filepath.Base(c.Path), filepath.Ext(c.Path))
		saved, err := s.SaveResult(out, base)
		if err != nil {
			slog.Error("saving result failed", "path", c.Path, "error", err)
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s\n", c.Path, saved.Overlay)
	}
	return <-errc
}

func sameDir(a, b string) bool {
	aa, err1 := filepath.Abs(a)
	bb, err2 := filepath.Abs(b)
	return err1 == nil && err2 == nil && aa == bb
}
