package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"piescope/internal/config"
	"piescope/internal/fault"
	"piescope/internal/image"
	"piescope/internal/points"
	"piescope/internal/project"
	"piescope/internal/report"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	// flag values outlive a single Execute
	registerCmd.Flags().VisitAll(func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	})
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func fixture(t *testing.T) (dir, cfgPath string) {
	t.Helper()
	dir = t.TempDir()
	cfgPath = filepath.Join(dir, "config.yaml")
	require.NoError(t, config.Default().Save(cfgPath))

	img := image.New(24, 24, 1, image.Depth16)
	for y := 0; y < 24; y++ {
		for x := 0; x < 24; x++ {
			img.Set(x, y, 0, float64(x*y))
		}
	}
	_, err := image.SaveTIFF(filepath.Join(dir, "fluor.tif"), img)
	require.NoError(t, err)
	_, err = image.SaveTIFF(filepath.Join(dir, "ion.tif"), image.NewGray(24, 24, image.Depth16))
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "points.yaml"), []byte(`
- {a_x: 0, a_y: 0, b_x: 5, b_y: 5}
- {a_x: 10, a_y: 0, b_x: 15, b_y: 5}
- {a_x: 0, a_y: 10, b_x: 5, b_y: 15}
`), 0o644))
	return dir, cfgPath
}

func TestRegisterAndReport(t *testing.T) {
	dir, cfgPath := fixture(t)
	outDir := filepath.Join(dir, "out")

	out, err := run(t, "register", "--config", cfgPath,
		"-s", filepath.Join(dir, "fluor.tif"),
		"-r", filepath.Join(dir, "ion.tif"),
		"-p", filepath.Join(dir, "points.yaml"),
		"-o", outDir, "-n", "run")
	require.NoError(t, err, out)
	assert.Contains(t, out, filepath.Join(outDir, "run_overlay.tif"))

	reportPath := filepath.Join(outDir, "run_report.txt")
	r, err := report.ReadFile(reportPath)
	require.NoError(t, err)
	assert.InDelta(t, 5, r.Matrix.TX, 1e-9)
	assert.InDelta(t, 5, r.Matrix.TY, 1e-9)
	assert.Len(t, r.Points, 3)

	out, err = run(t, "report", "--config", cfgPath, reportPath)
	require.NoError(t, err)
	assert.Contains(t, out, "points:   3")
	assert.True(t, strings.Contains(out, "#1  A(0.00, 0.00) -> B(5.00, 5.00)"))
}

func TestRegister_MissingInputs(t *testing.T) {
	_, cfgPath := fixture(t)
	_, err := run(t, "register", "--config", cfgPath, "-s", "a.tif")
	assert.Error(t, err)
}

func TestVersion(t *testing.T) {
	_, cfgPath := fixture(t)
	out, err := run(t, "version", "--config", cfgPath)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "piescope "))
}

func TestRegister_RejectsLandmarkOutsideImage(t *testing.T) {
	dir, cfgPath := fixture(t)
	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte(`
- {a_x: 0, a_y: 0, b_x: 5, b_y: 5}
- {a_x: 10, a_y: 0, b_x: 15, b_y: 5}
- {a_x: 0, a_y: 30, b_x: 5, b_y: 15}
`), 0o644))

	_, err := run(t, "register", "--config", cfgPath,
		"-s", filepath.Join(dir, "fluor.tif"),
		"-r", filepath.Join(dir, "ion.tif"),
		"-p", bad,
		"-o", filepath.Join(dir, "out"))
	assert.ErrorIs(t, err, fault.ErrInvalidCoordinate)
}

func TestRegister_FlagsOverrideProjectSettings(t *testing.T) {
	dir, cfgPath := fixture(t)
	projPath := filepath.Join(dir, "run"+project.Extension)

	ps, err := points.LoadFile(filepath.Join(dir, "points.yaml"))
	require.NoError(t, err)
	p := project.New("run", config.Default())
	quarter := 0.25
	p.Settings.Transparency = &quarter
	p.SetSourceImage(projPath, filepath.Join(dir, "fluor.tif"))
	p.SetReferenceImage(projPath, filepath.Join(dir, "ion.tif"))
	p.Points = ps
	require.NoError(t, p.Save(projPath))

	outDir := filepath.Join(dir, "out")
	out, err := run(t, "register", "--config", cfgPath, "--project", projPath,
		"-t", "1", "--interpolation", "nearest", "-o", outDir, "-n", "run")
	require.NoError(t, err, out)

	aligned, err := image.Load(filepath.Join(outDir, "run_aligned.tif"), image.Adjustments{})
	require.NoError(t, err)
	overlaid, err := image.Load(filepath.Join(outDir, "run_overlay.tif"), image.Adjustments{})
	require.NoError(t, err)
	assert.True(t, aligned.Image.Equal(overlaid.Image))

	saved, err := project.Load(projPath)
	require.NoError(t, err)
	assert.True(t, saved.Registered)
}
