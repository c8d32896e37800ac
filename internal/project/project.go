// Package project provides project file handling and persistence.
package project

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"piescope/internal/config"
	"piescope/internal/fault"
	"piescope/internal/image"
	"piescope/internal/points"
	"piescope/internal/session"
)

// Extension is the file extension of correlation projects.
const Extension = ".pcorr"

// File represents a saved correlation (.pcorr).
type File struct {
	Version     int       `json:"version"`
	Name        string    `json:"name"`
	Created     time.Time `json:"created"`
	Modified    time.Time `json:"modified"`
	Description string    `json:"description,omitempty"`

	// Image paths (relative to project file)
	SourceImagePath    string `json:"source_image,omitempty"`
	ReferenceImagePath string `json:"reference_image,omitempty"`

	Points points.Set `json:"points"`

	// Registration state at save time
	Registered bool           `json:"registered"`
	Matrix     *[3][3]float64 `json:"matrix,omitempty"`
	RMSError   float64        `json:"rms_error,omitempty"`

	// User settings
	Settings ProjectSettings `json:"settings,omitempty"`
}

// ProjectSettings holds the per-project overrides of the global config.
// Unset fields leave the config value alone.
type ProjectSettings struct {
	Model         string   `json:"model,omitempty"`
	Interpolation string   `json:"interpolation,omitempty"`
	Transparency  *float64 `json:"transparency,omitempty"`
	OverlayMode   string   `json:"overlay_mode,omitempty"`
	Tint          string   `json:"tint,omitempty"`
}

// New creates a new project file with settings taken from cfg.
func New(name string, cfg config.Config) *File {
	now := time.Now()
	transparency := cfg.Overlay.Transparency
	return &File{
		Version:  1,
		Name:     name,
		Created:  now,
		Modified: now,
		Points:   points.Set{},
		Settings: ProjectSettings{
			Model:         cfg.Estimation.Model,
			Interpolation: cfg.Resample.Interpolation,
			Transparency:  &transparency,
			OverlayMode:   cfg.Overlay.Mode,
			Tint:          cfg.Overlay.Tint,
		},
	}
}

// Load loads a project from a .pcorr file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fault.IO("load project", err)
	}

	var proj File
	if err := json.Unmarshal(data, &proj); err != nil {
		return nil, fmt.Errorf("parse project %s: %w", path, err)
	}

	return &proj, nil
}

// Save saves the project to a file.
func (p *File) Save(path string) error {
	p.Modified = time.Now()

	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fault.IO("save project", err)
	}
	return nil
}

func relativeTo(projectPath, imagePath string) string {
	rel, err := filepath.Rel(filepath.Dir(projectPath), imagePath)
	if err != nil {
		return imagePath
	}
	return rel
}

func resolve(projectPath, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(filepath.Dir(projectPath), p)
}

// SetSourceImage sets the source image path (relative to project).
func (p *File) SetSourceImage(projectPath, imagePath string) {
	p.SourceImagePath = relativeTo(projectPath, imagePath)
	p.Modified = time.Now()
}

// SetReferenceImage sets the reference image path (relative to project).
func (p *File) SetReferenceImage(projectPath, imagePath string) {
	p.ReferenceImagePath = relativeTo(projectPath, imagePath)
	p.Modified = time.Now()
}

// GetSourceImagePath returns the absolute path to the source image.
func (p *File) GetSourceImagePath(projectPath string) string {
	return resolve(projectPath, p.SourceImagePath)
}

// GetReferenceImagePath returns the absolute path to the reference image.
func (p *File) GetReferenceImagePath(projectPath string) string {
	return resolve(projectPath, p.ReferenceImagePath)
}

// GetReportPath returns the default report location next to the project.
func (p *File) GetReportPath(projectPath string) string {
	base := projectPath[:len(projectPath)-len(filepath.Ext(projectPath))]
	return base + "_report.txt"
}

// Capture records the session's points and registration state.
func (p *File) Capture(s *session.Session) {
	p.Points = s.Points()
	p.Registered = false
	p.Matrix = nil
	p.RMSError = 0
	if res := s.CurrentResult(); res != nil {
		m := res.Transform().Homogeneous()
		p.Registered = true
		p.Matrix = &m
		p.RMSError = res.Estimate.RMSError
	}
	p.Modified = time.Now()
}

// Apply overlays the project settings onto cfg.
func (p *File) Apply(cfg config.Config) config.Config {
	s := p.Settings
	if s.Model != "" {
		cfg.Estimation.Model = s.Model
	}
	if s.Interpolation != "" {
		cfg.Resample.Interpolation = s.Interpolation
	}
	if s.OverlayMode != "" {
		cfg.Overlay.Mode = s.OverlayMode
	}
	if s.Transparency != nil {
		cfg.Overlay.Transparency = *s.Transparency
	}
	if s.Tint != "" {
		cfg.Overlay.Tint = s.Tint
	}
	return cfg
}

// Restore loads both images and replays the saved points into a new session
// configured by cfg, which is used as given: merge the project settings with
// Apply first. When replaying the points fails the session is still returned
// together with the error.
func (p *File) Restore(projectPath string, cfg config.Config, opts ...session.Option) (*session.Session, error) {
	srcPath := p.GetSourceImagePath(projectPath)
	refPath := p.GetReferenceImagePath(projectPath)
	if srcPath == "" || refPath == "" {
		return nil, fmt.Errorf("restore %s: project has no source or reference image", projectPath)
	}
	src, err := image.Load(srcPath, cfg.Adjust)
	if err != nil {
		return nil, fmt.Errorf("restore source: %w", err)
	}
	ref, err := image.Load(refPath, cfg.Adjust)
	if err != nil {
		return nil, fmt.Errorf("restore reference: %w", err)
	}

	s, err := session.New(src.Image, ref.Image, cfg, opts...)
	if err != nil {
		return nil, err
	}
	if _, err := s.LoadPoints(p.Points); err != nil {
		return s, err
	}
	return s, nil
}
