// Package report writes and reads the plain-text transformation report.
//
// Layout, by 0-based line index:
//
//	0  title and RFC 3339 timestamp
//	1  PIEScope GUI version <version>
//	2  blank
//	3  TRANSFORMATION MATRIX
//	4-6 homogeneous matrix rows
//	7  blank
//	8  point set, one JSON line
package report

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"piescope/internal/fault"
	"piescope/internal/image"
	"piescope/internal/points"
	"piescope/internal/version"
	"piescope/pkg/geometry"
)

const (
	VersionPrefix = "PIEScope GUI version "
	MatrixHeader  = "TRANSFORMATION MATRIX"
	DefaultTitle  = "PIEScope correlation report"
)

var singleLine = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ")

// Report is the content of one report file.
type Report struct {
	Title   string
	Version string
	Time    time.Time
	Matrix  geometry.AffineTransform
	Points  points.Set
}

// Lines renders the report one line per element.
func (r Report) Lines() []string {
	title := singleLine.Replace(r.Title)
	if title == "" {
		title = DefaultTitle
	}
	ver := r.Version
	if ver == "" {
		ver = version.Version
	}
	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	lines := []string{
		title + " " + ts.Format(time.RFC3339),
		VersionPrefix + ver,
		"",
		MatrixHeader,
	}
	for _, row := range r.Matrix.Homogeneous() {
		lines = append(lines, formatRow(row))
	}
	return append(lines, "", r.Points.String())
}

func formatRow(row [3]float64) string {
	parts := make([]string, len(row))
	for i, v := range row {
		parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// WriteTo writes the rendered report to w.
func (r Report) WriteTo(w io.Writer) (int64, error) {
	var total int64
	for _, line := range r.Lines() {
		n, err := io.WriteString(w, line+"\n")
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// Write saves the report at path, or at the first free "(N)" variant when
// path already exists. It returns the path actually written.
func Write(path string, r Report) (string, error) {
	f, written, err := image.CreateUnique(path)
	if err != nil {
		return "", err
	}
	bw := bufio.NewWriter(f)
	if _, err := r.WriteTo(bw); err != nil {
		f.Close()
		os.Remove(written)
		return "", fault.IO("write report", err)
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		os.Remove(written)
		return "", fault.IO("write report", err)
	}
	if err := f.Close(); err != nil {
		return "", fault.IO("close report", err)
	}
	return written, nil
}

// Parse reads a report produced by Write.
func Parse(rd io.Reader) (Report, error) {
	var lines []string
	sc := bufio.NewScanner(rd)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return Report{}, fault.IO("read report", err)
	}
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	if len(lines) < 8 {
		return Report{}, fmt.Errorf("report: %d lines, want at least 8", len(lines))
	}

	var r Report
	r.Title = lines[0]
	if i := strings.LastIndexByte(lines[0], ' '); i >= 0 {
		if ts, err := time.Parse(time.RFC3339, lines[0][i+1:]); err == nil {
			r.Title = lines[0][:i]
			r.Time = ts
		}
	}

	if !strings.HasPrefix(lines[1], VersionPrefix) {
		return Report{}, fmt.Errorf("report: line 1 %q: missing version header", lines[1])
	}
	r.Version = strings.TrimPrefix(lines[1], VersionPrefix)

	if lines[3] != MatrixHeader {
		return Report{}, fmt.Errorf("report: line 3 %q: want %q", lines[3], MatrixHeader)
	}
	var h [3][3]float64
	for i := 0; i < 3; i++ {
		row, err := parseRow(lines[4+i])
		if err != nil {
			return Report{}, fmt.Errorf("report: line %d: %w", 4+i, err)
		}
		h[i] = row
	}
	m, err := geometry.FromHomogeneous(h)
	if err != nil {
		return Report{}, fmt.Errorf("report: %w", err)
	}
	r.Matrix = m

	ps, err := points.ParseSet(lines[len(lines)-1])
	if err != nil {
		return Report{}, fmt.Errorf("report: point set: %w", err)
	}
	r.Points = ps
	return r, nil
}

func parseRow(s string) ([3]float64, error) {
	var row [3]float64
	fields := strings.Fields(strings.Trim(strings.TrimSpace(s), "[]"))
	if len(fields) != 3 {
		return row, fmt.Errorf("matrix row %q: want 3 values", s)
	}
	for i, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSuffix(f, ","), 64)
		if err != nil {
			return row, fmt.Errorf("matrix row %q: %w", s, err)
		}
		row[i] = v
	}
	return row, nil
}

// ReadFile parses the report at path.
func ReadFile(path string) (Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return Report{}, fault.IO("open report", err)
	}
	defer f.Close()
	return Parse(f)
}
