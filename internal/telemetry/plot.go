package telemetry

import (
	"errors"
	"fmt"
	"image/color"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

var (
	actualColor   = color.RGBA{R: 0x2E, G: 0x8B, B: 0x57, A: 0xFF}
	setpointColor = color.RGBA{R: 0xFA, G: 0x80, B: 0x72, A: 0xFF}
)

func addLine(p *plot.Plot, name string, pts plotter.XYs, c color.Color) error {
	line, err := plotter.NewLine(pts)
	if err != nil {
		return err
	}
	line.LineStyle.Width = vg.Points(2)
	line.LineStyle.Color = c
	p.Add(line)
	p.Legend.Add(name, line)
	return nil
}

func save(p *plot.Plot, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("cannot create directory: %w", err)
	}
	return p.Save(8*vg.Inch, 5*vg.Inch, path)
}

// SaveTrace plots the tracked value and its setpoint against time.
// The format follows the file extension (.png, .svg, .pdf).
func SaveTrace(samples []Sample, title, path string) error {
	if len(samples) == 0 {
		return errors.New("telemetry: no samples to plot")
	}
	actual := make(plotter.XYs, len(samples))
	setpoint := make(plotter.XYs, len(samples))
	for i, s := range samples {
		a, sp := s.Tracked()
		t := s.Elapsed.Seconds()
		actual[i] = plotter.XY{X: t, Y: a}
		setpoint[i] = plotter.XY{X: t, Y: sp}
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "time (s)"
	p.Y.Label.Text = "value"
	p.Add(plotter.NewGrid())
	if err := addLine(p, "Actual", actual, actualColor); err != nil {
		return err
	}
	if err := addLine(p, "SetPoint", setpoint, setpointColor); err != nil {
		return err
	}
	return save(p, path)
}

// SavePath plots the driven XY trajectory.
func SavePath(samples []Sample, title, path string) error {
	if len(samples) == 0 {
		return errors.New("telemetry: no samples to plot")
	}
	pts := make(plotter.XYs, len(samples))
	for i, s := range samples {
		pts[i] = plotter.XY{X: s.Pose.X, Y: s.Pose.Y}
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "x (in)"
	p.Y.Label.Text = "y (in)"
	p.Add(plotter.NewGrid())
	if err := addLine(p, "Robot", pts, actualColor); err != nil {
		return err
	}
	return save(p, path)
}
