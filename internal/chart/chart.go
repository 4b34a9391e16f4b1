// Package chart draws a resident's daily score history: realized score,
// the score predicted the day before, and the trust index.
package chart

import (
	"bytes"
	"fmt"
	"image/color"
	"io"
	"math"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/wellness.report/internal/db"
)

// Point is one day of the chart. Predicted is the score forecast for this
// day by the previous day's run, NaN when there was none.
type Point struct {
	Day       string
	Realized  float64
	Predicted float64
	Trust     float64
}

// FromScores lines stored daily scores up, oldest first.
func FromScores(scores []db.DailyScore) []Point {
	points := make([]Point, len(scores))
	for i, s := range scores {
		points[i] = Point{Day: s.Day, Realized: s.Score4Today, Predicted: math.NaN(), Trust: s.TrustIndex}
		if i > 0 {
			points[i].Predicted = scores[i-1].Score4Tomorrow
		}
	}
	return points
}

var (
	realizedColor  = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	predictedColor = color.RGBA{R: 255, G: 127, B: 14, A: 255}
	trustColor     = color.RGBA{R: 44, G: 160, B: 44, A: 255}
)

// newPlot builds the gonum plot for points.
func newPlot(title string, points []Point) (*plot.Plot, error) {
	if len(points) == 0 {
		return nil, fmt.Errorf("no scores to plot")
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Day"
	p.Y.Label.Text = "Score"
	p.Y.Min = 0
	p.Y.Max = 1

	labels := make([]string, len(points))
	realized := make(plotter.XYs, 0, len(points))
	predicted := make(plotter.XYs, 0, len(points))
	trust := make(plotter.XYs, 0, len(points))
	for i, pt := range points {
		x := float64(i)
		labels[i] = pt.Day
		realized = append(realized, plotter.XY{X: x, Y: pt.Realized})
		trust = append(trust, plotter.XY{X: x, Y: pt.Trust})
		if !math.IsNaN(pt.Predicted) {
			predicted = append(predicted, plotter.XY{X: x, Y: pt.Predicted})
		}
	}

	add := func(name string, xys plotter.XYs, c color.Color, dashed bool) error {
		if len(xys) == 0 {
			return nil
		}
		line, err := plotter.NewLine(xys)
		if err != nil {
			return fmt.Errorf("%s line: %w", name, err)
		}
		line.Color = c
		line.Width = vg.Points(1.5)
		if dashed {
			line.Dashes = []vg.Length{vg.Points(4), vg.Points(3)}
		}
		p.Add(line)
		p.Legend.Add(name, line)
		return nil
	}
	if err := add("realized", realized, realizedColor, false); err != nil {
		return nil, err
	}
	if err := add("predicted", predicted, predictedColor, true); err != nil {
		return nil, err
	}
	if err := add("trust index", trust, trustColor, false); err != nil {
		return nil, err
	}

	p.NominalX(labels...)
	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
	return p, nil
}

// RenderPNG saves the chart to path.
func RenderPNG(path, title string, points []Point) error {
	p, err := newPlot(title, points)
	if err != nil {
		return err
	}
	if err := p.Save(10*vg.Inch, 5*vg.Inch, path); err != nil {
		return fmt.Errorf("save score plot: %w", err)
	}
	return nil
}

// WritePNG writes the chart as PNG to w.
func WritePNG(w io.Writer, title string, points []Point) error {
	p, err := newPlot(title, points)
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(10*vg.Inch, 5*vg.Inch, "png")
	if err != nil {
		return err
	}
	_, err = wt.WriteTo(w)
	return err
}

// RenderHTML writes an interactive line chart to w.
func RenderHTML(w io.Writer, title string, points []Point) error {
	days := make([]string, len(points))
	realized := make([]opts.LineData, len(points))
	predicted := make([]opts.LineData, len(points))
	trust := make([]opts.LineData, len(points))
	for i, pt := range points {
		days[i] = pt.Day
		realized[i] = opts.LineData{Value: pt.Realized}
		trust[i] = opts.LineData{Value: pt.Trust}
		if math.IsNaN(pt.Predicted) {
			predicted[i] = opts.LineData{Value: "-"}
		} else {
			predicted[i] = opts.LineData{Value: pt.Predicted}
		}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "100%", Height: "480px"}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: fmt.Sprintf("%d days", len(points))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Score"}),
	)
	line.SetXAxis(days).
		AddSeries("realized", realized).
		AddSeries("predicted", predicted, charts.WithLineStyleOpts(opts.LineStyle{Type: "dashed"})).
		AddSeries("trust index", trust)

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		return fmt.Errorf("render score chart: %w", err)
	}
	_, err := w.Write(buf.Bytes())
	return err
}
