package baseline

import (
	"bytes"
	"fmt"
	"image/color"
	"io"
	"os"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// SavePNG renders the baseline-time scatter with stem labels to path.
func (t Table) SavePNG(path string) error {
	b, err := t.PlotBounds()
	if err != nil {
		return err
	}

	xys := make(plotter.XYs, len(t))
	labels := make([]string, len(t))
	for i, r := range t {
		xys[i] = plotter.XY{X: r.Year(), Y: r.BPerp}
		labels[i] = r.Stem
	}

	p := plot.New()
	p.Title.Text = "Baseline-time plot"
	p.X.Label.Text = "year"
	p.Y.Label.Text = "baseline (m)"
	p.X.Min, p.X.Max = b.XMin, b.XMax
	p.Y.Min, p.Y.Max = b.YMin, b.YMax
	p.Add(plotter.NewGrid())

	sc, err := plotter.NewScatter(xys)
	if err != nil {
		return err
	}
	sc.GlyphStyle.Color = color.Black
	sc.GlyphStyle.Radius = vg.Points(2.5)
	p.Add(sc)

	lb, err := plotter.NewLabels(plotter.XYLabels{XYs: xys, Labels: labels})
	if err != nil {
		return err
	}
	for i := range lb.TextStyle {
		lb.TextStyle[i].Font.Size = vg.Points(8)
	}
	lb.Offset = vg.Point{X: vg.Points(4), Y: vg.Points(4)}
	p.Add(lb)

	if err := p.Save(8.8*vg.Inch, 6.8*vg.Inch, path); err != nil {
		return fmt.Errorf("save baseline plot: %w", err)
	}
	return nil
}

// RenderHTML writes an interactive scatter of the table.
func (t Table) RenderHTML(w io.Writer) error {
	b, err := t.PlotBounds()
	if err != nil {
		return err
	}

	first, last := t.Span()
	subtitle := fmt.Sprintf("acquisitions=%d, %s to %s", len(t), first.Format("2006-01-02"), last.Format("2006-01-02"))

	data := make([]opts.ScatterData, 0, len(t))
	for _, r := range t {
		data = append(data, opts.ScatterData{Name: r.Stem, Value: []interface{}{r.Year(), r.BPerp}})
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Baseline-time plot", Width: "900px", Height: "700px"}),
		charts.WithTitleOpts(opts.Title{Title: "Baseline-time plot", Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: b.XMin, Max: b.XMax, Name: "year", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: b.YMin, Max: b.YMax, Name: "baseline (m)", NameLocation: "middle", NameGap: 40}),
	)
	scatter.AddSeries("acquisitions", data,
		charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 8}),
		charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "right", Formatter: "{b}"}),
	)

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		return fmt.Errorf("render baseline chart: %w", err)
	}
	_, err = w.Write(buf.Bytes())
	return err
}

// SaveHTML writes RenderHTML output to path.
func (t Table) SaveHTML(path string) error {
	var buf bytes.Buffer
	if err := t.RenderHTML(&buf); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}
