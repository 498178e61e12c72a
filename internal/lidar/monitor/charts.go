package monitor

import (
	"fmt"
	"image/color"
	"io"
	"math"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/banshee-data/rangescan/internal/lidar/publish"
)

// ScanXY converts a scan to cartesian points in metres, dropping ranges
// outside [RangeMin, RangeMax]. Without per-slot angles the samples are
// spread evenly from AngleMin.
func ScanXY(scan *publish.LaserScan) plotter.XYs {
	pts := make(plotter.XYs, 0, len(scan.Ranges))
	for i, r := range scan.Ranges {
		if r < scan.RangeMin || r > scan.RangeMax || r == 0 {
			continue
		}
		theta := scan.AngleMin + float64(i)*scan.AngleIncrement
		if len(scan.Angles) == len(scan.Ranges) {
			theta = scan.Angles[i]
		}
		pts = append(pts, plotter.XY{X: r * math.Cos(theta), Y: r * math.Sin(theta)})
	}
	return pts
}

func extent(pts plotter.XYs, fallback float64) float64 {
	maxAbs := 0.0
	for _, p := range pts {
		maxAbs = math.Max(maxAbs, math.Max(math.Abs(p.X), math.Abs(p.Y)))
	}
	if maxAbs == 0 {
		return fallback
	}
	// Add a small padding so points at the edges are visible
	return maxAbs * 1.05
}

// RenderPolarHTML writes an interactive scatter of the scan as seen from
// above, sensor at the origin.
func RenderPolarHTML(w io.Writer, scan *publish.LaserScan) error {
	pts := ScanXY(scan)
	pad := extent(pts, scan.RangeMax)

	data := make([]opts.ScatterData, 0, len(pts))
	for i, p := range pts {
		data = append(data, opts.ScatterData{Value: []interface{}{p.X, p.Y, math.Hypot(p.X, p.Y), i}})
	}

	// Force a square plot by using equal width/height and symmetric axis ranges
	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "rangescan scan (polar->XY)", Theme: "dark", Width: "900px", Height: "900px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Latest scan",
			Subtitle: fmt.Sprintf("seq=%d frame=%s points=%d/%d", scan.Seq, scan.FrameID, len(pts), len(scan.Ranges)),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: -pad, Max: pad, Name: "X (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: -pad, Max: pad, Name: "Y (m)", NameLocation: "middle", NameGap: 30}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        float32(scan.RangeMin),
			Max:        float32(scan.RangeMax),
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: []string{"#440154", "#3e4989", "#26828e", "#35b779", "#b5de2b", "#fde725"}},
		}),
	)
	scatter.AddSeries("ranges", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 4}))
	return scatter.Render(w)
}

// RenderPolarPNG writes a static PNG of the scan, size x size.
func RenderPolarPNG(w io.Writer, scan *publish.LaserScan, size vg.Length) error {
	pts := ScanXY(scan)
	pad := extent(pts, scan.RangeMax)

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Scan %d (%s)", scan.Seq, scan.Stamp.UTC().Format("2006-01-02 15:04:05.000"))
	p.X.Label.Text = "X (m)"
	p.Y.Label.Text = "Y (m)"
	p.X.Min, p.X.Max = -pad, pad
	p.Y.Min, p.Y.Max = -pad, pad
	p.Add(plotter.NewGrid())

	if len(pts) > 0 {
		sc, err := plotter.NewScatter(pts)
		if err != nil {
			return fmt.Errorf("scatter: %w", err)
		}
		sc.GlyphStyle.Shape = draw.CircleGlyph{}
		sc.GlyphStyle.Radius = vg.Points(1.5)
		sc.GlyphStyle.Color = color.RGBA{R: 31, G: 158, B: 137, A: 255}
		p.Add(sc)
	}

	origin, err := plotter.NewScatter(plotter.XYs{{X: 0, Y: 0}})
	if err != nil {
		return err
	}
	origin.GlyphStyle.Shape = draw.CrossGlyph{}
	origin.GlyphStyle.Radius = vg.Points(4)
	p.Add(origin)

	wt, err := p.WriterTo(size, size, "png")
	if err != nil {
		return fmt.Errorf("png writer: %w", err)
	}
	_, err = wt.WriteTo(w)
	return err
}
