// Package viz renders reconstructions for inspection: a top-down PNG via
// gonum/plot and an interactive HTML scatter via go-echarts. Both project
// onto the X/Z plane, which is the ground plane for cameras with Y down.
package viz

import (
	"errors"
	"fmt"
	"image/color"
	"io"
	"math/rand/v2"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/banshee-data/sfm/internal/sampling"
	"github.com/banshee-data/sfm/internal/sfm"
)

// MaxPoints caps the number of track points drawn per reconstruction.
const MaxPoints = 5000

var ErrNoReconstructions = errors.New("no reconstructions to render")

// cameraCentres returns the positions of the estimated views, by ascending id.
func cameraCentres(recon *sfm.Reconstruction) []r3.Vec {
	var out []r3.Vec
	for _, id := range recon.EstimatedViewIDs() {
		out = append(out, recon.View(id).Camera.Pose.Position)
	}
	return out
}

// trackPoints returns at most max estimated track points. The sample is
// seeded so repeated renders of the same reconstruction match.
func trackPoints(recon *sfm.Reconstruction, max int) []r3.Vec {
	s := sampling.NewReservoirSampler[r3.Vec](max, rand.New(rand.NewPCG(uint64(recon.NumTracks()), 1)))
	for _, id := range recon.EstimatedTrackIDs() {
		s.Add(recon.Track(id).Point)
	}
	return s.Samples()
}

func xz(pts []r3.Vec) plotter.XYs {
	xys := make(plotter.XYs, len(pts))
	for i, p := range pts {
		xys[i] = plotter.XY{X: p.X, Y: p.Z}
	}
	return xys
}

// SaveTopDownPlot writes a PNG of the estimated camera centres and points of
// recon to path. The format follows the file extension.
func SaveTopDownPlot(recon *sfm.Reconstruction, path string) error {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Reconstruction (%d views, %d tracks)",
		len(recon.EstimatedViewIDs()), len(recon.EstimatedTrackIDs()))
	p.X.Label.Text = "X"
	p.Y.Label.Text = "Z"
	p.Add(plotter.NewGrid())

	points, err := plotter.NewScatter(xz(trackPoints(recon, MaxPoints)))
	if err != nil {
		return fmt.Errorf("failed to create point scatter: %w", err)
	}
	points.GlyphStyle.Radius = vg.Points(1)
	points.GlyphStyle.Color = color.RGBA{R: 49, G: 104, B: 142, A: 255}

	cams, err := plotter.NewScatter(xz(cameraCentres(recon)))
	if err != nil {
		return fmt.Errorf("failed to create camera scatter: %w", err)
	}
	cams.GlyphStyle.Radius = vg.Points(4)
	cams.GlyphStyle.Shape = draw.TriangleGlyph{}
	cams.GlyphStyle.Color = color.RGBA{R: 220, G: 50, B: 32, A: 255}

	p.Add(points, cams)
	p.Legend.Add("points", points)
	p.Legend.Add("cameras", cams)
	p.Legend.Top = true

	if err := p.Save(8*vg.Inch, 8*vg.Inch, path); err != nil {
		return fmt.Errorf("failed to save plot %s: %w", path, err)
	}
	return nil
}

func scatterData(pts []r3.Vec) []opts.ScatterData {
	data := make([]opts.ScatterData, 0, len(pts))
	for _, p := range pts {
		data = append(data, opts.ScatterData{Value: []interface{}{p.X, p.Z}})
	}
	return data
}

// RenderHTML writes an interactive page with one camera series and one
// point series per reconstruction.
func RenderHTML(w io.Writer, recons []*sfm.Reconstruction) error {
	if len(recons) == 0 {
		return ErrNoReconstructions
	}
	views, tracks := 0, 0
	for _, r := range recons {
		views += len(r.EstimatedViewIDs())
		tracks += len(r.EstimatedTrackIDs())
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Reconstruction", Width: "900px", Height: "900px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Reconstruction (top down)",
			Subtitle: fmt.Sprintf("reconstructions=%d views=%d tracks=%d", len(recons), views, tracks),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "X", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Z", NameLocation: "middle", NameGap: 30}),
	)
	for i, r := range recons {
		scatter.AddSeries(fmt.Sprintf("points %d", i), scatterData(trackPoints(r, MaxPoints)),
			charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 3}))
		scatter.AddSeries(fmt.Sprintf("cameras %d", i), scatterData(cameraCentres(r)),
			charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 10}))
	}

	if err := scatter.Render(w); err != nil {
		return fmt.Errorf("failed to render chart: %w", err)
	}
	return nil
}
