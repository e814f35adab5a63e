// Command radarsnapshot is a debug-only visualizer: it replays a corner
// detection file through an occupancy grid and a virtual ring, then renders
// a PNG scatter plot of the occupied grid cells and an HTML scatter chart of
// the ring.
//
// It exists purely to look at pipeline output; it is not part of the core
// and is never imported by it.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"image/color"
	"log"
	"os"
	"path/filepath"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/rajiv-sit/RadarProcessor/internal/radarcore"
	"github.com/rajiv-sit/RadarProcessor/internal/streamsrc"
	"github.com/rajiv-sit/RadarProcessor/internal/vehicleconfig"
)

var (
	detectionFile = flag.String("detections", "", "corner detection text-stream file to replay")
	vehicleFile   = flag.String("vehicle-config", "", "vehicle parameter INI file")
	outDir        = flag.String("out", "snapshot", "output directory for the rendered artifacts")
)

func main() {
	flag.Parse()
	if *detectionFile == "" || *vehicleFile == "" {
		log.Fatalf("usage: radarsnapshot -detections FILE -vehicle-config FILE [-out DIR]")
	}

	vehicleParams, err := vehicleconfig.Load(*vehicleFile)
	if err != nil {
		log.Fatalf("load vehicle config: %v", err)
	}

	grid := radarcore.NewOccupancyGrid(radarcore.DefaultGridSettings())
	ring := radarcore.NewVirtualRing()
	ring.SetSegmentCount(360)
	if len(vehicleParams.Contour) >= 3 {
		ring.SetVehicleContour(vehicleParams.Contour)
	}

	pipeline := radarcore.NewPipeline()
	pipeline.Initialize(vehicleParams)

	if err := replay(*detectionFile, pipeline, grid, ring); err != nil {
		log.Fatalf("replay: %v", err)
	}

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		log.Fatalf("mkdir %q: %v", *outDir, err)
	}
	if err := renderGridPNG(grid, filepath.Join(*outDir, "grid.png")); err != nil {
		log.Fatalf("render grid PNG: %v", err)
	}
	if err := renderRingHTML(ring, filepath.Join(*outDir, "ring.html")); err != nil {
		log.Fatalf("render ring HTML: %v", err)
	}
	fmt.Printf("wrote %s and %s\n", filepath.Join(*outDir, "grid.png"), filepath.Join(*outDir, "ring.html"))
}

func replay(path string, pipeline *radarcore.Pipeline, grid *radarcore.OccupancyGrid, ring *radarcore.VirtualRing) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %q: %w", path, err)
	}
	defer f.Close()

	reader := streamsrc.NewDetectionReader(f)
	for reader.Scan() {
		frame := reader.Frame()
		detections, _ := pipeline.ProcessCornerDetections(frame.Sensor, radarcore.RawCornerDetections{
			Sensor:  frame.Sensor,
			Header:  frame.Header,
			Returns: frame.Returns,
		})

		points := make([]radarcore.GridPoint, 0, len(detections))
		ringPts := make([]radarcore.Point2, 0, len(detections))
		for _, d := range detections {
			gp, ok := radarcore.NewGridPoint(d, frame.Header, frame.Sensor)
			if !ok {
				continue
			}
			points = append(points, gp)
			ringPts = append(ringPts, radarcore.Point2{X: gp.X, Y: gp.Y})
		}
		grid.Update(points)
		ring.Update(ringPts, nil)
	}
	return nil
}

func renderGridPNG(grid *radarcore.OccupancyGrid, path string) error {
	cells := grid.OccupiedCells()
	p := plot.New()
	p.Title.Text = "occupancy grid (cells above threshold)"
	p.X.Label.Text = "lateral (m)"
	p.Y.Label.Text = "longitudinal (m)"

	pts := make(plotter.XYs, len(cells))
	for i, c := range cells {
		pts[i] = plotter.XY{X: c.X, Y: c.Y}
	}
	scatter, err := plotter.NewScatter(pts)
	if err != nil {
		return fmt.Errorf("build scatter: %w", err)
	}
	scatter.Color = color.RGBA{R: 0xd6, G: 0x2f, B: 0x2f, A: 0xff}
	scatter.Radius = vg.Points(1.2)
	p.Add(scatter)

	return p.Save(10*vg.Inch, 10*vg.Inch, path)
}

func renderRingHTML(ring *radarcore.VirtualRing, path string) error {
	pts := ring.Ring(radarcore.DefaultGridSettings().MapRadiusM)
	data := make([]opts.ScatterData, 0, len(pts))
	for _, pt := range pts {
		data = append(data, opts.ScatterData{Value: []interface{}{pt.X, pt.Y}})
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "virtual ring", Theme: "dark", Width: "900px", Height: "900px"}),
		charts.WithTitleOpts(opts.Title{Title: "virtual ring", Subtitle: fmt.Sprintf("segments=%d", ring.SegmentCount())}),
		charts.WithXAxisOpts(opts.XAxis{Name: "lateral (m)"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "longitudinal (m)"}),
	)
	scatter.AddSeries("ring", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 3}))

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		return fmt.Errorf("render scatter: %w", err)
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}
