package api

import (
	"fmt"
	"net/http"
	"sort"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/armlink-data/teleop.rig/internal/httputil"
)

// trajectoryPNG renders the retained path as a PNG, projected onto the
// requested plane (?plane=xy|xz|yz, default xy).
func (s *Server) trajectoryPNG(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	plane := r.FormValue("plane")
	if plane == "" {
		plane = "xy"
	}
	var ax, ay int
	switch plane {
	case "xy":
		ax, ay = 0, 1
	case "xz":
		ax, ay = 0, 2
	case "yz":
		ax, ay = 1, 2
	default:
		httputil.BadRequest(w, "plane must be xy, xz, or yz")
		return
	}

	points, _, err := s.manager.ChartsData(r.Context())
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	if len(points) == 0 {
		httputil.NotFound(w, "no trajectory recorded yet")
		return
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("end-effector path (%s)", plane)
	p.X.Label.Text = string("xyz"[ax]) + " [m]"
	p.Y.Label.Text = string("xyz"[ay]) + " [m]"

	xys := make(plotter.XYs, len(points))
	for i, pt := range points {
		xys[i].X = pt.P[ax]
		xys[i].Y = pt.P[ay]
	}
	line, err := plotter.NewLine(xys)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	p.Add(plotter.NewGrid(), line)

	writer, err := p.WriterTo(6*vg.Inch, 6*vg.Inch, "png")
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	w.Header().Set("Content-Type", "image/png")
	if _, err := writer.WriteTo(w); err != nil {
		// Too late for an error status; the client sees a short body.
		return
	}
}

// charts serves the go-echarts page: one euler time series per sensor plus
// the XY path.
func (s *Server) charts(w http.ResponseWriter, r *http.Request) {
	points, euler, err := s.manager.ChartsData(r.Context())
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}

	page := components.NewPage()
	page.PageTitle = "teleop rig charts"

	keys := make([]string, 0, len(euler))
	for key := range euler {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		page.AddCharts(eulerChart(key, euler[key]))
	}
	page.AddCharts(pathChart(points))

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := page.Render(w); err != nil {
		httputil.InternalServerError(w, err.Error())
	}
}

func eulerChart(key string, frames [][3]float64) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: key + " euler angles"}),
		charts.WithInitializationOpts(opts.Initialization{Theme: "dark", Width: "900px", Height: "320px"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "deg"}),
	)

	x := make([]int, len(frames))
	series := [3][]opts.LineData{}
	for i, f := range frames {
		x[i] = i
		for axis := 0; axis < 3; axis++ {
			series[axis] = append(series[axis], opts.LineData{Value: f[axis]})
		}
	}
	line.SetXAxis(x).
		AddSeries("roll", series[0]).
		AddSeries("pitch", series[1]).
		AddSeries("yaw", series[2])
	return line
}

func pathChart(points []TrajPoint) *charts.Scatter {
	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "end-effector path (XY)"}),
		charts.WithInitializationOpts(opts.Initialization{Theme: "dark", Width: "640px", Height: "640px"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "x [m]"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "y [m]"}),
	)

	data := make([]opts.ScatterData, len(points))
	for i, p := range points {
		data[i] = opts.ScatterData{Value: []interface{}{p.P[0], p.P[1]}, SymbolSize: 4}
	}
	scatter.AddSeries("path", data)
	return scatter
}
