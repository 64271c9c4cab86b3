// Package monitor renders decode diagnostics: a convergence-trace PNG via
// gonum/plot and an HTML posterior heatmap report via go-echarts. Both read
// decode results without modifying them.
package monitor

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/replay.report/internal/decoder"
)

// SaveConvergencePlot writes the per-iteration data log-likelihood trace as
// a line plot PNG. Degenerate (-Inf) entries are skipped.
func SaveConvergencePlot(trace []float64, path string) error {
	if len(trace) == 0 {
		return fmt.Errorf("monitor: empty log-likelihood trace")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("monitor: create output dir: %w", err)
	}

	p := plot.New()
	p.Title.Text = "Refinement Convergence"
	p.X.Label.Text = "Iteration"
	p.Y.Label.Text = "Data Log-Likelihood"

	pts := make(plotter.XYs, 0, len(trace))
	for i, ll := range trace {
		if math.IsNaN(ll) || math.IsInf(ll, 0) {
			continue
		}
		pts = append(pts, plotter.XY{X: float64(i), Y: ll})
	}
	if len(pts) == 0 {
		return fmt.Errorf("monitor: trace has no finite entries")
	}

	line, err := plotter.NewLine(pts)
	if err != nil {
		return fmt.Errorf("monitor: build trace line: %w", err)
	}
	p.Add(line)
	p.Legend.Add("log likelihood", line)
	p.Legend.Top = true
	p.Legend.Left = false

	if err := p.Save(10*vg.Inch, 5*vg.Inch, path); err != nil {
		return fmt.Errorf("monitor: save convergence plot: %w", err)
	}
	return nil
}

// viridis palette used across the heatmap reports.
var heatmapColors = []string{"#440154", "#482777", "#3e4989", "#31688e", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725"}

// WritePosteriorReport writes an HTML report with one time × bin posterior
// heatmap per regime plus the regime-probability trace, from the acausal
// posterior when present or the causal one otherwise.
func WritePosteriorReport(res *decoder.Results, stateNames []string, path string) error {
	if len(stateNames) != res.NStates {
		return fmt.Errorf("monitor: got %d state names for %d regimes", len(stateNames), res.NStates)
	}
	posterior := res.AcausalPosterior
	if posterior == nil {
		posterior = res.CausalPosterior
	}
	if posterior == nil {
		return fmt.Errorf("monitor: result carries no posterior")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("monitor: create output dir: %w", err)
	}

	page := components.NewPage()
	page.PageTitle = "Posterior Report"

	timeAxis := make([]string, res.NTime)
	for t := range timeAxis {
		timeAxis[t] = fmt.Sprintf("%d", t)
	}
	binAxis := make([]string, res.NBins)
	for b := range binAxis {
		binAxis[b] = fmt.Sprintf("%d", b)
	}

	for s, name := range stateNames {
		data := make([]opts.HeatMapData, 0, res.NTime*res.NBins)
		maxP := 0.0
		for t := 0; t < res.NTime; t++ {
			for b := 0; b < res.NBins; b++ {
				p := posterior[res.Index(t, s, b)]
				if p > maxP {
					maxP = p
				}
				data = append(data, opts.HeatMapData{Value: [3]interface{}{t, b, p}})
			}
		}
		if maxP == 0 {
			maxP = 1
		}

		hm := charts.NewHeatMap()
		hm.SetGlobalOptions(
			charts.WithInitializationOpts(opts.Initialization{Width: "1200px", Height: "400px"}),
			charts.WithTitleOpts(opts.Title{Title: fmt.Sprintf("Posterior: %s", name)}),
			charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
			charts.WithXAxisOpts(opts.XAxis{Type: "category", Name: "Time bin", Data: timeAxis}),
			charts.WithYAxisOpts(opts.YAxis{Type: "category", Name: "Position bin", Data: binAxis}),
			charts.WithVisualMapOpts(opts.VisualMap{
				Show:       opts.Bool(true),
				Calculable: opts.Bool(true),
				Min:        0,
				Max:        float32(maxP),
				InRange:    &opts.VisualMapInRange{Color: heatmapColors},
			}),
		)
		hm.SetXAxis(timeAxis).AddSeries("posterior", data)
		page.AddCharts(hm)
	}

	page.AddCharts(stateProbabilityChart(res, stateNames, timeAxis))

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("monitor: create report: %w", err)
	}
	defer f.Close()

	if err := page.Render(f); err != nil {
		return fmt.Errorf("monitor: render report: %w", err)
	}
	return nil
}

// stateProbabilityChart builds the per-regime marginal probability lines.
func stateProbabilityChart(res *decoder.Results, stateNames []string, timeAxis []string) *charts.Line {
	probs := res.StateProbabilities(res.AcausalPosterior != nil)

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "1200px", Height: "300px"}),
		charts.WithTitleOpts(opts.Title{Title: "Regime Probabilities"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Probability", Min: 0, Max: 1}),
	)

	line.SetXAxis(timeAxis)
	for s, name := range stateNames {
		series := make([]opts.LineData, res.NTime)
		for t := 0; t < res.NTime; t++ {
			series[t] = opts.LineData{Value: probs[t*res.NStates+s]}
		}
		line.AddSeries(name, series)
	}
	return line
}
