// Package report renders training curves as standalone HTML pages.
package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// SmoothingWindow is the moving-average width of the smoothed series.
const SmoothingWindow = 20

// RenderReturnsChart writes an HTML line chart of per-episode returns and
// their moving average to w.
func RenderReturnsChart(w io.Writer, title string, returns []float64) error {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    title,
			Subtitle: fmt.Sprintf("%d episodes", len(returns)),
		}),
		charts.WithInitializationOpts(opts.Initialization{
			Theme: "shine",
		}),
		charts.WithTooltipOpts(opts.Tooltip{Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "episode"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "return"}),
	)

	episodes := make([]string, len(returns))
	for i := range returns {
		episodes[i] = strconv.Itoa(i + 1)
	}

	line.SetXAxis(episodes).
		AddSeries("return", lineData(returns)).
		AddSeries(fmt.Sprintf("mean of last %d", SmoothingWindow), lineData(MovingAverage(returns, SmoothingWindow)))

	page := components.NewPage()
	page.AddCharts(line)
	return page.Render(w)
}

// WriteReturnsChart renders the chart to path, creating parent directories.
func WriteReturnsChart(path, title string, returns []float64) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create chart directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create chart: %w", err)
	}
	if err := RenderReturnsChart(f, title, returns); err != nil {
		f.Close()
		return fmt.Errorf("render chart: %w", err)
	}
	return f.Close()
}

// MovingAverage returns the trailing mean over up to window values at each
// position.
func MovingAverage(values []float64, window int) []float64 {
	out := make([]float64, len(values))
	var sum float64
	for i, v := range values {
		sum += v
		if i >= window {
			sum -= values[i-window]
		}
		n := i + 1
		if n > window {
			n = window
		}
		out[i] = sum / float64(n)
	}
	return out
}

func lineData(values []float64) []opts.LineData {
	items := make([]opts.LineData, 0, len(values))
	for _, v := range values {
		items = append(items, opts.LineData{Value: v})
	}
	return items
}
