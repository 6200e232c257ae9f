package archive

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// latencySeries extracts one per-request series from archived rows.
type latencySeries struct {
	title string
	yName string
	value func(Row) float64
}

var reportSeries = []latencySeries{
	{"Time to First Token", "seconds", func(r Row) float64 { return r.TimeToFirstToken }},
	{"End-to-End Latency", "seconds", func(r Row) float64 { return r.EndToEndLatency }},
	{"Prompt Eval Time", "seconds", func(r Row) float64 { return r.PromptEvalTime }},
	{"Completion Eval Time", "seconds", func(r Row) float64 { return r.CompletionEvalTime }},
	{"Completion Throughput", "tokens/s", func(r Row) float64 { return r.CompletionEvalThroughput }},
	{"Generation Tokens", "tokens", func(r Row) float64 { return float64(r.GenerationTokens) }},
	{"KV-Cache Usage Ratio", "ratio", func(r Row) float64 { return r.KVCacheUsageRatio }},
	{"GPU Memory Used", "MiB", func(r Row) float64 { return r.GPUMemoryUsedMiB }},
}

// GenerateReport renders an HTML page of per-request latency charts from a
// session archive.
func GenerateReport(outputPath, session string, rows []Row) error {
	if len(rows) == 0 {
		return fmt.Errorf("no archived requests to report on")
	}

	sorted := make([]Row, len(rows))
	copy(sorted, rows)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Timestamp < sorted[j].Timestamp
	})

	xLabels := make([]string, len(sorted))
	for i, row := range sorted {
		xLabels[i] = time.Unix(0, row.Timestamp).Format("15:04:05.000")
	}

	page := components.NewPage()
	page.PageTitle = fmt.Sprintf("Inference session %s", session)

	for _, s := range reportSeries {
		page.AddCharts(buildLineChart(s, session, xLabels, sorted))
	}

	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	defer file.Close()

	if err := page.Render(file); err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}
	return nil
}

func buildLineChart(s latencySeries, session string, xLabels []string, rows []Row) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    s.title,
			Subtitle: fmt.Sprintf("Session %s | per request", session),
		}),
		charts.WithTooltipOpts(opts.Tooltip{
			Show:    opts.Bool(true),
			Trigger: "axis",
		}),
		charts.WithXAxisOpts(opts.XAxis{
			Name: "Request time",
			Type: "category",
			AxisLabel: &opts.AxisLabel{
				Rotate: 45,
			},
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Name: s.yName,
			Type: "value",
		}),
		charts.WithDataZoomOpts(opts.DataZoom{
			Type:  "slider",
			Start: 0,
			End:   100,
		}),
		charts.WithInitializationOpts(opts.Initialization{
			Width:  "100%",
			Height: "400px",
		}),
	)

	data := make([]opts.LineData, len(rows))
	for i, row := range rows {
		data[i] = opts.LineData{Value: s.value(row)}
	}

	line.SetXAxis(xLabels)
	line.AddSeries(s.title, data, charts.WithLineChartOpts(opts.LineChart{
		Smooth:     opts.Bool(true),
		ShowSymbol: opts.Bool(true),
	}))
	return line
}
