package validation

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"
)

func identityChart(results []Result, s Summary) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Theme: types.ThemeWesteros}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Assembly identity",
			Subtitle: fmt.Sprintf("%d samples, mean %.2f%%, min %.2f%%", s.Samples, s.Mean, s.Min),
		}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Identical (%)"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Sample"}),
	)
	samples := make([]string, len(results))
	var pct []opts.BarData
	for i, r := range results {
		samples[i] = r.Sample
		pct = append(pct, opts.BarData{Value: fmt.Sprintf("%.2f", r.Identity.Percent())})
	}
	bar.SetXAxis(samples).AddSeries("identity", pct)
	return bar
}

func differenceChart(results []Result) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Theme: types.ThemeWesteros}),
		charts.WithTitleOpts(opts.Title{Title: "Differing columns"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Columns"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Sample"}),
	)
	samples := make([]string, len(results))
	var ambiguous, gap, other []opts.BarData
	for i, r := range results {
		samples[i] = r.Sample
		ambiguous = append(ambiguous, opts.BarData{Value: r.Identity.Ambiguous})
		gap = append(gap, opts.BarData{Value: r.Identity.Gap})
		other = append(other, opts.BarData{Value: r.Identity.Other})
	}
	bar.SetXAxis(samples).
		AddSeries("N", ambiguous).
		AddSeries("gap", gap).
		AddSeries("other", other).
		SetSeriesOptions(charts.WithBarChartOpts(opts.BarChart{Stack: "diff"}))
	return bar
}

// WriteReport renders the identity of each compared sample as an HTML page.
func WriteReport(w io.Writer, results []Result) error {
	page := components.NewPage()
	page.AddCharts(identityChart(results, Summarize(results)), differenceChart(results))
	return page.Render(w)
}
