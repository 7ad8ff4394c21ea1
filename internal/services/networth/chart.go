package networth

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/tally-app/tally/internal/models"
)

const (
	defaultChartWidth  = 900
	defaultChartHeight = 400
)

// NetWorthChartPNG renders the net-worth series as a PNG line chart.
// Two series: Net Worth (blue solid) and Assets (gray dashed).
func (s *Service) NetWorthChartPNG(ctx context.Context, fromDate, toDate string, width, height int) ([]byte, error) {
	series, err := s.NetWorthSeries(ctx, fromDate, toDate, 0)
	if err != nil {
		return nil, err
	}
	return RenderNetWorthChart(series, width, height)
}

// RenderNetWorthChart renders a PNG line chart from a net-worth series.
// Returns raw PNG bytes.
func RenderNetWorthChart(series *models.NetWorthSeries, width, height int) ([]byte, error) {
	if len(series.Points) < 2 {
		return nil, fmt.Errorf("need at least 2 data points, got %d", len(series.Points))
	}
	if width <= 0 {
		width = defaultChartWidth
	}
	if height <= 0 {
		height = defaultChartHeight
	}

	xValues := make([]time.Time, len(series.Points))
	netWorthY := make([]float64, len(series.Points))
	assetsY := make([]float64, len(series.Points))

	for i, p := range series.Points {
		t, err := time.Parse("2006-01-02", p.Date)
		if err != nil {
			return nil, fmt.Errorf("bad point date %q: %w", p.Date, err)
		}
		xValues[i] = t
		netWorthY[i] = p.NetWorth
		assetsY[i] = p.Assets
	}

	netWorthSeries := chart.TimeSeries{
		Name: "Net Worth",
		Style: chart.Style{
			StrokeColor: drawing.ColorFromHex("2563eb"), // blue-600
			StrokeWidth: 2.5,
		},
		XValues: xValues,
		YValues: netWorthY,
	}

	assetSeries := chart.TimeSeries{
		Name: "Assets",
		Style: chart.Style{
			StrokeColor:     drawing.ColorFromHex("9ca3af"), // gray-400
			StrokeWidth:     1.5,
			StrokeDashArray: []float64{5.0, 3.0},
		},
		XValues: xValues,
		YValues: assetsY,
	}

	graph := chart.Chart{
		Title:  fmt.Sprintf("Net Worth (%s)", series.Currency),
		Width:  width,
		Height: height,
		Background: chart.Style{
			Padding: chart.Box{Top: 40, Left: 10, Right: 20, Bottom: 10},
		},
		XAxis: chart.XAxis{
			TickPosition: chart.TickPositionBetweenTicks,
			ValueFormatter: func(v interface{}) string {
				if t, ok := v.(float64); ok {
					return chart.TimeFromFloat64(t).Format("Jan 06")
				}
				return ""
			},
		},
		YAxis: chart.YAxis{
			ValueFormatter: func(v interface{}) string {
				if f, ok := v.(float64); ok {
					return fmt.Sprintf("$%.0fk", f/1000)
				}
				return ""
			},
		},
		Series: []chart.Series{
			netWorthSeries,
			assetSeries,
		},
	}

	graph.Elements = []chart.Renderable{
		chart.LegendLeft(&graph),
	}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("chart render failed: %w", err)
	}

	return buf.Bytes(), nil
}
