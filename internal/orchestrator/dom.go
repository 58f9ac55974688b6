package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/soilwatch/irrigation-automation/internal/chart"
	"github.com/soilwatch/irrigation-automation/internal/table"
)

// parseRect decodes the JSON rectangle produced by chartRectScript.
func parseRect(raw string, out *chart.Rect) error {
	var decoded struct {
		X, Y, Width, Height float64
	}
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return err
	}
	out.X, out.Y, out.Width, out.Height = decoded.X, decoded.Y, decoded.Width, decoded.Height
	return nil
}

// chartSeriesLengthScript reads how many points the rendered Highcharts
// series currently holds, used by the active chart-readiness poll.
const chartSeriesLengthScript = `
(() => {
  const c = document.querySelector('.highcharts-container');
  if (!c || !window.Highcharts || !Highcharts.charts) return 0;
  for (const h of Highcharts.charts) {
    if (h && h.series && h.series[0] && h.series[0].data) return h.series[0].data.length;
  }
  return 0;
})();
`

// waitForChartReady actively polls every 100ms (never a passive sleep,
// per spec §4.6) for the rendered chart series to have data, up to
// ChartRenderTimeout.
func (o *Orchestrator) waitForChartReady(ctx context.Context) error {
	deadline := time.Now().Add(ChartRenderTimeout)
	ticker := time.NewTicker(chartPollInterval)
	defer ticker.Stop()

	for {
		var length float64
		if err := o.driver.Evaluate(ctx, chartSeriesLengthScript, &length); err == nil && length > 0 {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("chart series did not render within %s", ChartRenderTimeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// readCellScript reads a labeled form cell's text by matching the
// preceding label text (spec §4.5).
func readCellScript(label string) string {
	return fmt.Sprintf(`
(() => {
  const nodes = Array.from(document.querySelectorAll('*'));
  for (const n of nodes) {
    if (n.textContent && n.textContent.trim() === %q) {
      const cell = n.nextElementSibling;
      return cell ? cell.textContent.trim() : '';
    }
  }
  return '';
})();
`, label)
}

const labelFirstTime = "구역 1 첫 급액 시간 1 (시분)"
const labelLastTime = "구역 1 마지막 급액 시간 1 (시분)"
const labelNightMoisture = "야간 함수율 편차"
const labelReportLastTime = "마지막 급액 시간"
const labelReportFirstTime = "첫 급액 시간"
const labelSunrise = "일출 시"

// readTable reads the two irrigation-time cells and normalizes them
// (spec §4.5).
func (o *Orchestrator) readTable(ctx context.Context) (table.Reading, error) {
	var first, last string
	if err := o.driver.Evaluate(ctx, readCellScript(labelFirstTime), &first); err != nil {
		return table.Reading{}, err
	}
	if err := o.driver.Evaluate(ctx, readCellScript(labelLastTime), &last); err != nil {
		return table.Reading{}, err
	}
	time.Sleep(tableSettleDelay)
	return table.Read(table.Cells{FirstTime: first, LastTime: last}), nil
}

// readReportTable reads the four cells the report-sending validation
// needs (spec §4.5 additional validation).
func (o *Orchestrator) readReportTable(ctx context.Context) (table.ReportTable, error) {
	var rt table.ReportTable
	fields := []struct {
		label string
		out   *string
	}{
		{labelNightMoisture, &rt.NightMoistureDeviation},
		{labelReportLastTime, &rt.LastIrrigationTime},
		{labelReportFirstTime, &rt.FirstIrrigationTime},
		{labelSunrise, &rt.Sunrise},
	}
	for _, f := range fields {
		if err := o.driver.Evaluate(ctx, readCellScript(f.label), f.out); err != nil {
			return table.ReportTable{}, err
		}
	}
	return rt, nil
}

// chartRectScript reads the chart container's bounding rectangle.
const chartRectScript = `
(() => {
  const c = document.querySelector('.highcharts-container');
  if (!c) return '';
  const r = c.getBoundingClientRect();
  return JSON.stringify({x: r.x, y: r.y, width: r.width, height: r.height});
})();
`

// readChartRect reads the chart container's bounding box, used to map
// series indices to screen coordinates (spec §4.4).
func (o *Orchestrator) readChartRect(ctx context.Context) (chart.Rect, error) {
	var raw string
	if err := o.driver.Evaluate(ctx, chartRectScript, &raw); err != nil {
		return chart.Rect{}, err
	}
	if raw == "" {
		return chart.Rect{}, fmt.Errorf("chart container not found")
	}
	var r chart.Rect
	if err := parseRect(raw, &r); err != nil {
		return chart.Rect{}, err
	}
	return r, nil
}
