package orchestrator

import (
	"context"

	"github.com/soilwatch/irrigation-automation/internal/chart"
	"github.com/soilwatch/irrigation-automation/internal/checkpoint"
	"github.com/soilwatch/irrigation-automation/internal/detect"
	"github.com/soilwatch/irrigation-automation/internal/learning"
	"github.com/soilwatch/irrigation-automation/internal/seriesdata"
	"github.com/soilwatch/irrigation-automation/internal/table"
)

func learningPoint(x, y float64) learning.Point {
	return learning.Point{X: x, Y: y}
}

func dateStatusToCheckpoint(s DateStatus) checkpoint.Status {
	switch s {
	case StatusFilled:
		return checkpoint.StatusFilled
	case StatusAlreadyFilled:
		return checkpoint.StatusAlreadyFilled
	case StatusNoIrrigation:
		return checkpoint.StatusNoIrrigation
	case StatusSkipped:
		return checkpoint.StatusSkipped
	default:
		return checkpoint.StatusError
	}
}

// processDate runs one date's full pipeline: navigate, capture, detect,
// decide, act, verify, record (spec §4.6's per-date sub-states). Every
// path returns exactly one DateResult; no error escapes the date loop.
func (o *Orchestrator) processDate(ctx context.Context, cfg RunConfig, link FarmLink, date string) DateResult {
	result := DateResult{Date: date}

	dateURL, err := BuildDateURL(link.Href, cfg.Manager, date)
	if err != nil {
		result.Status = StatusError
		result.Reason = "building date url: " + err.Error()
		return result
	}

	if o.stopRequested() {
		result.Status = StatusError
		result.Reason = "stopped before navigation"
		return result
	}

	o.interceptor.Arm()

	navCtx, navCancel := context.WithTimeout(ctx, NavigationTimeout)
	navErr := o.driver.Goto(navCtx, dateURL, NavigationTimeout)
	navCancel()
	if navErr != nil {
		result.Status = StatusError
		result.Reason = "navigation timeout: " + navErr.Error()
		return result
	}

	if err := o.waitForChartReady(ctx); err != nil {
		result.Status = StatusError
		result.Reason = "chart render timeout: " + err.Error()
		return result
	}

	payload, err := o.interceptor.WaitForCapture(ctx, CaptureTimeout)
	if err != nil {
		result.Status = StatusError
		result.Reason = "capture timeout: " + err.Error()
		return result
	}

	series, err := seriesdata.Extract(payload.Body)
	if err != nil {
		result.Status = StatusError
		result.Reason = "data shape error: " + err.Error()
		return result
	}
	result.PointsAnalyzed = len(series)
	result.YRange = series.YRange()

	events := detect.Detect(series)

	reading, err := o.readTable(ctx)
	if err != nil {
		result.Status = StatusError
		result.Reason = "reading table: " + err.Error()
		return result
	}

	mode := o.currentMode()
	if mode == ModeReportSending {
		return o.processReportSending(ctx, result)
	}

	action := table.Decide(reading, len(events))
	switch action {
	case table.ActionAlreadyFilled:
		result.Status = StatusAlreadyFilled
		result.FirstTime = reading.FirstTime
		result.LastTime = reading.LastTime
		return result
	case table.ActionNoIrrigation:
		result.Status = StatusNoIrrigation
		return result
	}

	first, _ := detect.First(events)
	last, _ := detect.Last(events)

	rect, err := o.readChartRect(ctx)
	if err != nil {
		result.Status = StatusError
		result.Reason = "chart rect: " + err.Error()
		return result
	}

	plan := chart.BuildPlan(rect, len(series), first, last)
	if offsets, lerr := o.learningStore.AveragedOffsets(); lerr == nil && mode != ModeLearning {
		plan = chart.ApplyOffsets(plan, offsets)
	}

	coordinator := chart.New(o.driver, chart.Mode(mode), o)
	algoFirst := learningPoint(plan.FirstX, plan.FirstY)
	algoLast := learningPoint(plan.LastX, plan.LastY)

	if o.stopRequested() {
		result.Status = StatusError
		result.Reason = "stopped before click dispatch"
		return result
	}

	clickResult, err := coordinator.Place(ctx, plan, reading.NeedsFirstClick, reading.NeedsLastClick, link.DisplayName, date, algoFirst, algoLast)
	if err != nil {
		result.Status = StatusError
		result.Reason = "click dispatch: " + err.Error()
		return result
	}
	if clickResult.Sample != nil {
		_ = o.learningStore.Append(*clickResult.Sample)
	}
	if !clickResult.Clicked {
		// watch mode, or learning-mode skip: nothing to verify.
		result.Status = StatusNoIrrigation
		return result
	}

	return o.verifyClick(ctx, result, reading)
}

// verifyClick re-reads the table after a click; if the relevant cells are
// still empty it reads the table once more after the settle delay and
// records an error if they remain empty. The click itself is not repeated.
func (o *Orchestrator) verifyClick(ctx context.Context, result DateResult, before table.Reading) DateResult {
	reading, err := o.readTable(ctx)
	if err != nil {
		result.Status = StatusError
		result.Reason = "re-reading table: " + err.Error()
		return result
	}

	if (before.NeedsFirstClick && reading.NeedsFirstClick) || (before.NeedsLastClick && reading.NeedsLastClick) {
		// One further read of the table; no second click.
		reading, err = o.readTable(ctx)
		if err != nil || (before.NeedsFirstClick && reading.NeedsFirstClick) || (before.NeedsLastClick && reading.NeedsLastClick) {
			result.Status = StatusError
			result.Reason = "click verification failed: table still empty after retry"
			return result
		}
	}

	result.Status = StatusFilled
	result.FirstTime = reading.FirstTime
	result.LastTime = reading.LastTime
	return result
}

func (o *Orchestrator) processReportSending(ctx context.Context, result DateResult) DateResult {
	rt, err := o.readReportTable(ctx)
	if err != nil {
		result.Status = StatusError
		result.Reason = "reading report table: " + err.Error()
		return result
	}

	ok, reason := table.ValidateForReport(rt)
	if !ok {
		result.Status = StatusSkipped
		result.Reason = reason
		return result
	}

	if o.stopRequested() {
		result.Status = StatusError
		result.Reason = "stopped before report button click"
		return result
	}

	if err := o.driver.Click(ctx, selReportButton); err != nil {
		result.Status = StatusError
		result.Reason = "clicking report button: " + err.Error()
		return result
	}

	result.Status = StatusFilled
	result.FirstTime = rt.FirstIrrigationTime
	return result
}
