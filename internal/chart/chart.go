// Package chart implements the chart-click coordinator (C4): mapping
// detected event indices to screen coordinates inside the rendered chart
// and dispatching the clicks through the browser driver, in one of three
// operator-selectable modes.
package chart

import (
	"context"
	"fmt"
	"time"

	"github.com/soilwatch/irrigation-automation/internal/browser"
	"github.com/soilwatch/irrigation-automation/internal/detect"
	"github.com/soilwatch/irrigation-automation/internal/learning"
)

// Mode selects how the coordinator reacts to a planned click (spec §4.4).
type Mode string

const (
	ModeNormal   Mode = "normal"
	ModeWatch    Mode = "watch"
	ModeLearning Mode = "learning"
)

// verticalLift is the vertical pixel offset applied so clicks land in the
// chart library's clickable band.
const verticalLift = 15

// settleDelay is the short pause the coordinator takes between placing a
// click and moving to the next step (spec §4.4).
const settleDelay = 300 * time.Millisecond

// learningWaitTimeout is the fixed operator-decision window in learning
// mode before defaulting to confirm (spec §4.4).
const learningWaitTimeout = 20 * time.Second

// learningPollInterval is how often the coordinator polls for the
// operator's on-page decision.
const learningPollInterval = 250 * time.Millisecond

// Rect is the chart's bounding rectangle in page coordinates.
type Rect struct {
	X, Y, Width, Height float64
}

// Coordinate maps a sample index on an N-point series to a screen
// location inside the rectangle (spec §4.4's linear x-mapping; see
// SPEC_FULL/Open Questions for why no axis-extent readback is attempted).
func (r Rect) Coordinate(idx, seriesLen int) (x, y float64) {
	if seriesLen <= 0 {
		seriesLen = 1
	}
	x = r.X + (float64(idx)/float64(seriesLen))*r.Width
	y = r.Y + r.Height/2 - verticalLift
	return x, y
}

// Plan is the pair of click coordinates computed for one event pair,
// before any learning offset is applied.
type Plan struct {
	FirstX, FirstY float64
	LastX, LastY   float64
}

// BuildPlan computes unadjusted click coordinates for the first and last
// events against chartRect, given the series length. It clicks at each
// event's ValleyIndex rather than PeakIndex: the valley is the sample
// where the irrigation surge actually began, while the peak is just the
// sample that tripped the rolling-window threshold, which can trail the
// valley by up to LookbackWindow minutes (see DESIGN.md's Open Question
// decisions).
func BuildPlan(chartRect Rect, seriesLen int, first, last detect.IrrigationEvent) Plan {
	fx, fy := chartRect.Coordinate(first.ValleyIndex, seriesLen)
	lx, ly := chartRect.Coordinate(last.ValleyIndex, seriesLen)
	return Plan{FirstX: fx, FirstY: fy, LastX: lx, LastY: ly}
}

// ApplyOffsets adds learning-store offsets to a plan (spec §4.4).
func ApplyOffsets(p Plan, offsets learning.Offsets) Plan {
	p.FirstX += offsets.First.X
	p.FirstY += offsets.First.Y
	p.LastX += offsets.Last.X
	p.LastY += offsets.Last.Y
	return p
}

// Logger is the narrow logging interface the coordinator uses to report
// planned/placed clicks; the orchestrator adapts *hub.Hub to it.
type Logger interface {
	Logf(format string, args ...any)
}

// Result reports what the coordinator actually did for one date.
type Result struct {
	Clicked   bool
	Plan      Plan
	Confirmed bool // learning mode: true when clicks were placed (operator confirm or timeout default), false on operator skip
	Sample    *learning.Sample
}

// Coordinator places clicks for detected events in one of three modes
// and hands back to the table inspector for verification.
type Coordinator struct {
	driver browser.Driver
	mode   Mode
	log    Logger
}

// New creates a Coordinator for the given mode. log may be nil.
func New(driver browser.Driver, mode Mode, log Logger) *Coordinator {
	return &Coordinator{driver: driver, mode: mode, log: log}
}

func (c *Coordinator) logf(format string, args ...any) {
	if c.log != nil {
		c.log.Logf(format, args...)
	}
}

// timeInputSelector selects the Nth (1-based) input[type=time] element
// (spec §6 DOM contract: `input[type="time"]`).
func timeInputSelector(n int) string {
	return fmt.Sprintf(`input[type="time"]:nth-of-type(%d)`, n)
}

// Place executes the click sequence for plan: focus first time input,
// click first coordinate, settle, focus last time input, click last
// coordinate, settle (spec §4.4). needsFirst/needsLast gate which slots
// are actually clicked, per the table inspector's decision.
func (c *Coordinator) Place(ctx context.Context, plan Plan, needsFirst, needsLast bool, farm, date string, algoFirst, algoLast learning.Point) (Result, error) {
	switch c.mode {
	case ModeWatch:
		c.logf("watch mode: would click first=(%.1f,%.1f) last=(%.1f,%.1f)", plan.FirstX, plan.FirstY, plan.LastX, plan.LastY)
		return Result{Clicked: false, Plan: plan}, nil

	case ModeLearning:
		return c.placeLearning(ctx, plan, needsFirst, needsLast, farm, date, algoFirst, algoLast)

	default: // ModeNormal
		if err := c.clickBoth(ctx, plan, needsFirst, needsLast); err != nil {
			return Result{}, err
		}
		return Result{Clicked: true, Plan: plan}, nil
	}
}

func (c *Coordinator) clickBoth(ctx context.Context, plan Plan, needsFirst, needsLast bool) error {
	if needsFirst {
		if err := c.driver.Click(ctx, timeInputSelector(1)); err != nil {
			return err
		}
		if err := c.driver.MouseClickAt(ctx, plan.FirstX, plan.FirstY); err != nil {
			return err
		}
		time.Sleep(settleDelay)
	}
	if needsLast {
		if err := c.driver.Click(ctx, timeInputSelector(2)); err != nil {
			return err
		}
		if err := c.driver.MouseClickAt(ctx, plan.LastX, plan.LastY); err != nil {
			return err
		}
		time.Sleep(settleDelay)
	}
	return nil
}

// placeLearning draws overlay markers (RED=first, BLUE=last), arms an
// operator decision listener, waits for confirm/skip or the fixed
// timeout (defaulting to confirm on expiry), and always forwards a
// LearningSample built from whatever the operator clicked during the
// window (spec §4.4).
func (c *Coordinator) placeLearning(ctx context.Context, plan Plan, needsFirst, needsLast bool, farm, date string, algoFirst, algoLast learning.Point) (Result, error) {
	if err := c.drawOverlay(ctx, plan); err != nil {
		return Result{}, err
	}
	if err := c.driver.Evaluate(ctx, armLearningListenerScript(plan), nil); err != nil {
		return Result{}, err
	}

	confirmed, skipped := c.awaitDecision(ctx)

	var userFirst, userLast *learning.Point
	if p, ok := c.firstOperatorClick(ctx); ok {
		userFirst = &p
	}
	if p, ok := c.lastOperatorClick(ctx); ok {
		userLast = &p
	}

	sample := learning.NewSample(farm, date, algoFirst, algoLast, userFirst, userLast, "", time.Now())

	if skipped {
		c.logf("learning mode: operator skipped %s/%s", farm, date)
		return Result{Clicked: false, Plan: plan, Confirmed: false, Sample: &sample}, nil
	}

	_ = confirmed // timeout also confirms; no branch needed beyond skip
	if err := c.clickBoth(ctx, plan, needsFirst, needsLast); err != nil {
		return Result{}, err
	}
	return Result{Clicked: true, Plan: plan, Confirmed: true, Sample: &sample}, nil
}

// drawOverlay renders RED/BLUE markers at the planned coordinates via a
// small evaluated script.
func (c *Coordinator) drawOverlay(ctx context.Context, plan Plan) error {
	script := overlayScript(plan)
	return c.driver.Evaluate(ctx, script, nil)
}

// awaitDecision polls for the operator's keyed decision until it arrives
// or learningWaitTimeout elapses, at which point it defaults to confirm.
func (c *Coordinator) awaitDecision(ctx context.Context) (confirmed, skipped bool) {
	deadline := time.Now().Add(learningWaitTimeout)
	ticker := time.NewTicker(learningPollInterval)
	defer ticker.Stop()

	for time.Now().Before(deadline) {
		var decision string
		if err := c.driver.Evaluate(ctx, pollLearningDecisionScript, &decision); err == nil {
			switch decision {
			case "confirm":
				return true, false
			case "skip":
				return false, true
			}
		}
		select {
		case <-ctx.Done():
			return true, false
		case <-ticker.C:
		}
	}
	// Timeout: default to confirm (spec §4.4).
	return true, false
}

// firstOperatorClick reads back the operator's click nearest the RED
// (first) marker during the decision window, if any.
func (c *Coordinator) firstOperatorClick(ctx context.Context) (learning.Point, bool) {
	var x, y float64
	_ = c.driver.Evaluate(ctx, firstClickXScript, &x)
	_ = c.driver.Evaluate(ctx, firstClickYScript, &y)
	if x != 0 || y != 0 {
		return learning.Point{X: x, Y: y}, true
	}
	return learning.Point{}, false
}

// lastOperatorClick reads back the operator's click nearest the BLUE
// (last) marker during the decision window, if any.
func (c *Coordinator) lastOperatorClick(ctx context.Context) (learning.Point, bool) {
	var x, y float64
	_ = c.driver.Evaluate(ctx, lastClickXScript, &x)
	_ = c.driver.Evaluate(ctx, lastClickYScript, &y)
	if x != 0 || y != 0 {
		return learning.Point{X: x, Y: y}, true
	}
	return learning.Point{}, false
}
