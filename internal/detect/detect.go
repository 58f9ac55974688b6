// Package detect implements the HSSP (Highest Slope Start Point)
// rolling-window valley-to-peak detector: it scans a normalized sensor
// series for sustained rises consistent with an irrigation cycle and
// reports them as IrrigationEvent values.
package detect

import (
	"time"

	"github.com/soilwatch/irrigation-automation/internal/seriesdata"
)

// Tuned constants for the rolling-window detector. These are fixed
// parameters of the algorithm, not runtime configuration.
const (
	SurgeWindow       = 10
	SurgeThresholdPct = 0.05
	SurgeThresholdMin = 0.10
	MinRiseAbsolute   = 0.05
	LookbackWindow    = 30
	DebounceMinutes   = 60
	MinSeparationPct  = 0.05
	DaytimeStart      = 7
	DaytimeEnd        = 17
)

// MinValleyDepth is a declared tuning parameter ("valley must be this
// much below neighbors") that the rolling-window algorithm does not
// currently consult; kept so the tuned value isn't lost if a future
// revision adds a local-minimum confirmation step.
const MinValleyDepth = 0.03

// IrrigationEvent is a single detected valley-to-peak rise.
type IrrigationEvent struct {
	ValleyIndex int
	PeakIndex   int
	Rise        float64
	ValleyTime  time.Time
	PeakTime    time.Time
}

// Detect scans series for sustained rises and returns accepted events
// sorted by ValleyIndex ascending. An empty result means no irrigation
// was observed in the series; it is not an error.
func Detect(series seriesdata.Series) []IrrigationEvent {
	n := len(series)
	if n == 0 {
		return nil
	}

	yRange := series.YRange()
	threshold := yRange * SurgeThresholdPct
	if threshold < SurgeThresholdMin {
		threshold = SurgeThresholdMin
	}
	if yRange < SurgeThresholdMin {
		return nil
	}

	var candidates []IrrigationEvent
	lastAccepted := -DebounceMinutes

	for i := SurgeWindow; i < n-5; i++ {
		if series[i].Y-series[i-SurgeWindow].Y <= threshold {
			continue
		}
		if i <= lastAccepted+DebounceMinutes {
			continue
		}

		valley := findValley(series, i)
		rise := series[i].Y - series[valley].Y
		if rise < MinRiseAbsolute {
			continue
		}
		if hour := series[valley].T.Hour(); hour < DaytimeStart || hour > DaytimeEnd {
			continue
		}

		candidates = append(candidates, IrrigationEvent{
			ValleyIndex: valley,
			PeakIndex:   i,
			Rise:        rise,
			ValleyTime:  series[valley].T,
			PeakTime:    series[i].T,
		})

		lastAccepted = valley
		if advance := valley + 15; advance > i {
			i = advance
		}
	}

	return dedupe(candidates, n)
}

// findValley returns argmin y[j] for j in [max(0, i-LookbackWindow), i],
// preferring the smallest index on ties.
func findValley(series seriesdata.Series, i int) int {
	lo := i - LookbackWindow
	if lo < 0 {
		lo = 0
	}
	valley := lo
	for j := lo; j <= i; j++ {
		if series[j].Y < series[valley].Y {
			valley = j
		}
	}
	return valley
}

// dedupe keeps, among any two candidates whose ValleyIndex lies within
// len·MinSeparationPct of each other, only the one with the larger
// Rise, then returns the survivors sorted by ValleyIndex ascending.
func dedupe(candidates []IrrigationEvent, seriesLen int) []IrrigationEvent {
	if len(candidates) == 0 {
		return nil
	}

	minSeparation := float64(seriesLen) * MinSeparationPct
	keep := make([]bool, len(candidates))
	for i := range candidates {
		keep[i] = true
	}

	for i := range candidates {
		if !keep[i] {
			continue
		}
		for j := i + 1; j < len(candidates); j++ {
			if !keep[j] {
				continue
			}
			sep := candidates[j].ValleyIndex - candidates[i].ValleyIndex
			if sep < 0 {
				sep = -sep
			}
			if float64(sep) >= minSeparation {
				continue
			}
			if candidates[j].Rise > candidates[i].Rise {
				keep[i] = false
			} else {
				keep[j] = false
			}
		}
	}

	var result []IrrigationEvent
	for i, e := range candidates {
		if keep[i] {
			result = append(result, e)
		}
	}

	for i := 1; i < len(result); i++ {
		for j := i; j > 0 && result[j].ValleyIndex < result[j-1].ValleyIndex; j-- {
			result[j], result[j-1] = result[j-1], result[j]
		}
	}

	return result
}

// First returns the earliest accepted event, or false if events is empty.
func First(events []IrrigationEvent) (IrrigationEvent, bool) {
	if len(events) == 0 {
		return IrrigationEvent{}, false
	}
	return events[0], true
}

// Last returns the latest accepted event, or false if events is empty.
// Callers must check First == Last (by ValleyIndex) to decide whether a
// single detected event should be treated as both slots.
func Last(events []IrrigationEvent) (IrrigationEvent, bool) {
	if len(events) == 0 {
		return IrrigationEvent{}, false
	}
	return events[len(events)-1], true
}
