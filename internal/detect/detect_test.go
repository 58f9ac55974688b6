package detect

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soilwatch/irrigation-automation/internal/seriesdata"
)

// buildSeries constructs a 1440-point minute-resolution series starting at
// local midnight on the given date, with y computed by f(i).
func buildSeries(date string, f func(i int) float64) seriesdata.Series {
	start, err := time.ParseInLocation("2006-01-02", date, time.Local)
	if err != nil {
		panic(err)
	}
	series := make(seriesdata.Series, 1440)
	for i := range series {
		series[i] = seriesdata.Point{
			T: start.Add(time.Duration(i) * time.Minute),
			Y: f(i),
		}
	}
	return series
}

func TestDetect_S1_CleanSingleEvent(t *testing.T) {
	series := buildSeries("2026-01-06", func(i int) float64 {
		switch {
		case i < 600:
			return 12.50
		case i <= 720:
			frac := float64(i-600) / float64(720-600)
			return 12.50 + frac*(14.00-12.50)
		default:
			frac := float64(i-720) / float64(1440-720)
			return 14.00 - frac*(14.00-12.80)
		}
	})

	events := Detect(series)
	require.Len(t, events, 1)
	e := events[0]
	assert.True(t, e.ValleyIndex >= 598 && e.ValleyIndex <= 602, "valleyIndex=%d", e.ValleyIndex)
	assert.True(t, e.PeakIndex >= 715 && e.PeakIndex <= 725, "peakIndex=%d", e.PeakIndex)
	hour := e.ValleyTime.Hour()
	assert.True(t, hour == 9 || hour == 10, "hour=%d", hour)

	first, ok := First(events)
	require.True(t, ok)
	last, ok := Last(events)
	require.True(t, ok)
	assert.Equal(t, first, last)
}

func TestDetect_S2_TwoWellSeparatedEvents(t *testing.T) {
	series := buildSeries("2026-01-06", func(i int) float64 {
		y := 12.50
		if i >= 480 {
			if i <= 540 {
				frac := float64(i-480) / float64(540-480)
				y = 12.50 + frac*1.20
			} else if i < 900 {
				y = 13.70
			}
		}
		if i >= 900 {
			if i <= 960 {
				frac := float64(i-900) / float64(960-900)
				y = 13.70 + frac*1.20
			} else {
				y = 14.90
			}
		}
		return y
	})

	events := Detect(series)
	require.Len(t, events, 2)
	assert.InDelta(t, 480, events[0].ValleyIndex, 5)
	assert.InDelta(t, 900, events[1].ValleyIndex, 5)
}

func TestDetect_S3_DuplicateClusterKeepsLargerRise(t *testing.T) {
	series := buildSeries("2026-01-06", func(i int) float64 {
		y := 12.50
		switch {
		case i >= 480 && i <= 540:
			frac := float64(i-480) / float64(540-480)
			y = 12.50 + frac*1.20
		case i > 540 && i < 900:
			y = 13.70 + float64(i-540)*0.0005
		case i >= 900 && i <= 960:
			frac := float64(i-900) / float64(960-900)
			y = 13.70 + float64(900-540)*0.0005 + frac*1.20
		case i > 960:
			y = 13.70 + float64(900-540)*0.0005 + 1.20
		}
		return y
	})

	events := Detect(series)
	require.Len(t, events, 2)
	assert.InDelta(t, 480, events[0].ValleyIndex, 5)
}

func TestDetect_S4_NighttimeSurgeRejected(t *testing.T) {
	series := buildSeries("2026-01-06", func(i int) float64 {
		switch {
		case i < 180:
			return 12.50
		case i <= 240:
			frac := float64(i-180) / float64(240-180)
			return 12.50 + frac*1.50
		default:
			return 14.00
		}
	})

	events := Detect(series)
	assert.Empty(t, events)
}

func TestDetect_MonotonicallyDecreasing_NoEvents(t *testing.T) {
	series := buildSeries("2026-01-06", func(i int) float64 {
		return 20.0 - float64(i)*0.001
	})
	assert.Empty(t, Detect(series))
}

func TestDetect_FlatSeries_NoEvents(t *testing.T) {
	series := buildSeries("2026-01-06", func(i int) float64 { return 12.5 })
	assert.Empty(t, Detect(series))
}

func TestDetect_SmallYRange_NoEvents(t *testing.T) {
	series := buildSeries("2026-01-06", func(i int) float64 {
		if i > 600 {
			return 12.55
		}
		return 12.50
	})
	assert.Empty(t, Detect(series))
}

func TestDetect_Idempotent(t *testing.T) {
	series := buildSeries("2026-01-06", func(i int) float64 {
		switch {
		case i < 600:
			return 12.50
		case i <= 720:
			frac := float64(i-600) / float64(720-600)
			return 12.50 + frac*1.50
		default:
			return 14.00
		}
	})

	first := Detect(series)
	second := Detect(series)
	assert.Equal(t, first, second)
}

func TestDetect_Invariants(t *testing.T) {
	series := buildSeries("2026-01-06", func(i int) float64 {
		y := 12.50
		if i >= 480 {
			if i <= 540 {
				frac := float64(i-480) / float64(540-480)
				y = 12.50 + frac*1.20
			} else if i < 900 {
				y = 13.70
			}
		}
		if i >= 900 {
			if i <= 960 {
				frac := float64(i-900) / float64(960-900)
				y = 13.70 + frac*1.20
			} else {
				y = 14.90
			}
		}
		return y
	})

	events := Detect(series)
	require.Len(t, events, 2)

	for _, e := range events {
		assert.GreaterOrEqual(t, e.Rise, MinRiseAbsolute)
		hour := e.ValleyTime.Hour()
		assert.True(t, hour >= DaytimeStart && hour <= DaytimeEnd)
	}

	a, b := events[0], events[1]
	sep := b.ValleyIndex - a.ValleyIndex
	minSep := float64(len(series)) * MinSeparationPct
	assert.True(t, float64(sep) >= minSep || b.Rise > a.Rise)
}
