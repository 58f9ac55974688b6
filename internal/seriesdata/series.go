// Package seriesdata parses the sensor payload intercepted from the
// target dashboard's network traffic into a normalized time series.
package seriesdata

import (
	"errors"
	"time"
)

// MinPoints is the shortest series length considered analyzable.
const MinPoints = 10

// Point is a single normalized sample.
type Point struct {
	T time.Time
	Y float64
}

// Series is an ordered, non-decreasing-in-time sequence of points
// attributed to a single (farm, date) navigation.
type Series []Point

// YRange returns max(y) - min(y) across the series.
func (s Series) YRange() float64 {
	if len(s) == 0 {
		return 0
	}
	lo, hi := s[0].Y, s[0].Y
	for _, p := range s[1:] {
		if p.Y < lo {
			lo = p.Y
		}
		if p.Y > hi {
			hi = p.Y
		}
	}
	return hi - lo
}

// Errors returned by Extract. Callers should use errors.Is.
var (
	ErrNoKnownShape    = errors.New("seriesdata: no known payload shape matched")
	ErrNoNumericSensor = errors.New("seriesdata: no usable numeric sensor field found")
	ErrTooFewPoints    = errors.New("seriesdata: fewer than MinPoints usable samples")
)
