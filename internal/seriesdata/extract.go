package seriesdata

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// sensorKeyPreference lists substrings of an entry's object keys, in the
// order they should be preferred when selecting the sensor field of a
// node.* payload.
var sensorKeyPreference = []string{"slabwgt", "slabvwc", "calslabvwc"}

// maxLeadingEmpty is the number of leading empty entries tolerated before
// the node.* sensor key is fixed for the remainder of the series.
const maxLeadingEmpty = 20

// epoch is the synthetic time origin used when a sample carries no usable
// timestamp of its own; minute-resolution samples are assumed, so index i
// maps to epoch + i minutes.
var epoch = time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)

// Extract parses a JSON payload believed to contain a single-node sensor
// series, trying each recognized shape in priority order (spec §4.1) and
// returning the first successful normalization.
func Extract(raw []byte) (Series, error) {
	var root any
	if err := json.Unmarshal(raw, &root); err != nil {
		return nil, fmt.Errorf("%w: invalid json: %v", ErrNoKnownShape, err)
	}

	entries, isNodeShape, err := locateEntries(root)
	if err != nil {
		return nil, err
	}

	var series Series
	if isNodeShape {
		series, err = extractNodeShape(entries)
	} else {
		series, err = extractGenericEntries(entries)
	}
	if err != nil {
		return nil, err
	}

	sortByTime(series)

	if len(series) < MinPoints {
		return nil, fmt.Errorf("%w: got %d", ErrTooFewPoints, len(series))
	}
	return series, nil
}

// locateEntries tries shapes 1-5 in order and returns the raw per-sample
// entries plus whether they came from the node.* shape (which requires the
// specialized sensor-key-selection path).
func locateEntries(root any) (entries []any, isNodeShape bool, err error) {
	// Shape 1: object with a top-level key matching "node.*".
	if obj, ok := root.(map[string]any); ok {
		for key, val := range obj {
			if strings.HasPrefix(key, "node.") {
				arr, ok := val.([]any)
				if ok {
					return arr, true, nil
				}
			}
		}

		// Shape 2: {data: [...]}.
		if arr, ok := obj["data"].([]any); ok {
			return arr, false, nil
		}

		// Shape 3: {series: [{data: [...]}]}.
		if seriesArr, ok := obj["series"].([]any); ok && len(seriesArr) > 0 {
			if first, ok := seriesArr[0].(map[string]any); ok {
				if arr, ok := first["data"].([]any); ok {
					return arr, false, nil
				}
			}
		}

		// Shape 4: {items: [...]}.
		if arr, ok := obj["items"].([]any); ok {
			return arr, false, nil
		}

		return nil, false, ErrNoKnownShape
	}

	// Shape 5: root is an array.
	if arr, ok := root.([]any); ok {
		return arr, false, nil
	}

	return nil, false, ErrNoKnownShape
}

// extractNodeShape normalizes node.* entries: skip up to maxLeadingEmpty
// empty leading entries while probing for the sensor key, fix that key for
// the rest of the series, and discard entries missing a real number there.
func extractNodeShape(entries []any) (Series, error) {
	sensorKey := ""
	series := make(Series, 0, len(entries))

	for i, raw := range entries {
		obj, ok := raw.(map[string]any)
		if !ok || len(obj) == 0 {
			if sensorKey == "" {
				if i >= maxLeadingEmpty {
					return nil, ErrNoNumericSensor
				}
				continue
			}
			continue
		}

		if sensorKey == "" {
			sensorKey = selectSensorKey(obj)
			if sensorKey == "" {
				if i >= maxLeadingEmpty {
					return nil, ErrNoNumericSensor
				}
				continue
			}
		}

		val, present := obj[sensorKey]
		y, isNum := toFloat(val)
		if !present || !isNum {
			continue
		}

		t := resolveEntryTime(obj, i)
		series = append(series, Point{T: t, Y: y})
	}

	if sensorKey == "" {
		return nil, ErrNoNumericSensor
	}
	return series, nil
}

// selectSensorKey returns the object key whose name contains one of
// sensorKeyPreference's substrings, in preference order, or "" if none of
// the entry's keys match any preferred substring. Real payloads carry
// several keys per tier (e.g. multiple `slabwgt_N` probes), and Go's map
// iteration order is randomized per run, so candidates within a tier are
// sorted lexicographically before the first is picked — otherwise the
// fixed sensor key (and therefore the whole series) would vary between
// runs on the same input, violating idempotence. A key that also contains
// a longer preferred substring (calslabvwc_N contains "slabvwc") belongs
// to that longer substring's tier only.
func selectSensorKey(obj map[string]any) string {
	for _, pref := range sensorKeyPreference {
		var candidates []string
		for key := range obj {
			lower := strings.ToLower(key)
			if !strings.Contains(lower, pref) || inLongerTier(lower, pref) {
				continue
			}
			if _, isNum := toFloat(obj[key]); isNum {
				candidates = append(candidates, key)
			}
		}
		if len(candidates) == 0 {
			continue
		}
		sort.Strings(candidates)
		return candidates[0]
	}
	return ""
}

// inLongerTier reports whether key contains another preferred substring
// that itself contains pref.
func inLongerTier(key, pref string) bool {
	for _, other := range sensorKeyPreference {
		if other != pref && strings.Contains(other, pref) && strings.Contains(key, other) {
			return true
		}
	}
	return false
}

// extractGenericEntries normalizes shapes 2-5's per-entry forms:
// [t, y] arrays, {y: ...} objects, {value: ...} objects, and bare numbers.
func extractGenericEntries(entries []any) (Series, error) {
	series := make(Series, 0, len(entries))
	sawNumeric := false

	for i, raw := range entries {
		switch v := raw.(type) {
		case []any:
			if len(v) < 2 {
				continue
			}
			y, ok := toFloat(v[1])
			if !ok {
				continue
			}
			sawNumeric = true
			series = append(series, Point{T: resolveIndexOrNumericTime(v[0], i), Y: y})

		case map[string]any:
			if yv, ok := v["y"]; ok {
				y, isNum := toFloat(yv)
				if !isNum {
					continue
				}
				sawNumeric = true
				t := resolveEntryTime(v, i)
				series = append(series, Point{T: t, Y: y})
				continue
			}
			if valv, ok := v["value"]; ok {
				y, isNum := toFloat(valv)
				if !isNum {
					continue
				}
				sawNumeric = true
				t := resolveEntryTime(v, i)
				series = append(series, Point{T: t, Y: y})
				continue
			}

		default:
			y, ok := toFloat(v)
			if !ok {
				continue
			}
			sawNumeric = true
			series = append(series, Point{T: epoch.Add(time.Duration(i) * time.Minute), Y: y})
		}
	}

	if !sawNumeric {
		return nil, ErrNoNumericSensor
	}
	return series, nil
}

// resolveEntryTime reads timestamp/time/t/x fields from an object entry,
// falling back to the index-derived synthetic time axis.
func resolveEntryTime(obj map[string]any, index int) time.Time {
	for _, key := range []string{"timestamp", "time", "t", "x"} {
		if v, ok := obj[key]; ok {
			if t, ok := parseTimeValue(v); ok {
				return t
			}
		}
	}
	return epoch.Add(time.Duration(index) * time.Minute)
}

// resolveIndexOrNumericTime handles the [t, y] array form's first element.
func resolveIndexOrNumericTime(v any, index int) time.Time {
	if t, ok := parseTimeValue(v); ok {
		return t
	}
	return epoch.Add(time.Duration(index) * time.Minute)
}

// parseTimeValue interprets a JSON value as a timestamp: an RFC3339 string,
// or a unix-seconds/unix-milliseconds number (heuristically distinguished
// by magnitude).
func parseTimeValue(v any) (time.Time, bool) {
	switch x := v.(type) {
	case string:
		if t, err := time.Parse(time.RFC3339, x); err == nil {
			return t, true
		}
		if n, err := strconv.ParseFloat(x, 64); err == nil {
			return unixFromMagnitude(n), true
		}
	case float64:
		return unixFromMagnitude(x), true
	}
	return time.Time{}, false
}

func unixFromMagnitude(n float64) time.Time {
	if n > 1e12 {
		return time.UnixMilli(int64(n)).UTC()
	}
	return time.Unix(int64(n), 0).UTC()
}

// toFloat coerces a decoded JSON value to float64 if it is a real number.
func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case string:
		f, err := strconv.ParseFloat(x, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// sortByTime orders a series by time ascending; used defensively since
// some payload shapes do not guarantee ordering.
func sortByTime(s Series) {
	sort.SliceStable(s, func(i, j int) bool { return s[i].T.Before(s[j].T) })
}
