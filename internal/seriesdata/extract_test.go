package seriesdata

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func marshal(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func TestExtract_NodeShape(t *testing.T) {
	entries := make([]map[string]any, 12)
	for i := range entries {
		entries[i] = map[string]any{"slabwgt_1": float64(i)}
	}
	payload := marshal(t, map[string]any{"node.1234": entries})

	series, err := Extract(payload)
	require.NoError(t, err)
	require.Len(t, series, 12)
	for i, p := range series {
		assert.Equal(t, float64(i), p.Y)
	}
	assert.True(t, isSorted(series))
}

func TestExtract_NodeShape_SkipsLeadingEmptyAndFixesSensorKey(t *testing.T) {
	entries := []map[string]any{
		{}, {}, {},
		{"slabvwc_1": 1.0, "calslabvwc_1": 2.0},
		{"slabvwc_1": 2.0},
		{"slabvwc_1": 3.0},
		{"slabvwc_1": 4.0},
		{"slabvwc_1": 5.0},
		{"slabvwc_1": 6.0},
		{"slabvwc_1": 7.0},
		{"slabvwc_1": 8.0},
		{"slabvwc_1": 9.0},
		{"slabvwc_1": 10.0},
	}
	payload := marshal(t, map[string]any{"node.9": entries})

	series, err := Extract(payload)
	require.NoError(t, err)
	require.Len(t, series, 10)
	assert.Equal(t, 1.0, series[0].Y)
	assert.Equal(t, 10.0, series[len(series)-1].Y)
}

func TestExtract_NodeShape_MoreThanMaxLeadingEmptyFails(t *testing.T) {
	entries := make([]map[string]any, maxLeadingEmpty+1)
	for i := range entries {
		entries[i] = map[string]any{}
	}
	entries = append(entries, map[string]any{"slabvwc_1": 1.0})
	payload := marshal(t, map[string]any{"node.9": entries})

	_, err := Extract(payload)
	assert.ErrorIs(t, err, ErrNoNumericSensor)
}

func TestExtract_NodeShape_NoNumericSensor(t *testing.T) {
	payload := marshal(t, map[string]any{
		"node.1": []map[string]any{{"label": "x"}, {"label": "y"}},
	})
	_, err := Extract(payload)
	assert.ErrorIs(t, err, ErrNoNumericSensor)
}

func TestExtract_DataShape(t *testing.T) {
	entries := make([]map[string]any, 15)
	for i := range entries {
		entries[i] = map[string]any{"y": float64(i * 2), "t": float64(1700000000 + i*60)}
	}
	payload := marshal(t, map[string]any{"data": entries})

	series, err := Extract(payload)
	require.NoError(t, err)
	require.Len(t, series, 15)
	assert.Equal(t, 0.0, series[0].Y)
	assert.Equal(t, 28.0, series[len(series)-1].Y)
}

func TestExtract_SeriesDataShape(t *testing.T) {
	entries := make([][]float64, 10)
	for i := range entries {
		entries[i] = []float64{float64(i), float64(i)}
	}
	payload := marshal(t, map[string]any{
		"series": []map[string]any{{"data": entries}},
	})

	series, err := Extract(payload)
	require.NoError(t, err)
	require.Len(t, series, 10)
}

func TestExtract_ItemsShape(t *testing.T) {
	entries := make([]map[string]any, 10)
	for i := range entries {
		entries[i] = map[string]any{"value": float64(i)}
	}
	payload := marshal(t, map[string]any{"items": entries})

	series, err := Extract(payload)
	require.NoError(t, err)
	require.Len(t, series, 10)
}

func TestExtract_BareArrayShape(t *testing.T) {
	entries := make([]float64, 10)
	for i := range entries {
		entries[i] = float64(i)
	}
	payload := marshal(t, entries)

	series, err := Extract(payload)
	require.NoError(t, err)
	require.Len(t, series, 10)
	for i, p := range series {
		assert.Equal(t, float64(i), p.Y)
		assert.Equal(t, epoch.Add(time.Duration(i)*time.Minute), p.T)
	}
}

func TestExtract_TooFewPoints(t *testing.T) {
	payload := marshal(t, map[string]any{
		"data": []map[string]any{{"y": 1.0}, {"y": 2.0}, {"y": 3.0}},
	})
	_, err := Extract(payload)
	assert.ErrorIs(t, err, ErrTooFewPoints)
}

func TestExtract_NoKnownShape(t *testing.T) {
	payload := marshal(t, map[string]any{"unrelated": "payload"})
	_, err := Extract(payload)
	assert.ErrorIs(t, err, ErrNoKnownShape)
}

func TestExtract_InvalidJSON(t *testing.T) {
	_, err := Extract([]byte(`not json`))
	assert.ErrorIs(t, err, ErrNoKnownShape)
}

func TestExtract_Idempotent(t *testing.T) {
	entries := make([]map[string]any, 20)
	for i := range entries {
		entries[i] = map[string]any{"y": float64(i), "t": float64(1700000000 - i*60)}
	}
	payload := marshal(t, map[string]any{"data": entries})

	first, err := Extract(payload)
	require.NoError(t, err)
	second, err := Extract(payload)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func isSorted(s Series) bool {
	for i := 1; i < len(s); i++ {
		if s[i].T.Before(s[i-1].T) {
			return false
		}
	}
	return true
}
