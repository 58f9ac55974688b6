package learning

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "training-data.json")
	store := NewStore(path)

	existing, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, existing)

	userFirst := Point{X: 105, Y: 210}
	sample := NewSample("Farm A", "2026-01-06", Point{X: 100, Y: 200}, Point{X: 300, Y: 200}, &userFirst, nil, "", time.Unix(0, 0))
	require.NoError(t, store.Append(sample))

	loaded, err := store.Load()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	require.NotNil(t, loaded[0].OffsetFirst)
	assert.Equal(t, 5.0, loaded[0].OffsetFirst.X)
	assert.Equal(t, 10.0, loaded[0].OffsetFirst.Y)
	assert.Nil(t, loaded[0].OffsetLast)
}

func TestAveragedOffsets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "training-data.json")
	store := NewStore(path)

	u1 := Point{X: 110, Y: 210}
	u2 := Point{X: 90, Y: 190}
	require.NoError(t, store.Append(NewSample("A", "d1", Point{X: 100, Y: 200}, Point{X: 300, Y: 200}, &u1, nil, "", time.Unix(0, 0))))
	require.NoError(t, store.Append(NewSample("A", "d2", Point{X: 100, Y: 200}, Point{X: 300, Y: 200}, &u2, nil, "", time.Unix(0, 0))))
	// No user correction: must not contribute to the average.
	require.NoError(t, store.Append(NewSample("A", "d3", Point{X: 100, Y: 200}, Point{X: 300, Y: 200}, nil, nil, "", time.Unix(0, 0))))

	offsets, err := store.AveragedOffsets()
	require.NoError(t, err)
	assert.Equal(t, 0.0, offsets.First.X)
	assert.Equal(t, 0.0, offsets.First.Y)
	assert.Equal(t, Point{}, offsets.Last)
}

func TestAveragedOffsetsOnMissingFile(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "missing.json"))
	offsets, err := store.AveragedOffsets()
	require.NoError(t, err)
	assert.Equal(t, Offsets{}, offsets)
}
