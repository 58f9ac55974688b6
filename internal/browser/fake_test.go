package browser

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeRecordsNavigationAndClicks(t *testing.T) {
	f := NewFake()
	ctx := context.Background()

	require.NoError(t, f.Launch(ctx, true))
	require.NoError(t, f.Goto(ctx, "https://example.test/report/point/1/2?manager=alice&date=2026-01-06", 0))
	require.NoError(t, f.Click(ctx, "input[type=time]"))
	require.NoError(t, f.MouseClickAt(ctx, 10, 20))

	assert.True(t, f.Launched)
	assert.Equal(t, []string{"https://example.test/report/point/1/2?manager=alice&date=2026-01-06"}, f.Navigations)
	assert.Equal(t, []string{"input[type=time]"}, f.Clicks)
	assert.Equal(t, [][2]float64{{10, 20}}, f.MouseClicks)
}

func TestFakeMissingSelectorTimesOut(t *testing.T) {
	f := NewFake()
	f.MissingSelector[".highcharts-container"] = true
	err := f.WaitForSelector(context.Background(), ".highcharts-container", 0)
	assert.Error(t, err)
}

func TestFakeEmitInvokesHandlers(t *testing.T) {
	f := NewFake()
	var got Response
	f.OnResponse(func(r Response) { got = r })
	f.Emit(Response{URL: "https://example.test/api/data", Status: 200})
	assert.Equal(t, "https://example.test/api/data", got.URL)
}
