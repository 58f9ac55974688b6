package capture

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soilwatch/irrigation-automation/internal/browser"
)

func TestCaptureFirstMatchingResponse(t *testing.T) {
	fake := browser.NewFake()
	ic := New(fake)
	ic.Arm()

	fake.Emit(browser.Response{
		Method:      "XHR",
		Status:      200,
		ContentType: "application/json",
		Body:        []byte(`{"other":[1,2,3]}`),
	})
	fake.Emit(browser.Response{
		Method:      "Fetch",
		Status:      200,
		ContentType: "application/json; charset=utf-8",
		Body:        []byte(`{"node.123":[{"slabwgt_1":1.0}]}`),
		URL:         "https://example.test/api/sensor",
	})
	fake.Emit(browser.Response{
		Method:      "Fetch",
		Status:      200,
		ContentType: "application/json",
		Body:        []byte(`{"node.456":[{"slabwgt_1":2.0}]}`),
		URL:         "https://example.test/api/sensor2",
	})

	payload, err := ic.WaitForCapture(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, "https://example.test/api/sensor", payload.URL)
}

func TestCaptureTimeout(t *testing.T) {
	fake := browser.NewFake()
	ic := New(fake)
	ic.Arm()

	_, err := ic.WaitForCapture(context.Background(), 50*time.Millisecond)
	assert.ErrorIs(t, err, ErrCaptureTimeout)
}

func TestCaptureIgnoresNonJSONAndNonMatchingStatus(t *testing.T) {
	fake := browser.NewFake()
	ic := New(fake)
	ic.Arm()

	fake.Emit(browser.Response{Method: "Fetch", Status: 404, ContentType: "application/json", Body: []byte(`{"node.1":[]}`)})
	fake.Emit(browser.Response{Method: "Fetch", Status: 200, ContentType: "text/html", Body: []byte(`{"node.1":[]}`)})
	fake.Emit(browser.Response{Method: "Document", Status: 200, ContentType: "application/json", Body: []byte(`{"node.1":[]}`)})

	_, err := ic.WaitForCapture(context.Background(), 50*time.Millisecond)
	assert.ErrorIs(t, err, ErrCaptureTimeout)
}

func TestArmResetsSlotForNextNavigation(t *testing.T) {
	fake := browser.NewFake()
	ic := New(fake)
	ic.Arm()
	fake.Emit(browser.Response{Method: "Fetch", Status: 200, ContentType: "application/json", Body: []byte(`{"node.1":[]}`), URL: "first"})

	first, err := ic.WaitForCapture(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, "first", first.URL)

	ic.Arm()
	fake.Emit(browser.Response{Method: "Fetch", Status: 200, ContentType: "application/json", Body: []byte(`{"node.1":[]}`), URL: "second"})
	second, err := ic.WaitForCapture(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, "second", second.URL)
}
