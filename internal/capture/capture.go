// Package capture implements the network interceptor (C3): it observes
// every response the browser driver reports and retains the first one
// that looks like a node.* sensor payload for the navigation currently
// being watched.
package capture

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/soilwatch/irrigation-automation/internal/browser"
)

// ErrCaptureTimeout is returned by WaitForCapture when no matching
// response arrives within the deadline.
var ErrCaptureTimeout = errors.New("capture: timed out waiting for sensor payload")

// pollInterval is how often WaitForCapture checks the buffer.
const pollInterval = 100 * time.Millisecond

// Payload is a captured sensor response (spec §4.3).
type Payload struct {
	Body       []byte
	URL        string
	CapturedAt time.Time
}

// Interceptor is a single-slot, overwrite-once capture buffer. Only the
// first matching response per Arm is retained; later matches are
// ignored until the next Arm.
type Interceptor struct {
	mu      sync.Mutex
	slot    *Payload
	armed   bool
	handler browser.ResponseHandler
}

// New creates an Interceptor and subscribes it to driver's observed
// responses. Callers must Arm before initiating navigation: arming after
// navigation may miss the response (spec §4.3).
func New(driver browser.Driver) *Interceptor {
	ic := &Interceptor{}
	driver.OnResponse(ic.onResponse)
	return ic
}

// Arm clears the capture slot and begins accepting the next matching
// response. Call this before Goto.
func (ic *Interceptor) Arm() {
	ic.mu.Lock()
	defer ic.mu.Unlock()
	ic.slot = nil
	ic.armed = true
}

func (ic *Interceptor) onResponse(resp browser.Response) {
	if !isMatch(resp) {
		return
	}

	ic.mu.Lock()
	defer ic.mu.Unlock()
	if !ic.armed || ic.slot != nil {
		return
	}
	ic.slot = &Payload{Body: resp.Body, URL: resp.URL, CapturedAt: resp.CapturedAt}
}

// isMatch applies the response filters from spec §4.3: fetch/xhr method,
// status 200, JSON content type, parseable body with a top-level node.*
// key.
func isMatch(resp browser.Response) bool {
	method := strings.ToLower(resp.Method)
	if method != "fetch" && method != "xhr" {
		return false
	}
	if resp.Status != 200 {
		return false
	}
	if !strings.Contains(strings.ToLower(resp.ContentType), "json") {
		return false
	}

	var root map[string]json.RawMessage
	if err := json.Unmarshal(resp.Body, &root); err != nil {
		return false
	}
	for key := range root {
		if strings.HasPrefix(key, "node.") {
			return true
		}
	}
	return false
}

// WaitForCapture polls the buffer at pollInterval until a payload is
// captured, ctx is cancelled, or timeout elapses.
func (ic *Interceptor) WaitForCapture(ctx context.Context, timeout time.Duration) (Payload, error) {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		ic.mu.Lock()
		slot := ic.slot
		ic.mu.Unlock()
		if slot != nil {
			return *slot, nil
		}

		if time.Now().After(deadline) {
			return Payload{}, ErrCaptureTimeout
		}

		select {
		case <-ctx.Done():
			return Payload{}, ctx.Err()
		case <-ticker.C:
		}
	}
}
