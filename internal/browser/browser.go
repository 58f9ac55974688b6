// Package browser defines the capability-set interface the detection core
// consumes from a headless browser (Design Notes §9, C10): launch,
// navigate, evaluate, click, screenshot and response observation. The core
// never imports chromedp directly; it depends on Driver so tests can
// substitute a fake implementation.
package browser

import (
	"context"
	"time"
)

// Response is the subset of an observed network response the capture
// package needs (spec §4.3): method, status, content type, URL and body.
type Response struct {
	URL         string
	Method      string
	Status      int
	ContentType string
	Body        []byte
	CapturedAt  time.Time
}

// ResponseHandler is invoked for every completed response the driver
// observes. It must not block.
type ResponseHandler func(Response)

// Driver is the capability set the irrigation core depends on. A single
// driver instance is exclusive to the orchestrator for the lifetime of a
// run (spec §5): one browser, one page, one in-flight navigation.
type Driver interface {
	// Launch starts (or attaches to) the browser and opens a page.
	Launch(ctx context.Context, headless bool) error

	// Goto navigates the current page to url and waits for the page to load.
	Goto(ctx context.Context, url string, timeout time.Duration) error

	// WaitForSelector polls for selector to exist, up to timeout.
	WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error

	// Evaluate runs a JS expression and decodes the result into out (may
	// be nil if the caller doesn't need a return value).
	Evaluate(ctx context.Context, expr string, out any) error

	// Click clicks the first element matching selector.
	Click(ctx context.Context, selector string) error

	// MouseClickAt dispatches a mouse click at absolute page coordinates.
	MouseClickAt(ctx context.Context, x, y float64) error

	// Screenshot captures the current page as PNG bytes.
	Screenshot(ctx context.Context) ([]byte, error)

	// OuterHTML returns the full page's outer HTML (for crash reports).
	OuterHTML(ctx context.Context) (string, error)

	// OnResponse registers a handler invoked for every observed network
	// response. Handlers must be armed before navigation to avoid missing
	// responses that fire during page load (spec §4.3).
	OnResponse(handler ResponseHandler)

	// Close releases browser resources. Safe to call more than once.
	Close(ctx context.Context) error
}
