package browser

import (
	"context"
	"sync"
	"time"
)

// Fake is an in-memory Driver for tests. It records every call it
// receives and lets tests script responses, selector availability, and
// evaluate results without a real browser.
type Fake struct {
	mu sync.Mutex

	Launched    bool
	Navigations []string
	Clicks      []string
	MouseClicks [][2]float64
	Evaluated   []string
	Closed      bool

	// EvaluateResults maps an expression to the value Evaluate should
	// decode into the caller's out pointer (via a type switch on common
	// shapes used by the core).
	EvaluateResults map[string]any
	MissingSelector map[string]bool
	ScreenshotBytes []byte
	OuterHTMLText   string

	handlers []ResponseHandler
}

// NewFake returns a ready-to-use Fake driver.
func NewFake() *Fake {
	return &Fake{
		EvaluateResults: make(map[string]any),
		MissingSelector: make(map[string]bool),
	}
}

func (f *Fake) Launch(ctx context.Context, headless bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Launched = true
	return nil
}

func (f *Fake) Goto(ctx context.Context, url string, timeout time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Navigations = append(f.Navigations, url)
	return nil
}

func (f *Fake) WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.MissingSelector[selector] {
		return context.DeadlineExceeded
	}
	return nil
}

func (f *Fake) Evaluate(ctx context.Context, expr string, out any) error {
	f.mu.Lock()
	f.Evaluated = append(f.Evaluated, expr)
	result, ok := f.EvaluateResults[expr]
	f.mu.Unlock()
	if !ok || out == nil {
		return nil
	}
	switch o := out.(type) {
	case *string:
		if s, ok := result.(string); ok {
			*o = s
		}
	case *bool:
		if b, ok := result.(bool); ok {
			*o = b
		}
	case *[]string:
		if s, ok := result.([]string); ok {
			*o = s
		}
	case *float64:
		if v, ok := result.(float64); ok {
			*o = v
		}
	}
	return nil
}

func (f *Fake) Click(ctx context.Context, selector string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Clicks = append(f.Clicks, selector)
	return nil
}

func (f *Fake) MouseClickAt(ctx context.Context, x, y float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.MouseClicks = append(f.MouseClicks, [2]float64{x, y})
	return nil
}

func (f *Fake) Screenshot(ctx context.Context) ([]byte, error) {
	return f.ScreenshotBytes, nil
}

func (f *Fake) OuterHTML(ctx context.Context) (string, error) {
	return f.OuterHTMLText, nil
}

func (f *Fake) OnResponse(handler ResponseHandler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers = append(f.handlers, handler)
}

// Emit simulates an observed network response, invoking every registered
// handler. Tests use this to drive the capture package.
func (f *Fake) Emit(resp Response) {
	f.mu.Lock()
	handlers := append([]ResponseHandler(nil), f.handlers...)
	f.mu.Unlock()
	for _, h := range handlers {
		h(resp)
	}
}

func (f *Fake) Close(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}
