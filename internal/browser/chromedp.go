package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

// ChromeDriver implements Driver over a real headless Chrome instance via
// chromedp/cdproto, the same stack used for headless-browser automation
// elsewhere in the retrieval pack.
type ChromeDriver struct {
	allocCancel context.CancelFunc
	ctxCancel   context.CancelFunc
	ctx         context.Context
	handlers    []ResponseHandler
}

// NewChromeDriver returns an unlaunched driver; call Launch before use.
func NewChromeDriver() *ChromeDriver {
	return &ChromeDriver{}
}

func (d *ChromeDriver) Launch(ctx context.Context, headless bool) error {
	opts := append(chromedp.DefaultExecAllocatorOptions[:], chromedp.Flag("headless", headless))
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	chromeCtx, ctxCancel := chromedp.NewContext(allocCtx)

	if err := chromedp.Run(chromeCtx); err != nil {
		allocCancel()
		ctxCancel()
		return fmt.Errorf("browser launch: %w", err)
	}

	d.allocCancel = allocCancel
	d.ctxCancel = ctxCancel
	d.ctx = chromeCtx

	chromedp.ListenTarget(chromeCtx, func(ev any) {
		switch e := ev.(type) {
		case *network.EventResponseReceived:
			d.handleResponse(chromeCtx, e)
		}
	})

	return nil
}

func (d *ChromeDriver) handleResponse(ctx context.Context, e *network.EventResponseReceived) {
	if len(d.handlers) == 0 {
		return
	}
	resp := Response{
		URL:        e.Response.URL,
		Method:     e.Type.String(),
		Status:     int(e.Response.Status),
		CapturedAt: time.Now(),
	}
	if ct, ok := e.Response.Headers["content-type"]; ok {
		if s, ok := ct.(string); ok {
			resp.ContentType = s
		}
	}

	go func() {
		var body []byte
		_ = chromedp.Run(ctx, chromedp.ActionFunc(func(c context.Context) error {
			b, _, err := network.GetResponseBody(e.RequestID).Do(c)
			if err != nil {
				return err
			}
			body = b
			return nil
		}))
		resp.Body = body
		for _, h := range d.handlers {
			h(resp)
		}
	}()
}

func (d *ChromeDriver) Goto(ctx context.Context, url string, timeout time.Duration) error {
	tctx, cancel := context.WithTimeout(d.ctx, timeout)
	defer cancel()
	return chromedp.Run(tctx, chromedp.Navigate(url))
}

func (d *ChromeDriver) WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error {
	tctx, cancel := context.WithTimeout(d.ctx, timeout)
	defer cancel()
	return chromedp.Run(tctx, chromedp.WaitReady(selector, chromedp.ByQuery))
}

func (d *ChromeDriver) Evaluate(ctx context.Context, expr string, out any) error {
	if out == nil {
		return chromedp.Run(d.ctx, chromedp.Evaluate(expr, nil))
	}
	return chromedp.Run(d.ctx, chromedp.Evaluate(expr, out))
}

func (d *ChromeDriver) Click(ctx context.Context, selector string) error {
	return chromedp.Run(d.ctx, chromedp.Click(selector, chromedp.ByQuery))
}

func (d *ChromeDriver) MouseClickAt(ctx context.Context, x, y float64) error {
	return chromedp.Run(d.ctx, chromedp.MouseClickXY(x, y))
}

func (d *ChromeDriver) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := chromedp.Run(d.ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, err
	}
	return buf, nil
}

func (d *ChromeDriver) OuterHTML(ctx context.Context) (string, error) {
	var html string
	if err := chromedp.Run(d.ctx, chromedp.OuterHTML("html", &html)); err != nil {
		return "", err
	}
	return html, nil
}

func (d *ChromeDriver) OnResponse(handler ResponseHandler) {
	d.handlers = append(d.handlers, handler)
}

func (d *ChromeDriver) Close(ctx context.Context) error {
	if d.ctxCancel != nil {
		d.ctxCancel()
		d.ctxCancel = nil
	}
	if d.allocCancel != nil {
		d.allocCancel()
		d.allocCancel = nil
	}
	return nil
}
