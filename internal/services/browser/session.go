// -----
// Browser - headless Chrome rendering for JavaScript-heavy pages
// -----

package browser

import (
	"context"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/venator/internal/interfaces"
	"github.com/ternarybob/venator/internal/models"
)

const defaultRenderTimeout = 45 * time.Second

// Session renders pages in headless Chrome. Implements
// interfaces.BrowserSession. The allocator is created lazily so deployments
// without Chrome only pay when a render is requested.
type Session struct {
	allocCtx    context.Context
	allocCancel context.CancelFunc
	logger      arbor.ILogger
}

// NewSession creates a headless allocator.
func NewSession(logger arbor.ILogger) *Session {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	return &Session{allocCtx: allocCtx, allocCancel: allocCancel, logger: logger}
}

// Open navigates to the URL, runs the scripted actions, and captures the
// rendered DOM.
func (s *Session) Open(ctx context.Context, url string, actions []interfaces.BrowserAction) (*interfaces.RenderedPage, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultRenderTimeout)
		defer cancel()
	}

	tabCtx, tabCancel := chromedp.NewContext(s.allocCtx)
	defer tabCancel()

	// Bridge caller cancellation into the tab.
	go func() {
		select {
		case <-ctx.Done():
			tabCancel()
		case <-tabCtx.Done():
		}
	}()

	page := &interfaces.RenderedPage{URL: url}

	// Record the main-document status from the network domain.
	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		if resp, ok := ev.(*network.EventResponseReceived); ok {
			if resp.Type == network.ResourceTypeDocument && page.StatusCode == 0 {
				page.StatusCode = int(resp.Response.Status)
			}
		}
	})

	tasks := chromedp.Tasks{
		network.Enable(),
		network.SetExtraHTTPHeaders(network.Headers{"Accept-Language": "en-US,en;q=0.9"}),
		chromedp.Navigate(url),
		chromedp.WaitReady("body"),
	}
	for _, action := range actions {
		task, err := s.buildAction(action, page)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	tasks = append(tasks,
		chromedp.Title(&page.Title),
		chromedp.OuterHTML("html", &page.HTML),
	)

	start := time.Now()
	if err := chromedp.Run(tabCtx, tasks); err != nil {
		if ctx.Err() != nil {
			return nil, models.WrapError(models.KindTimeout, err, "render timed out")
		}
		return nil, models.WrapError(models.KindConnectError, err, "render failed")
	}

	s.logger.Debug().
		Str("url", url).
		Int("actions", len(actions)).
		Int("html_bytes", len(page.HTML)).
		Dur("duration", time.Since(start)).
		Msg("Page rendered")
	return page, nil
}

func (s *Session) buildAction(action interfaces.BrowserAction, page *interfaces.RenderedPage) (chromedp.Action, error) {
	switch action.Type {
	case "wait":
		if action.Selector != "" {
			return chromedp.WaitVisible(action.Selector), nil
		}
		millis := action.Millis
		if millis <= 0 {
			millis = 1000
		}
		return chromedp.Sleep(time.Duration(millis) * time.Millisecond), nil
	case "click":
		if action.Selector == "" {
			return nil, models.NewError(models.KindInvalidArgument, "click action requires a selector")
		}
		return chromedp.Click(action.Selector), nil
	case "scroll":
		return chromedp.Evaluate("window.scrollTo(0, document.body.scrollHeight)", nil), nil
	case "fill":
		if action.Selector == "" {
			return nil, models.NewError(models.KindInvalidArgument, "fill action requires a selector")
		}
		return chromedp.SendKeys(action.Selector, action.Value), nil
	case "screenshot":
		var buf []byte
		return chromedp.ActionFunc(func(ctx context.Context) error {
			if err := chromedp.FullScreenshot(&buf, 90).Do(ctx); err != nil {
				return err
			}
			page.Screenshots = append(page.Screenshots, buf)
			return nil
		}), nil
	default:
		return nil, models.NewError(models.KindInvalidArgument, "unknown browser action %q", action.Type)
	}
}

// Close releases the Chrome allocator.
func (s *Session) Close() error {
	s.allocCancel()
	return nil
}
