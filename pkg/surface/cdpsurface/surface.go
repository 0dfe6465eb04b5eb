// Package cdpsurface hosts the wallet page in Chrome through the DevTools protocol.
package cdpsurface

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
)

const logPrefix = "cdpsurface:surface"

// BindingName is the runtime binding the message shim forwards page messages through.
const BindingName = "__cwiBridgePost"

const defaultStartTimeout = 30 * time.Second

// Handlers receive what the page sends.
type Handlers struct {
	// OnMessage is called for every page message, in order, on the event goroutine.
	OnMessage func(name, body string)
	// OnLoad is called on its own goroutine after every page load.
	OnLoad func()
}

// ConfirmFunc answers a page confirm dialog. Returning false declines it.
type ConfirmFunc func(message string) bool

// Config holds browser settings.
type Config struct {
	// RemoteURL attaches to a running Chrome instead of launching one.
	RemoteURL string
	Headless  bool
	StartURL  string
	UserAgent string
	// StartTimeout bounds browser start and first navigation.
	StartTimeout time.Duration
	Confirm      ConfirmFunc
}

// Surface is one Chrome tab hosting the wallet page.
type Surface struct {
	handlers Handlers
	confirm  ConfirmFunc

	allocCancel   context.CancelFunc
	browserCancel context.CancelFunc
	tabCtx        context.Context
	tabCancel     context.CancelFunc

	closeOnce sync.Once
}

// New starts or attaches to Chrome, installs the message shim and navigates to cfg.StartURL.
// With an empty StartURL the tab stays blank until Navigate.
func New(cfg Config, handlers Handlers) (*Surface, error) {
	if cfg.StartTimeout <= 0 {
		cfg.StartTimeout = defaultStartTimeout
	}
	if handlers.OnMessage == nil {
		handlers.OnMessage = func(string, string) {}
	}
	if handlers.OnLoad == nil {
		handlers.OnLoad = func() {}
	}
	confirm := cfg.Confirm
	if confirm == nil {
		confirm = func(string) bool { return false }
	}
	s := &Surface{handlers: handlers, confirm: confirm}

	var allocCtx context.Context
	if cfg.RemoteURL != "" {
		allocCtx, s.allocCancel = chromedp.NewRemoteAllocator(context.Background(), cfg.RemoteURL)
		slog.Info(fmt.Sprintf("%s - attaching to remote browser at %s", logPrefix, cfg.RemoteURL))
	} else {
		opts := make([]chromedp.ExecAllocatorOption, len(chromedp.DefaultExecAllocatorOptions))
		copy(opts, chromedp.DefaultExecAllocatorOptions[:])
		opts = append(opts,
			chromedp.Flag("headless", cfg.Headless),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.WindowSize(390, 844),
		)
		allocCtx, s.allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
		slog.Info(fmt.Sprintf("%s - launching local browser (headless=%t)", logPrefix, cfg.Headless))
	}

	var browserCtx context.Context
	browserCtx, s.browserCancel = chromedp.NewContext(allocCtx)
	s.tabCtx, s.tabCancel = chromedp.NewContext(browserCtx)

	// The first Run binds the tab session to tabCtx, so it must not run on a derived context.
	started := make(chan error, 1)
	go func() { started <- chromedp.Run(s.tabCtx) }()
	select {
	case err := <-started:
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("%s - failed to start browser: %w", logPrefix, err)
		}
	case <-time.After(cfg.StartTimeout):
		s.Close()
		return nil, fmt.Errorf("%s - browser did not start within %v", logPrefix, cfg.StartTimeout)
	}

	chromedp.ListenTarget(s.tabCtx, s.onEvent)

	setup := []chromedp.Action{
		runtime.AddBinding(BindingName),
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(shimScript(BindingName)).Do(ctx)
			return err
		}),
	}
	if cfg.UserAgent != "" {
		setup = append(setup, emulation.SetUserAgentOverride(cfg.UserAgent))
	}
	if cfg.StartURL != "" {
		setup = append(setup, chromedp.Navigate(cfg.StartURL))
	}

	rctx, cancel := context.WithTimeout(s.tabCtx, cfg.StartTimeout)
	defer cancel()
	if err := chromedp.Run(rctx, setup...); err != nil {
		s.Close()
		return nil, fmt.Errorf("%s - failed to prepare page: %w", logPrefix, err)
	}

	slog.Info(fmt.Sprintf("%s - tab ready (start url %q)", logPrefix, cfg.StartURL))
	return s, nil
}

// Deliver posts wireText into the page as a message event.
func (s *Surface) Deliver(ctx context.Context, wireText string) error {
	expr, err := deliverExpression(wireText)
	if err != nil {
		return err
	}

	rctx, cancel := context.WithCancel(s.tabCtx)
	defer cancel()
	if deadline, ok := ctx.Deadline(); ok {
		var dcancel context.CancelFunc
		rctx, dcancel = context.WithDeadline(rctx, deadline)
		defer dcancel()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(rctx, chromedp.Evaluate(expr, nil)); err != nil {
		return fmt.Errorf("%s - failed to post message: %w", logPrefix, err)
	}
	return nil
}

// Navigate loads url in the tab; the load runs OnLoad.
func (s *Surface) Navigate(ctx context.Context, url string) error {
	rctx, cancel := context.WithCancel(s.tabCtx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	if err := chromedp.Run(rctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("%s - failed to navigate to %s: %w", logPrefix, url, err)
	}
	return nil
}

// Close shuts the tab and the browser it launched.
func (s *Surface) Close() {
	s.closeOnce.Do(func() {
		if s.tabCancel != nil {
			s.tabCancel()
		}
		if s.browserCancel != nil {
			s.browserCancel()
		}
		if s.allocCancel != nil {
			s.allocCancel()
		}
		slog.Info(fmt.Sprintf("%s - browser closed", logPrefix))
	})
}

func (s *Surface) onEvent(ev any) {
	switch e := ev.(type) {
	case *runtime.EventBindingCalled:
		if e.Name != BindingName {
			return
		}
		name, body, err := parseBindingPayload(e.Payload)
		if err != nil {
			slog.Warn(fmt.Sprintf("%s - ignoring malformed page message: %v", logPrefix, err))
			return
		}
		s.handlers.OnMessage(name, body)
	case *page.EventLoadEventFired:
		go s.handlers.OnLoad()
	case *page.EventJavascriptDialogOpening:
		go s.answerDialog(e)
	}
}

func (s *Surface) answerDialog(e *page.EventJavascriptDialogOpening) {
	accept := true
	if e.Type == page.DialogTypeConfirm {
		accept = s.confirm(e.Message)
	}
	if err := chromedp.Run(s.tabCtx, page.HandleJavaScriptDialog(accept)); err != nil {
		slog.Warn(fmt.Sprintf("%s - failed to answer %s dialog: %v", logPrefix, e.Type, err))
	}
}

type bindingPayload struct {
	Name string `json:"name"`
	Body string `json:"body"`
}

func parseBindingPayload(payload string) (string, string, error) {
	var p bindingPayload
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return "", "", fmt.Errorf("%s - invalid binding payload: %w", logPrefix, err)
	}
	if p.Name == "" {
		return "", "", fmt.Errorf("%s - binding payload has no handler name", logPrefix)
	}
	return p.Name, p.Body, nil
}

func deliverExpression(wireText string) (string, error) {
	if !json.Valid([]byte(wireText)) {
		return "", fmt.Errorf("%s - refusing to post invalid JSON", logPrefix)
	}
	return "window.postMessage(" + wireText + ")", nil
}

// shimScript exposes window.webkit.messageHandlers[name].postMessage(body) on top of the binding.
func shimScript(binding string) string {
	return fmt.Sprintf(`(function () {
  if (window.webkit && window.webkit.messageHandlers) { return; }
  var post = function (name, body) {
    if (typeof body !== "string") { body = JSON.stringify(body); }
    window[%[1]q](JSON.stringify({ name: String(name), body: body }));
  };
  var handlers = new Proxy({}, {
    get: function (_, name) { return { postMessage: function (body) { post(name, body); } }; }
  });
  window.webkit = { messageHandlers: handlers };
})();`, binding)
}
