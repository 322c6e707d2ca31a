// Package browser drives a real Chrome page for the secondary context.
//
// A Session registers page commands (visit, title, text, click, viewport,
// exec) on an engine and resizes the page when the viewport is synced.
package browser

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/pithecene-io/specbridge/engine"
	"github.com/pithecene-io/specbridge/log"
)

// ErrSessionClosed is returned by commands run after Close.
var ErrSessionClosed = errors.New("browser session closed")

// Options configures a Session.
type Options struct {
	// Headless runs Chrome without a window. Default false means headed;
	// callers normally set it.
	Headless bool
	// ExecPath overrides the Chrome binary.
	ExecPath string
	// NoSandbox disables the Chrome sandbox (containers).
	NoSandbox bool
	// Logger defaults to a no-op logger.
	Logger *log.Logger
}

// Session is one browser tab shared by every flight of a secondary.
type Session struct {
	logger *log.Logger

	allocCancel context.CancelFunc
	ctx         context.Context
	cancel      context.CancelFunc

	mu     sync.Mutex
	closed bool
}

// New starts Chrome and opens a tab.
func New(ctx context.Context, opts Options) (*Session, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.Nop()
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if opts.NoSandbox {
		allocOpts = append(allocOpts, chromedp.NoSandbox)
	}
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.WithoutCancel(ctx), allocOpts...)
	sugar := logger.Sugar()
	tabCtx, cancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(sugar.Debugf),
		chromedp.WithErrorf(sugar.Errorf),
	)

	// The first Run launches the browser.
	if err := chromedp.Run(tabCtx); err != nil {
		cancel()
		allocCancel()
		return nil, fmt.Errorf("start browser: %w", err)
	}

	chromedp.ListenTarget(tabCtx, func(ev any) {
		if msg, ok := ev.(*runtime.EventConsoleAPICalled); ok {
			logger.Debug("page console", map[string]any{
				"type": string(msg.Type),
				"args": consoleArgs(msg.Args),
			})
		}
	})

	logger.Info("browser started", map[string]any{"headless": opts.Headless})
	return &Session{
		logger:      logger,
		allocCancel: allocCancel,
		ctx:         tabCtx,
		cancel:      cancel,
	}, nil
}

// Run executes actions in the session's tab, bounded by ctx.
func (s *Session) Run(ctx context.Context, actions ...chromedp.Action) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrSessionClosed
	}

	runCtx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// SyncViewport resizes the page. Implements domainfn.ViewportSyncer.
// A snapshot without dimensions leaves the page as it is.
func (s *Session) SyncViewport(ctx context.Context, width, height int) error {
	if width <= 0 || height <= 0 {
		return nil
	}
	return s.Run(ctx, chromedp.EmulateViewport(int64(width), int64(height)))
}

// Register installs the page commands on e.
func (s *Session) Register(e *engine.Engine) {
	e.Register("visit", s.visit)
	e.Register("title", s.title)
	e.Register("text", s.text)
	e.Register("click", s.click)
	e.Register("viewport", s.viewport)
	e.Register("exec", s.exec)
}

// Close shuts the tab and the browser. Safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.cancel()
	s.allocCancel()
	s.logger.Info("browser closed", nil)
	return nil
}

// visit(url) navigates and yields the final location. Relative URLs
// resolve against the baseUrl config value.
func (s *Session) visit(ctx context.Context, e *engine.Engine, _ any, args []any) (any, error) {
	raw, err := stringArg("visit", args, 0)
	if err != nil {
		return nil, err
	}
	target, err := resolveURL(e, raw)
	if err != nil {
		return nil, err
	}

	var location string
	if err := s.Run(ctx,
		chromedp.Navigate(target),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Location(&location),
	); err != nil {
		return nil, fmt.Errorf("visit %s: %w", target, err)
	}
	return location, nil
}

func (s *Session) title(ctx context.Context, _ *engine.Engine, _ any, _ []any) (any, error) {
	var title string
	if err := s.Run(ctx, chromedp.Title(&title)); err != nil {
		return nil, err
	}
	return title, nil
}

func (s *Session) text(ctx context.Context, _ *engine.Engine, _ any, args []any) (any, error) {
	sel, err := stringArg("text", args, 0)
	if err != nil {
		return nil, err
	}
	var text string
	if err := s.Run(ctx,
		chromedp.WaitVisible(sel, chromedp.ByQuery),
		chromedp.Text(sel, &text, chromedp.ByQuery),
	); err != nil {
		return nil, fmt.Errorf("text %s: %w", sel, err)
	}
	return strings.TrimSpace(text), nil
}

// click(selector) yields the previous subject.
func (s *Session) click(ctx context.Context, _ *engine.Engine, subject any, args []any) (any, error) {
	sel, err := stringArg("click", args, 0)
	if err != nil {
		return nil, err
	}
	if err := s.Run(ctx,
		chromedp.WaitVisible(sel, chromedp.ByQuery),
		chromedp.Click(sel, chromedp.ByQuery),
	); err != nil {
		return nil, fmt.Errorf("click %s: %w", sel, err)
	}
	return subject, nil
}

// viewport(width, height) resizes the page and records the new size in
// engine state.
func (s *Session) viewport(ctx context.Context, e *engine.Engine, subject any, args []any) (any, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("viewport: want 2 arguments, got %d", len(args))
	}
	w, okW := engine.ToFloat(args[0])
	h, okH := engine.ToFloat(args[1])
	if !okW || !okH {
		return nil, fmt.Errorf("viewport: dimensions must be numbers, got %v x %v", args[0], args[1])
	}
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("viewport: invalid size %vx%v", w, h)
	}
	if err := s.SyncViewport(ctx, int(w), int(h)); err != nil {
		return nil, err
	}
	e.State().SetAll(map[string]any{
		engine.KeyViewportWidth:  int(w),
		engine.KeyViewportHeight: int(h),
	})
	return subject, nil
}

// exec(expression) evaluates JavaScript in the page and yields the result.
func (s *Session) exec(ctx context.Context, _ *engine.Engine, _ any, args []any) (any, error) {
	expr, err := stringArg("exec", args, 0)
	if err != nil {
		return nil, err
	}
	var result any
	awaitPromise := func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
		return p.WithAwaitPromise(true)
	}
	if err := s.Run(ctx, chromedp.Evaluate(expr, &result, awaitPromise)); err != nil {
		return nil, fmt.Errorf("exec: %w", err)
	}
	return result, nil
}

func consoleArgs(args []*runtime.RemoteObject) string {
	parts := make([]string, 0, len(args))
	for _, arg := range args {
		switch {
		case arg.Value != nil:
			parts = append(parts, string(arg.Value))
		case arg.Description != "":
			parts = append(parts, arg.Description)
		}
	}
	return strings.Join(parts, " ")
}

func stringArg(cmd string, args []any, i int) (string, error) {
	if len(args) <= i {
		return "", fmt.Errorf("%s: missing argument %d", cmd, i+1)
	}
	s, ok := args[i].(string)
	if !ok || s == "" {
		return "", fmt.Errorf("%s: argument %d must be a non-empty string, got %T", cmd, i+1, args[i])
	}
	return s, nil
}

func resolveURL(e *engine.Engine, raw string) (string, error) {
	ref, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("visit: %w", err)
	}
	if ref.IsAbs() {
		return raw, nil
	}
	base, ok := e.ConfigValue("baseUrl")
	baseStr, isString := base.(string)
	if !ok || !isString || baseStr == "" {
		return "", fmt.Errorf("visit: relative url %q needs a baseUrl", raw)
	}
	baseURL, err := url.Parse(baseStr)
	if err != nil {
		return "", fmt.Errorf("visit: baseUrl: %w", err)
	}
	return baseURL.ResolveReference(ref).String(), nil
}
