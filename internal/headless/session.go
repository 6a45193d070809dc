// Package headless renders pages in Chrome for providers that gate or build
// their content with JavaScript.
package headless

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// stealthScript runs before every document load and hides the usual
// automation tells: webdriver flag, empty plugin and language lists, and the
// missing window.chrome object.
const stealthScript = `
Object.defineProperty(navigator, 'webdriver', {get: () => undefined});
Object.defineProperty(navigator, 'plugins', {get: () => [1, 2, 3, 4, 5]});
Object.defineProperty(navigator, 'languages', {get: () => ['zh-CN', 'zh', 'en-US', 'en']});
window.chrome = {runtime: {}};
`

// Options configures the render session.
type Options struct {
	MaxParallel int
	NavTimeout  time.Duration
	ChromePath  string
	UserAgent   string
	DomainQPS   float64
}

// Session renders pages with headless Chrome. Every Render call gets its own
// browser process and a disposable profile directory, so concurrent renders
// never share cookies or local storage.
type Session struct {
	opts           Options
	logger         *zap.Logger
	sem            chan struct{}
	domainLimiters sync.Map
}

// NewSession creates a render session.
func NewSession(opts Options, logger *zap.Logger) *Session {
	if opts.MaxParallel <= 0 {
		opts.MaxParallel = 1
	}
	if opts.NavTimeout <= 0 {
		opts.NavTimeout = 25 * time.Second
	}
	if opts.DomainQPS <= 0 {
		opts.DomainQPS = 0.5
	}
	return &Session{
		opts:   opts,
		logger: logger,
		sem:    make(chan struct{}, opts.MaxParallel),
	}
}

// Render navigates to rawURL in a fresh browser and returns the settled DOM.
func (s *Session) Render(ctx context.Context, rawURL string) (string, error) {
	release, err := s.acquireSlot(ctx)
	if err != nil {
		return "", err
	}
	defer release()

	if err := s.waitDomainBudget(ctx, rawURL); err != nil {
		return "", fmt.Errorf("render rate limit: %w", err)
	}

	profileDir, err := os.MkdirTemp("", "newswatch-chrome-*")
	if err != nil {
		return "", fmt.Errorf("create profile dir: %w", err)
	}
	defer func() {
		if rmErr := os.RemoveAll(profileDir); rmErr != nil {
			s.logger.Warn("failed to remove browser profile", zap.Error(rmErr))
		}
	}()

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("no-first-run", true),
		chromedp.UserDataDir(profileDir),
	)
	if s.opts.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(s.opts.UserAgent))
	}
	if s.opts.ChromePath != "" {
		opts = append(opts, chromedp.ExecPath(s.opts.ChromePath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)
	defer cancelTab()
	taskCtx, cancelTask := context.WithTimeout(tabCtx, s.opts.NavTimeout)
	defer cancelTask()

	var html string
	tasks := chromedp.Tasks{
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(stealthScript).Do(ctx)
			return err
		}),
		emulation.SetUserAgentOverride(s.userAgent()),
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	}
	if err := chromedp.Run(taskCtx, tasks); err != nil {
		return "", fmt.Errorf("chromedp run: %w", err)
	}
	return html, nil
}

func (s *Session) userAgent() string {
	if s.opts.UserAgent != "" {
		return s.opts.UserAgent
	}
	return "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
}

func (s *Session) acquireSlot(ctx context.Context) (func(), error) {
	select {
	case s.sem <- struct{}{}:
		return func() { <-s.sem }, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("acquire render slot: %w", ctx.Err())
	}
}

func (s *Session) waitDomainBudget(ctx context.Context, rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parse render url: %w", err)
	}
	host := strings.ToLower(parsed.Host)
	val, _ := s.domainLimiters.LoadOrStore(host, rate.NewLimiter(rate.Limit(s.opts.DomainQPS), 1))
	limiter, ok := val.(*rate.Limiter)
	if !ok {
		return fmt.Errorf("unexpected limiter type %T", val)
	}
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("wait limiter: %w", err)
	}
	return nil
}
