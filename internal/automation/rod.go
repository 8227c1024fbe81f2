package automation

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/meneportal/veritas/internal/domain"
	"go.uber.org/zap"
)

// RodExecutor drives a headless Chromium via rod. One page is kept per
// session identifier so agents don't stomp on each other's navigation
// state. Every command reports failures inside the result payload; the
// executor never surfaces a Go error to callers.
type RodExecutor struct {
	headless      bool
	timeout       time.Duration
	screenshotDir string
	logger        *zap.Logger

	mu       sync.Mutex
	browser  *rod.Browser
	launcher *launcher.Launcher
	pages    map[string]*rod.Page
}

func NewRodExecutor(headless bool, timeout time.Duration, screenshotDir string, logger *zap.Logger) *RodExecutor {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if screenshotDir == "" {
		screenshotDir = os.TempDir()
	}
	return &RodExecutor{
		headless:      headless,
		timeout:       timeout,
		screenshotDir: screenshotDir,
		logger:        logger,
		pages:         make(map[string]*rod.Page),
	}
}

// Start launches the browser. Safe to call once before serving.
func (e *RodExecutor) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.browser != nil {
		return nil
	}

	l := launcher.New().Headless(e.headless)
	controlURL, err := l.Launch()
	if err != nil {
		return fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Cleanup()
		return fmt.Errorf("connect browser: %w", err)
	}

	e.launcher = l
	e.browser = browser
	e.logger.Info("browser automation started", zap.Bool("headless", e.headless))
	return nil
}

// Stop closes all pages and the browser.
func (e *RodExecutor) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	for id, page := range e.pages {
		if err := page.Close(); err != nil {
			e.logger.Warn("failed to close page", zap.String("session", id), zap.Error(err))
		}
	}
	e.pages = make(map[string]*rod.Page)

	if e.browser != nil {
		if err := e.browser.Close(); err != nil {
			e.logger.Warn("failed to close browser", zap.Error(err))
		}
		e.browser = nil
	}
	if e.launcher != nil {
		e.launcher.Cleanup()
		e.launcher = nil
	}
}

func (e *RodExecutor) page(session string) (*rod.Page, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.browser == nil {
		return nil, fmt.Errorf("browser not started")
	}
	if page, ok := e.pages[session]; ok {
		return page, nil
	}

	page, err := e.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}
	e.pages[session] = page
	return page, nil
}

func errResult(err error) domain.AutomationResult {
	return domain.AutomationResult{Status: "error", Error: err.Error()}
}

func okResult(data map[string]any) domain.AutomationResult {
	return domain.AutomationResult{Status: "ok", Data: data}
}

func (e *RodExecutor) Navigate(ctx context.Context, session, url string) domain.AutomationResult {
	page, err := e.page(session)
	if err != nil {
		return errResult(err)
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	p := page.Context(ctx)

	if err := p.Navigate(url); err != nil {
		return errResult(err)
	}
	if err := p.WaitLoad(); err != nil {
		return errResult(err)
	}

	info, err := p.Info()
	if err != nil {
		return errResult(err)
	}
	return okResult(map[string]any{"title": info.Title, "url": info.URL})
}

func (e *RodExecutor) Click(ctx context.Context, session, selector string) domain.AutomationResult {
	page, err := e.page(session)
	if err != nil {
		return errResult(err)
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	p := page.Context(ctx)

	el, err := p.Element(selector)
	if err != nil {
		return errResult(err)
	}
	text, err := el.Text()
	if err != nil {
		text = ""
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return errResult(err)
	}
	return okResult(map[string]any{"clicked_text": text})
}

func (e *RodExecutor) Extract(ctx context.Context, session, selector string) domain.AutomationResult {
	page, err := e.page(session)
	if err != nil {
		return errResult(err)
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	p := page.Context(ctx)

	els, err := p.Elements(selector)
	if err != nil {
		return errResult(err)
	}

	texts := make([]string, 0, len(els))
	for _, el := range els {
		t, err := el.Text()
		if err != nil {
			continue
		}
		texts = append(texts, t)
	}
	return okResult(map[string]any{"data": texts})
}

func (e *RodExecutor) Screenshot(ctx context.Context, session string) domain.AutomationResult {
	page, err := e.page(session)
	if err != nil {
		return errResult(err)
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	p := page.Context(ctx)

	data, err := p.Screenshot(true, nil)
	if err != nil {
		return errResult(err)
	}

	path := filepath.Join(e.screenshotDir, fmt.Sprintf("screenshot_%s_%d.png", session, time.Now().Unix()))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errResult(err)
	}
	return okResult(map[string]any{"path": path})
}
