// Package browser drives the registry website with one long-lived headless
// Chrome process and a fixed pool of tabs.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"golang.org/x/sync/errgroup"

	"medcred/internal/registry/metrics"
)

// ErrPoolClosed is returned by Acquire after Close.
var ErrPoolClosed = errors.New("browser pool closed")

// Tab is one browser target. A tab is used by one lookup at a time.
type Tab struct {
	ctx    context.Context
	cancel context.CancelFunc
	broken bool
}

// Context carries the chromedp target; derive per-request timeouts from it.
func (t *Tab) Context() context.Context { return t.ctx }

// MarkBroken makes Release discard the tab and open a fresh one.
func (t *Tab) MarkBroken() { t.broken = true }

type tabFactory func() (context.Context, context.CancelFunc, error)

// Pool hands out tabs from a single browser. Callers beyond the pool size
// queue in Acquire; the browser process itself is never restarted.
type Pool struct {
	slots   chan *Tab
	newTab  tabFactory
	logger  *slog.Logger
	metrics *metrics.Metrics

	shutdown  func()
	closed    chan struct{}
	closeOnce sync.Once
}

// Config controls the browser process.
type Config struct {
	Size       int
	Headless   bool
	ChromePath string
}

type Option func(*Pool)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Pool) {
		p.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pool) {
		p.metrics = m
	}
}

// NewPool starts Chrome and opens cfg.Size tabs in parallel.
func NewPool(ctx context.Context, cfg Config, opts ...Option) (*Pool, error) {
	if cfg.Size < 1 {
		return nil, fmt.Errorf("pool size must be at least 1, got %d", cfg.Size)
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.DisableGPU,
		chromedp.NoSandbox,
		chromedp.WindowSize(1280, 900),
	)
	if cfg.ChromePath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(cfg.ChromePath))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// The first Run on the browser context launches the process.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("start browser: %w", err)
	}

	factory := func() (context.Context, context.CancelFunc, error) {
		tabCtx, cancel := chromedp.NewContext(browserCtx)
		if err := chromedp.Run(tabCtx); err != nil {
			cancel()
			return nil, nil, fmt.Errorf("open tab: %w", err)
		}
		return tabCtx, cancel, nil
	}

	p := newPool(cfg.Size, factory, func() {
		browserCancel()
		allocCancel()
	}, opts...)

	if err := p.warm(ctx, cfg.Size); err != nil {
		p.Close()
		return nil, err
	}
	p.logger.InfoContext(ctx, "browser pool ready", "tabs", cfg.Size, "headless", cfg.Headless)
	return p, nil
}

// newPool builds a pool of empty slots; tabs open lazily on Acquire unless
// warm fills them first.
func newPool(size int, factory tabFactory, shutdown func(), opts ...Option) *Pool {
	p := &Pool{
		slots:    make(chan *Tab, size),
		newTab:   factory,
		logger:   slog.Default(),
		shutdown: shutdown,
		closed:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	for range size {
		p.slots <- &Tab{}
	}
	return p
}

func (p *Pool) warm(ctx context.Context, size int) error {
	tabs := make([]*Tab, 0, size)
	for range size {
		tabs = append(tabs, <-p.slots)
	}
	g, _ := errgroup.WithContext(ctx)
	for _, tab := range tabs {
		g.Go(func() error {
			return p.open(tab)
		})
	}
	err := g.Wait()
	for _, tab := range tabs {
		p.slots <- tab
	}
	return err
}

func (p *Pool) open(tab *Tab) error {
	ctx, cancel, err := p.newTab()
	if err != nil {
		return err
	}
	tab.ctx, tab.cancel, tab.broken = ctx, cancel, false
	return nil
}

// Acquire blocks until a tab is free, ctx is done, or the pool closes.
func (p *Pool) Acquire(ctx context.Context) (*Tab, error) {
	start := time.Now()
	var tab *Tab
	select {
	case <-p.closed:
		return nil, ErrPoolClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	case tab = <-p.slots:
	}
	if p.metrics != nil {
		p.metrics.ObservePoolWait(time.Since(start))
	}

	if tab.ctx == nil {
		if err := p.open(tab); err != nil {
			p.slots <- tab
			return nil, err
		}
	}
	if p.metrics != nil {
		p.metrics.TabAcquired()
	}
	return tab, nil
}

// Release returns tab to the pool. A broken tab is closed and its slot
// reopened lazily by the next Acquire.
func (p *Pool) Release(tab *Tab) {
	if tab == nil {
		return
	}
	if p.metrics != nil {
		p.metrics.TabReleased()
	}
	if tab.broken {
		if tab.cancel != nil {
			tab.cancel()
		}
		tab.ctx, tab.cancel, tab.broken = nil, nil, false
		if p.metrics != nil {
			p.metrics.TabReplaced()
		}
		p.logger.Warn("browser tab replaced")
	}
	select {
	case <-p.closed:
		if tab.cancel != nil {
			tab.cancel()
		}
	default:
		p.slots <- tab
	}
}

// Close cancels every idle tab and stops the browser. Tabs still checked
// out die with the browser.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		close(p.closed)
		for {
			select {
			case tab := <-p.slots:
				if tab.cancel != nil {
					tab.cancel()
				}
			default:
				if p.shutdown != nil {
					p.shutdown()
				}
				return
			}
		}
	})
}
