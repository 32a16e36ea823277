package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/chromedp/chromedp"

	"medcred/internal/providers"
	"medcred/internal/registry"
	"medcred/pkg/requestcontext"
)

const providerID = "registry"

// SearchConfig describes the registry search form. Selectors are CSS and
// evaluated with querySelector, so a selector list matches either marker.
type SearchConfig struct {
	URL              string
	NavTimeout       time.Duration
	InputSelector    string
	SubmitSelector   string
	ResultsSelector  string
	NotFoundSelector string
}

// DefaultSearchConfig targets the public professional registry form.
func DefaultSearchConfig(searchURL string, navTimeout time.Duration) SearchConfig {
	return SearchConfig{
		URL:              searchURL,
		NavTimeout:       navTimeout,
		InputSelector:    `input[name="cedula"]`,
		SubmitSelector:   `button[type="submit"], input[type="submit"]`,
		ResultsSelector:  `table#resultados, .resultado table`,
		NotFoundSelector: `.sin-resultados, #no-results`,
	}
}

// Searcher implements registry.Searcher on a pooled browser tab.
type Searcher struct {
	pool   *Pool
	cfg    SearchConfig
	logger *slog.Logger
}

func NewSearcher(pool *Pool, cfg SearchConfig, logger *slog.Logger) (*Searcher, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	if _, err := url.ParseRequestURI(cfg.URL); err != nil {
		return nil, fmt.Errorf("invalid registry search url: %w", err)
	}
	if cfg.NavTimeout <= 0 {
		return nil, errors.New("navigation timeout must be positive")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Searcher{pool: pool, cfg: cfg, logger: logger}, nil
}

var _ registry.Searcher = (*Searcher)(nil)

// Search fills the form on a free tab, waits for results or the not-found
// marker within NavTimeout, and parses the page.
func (s *Searcher) Search(ctx context.Context, documentNumber string) ([]registry.Candidate, error) {
	tab, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, providers.Classify(providerID, err)
	}
	defer s.pool.Release(tab)

	navCtx, cancel := context.WithTimeout(tab.Context(), s.cfg.NavTimeout)
	defer cancel()
	// Caller cancellation must abort the navigation too; the tab context is
	// not derived from ctx.
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var page string
	err = chromedp.Run(navCtx,
		chromedp.Navigate(s.cfg.URL),
		chromedp.WaitVisible(s.cfg.InputSelector, chromedp.ByQuery),
		chromedp.Clear(s.cfg.InputSelector, chromedp.ByQuery),
		chromedp.SendKeys(s.cfg.InputSelector, documentNumber, chromedp.ByQuery),
		chromedp.Click(s.cfg.SubmitSelector, chromedp.ByQuery),
		chromedp.WaitReady(s.cfg.ResultsSelector+", "+s.cfg.NotFoundSelector, chromedp.ByQuery),
		chromedp.OuterHTML("html", &page, chromedp.ByQuery),
	)
	if err != nil {
		return nil, s.navigationError(ctx, navCtx, tab, err)
	}

	rows, err := registry.ParseResults(page)
	if err != nil {
		return nil, providers.NewProviderError(providers.ErrorBadData, providerID, "unparseable results page", err)
	}
	s.logger.DebugContext(ctx, "registry page parsed",
		"rows", len(rows),
		"request_id", requestcontext.RequestID(ctx),
	)
	return rows, nil
}

func (s *Searcher) navigationError(ctx, navCtx context.Context, tab *Tab, err error) error {
	switch {
	case ctx.Err() != nil:
		return providers.Classify(providerID, ctx.Err())
	case errors.Is(navCtx.Err(), context.DeadlineExceeded):
		return providers.NewProviderError(providers.ErrorTimeout, providerID,
			fmt.Sprintf("no results within %s", s.cfg.NavTimeout), err)
	default:
		// Target crashed or detached; the browser stays, the tab goes.
		tab.MarkBroken()
		return providers.NewProviderError(providers.ErrorProviderOutage, providerID, "browser navigation failed", err)
	}
}
