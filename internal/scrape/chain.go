package scrape

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/drmonteiro/brands-ai/internal/resilience"
)

const (
	// DefaultMinContent is the length below which the next provider is tried.
	DefaultMinContent = 500
	// DefaultMaxContent caps the content handed to later stages.
	DefaultMaxContent = 12000
	// DefaultConcurrency bounds parallel extraction in ScrapeAll.
	DefaultConcurrency = 3
)

// ErrNoContent is returned when no provider produced any content.
var ErrNoContent = eris.New("scrape: no content")

// Options tunes a Chain. Zero values select the defaults.
type Options struct {
	MinContent       int
	MaxContent       int
	Concurrency      int
	BreakerThreshold int
	BreakerCooldown  time.Duration
}

// Chain tries scrapers in priority order. Content at least MinContent long
// is returned straight away; otherwise the longest content seen wins. Each
// provider sits behind its own circuit breaker so a failing provider is
// skipped for a while instead of being called for every URL.
type Chain struct {
	scrapers []Scraper
	breakers []*resilience.Breaker
	opts     Options
}

// NewChain creates a Chain. Scrapers are tried in the order given.
func NewChain(opts Options, scrapers ...Scraper) *Chain {
	if opts.MinContent <= 0 {
		opts.MinContent = DefaultMinContent
	}
	if opts.MaxContent <= 0 {
		opts.MaxContent = DefaultMaxContent
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.BreakerThreshold <= 0 {
		opts.BreakerThreshold = 5
	}
	if opts.BreakerCooldown <= 0 {
		opts.BreakerCooldown = time.Minute
	}

	c := &Chain{scrapers: scrapers, opts: opts}
	for _, s := range scrapers {
		c.breakers = append(c.breakers, resilience.NewBreaker(s.Name(), opts.BreakerThreshold, opts.BreakerCooldown))
	}
	return c
}

// Scrape extracts one URL.
func (c *Chain) Scrape(ctx context.Context, targetURL string) (*Page, error) {
	var (
		best    *Page
		lastErr error
	)
	for i, s := range c.scrapers {
		br := c.breakers[i]
		if err := br.Allow(); err != nil {
			lastErr = err
			continue
		}

		page, err := s.Scrape(ctx, targetURL)
		br.Record(err)
		if err != nil {
			zap.L().Debug("scrape: provider failed, trying next",
				zap.String("scraper", s.Name()),
				zap.String("url", targetURL),
				zap.Error(err),
			)
			lastErr = err
			continue
		}

		page.Content = strings.TrimSpace(page.Content)
		if looksBlocked(page.Content) {
			zap.L().Debug("scrape: provider returned a challenge page",
				zap.String("scraper", s.Name()),
				zap.String("url", targetURL),
			)
			continue
		}
		if best == nil || len(page.Content) > len(best.Content) {
			best = page
		}
		if len(page.Content) >= c.opts.MinContent {
			break
		}
	}

	if best == nil || best.Content == "" {
		if lastErr != nil {
			return nil, eris.Wrap(lastErr, "scrape: all providers failed")
		}
		return nil, eris.Wrapf(ErrNoContent, "scrape: %s", targetURL)
	}
	best.Content = truncate(best.Content, c.opts.MaxContent)
	return best, nil
}

// ScrapeAll extracts urls with bounded concurrency. The result has one
// entry per input URL, in input order; URLs that could not be extracted
// are nil.
func (c *Chain) ScrapeAll(ctx context.Context, urls []string) []*Page {
	pages := make([]*Page, len(urls))
	if len(urls) == 0 {
		return pages
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.Concurrency)
	for i, u := range urls {
		g.Go(func() error {
			page, err := c.Scrape(gCtx, u)
			if err != nil {
				zap.L().Debug("scrape: giving up on url", zap.String("url", u), zap.Error(err))
				return nil
			}
			pages[i] = page
			return nil
		})
	}
	_ = g.Wait()
	return pages
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
