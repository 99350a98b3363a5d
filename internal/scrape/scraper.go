// Package scrape extracts readable page content for candidate brand sites,
// trying content providers in order until one returns enough text.
package scrape

import (
	"context"
	"strings"
)

// Page is the extracted content of one URL.
type Page struct {
	URL     string
	Title   string
	Content string
	Source  string // "firecrawl", "jina"
}

// Scraper fetches a single URL and returns its content.
type Scraper interface {
	Name() string
	Scrape(ctx context.Context, url string) (*Page, error)
}

var challengeSignatures = []string{
	"checking your browser",
	"enable javascript",
	"please enable cookies",
	"access denied",
	"403 forbidden",
	"just a moment",
	"attention required",
	"captcha",
}

// looksBlocked reports whether short content is an anti-bot interstitial
// rather than the page itself.
func looksBlocked(content string) bool {
	if len(content) >= 1000 {
		return false
	}
	lower := strings.ToLower(content)
	for _, sig := range challengeSignatures {
		if strings.Contains(lower, sig) {
			return true
		}
	}
	return false
}
