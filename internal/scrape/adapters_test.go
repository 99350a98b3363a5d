package scrape

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drmonteiro/brands-ai/pkg/firecrawl"
	"github.com/drmonteiro/brands-ai/pkg/jina"
)

type stubFirecrawl struct {
	resp *firecrawl.ScrapeResponse
	err  error
	req  firecrawl.ScrapeRequest
}

func (s *stubFirecrawl) Scrape(_ context.Context, req firecrawl.ScrapeRequest) (*firecrawl.ScrapeResponse, error) {
	s.req = req
	return s.resp, s.err
}

type stubJina struct {
	resp *jina.ReadResponse
	err  error
}

func (s *stubJina) Read(context.Context, string) (*jina.ReadResponse, error) { return s.resp, s.err }

func (s *stubJina) Search(context.Context, string, ...jina.SearchOption) (*jina.SearchResponse, error) {
	return nil, errors.New("not used")
}

func TestFirecrawlAdapter_Scrape(t *testing.T) {
	fc := &stubFirecrawl{resp: &firecrawl.ScrapeResponse{
		Success: true,
		Data:    firecrawl.PageData{Markdown: "# Suits", Metadata: firecrawl.Metadata{Title: "Acme"}},
	}}

	page, err := NewFirecrawlAdapter(fc).Scrape(context.Background(), "https://acme.com")
	require.NoError(t, err)
	assert.Equal(t, "# Suits", page.Content)
	assert.Equal(t, "Acme", page.Title)
	assert.Equal(t, "https://acme.com", page.URL)
	assert.True(t, fc.req.OnlyMainContent)
}

func TestFirecrawlAdapter_NotSuccessful(t *testing.T) {
	fc := &stubFirecrawl{resp: &firecrawl.ScrapeResponse{Success: false}}

	_, err := NewFirecrawlAdapter(fc).Scrape(context.Background(), "https://acme.com")
	assert.Error(t, err)
}

func TestJinaAdapter_Scrape(t *testing.T) {
	j := &stubJina{resp: &jina.ReadResponse{Code: 200, Data: jina.ReadData{Title: "Acme", Content: "content"}}}

	page, err := NewJinaAdapter(j).Scrape(context.Background(), "https://acme.com")
	require.NoError(t, err)
	assert.Equal(t, "content", page.Content)
	assert.Equal(t, "jina", page.Source)
}

func TestJinaAdapter_BadCode(t *testing.T) {
	j := &stubJina{resp: &jina.ReadResponse{Code: 451}}

	_, err := NewJinaAdapter(j).Scrape(context.Background(), "https://acme.com")
	assert.Error(t, err)
}

func TestLooksBlocked(t *testing.T) {
	assert.True(t, looksBlocked("Attention Required! | Cloudflare"))
	assert.False(t, looksBlocked("Handmade suits in Lisbon"))
	assert.False(t, looksBlocked(long(1200)+" captcha"))
}
